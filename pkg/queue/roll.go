package queue

import "time"

// RollStrategy decides whether the active file should be rolled before the
// message that would produce the given projected state is written.
type RollStrategy interface {
	ShouldRoll(projectedPosition uint64, elapsed time.Duration, messageCountAfter uint64) bool
}

type rollBySize struct{ threshold uint64 }

// RollBySize rolls once the projected write position would exceed
// threshold bytes.
func RollBySize(threshold uint64) RollStrategy { return rollBySize{threshold} }

func (r rollBySize) ShouldRoll(projectedPosition uint64, _ time.Duration, _ uint64) bool {
	return projectedPosition > r.threshold
}

type rollByTime struct{ d time.Duration }

// RollByTime rolls once the active file has been open at least d, but never
// rolls an empty file.
func RollByTime(d time.Duration) RollStrategy { return rollByTime{d} }

func (r rollByTime) ShouldRoll(_ uint64, elapsed time.Duration, messageCountAfter uint64) bool {
	return elapsed >= r.d && messageCountAfter >= 1
}

type rollByCount struct{ n uint64 }

// RollByCount rolls once the active file would hold more than n messages.
func RollByCount(n uint64) RollStrategy { return rollByCount{n} }

func (r rollByCount) ShouldRoll(_ uint64, _ time.Duration, messageCountAfter uint64) bool {
	return messageCountAfter > r.n
}

type rollAny struct{ strategies []RollStrategy }

// RollAny combines strategies with logical OR: it rolls as soon as any
// child strategy says to roll.
func RollAny(strategies ...RollStrategy) RollStrategy { return rollAny{strategies} }

func (r rollAny) ShouldRoll(projectedPosition uint64, elapsed time.Duration, messageCountAfter uint64) bool {
	for _, s := range r.strategies {
		if s.ShouldRoll(projectedPosition, elapsed, messageCountAfter) {
			return true
		}
	}
	return false
}

// FlushKind selects how the active data file is durably synced.
type FlushKind int

const (
	// FlushSync flushes after every write.
	FlushSync FlushKind = iota
	// FlushAsync never explicitly flushes; the OS decides when dirty pages
	// reach disk.
	FlushAsync
	// FlushBatch flushes once pending bytes or elapsed time since the last
	// flush cross a threshold.
	FlushBatch
)

// FlushMode configures the active flush policy. BatchBytes and
// BatchInterval are only meaningful when Kind == FlushBatch.
type FlushMode struct {
	Kind          FlushKind
	BatchBytes    uint64
	BatchInterval time.Duration
}
