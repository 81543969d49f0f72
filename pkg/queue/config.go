package queue

import (
	"log/slog"
	"os"
	"time"

	"github.com/ridgepath/queue/internal/observability"
)

// Config configures a Queue. It is a plain struct: this module does no flag
// parsing, environment binding, or file-format loading — construction and
// wiring of Config values is left to the embedding application.
type Config struct {
	// BasePath is the queue's root directory; created if absent.
	BasePath string
	// FileSize is the byte size of each newly created data file.
	FileSize uint64
	// RollStrategy decides when the active file is sealed and a new one
	// opened. Defaults to RollBySize(FileSize) if nil.
	RollStrategy RollStrategy
	// FlushMode governs durability of writes to the active file. The zero
	// value is FlushSync (flush after every write).
	FlushMode FlushMode
	// IndexInterval is the sequence-count gap between sparse index
	// entries. Defaults to 100 if zero.
	IndexInterval uint64
	// VerifyOnStartup, if true, CRC-checks records during the tail scan
	// performed by recovery.
	VerifyOnStartup bool
	// Logger receives all structured log output. Defaults to a JSON
	// logger writing to stderr if nil.
	Logger *observability.CoreLogger
}

const (
	defaultFileSize      = 64 * 1024 * 1024
	defaultIndexInterval = 100
)

func (c *Config) withDefaults() Config {
	out := *c
	if out.FileSize == 0 {
		out.FileSize = defaultFileSize
	}
	if out.RollStrategy == nil {
		out.RollStrategy = RollBySize(out.FileSize)
	}
	if out.IndexInterval == 0 {
		out.IndexInterval = defaultIndexInterval
	}
	if out.Logger == nil {
		out.Logger = observability.NewCoreLogger(
			slog.New(slog.NewJSONHandler(os.Stderr, nil)),
			nil,
		)
	}
	return out
}

// eventChannelCapacity bounds the otherwise-unbounded write-event channel.
// Appends block only if the worker falls this far behind, which does not
// happen in the common case the spec describes (a healthy worker drains
// faster than producers enqueue).
const eventChannelCapacity = 65536

// ioWorkerPollInterval is how often the worker wakes with no new event to
// re-check the shutdown flag and the batch flush timer.
const ioWorkerPollInterval = 100 * time.Microsecond
