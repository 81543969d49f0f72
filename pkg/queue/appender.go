package queue

import (
	"sync/atomic"

	"github.com/ridgepath/queue/internal/writequeue"
)

// Appender is a cheap handle producers use to enqueue write events. Any
// number may exist concurrently; Append never blocks on disk I/O.
type Appender struct {
	queue          *writequeue.Queue
	globalSequence *atomic.Uint64
}

// Append assigns the next sequence atomically and enqueues the write.
// Durability is governed entirely by the queue's flush policy, not by this
// call: Append returns as soon as the event is enqueued.
func (a *Appender) Append(payload []byte) (uint64, error) {
	sequence := a.globalSequence.Add(1) - 1

	if err := a.queue.Add(writequeue.WriteEvent{Sequence: sequence, Payload: payload}); err != nil {
		return sequence, err
	}
	return sequence, nil
}

// AppendBatch appends every item in order, returning their assigned
// sequences in the same order. Stops and returns an error (with the
// sequences assigned so far) on the first failure.
func (a *Appender) AppendBatch(items [][]byte) ([]uint64, error) {
	sequences := make([]uint64, 0, len(items))
	for _, item := range items {
		seq, err := a.Append(item)
		if err != nil {
			return sequences, err
		}
		sequences = append(sequences, seq)
	}
	return sequences, nil
}
