// Package writequeue provides a multi-producer, single-consumer queue of
// write events that can be closed safely while Add calls are in flight on
// other goroutines, without panicking and without silently dropping an
// event that was already accepted.
package writequeue

import (
	"sync"

	"github.com/ridgepath/queue/internal/queueerr"
)

// WriteEvent is one unit of work handed from an Appender to the I/O worker.
type WriteEvent struct {
	Sequence uint64
	Payload  []byte
}

// Queue is the channel Appenders enqueue onto and the I/O worker drains.
type Queue struct {
	addCount int        // number of goroutines currently inside Add
	addCV    *sync.Cond // signalled when addCount reaches zero

	closedMu sync.Mutex
	closed   chan struct{}

	events chan WriteEvent
}

// New returns a Queue whose channel buffers up to bufferSize events before
// Add blocks.
func New(bufferSize int) *Queue {
	return &Queue{
		addCV:  sync.NewCond(&sync.Mutex{}),
		closed: make(chan struct{}),
		events: make(chan WriteEvent, bufferSize),
	}
}

func (q *Queue) incAdd() {
	q.addCV.L.Lock()
	q.addCount++
	q.addCV.L.Unlock()
}

func (q *Queue) decAdd() {
	q.addCV.L.Lock()
	q.addCount--
	if q.addCount == 0 {
		q.addCV.Broadcast()
	}
	q.addCV.L.Unlock()
}

// Add enqueues ev, or returns queueerr.ErrQueueShutdown if Close has begun.
// Safe to call concurrently from any number of goroutines.
func (q *Queue) Add(ev WriteEvent) error {
	q.incAdd()
	defer q.decAdd()

	// Add.A
	select {
	case <-q.closed:
		return queueerr.ErrQueueShutdown
	default:
	}

	// Here, Add.A happened before Close.A, so Close is guaranteed to block
	// (at Close.B) until this call returns and decrements addCount: the
	// channel cannot be closed underneath this send.
	select {
	case <-q.closed:
		return queueerr.ErrQueueShutdown
	case q.events <- ev:
		return nil
	}
}

// Chan returns the receive side of the queue. It is closed once Close has
// been called and every Add in flight at that point has returned; events
// already buffered stay receivable after the close.
func (q *Queue) Chan() <-chan WriteEvent {
	return q.events
}

// Close marks the queue closed to new Adds, waits for every in-flight Add
// to return, then closes the channel so a consumer ranging over Chan()
// terminates after draining whatever was already buffered. Idempotent and
// safe to call concurrently.
func (q *Queue) Close() {
	q.closedMu.Lock()
	select {
	case <-q.closed:
		q.closedMu.Unlock()
		return
	default:
	}
	close(q.closed) // Close.A
	q.closedMu.Unlock()

	q.addCV.L.Lock()
	for q.addCount > 0 {
		q.addCV.Wait() // Close.B
	}
	close(q.events)
	q.addCV.L.Unlock()
}
