// Package queue implements a persistent, append-only, single-writer/
// many-reader message queue backed by memory-mapped data files.
package queue

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/ridgepath/queue/internal/queueerr"
)

// Queue is the façade producers and consumers use: create Appenders and
// Tailers, query the current sequence, and shut down cleanly.
type Queue struct {
	cfg Config

	globalSequence atomic.Uint64

	worker *ioWorker

	shutdownOnce sync.Once
}

// Open creates the base directory if missing, then always runs recovery
// (a no-op returning zero state on a genuinely fresh directory) before
// spawning the I/O worker.
func Open(cfg Config) (*Queue, error) {
	full := cfg.withDefaults()

	if err := os.MkdirAll(full.BasePath, 0o755); err != nil {
		return nil, queueerr.IoError(err)
	}

	result, err := recover(full.BasePath, full.VerifyOnStartup)
	if err != nil {
		return nil, err
	}

	q := &Queue{cfg: full}
	q.globalSequence.Store(result.Info.NextSequence)
	q.worker = newIOWorker(full, result.ManifestWriter, result.Info, true)
	go q.worker.run()

	full.Logger.Info("queue: opened", "base_path", full.BasePath, "current_sequence", result.Info.NextSequence)
	return q, nil
}

// CreateAppender returns a new, cheap Appender handle. Safe to call from
// any goroutine, any number of times.
func (q *Queue) CreateAppender() *Appender {
	return &Appender{
		queue:          q.worker.queue,
		globalSequence: &q.globalSequence,
	}
}

// CreateTailer returns a new independent read cursor starting at sequence
// 0.
func (q *Queue) CreateTailer() (*Tailer, error) {
	return NewTailer(q.cfg.BasePath)
}

// CreateTailerAt returns a new independent read cursor seeked to sequence.
func (q *Queue) CreateTailerAt(sequence uint64) (*Tailer, error) {
	return NewTailerAt(q.cfg.BasePath, sequence)
}

// CurrentSequence returns the sequence the next Append will assign.
func (q *Queue) CurrentSequence() uint64 {
	return q.globalSequence.Load()
}

// Shutdown signals the worker to stop, waits for it to perform its final
// flush, and returns. Idempotent: a second call is a no-op. Returns a
// KindInternal error if the worker goroutine panicked, mirroring a thread
// join reporting a panic across the boundary.
func (q *Queue) Shutdown() error {
	q.shutdownOnce.Do(func() {
		q.worker.queue.Close()
	})
	<-q.worker.workerDone
	if q.worker.panicErr != nil {
		return q.worker.panicErr
	}
	return nil
}
