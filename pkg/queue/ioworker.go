package queue

import (
	"fmt"
	"time"

	"github.com/ridgepath/queue/internal/observability"
	"github.com/ridgepath/queue/internal/queueerr"
	"github.com/ridgepath/queue/internal/writequeue"
)

// ioWorker is the single background consumer of write events. It
// exclusively owns the active data file, its index writer, and every piece
// of mutable bookkeeping below. Nothing outside ioWorker.run touches these
// fields.
type ioWorker struct {
	cfg    Config
	logger *observability.CoreLogger

	queue      *writequeue.Queue
	workerDone chan struct{}

	manifestWriter *ManifestWriter

	currentFile  *DataFile
	currentIndex *IndexWriter
	currentPath  string

	writePosition     uint64
	fileSequence      uint32
	messageCount      uint64
	fileStartSequence uint64
	fileStartTime     time.Time

	// nextSequence tracks the sequence that will be assigned to the next
	// incoming message, mirrored from each event's sequence so the worker
	// never needs to read the shared atomic counter to build a manifest.
	nextSequence uint64

	pendingBytes uint64
	lastFlush    time.Time

	completedFiles []FileEntry

	recovered bool

	// panicErr is set by run's recover before workerDone closes, so it is
	// safely visible to Shutdown after <-workerDone (the channel close
	// establishes the happens-before edge).
	panicErr *queueerr.Error
}

// newIOWorker constructs a worker primed with recovered state (or zero
// state for a fresh queue).
func newIOWorker(cfg Config, mw *ManifestWriter, recovery RecoveryInfo, recovered bool) *ioWorker {
	return &ioWorker{
		cfg:            cfg,
		logger:         cfg.Logger,
		queue:          writequeue.New(eventChannelCapacity),
		workerDone:     make(chan struct{}),
		manifestWriter: mw,
		fileSequence:   recovery.FileSequence,
		writePosition:  recovery.WritePosition,
		messageCount:   recovery.MessageCount,
		nextSequence:   recovery.NextSequence,
		completedFiles: append([]FileEntry(nil), recovery.CompletedFiles...),
		recovered:      recovered,
	}
}

// run is the worker's entire lifetime: materialize a file, loop handling
// events until shutdown, then final-flush. Meant to be launched as
// `go w.run()`.
func (w *ioWorker) run() {
	defer close(w.workerDone)
	defer w.recoverPanic()

	if err := w.ensureFile(); err != nil {
		w.logger.CaptureError(err, "component", "ioworker", "stage", "initial_materialize")
		return
	}
	w.logger.Info("queue: io worker started", "path", w.currentPath)

	ticker := time.NewTicker(ioWorkerPollInterval)
	defer ticker.Stop()

	ch := w.queue.Chan()

loop:
	for {
		// Shutdown is driven entirely by the queue closing: Close() blocks
		// until every Add already in flight has returned, so by the time ch
		// reports closed, every event the queue ever accepted has already
		// been delivered here.
		select {
		case ev, ok := <-ch:
			if !ok {
				break loop
			}
			if err := w.handleWriteEvent(ev); err != nil {
				w.logger.CaptureError(err, "component", "ioworker", "sequence", ev.Sequence)
			}
		case <-ticker.C:
			if err := w.checkFlush(); err != nil {
				w.logger.CaptureError(err, "component", "ioworker", "stage", "check_flush")
			}
		}
	}

	if err := w.finalFlush(); err != nil {
		w.logger.CaptureError(err, "component", "ioworker", "stage", "final_flush")
	}
	w.logger.Info("queue: io worker stopped")
}

// recoverPanic stops a panic from propagating out of run's goroutine and
// stashes it as an Internal error for Shutdown to surface, mirroring a
// thread join reporting the panic across the boundary.
func (w *ioWorker) recoverPanic() {
	if r := recover(); r != nil {
		w.panicErr = queueerr.InternalError(fmt.Sprintf("io worker panicked: %v", r))
		w.logger.CaptureError(w.panicErr, "component", "ioworker", "stage", "panic")
	}
}

// ensureFile materializes a writable active file. On the recovery path, it
// reopens whichever data file scanDataFiles reports last (mirroring the
// façade's own recovery scan, since RecoveryInfo itself carries no path);
// otherwise it creates a fresh file.
func (w *ioWorker) ensureFile() error {
	if w.recovered {
		files, err := scanDataFiles(w.cfg.BasePath)
		if err != nil {
			return err
		}
		if len(files) > 0 {
			return w.reopenRecoveredFile(files[len(files)-1])
		}
	}
	return w.materializeFreshFile()
}

func (w *ioWorker) reopenRecoveredFile(path string) error {
	df, err := OpenDataFile(path)
	if err != nil {
		return err
	}

	idxPath := indexPathForDataPath(path)
	idx, err := OpenIndexWriter(idxPath)
	if err != nil {
		// No sibling index (e.g. deleted or never created): start a fresh
		// one, preserving the configured interval.
		idx, err = CreateIndexWriter(idxPath, w.cfg.IndexInterval)
		if err != nil {
			df.Close()
			return err
		}
	}

	w.currentFile = df
	w.currentIndex = idx
	w.currentPath = path
	w.fileStartTime = time.Now()
	w.fileStartSequence = w.nextSequence - w.messageCount
	w.lastFlush = time.Now()
	return nil
}

func (w *ioWorker) materializeFreshFile() error {
	now := time.Now().UTC()
	path := dataFilePath(w.cfg.BasePath, now, w.fileSequence)
	idxPath := indexFilePath(w.cfg.BasePath, now, w.fileSequence)

	df, err := CreateDataFile(path, w.cfg.FileSize)
	if err != nil {
		return err
	}
	idx, err := CreateIndexWriter(idxPath, w.cfg.IndexInterval)
	if err != nil {
		df.Close()
		return err
	}

	w.currentFile = df
	w.currentIndex = idx
	w.currentPath = path
	w.writePosition = 0
	w.fileStartTime = now
	w.lastFlush = now
	return nil
}

// handleWriteEvent implements §4.7.3: roll if needed, write the three wire
// regions, update bookkeeping, maybe index, apply flush policy.
func (w *ioWorker) handleWriteEvent(ev writequeue.WriteEvent) error {
	total := uint64(messageDiskSize(len(ev.Payload)))

	projected := w.writePosition + total
	if w.cfg.RollStrategy.ShouldRoll(projected, time.Since(w.fileStartTime), w.messageCount+1) {
		if err := w.roll(); err != nil {
			return err
		}
	}

	if w.currentFile == nil {
		if err := w.materializeFreshFile(); err != nil {
			return err
		}
	}

	buf := make([]byte, total)
	encodeMessage(buf, ev.Payload)

	preWritePosition := w.writePosition
	if err := w.currentFile.WriteAt(preWritePosition, buf); err != nil {
		return err
	}

	w.writePosition += total
	w.pendingBytes += total
	w.messageCount++
	w.nextSequence = ev.Sequence + 1

	if err := w.currentIndex.MaybeWriteEntry(ev.Sequence, preWritePosition); err != nil {
		return err
	}

	return w.handleFlush()
}

// handleFlush implements §4.7.5's three flush modes for a just-completed
// write.
func (w *ioWorker) handleFlush() error {
	switch w.cfg.FlushMode.Kind {
	case FlushSync:
		if err := w.currentFile.Flush(FlushSync); err != nil {
			return err
		}
		w.pendingBytes = 0
		w.lastFlush = time.Now()
	case FlushBatch:
		if w.pendingBytes >= w.cfg.FlushMode.BatchBytes || time.Since(w.lastFlush) >= w.cfg.FlushMode.BatchInterval {
			if err := w.currentFile.Flush(FlushBatch); err != nil {
				return err
			}
			if err := w.currentIndex.Flush(); err != nil {
				return err
			}
			w.pendingBytes = 0
			w.lastFlush = time.Now()
		}
	case FlushAsync:
		// Never explicitly flush; rely on the OS.
	}
	return nil
}

// checkFlush implements the Batch-mode timer tick: flush if pending bytes
// exist and the interval has elapsed, even with no new event.
func (w *ioWorker) checkFlush() error {
	if w.cfg.FlushMode.Kind != FlushBatch || w.pendingBytes == 0 {
		return nil
	}
	if time.Since(w.lastFlush) < w.cfg.FlushMode.BatchInterval {
		return nil
	}
	if err := w.currentFile.Flush(FlushBatch); err != nil {
		return err
	}
	if err := w.currentIndex.Flush(); err != nil {
		return err
	}
	w.pendingBytes = 0
	w.lastFlush = time.Now()
	return nil
}

// finalFlush implements §4.7.6: flush the active file in Sync mode, flush
// the index, write the manifest.
func (w *ioWorker) finalFlush() error {
	if w.currentFile != nil {
		if err := w.currentFile.Flush(FlushSync); err != nil {
			return err
		}
	}
	if w.currentIndex != nil {
		if err := w.currentIndex.Flush(); err != nil {
			return err
		}
	}
	return w.writeManifest()
}

// roll implements §4.7.7.
func (w *ioWorker) roll() error {
	if w.currentFile != nil {
		if err := w.currentFile.Flush(FlushSync); err != nil {
			return err
		}
	}
	if w.currentIndex != nil {
		if err := w.currentIndex.Flush(); err != nil {
			return err
		}
	}

	if w.messageCount > 0 {
		w.completedFiles = append(w.completedFiles, FileEntry{
			Path:          w.currentPath,
			StartSequence: w.fileStartSequence,
			EndSequence:   w.fileStartSequence + w.messageCount - 1,
			Size:          w.writePosition,
		})
	}

	if w.currentFile != nil {
		if err := w.currentFile.Close(); err != nil {
			return err
		}
	}
	if w.currentIndex != nil {
		if err := w.currentIndex.Close(); err != nil {
			return err
		}
	}

	w.currentFile = nil
	w.currentIndex = nil
	w.currentPath = ""
	w.fileSequence++
	w.fileStartSequence += w.messageCount
	w.messageCount = 0
	w.writePosition = 0

	if err := w.materializeFreshFile(); err != nil {
		return err
	}

	w.logger.Info("queue: rolled to new file", "path", w.currentPath, "file_sequence", w.fileSequence)
	return w.writeManifest()
}

// writeManifest implements §4.7.8.
func (w *ioWorker) writeManifest() error {
	m := &Manifest{
		NextSequence: w.nextSequence,
		ActiveFile: ActiveFileState{
			FileSequence:  w.fileSequence,
			WritePosition: w.writePosition,
			MessageCount:  w.messageCount,
			Path:          w.currentPath,
		},
		Files: w.completedFiles,
	}
	if err := w.manifestWriter.Write(m); err != nil {
		w.logger.CaptureError(err, "component", "ioworker", "stage", "write_manifest")
		return nil // manifest-write failures are logged, not fatal
	}
	return nil
}

