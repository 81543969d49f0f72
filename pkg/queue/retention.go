package queue

import (
	"os"
	"time"

	"github.com/ridgepath/queue/internal/queueerr"
)

// RetentionOptions bounds a Sweep call. A zero value matches nothing, so
// Sweep is a no-op unless at least one field is set.
type RetentionOptions struct {
	// MaxAge removes rolled files whose FileEntry modification time (derived
	// from the file's on-disk mtime) is older than MaxAge. Zero disables the
	// age check.
	MaxAge time.Duration
	// MaxFiles retains at least this many of the most recent rolled files
	// regardless of age. Zero means no floor.
	MaxFiles int
}

// Sweep deletes rolled (non-active) data/index file pairs that fall outside
// RetentionOptions, then persists a manifest with those entries removed. The
// active file is never touched. Sweep takes no lock against the I/O worker:
// it only ever removes files the manifest already lists as rolled, which the
// worker never reopens for writing, so it is safe to call concurrently with
// ongoing appends.
func (q *Queue) Sweep(opts RetentionOptions) (int, error) {
	mw, err := NewManifestWriter(q.cfg.BasePath)
	if err != nil {
		return 0, err
	}

	manifest, err := mw.ReadLatest()
	if err != nil {
		return 0, err
	}
	if manifest == nil || len(manifest.Files) == 0 {
		return 0, nil
	}

	keep, doomed := partitionRetained(manifest.Files, opts)
	if len(doomed) == 0 {
		return 0, nil
	}

	for _, fe := range doomed {
		if err := os.Remove(fe.Path); err != nil && !os.IsNotExist(err) {
			return 0, queueerr.IoError(err)
		}
		if err := os.Remove(indexPathForDataPath(fe.Path)); err != nil && !os.IsNotExist(err) {
			return 0, queueerr.IoError(err)
		}
	}

	pruned := &Manifest{
		NextSequence: manifest.NextSequence,
		ActiveFile:   manifest.ActiveFile,
		Files:        keep,
	}
	if err := mw.Write(pruned); err != nil {
		return 0, err
	}

	return len(doomed), nil
}

// partitionRetained splits files into (kept, removable) per opts. MaxFiles
// is applied first (the newest N files are never removable), then MaxAge
// filters whatever remains eligible.
func partitionRetained(files []FileEntry, opts RetentionOptions) ([]FileEntry, []FileEntry) {
	if opts.MaxAge == 0 && opts.MaxFiles == 0 {
		return files, nil
	}

	floor := len(files)
	if opts.MaxFiles > 0 && opts.MaxFiles < floor {
		floor = len(files) - opts.MaxFiles
	} else if opts.MaxFiles > 0 {
		floor = 0
	}

	var keep, doomed []FileEntry
	for i, fe := range files {
		if i >= floor {
			keep = append(keep, fe)
			continue
		}
		if opts.MaxAge == 0 {
			doomed = append(doomed, fe)
			continue
		}
		info, err := os.Stat(fe.Path)
		if err != nil || time.Since(info.ModTime()) < opts.MaxAge {
			keep = append(keep, fe)
			continue
		}
		doomed = append(doomed, fe)
	}
	return keep, doomed
}
