package queue

import (
	"encoding/binary"
	"io"
	"os"
	"sort"

	"github.com/ridgepath/queue/internal/queueerr"
)

const (
	indexHeaderSize = 256
	indexEntrySize  = 16
)

// indexEntry is one sparse (sequence, offset) pair.
type indexEntry struct {
	sequence uint64
	offset   uint64
}

// IndexWriter appends sparse (sequence, offset) entries to an index file
// that accompanies a data file. Owned exclusively by the I/O worker.
type IndexWriter struct {
	file            *os.File
	interval        uint64
	entryCount      uint64
	lastIndexed     uint64
	haveLastIndexed bool
}

// CreateIndexWriter writes a fresh 256-byte header with the given interval
// and entry_count = 0.
func CreateIndexWriter(path string, interval uint64) (*IndexWriter, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, queueerr.IoError(err)
	}

	header := make([]byte, indexHeaderSize)
	binary.LittleEndian.PutUint64(header[0:8], interval)
	binary.LittleEndian.PutUint64(header[8:16], 0)
	if _, err := f.Write(header); err != nil {
		f.Close()
		return nil, queueerr.IoError(err)
	}

	return &IndexWriter{file: f, interval: interval}, nil
}

// OpenIndexWriter reopens an existing index file for append, preserving the
// interval stored in the header and recalling the last indexed sequence
// from the final entry (if any) so that maybeWriteEntry continues
// correctly.
func OpenIndexWriter(path string) (*IndexWriter, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, queueerr.IoError(err)
	}

	header := make([]byte, indexHeaderSize)
	if _, err := f.ReadAt(header, 0); err != nil {
		f.Close()
		return nil, queueerr.IoError(err)
	}
	interval := binary.LittleEndian.Uint64(header[0:8])
	entryCount := binary.LittleEndian.Uint64(header[8:16])

	w := &IndexWriter{file: f, interval: interval, entryCount: entryCount}

	if entryCount > 0 {
		lastOffset := int64(indexHeaderSize + (entryCount-1)*indexEntrySize)
		buf := make([]byte, indexEntrySize)
		if _, err := f.ReadAt(buf, lastOffset); err != nil {
			f.Close()
			return nil, queueerr.IoError(err)
		}
		w.lastIndexed = binary.LittleEndian.Uint64(buf[0:8])
		w.haveLastIndexed = true
	}

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, queueerr.IoError(err)
	}

	return w, nil
}

// MaybeWriteEntry writes an entry for sequence iff this is the first entry
// in the file (sequence == 0 and none yet written) or sequence has advanced
// at least interval past the last indexed sequence.
func (w *IndexWriter) MaybeWriteEntry(sequence, offset uint64) error {
	shouldWrite := !w.haveLastIndexed && sequence == 0
	if w.haveLastIndexed && sequence >= w.lastIndexed+w.interval {
		shouldWrite = true
	}
	if !shouldWrite {
		return nil
	}

	var buf [indexEntrySize]byte
	binary.LittleEndian.PutUint64(buf[0:8], sequence)
	binary.LittleEndian.PutUint64(buf[8:16], offset)
	if _, err := w.file.Write(buf[:]); err != nil {
		return queueerr.IoError(err)
	}

	w.lastIndexed = sequence
	w.haveLastIndexed = true
	w.entryCount++
	return nil
}

// Flush writes the updated entry_count into the header and syncs the file.
// Must be called before the writer is discarded for the header count to be
// accurate.
func (w *IndexWriter) Flush() error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], w.entryCount)
	if _, err := w.file.WriteAt(buf[:], 8); err != nil {
		return queueerr.IoError(err)
	}
	if err := w.file.Sync(); err != nil {
		return queueerr.IoError(err)
	}
	return nil
}

// Close closes the underlying file without flushing. Callers should call
// Flush first.
func (w *IndexWriter) Close() error {
	if err := w.file.Close(); err != nil {
		return queueerr.IoError(err)
	}
	return nil
}

// IndexReader is an in-memory, read-only view of an index file. Entries are
// small and sparse, so loading them all is bounded in practice.
type IndexReader struct {
	interval uint64
	entries  []indexEntry
}

// OpenIndexReader reads the header and all entries of path into memory.
func OpenIndexReader(path string) (*IndexReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, queueerr.IoError(err)
	}
	defer f.Close()

	header := make([]byte, indexHeaderSize)
	if _, err := f.ReadAt(header, 0); err != nil {
		return nil, queueerr.IoError(err)
	}
	interval := binary.LittleEndian.Uint64(header[0:8])
	entryCount := binary.LittleEndian.Uint64(header[8:16])

	entries := make([]indexEntry, 0, entryCount)
	if entryCount > 0 {
		buf := make([]byte, entryCount*indexEntrySize)
		if _, err := f.ReadAt(buf, indexHeaderSize); err != nil {
			return nil, queueerr.IoError(err)
		}
		for i := uint64(0); i < entryCount; i++ {
			off := i * indexEntrySize
			entries = append(entries, indexEntry{
				sequence: binary.LittleEndian.Uint64(buf[off : off+8]),
				offset:   binary.LittleEndian.Uint64(buf[off+8 : off+16]),
			})
		}
	}

	return &IndexReader{interval: interval, entries: entries}, nil
}

// FindOffsetForSequence binary-searches for the largest entry with
// sequence <= target. If target precedes all entries, returns the first
// entry. Returns ok == false iff the index is empty.
func (r *IndexReader) FindOffsetForSequence(target uint64) (sequence, offset uint64, ok bool) {
	if len(r.entries) == 0 {
		return 0, 0, false
	}

	i := sort.Search(len(r.entries), func(i int) bool {
		return r.entries[i].sequence > target
	})
	if i == 0 {
		e := r.entries[0]
		return e.sequence, e.offset, true
	}
	e := r.entries[i-1]
	return e.sequence, e.offset, true
}
