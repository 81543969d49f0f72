package queue

import (
	"os"
	"path/filepath"

	"github.com/ridgepath/queue/internal/queueerr"
)

const (
	manifestSlot1   = "manifest.1"
	manifestSlot2   = "manifest.2"
	manifestCurrent = "manifest.current"
)

// ManifestWriter persists Manifest snapshots using a dual-slot, crash-atomic
// protocol: two full manifest slots plus a single-byte pointer file naming
// the currently valid slot.
type ManifestWriter struct {
	base string
	// currentSlot is 0 (no manifest written yet), 1, or 2.
	currentSlot byte
}

// NewManifestWriter initializes currentSlot from the pointer file if
// present, else 0 (meaning the first Write lands in slot 1).
func NewManifestWriter(base string) (*ManifestWriter, error) {
	w := &ManifestWriter{base: base}

	data, err := os.ReadFile(filepath.Join(base, manifestCurrent))
	switch {
	case os.IsNotExist(err):
		return w, nil
	case err != nil:
		return nil, queueerr.IoError(err)
	}

	if len(data) != 1 || (data[0] != 1 && data[0] != 2) {
		return nil, queueerr.ManifestCorruptedError("invalid manifest.current pointer")
	}
	w.currentSlot = data[0]
	return w, nil
}

func (w *ManifestWriter) slotPath(slot byte) string {
	if slot == 1 {
		return filepath.Join(w.base, manifestSlot1)
	}
	return filepath.Join(w.base, manifestSlot2)
}

// Write persists m to the slot opposite the current one, fsyncs it, then
// fsyncs a single-byte pointer update. A crash after the slot write but
// before the pointer flip leaves the previous slot as current, which is
// still fully valid; a crash during the pointer write leaves either the old
// or new byte on disk, and both reference a fully-synced manifest.
func (w *ManifestWriter) Write(m *Manifest) error {
	nextSlot := byte(1)
	if w.currentSlot == 1 {
		nextSlot = 2
	}

	data := m.serialize()
	if err := writeFileSync(w.slotPath(nextSlot), data); err != nil {
		return err
	}
	if err := writeFileSync(filepath.Join(w.base, manifestCurrent), []byte{nextSlot}); err != nil {
		return err
	}

	w.currentSlot = nextSlot
	return nil
}

// ReadLatest returns the most recently written manifest, or nil if none has
// ever been written (a fresh queue).
func (w *ManifestWriter) ReadLatest() (*Manifest, error) {
	if w.currentSlot == 0 {
		return nil, nil
	}

	data, err := os.ReadFile(w.slotPath(w.currentSlot))
	if err != nil {
		return nil, queueerr.IoError(err)
	}
	return deserializeManifest(data)
}

func writeFileSync(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return queueerr.IoError(err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return queueerr.IoError(err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return queueerr.IoError(err)
	}
	if err := f.Sync(); err != nil {
		return queueerr.IoError(err)
	}
	return nil
}
