package queue

import (
	"encoding/binary"

	"github.com/ridgepath/queue/internal/queueerr"
)

// Tailer is an independent read cursor that walks data files in sequence
// order, CRC-verifying every record it returns. It holds its own mmap
// handles, entirely separate from the I/O worker's and from any other
// tailer's.
type Tailer struct {
	basePath string

	dataFiles      []string
	currentFileIdx int

	currentFile *ReadOnlyDataFile

	readPosition    uint64
	currentSequence uint64
}

// NewTailer scans basePath for data files and opens the first one, starting
// at sequence 0. An empty queue yields a Tailer whose Next always returns
// (nil, nil).
func NewTailer(basePath string) (*Tailer, error) {
	t := &Tailer{basePath: basePath}
	if err := t.refreshLocked(); err != nil {
		return nil, err
	}
	if len(t.dataFiles) > 0 {
		if err := t.openFileAtIndex(0); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// NewTailerAt is NewTailer followed by Seek(target).
func NewTailerAt(basePath string, target uint64) (*Tailer, error) {
	t, err := NewTailer(basePath)
	if err != nil {
		return nil, err
	}
	if err := t.Seek(target); err != nil {
		return nil, err
	}
	return t, nil
}

// Next returns the next message in sequence order, or (nil, nil) once the
// tailer has exhausted every rolled and active file it knows about.
func (t *Tailer) Next() (*Message, error) {
	for {
		if t.currentFile == nil {
			return nil, nil
		}

		fileSize := t.currentFile.Size()
		if t.readPosition+lengthFieldSize > fileSize {
			if !t.advanceToNextFile() {
				return nil, nil
			}
			continue
		}

		var lenBuf [lengthFieldSize]byte
		if err := t.currentFile.ReadAt(t.readPosition, lenBuf[:]); err != nil {
			return nil, err
		}
		length := binary.LittleEndian.Uint32(lenBuf[:])
		if length == 0 {
			// Unwritten space reads as a zero length with a zero CRC field; an
			// empty-payload record carries the valid CRC for length 0.
			var crcBuf [crcFieldSize]byte
			isRecord := t.readPosition+uint64(messageDiskSize(0)) <= fileSize &&
				t.currentFile.ReadAt(t.readPosition+lengthFieldSize, crcBuf[:]) == nil &&
				verifyMessageCRC(0, nil, binary.LittleEndian.Uint32(crcBuf[:]))
			if !isRecord {
				if !t.advanceToNextFile() {
					return nil, nil
				}
				continue
			}
		}

		total := uint64(messageDiskSize(int(length)))
		if t.readPosition+total > fileSize {
			return nil, queueerr.CorruptedMessageError(t.currentSequence)
		}

		payload := make([]byte, length)
		if err := t.currentFile.ReadAt(t.readPosition+lengthFieldSize, payload); err != nil {
			return nil, err
		}
		var crcBuf [crcFieldSize]byte
		if err := t.currentFile.ReadAt(t.readPosition+lengthFieldSize+uint64(length), crcBuf[:]); err != nil {
			return nil, err
		}
		stored := binary.LittleEndian.Uint32(crcBuf[:])
		if !verifyMessageCRC(length, payload, stored) {
			return nil, queueerr.CorruptedMessageError(t.currentSequence)
		}

		msg := &Message{Sequence: t.currentSequence, Timestamp: 0, Payload: payload}
		t.readPosition += total
		t.currentSequence++
		return msg, nil
	}
}

// CurrentSequence returns the sequence of the next message Next will
// return.
func (t *Tailer) CurrentSequence() uint64 { return t.currentSequence }

// Seek positions the tailer so the next Next call returns the first message
// with sequence >= target (exactly target, if it exists). It consults each
// data file's sparse index in order; if none has an index or none matches,
// it falls back to a linear scan from the very first file.
func (t *Tailer) Seek(target uint64) error {
	for i, path := range t.dataFiles {
		idx, err := OpenIndexReader(indexPathForDataPath(path))
		if err != nil {
			continue
		}
		startSeq, offset, ok := idx.FindOffsetForSequence(target)
		if !ok {
			continue
		}

		if err := t.openFileAtIndex(i); err != nil {
			return err
		}
		t.readPosition = offset
		t.currentSequence = startSeq

		for t.currentSequence < target {
			msg, err := t.Next()
			if err != nil {
				return err
			}
			if msg == nil {
				break
			}
		}
		return nil
	}

	// No index matched: rewind and scan linearly from the beginning.
	if len(t.dataFiles) == 0 {
		return nil
	}
	if err := t.openFileAtIndex(0); err != nil {
		return err
	}
	t.readPosition = 0
	t.currentSequence = 0
	for t.currentSequence < target {
		msg, err := t.Next()
		if err != nil {
			return err
		}
		if msg == nil {
			break
		}
	}
	return nil
}

// Refresh re-scans basePath for data files. Call after the writer may have
// rolled since this tailer was opened, so newly rolled files become
// visible.
func (t *Tailer) Refresh() error {
	return t.refreshLocked()
}

func (t *Tailer) refreshLocked() error {
	files, err := scanDataFiles(t.basePath)
	if err != nil {
		return err
	}
	t.dataFiles = files
	return nil
}

// advanceToNextFile tries currentFileIdx+1; if that's beyond the known
// list, it refreshes once (the writer may have rolled) and retries.
func (t *Tailer) advanceToNextFile() bool {
	if t.tryOpenIndex(t.currentFileIdx + 1) {
		return true
	}
	if err := t.refreshLocked(); err != nil {
		return false
	}
	return t.tryOpenIndex(t.currentFileIdx + 1)
}

func (t *Tailer) tryOpenIndex(idx int) bool {
	if idx >= len(t.dataFiles) {
		return false
	}
	if err := t.openFileAtIndex(idx); err != nil {
		return false
	}
	return true
}

func (t *Tailer) openFileAtIndex(idx int) error {
	if t.currentFile != nil {
		if err := t.currentFile.Close(); err != nil {
			return err
		}
		t.currentFile = nil
	}

	df, err := OpenReadOnlyDataFile(t.dataFiles[idx])
	if err != nil {
		return err
	}

	t.currentFile = df
	t.currentFileIdx = idx
	t.readPosition = 0
	return nil
}

// Close releases the tailer's open file mapping, if any.
func (t *Tailer) Close() error {
	if t.currentFile != nil {
		return t.currentFile.Close()
	}
	return nil
}
