package queue

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/ridgepath/queue/internal/queueerr"
)

var manifestMagic = [4]byte{0x51, 0x4D, 0x46, 0x54} // "QMFT"

const (
	manifestVersion    uint32 = 1
	manifestHeaderSize        = 32
)

// ActiveFileState snapshots the I/O worker's current active file.
type ActiveFileState struct {
	FileSequence  uint32
	WritePosition uint64
	MessageCount  uint64
	Path          string // empty if no active file has been materialized yet
}

// FileEntry describes one rolled (immutable) data file.
type FileEntry struct {
	Path          string
	StartSequence uint64
	EndSequence   uint64
	Size          uint64
}

// Manifest is a complete snapshot of queue state: the next sequence to
// assign, the active file, and every rolled file.
type Manifest struct {
	NextSequence uint64
	ActiveFile   ActiveFileState
	Files        []FileEntry
}

// serialize renders m as the on-disk manifest byte layout: a 32-byte header
// followed by the active file state and every file entry, little-endian
// throughout.
func (m *Manifest) serialize() []byte {
	var content bytes.Buffer
	writeActiveFileState(&content, m.ActiveFile)
	for _, fe := range m.Files {
		writeFileEntry(&content, fe)
	}

	contentBytes := content.Bytes()
	checksum := crc32.Checksum(contentBytes, crcIEEETable)

	header := make([]byte, manifestHeaderSize)
	copy(header[0:4], manifestMagic[:])
	binary.LittleEndian.PutUint32(header[4:8], manifestVersion)
	binary.LittleEndian.PutUint64(header[8:16], m.NextSequence)
	binary.LittleEndian.PutUint32(header[16:20], uint32(len(m.Files)))
	binary.LittleEndian.PutUint32(header[20:24], checksum)
	// header[24:32] reserved, left zero

	out := make([]byte, 0, len(header)+len(contentBytes))
	out = append(out, header...)
	out = append(out, contentBytes...)
	return out
}

// deserializeManifest parses data into a Manifest, validating the magic,
// version, and content checksum.
func deserializeManifest(data []byte) (*Manifest, error) {
	if len(data) < manifestHeaderSize {
		return nil, queueerr.ManifestCorruptedError("too short")
	}

	if !bytes.Equal(data[0:4], manifestMagic[:]) {
		return nil, queueerr.ManifestCorruptedError("bad magic")
	}

	version := binary.LittleEndian.Uint32(data[4:8])
	if version != manifestVersion {
		return nil, queueerr.UnsupportedManifestVersionError(version)
	}

	nextSequence := binary.LittleEndian.Uint64(data[8:16])
	fileCount := binary.LittleEndian.Uint32(data[16:20])
	storedChecksum := binary.LittleEndian.Uint32(data[20:24])

	content := data[manifestHeaderSize:]
	if crc32.Checksum(content, crcIEEETable) != storedChecksum {
		return nil, queueerr.ManifestCorruptedError("checksum mismatch")
	}

	r := bytes.NewReader(content)
	activeFile, err := readActiveFileState(r)
	if err != nil {
		return nil, err
	}

	files := make([]FileEntry, 0, fileCount)
	for i := uint32(0); i < fileCount; i++ {
		fe, err := readFileEntry(r)
		if err != nil {
			return nil, err
		}
		files = append(files, fe)
	}

	return &Manifest{NextSequence: nextSequence, ActiveFile: activeFile, Files: files}, nil
}

func writeActiveFileState(buf *bytes.Buffer, a ActiveFileState) {
	var head [4 + 8 + 8]byte
	binary.LittleEndian.PutUint32(head[0:4], a.FileSequence)
	binary.LittleEndian.PutUint64(head[4:12], a.WritePosition)
	binary.LittleEndian.PutUint64(head[12:20], a.MessageCount)
	buf.Write(head[:])

	writePathField(buf, a.Path)
}

func readActiveFileState(r *bytes.Reader) (ActiveFileState, error) {
	var head [4 + 8 + 8]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return ActiveFileState{}, queueerr.ManifestCorruptedError("truncated active file state")
	}

	a := ActiveFileState{
		FileSequence:  binary.LittleEndian.Uint32(head[0:4]),
		WritePosition: binary.LittleEndian.Uint64(head[4:12]),
		MessageCount:  binary.LittleEndian.Uint64(head[12:20]),
	}

	path, err := readPathField(r)
	if err != nil {
		return ActiveFileState{}, err
	}
	a.Path = path
	return a, nil
}

func writeFileEntry(buf *bytes.Buffer, fe FileEntry) {
	var head [8 + 8 + 8]byte
	binary.LittleEndian.PutUint64(head[0:8], fe.StartSequence)
	binary.LittleEndian.PutUint64(head[8:16], fe.EndSequence)
	binary.LittleEndian.PutUint64(head[16:24], fe.Size)
	buf.Write(head[:])

	writePathField(buf, fe.Path)
}

func readFileEntry(r *bytes.Reader) (FileEntry, error) {
	var head [8 + 8 + 8]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return FileEntry{}, queueerr.ManifestCorruptedError("truncated file entry")
	}

	fe := FileEntry{
		StartSequence: binary.LittleEndian.Uint64(head[0:8]),
		EndSequence:   binary.LittleEndian.Uint64(head[8:16]),
		Size:          binary.LittleEndian.Uint64(head[16:24]),
	}

	path, err := readPathField(r)
	if err != nil {
		return FileEntry{}, err
	}
	fe.Path = path
	return fe, nil
}

func writePathField(buf *bytes.Buffer, path string) {
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(path)))
	buf.Write(lenBuf[:])
	buf.WriteString(path)
}

func readPathField(r *bytes.Reader) (string, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", queueerr.ManifestCorruptedError("truncated path length")
	}
	n := binary.LittleEndian.Uint16(lenBuf[:])
	if n == 0 {
		return "", nil
	}
	pathBytes := make([]byte, n)
	if _, err := io.ReadFull(r, pathBytes); err != nil {
		return "", queueerr.ManifestCorruptedError("truncated path bytes")
	}
	return string(pathBytes), nil
}
