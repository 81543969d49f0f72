package queue

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/ridgepath/queue/internal/queueerr"
)

// DataFile is a fixed-size, memory-mapped, read-write data file. It is
// exclusively owned by the I/O worker; writes go directly into the mapping
// and are not guaranteed durable until Flush or FlushRange is called.
type DataFile struct {
	path string
	file *os.File
	data []byte
}

// CreateDataFile creates parent directories as needed and a new read-write
// mmap of exactly size bytes at path.
func CreateDataFile(path string, size uint64) (*DataFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, queueerr.IoError(err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, queueerr.IoError(err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, queueerr.IoError(err)
	}

	data, err := mmapRW(f, int(size))
	if err != nil {
		f.Close()
		return nil, queueerr.IoError(err)
	}

	return &DataFile{path: path, file: f, data: data}, nil
}

// OpenDataFile opens an existing file read-write at its current length and
// maps it in full.
func OpenDataFile(path string) (*DataFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, queueerr.IoError(err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, queueerr.IoError(err)
	}

	data, err := mmapRW(f, int(info.Size()))
	if err != nil {
		f.Close()
		return nil, queueerr.IoError(err)
	}

	return &DataFile{path: path, file: f, data: data}, nil
}

func mmapRW(f *os.File, size int) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	return unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

// Path returns the file's path.
func (d *DataFile) Path() string { return d.path }

// Size returns the size of the mapping (== the size of the underlying
// file).
func (d *DataFile) Size() uint64 { return uint64(len(d.data)) }

// WriteAt copies b into the mapping starting at offset. The mapping is
// always sized to the file, so this never partially writes.
func (d *DataFile) WriteAt(offset uint64, b []byte) error {
	if offset+uint64(len(b)) > uint64(len(d.data)) {
		return queueerr.InternalError("write past end of mapped data file")
	}
	copy(d.data[offset:], b)
	return nil
}

// ReadAt copies from the mapping into buf starting at offset.
func (d *DataFile) ReadAt(offset uint64, buf []byte) error {
	if offset+uint64(len(buf)) > uint64(len(d.data)) {
		return queueerr.InternalError("read past end of mapped data file")
	}
	copy(buf, d.data[offset:offset+uint64(len(buf))])
	return nil
}

// Flush syncs the entire mapping to disk. All flush modes currently reduce
// to a full flush; mode is accepted for forward compatibility with a future
// partial-flush optimization.
func (d *DataFile) Flush(_ FlushKind) error {
	if len(d.data) == 0 {
		return nil
	}
	if err := unix.Msync(d.data, unix.MS_SYNC); err != nil {
		return queueerr.IoError(err)
	}
	return nil
}

// FlushRange syncs only the page range covering [offset, offset+length).
// msync operates on whole pages, so the actual synced range may be larger
// than requested; this is harmless since it only re-syncs already-written
// bytes.
func (d *DataFile) FlushRange(offset, length uint64) error {
	if length == 0 || len(d.data) == 0 {
		return nil
	}
	pageSize := uint64(os.Getpagesize())
	start := (offset / pageSize) * pageSize
	end := offset + length
	if end > uint64(len(d.data)) {
		end = uint64(len(d.data))
	}
	if start >= end {
		return nil
	}
	if err := unix.Msync(d.data[start:end], unix.MS_SYNC); err != nil {
		return queueerr.IoError(err)
	}
	return nil
}

// Close unmaps the file and closes the underlying descriptor.
func (d *DataFile) Close() error {
	var err error
	if len(d.data) > 0 {
		err = unix.Munmap(d.data)
		d.data = nil
	}
	if cerr := d.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return queueerr.IoError(err)
	}
	return nil
}

// ReadOnlyDataFile is an immutable, memory-mapped view of a rolled data
// file. Any number of tailers may open the same file concurrently.
type ReadOnlyDataFile struct {
	path string
	file *os.File
	data []byte
}

// OpenReadOnlyDataFile opens path read-only and maps its full current
// length.
func OpenReadOnlyDataFile(path string) (*ReadOnlyDataFile, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0o444)
	if err != nil {
		return nil, queueerr.IoError(err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, queueerr.IoError(err)
	}

	var data []byte
	if info.Size() > 0 {
		data, err = unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
		if err != nil {
			f.Close()
			return nil, queueerr.IoError(err)
		}
	}

	return &ReadOnlyDataFile{path: path, file: f, data: data}, nil
}

// Path returns the file's path.
func (d *ReadOnlyDataFile) Path() string { return d.path }

// Size returns the mapped size.
func (d *ReadOnlyDataFile) Size() uint64 { return uint64(len(d.data)) }

// ReadAt copies from the mapping into buf starting at offset.
func (d *ReadOnlyDataFile) ReadAt(offset uint64, buf []byte) error {
	if offset+uint64(len(buf)) > uint64(len(d.data)) {
		return queueerr.InternalError("read past end of mapped data file")
	}
	copy(buf, d.data[offset:offset+uint64(len(buf))])
	return nil
}

// AsSlice returns a zero-copy view into the mapping covering
// [offset, offset+length). The slice is valid only as long as the
// ReadOnlyDataFile remains open; callers that need to retain it past a
// Close must copy it.
func (d *ReadOnlyDataFile) AsSlice(offset, length uint64) ([]byte, error) {
	if offset+length > uint64(len(d.data)) {
		return nil, queueerr.InternalError("slice past end of mapped data file")
	}
	return d.data[offset : offset+length], nil
}

// Close unmaps the file and closes the underlying descriptor.
func (d *ReadOnlyDataFile) Close() error {
	var err error
	if len(d.data) > 0 {
		err = unix.Munmap(d.data)
		d.data = nil
	}
	if cerr := d.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return queueerr.IoError(err)
	}
	return nil
}
