package queue

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexWriterMaybeWriteEntryInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.index")
	w, err := CreateIndexWriter(path, 10)
	require.NoError(t, err)

	// First entry is always written, regardless of interval.
	require.NoError(t, w.MaybeWriteEntry(0, 0))
	// Within the interval: skipped.
	require.NoError(t, w.MaybeWriteEntry(5, 100))
	// At the interval boundary: written.
	require.NoError(t, w.MaybeWriteEntry(10, 200))
	// Past the boundary again: written.
	require.NoError(t, w.MaybeWriteEntry(21, 300))

	require.NoError(t, w.Flush())
	require.NoError(t, w.Close())

	r, err := OpenIndexReader(path)
	require.NoError(t, err)
	assert.Len(t, r.entries, 3)
	assert.Equal(t, indexEntry{sequence: 0, offset: 0}, r.entries[0])
	assert.Equal(t, indexEntry{sequence: 10, offset: 200}, r.entries[1])
	assert.Equal(t, indexEntry{sequence: 21, offset: 300}, r.entries[2])
}

func TestIndexReaderFindOffsetForSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.index")
	w, err := CreateIndexWriter(path, 10)
	require.NoError(t, err)
	require.NoError(t, w.MaybeWriteEntry(0, 0))
	require.NoError(t, w.MaybeWriteEntry(10, 100))
	require.NoError(t, w.MaybeWriteEntry(20, 200))
	require.NoError(t, w.Flush())
	require.NoError(t, w.Close())

	r, err := OpenIndexReader(path)
	require.NoError(t, err)

	seq, off, ok := r.FindOffsetForSequence(15)
	require.True(t, ok)
	assert.Equal(t, uint64(10), seq)
	assert.Equal(t, uint64(100), off)

	seq, off, ok = r.FindOffsetForSequence(0)
	require.True(t, ok)
	assert.Equal(t, uint64(0), seq)
	assert.Equal(t, uint64(0), off)

	seq, off, ok = r.FindOffsetForSequence(999)
	require.True(t, ok)
	assert.Equal(t, uint64(20), seq)
	assert.Equal(t, uint64(200), off)
}

func TestIndexReaderEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.index")
	w, err := CreateIndexWriter(path, 10)
	require.NoError(t, err)
	require.NoError(t, w.Flush())
	require.NoError(t, w.Close())

	r, err := OpenIndexReader(path)
	require.NoError(t, err)

	_, _, ok := r.FindOffsetForSequence(0)
	assert.False(t, ok)
}

func TestOpenIndexWriterContinuesAfterLastEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.index")
	w, err := CreateIndexWriter(path, 10)
	require.NoError(t, err)
	require.NoError(t, w.MaybeWriteEntry(0, 0))
	require.NoError(t, w.MaybeWriteEntry(10, 100))
	require.NoError(t, w.Flush())
	require.NoError(t, w.Close())

	w2, err := OpenIndexWriter(path)
	require.NoError(t, err)
	assert.True(t, w2.haveLastIndexed)
	assert.Equal(t, uint64(10), w2.lastIndexed)
	assert.Equal(t, uint64(2), w2.entryCount)

	// Still within the interval of the recalled last-indexed sequence.
	require.NoError(t, w2.MaybeWriteEntry(15, 150))
	require.NoError(t, w2.MaybeWriteEntry(25, 250))
	require.NoError(t, w2.Flush())
	require.NoError(t, w2.Close())

	r, err := OpenIndexReader(path)
	require.NoError(t, err)
	assert.Len(t, r.entries, 3)
}
