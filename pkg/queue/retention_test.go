package queue

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionRetainedNoOptionsKeepsEverything(t *testing.T) {
	files := []FileEntry{{Path: "a"}, {Path: "b"}}
	keep, doomed := partitionRetained(files, RetentionOptions{})
	assert.Equal(t, files, keep)
	assert.Nil(t, doomed)
}

func TestPartitionRetainedMaxFilesFloor(t *testing.T) {
	files := []FileEntry{{Path: "a"}, {Path: "b"}, {Path: "c"}}
	keep, doomed := partitionRetained(files, RetentionOptions{MaxFiles: 2})
	assert.Equal(t, []FileEntry{{Path: "b"}, {Path: "c"}}, keep)
	assert.Equal(t, []FileEntry{{Path: "a"}}, doomed)
}

func TestPartitionRetainedMaxFilesExceedingLength(t *testing.T) {
	files := []FileEntry{{Path: "a"}, {Path: "b"}}
	keep, doomed := partitionRetained(files, RetentionOptions{MaxFiles: 10})
	assert.Equal(t, files, keep)
	assert.Nil(t, doomed)
}

func TestPartitionRetainedMaxAge(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.data")
	newPath := filepath.Join(dir, "new.data")
	require.NoError(t, os.WriteFile(oldPath, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(newPath, []byte("x"), 0o644))

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(oldPath, old, old))

	files := []FileEntry{{Path: oldPath}, {Path: newPath}}
	keep, doomed := partitionRetained(files, RetentionOptions{MaxAge: 24 * time.Hour})
	require.Len(t, doomed, 1)
	assert.Equal(t, oldPath, doomed[0].Path)
	require.Len(t, keep, 1)
	assert.Equal(t, newPath, keep[0].Path)
}

func TestSweepOnFreshQueueIsNoOp(t *testing.T) {
	base := t.TempDir()
	q, err := Open(testConfig(base))
	require.NoError(t, err)
	defer func() { _ = q.Shutdown() }()

	removed, err := q.Sweep(RetentionOptions{MaxFiles: 1})
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestSweepNeverTouchesActiveFile(t *testing.T) {
	base := t.TempDir()
	cfg := testConfig(base)
	cfg.FileSize = 1024
	cfg.RollStrategy = RollByCount(5)

	q, err := Open(cfg)
	require.NoError(t, err)
	appender := q.CreateAppender()
	for i := 0; i < 7; i++ {
		_, err := appender.Append([]byte("x"))
		require.NoError(t, err)
	}
	require.NoError(t, q.Shutdown())

	removed, err := q.Sweep(RetentionOptions{MaxFiles: 0, MaxAge: time.Nanosecond})
	require.NoError(t, err)
	assert.Equal(t, 1, removed) // only the single rolled file, not the active one

	files, err := scanDataFiles(base)
	require.NoError(t, err)
	assert.Len(t, files, 1) // the active file remains
}
