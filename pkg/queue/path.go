package queue

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ridgepath/queue/internal/queueerr"
)

const (
	dataExt  = ".data"
	indexExt = ".index"
)

// timeBasedDir returns base/YYYY/MM/DD for the given UTC time.
func timeBasedDir(base string, t time.Time) string {
	t = t.UTC()
	return filepath.Join(base,
		fmt.Sprintf("%04d", t.Year()),
		fmt.Sprintf("%02d", t.Month()),
		fmt.Sprintf("%02d", t.Day()),
	)
}

// dataFileName returns YYYYMMDD-NNNN.data for the given UTC time and file
// sequence.
func dataFileName(t time.Time, fileSequence uint32) string {
	return stemName(t, fileSequence) + dataExt
}

// indexFileName returns YYYYMMDD-NNNN.index for the given UTC time and file
// sequence.
func indexFileName(t time.Time, fileSequence uint32) string {
	return stemName(t, fileSequence) + indexExt
}

func stemName(t time.Time, fileSequence uint32) string {
	t = t.UTC()
	return fmt.Sprintf("%04d%02d%02d-%04d", t.Year(), t.Month(), t.Day(), fileSequence)
}

// dataFilePath returns the full path to a data file for the given base,
// creation time and file sequence.
func dataFilePath(base string, t time.Time, fileSequence uint32) string {
	return filepath.Join(timeBasedDir(base, t), dataFileName(t, fileSequence))
}

// indexFilePath returns the full path of the index file that accompanies
// dataFilePath for the same arguments.
func indexFilePath(base string, t time.Time, fileSequence uint32) string {
	return filepath.Join(timeBasedDir(base, t), indexFileName(t, fileSequence))
}

// indexPathForDataPath derives the sibling index path of a data file path,
// by replacing its extension.
func indexPathForDataPath(dataPath string) string {
	return strings.TrimSuffix(dataPath, dataExt) + indexExt
}

// scanDataFiles recursively walks base and returns the sorted (lexically,
// which matches chronological order) list of every file with a ".data"
// extension. A missing base directory yields an empty list, not an error.
func scanDataFiles(base string) ([]string, error) {
	if _, err := os.Stat(base); os.IsNotExist(err) {
		return nil, nil
	}

	var out []string
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return queueerr.IoError(err)
		}
		if d.IsDir() {
			return nil
		}
		if filepath.Ext(path) == dataExt {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(out)
	return out, nil
}
