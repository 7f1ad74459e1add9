// Package async dispatches a batch of independent per-file items onto a bounded worker pool.
//
// ARCHITECTURE: the pool is domain-agnostic
// - Source enumerates items from a directory
// - Guard decides whether prior output already completes an item
// - Runner executes one item (ProcessRunner runs an external command)
// - FaultSink records failures and quarantines their inputs
// - WorkerPool bounds concurrency and aggregates outcomes into a Summary
package async

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/teranos/vsbatch/errors"
)

// Item is one unit of work: a single input file. Immutable once enumerated.
type Item struct {
	Path  string `json:"path"`  // Input file path (identity)
	Name  string `json:"name"`  // Base name without extension, keys the output artifacts
	Index int    `json:"index"` // 0-based position in the sorted batch
	Total int    `json:"total"` // Batch size, fixed before dispatch
}

// Position renders the 1-based "i/total" progress string
func (i Item) Position() string {
	return fmt.Sprintf("%d/%d", i.Index+1, i.Total)
}

// Artifacts are the two per-item outputs; both present is the completion predicate
type Artifacts struct {
	Primary string `json:"primary"` // <name>_out<ext>
	Log     string `json:"log"`     // <name>_log.txt, combined stdout/stderr
}

// Layout maps items to artifact paths under an output directory
type Layout struct {
	OutputDir string
	Ext       string // Extension of the primary artifact, with leading dot
}

// LogSuffix is appended to the item name to form the log artifact
const LogSuffix = "_log.txt"

// PrimarySuffix is appended to the item name (before the extension) to form the primary artifact
const PrimarySuffix = "_out"

// For returns the artifact paths of an item
func (l Layout) For(item Item) Artifacts {
	return Artifacts{
		Primary: filepath.Join(l.OutputDir, item.Name+PrimarySuffix+l.Ext),
		Log:     filepath.Join(l.OutputDir, item.Name+LogSuffix),
	}
}

// Source enumerates the input directory into a deterministic batch
type Source struct {
	Fs     afero.Fs
	Dir    string
	Ext    string // Extension filter with leading dot, e.g. ".pdbqt"
	Logger *zap.SugaredLogger
}

// Items returns every regular file directly under Dir whose name ends in Ext, in lexicographic
// path order, with index and total assigned. Hidden files are ignored.
// A missing directory is an empty batch, not an error.
func (s Source) Items() ([]Item, error) {
	entries, err := afero.ReadDir(s.Fs, s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			if s.Logger != nil {
				s.Logger.Warnw("Input directory does not exist, batch is empty", "path", s.Dir)
			}
			return []Item{}, nil
		}
		return nil, errors.Wrapf(err, "failed to list input directory %s", s.Dir)
	}

	var paths []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, s.Ext) {
			continue
		}
		paths = append(paths, filepath.Join(s.Dir, name))
	}
	sort.Strings(paths)

	items := make([]Item, len(paths))
	for i, p := range paths {
		items[i] = Item{
			Path:  p,
			Name:  BaseName(p),
			Index: i,
			Total: len(paths),
		}
	}
	return items, nil
}

// BaseName strips the directory and the final extension from a path
func BaseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
