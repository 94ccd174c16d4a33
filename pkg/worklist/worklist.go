// Package worklist enumerates input files for batch processing and tracks
// their per-run status.
package worklist

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sko/microbatch/pkg/errs"
)

// Status is the processing state of a single worklist item
type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusError     Status = "error"
)

// Item is one input file queued for processing. Items are created by Scan
// and mutated only through MarkProcessed and MarkError; a status never
// moves backward within a run.
type Item struct {
	SourcePath   string `json:"source_path"`
	OutputPath   string `json:"output_path,omitempty"`
	Status       Status `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// MarkProcessed records a successful result. Calls on an item that already
// left the pending state are ignored.
func (it *Item) MarkProcessed(outputPath string) {
	if it.Status != StatusPending {
		return
	}
	it.Status = StatusProcessed
	it.OutputPath = outputPath
}

// MarkError records a per-item failure with its human-readable message.
// Calls on an item that already left the pending state are ignored.
func (it *Item) MarkError(err error) {
	if it.Status != StatusPending {
		return
	}
	it.Status = StatusError
	if err != nil {
		it.ErrorMessage = err.Error()
	} else {
		it.ErrorMessage = "unknown error"
	}
}

// Filter selects which files inside a folder become worklist items
type Filter struct {
	// Extensions are matched case-insensitively without the dot, e.g.
	// "tif". An empty slice admits every extension.
	Extensions []string
	// Pattern is an optional filepath.Match glob applied to the base name.
	Pattern string
	// Recursive walks subdirectories when set.
	Recursive bool
}

func (f Filter) matches(name string) bool {
	if len(f.Extensions) > 0 {
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
		found := false
		for _, want := range f.Extensions {
			if ext == strings.TrimPrefix(strings.ToLower(want), ".") {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if f.Pattern != "" {
		ok, err := filepath.Match(f.Pattern, filepath.Base(name))
		if err != nil || !ok {
			return false
		}
	}

	return true
}

// Worklist is an ordered set of items discovered in one folder scan
type Worklist struct {
	Folder string
	Items  []*Item
}

// Len returns the number of items
func (w *Worklist) Len() int { return len(w.Items) }

// Counts returns how many items are in each status
func (w *Worklist) Counts() (pending, processed, failed int) {
	for _, it := range w.Items {
		switch it.Status {
		case StatusPending:
			pending++
		case StatusProcessed:
			processed++
		case StatusError:
			failed++
		}
	}
	return
}

// Scan enumerates the files in folder that match filter and returns them as
// pending worklist items sorted by source path. It fails with a
// NotFoundError when the folder does not exist.
func Scan(folder string, filter Filter) (*Worklist, error) {
	folder = filepath.Clean(folder)

	info, err := os.Stat(folder)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errs.NotFoundError{Path: folder}
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, &errs.NotFoundError{Path: folder}
	}

	items := make([]*Item, 0, 64)
	err = filepath.WalkDir(folder, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if d.IsDir() {
			if path != folder && !filter.Recursive {
				return filepath.SkipDir
			}
			return nil
		}

		// Skip the hidden temp files left behind by an interrupted run.
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		if !filter.matches(d.Name()) {
			return nil
		}

		items = append(items, &Item{
			SourcePath: path,
			Status:     StatusPending,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	// WalkDir order is already lexical per directory; sorting the full
	// paths keeps the run order stable across platforms.
	sort.Slice(items, func(i, j int) bool { return items[i].SourcePath < items[j].SourcePath })

	return &Worklist{Folder: folder, Items: items}, nil
}
