// Package check implements the Check Engine (spec.md §4.6): a read-only
// traversal that re-hashes every file in the format of that file's original
// hash entry and reports mismatches, new files and missing paths. It never
// writes to the history.
package check

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/ascmhl/mhl/internal/hashutil"
	"github.com/ascmhl/mhl/internal/mhlmetrics"
	"github.com/ascmhl/mhl/pkg/mhl/historystore"
	"github.com/ascmhl/mhl/pkg/mhl/traverse"
)

// Options configures one check run.
type Options struct {
	HistoryDirName string
}

// Result is the outcome of one check run. Mismatched, New and Missing may
// all be non-empty simultaneously — a single run reports everything it
// found, not just the first failure encountered.
type Result struct {
	Mismatched []string
	New        []string
	Missing    []string
	Metrics    mhlmetrics.Snapshot
}

// Failure reports every anomaly a check run found. It is returned alongside
// a valid *Result whenever Mismatched, New or Missing is non-empty.
type Failure struct {
	Mismatched []string
	New        []string
	Missing    []string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("check found %d mismatch(es), %d new file(s), %d missing path(s)",
		len(f.Mismatched), len(f.New), len(f.Missing))
}

// NoHistory is returned when root has no recorded generations to check
// against (spec.md §4.6 requires at least one).
type NoHistory struct{ Root string }

func (e *NoHistory) Error() string { return fmt.Sprintf("no mhl history found at %s", e.Root) }

// Run checks root against its recorded history.
func Run(root string, opts Options) (*Result, error) {
	var storeOpts []historystore.Option
	storeOpts = append(storeOpts, historystore.ReadOnly())
	if opts.HistoryDirName != "" {
		storeOpts = append(storeOpts, historystore.WithHistoryDirName(opts.HistoryDirName))
	}
	store, err := historystore.LoadFromPath(root, storeOpts...)
	if err != nil {
		return nil, err
	}
	if len(store.Generations()) == 0 {
		return nil, &NoHistory{Root: root}
	}

	absRoot := store.Root()

	expected := make(map[string]struct{})
	for _, p := range store.ExpectedPaths() {
		expected[p] = struct{}{}
	}

	metrics := mhlmetrics.New()
	var mismatched, newFiles []string

	walkErr := traverse.Walk(absRoot, store.HistoryDirName(), func(node traverse.Node) error {
		for _, child := range node.Children {
			childAbs := filepath.Join(node.Path, child.Name)
			relPath, err := filepath.Rel(absRoot, childAbs)
			if err != nil {
				return err
			}
			relPath = filepath.ToSlash(relPath)

			if child.IsDir {
				// A directory's MediaHash may carry no hash entry at all
				// (spec.md §3, when directory hashes were disabled at seal
				// time), so there is nothing to re-hash here; its continued
				// presence on disk is enough to satisfy the completeness
				// check for this path.
				delete(expected, relPath)
				continue
			}

			delete(expected, relPath)

			subStore, subRel, err := store.FindHistoryFor(relPath)
			if err != nil {
				return err
			}
			original, ok := subStore.FindOriginalHashEntry(subRel)
			if !ok {
				newFiles = append(newFiles, relPath)
				metrics.AddNew(1)
				continue
			}

			start := time.Now()
			current, err := hashutil.FileHash(original.Format, childAbs)
			metrics.ObserveHashLatency(time.Since(start))
			if err != nil {
				return err
			}
			if current == original.Value {
				metrics.AddVerified(1)
			} else {
				mismatched = append(mismatched, relPath)
				metrics.AddMismatched(1)
			}
		}
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	missing := make([]string, 0, len(expected))
	for p := range expected {
		missing = append(missing, p)
	}
	metrics.AddMissing(uint64(len(missing)))

	result := &Result{Mismatched: mismatched, New: newFiles, Missing: missing, Metrics: metrics.Snapshot()}
	if len(mismatched) > 0 || len(newFiles) > 0 || len(missing) > 0 {
		return result, &Failure{Mismatched: mismatched, New: newFiles, Missing: missing}
	}
	return result, nil
}
