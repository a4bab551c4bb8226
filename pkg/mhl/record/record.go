// Package record implements the Record Engine (spec.md §4.7): hashes an
// explicit list of file or directory paths and commits them as the next
// generation, without enforcing completeness against the rest of the
// history (files not listed are simply not touched this run).
package record

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ascmhl/mhl/internal/mhlmetrics"
	"github.com/ascmhl/mhl/pkg/mhl/hashformat"
	"github.com/ascmhl/mhl/pkg/mhl/historystore"
	"github.com/ascmhl/mhl/pkg/mhl/model"
	"github.com/ascmhl/mhl/pkg/mhl/session"
	"github.com/ascmhl/mhl/pkg/mhl/traverse"
)

// ErrNoPaths is returned when Run is called with no paths, matching
// original_source/mhl/commands.py:record's "no file paths given" usage error.
var ErrNoPaths = errors.New("record: at least one path is required")

// Options configures one record run.
type Options struct {
	Format         hashformat.Format
	HistoryDirName string
	Creator        model.CreatorInfo
	Now            time.Time
}

// Result is the outcome of one record run.
type Result struct {
	Generation *model.Generation
	Metrics    mhlmetrics.Snapshot
	Mismatches []string
}

// VerificationFailed is returned (alongside a valid *Result, since the
// generation is always committed first) when any recorded path's hash
// disagreed with its previously recorded value.
type VerificationFailed struct{ Paths []string }

func (e *VerificationFailed) Error() string {
	return fmt.Sprintf("verification failed for %d path(s)", len(e.Paths))
}

// Run hashes each of paths (files are hashed directly; directories are
// walked post-order lexicographically) and commits them as the next
// generation of the history rooted at root.
func Run(root string, paths []string, opts Options) (*Result, error) {
	if len(paths) == 0 {
		return nil, ErrNoPaths
	}

	var storeOpts []historystore.Option
	if opts.HistoryDirName != "" {
		storeOpts = append(storeOpts, historystore.WithHistoryDirName(opts.HistoryDirName))
	}
	store, err := historystore.LoadFromPath(root, storeOpts...)
	if err != nil {
		return nil, err
	}
	absRoot := store.Root()

	sess := session.New(store, opts.Format, opts.Creator, opts.Now)
	metrics := mhlmetrics.New()
	var mismatches []string

	observe := func(absPath string) error {
		relPath, err := filepath.Rel(absRoot, absPath)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		start := time.Now()
		res, err := sess.ObserveFile(relPath, absPath)
		metrics.ObserveHashLatency(time.Since(start))
		if err != nil {
			return err
		}
		switch res.Observation {
		case session.New:
			metrics.AddNew(1)
		case session.Verified:
			metrics.AddVerified(1)
		case session.Mismatched:
			metrics.AddMismatched(1)
			mismatches = append(mismatches, relPath)
		}
		return nil
	}

	for _, p := range paths {
		absPath, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}

		if !info.IsDir() {
			if err := observe(absPath); err != nil {
				return nil, err
			}
			continue
		}

		walkErr := traverse.Walk(absPath, store.HistoryDirName(), func(node traverse.Node) error {
			for _, child := range node.Children {
				if child.IsDir {
					continue
				}
				if err := observe(filepath.Join(node.Path, child.Name)); err != nil {
					return err
				}
			}
			return nil
		})
		if walkErr != nil {
			return nil, walkErr
		}
	}

	gen, err := sess.Commit(nil)
	if err != nil {
		return nil, err
	}

	result := &Result{Generation: gen, Metrics: metrics.Snapshot(), Mismatches: mismatches}
	if len(mismatches) > 0 {
		return result, &VerificationFailed{Paths: mismatches}
	}
	return result, nil
}
