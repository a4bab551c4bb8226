// Package seal implements the Seal Engine (spec.md §4.5): traverses a file
// tree, hashes every file, optionally composes directory hashes, and
// commits the result as the next generation — always committing before
// reporting any mismatch or missing-path failure, so the history stays a
// faithful record of what was actually found.
package seal

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/ascmhl/mhl/internal/hashutil"
	"github.com/ascmhl/mhl/internal/mhlmetrics"
	"github.com/ascmhl/mhl/pkg/mhl/hashformat"
	"github.com/ascmhl/mhl/pkg/mhl/historystore"
	"github.com/ascmhl/mhl/pkg/mhl/model"
	"github.com/ascmhl/mhl/pkg/mhl/session"
	"github.com/ascmhl/mhl/pkg/mhl/traverse"
)

// Options configures one seal run.
type Options struct {
	Format          hashformat.Format
	DirectoryHashes bool
	HistoryDirName  string
	Creator         model.CreatorInfo
	Now             time.Time
}

// Result is the outcome of one seal run.
type Result struct {
	Generation *model.Generation
	Metrics    mhlmetrics.Snapshot
	Mismatches []string
	Missing    []string
}

// VerificationFailed is returned (alongside a valid *Result, since the
// generation is always committed first) when any path's hash disagreed with
// its recorded value.
type VerificationFailed struct{ Paths []string }

func (e *VerificationFailed) Error() string {
	return fmt.Sprintf("verification failed for %d path(s)", len(e.Paths))
}

// CompletenessCheckFailed is returned when paths recorded in history were
// not found during traversal.
type CompletenessCheckFailed struct{ Paths []string }

func (e *CompletenessCheckFailed) Error() string {
	return fmt.Sprintf("completeness check failed: %d missing path(s)", len(e.Paths))
}

// Run seals root: it loads (or initializes) the history, hashes every file
// found by a post-order traversal, commits the resulting generation, and
// only then reports verification/completeness failures.
func Run(root string, opts Options) (*Result, error) {
	var storeOpts []historystore.Option
	if opts.HistoryDirName != "" {
		storeOpts = append(storeOpts, historystore.WithHistoryDirName(opts.HistoryDirName))
	}
	store, err := historystore.LoadFromPath(root, storeOpts...)
	if err != nil {
		return nil, err
	}

	absRoot := store.Root()

	expected := make(map[string]struct{})
	for _, p := range store.ExpectedPaths() {
		expected[p] = struct{}{}
	}

	sess := session.New(store, opts.Format, opts.Creator, opts.Now)
	metrics := mhlmetrics.New()

	dirHashes := make(map[string]string) // absolute dir path -> composed hash
	var mismatches []string

	walkErr := traverse.Walk(absRoot, store.HistoryDirName(), func(node traverse.Node) error {
		var dirCtx *hashutil.DirectoryHashContext
		if opts.DirectoryHashes {
			var ctxErr error
			dirCtx, ctxErr = hashutil.NewDirectoryHashContext(opts.Format)
			if ctxErr != nil {
				return ctxErr
			}
		}

		for _, child := range node.Children {
			childAbs := filepath.Join(node.Path, child.Name)

			if child.IsDir {
				hash, ok := dirHashes[childAbs]
				if !ok {
					// Directory hashes are disabled for this run:
					// nothing to compose.
					continue
				}
				delete(dirHashes, childAbs)
				if dirCtx != nil {
					if err := dirCtx.Append(hash, child.Name); err != nil {
						return err
					}
				}
				continue
			}

			relPath, err := filepath.Rel(absRoot, childAbs)
			if err != nil {
				return err
			}
			relPath = filepath.ToSlash(relPath)

			start := time.Now()
			res, err := sess.ObserveFile(relPath, childAbs)
			metrics.ObserveHashLatency(time.Since(start))
			if err != nil {
				return err
			}
			delete(expected, relPath)

			switch res.Observation {
			case session.New:
				metrics.AddNew(1)
			case session.Verified:
				metrics.AddVerified(1)
			case session.Mismatched:
				metrics.AddMismatched(1)
				mismatches = append(mismatches, relPath)
			}

			if dirCtx != nil {
				value, _ := res.MediaHash.Hash(opts.Format)
				if err := dirCtx.Append(value.Value, child.Name); err != nil {
					return err
				}
			}
		}

		var hash string
		if dirCtx != nil {
			var finalizeErr error
			hash, finalizeErr = dirCtx.Finalize()
			if finalizeErr != nil {
				return finalizeErr
			}
			dirHashes[node.Path] = hash
		}

		if node.Path == absRoot {
			return nil
		}

		// A directory MediaHash is always recorded (spec.md §3: "Directory
		// MediaHashes may have zero entries, when directory hashes
		// disabled") — only the hash entry itself is conditional on -d.
		relDir, err := filepath.Rel(absRoot, node.Path)
		if err != nil {
			return err
		}
		relDir = filepath.ToSlash(relDir)
		dres, err := sess.ObserveDirectory(relDir, hash, dirCtx != nil)
		if err != nil {
			return err
		}
		delete(expected, relDir)
		switch dres.Observation {
		case session.New:
			metrics.AddNew(1)
		case session.Verified:
			metrics.AddVerified(1)
		case session.Mismatched:
			metrics.AddMismatched(1)
			mismatches = append(mismatches, relDir)
		}
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	var rootHashes []hashformat.Entry
	if opts.DirectoryHashes {
		rootHashes = []hashformat.Entry{{Format: opts.Format, Value: dirHashes[absRoot]}}
	}

	gen, err := sess.Commit(rootHashes)
	if err != nil {
		return nil, err
	}
	metrics.AddMissing(uint64(len(expected)))

	result := &Result{Generation: gen, Metrics: metrics.Snapshot(), Mismatches: mismatches}
	missing := make([]string, 0, len(expected))
	for p := range expected {
		missing = append(missing, p)
	}
	result.Missing = missing

	// spec.md §4.5 lists the completeness check (step 5) before the
	// verification check (step 6); a run that fails both reports
	// completeness first.
	if len(missing) > 0 {
		return result, &CompletenessCheckFailed{Paths: missing}
	}
	if len(mismatches) > 0 {
		return result, &VerificationFailed{Paths: mismatches}
	}
	return result, nil
}
