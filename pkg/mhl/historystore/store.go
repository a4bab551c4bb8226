// Package historystore loads, indexes and persists the on-disk ASC MHL
// history for a file tree: the ordered chain of generation manifests under
// its history directory, a derived path index for fast lookups, and any
// nested histories rooted inside subdirectories (spec.md §3-§4).
package historystore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ascmhl/mhl/pkg/mhl/hashformat"
	"github.com/ascmhl/mhl/pkg/mhl/model"
	"github.com/ascmhl/mhl/pkg/mhl/xmlmanifest"
)

// DefaultHistoryDirName is the ASC MHL history directory name used unless
// overridden (spec.md §4.2). LoadFromPath replaces it with the value of the
// MHL_HISTORY_DIR environment variable when that is set, and a
// WithHistoryDirName option overrides both.
const DefaultHistoryDirName = "ascmhl"

const chainFileName = "chain.txt"

const nestedCacheSize = 32

// Option configures LoadFromPath.
type Option func(*loadConfig)

type loadConfig struct {
	historyDirName string
	readOnly       bool
}

// WithHistoryDirName overrides the history directory name (default "ascmhl").
func WithHistoryDirName(name string) Option {
	return func(c *loadConfig) { c.historyDirName = name }
}

// ReadOnly marks the load as inspection-only: the Check Engine uses this so
// a stale or missing derived index is rebuilt in memory but never written,
// and a missing history directory is never created.
func ReadOnly() Option {
	return func(c *loadConfig) { c.readOnly = true }
}

// Store is a loaded history rooted at one filesystem path, along with its
// derived path index and any nested histories discovered beneath it.
type Store struct {
	history        *model.History
	root           string
	historyDirName string
	ascmhlDir      string
	readOnly       bool

	index map[string]pathRecord

	nestedRoots map[string]string // relative path -> absolute path
	nestedCache *lru.Cache[string, *Store]
}

// LoadFromPath loads (or initializes, if absent and not ReadOnly) the
// history rooted at root.
func LoadFromPath(root string, opts ...Option) (*Store, error) {
	cfg := loadConfig{historyDirName: DefaultHistoryDirName}
	if env := os.Getenv("MHL_HISTORY_DIR"); env != "" {
		cfg.historyDirName = env
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve history root: %w", err)
	}
	ascmhlDir := filepath.Join(absRoot, cfg.historyDirName)

	gens, err := loadGenerations(ascmhlDir)
	if err != nil {
		return nil, err
	}

	idx, err := loadOrBuildIndex(ascmhlDir, gens, cfg.readOnly)
	if err != nil {
		return nil, err
	}

	nestedRoots, err := discoverNestedRoots(absRoot, cfg.historyDirName)
	if err != nil {
		return nil, fmt.Errorf("discover nested histories under %s: %w", absRoot, err)
	}
	byRel := make(map[string]string, len(nestedRoots))
	for _, abs := range nestedRoots {
		rel, err := filepath.Rel(absRoot, abs)
		if err != nil {
			return nil, err
		}
		byRel[filepath.ToSlash(rel)] = abs
	}

	cache, err := lru.New[string, *Store](nestedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create nested history cache: %w", err)
	}

	return &Store{
		history:        &model.History{RootPath: absRoot, Generations: gens},
		root:           absRoot,
		historyDirName: cfg.historyDirName,
		ascmhlDir:      ascmhlDir,
		readOnly:       cfg.readOnly,
		index:          idx,
		nestedRoots:    byRel,
		nestedCache:    cache,
	}, nil
}

func loadGenerations(ascmhlDir string) ([]model.Generation, error) {
	entries, err := os.ReadDir(ascmhlDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read history directory %s: %w", ascmhlDir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".mhl" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	gens := make([]model.Generation, 0, len(names))
	for _, name := range names {
		manifestPath := filepath.Join(ascmhlDir, name)
		data, ok := sharedManifestCache.get(manifestPath)
		if !ok {
			var err error
			data, err = os.ReadFile(manifestPath)
			if err != nil {
				return nil, fmt.Errorf("read manifest %s: %w", name, err)
			}
			sharedManifestCache.put(manifestPath, data)
		}
		gen, err := xmlmanifest.Unmarshal(data)
		if err != nil {
			return nil, err
		}
		gens = append(gens, *gen)
	}
	sort.Slice(gens, func(i, j int) bool { return gens[i].Number < gens[j].Number })
	return gens, nil
}

// Root returns the absolute filesystem path this history is rooted at.
func (s *Store) Root() string { return s.root }

// HistoryDirName returns the history directory name in effect for this store.
func (s *Store) HistoryDirName() string { return s.historyDirName }

// Generations returns the loaded generation chain, oldest first.
func (s *Store) Generations() []model.Generation { return s.history.Generations }

// NextGenerationNumber returns the number the next Persist call should use.
func (s *Store) NextGenerationNumber() int { return s.history.NextGenerationNumber() }

// ExpectedPaths returns the set of relative paths the history believes
// should exist, as of the most recent generation that mentioned each path
// (paths are never removed from this set by later generations, mirroring
// spec.md's completeness check: a file absent from disk but present in
// history is "missing", never silently forgotten).
func (s *Store) ExpectedPaths() []string {
	paths := make([]string, 0, len(s.index))
	for p := range s.index {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// HasRecordedPath reports whether relPath was recorded in any prior
// generation, even one that carried no hash entry at all (a directory
// MediaHash recorded while directory hashes were disabled, spec.md §3).
func (s *Store) HasRecordedPath(relPath string) bool {
	_, ok := s.index[relPath]
	return ok
}

// FindOriginalHashEntry returns the first hash format+value ever recorded
// for relPath in this store (not descending into nested histories).
func (s *Store) FindOriginalHashEntry(relPath string) (hashformat.Entry, bool) {
	rec, ok := s.index[relPath]
	if !ok || rec.OriginalFormat == "" {
		return hashformat.Entry{}, false
	}
	return hashformat.Entry{Format: rec.OriginalFormat, Value: rec.OriginalValue}, true
}

// ExistingFormats returns the set of hash formats ever recorded for relPath.
func (s *Store) ExistingFormats(relPath string) map[hashformat.Format]struct{} {
	rec, ok := s.index[relPath]
	out := make(map[hashformat.Format]struct{}, len(rec.Latest))
	if !ok {
		return out
	}
	for f := range rec.Latest {
		out[f] = struct{}{}
	}
	return out
}

// LatestHashEntry returns the most recently recorded value for relPath in
// format, if any generation has recorded that format.
func (s *Store) LatestHashEntry(relPath string, format hashformat.Format) (hashformat.Entry, bool) {
	rec, ok := s.index[relPath]
	if !ok {
		return hashformat.Entry{}, false
	}
	v, ok := rec.Latest[format]
	if !ok {
		return hashformat.Entry{}, false
	}
	return hashformat.Entry{Format: format, Value: v}, true
}

// FindHistoryFor returns the Store responsible for relPath and the path
// relative to that store's own root: either this store, or a nested store
// loaded (and cached) on demand when relPath falls under a nested history's
// root (spec.md §4.2's nested-history lookup).
func (s *Store) FindHistoryFor(relPath string) (*Store, string, error) {
	nestedRel, ok := nestedRootFor(s.nestedRoots, relPath)
	if !ok {
		return s, relPath, nil
	}

	nested, err := s.nestedStore(nestedRel)
	if err != nil {
		return nil, "", err
	}

	inner := relPath[len(nestedRel):]
	inner = trimLeadingSlash(inner)
	return nested.FindHistoryFor(inner)
}

func trimLeadingSlash(s string) string {
	if len(s) > 0 && s[0] == '/' {
		return s[1:]
	}
	return s
}

func (s *Store) nestedStore(rel string) (*Store, error) {
	if cached, ok := s.nestedCache.Get(rel); ok {
		return cached, nil
	}

	var opts []Option
	opts = append(opts, WithHistoryDirName(s.historyDirName))
	if s.readOnly {
		opts = append(opts, ReadOnly())
	}
	nested, err := LoadFromPath(s.nestedRoots[rel], opts...)
	if err != nil {
		return nil, fmt.Errorf("load nested history at %s: %w", rel, err)
	}
	s.nestedCache.Add(rel, nested)
	return nested, nil
}

// Persist writes gen as the next manifest file, appends it to the chain
// file, and folds it into this store's in-memory history and index. The
// manifest is written atomically (temp file + fsync + rename) so a crash
// mid-write cannot leave a corrupt generation on disk (spec.md §9).
func (s *Store) Persist(gen *model.Generation, when time.Time) error {
	if s.readOnly {
		return fmt.Errorf("historystore: Persist called on a read-only store")
	}

	if err := os.MkdirAll(s.ascmhlDir, 0o755); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}

	data, err := xmlmanifest.Marshal(gen)
	if err != nil {
		return err
	}

	name := manifestFileName(filepath.Base(s.root), gen.Number, when)
	finalPath := filepath.Join(s.ascmhlDir, name)
	sharedManifestCache.put(finalPath, data)
	if err := writeFileAtomic(finalPath, data); err != nil {
		return err
	}

	digest, err := xmlmanifest.ManifestDigest(data)
	if err != nil {
		return err
	}
	chainPath := filepath.Join(s.ascmhlDir, chainFileName)
	if err := xmlmanifest.AppendChainEntry(chainPath, xmlmanifest.ChainEntry{
		Number:       gen.Number,
		Filename:     name,
		ManifestHash: digest,
	}); err != nil {
		return err
	}

	s.history.Generations = append(s.history.Generations, *gen)
	s.index = buildIndex(s.history.Generations)
	if err := persistIndex(s.ascmhlDir, s.index, len(s.history.Generations)); err != nil {
		return fmt.Errorf("persist history index: %w", err)
	}
	return nil
}

func manifestFileName(rootBase string, number int, when time.Time) string {
	return fmt.Sprintf("%s_%s_%04d.mhl", rootBase, when.Format("2006-01-02_150405"), number)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".mhl-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp manifest: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp manifest: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename manifest into place: %w", err)
	}
	return nil
}
