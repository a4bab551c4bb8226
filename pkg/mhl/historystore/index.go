package historystore

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/pebble"

	"github.com/ascmhl/mhl/pkg/mhl/hashformat"
	"github.com/ascmhl/mhl/pkg/mhl/model"
)

// pathRecord is the derived, per-path summary the index caches so
// FindOriginalHashEntry, ExistingFormats and the cross-format verification
// tie-break don't rescan every generation on every lookup.
type pathRecord struct {
	OriginalFormat  hashformat.Format
	OriginalValue   string
	Latest          map[hashformat.Format]string // format -> most recently recorded value
	FirstGeneration int
}

const (
	indexDirName = ".mhlindex"
	metaKey      = "m\x00throughgen"
	pathKeyPfx   = "p\x00"
)

// buildIndex folds a history's generations, oldest first, into the
// first-hash-wins / all-formats-seen summary described in spec.md §4.2.
func buildIndex(gens []model.Generation) map[string]pathRecord {
	idx := make(map[string]pathRecord, len(gens))
	for _, gen := range gens {
		for _, e := range gen.Entries {
			rec, seen := idx[e.Path]
			if !seen {
				var of hashformat.Format
				var ov string
				if len(e.Hashes) > 0 {
					of, ov = e.Hashes[0].Format, e.Hashes[0].Value
				}
				rec = pathRecord{OriginalFormat: of, OriginalValue: ov, FirstGeneration: gen.Number, Latest: map[hashformat.Format]string{}}
			}
			for _, h := range e.Hashes {
				rec.Latest[h.Format] = h.Value
			}
			idx[e.Path] = rec
		}
	}
	return idx
}

// loadOrBuildIndex opens the pebble-backed derived index at ascmhlDir and
// returns an up-to-date path index for gens. The on-disk index is keyed by
// the number of generations it was built through; any mismatch with
// len(gens) means a generation was added since the index was last written,
// and the index is rebuilt from gens in memory. When readOnly is true (the
// Check Engine never writes), a stale or absent index is rebuilt in memory
// only and the on-disk copy is left untouched.
func loadOrBuildIndex(ascmhlDir string, gens []model.Generation, readOnly bool) (map[string]pathRecord, error) {
	dbPath := filepath.Join(ascmhlDir, indexDirName)

	if readOnly {
		if _, err := os.Stat(dbPath); err != nil {
			// No index on disk to open read-only: build in memory and leave
			// the filesystem untouched, including ascmhlDir itself.
			return buildIndex(gens), nil
		}
	}

	opts := &pebble.Options{}
	if readOnly {
		opts.ReadOnly = true
	}

	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		// No index yet (common for a fresh or read-only-inspected history):
		// fall back to an in-memory build, persisting it only if allowed.
		idx := buildIndex(gens)
		if !readOnly {
			if err := persistIndex(ascmhlDir, idx, len(gens)); err != nil {
				return nil, fmt.Errorf("persist history index: %w", err)
			}
		}
		return idx, nil
	}
	defer db.Close()

	through, ok, err := readMeta(db)
	if err != nil {
		return nil, fmt.Errorf("read history index metadata: %w", err)
	}
	if ok && through == len(gens) {
		idx, err := readAllRecords(db)
		if err != nil {
			return nil, fmt.Errorf("read history index: %w", err)
		}
		return idx, nil
	}

	idx := buildIndex(gens)
	if readOnly {
		return idx, nil
	}
	if err := writeIndex(db, idx, len(gens)); err != nil {
		return nil, fmt.Errorf("rebuild history index: %w", err)
	}
	return idx, nil
}

func persistIndex(ascmhlDir string, idx map[string]pathRecord, through int) error {
	dbPath := filepath.Join(ascmhlDir, indexDirName)
	db, err := pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return err
	}
	defer db.Close()
	return writeIndex(db, idx, through)
}

func writeIndex(db *pebble.DB, idx map[string]pathRecord, through int) error {
	b := db.NewBatch()
	defer b.Close()

	for path, rec := range idx {
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
			return err
		}
		if err := b.Set([]byte(pathKeyPfx+path), buf.Bytes(), nil); err != nil {
			return err
		}
	}
	meta := make([]byte, 8)
	binary.BigEndian.PutUint64(meta, uint64(through))
	if err := b.Set([]byte(metaKey), meta, nil); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

func readMeta(db *pebble.DB) (int, bool, error) {
	val, closer, err := db.Get([]byte(metaKey))
	if err != nil {
		if err == pebble.ErrNotFound {
			return 0, false, nil
		}
		return 0, false, err
	}
	defer closer.Close()
	if len(val) != 8 {
		return 0, false, nil
	}
	return int(binary.BigEndian.Uint64(val)), true, nil
}

func readAllRecords(db *pebble.DB) (map[string]pathRecord, error) {
	idx := make(map[string]pathRecord)
	lower := []byte(pathKeyPfx)
	upper := append(append([]byte{}, lower...), 0xff)
	iter, err := db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		path := string(iter.Key()[len(pathKeyPfx):])
		var rec pathRecord
		if err := gob.NewDecoder(bytes.NewReader(iter.Value())).Decode(&rec); err != nil {
			return nil, err
		}
		idx[path] = rec
	}
	return idx, iter.Error()
}
