// Package session accumulates the per-path observations a traversal makes
// (new hash, re-verified hash, or mismatch) and folds them into the next
// Generation, mirroring the working-set-then-commit shape of
// pkg/helios/vst/vst.go's VST.Commit, generalized from "blob content ->
// Merkle root" to "prior-generation comparison -> recorded MediaHash".
package session

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/ascmhl/mhl/internal/hashutil"
	"github.com/ascmhl/mhl/pkg/mhl/hashformat"
	"github.com/ascmhl/mhl/pkg/mhl/historystore"
	"github.com/ascmhl/mhl/pkg/mhl/model"
)

// Observation classifies what happened when a path was folded into the
// session, relative to the history it was checked against.
type Observation int

const (
	// New means no prior generation recorded any hash for this path.
	New Observation = iota
	// Verified means a prior hash (in the requested format, or in another
	// format used as a cross-format tie-break) matched the freshly computed
	// value.
	Verified
	// Mismatched means a prior hash disagreed with the freshly computed
	// value: the file's content changed without a new generation recording
	// it, or the file is corrupt.
	Mismatched
)

func (o Observation) String() string {
	switch o {
	case New:
		return "new"
	case Verified:
		return "verified"
	case Mismatched:
		return "mismatched"
	default:
		return "unknown"
	}
}

// Result reports the outcome of folding one path into the session.
type Result struct {
	MediaHash       model.MediaHash
	Observation     Observation
	VerifiedAgainst hashformat.Format // set only when a cross-format tie-break ran
}

// Session accumulates MediaHash entries for one traversal and commits them
// as the next Generation in store.
type Session struct {
	store   *historystore.Store
	format  hashformat.Format
	creator model.CreatorInfo
	now     time.Time

	entries []model.MediaHash

	newCount, verifiedCount, mismatchedCount int
}

// New returns a Session that will record hashes in format and, on Commit,
// persist the next generation to store with creator as its CreatorInfo.
func New(store *historystore.Store, format hashformat.Format, creator model.CreatorInfo, now time.Time) *Session {
	return &Session{store: store, format: format, creator: creator, now: now}
}

// ObserveFile computes relPath's hash (read from absPath) in the session's
// format, verifies it against history (falling back to the alphabetically
// first other format already recorded for this path, per spec.md's
// cross-format tie-break, if the requested format has never been recorded),
// and folds the result into the session. Per spec.md's cross-format policy,
// when the requested format has no prior entry but another format does,
// both the tie-break format's entry and the requested format's entry are
// appended to the resulting MediaHash.
func (s *Session) ObserveFile(relPath, absPath string) (Result, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		return Result{}, fmt.Errorf("stat %s: %w", relPath, err)
	}

	value, err := hashutil.FileHash(s.format, absPath)
	if err != nil {
		return Result{}, err
	}

	hashes, obs, tieFormat, err := s.verify(relPath, func(f hashformat.Format) (string, error) {
		if f == s.format {
			return value, nil
		}
		return hashutil.FileHash(f, absPath)
	})
	if err != nil {
		return Result{}, err
	}

	mh := model.MediaHash{
		Path:    relPath,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Hashes:  hashes,
	}
	s.record(mh, obs)
	return Result{MediaHash: mh, Observation: obs, VerifiedAgainst: tieFormat}, nil
}

// ObserveDirectory folds a directory into the session the same way
// ObserveFile does for a file. A directory's entry is recorded unconditionally
// — spec.md §3: "Directory MediaHashes may have zero entries (when directory
// hashes disabled)" — so every directory still enters the history and its
// ExpectedPaths, even when hasHash is false and no value was composed for it.
// A directory hash can only be recomputed in the format the traversal
// actually composed, so no cross-format tie-break runs for directories (a
// never-before-recorded format is simply new).
func (s *Session) ObserveDirectory(relPath, value string, hasHash bool) (Result, error) {
	subStore, subRel, err := s.store.FindHistoryFor(relPath)
	if err != nil {
		return Result{}, err
	}

	var hashes []hashformat.Entry
	obs := New
	if hasHash {
		hashes = []hashformat.Entry{{Format: s.format, Value: value}}
		if existing, ok := subStore.LatestHashEntry(subRel, s.format); ok {
			if existing.Value == value {
				obs = Verified
			} else {
				obs = Mismatched
			}
		}
	} else {
		// No hash was composed for this directory (-d off). There is
		// nothing to verify, so a directory already recorded in a prior
		// generation (hashed or not) is simply reaffirmed rather than
		// mismatched.
		if subStore.HasRecordedPath(subRel) {
			obs = Verified
		}
	}

	mh := model.MediaHash{
		Path:        relPath,
		IsDirectory: true,
		Hashes:      hashes,
	}
	s.record(mh, obs)
	return Result{MediaHash: mh, Observation: obs}, nil
}

// verify looks up relPath's prior history and returns the hash entries to
// record (requested format alone, or tie-break format plus requested
// format), the overall observation (the worse of the two if both ran), and
// the tie-break format used, if any. hashAt computes the value for a given
// format without re-reading the file more than once per format.
func (s *Session) verify(relPath string, hashAt func(hashformat.Format) (string, error)) ([]hashformat.Entry, Observation, hashformat.Format, error) {
	subStore, subRel, err := s.store.FindHistoryFor(relPath)
	if err != nil {
		return nil, New, "", err
	}

	value, err := hashAt(s.format)
	if err != nil {
		return nil, New, "", err
	}

	if existing, ok := subStore.LatestHashEntry(subRel, s.format); ok {
		obs := Verified
		if existing.Value != value {
			obs = Mismatched
		}
		return []hashformat.Entry{{Format: s.format, Value: value}}, obs, "", nil
	}

	formats := subStore.ExistingFormats(subRel)
	if len(formats) == 0 {
		return []hashformat.Entry{{Format: s.format, Value: value}}, New, "", nil
	}

	tieFormat := alphabeticallyFirst(formats)
	tieEntry, _ := subStore.LatestHashEntry(subRel, tieFormat)
	tieValue, err := hashAt(tieFormat)
	if err != nil {
		return nil, New, "", err
	}
	obs := Verified
	if tieValue != tieEntry.Value {
		obs = Mismatched
	}
	hashes := []hashformat.Entry{
		{Format: tieFormat, Value: tieValue},
		{Format: s.format, Value: value},
	}
	return hashes, obs, tieFormat, nil
}

func (s *Session) record(mh model.MediaHash, obs Observation) {
	s.entries = append(s.entries, mh)
	switch obs {
	case New:
		s.newCount++
	case Verified:
		s.verifiedCount++
	case Mismatched:
		s.mismatchedCount++
	}
}

// Stats returns the running new/verified/mismatched counts.
func (s *Session) Stats() (newCount, verifiedCount, mismatchedCount int) {
	return s.newCount, s.verifiedCount, s.mismatchedCount
}

// Commit builds the next Generation from the session's accumulated entries,
// persists it to the history store, and returns it. rootHashes is nil when
// directory hashes are disabled (spec.md §3: "Directory MediaHashes may have
// zero entries when directory hashes disabled").
func (s *Session) Commit(rootHashes []hashformat.Entry) (*model.Generation, error) {
	gen := &model.Generation{
		Number:  s.store.NextGenerationNumber(),
		Creator: s.creator,
		Root: model.MediaHash{
			Path:        ".",
			IsDirectory: true,
			Hashes:      rootHashes,
		},
		Entries: s.entries,
	}
	if err := s.store.Persist(gen, s.now); err != nil {
		return nil, err
	}
	return gen, nil
}

func alphabeticallyFirst(formats map[hashformat.Format]struct{}) hashformat.Format {
	names := make([]string, 0, len(formats))
	for f := range formats {
		names = append(names, string(f))
	}
	sort.Strings(names)
	return hashformat.Format(names[0])
}
