// Package model holds the in-memory data model for the generation engine:
// CreatorInfo, MediaHash, Generation and History, per spec.md §3.
package model

import (
	"time"

	"github.com/ascmhl/mhl/pkg/mhl/hashformat"
)

// Tool identifies the software that produced a generation.
type Tool struct {
	Name    string
	Version string
}

// Process kinds a CreatorInfo block may record, per spec.md §6.
const (
	ProcessInPlace     = "in-place"
	ProcessUserDefined = "user-defined"
	ProcessTool        = "tool"
)

// CreatorInfo describes who/what produced a Generation.
type CreatorInfo struct {
	Tool         Tool
	HostName     string
	CreationDate time.Time
	ProcessKind  string
}

// MediaHash describes one filesystem path within a generation.
type MediaHash struct {
	Path        string // relative to the history root
	IsDirectory bool
	Size        int64     // files only
	ModTime     time.Time // files only
	Hashes      []hashformat.Entry
}

// Hash returns the entry recorded for format, if any.
func (m MediaHash) Hash(format hashformat.Format) (hashformat.Entry, bool) {
	for _, e := range m.Hashes {
		if e.Format == format {
			return e, true
		}
	}
	return hashformat.Entry{}, false
}

// Formats returns the set of formats recorded for this path.
func (m MediaHash) Formats() []hashformat.Format {
	out := make([]hashformat.Format, 0, len(m.Hashes))
	for _, e := range m.Hashes {
		out = append(out, e.Format)
	}
	return out
}

// Generation is one immutable, ordered snapshot of a file tree's hash state.
type Generation struct {
	Number  int
	Creator CreatorInfo
	Root    MediaHash
	Entries []MediaHash
}

// Find returns the entry for path within this generation, if recorded.
func (g Generation) Find(path string) (MediaHash, bool) {
	for _, e := range g.Entries {
		if e.Path == path {
			return e, true
		}
	}
	return MediaHash{}, false
}

// History is the ordered chain of generations for one root path. Nested
// histories are a loading/lookup concern of the History Store (spec.md
// §4.2), not part of this plain data model — see pkg/mhl/historystore.
type History struct {
	RootPath    string // absolute filesystem path this history is rooted at
	Generations []Generation
}

// NextGenerationNumber returns the generation number the next commit should
// use (spec.md §3: dense, strictly increasing, starting at 1).
func (h *History) NextGenerationNumber() int {
	if len(h.Generations) == 0 {
		return 1
	}
	return h.Generations[len(h.Generations)-1].Number + 1
}
