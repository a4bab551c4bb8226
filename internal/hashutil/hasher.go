// Package hashutil implements the Hasher component (spec.md §4.1): streaming
// file hashes and the deterministic directory-hash composition used by the
// Seal Engine.
//
// A pool of reusable hash.Hash instances is kept per format, patterned on the
// hasherPool idiom in the teacher's BLAKE3Store — hashing runs once per file
// per invocation but the pool still avoids re-allocating a hasher per call on
// large trees.
package hashutil

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/ascmhl/mhl/pkg/mhl/hashformat"
)

var pools = map[hashformat.Format]*sync.Pool{
	hashformat.XXH64: {New: func() any { return xxhash.New() }},
	hashformat.MD5:   {New: func() any { return md5.New() }},
	hashformat.SHA1:  {New: func() any { return sha1.New() }},
}

func acquire(format hashformat.Format) (hash.Hash, error) {
	p, ok := pools[format]
	if !ok {
		return nil, hashformat.ErrUnsupportedFormat
	}
	h := p.Get().(hash.Hash)
	h.Reset()
	return h, nil
}

func release(format hashformat.Format, h hash.Hash) {
	pools[format].Put(h)
}

// FileHash streams path's contents once through format's hasher and returns
// the canonical lowercase hex digest. The file handle is released on every
// exit path, including error returns.
func FileHash(format hashformat.Format, path string) (string, error) {
	h, err := acquire(format)
	if err != nil {
		return "", err
	}
	defer release(format, h)

	f, err := os.Open(path)
	if err != nil {
		return "", &IoFailure{Path: path, Cause: err}
	}
	defer f.Close()

	if _, err := io.Copy(h, f); err != nil {
		return "", &IoFailure{Path: path, Cause: err}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Hash returns the canonical hex digest of data under format, without
// touching the filesystem. Used where the content to hash is already in
// memory (e.g. hashing a manifest file's own bytes for the chain file).
func Hash(format hashformat.Format, data []byte) (string, error) {
	h, err := acquire(format)
	if err != nil {
		return "", err
	}
	defer release(format, h)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// EmptyDigest returns the digest of the empty byte string for format — the
// known-constant value every empty directory hashes to (spec.md §4.1/§8).
func EmptyDigest(format hashformat.Format) (string, error) {
	h, err := acquire(format)
	if err != nil {
		return "", err
	}
	defer release(format, h)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DirectoryHashContext accumulates child (name, hash) pairs in lexicographic
// order and folds them into one directory digest. Each Append feeds the raw
// UTF-8 bytes of the child's name followed by the raw bytes of the child's
// hash value into the accumulator, with no delimiter — the enforced ordering
// is what disambiguates, not a separator byte.
type DirectoryHashContext struct {
	format   hashformat.Format
	h        hash.Hash
	lastName string
	started  bool
	done     bool
}

// NewDirectoryHashContext starts a new per-directory accumulator for format.
func NewDirectoryHashContext(format hashformat.Format) (*DirectoryHashContext, error) {
	h, err := acquire(format)
	if err != nil {
		return nil, err
	}
	return &DirectoryHashContext{format: format, h: h}, nil
}

// Append feeds one child into the accumulator. childValue is the child's own
// canonical hex digest; childName must sort strictly after the name of the
// previous call in this context.
func (c *DirectoryHashContext) Append(childValue, childName string) error {
	if c.done {
		return fmt.Errorf("directory hash context: append after finalize")
	}
	if c.started && childName <= c.lastName {
		return &ErrOutOfOrder{Previous: c.lastName, Got: childName}
	}
	raw, err := hex.DecodeString(childValue)
	if err != nil {
		return fmt.Errorf("directory hash context: child %q has malformed hash value %q: %w", childName, childValue, err)
	}
	c.h.Write([]byte(childName))
	c.h.Write(raw)
	c.lastName = childName
	c.started = true
	return nil
}

// Finalize returns the directory's digest. The context must not be reused
// afterwards. An empty directory (no Append calls) yields EmptyDigest.
func (c *DirectoryHashContext) Finalize() (string, error) {
	if c.done {
		return "", fmt.Errorf("directory hash context: finalize called twice")
	}
	c.done = true
	defer release(c.format, c.h)
	return hex.EncodeToString(c.h.Sum(nil)), nil
}
