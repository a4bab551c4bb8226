package historystore

import (
	"sync"

	"github.com/klauspost/compress/zstd"
)

// manifestCache holds zstd-compressed manifest file bytes in memory so a
// manifest read more than once within a single process run (a nested
// history reloaded after eviction from nestedCache, or a repeated
// FindHistoryFor descent) skips a second disk read. It does not persist
// across runs; the manifest files on disk remain the source of truth.
type manifestCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	enc     *zstd.Encoder
	dec     *zstd.Decoder
}

func newManifestCache() *manifestCache {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil
	}
	return &manifestCache{entries: make(map[string][]byte), enc: enc, dec: dec}
}

// sharedManifestCache is process-wide: one CLI invocation may load the same
// nested history more than once (e.g. two sibling paths under one nested
// root), and the cache is only ever a read-through accelerator, never a
// source of truth, so sharing it across Store instances is safe.
var sharedManifestCache = newManifestCache()

func (c *manifestCache) get(path string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	compressed, ok := c.entries[path]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	raw, err := c.dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, false
	}
	return raw, true
}

func (c *manifestCache) put(path string, raw []byte) {
	if c == nil {
		return
	}
	compressed := c.enc.EncodeAll(raw, nil)
	c.mu.Lock()
	c.entries[path] = compressed
	c.mu.Unlock()
}
