package xmlmanifest

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ascmhl/mhl/internal/hashutil"
	"github.com/ascmhl/mhl/pkg/mhl/hashformat"
)

// ChainEntry is one line of chain.txt: a generation's manifest filename and
// the xxh64 digest of that manifest file's bytes, used to detect truncation
// or tampering of the chain itself.
type ChainEntry struct {
	Number       int
	Filename     string
	ManifestHash string
}

// ManifestDigest returns the xxh64 digest recorded alongside a manifest file
// in chain.txt.
func ManifestDigest(manifestBytes []byte) (string, error) {
	return hashutil.Hash(hashformat.XXH64, manifestBytes)
}

// AppendChainEntry appends one line to chainPath, creating it if absent, and
// fsyncs before returning so a crash immediately after cannot leave a
// half-written line (spec.md §5/§9).
func AppendChainEntry(chainPath string, e ChainEntry) error {
	f, err := os.OpenFile(chainPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open chain file: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("%d %s %s\n", e.Number, e.Filename, e.ManifestHash)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("append chain entry: %w", err)
	}
	return f.Sync()
}

// ReadChain parses chain.txt in generation order. A missing file yields an
// empty chain, not an error (a fresh history has no chain file yet).
func ReadChain(chainPath string) ([]ChainEntry, error) {
	data, err := os.ReadFile(chainPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read chain file: %w", err)
	}

	var entries []ChainEntry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("malformed chain line: %q", line)
		}
		n, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("malformed chain line %q: %w", line, err)
		}
		entries = append(entries, ChainEntry{Number: n, Filename: fields[1], ManifestHash: fields[2]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read chain file: %w", err)
	}
	return entries, nil
}
