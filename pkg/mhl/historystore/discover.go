package historystore

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// discoverNestedRoots returns the absolute paths of the shallowest nested
// history roots under root: directories other than root itself that carry
// their own historyDirName subdirectory. A nested history's own nested
// histories are left for that Store's own (lazy) discovery call rather than
// collected here, so a deeply nested tree never pays for more than one
// level of directory walking per Store.
func discoverNestedRoots(root, historyDirName string) ([]string, error) {
	var candidates []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == historyDirName {
			parent := filepath.Dir(path)
			if parent != root {
				candidates = append(candidates, parent)
			}
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return shallowest(candidates), nil
}

// shallowest drops any candidate that is a strict descendant of another,
// leaving only the outermost root of each nested branch.
func shallowest(paths []string) []string {
	var out []string
	for _, p := range paths {
		nested := false
		for _, q := range paths {
			if p != q && strings.HasPrefix(p, q+string(filepath.Separator)) {
				nested = true
				break
			}
		}
		if !nested {
			out = append(out, p)
		}
	}
	return out
}

// nestedRootFor returns the nested root (a key of nestedRoots) that relPath
// falls under, if any, preferring the longest (most specific) match.
func nestedRootFor(nestedRoots map[string]string, relPath string) (string, bool) {
	best := ""
	for rel := range nestedRoots {
		if rel == relPath || strings.HasPrefix(relPath, rel+"/") {
			if len(rel) > len(best) {
				best = rel
			}
		}
	}
	if best == "" {
		return "", false
	}
	return best, true
}
