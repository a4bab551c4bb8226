// Package traverse implements the Traversal component (spec.md §4.3): a
// post-order, lexicographically-ordered walk of a file tree that skips the
// history storage directory and does not follow symbolic links.
package traverse

import (
	"os"
	"path/filepath"
	"sort"
)

// Child is one immediate entry of a visited directory.
type Child struct {
	Name  string
	IsDir bool
}

// Node is one post-order visit: a directory path together with its
// lexicographically sorted immediate children.
type Node struct {
	Path     string
	Children []Child
}

// Walk visits root post-order, invoking visit once per directory (root
// itself last). historyDirName (e.g. "ascmhl") is skipped entirely wherever
// it occurs — it is never descended into nor recorded as a child. Symbolic
// links are never followed and are omitted from Children (Design Note,
// spec.md §9: implementations must document and test one consistent choice).
func Walk(root, historyDirName string, visit func(Node) error) error {
	return walkDir(root, historyDirName, visit)
}

func walkDir(dir, historyDirName string, visit func(Node) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	children := make([]Child, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if name == historyDirName && e.IsDir() {
			continue
		}

		info, err := e.Info()
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			continue
		}

		isDir := e.IsDir()
		if isDir {
			if err := walkDir(filepath.Join(dir, name), historyDirName, visit); err != nil {
				return err
			}
		}
		children = append(children, Child{Name: name, IsDir: isDir})
	}

	return visit(Node{Path: dir, Children: children})
}
