package historystore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ascmhl/mhl/pkg/mhl/hashformat"
	"github.com/ascmhl/mhl/pkg/mhl/model"
)

var fixedClock = time.Date(2020, 1, 16, 9, 15, 0, 0, time.UTC)

func sampleGen(number int, path, value string) *model.Generation {
	return &model.Generation{
		Number: number,
		Creator: model.CreatorInfo{
			Tool:         model.Tool{Name: "mhl", Version: "0.1.0"},
			HostName:     "host.example",
			CreationDate: fixedClock,
			ProcessKind:  model.ProcessInPlace,
		},
		Root: model.MediaHash{
			Path:        ".",
			IsDirectory: true,
			Hashes:      []hashformat.Entry{{Format: hashformat.XXH64, Value: "rootvalue0000000"}},
		},
		Entries: []model.MediaHash{
			{
				Path:    path,
				Size:    6,
				ModTime: fixedClock,
				Hashes:  []hashformat.Entry{{Format: hashformat.XXH64, Value: value}},
			},
		},
	}
}

func TestLoadFromPath_FreshRootHasNoGenerations(t *testing.T) {
	root := t.TempDir()
	store, err := LoadFromPath(root)
	require.NoError(t, err)
	require.Empty(t, store.Generations())
	require.Equal(t, 1, store.NextGenerationNumber())
}

func TestPersist_WritesManifestAndChainAndIsReloadable(t *testing.T) {
	root := filepath.Join(t.TempDir(), "root")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "Stuff.txt"), []byte("stuff\n"), 0o644))

	store, err := LoadFromPath(root)
	require.NoError(t, err)

	require.NoError(t, store.Persist(sampleGen(1, "Stuff.txt", "aaaaaaaaaaaaaaaa"), fixedClock))

	manifestPath := filepath.Join(root, DefaultHistoryDirName, "root_2020-01-16_091500_0001.mhl")
	_, statErr := os.Stat(manifestPath)
	require.NoError(t, statErr)
	_, statErr = os.Stat(filepath.Join(root, DefaultHistoryDirName, chainFileName))
	require.NoError(t, statErr)

	reloaded, err := LoadFromPath(root)
	require.NoError(t, err)
	require.Len(t, reloaded.Generations(), 1)
	entry, ok := reloaded.FindOriginalHashEntry("Stuff.txt")
	require.True(t, ok)
	require.Equal(t, "aaaaaaaaaaaaaaaa", entry.Value)
	require.Equal(t, 2, reloaded.NextGenerationNumber())
}

func TestPersist_SecondGenerationKeepsOriginalFormatButAddsNewFormats(t *testing.T) {
	root := t.TempDir()
	store, err := LoadFromPath(root)
	require.NoError(t, err)

	require.NoError(t, store.Persist(sampleGen(1, "Stuff.txt", "aaaaaaaaaaaaaaaa"), fixedClock))

	gen2 := sampleGen(2, "Stuff.txt", "aaaaaaaaaaaaaaaa")
	gen2.Entries[0].Hashes = append(gen2.Entries[0].Hashes, hashformat.Entry{Format: hashformat.MD5, Value: "deadbeefdeadbeefdeadbeefdeadbeef"})
	require.NoError(t, store.Persist(gen2, fixedClock.Add(24*time.Hour)))

	entry, ok := store.FindOriginalHashEntry("Stuff.txt")
	require.True(t, ok)
	require.Equal(t, hashformat.XXH64, entry.Format)

	formats := store.ExistingFormats("Stuff.txt")
	require.Contains(t, formats, hashformat.XXH64)
	require.Contains(t, formats, hashformat.MD5)
}

func TestReadOnly_NeverCreatesHistoryDirectoryOrIndex(t *testing.T) {
	root := t.TempDir()
	store, err := LoadFromPath(root, ReadOnly())
	require.NoError(t, err)
	require.Empty(t, store.Generations())

	_, statErr := os.Stat(filepath.Join(root, DefaultHistoryDirName))
	require.True(t, os.IsNotExist(statErr))

	err = store.Persist(sampleGen(1, "x.txt", "1111111111111111"), fixedClock)
	require.Error(t, err)
}

func TestFindHistoryFor_DescendsIntoNestedHistory(t *testing.T) {
	root := t.TempDir()
	nestedRoot := filepath.Join(root, "Sub")
	require.NoError(t, os.MkdirAll(nestedRoot, 0o755))

	nestedStore, err := LoadFromPath(nestedRoot)
	require.NoError(t, err)
	require.NoError(t, nestedStore.Persist(sampleGen(1, "inner.txt", "2222222222222222"), fixedClock))

	outer, err := LoadFromPath(root)
	require.NoError(t, err)

	found, rel, err := outer.FindHistoryFor("Sub/inner.txt")
	require.NoError(t, err)
	require.Equal(t, "inner.txt", rel)
	require.Equal(t, nestedRoot, found.Root())

	entry, ok := found.FindOriginalHashEntry("inner.txt")
	require.True(t, ok)
	require.Equal(t, "2222222222222222", entry.Value)
}

func TestFindHistoryFor_PathNotUnderAnyNestedHistoryStaysAtOuter(t *testing.T) {
	root := t.TempDir()
	nestedRoot := filepath.Join(root, "Sub")
	require.NoError(t, os.MkdirAll(nestedRoot, 0o755))
	nestedStore, err := LoadFromPath(nestedRoot)
	require.NoError(t, err)
	require.NoError(t, nestedStore.Persist(sampleGen(1, "inner.txt", "2222222222222222"), fixedClock))

	outer, err := LoadFromPath(root)
	require.NoError(t, err)

	found, rel, err := outer.FindHistoryFor("Other.txt")
	require.NoError(t, err)
	require.Equal(t, "Other.txt", rel)
	require.Equal(t, outer.Root(), found.Root())
}

func TestIndex_RebuildsWhenOnDiskIndexIsMissing(t *testing.T) {
	root := t.TempDir()
	store, err := LoadFromPath(root)
	require.NoError(t, err)
	require.NoError(t, store.Persist(sampleGen(1, "a.txt", "3333333333333333"), fixedClock))

	idxPath := filepath.Join(root, DefaultHistoryDirName, indexDirName)
	require.NoError(t, os.RemoveAll(idxPath))

	reloaded, err := LoadFromPath(root)
	require.NoError(t, err)
	entry, ok := reloaded.FindOriginalHashEntry("a.txt")
	require.True(t, ok)
	require.Equal(t, "3333333333333333", entry.Value)
}
