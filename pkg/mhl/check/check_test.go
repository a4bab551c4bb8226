package check

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ascmhl/mhl/pkg/mhl/hashformat"
	"github.com/ascmhl/mhl/pkg/mhl/model"
	"github.com/ascmhl/mhl/pkg/mhl/seal"
)

var fixedClock = time.Date(2020, 1, 16, 9, 15, 0, 0, time.UTC)

func testCreator() model.CreatorInfo {
	return model.CreatorInfo{
		Tool:         model.Tool{Name: "mhl", Version: "0.1.0"},
		HostName:     "host.example",
		CreationDate: fixedClock,
		ProcessKind:  model.ProcessInPlace,
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestRun_NoHistoryReturnsNoHistoryError(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Stuff.txt"), "stuff\n")

	_, err := Run(root, Options{})
	var noHistory *NoHistory
	require.ErrorAs(t, err, &noHistory)
}

func TestRun_UnchangedTreeHasNoFailures(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Stuff.txt"), "stuff\n")
	writeFile(t, filepath.Join(root, "A", "A1.txt"), "A1\n")

	_, err := seal.Run(root, seal.Options{Format: hashformat.XXH64, Creator: testCreator(), Now: fixedClock})
	require.NoError(t, err)

	result, err := Run(root, Options{})
	require.NoError(t, err)
	require.Empty(t, result.Mismatched)
	require.Empty(t, result.New)
	require.Empty(t, result.Missing)
}

func TestRun_NeverCreatesOrModifiesHistoryDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Stuff.txt"), "stuff\n")
	writeFile(t, filepath.Join(root, "A", "A1.txt"), "A1\n")

	_, err := seal.Run(root, seal.Options{Format: hashformat.XXH64, Creator: testCreator(), Now: fixedClock})
	require.NoError(t, err)

	ascmhlDir := filepath.Join(root, "ascmhl")
	before, err := os.ReadDir(ascmhlDir)
	require.NoError(t, err)

	_, err = Run(root, Options{})
	require.NoError(t, err)

	after, err := os.ReadDir(ascmhlDir)
	require.NoError(t, err)
	require.Equal(t, len(before), len(after))
}

func TestRun_AlteredFileIsReportedMismatched(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Stuff.txt"), "stuff\n")

	_, err := seal.Run(root, seal.Options{Format: hashformat.XXH64, Creator: testCreator(), Now: fixedClock})
	require.NoError(t, err)

	writeFile(t, filepath.Join(root, "Stuff.txt"), "tampered\n")

	result, err := Run(root, Options{})
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	require.Contains(t, result.Mismatched, "Stuff.txt")
}

func TestRun_NewFileIsReportedNew(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Stuff.txt"), "stuff\n")

	_, err := seal.Run(root, seal.Options{Format: hashformat.XXH64, Creator: testCreator(), Now: fixedClock})
	require.NoError(t, err)

	writeFile(t, filepath.Join(root, "Extra.txt"), "extra\n")

	result, err := Run(root, Options{})
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	require.Contains(t, result.New, "Extra.txt")
}

func TestRun_MissingFileIsReportedMissing(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Stuff.txt"), "stuff\n")

	_, err := seal.Run(root, seal.Options{Format: hashformat.XXH64, Creator: testCreator(), Now: fixedClock})
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "Stuff.txt")))

	result, err := Run(root, Options{})
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	require.Contains(t, result.Missing, "Stuff.txt")
}
