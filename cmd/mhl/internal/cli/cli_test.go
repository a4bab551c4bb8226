package cli

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ascmhl/mhl/pkg/mhl/hashformat"
)

var fixedClock = time.Date(2020, 1, 16, 9, 15, 0, 0, time.UTC)

func testConfig() Config {
	return Config{Now: func() time.Time { return fixedClock }}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), &slog.HandlerOptions{Level: slog.LevelError + 100}))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestHandleSeal_FreshRootExitsSuccess(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Stuff.txt"), "stuff\n")

	var buf bytes.Buffer
	code := HandleSeal(&buf, quietLogger(), testConfig(), SealOptions{Root: root, Format: hashformat.XXH64})
	require.Equal(t, ExitSuccess, code)
	require.Contains(t, buf.String(), "generation")
}

func TestHandleSeal_MismatchExitsVerificationFailed(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "Stuff.txt")
	writeFile(t, path, "stuff\n")

	var buf bytes.Buffer
	code := HandleSeal(&buf, quietLogger(), testConfig(), SealOptions{Root: root, Format: hashformat.XXH64})
	require.Equal(t, ExitSuccess, code)

	writeFile(t, path, "tampered\n")
	code = HandleSeal(&buf, quietLogger(), testConfig(), SealOptions{Root: root, Format: hashformat.XXH64})
	require.Equal(t, ExitVerificationFailed, code)
}

func TestHandleSeal_MissingPathExitsCompletenessFailed(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Folder"), 0o755))

	var buf bytes.Buffer
	code := HandleSeal(&buf, quietLogger(), testConfig(), SealOptions{Root: root, Format: hashformat.XXH64})
	require.Equal(t, ExitSuccess, code)

	require.NoError(t, os.Remove(filepath.Join(root, "Folder")))
	code = HandleSeal(&buf, quietLogger(), testConfig(), SealOptions{Root: root, Format: hashformat.XXH64})
	require.Equal(t, ExitCompletenessFailed, code)
}

func TestHandleCheck_NoHistoryExitsFatal(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Stuff.txt"), "stuff\n")

	var buf bytes.Buffer
	code := HandleCheck(&buf, quietLogger(), CheckOptions{Root: root})
	require.Equal(t, ExitFatal, code)
}

func TestHandleCheck_NewFileExitsNewFilesFound(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Stuff.txt"), "stuff\n")

	var buf bytes.Buffer
	code := HandleSeal(&buf, quietLogger(), testConfig(), SealOptions{Root: root, Format: hashformat.XXH64})
	require.Equal(t, ExitSuccess, code)

	writeFile(t, filepath.Join(root, "Extra.txt"), "extra\n")
	code = HandleCheck(&buf, quietLogger(), CheckOptions{Root: root})
	require.Equal(t, ExitNewFilesFound, code)
}

func TestHandleRecord_NoPathsExitsFatal(t *testing.T) {
	var buf bytes.Buffer
	code := HandleRecord(&buf, quietLogger(), testConfig(), RecordOptions{Root: t.TempDir(), Format: hashformat.XXH64})
	require.Equal(t, ExitFatal, code)
}

func TestHandleRecord_SinglePathExitsSuccess(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "Stuff.txt")
	writeFile(t, path, "stuff\n")

	var buf bytes.Buffer
	code := HandleRecord(&buf, quietLogger(), testConfig(), RecordOptions{
		Root:   root,
		Paths:  []string{path},
		Format: hashformat.XXH64,
	})
	require.Equal(t, ExitSuccess, code)
}

func TestHandleValidate_MissingFileExitsVerificationFailed(t *testing.T) {
	var buf bytes.Buffer
	code := HandleValidate(&buf, quietLogger(), filepath.Join(t.TempDir(), "nope.mhl"))
	require.Equal(t, ExitVerificationFailed, code)
}
