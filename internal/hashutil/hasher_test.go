package hashutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ascmhl/mhl/pkg/mhl/hashformat"
)

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestFileHash_XXH64_KnownVector(t *testing.T) {
	dir := t.TempDir()
	p := writeTemp(t, dir, "Stuff.txt", "stuff\n")

	got, err := FileHash(hashformat.XXH64, p)
	require.NoError(t, err)
	require.Equal(t, "94c399c2a9a21f9a", got)
}

func TestFileHash_UnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	p := writeTemp(t, dir, "a.txt", "a")
	_, err := FileHash(hashformat.Format("crc32"), p)
	require.ErrorIs(t, err, hashformat.ErrUnsupportedFormat)
}

func TestFileHash_IoFailure(t *testing.T) {
	_, err := FileHash(hashformat.XXH64, filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
	var ioErr *IoFailure
	require.ErrorAs(t, err, &ioErr)
}

func TestEmptyDigest_XXH64_MatchesSpecConstant(t *testing.T) {
	got, err := EmptyDigest(hashformat.XXH64)
	require.NoError(t, err)
	require.Equal(t, "ef46db3751d8e999", got)
}

func TestDirectoryHashContext_EmptyMatchesEmptyDigest(t *testing.T) {
	ctx, err := NewDirectoryHashContext(hashformat.XXH64)
	require.NoError(t, err)
	got, err := ctx.Finalize()
	require.NoError(t, err)

	want, err := EmptyDigest(hashformat.XXH64)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestDirectoryHashContext_OrderEnforced(t *testing.T) {
	ctx, err := NewDirectoryHashContext(hashformat.XXH64)
	require.NoError(t, err)
	require.NoError(t, ctx.Append("ef46db3751d8e999", "B"))

	err = ctx.Append("ef46db3751d8e999", "A")
	require.Error(t, err)
	var outOfOrder *ErrOutOfOrder
	require.ErrorAs(t, err, &outOfOrder)
}

func TestDirectoryHashContext_DeterministicAcrossRuns(t *testing.T) {
	build := func() string {
		ctx, err := NewDirectoryHashContext(hashformat.XXH64)
		require.NoError(t, err)
		require.NoError(t, ctx.Append("aaaaaaaaaaaaaaaa", "A1.txt"))
		require.NoError(t, ctx.Append("bbbbbbbbbbbbbbbb", "A2.txt"))
		h, err := ctx.Finalize()
		require.NoError(t, err)
		return h
	}
	require.Equal(t, build(), build())
}

func TestDirectoryHashContext_NameChangeFlipsHash(t *testing.T) {
	hashWithName := func(name string) string {
		ctx, err := NewDirectoryHashContext(hashformat.XXH64)
		require.NoError(t, err)
		require.NoError(t, ctx.Append("ef46db3751d8e999", name))
		h, err := ctx.Finalize()
		require.NoError(t, err)
		return h
	}
	require.NotEqual(t, hashWithName("emptyFolderA"), hashWithName("emptyFolderB"))
}

func TestDirectoryHashContext_FinalizeTwiceFails(t *testing.T) {
	ctx, err := NewDirectoryHashContext(hashformat.XXH64)
	require.NoError(t, err)
	_, err = ctx.Finalize()
	require.NoError(t, err)
	_, err = ctx.Finalize()
	require.Error(t, err)
}
