package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_NoFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	ctx, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, Default(), ctx.Config)
	require.Equal(t, dir, ctx.Root)
}

func TestLoad_FindsFileInAncestor(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, Write(filepath.Join(root, fileName), Config{StorePath: "custom.db", ChunkTokens: 128, MaxLimit: 10}))

	ctx, err := Load(nested)
	require.NoError(t, err)
	require.Equal(t, root, ctx.Root)
	require.Equal(t, "custom.db", ctx.Config.StorePath)
	require.Equal(t, 10, ctx.Config.MaxLimit)
}

func TestReadFile_OverlapGreaterThanChunkIsReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), fileName)
	require.NoError(t, Write(path, Config{ChunkTokens: 100, OverlapTokens: 200}))

	cfg, err := readFile(path)
	require.NoError(t, err)
	require.Equal(t, 0, cfg.OverlapTokens)
}

func TestCtx_StorePathJoinsRoot(t *testing.T) {
	ctx := Ctx{Root: "/tmp/project", Config: Config{StorePath: "recall.db"}}
	require.Equal(t, "/tmp/project/recall.db", ctx.StorePath())

	abs := Ctx{Root: "/tmp/project", Config: Config{StorePath: "/var/data/recall.db"}}
	require.Equal(t, "/var/data/recall.db", abs.StorePath())
}

func TestWriteAndReadFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), fileName)
	cfg := Default()
	cfg.BM25Weight = 0.7
	cfg.VectorWeight = 0.3
	require.NoError(t, Write(path, cfg))

	got, err := readFile(path)
	require.NoError(t, err)
	require.Equal(t, cfg, got)
}
