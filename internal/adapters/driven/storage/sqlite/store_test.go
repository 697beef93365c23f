package sqlite

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/embedding"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recall.db")
	s, err := Open(path, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testDoc(id, path string) domain.Doc {
	return domain.Doc{ID: id, Path: path, Hash: "h-" + id, MTime: "2026-01-01T00:00:00Z", Meta: map[string]any{}}
}

func testChunks(embedder embedding.HashEmbedder, texts ...string) []domain.InsertChunk {
	out := make([]domain.InsertChunk, len(texts))
	for i, text := range texts {
		out[i] = domain.InsertChunk{Offset: i, Tokens: len(text), Text: text, Embedding: embedder.Embed(text)}
	}
	return out
}

func TestStore_InsertAndGetDoc(t *testing.T) {
	s := openTestStore(t)
	embedder := embedding.NewHashEmbedder(32)
	ctx := context.Background()

	doc, chunks, err := s.InsertDoc(ctx, testDoc("d1", "notes/a.md"), testChunks(embedder, "alpha beta", "gamma delta"))
	require.NoError(t, err)
	require.Equal(t, "d1", doc.ID)
	require.Len(t, chunks, 2)
	require.NotEmpty(t, chunks[0].ID)

	got, err := s.GetDoc(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, "notes/a.md", got.Path)

	byPath, err := s.GetDocByPath(ctx, "notes/a.md")
	require.NoError(t, err)
	require.Equal(t, "d1", byPath.ID)
}

func TestStore_InsertDocReplacesExistingAtPath(t *testing.T) {
	s := openTestStore(t)
	embedder := embedding.NewHashEmbedder(32)
	ctx := context.Background()

	_, _, err := s.InsertDoc(ctx, testDoc("d1", "notes/a.md"), testChunks(embedder, "first version"))
	require.NoError(t, err)

	_, _, err = s.InsertDoc(ctx, testDoc("d2", "notes/a.md"), testChunks(embedder, "second version"))
	require.NoError(t, err)

	_, err = s.GetDoc(ctx, "d1")
	require.ErrorIs(t, err, domain.ErrNotFound)

	got, err := s.GetDocByPath(ctx, "notes/a.md")
	require.NoError(t, err)
	require.Equal(t, "d2", got.ID)
}

func TestStore_TombstoneAndCompact(t *testing.T) {
	s := openTestStore(t)
	embedder := embedding.NewHashEmbedder(32)
	ctx := context.Background()

	_, _, err := s.InsertDoc(ctx, testDoc("d1", "notes/a.md"), testChunks(embedder, "hello world"))
	require.NoError(t, err)

	require.NoError(t, s.Tombstone(ctx, "d1"))
	_, err = s.GetDoc(ctx, "d1")
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.ErrorIs(t, s.Tombstone(ctx, "missing"), domain.ErrNotFound)

	require.NoError(t, s.Compact(ctx))
	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, stats.DocCount)
	require.Equal(t, 0, stats.ChunkCount)
}

func TestStore_ListDocsAndListChunks(t *testing.T) {
	s := openTestStore(t)
	embedder := embedding.NewHashEmbedder(32)
	ctx := context.Background()

	_, _, err := s.InsertDoc(ctx, testDoc("d1", "a.md"), testChunks(embedder, "one"))
	require.NoError(t, err)
	_, _, err = s.InsertDoc(ctx, testDoc("d2", "b.md"), testChunks(embedder, "two", "three"))
	require.NoError(t, err)

	docs, err := s.ListDocs(ctx, domain.Predicate{}, "", domain.SortKey{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, "a.md", docs[0].Path)

	chunks, err := s.ListChunks(ctx, domain.Predicate{}, "", domain.SortKey{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
}

func TestStore_GetChunksByIDsHydratesDocAndChunk(t *testing.T) {
	s := openTestStore(t)
	embedder := embedding.NewHashEmbedder(32)
	ctx := context.Background()

	_, chunks, err := s.InsertDoc(ctx, testDoc("d1", "a.md"), testChunks(embedder, "hello"))
	require.NoError(t, err)

	got, docs, err := s.GetChunksByIDs(ctx, []string{chunks[0].ID}, "")
	require.NoError(t, err)
	require.Contains(t, got, chunks[0].ID)
	require.Contains(t, docs, "d1")
}

func TestStore_SnapshotTokenAndStats(t *testing.T) {
	s := openTestStore(t)
	embedder := embedding.NewHashEmbedder(32)
	ctx := context.Background()

	empty, err := s.SnapshotToken(ctx)
	require.NoError(t, err)
	require.Empty(t, empty)

	_, _, err = s.InsertDoc(ctx, testDoc("d1", "a.md"), testChunks(embedder, "hello world"))
	require.NoError(t, err)

	token, err := s.SnapshotToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "2026-01-01T00:00:00Z", token)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.DocCount)
	require.Equal(t, 1, stats.ChunkCount)
	require.Equal(t, token, stats.Snapshot)
}

func TestStore_DoctorReportsClean(t *testing.T) {
	s := openTestStore(t)
	embedder := embedding.NewHashEmbedder(32)
	ctx := context.Background()

	_, _, err := s.InsertDoc(ctx, testDoc("d1", "a.md"), testChunks(embedder, "hello world"))
	require.NoError(t, err)

	report, err := s.Doctor(ctx, false)
	require.NoError(t, err)
	require.True(t, report.Clean())
}

func TestStore_ExportImportRoundTrip(t *testing.T) {
	s := openTestStore(t)
	embedder := embedding.NewHashEmbedder(32)
	ctx := context.Background()

	_, _, err := s.InsertDoc(ctx, testDoc("d1", "a.md"), testChunks(embedder, "hello", "world"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, s.Export(ctx, &buf))
	require.NotZero(t, buf.Len())

	s2 := openTestStore(t)
	require.NoError(t, s2.Import(ctx, bytes.NewReader(buf.Bytes())))

	got, err := s2.GetDoc(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, "a.md", got.Path)

	chunks, err := s2.ListChunks(ctx, domain.Predicate{}, "", domain.SortKey{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
}

func TestStore_LexicalAndVectorIndexAccessors(t *testing.T) {
	s := openTestStore(t)
	embedder := embedding.NewHashEmbedder(32)
	ctx := context.Background()

	_, chunks, err := s.InsertDoc(ctx, testDoc("d1", "a.md"), testChunks(embedder, "hello sqlite world"))
	require.NoError(t, err)

	hits, warnings, err := s.LexicalIndex().Search(ctx, "sqlite", driven.ModeFTS5, domain.Predicate{}, "", 10)
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.NotEmpty(t, hits)
	require.Equal(t, chunks[0].ID, hits[0].ChunkID)

	vHits, err := s.VectorIndex().Search(ctx, embedder.Embed("hello sqlite world"), 5, domain.Predicate{}, "")
	require.NoError(t, err)
	require.NotEmpty(t, vHits)
}
