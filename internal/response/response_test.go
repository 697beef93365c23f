package response

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/recall/internal/core/domain"
)

func TestOk_SetsEnvelopeDefaults(t *testing.T) {
	r := Ok()
	require.True(t, r.OK)
	require.Equal(t, schemaVersion, r.SchemaVersion)
	require.Nil(t, r.Error)
}

func TestErr_MapsDomainErrorKindToCode(t *testing.T) {
	derr := domain.NewError(domain.KindNotFound, "no such doc").WithHint("check the id")
	r := Err(derr)
	require.False(t, r.OK)
	require.NotNil(t, r.Error)
	require.Equal(t, "not_found", r.Error.Code)
	require.Equal(t, "no such doc", r.Error.Message)
	require.Equal(t, "check the id", r.Error.Hint)
}

func TestBuilders_ChainWithoutMutatingReceiver(t *testing.T) {
	base := Ok()
	withQuery := base.WithQuery(Query{Text: "hello", Limit: 10})

	require.Nil(t, base.Query)
	require.NotNil(t, withQuery.Query)
	require.Equal(t, "hello", withQuery.Query.Text)

	full := withQuery.
		WithResults([]any{map[string]any{"score": 0.5}}).
		WithContext("packed context").
		WithExplain(map[string]any{"took_ms": 12}).
		WithStats(Stats{TookMs: 42, TotalHits: 1}).
		WithDiagnostics(map[string]any{"clean": true}).
		WithWarnings([]string{"truncated"})

	require.Len(t, full.Results, 1)
	require.Equal(t, "packed context", full.Context)
	require.NotNil(t, full.Explain)
	require.Equal(t, int64(42), full.Stats.TookMs)
	require.NotNil(t, full.Diagnostics)
	require.Equal(t, []string{"truncated"}, full.Warnings)
}

func TestWithWarnings_EmptySliceLeavesWarningsNil(t *testing.T) {
	r := Ok().WithWarnings(nil)
	require.Nil(t, r.Warnings)
}

func TestWrite_ProducesIndentedJSONWithExpectedFields(t *testing.T) {
	r := Ok().WithQuery(Query{Text: "hi", Limit: 5})

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, r))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, true, decoded["ok"])
	require.Equal(t, schemaVersion, decoded["schema_version"])
	require.Contains(t, string(buf.Bytes()), "\n")

	q, ok := decoded["query"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "hi", q["text"])
}

func TestContextFromPacked_ShapesTextAndChunks(t *testing.T) {
	pc := &domain.PackedContext{
		Text: "hello world", BudgetTokens: 100, UsedTokens: 2,
		Chunks: []domain.PackedChunk{{Path: "a.md", Hash: "h1", MTime: "2026-01-01T00:00:00Z", Offset: 0, Tokens: 2, Text: "hello world"}},
	}
	out := ContextFromPacked(pc)
	require.Equal(t, "hello world", out["text"])
	require.Equal(t, 100, out["budget_tokens"])
	require.Equal(t, 2, out["used_tokens"])

	chunks, ok := out["chunks"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, chunks, 1)
	require.Equal(t, "a.md", chunks[0]["path"])
}

func TestExplainFromDomain_ShapesModeAndTimings(t *testing.T) {
	e := &domain.Explain{
		Mode: "hybrid", LexicalWeight: 0.5, SemanticWeight: 0.5,
		LexicalCandCount: 10, SemanticCandCount: 8,
		Timings: []domain.StageTiming{{Stage: "lexical", Millis: 1.2}},
	}
	out := ExplainFromDomain(e)
	require.Equal(t, "hybrid", out["mode"])
	timings, ok := out["timings"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, timings, 1)
	require.Equal(t, "lexical", timings[0]["stage"])
}

func TestResultFromScoredChunk_ShapesDocChunkAndExplain(t *testing.T) {
	sc := domain.ScoredChunk{
		Doc:           domain.Doc{ID: "d1", Path: "a.md", MTime: "2026-01-01T00:00:00Z", Hash: "h1", Tag: "note", Source: "local"},
		Chunk:         domain.Chunk{ID: "c1", DocID: "d1", Offset: 0, Tokens: 3, Text: "hi there friend"},
		Score:         0.9,
		LexicalScore:  1.2,
		SemanticScore: 0.8,
	}

	out := ResultFromScoredChunk(sc, nil)
	require.Equal(t, 0.9, out["score"])

	doc, ok := out["doc"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "d1", doc["id"])
	require.Equal(t, "a.md", doc["path"])

	chunk, ok := out["chunk"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "c1", chunk["id"])
	require.Equal(t, "hi there friend", chunk["text"])

	explain, ok := out["explain"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, 1.2, explain["lexical"])
	require.Equal(t, 0.8, explain["semantic"])
}

func TestResultFromScoredChunk_ProjectsOnlySelectedFields(t *testing.T) {
	sc := domain.ScoredChunk{
		Doc:   domain.Doc{ID: "d1", Path: "a.md", Tag: "note"},
		Chunk: domain.Chunk{ID: "c1", Offset: 0, Text: "hi there"},
		Score: 0.9,
	}

	fields := []domain.ProjectionItem{
		{Kind: domain.ProjectField, Field: domain.ProjectionField{Table: domain.TableDoc, Name: "path"}},
		{Kind: domain.ProjectScore},
	}
	out := ResultFromScoredChunk(sc, fields)

	require.Equal(t, 0.9, out["score"])
	require.NotContains(t, out, "explain")
	require.NotContains(t, out, "chunk")

	doc, ok := out["doc"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "a.md", doc["path"])
	require.NotContains(t, doc, "tag")
}

func TestResultFromScoredChunk_UnknownFieldIsOmittedNotErrored(t *testing.T) {
	sc := domain.ScoredChunk{Doc: domain.Doc{ID: "d1", Path: "a.md"}, Chunk: domain.Chunk{ID: "c1"}}
	fields := []domain.ProjectionItem{
		{Kind: domain.ProjectField, Field: domain.ProjectionField{Table: domain.TableDoc, Name: "no_such_field"}},
	}
	out := ResultFromScoredChunk(sc, fields)
	require.NotContains(t, out, "score")
	require.NotContains(t, out, "doc")
	require.NotContains(t, out, "chunk")
}
