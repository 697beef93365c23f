// Package response builds the stable JSON envelope every recall command
// emits: a single top-level object with ok/schema_version plus whichever
// of query/results/context/stats/explain/diagnostics/error apply.
package response

import (
	"encoding/json"
	"io"

	"github.com/google/uuid"

	"github.com/custodia-labs/recall/internal/core/domain"
)

const schemaVersion = "1"

// Query echoes the request's effective query shape back to the caller.
type Query struct {
	Text        string `json:"text"`
	RQL         string `json:"rql,omitempty"`
	Limit       int    `json:"limit"`
	Offset      int    `json:"offset"`
	LexicalMode string `json:"lexical_mode,omitempty"`
	Snapshot    string `json:"snapshot,omitempty"`
}

// TimingBreakdown is the per-stage timing detail surfaced under explain.
type TimingBreakdown struct {
	FilterMs   *int64 `json:"filter_ms,omitempty"`
	LexicalMs  *int64 `json:"lexical_ms,omitempty"`
	SemanticMs *int64 `json:"semantic_ms,omitempty"`
	CombineMs  *int64 `json:"combine_ms,omitempty"`
	OrderMs    *int64 `json:"order_ms,omitempty"`
	AssembleMs *int64 `json:"assemble_ms,omitempty"`
}

// CorpusStats is the corpus-wide summary nested under stats.
type CorpusStats struct {
	Docs   int   `json:"docs"`
	Chunks int   `json:"chunks"`
	Bytes  int64 `json:"bytes"`
}

// Stats is the top-level stats field of a response.
type Stats struct {
	TookMs    int64            `json:"took_ms"`
	TotalHits int              `json:"total_hits"`
	Snapshot  string           `json:"snapshot,omitempty"`
	Timings   *TimingBreakdown `json:"timings,omitempty"`
	Corpus    *CorpusStats     `json:"corpus,omitempty"`
}

// Error is the error object surfaced when ok is false.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// Response is the envelope every recall command emits, whether the
// program is run as `recall query`, `recall stats`, or similar.
type Response struct {
	OK            bool     `json:"ok"`
	SchemaVersion string   `json:"schema_version"`
	RequestID     string   `json:"request_id"`
	Query         *Query   `json:"query,omitempty"`
	Results       []any    `json:"results,omitempty"`
	Context       any      `json:"context,omitempty"`
	Explain       any      `json:"explain,omitempty"`
	Stats         *Stats   `json:"stats,omitempty"`
	Diagnostics   any      `json:"diagnostics,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
	Error         *Error   `json:"error,omitempty"`
}

// Ok starts a successful envelope, stamped with a fresh request id:
// every invocation of a recall command is its own request, so unlike
// doc/chunk identity this id is random rather than content-addressed.
func Ok() Response {
	return Response{OK: true, SchemaVersion: schemaVersion, RequestID: uuid.NewString()}
}

// Err starts a failed envelope from a domain error, mapping its Kind to
// the stable wire error code.
func Err(err *domain.Error) Response {
	return Response{
		OK:            false,
		SchemaVersion: schemaVersion,
		RequestID:     uuid.NewString(),
		Error:         &Error{Code: string(err.Kind), Message: err.Message, Hint: err.Hint},
	}
}

// WithQuery attaches the echoed query shape.
func (r Response) WithQuery(q Query) Response {
	r.Query = &q
	return r
}

// WithResults attaches the result list, each entry already shaped per
// the response contract (as built by ResultFromScoredChunk, marshaled
// as any).
func (r Response) WithResults(results []any) Response {
	r.Results = results
	return r
}

// WithContext attaches a packed context payload.
func (r Response) WithContext(ctx any) Response {
	r.Context = ctx
	return r
}

// WithExplain attaches an explain payload.
func (r Response) WithExplain(explain any) Response {
	r.Explain = explain
	return r
}

// WithStats attaches the stats block.
func (r Response) WithStats(s Stats) Response {
	r.Stats = &s
	return r
}

// WithDiagnostics attaches a doctor-style consistency report.
func (r Response) WithDiagnostics(d any) Response {
	r.Diagnostics = d
	return r
}

// WithWarnings attaches the warnings list, dropped entirely when empty.
func (r Response) WithWarnings(warnings []string) Response {
	if len(warnings) == 0 {
		return r
	}
	r.Warnings = warnings
	return r
}

// Write marshals r as indented JSON to w, terminated by a newline.
func Write(w io.Writer, r Response) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteStream emits r in newline-delimited form for large result sets:
// one compact JSON object for the envelope with results stripped out
// (so a reader can act on stats/warnings/error before the result
// stream finishes), then one compact JSON object per result, each on
// its own line. No indentation, no trailing comma, no wrapping array.
func WriteStream(w io.Writer, r Response) error {
	results := r.Results
	r.Results = nil
	enc := json.NewEncoder(w)
	if err := enc.Encode(r); err != nil {
		return err
	}
	for _, result := range results {
		if err := enc.Encode(result); err != nil {
			return err
		}
	}
	return nil
}

// ContextFromPacked shapes a domain.PackedContext into the stable context
// entry the response contract documents: text, budget_tokens,
// used_tokens, chunks[{path,hash,mtime,offset,tokens,text}].
func ContextFromPacked(pc *domain.PackedContext) map[string]any {
	chunks := make([]map[string]any, len(pc.Chunks))
	for i, c := range pc.Chunks {
		chunks[i] = map[string]any{
			"path": c.Path, "hash": c.Hash, "mtime": c.MTime,
			"offset": c.Offset, "tokens": c.Tokens, "text": c.Text,
		}
	}
	return map[string]any{
		"text": pc.Text, "budget_tokens": pc.BudgetTokens, "used_tokens": pc.UsedTokens, "chunks": chunks,
	}
}

// ExplainFromDomain shapes a domain.Explain into the stable explain
// block. Each call gets its own trace_id, a debugging handle distinct
// from the envelope's request_id.
func ExplainFromDomain(e *domain.Explain) map[string]any {
	timings := make([]map[string]any, len(e.Timings))
	for i, t := range e.Timings {
		timings[i] = map[string]any{"stage": t.Stage, "millis": t.Millis}
	}
	out := map[string]any{
		"trace_id": uuid.NewString(),
		"mode": e.Mode, "lexical_weight": e.LexicalWeight, "semantic_weight": e.SemanticWeight,
		"lexical_candidates": e.LexicalCandCount, "semantic_candidates": e.SemanticCandCount,
		"timings": timings,
	}
	if e.Sanitized != nil {
		out["sanitized"] = map[string]any{"original": e.Sanitized.Original, "sanitized": e.Sanitized.Sanitized}
	}
	return out
}

// ResultFromScoredChunk shapes a domain.ScoredChunk into the stable
// result entry the response contract documents: score, doc, chunk.
// fields is the parsed SELECT list; nil (or a list containing
// domain.ProjectAll) returns the full projection. Otherwise only the
// requested doc/chunk fields (and score, if selected) are included;
// unknown qualified fields are silently omitted rather than erroring,
// per RQL's permissive SELECT rule.
func ResultFromScoredChunk(sc domain.ScoredChunk, fields []domain.ProjectionItem) map[string]any {
	doc := map[string]any{
		"id": sc.Doc.ID, "path": sc.Doc.Path, "mtime": sc.Doc.MTime,
		"hash": sc.Doc.Hash, "tag": sc.Doc.Tag, "source": sc.Doc.Source, "meta": sc.Doc.Meta,
	}
	chunk := map[string]any{
		"id": sc.Chunk.ID, "doc_id": sc.Chunk.DocID, "offset": sc.Chunk.Offset,
		"tokens": sc.Chunk.Tokens, "text": sc.Chunk.Text,
	}
	full := map[string]any{
		"score": sc.Score,
		"doc":   doc,
		"chunk": chunk,
		"explain": map[string]any{
			"lexical":  sc.LexicalScore,
			"semantic": sc.SemanticScore,
		},
	}

	if !isProjected(fields) {
		return full
	}

	out := map[string]any{}
	docOut := map[string]any{}
	chunkOut := map[string]any{}
	for _, f := range fields {
		switch f.Kind {
		case domain.ProjectAll:
			return full
		case domain.ProjectScore:
			out["score"] = sc.Score
		case domain.ProjectField:
			projectField(f.Field, doc, chunk, docOut, chunkOut)
		}
	}
	if len(docOut) > 0 {
		out["doc"] = docOut
	}
	if len(chunkOut) > 0 {
		out["chunk"] = chunkOut
	}
	return out
}

// isProjected reports whether fields actually restricts the result
// shape: nil or empty means "*".
func isProjected(fields []domain.ProjectionItem) bool {
	return len(fields) > 0
}

// projectField copies one SELECT field from the full doc/chunk maps
// into the projected output maps, ignoring fields that don't resolve
// (unknown names, or doc.meta.<key> keys not present on this doc).
func projectField(f domain.ProjectionField, doc, chunk map[string]any, docOut, chunkOut map[string]any) {
	const metaPrefix = "meta."
	if len(f.Name) > len(metaPrefix) && f.Name[:len(metaPrefix)] == metaPrefix {
		key := f.Name[len(metaPrefix):]
		meta, _ := doc["meta"].(map[string]any)
		if v, ok := meta[key]; ok {
			metaOut, _ := docOut["meta"].(map[string]any)
			if metaOut == nil {
				metaOut = map[string]any{}
				docOut["meta"] = metaOut
			}
			metaOut[key] = v
		}
		return
	}
	switch f.Table {
	case domain.TableChunk:
		if v, ok := chunk[f.Name]; ok {
			chunkOut[f.Name] = v
		}
	default:
		// TableDoc, or an unqualified name: resolve against doc first.
		if v, ok := doc[f.Name]; ok {
			docOut[f.Name] = v
			return
		}
		if v, ok := chunk[f.Name]; ok {
			chunkOut[f.Name] = v
		}
	}
}
