package driven

import (
	"context"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// LexicalMode selects how the lexical index interprets the query string.
type LexicalMode int

const (
	// ModeFTS5 parses the query with the index's native syntax, falling
	// back to a sanitized retry on a parse error.
	ModeFTS5 LexicalMode = iota

	// ModeLiteral treats the query as a phrase of alphanumeric tokens,
	// skipping syntax parsing entirely.
	ModeLiteral
)

// LexicalWarning records a degraded-mode event from the lexical stage,
// surfaced in the response envelope's warnings list as its code, its
// message and, when set, its sanitized form.
type LexicalWarning struct {
	Code      string
	Message   string
	Original  string
	Sanitized string
}

// LexicalHit is a single lexical-index match.
type LexicalHit struct {
	ChunkID string
	Score   float64 // raw BM25-style score; higher is better
}

// LexicalIndex provides full-text search over chunk.text. Backed by
// SQLite FTS5 with an external-content table kept in sync with chunk via
// triggers.
type LexicalIndex interface {
	// Search executes query in mode, restricted to chunks (joined with
	// their docs) that satisfy predicate and are visible at snapshot,
	// returning up to limit hits ordered by score descending.
	Search(ctx context.Context, query string, mode LexicalMode, predicate domain.Predicate, snapshot string, limit int) ([]LexicalHit, []LexicalWarning, error)
}
