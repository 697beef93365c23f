package driven

import (
	"context"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// VectorHit is a single vector-index match.
type VectorHit struct {
	ChunkID string
	Score   float64 // 1 - cosine distance, in [-1, 1]; higher is better
}

// VectorIndex provides cosine-KNN search over chunk embeddings. Backed by
// a deterministic LSH shortlist with an exact flat-scan fallback, so it
// never depends on a cgo vector library.
type VectorIndex interface {
	// Search returns the top-k chunks nearest to query by cosine
	// similarity, restricted to chunks (joined with their docs) that
	// satisfy predicate and are visible at snapshot. Ties break on
	// ChunkID ascending.
	Search(ctx context.Context, query []float32, k int, predicate domain.Predicate, snapshot string) ([]VectorHit, error)
}
