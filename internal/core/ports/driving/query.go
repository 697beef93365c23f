package driving

import (
	"context"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// QueryService runs a parsed-or-raw RQL request end to end: validate,
// plan candidates, fuse and order scores, paginate against a snapshot,
// and optionally pack a context window.
type QueryService interface {
	Query(ctx context.Context, req domain.QueryRequest) (*domain.QueryResult, error)
}
