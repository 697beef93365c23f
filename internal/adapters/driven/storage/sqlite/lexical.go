package sqlite

import (
	"context"
	"database/sql"
	"regexp"
	"strings"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
)

// lexicalIndex implements driven.LexicalIndex over the chunk_fts virtual
// table declared in the migrations.
type lexicalIndex struct {
	db *sql.DB
}

var _ driven.LexicalIndex = (*lexicalIndex)(nil)

var nonWordRun = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// sanitizeFTSQuery reduces query to a space-joined run of alphanumeric
// tokens, stripping any FTS5 query-syntax character that would otherwise
// raise a parse error.
func sanitizeFTSQuery(query string) string {
	fields := nonWordRun.Split(strings.TrimSpace(query), -1)
	var kept []string
	for _, f := range fields {
		if f != "" {
			kept = append(kept, f)
		}
	}
	return strings.Join(kept, " ")
}

func (l *lexicalIndex) Search(ctx context.Context, query string, mode driven.LexicalMode, predicate domain.Predicate, snapshot string, limit int) ([]driven.LexicalHit, []driven.LexicalWarning, error) {
	if limit <= 0 {
		return nil, nil, nil
	}

	ftsQuery := query
	if mode == driven.ModeLiteral {
		sanitized := sanitizeFTSQuery(query)
		if sanitized == "" {
			return nil, nil, nil
		}
		ftsQuery = `"` + sanitized + `"`
	}

	hits, err := l.search(ctx, ftsQuery, predicate, snapshot, limit)
	if err == nil {
		return hits, nil, nil
	}
	if mode == driven.ModeLiteral {
		return nil, nil, domain.Wrap(domain.KindIO, "lexical search", err)
	}

	sanitized := sanitizeFTSQuery(query)
	if sanitized == "" {
		return nil, []driven.LexicalWarning{{
			Code: "lexical_query_empty_after_sanitize", Message: "query had no searchable tokens after sanitizing",
			Original: query,
		}}, nil
	}
	hits, retryErr := l.search(ctx, sanitized, predicate, snapshot, limit)
	if retryErr != nil {
		return nil, nil, domain.Wrap(domain.KindIO, "lexical search (sanitized retry)", retryErr)
	}
	return hits, []driven.LexicalWarning{{
		Code: "lexical_query_sanitized", Message: "native FTS syntax failed to parse; retried as a sanitized literal",
		Original: query, Sanitized: sanitized,
	}}, nil
}

func (l *lexicalIndex) search(ctx context.Context, ftsQuery string, predicate domain.Predicate, snapshot string, limit int) ([]driven.LexicalHit, error) {
	var sb strings.Builder
	args := []any{ftsQuery}
	sb.WriteString(`
		SELECT chunk.id, bm25(chunk_fts) AS rank
		FROM chunk_fts
		JOIN chunk ON chunk.rowid = chunk_fts.rowid
		JOIN doc ON doc.id = chunk.doc_id
		WHERE chunk_fts MATCH ? AND chunk.deleted = 0 AND doc.deleted = 0`)
	if snapshot != "" {
		sb.WriteString(` AND doc.mtime <= ?`)
		args = append(args, snapshot)
	}
	if !predicate.Empty() {
		sb.WriteString(" AND (")
		sb.WriteString(predicate.SQL)
		sb.WriteString(")")
		args = append(args, predicate.Args...)
	}
	sb.WriteString(" ORDER BY rank LIMIT ?")
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []driven.LexicalHit
	for rows.Next() {
		var id string
		var rank float64
		if err := rows.Scan(&id, &rank); err != nil {
			return nil, err
		}
		// bm25() returns lower-is-better; invert so higher is better,
		// matching VectorHit and the fusion stage's shared convention.
		hits = append(hits, driven.LexicalHit{ChunkID: id, Score: -rank})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return hits, nil
}
