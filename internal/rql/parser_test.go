package rql

import (
	"testing"

	"github.com/custodia-labs/recall/internal/core/domain"
)

func TestParseQuery_Pipeline(t *testing.T) {
	q, err := ParseQuery(`FROM chunk USING semantic("ip rotation") FILTER doc.tag = 'policy' ORDER BY score DESC LIMIT 10 OFFSET 5 SELECT chunk.text, doc.path;`)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if q.Table != domain.TableChunk {
		t.Fatalf("expected chunk table, got %v", q.Table)
	}
	if q.UsingSemantic == nil || *q.UsingSemantic != "ip rotation" {
		t.Fatalf("expected semantic clause, got %v", q.UsingSemantic)
	}
	if q.Filter == nil || q.Filter.Predicate == nil {
		t.Fatalf("expected a filter predicate")
	}
	if q.OrderBy == nil || q.OrderBy.Target != OrderScore || q.OrderBy.Dir != Desc {
		t.Fatalf("expected ORDER BY score DESC, got %+v", q.OrderBy)
	}
	if q.Limit == nil || *q.Limit != 10 {
		t.Fatalf("expected limit 10, got %v", q.Limit)
	}
	if q.Offset == nil || *q.Offset != 5 {
		t.Fatalf("expected offset 5, got %v", q.Offset)
	}
	if len(q.Fields) != 2 {
		t.Fatalf("expected 2 select fields, got %d", len(q.Fields))
	}
}

func TestParseQuery_Legacy(t *testing.T) {
	pipeline, err := ParseQuery(`FROM doc FILTER doc.source = 'wiki' LIMIT 3 SELECT doc.path;`)
	if err != nil {
		t.Fatalf("pipeline parse error: %v", err)
	}
	legacy, err := ParseQuery(`SELECT doc.path FROM doc FILTER doc.source = 'wiki' LIMIT 3;`)
	if err != nil {
		t.Fatalf("legacy parse error: %v", err)
	}
	if pipeline.Table != legacy.Table {
		t.Fatalf("tables differ: %v vs %v", pipeline.Table, legacy.Table)
	}
	if *pipeline.Limit != *legacy.Limit {
		t.Fatalf("limits differ")
	}
}

func TestParseQuery_NoUsing_OrderByScoreIgnoredUpstream(t *testing.T) {
	// The parser itself doesn't reject ORDER BY score without USING;
	// validation of that rule belongs to the planner (SPEC_FULL §4.5).
	q, err := ParseQuery(`FROM chunk ORDER BY score DESC SELECT chunk.text;`)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if q.UsingSemantic != nil || q.UsingLexical != nil {
		t.Fatalf("expected no USING clause")
	}
	if q.OrderBy == nil || q.OrderBy.Target != OrderScore {
		t.Fatalf("expected ORDER BY score to be parsed, got %+v", q.OrderBy)
	}
}

func TestParseQuery_MetaField(t *testing.T) {
	q, err := ParseQuery(`FROM doc FILTER doc.meta.author = 'alice' SELECT *;`)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	pred := q.Filter.Predicate
	if pred == nil {
		t.Fatalf("expected predicate")
	}
	key, ok := pred.Field.MetaKey()
	if !ok || key != "author" {
		t.Fatalf("expected meta key 'author', got %q ok=%v", key, ok)
	}
}

func TestParseQuery_RejectsUnknownTable(t *testing.T) {
	_, err := ParseQuery(`FROM paragraph SELECT *;`)
	if err == nil {
		t.Fatalf("expected error for unknown table")
	}
}

func TestParseFilter_Precedence(t *testing.T) {
	// NOT binds tighter than AND, AND binds tighter than OR.
	expr, err := ParseFilter(`doc.tag = 'a' OR doc.tag = 'b' AND NOT doc.tag = 'c'`)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if expr.Or == nil {
		t.Fatalf("expected top-level OR, got %+v", expr)
	}
	right := expr.Or.Right
	if right.And == nil {
		t.Fatalf("expected AND on the right of OR, got %+v", right)
	}
	if right.And.Right.Not == nil {
		t.Fatalf("expected NOT nested under AND, got %+v", right.And.Right)
	}
}

func TestParseFilter_InList(t *testing.T) {
	expr, err := ParseFilter(`doc.tag IN ('a', 'b', 'c')`)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if expr.Predicate == nil || !expr.Predicate.IsIn() {
		t.Fatalf("expected IN predicate, got %+v", expr)
	}
	if len(expr.Predicate.Values) != 3 {
		t.Fatalf("expected 3 values, got %d", len(expr.Predicate.Values))
	}
}

func TestParseFilter_Comparisons(t *testing.T) {
	cases := map[string]CmpOp{
		`chunk.offset = 1`:   Eq,
		`chunk.offset != 1`:  Ne,
		`chunk.offset < 1`:   Lt,
		`chunk.offset <= 1`:  Lte,
		`chunk.offset > 1`:   Gt,
		`chunk.offset >= 1`:  Gte,
		`doc.path LIKE '%x%'`: Like,
		`doc.path GLOB '*.md'`: Glob,
	}
	for src, want := range cases {
		expr, err := ParseFilter(src)
		if err != nil {
			t.Fatalf("parse error for %q: %v", src, err)
		}
		if expr.Predicate == nil || expr.Predicate.Op != want {
			t.Fatalf("%q: expected op %v, got %+v", src, want, expr.Predicate)
		}
	}
}
