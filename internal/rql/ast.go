// Package rql implements Recall Query Language parsing: both the
// pipeline-canonical grammar (FROM ... USING ... FILTER ... ORDER BY ...
// LIMIT ... SELECT ...) and the legacy SELECT-first grammar, into one
// shared AST.
package rql

import "github.com/custodia-labs/recall/internal/core/domain"

// OrderDir is the sort direction of an ORDER BY clause.
type OrderDir int

const (
	Asc OrderDir = iota
	Desc
)

// OrderTarget names what ORDER BY sorts on.
type OrderTarget int

const (
	OrderScore OrderTarget = iota
	OrderField
)

// OrderBy is a parsed ORDER BY clause.
type OrderBy struct {
	Target OrderTarget
	Field  FieldRef // valid only when Target == OrderField
	Dir    OrderDir
}

// SelectKind distinguishes the three shapes a SELECT list entry can take.
type SelectKind int

const (
	SelectAll SelectKind = iota
	SelectScore
	SelectField
)

// SelectItem is one entry of the SELECT field list.
type SelectItem struct {
	Kind  SelectKind
	Field FieldRef // valid only when Kind == SelectField
}

// FieldRef is a (optionally table-qualified) field reference, e.g.
// "doc.path", "chunk.offset", "doc.meta.author", or a bare "score".
type FieldRef struct {
	Table domain.Table // zero value ("") means unqualified
	Name  string        // for doc.meta.<key>, Name is "meta.<key>"
}

// MetaKey returns the metadata key name when Name is of the form
// "meta.<key>", and ok=true.
func (f FieldRef) MetaKey() (key string, ok bool) {
	const prefix = "meta."
	if len(f.Name) > len(prefix) && f.Name[:len(prefix)] == prefix {
		return f.Name[len(prefix):], true
	}
	return "", false
}

// Query is the parsed, table-agnostic representation of one RQL
// statement, accepted from either the pipeline or legacy grammar.
type Query struct {
	Fields        []SelectItem
	Table         domain.Table
	UsingSemantic *string
	UsingLexical  *string
	Filter        *FilterExpr
	OrderBy       *OrderBy
	Limit         *int
	Offset        *int
}

// FilterExpr is a boolean expression node in the FILTER Expression
// Language (FEL).
type FilterExpr struct {
	And       *andOr
	Or        *andOr
	Not       *FilterExpr
	Predicate *Predicate
}

type andOr struct {
	Left, Right *FilterExpr
}

// NewAnd, NewOr, NewNot, NewPredicate are FilterExpr constructors, kept
// small and explicit rather than exporting the node's internal shape.
func NewAnd(l, r *FilterExpr) *FilterExpr  { return &FilterExpr{And: &andOr{l, r}} }
func NewOr(l, r *FilterExpr) *FilterExpr   { return &FilterExpr{Or: &andOr{l, r}} }
func NewNot(e *FilterExpr) *FilterExpr     { return &FilterExpr{Not: e} }
func NewPredicate(p Predicate) *FilterExpr { return &FilterExpr{Predicate: &p} }

// CmpOp is a comparison operator usable in a FEL predicate.
type CmpOp int

const (
	Eq CmpOp = iota
	Ne
	Lt
	Lte
	Gt
	Gte
	Like
	Glob
)

// ValueKind distinguishes the scalar kinds FEL literals can take.
type ValueKind int

const (
	ValString ValueKind = iota
	ValNumber
)

// Value is a FEL scalar literal.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
}

// Predicate is either a comparison (field op value) or a membership test
// (field IN (values...)).
type Predicate struct {
	Field  FieldRef
	Op     CmpOp    // valid when Values == nil
	Value  Value    // valid when Values == nil
	Values []Value  // valid for IN; nil otherwise
}

// IsIn reports whether p is an IN-membership predicate.
func (p Predicate) IsIn() bool { return p.Values != nil }
