package domain

// Predicate is a compiled FILTER expression: a sargable SQL boolean
// fragment plus its bound parameters, in positional order. It is the only
// place a SQL-shaped value crosses from the filter compiler into the
// driven ports; domain stays otherwise storage-agnostic.
//
// SQL references columns as doc.<col> / chunk.<col>, and metadata as
// json_extract(doc.meta, '$.<key>'),
// matching the aliases the SQLite adapter's queries join under. An empty
// Predicate (SQL == "") means "no filter" and must be treated as always-true.
type Predicate struct {
	SQL  string
	Args []any
}

// Empty reports whether p imposes no constraint.
func (p Predicate) Empty() bool {
	return p.SQL == ""
}
