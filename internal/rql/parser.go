package rql

import (
	"fmt"
	"strings"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// ParseQuery parses either grammar (pipeline or legacy SELECT-first) into
// a shared Query AST.
func ParseQuery(input string) (*Query, error) {
	tokens, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	q, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	return q, nil
}

// ParseFilter parses a standalone FEL expression, for contexts (such as
// CLI flags) that accept a filter without a surrounding RQL statement.
func ParseFilter(input string) (*FilterExpr, error) {
	tokens, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	expr, err := p.parseFilterExpr()
	if err != nil {
		return nil, err
	}
	if p.peekKind() != tokEOF {
		return nil, fmt.Errorf("rql: unexpected trailing input in filter")
	}
	return expr, nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token       { return p.tokens[p.pos] }
func (p *parser) peekKind() tokenKind { return p.tokens[p.pos].kind }
func (p *parser) next() token {
	t := p.tokens[p.pos]
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return t
}

func (p *parser) peekKeyword(kw string) bool { return isKeyword(p.peek(), kw) }

func (p *parser) expectKeyword(kw string) error {
	if !p.peekKeyword(kw) {
		return fmt.Errorf("rql: expected %q, got %s", strings.ToUpper(kw), describeToken(p.peek()))
	}
	p.next()
	return nil
}

func (p *parser) expectKind(k tokenKind, label string) (token, error) {
	if p.peekKind() != k {
		return token{}, fmt.Errorf("rql: expected %s, got %s", label, describeToken(p.peek()))
	}
	return p.next(), nil
}

func describeToken(t token) string {
	switch t.kind {
	case tokIdent:
		return fmt.Sprintf("identifier %q", t.text)
	case tokString:
		return fmt.Sprintf("string %q", t.text)
	case tokNumber:
		return "number"
	case tokEOF:
		return "end of input"
	default:
		return "token"
	}
}

func (p *parser) parseQuery() (*Query, error) {
	var q *Query
	var err error
	switch {
	case p.peekKeyword("select"):
		q, err = p.parseSelectFirst()
	case p.peekKeyword("from"):
		q, err = p.parseFromFirst()
	default:
		return nil, fmt.Errorf("rql: expected SELECT or FROM, got %s", describeToken(p.peek()))
	}
	if err != nil {
		return nil, err
	}
	if p.peekKind() == tokSemicolon {
		p.next()
	}
	if p.peekKind() != tokEOF {
		return nil, fmt.Errorf("rql: unexpected trailing input at %s", describeToken(p.peek()))
	}
	return q, nil
}

func (p *parser) parseSelectFirst() (*Query, error) {
	if err := p.expectKeyword("select"); err != nil {
		return nil, err
	}
	fields, err := p.parseSelectFields()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("from"); err != nil {
		return nil, err
	}
	table, err := p.parseTable()
	if err != nil {
		return nil, err
	}
	q := &Query{Fields: fields, Table: table}
	if err := p.parseClauses(q); err != nil {
		return nil, err
	}
	return q, nil
}

func (p *parser) parseFromFirst() (*Query, error) {
	if err := p.expectKeyword("from"); err != nil {
		return nil, err
	}
	table, err := p.parseTable()
	if err != nil {
		return nil, err
	}
	q := &Query{Table: table}
	if err := p.parseClauses(q); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("select"); err != nil {
		return nil, err
	}
	fields, err := p.parseSelectFields()
	if err != nil {
		return nil, err
	}
	q.Fields = fields
	return q, nil
}

// parseClauses parses USING/FILTER/ORDER BY/LIMIT, in that order, all
// optional, shared by both grammar entry points.
func (p *parser) parseClauses(q *Query) error {
	sem, lex, err := p.parseUsingClause()
	if err != nil {
		return err
	}
	q.UsingSemantic, q.UsingLexical = sem, lex

	filter, err := p.parseFilterClause()
	if err != nil {
		return err
	}
	q.Filter = filter

	order, err := p.parseOrderClause()
	if err != nil {
		return err
	}
	q.OrderBy = order

	limit, offset, err := p.parseLimitClause()
	if err != nil {
		return err
	}
	q.Limit, q.Offset = limit, offset
	return nil
}

func (p *parser) parseTable() (domain.Table, error) {
	t, err := p.expectKind(tokIdent, "table name")
	if err != nil {
		return "", err
	}
	switch strings.ToLower(t.text) {
	case "doc":
		return domain.TableDoc, nil
	case "chunk":
		return domain.TableChunk, nil
	default:
		return "", fmt.Errorf("rql: unknown table %q (expected doc or chunk)", t.text)
	}
}

func (p *parser) parseSelectFields() ([]SelectItem, error) {
	var items []SelectItem
	for {
		switch {
		case p.peekKind() == tokStar:
			p.next()
			items = append(items, SelectItem{Kind: SelectAll})
		case p.peekKeyword("score"):
			p.next()
			items = append(items, SelectItem{Kind: SelectScore})
		default:
			f, err := p.parseFieldRef()
			if err != nil {
				return nil, err
			}
			items = append(items, SelectItem{Kind: SelectField, Field: f})
		}
		if p.peekKind() != tokComma {
			break
		}
		p.next()
	}
	return items, nil
}

// parseFieldRef parses ident ('.' ident)*, where a leading "doc"/"chunk"
// segment becomes the table qualifier and any remaining dotted segments
// are joined back with '.' into Name (so doc.meta.author yields
// Table=doc, Name="meta.author").
func (p *parser) parseFieldRef() (FieldRef, error) {
	first, err := p.expectKind(tokIdent, "field name")
	if err != nil {
		return FieldRef{}, err
	}
	var segs []string
	for p.peekKind() == tokDot {
		p.next()
		seg, err := p.expectKind(tokIdent, "field segment")
		if err != nil {
			return FieldRef{}, err
		}
		segs = append(segs, seg.text)
	}
	if len(segs) == 0 {
		return FieldRef{Name: first.text}, nil
	}
	switch strings.ToLower(first.text) {
	case "doc":
		return FieldRef{Table: domain.TableDoc, Name: strings.Join(segs, ".")}, nil
	case "chunk":
		return FieldRef{Table: domain.TableChunk, Name: strings.Join(segs, ".")}, nil
	default:
		return FieldRef{Name: strings.Join(append([]string{first.text}, segs...), ".")}, nil
	}
}

func (p *parser) parseUsingClause() (sem, lexQ *string, err error) {
	if !p.peekKeyword("using") {
		return nil, nil, nil
	}
	p.next()
	for {
		switch {
		case p.peekKeyword("semantic"):
			p.next()
			s, err := p.parseParenString()
			if err != nil {
				return nil, nil, err
			}
			sem = &s
		case p.peekKeyword("lexical"):
			p.next()
			s, err := p.parseParenString()
			if err != nil {
				return nil, nil, err
			}
			lexQ = &s
		default:
			return sem, lexQ, nil
		}
		if p.peekKind() != tokComma {
			return sem, lexQ, nil
		}
		p.next()
	}
}

func (p *parser) parseParenString() (string, error) {
	if _, err := p.expectKind(tokLParen, "'('"); err != nil {
		return "", err
	}
	s, err := p.expectKind(tokString, "string literal")
	if err != nil {
		return "", err
	}
	if _, err := p.expectKind(tokRParen, "')'"); err != nil {
		return "", err
	}
	return s.text, nil
}

func (p *parser) parseFilterClause() (*FilterExpr, error) {
	if !p.peekKeyword("filter") {
		return nil, nil
	}
	p.next()
	return p.parseFilterExpr()
}

func (p *parser) parseFilterExpr() (*FilterExpr, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (*FilterExpr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peekKeyword("or") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = NewOr(left, right)
	}
	return left, nil
}

func (p *parser) parseAnd() (*FilterExpr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peekKeyword("and") {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = NewAnd(left, right)
	}
	return left, nil
}

func (p *parser) parseNot() (*FilterExpr, error) {
	if p.peekKeyword("not") {
		p.next()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return NewNot(inner), nil
	}
	return p.parseAtom()
}

func (p *parser) parseAtom() (*FilterExpr, error) {
	if p.peekKind() == tokLParen {
		p.next()
		expr, err := p.parseFilterExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectKind(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return expr, nil
	}
	pred, err := p.parsePredicate()
	if err != nil {
		return nil, err
	}
	return NewPredicate(pred), nil
}

func (p *parser) parsePredicate() (Predicate, error) {
	field, err := p.parseFieldRef()
	if err != nil {
		return Predicate{}, err
	}
	if p.peekKeyword("in") {
		p.next()
		if _, err := p.expectKind(tokLParen, "'('"); err != nil {
			return Predicate{}, err
		}
		var values []Value
		for {
			v, err := p.parseValue()
			if err != nil {
				return Predicate{}, err
			}
			values = append(values, v)
			if p.peekKind() != tokComma {
				break
			}
			p.next()
		}
		if _, err := p.expectKind(tokRParen, "')'"); err != nil {
			return Predicate{}, err
		}
		return Predicate{Field: field, Values: values}, nil
	}

	op, err := p.parseCmpOp()
	if err != nil {
		return Predicate{}, err
	}
	val, err := p.parseValue()
	if err != nil {
		return Predicate{}, err
	}
	return Predicate{Field: field, Op: op, Value: val}, nil
}

func (p *parser) parseCmpOp() (CmpOp, error) {
	switch {
	case p.peekKind() == tokEq:
		p.next()
		return Eq, nil
	case p.peekKind() == tokNe:
		p.next()
		return Ne, nil
	case p.peekKind() == tokLte:
		p.next()
		return Lte, nil
	case p.peekKind() == tokLt:
		p.next()
		return Lt, nil
	case p.peekKind() == tokGte:
		p.next()
		return Gte, nil
	case p.peekKind() == tokGt:
		p.next()
		return Gt, nil
	case p.peekKeyword("like"):
		p.next()
		return Like, nil
	case p.peekKeyword("glob"):
		p.next()
		return Glob, nil
	default:
		return 0, fmt.Errorf("rql: expected comparison operator, got %s", describeToken(p.peek()))
	}
}

func (p *parser) parseValue() (Value, error) {
	switch p.peekKind() {
	case tokString:
		t := p.next()
		return Value{Kind: ValString, Str: t.text}, nil
	case tokNumber:
		t := p.next()
		return Value{Kind: ValNumber, Num: t.num}, nil
	default:
		return Value{}, fmt.Errorf("rql: expected value, got %s", describeToken(p.peek()))
	}
}

func (p *parser) parseOrderClause() (*OrderBy, error) {
	if !p.peekKeyword("order") {
		return nil, nil
	}
	p.next()
	if err := p.expectKeyword("by"); err != nil {
		return nil, err
	}
	var ob OrderBy
	if p.peekKeyword("score") {
		p.next()
		ob.Target = OrderScore
	} else {
		f, err := p.parseFieldRef()
		if err != nil {
			return nil, err
		}
		ob.Target = OrderField
		ob.Field = f
	}
	ob.Dir = Asc
	switch {
	case p.peekKeyword("asc"):
		p.next()
		ob.Dir = Asc
	case p.peekKeyword("desc"):
		p.next()
		ob.Dir = Desc
	}
	return &ob, nil
}

func (p *parser) parseLimitClause() (limit, offset *int, err error) {
	if !p.peekKeyword("limit") {
		return nil, nil, nil
	}
	p.next()
	n, err := p.expectKind(tokNumber, "limit value")
	if err != nil {
		return nil, nil, err
	}
	l := int(n.num)
	limit = &l
	if p.peekKeyword("offset") {
		p.next()
		m, err := p.expectKind(tokNumber, "offset value")
		if err != nil {
			return nil, nil, err
		}
		o := int(m.num)
		offset = &o
	}
	return limit, offset, nil
}
