// Package filter compiles a parsed FEL expression (internal/rql's
// FilterExpr) into a sargable SQL predicate: parameter-bound, validated
// against the known doc/chunk column catalog, with doc.meta.<key> lowered
// to a JSON path lookup.
package filter

import (
	"fmt"
	"strings"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/rql"
)

var docColumns = map[string]bool{
	"id": true, "path": true, "hash": true, "mtime": true,
	"tag": true, "source": true, "deleted": true,
}

var chunkColumns = map[string]bool{
	"id": true, "doc_id": true, "offset": true, "tokens": true,
	"text": true, "deleted": true,
}

// Compile lowers expr to a domain.Predicate. defaultTable resolves
// unqualified field references (as RQL never requires qualification
// inside a FILTER clause, only the grammar prefers it).
func Compile(expr *rql.FilterExpr, defaultTable domain.Table) (domain.Predicate, error) {
	if expr == nil {
		return domain.Predicate{}, nil
	}
	var sb strings.Builder
	var args []any
	if err := compileExpr(expr, defaultTable, &sb, &args); err != nil {
		return domain.Predicate{}, err
	}
	return domain.Predicate{SQL: sb.String(), Args: args}, nil
}

func compileExpr(expr *rql.FilterExpr, defaultTable domain.Table, sb *strings.Builder, args *[]any) error {
	switch {
	case expr.And != nil:
		sb.WriteByte('(')
		if err := compileExpr(expr.And.Left, defaultTable, sb, args); err != nil {
			return err
		}
		sb.WriteString(" AND ")
		if err := compileExpr(expr.And.Right, defaultTable, sb, args); err != nil {
			return err
		}
		sb.WriteByte(')')
	case expr.Or != nil:
		sb.WriteByte('(')
		if err := compileExpr(expr.Or.Left, defaultTable, sb, args); err != nil {
			return err
		}
		sb.WriteString(" OR ")
		if err := compileExpr(expr.Or.Right, defaultTable, sb, args); err != nil {
			return err
		}
		sb.WriteByte(')')
	case expr.Not != nil:
		sb.WriteString("NOT (")
		if err := compileExpr(expr.Not, defaultTable, sb, args); err != nil {
			return err
		}
		sb.WriteByte(')')
	case expr.Predicate != nil:
		return compilePredicate(*expr.Predicate, defaultTable, sb, args)
	default:
		return fmt.Errorf("filter: empty expression node")
	}
	return nil
}

func compilePredicate(p rql.Predicate, defaultTable domain.Table, sb *strings.Builder, args *[]any) error {
	col, err := resolveField(p.Field, defaultTable)
	if err != nil {
		return err
	}

	if p.IsIn() {
		sb.WriteString(col)
		sb.WriteString(" IN (")
		for i, v := range p.Values {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteByte('?')
			*args = append(*args, valueArg(v))
		}
		sb.WriteByte(')')
		return nil
	}

	op, err := sqlOp(p.Op)
	if err != nil {
		return err
	}
	sb.WriteString(col)
	sb.WriteByte(' ')
	sb.WriteString(op)
	sb.WriteString(" ?")
	*args = append(*args, valueArg(p.Value))
	return nil
}

func sqlOp(op rql.CmpOp) (string, error) {
	switch op {
	case rql.Eq:
		return "=", nil
	case rql.Ne:
		return "!=", nil
	case rql.Lt:
		return "<", nil
	case rql.Lte:
		return "<=", nil
	case rql.Gt:
		return ">", nil
	case rql.Gte:
		return ">=", nil
	case rql.Like:
		return "LIKE", nil
	case rql.Glob:
		return "GLOB", nil
	default:
		return "", fmt.Errorf("filter: unknown comparison operator")
	}
}

func valueArg(v rql.Value) any {
	if v.Kind == rql.ValNumber {
		return v.Num
	}
	return v.Str
}

// resolveField maps a FieldRef to a column expression, validating it
// against the doc/chunk column catalog. Unqualified fields resolve
// against defaultTable.
func resolveField(f rql.FieldRef, defaultTable domain.Table) (string, error) {
	table := f.Table
	if table == "" {
		table = defaultTable
	}

	if key, ok := f.MetaKey(); ok {
		if table != domain.TableDoc {
			return "", fmt.Errorf("filter: unknown field %s.meta.%s", table, key)
		}
		return fmt.Sprintf("json_extract(doc.meta, '$.%s')", jsonKeyEscape(key)), nil
	}

	switch table {
	case domain.TableDoc:
		if !docColumns[f.Name] {
			return "", fmt.Errorf("filter: unknown field doc.%s", f.Name)
		}
		return "doc." + f.Name, nil
	case domain.TableChunk:
		if !chunkColumns[f.Name] {
			return "", fmt.Errorf("filter: unknown field chunk.%s", f.Name)
		}
		return "chunk." + f.Name, nil
	default:
		return "", fmt.Errorf("filter: unqualified field %q with no default table", f.Name)
	}
}

// jsonKeyEscape guards against a meta key that would break out of the
// json_extract path literal; keys are restricted to a conservative charset
// by the normalization rule in SPEC_FULL §3, but this is re-checked here
// since Compile is the security boundary for generated SQL text: any rune
// outside [A-Za-z0-9_] becomes '_'.
func jsonKeyEscape(key string) string {
	var sb strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}
