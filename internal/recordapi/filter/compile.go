package filter

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/autobrr/litebase/internal/schema"
)

// ColumnTyper resolves a (possibly dotted, e.g. a joined foreign table's)
// column name to its declared type, so Compile can decode base64 blob
// filter values the same way params.Build does.
type ColumnTyper func(column string) (schema.ColumnType, bool)

// Compile renders node as a SQL boolean expression plus its positional
// arguments, quoting every column through quoteIdent and never
// interpolating a filter value directly into the string.
func Compile(node Node, typer ColumnTyper) (string, []any, error) {
	if node == nil {
		return "", nil, nil
	}
	var b strings.Builder
	var args []any
	if err := compileNode(&b, &args, node, typer); err != nil {
		return "", nil, err
	}
	return b.String(), args, nil
}

func compileNode(b *strings.Builder, args *[]any, node Node, typer ColumnTyper) error {
	switch n := node.(type) {
	case Comparison:
		return compileComparison(b, args, n, typer)
	case And:
		return compileJunction(b, args, n.Children, "AND", typer)
	case Or:
		return compileJunction(b, args, n.Children, "OR", typer)
	default:
		return fmt.Errorf("filter: unknown node type %T", node)
	}
}

func compileJunction(b *strings.Builder, args *[]any, children []Node, joiner string, typer ColumnTyper) error {
	if len(children) == 0 {
		b.WriteString("1")
		return nil
	}
	b.WriteString("(")
	for i, c := range children {
		if i > 0 {
			b.WriteString(" ")
			b.WriteString(joiner)
			b.WriteString(" ")
		}
		if err := compileNode(b, args, c, typer); err != nil {
			return err
		}
	}
	b.WriteString(")")
	return nil
}

func compileComparison(b *strings.Builder, args *[]any, c Comparison, typer ColumnTyper) error {
	colType := schema.Text
	if typer != nil {
		if t, ok := typer(c.Column); ok {
			colType = t
		}
	}

	ident := quoteIdent(c.Column)

	if c.Op == OpIs {
		switch strings.ToLower(c.Value) {
		case "null":
			b.WriteString(ident + " IS NULL")
		case "notnull", "not null", "not_null":
			b.WriteString(ident + " IS NOT NULL")
		default:
			return fmt.Errorf("filter: $is requires null or notnull, got %q", c.Value)
		}
		return nil
	}

	val, err := decodeFilterValue(colType, c.Value)
	if err != nil {
		return err
	}

	switch c.Op {
	case OpEq:
		b.WriteString(ident + " = ?")
	case OpNe:
		b.WriteString(ident + " != ?")
	case OpLt:
		b.WriteString(ident + " < ?")
	case OpLte:
		b.WriteString(ident + " <= ?")
	case OpGt:
		b.WriteString(ident + " > ?")
	case OpGte:
		b.WriteString(ident + " >= ?")
	case OpLike:
		b.WriteString(ident + " LIKE ?")
	case OpRe:
		b.WriteString(ident + " REGEXP ?")
	default:
		return fmt.Errorf("filter: unsupported operator %q", c.Op)
	}
	*args = append(*args, val)
	return nil
}

// decodeFilterValue mirrors params.coerce's per-type value translation so
// a filter value is bound with the same semantics a write would use.
func decodeFilterValue(t schema.ColumnType, raw string) (any, error) {
	switch t {
	case schema.Integer:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("filter: expected integer, got %q", raw)
		}
		return n, nil
	case schema.Real:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("filter: expected number, got %q", raw)
		}
		return f, nil
	case schema.Blob:
		b, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("filter: expected url-safe-base64, got %q", raw)
		}
		return b, nil
	default:
		return raw, nil
	}
}

func quoteIdent(name string) string {
	// Dotted names address a joined foreign table's column (spec.md §4.4
	// expansion joins); quote each segment independently.
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}
