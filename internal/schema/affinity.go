package schema

import "strings"

// affinityOf implements SQLite's column type affinity rules (see the
// SQLite documentation section 3.1) well enough to distinguish the four
// storage classes the params builder and filter DSL care about.
func affinityOf(declared string) ColumnType {
	d := strings.ToUpper(strings.TrimSpace(declared))
	switch {
	case d == "":
		return Blob // spec.md: typeless columns default to BLOB affinity
	case strings.Contains(d, "INT"):
		return Integer
	case strings.Contains(d, "CHAR"), strings.Contains(d, "CLOB"), strings.Contains(d, "TEXT"):
		return Text
	case strings.Contains(d, "BLOB"):
		return Blob
	case strings.Contains(d, "REAL"), strings.Contains(d, "FLOA"), strings.Contains(d, "DOUB"):
		return Real
	case strings.Contains(d, "DEC"), strings.Contains(d, "NUM"):
		return Real
	default:
		return Blob
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
