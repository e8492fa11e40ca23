// Package schema parses sqlite_schema into a typed column model that the
// record API, params builder, and access evaluator all share, and enriches
// it with JSON-schema annotations and foreign-key metadata.
//
// Grounded on the teacher's internal/database dialect.go (which already
// does SQLite/Postgres column-type normalization for cross-dialect
// migration) generalized into the full table/view/PK/FK model spec.md §3
// requires.
package schema

import "fmt"

// ColumnType is SQLite's storage affinity, the set relevant to params
// binding and filter comparisons.
type ColumnType int

const (
	Integer ColumnType = iota + 1
	Real
	Text
	Blob
)

func (t ColumnType) String() string {
	switch t {
	case Integer:
		return "INTEGER"
	case Real:
		return "REAL"
	case Text:
		return "TEXT"
	case Blob:
		return "BLOB"
	default:
		return "UNKNOWN"
	}
}

// JSONKind distinguishes the three things a TEXT column's JSON annotation
// can mean (spec.md §3).
type JSONKind int

const (
	JSONNone JSONKind = iota
	JSONFileUpload
	JSONFileUploads
	JSONSchema
)

// JSONAnnotation attaches validation/lifecycle semantics to a TEXT column.
type JSONAnnotation struct {
	Kind       JSONKind
	SchemaName string // set when Kind == JSONSchema and a named schema is registered
	Pattern    string // inline JSON-schema document, set when SchemaName is empty
}

// PKKind distinguishes the two PK shapes a record-API-eligible entity may
// have (spec.md §3 invariant).
type PKKind int

const (
	PKNone PKKind = iota
	PKIntegerRowID
	PKBlobUUIDv7
)

// ForeignKey describes one FK constraint on a table.
type ForeignKey struct {
	Column       string
	RefTable     string
	RefColumn    string
}

// Column is one column of a table or view, enriched beyond what
// pragma_table_info reports.
type Column struct {
	Name       string
	Type       ColumnType
	NotNull    bool
	PK         bool
	Default    *string
	JSON       *JSONAnnotation
	ForeignKey *ForeignKey
}

// IsFileColumn reports whether the column holds FileUpload/FileUploads JSON.
func (c Column) IsFileColumn() bool {
	return c.JSON != nil && (c.JSON.Kind == JSONFileUpload || c.JSON.Kind == JSONFileUploads)
}

// Entity unifies Table and View the way spec.md §9 suggests: a tagged
// variant exposing the shared read-only surface, with mutation-only
// operations (update/delete/trigger install) available solely on the Table
// arm via a type switch or assertion in the caller.
type Entity interface {
	Name() string
	Database() string
	Columns() []Column
	Column(name string) (Column, bool)
	PKColumn() (Column, PKKind)
	IsView() bool
}

// Table is a mutable, record-API-eligible base table.
type Table struct {
	database string
	name     string
	columns  []Column
	colIndex map[string]int
	pkIndex  int // -1 when none
}

func newTable(database, name string, columns []Column) *Table {
	idx := make(map[string]int, len(columns))
	pk := -1
	for i, c := range columns {
		idx[c.Name] = i
		if c.PK {
			pk = i
		}
	}
	return &Table{database: database, name: name, columns: columns, colIndex: idx, pkIndex: pk}
}

func (t *Table) Name() string     { return t.name }
func (t *Table) Database() string { return t.database }
func (t *Table) Columns() []Column {
	out := make([]Column, len(t.columns))
	copy(out, t.columns)
	return out
}

func (t *Table) Column(name string) (Column, bool) {
	i, ok := t.colIndex[name]
	if !ok {
		return Column{}, false
	}
	return t.columns[i], true
}

func (t *Table) PKColumn() (Column, PKKind) {
	if t.pkIndex < 0 {
		return Column{}, PKNone
	}
	c := t.columns[t.pkIndex]
	if c.Type == Integer {
		return c, PKIntegerRowID
	}
	if c.Type == Blob {
		return c, PKBlobUUIDv7
	}
	return c, PKNone
}

func (t *Table) IsView() bool { return false }

// View is a read-only record-API-eligible entity; it may or may not have a
// resolvable PK (required for record APIs, spec.md §3).
type View struct {
	*Table
}

func (v *View) IsView() bool { return true }

func newView(database, name string, columns []Column) *View {
	return &View{Table: newTable(database, name, columns)}
}

// ErrNoResolvablePK is returned when an entity is registered as a record
// API but has no single Integer or Blob(UUIDv7) PK column.
type ErrNoResolvablePK struct{ Entity string }

func (e ErrNoResolvablePK) Error() string {
	return fmt.Sprintf("schema: entity %q has no resolvable primary key column", e.Entity)
}
