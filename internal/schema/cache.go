package schema

import (
	"context"
	"fmt"
	"sync"

	"github.com/autobrr/litebase/internal/engine"
)

// Cache is the process-wide schema cache: one load per invalidation, shared
// read-only afterwards via an atomically-swapped snapshot (spec.md §2's
// "invalidates on schema change").
type Cache struct {
	eng *engine.Engine

	mu       sync.RWMutex
	tables   map[string]*Table
	views    map[string]*View
	jsonDefs map[string]map[string]*JSONAnnotation // table -> column -> annotation
}

func New(eng *engine.Engine) *Cache {
	return &Cache{eng: eng}
}

// Reload re-parses sqlite_schema and the JSON column annotation table,
// replacing the cached snapshot atomically under the write lock.
func (c *Cache) Reload(ctx context.Context) error {
	jsonDefs, err := c.loadJSONAnnotations(ctx)
	if err != nil {
		return fmt.Errorf("schema: load json annotations: %w", err)
	}

	names, err := c.listEntityNames(ctx)
	if err != nil {
		return fmt.Errorf("schema: list entities: %w", err)
	}

	tables := make(map[string]*Table, len(names))
	views := make(map[string]*View, len(names))

	for _, n := range names {
		cols, err := c.loadColumns(ctx, n.name, jsonDefs[n.name])
		if err != nil {
			return fmt.Errorf("schema: load columns for %q: %w", n.name, err)
		}
		if n.isView {
			views[n.name] = newView("main", n.name, cols)
		} else {
			tables[n.name] = newTable("main", n.name, cols)
		}
	}

	c.mu.Lock()
	c.tables = tables
	c.views = views
	c.jsonDefs = jsonDefs
	c.mu.Unlock()
	return nil
}

type entityName struct {
	name   string
	isView bool
}

func (c *Cache) listEntityNames(ctx context.Context) ([]entityName, error) {
	rows, err := c.eng.ReadQueryRows(ctx, `
		SELECT name, type FROM sqlite_schema
		WHERE type IN ('table', 'view')
		  AND name NOT LIKE 'sqlite_%'
	`)
	if err != nil {
		return nil, err
	}
	out := make([]entityName, 0, len(rows.Values))
	for _, v := range rows.Values {
		out = append(out, entityName{name: v[0].(string), isView: v[1].(string) == "view"})
	}
	return out, nil
}

func (c *Cache) loadColumns(ctx context.Context, table string, jsonCols map[string]*JSONAnnotation) ([]Column, error) {
	rows, err := c.eng.ReadQueryRows(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdent(table)))
	if err != nil {
		return nil, err
	}

	fks, err := c.loadForeignKeys(ctx, table)
	if err != nil {
		return nil, err
	}

	cols := make([]Column, 0, len(rows.Values))
	for _, v := range rows.Values {
		// cid, name, type, notnull, dflt_value, pk
		name, _ := v[1].(string)
		decl, _ := v[2].(string)
		notNull := toInt64(v[3]) != 0
		var def *string
		if s, ok := v[4].(string); ok {
			def = &s
		}
		pk := toInt64(v[5]) != 0

		col := Column{
			Name:    name,
			Type:    affinityOf(decl),
			NotNull: notNull,
			PK:      pk,
			Default: def,
		}
		if fk, ok := fks[name]; ok {
			col.ForeignKey = fk
		}
		if ann, ok := jsonCols[name]; ok {
			col.JSON = ann
		}
		cols = append(cols, col)
	}
	return cols, nil
}

func (c *Cache) loadForeignKeys(ctx context.Context, table string) (map[string]*ForeignKey, error) {
	rows, err := c.eng.ReadQueryRows(ctx, fmt.Sprintf(`PRAGMA foreign_key_list(%s)`, quoteIdent(table)))
	if err != nil {
		return nil, err
	}
	out := map[string]*ForeignKey{}
	for _, v := range rows.Values {
		// id, seq, table, from, to, on_update, on_delete, match
		refTable, _ := v[2].(string)
		from, _ := v[3].(string)
		to, _ := v[4].(string)
		out[from] = &ForeignKey{Column: from, RefTable: refTable, RefColumn: to}
	}
	return out, nil
}

// loadJSONAnnotations reads the _json_column_schemas bookkeeping table,
// whose rows declare a column as std.FileUpload / std.FileUploads / a named
// JSON schema. No code in this repository writes to it. SQLite has no
// queryable column-comment facility, so this dedicated table is this
// implementation's answer to spec.md §3's "JSON-column annotations" --
// documented as an Open Question resolution in DESIGN.md.
func (c *Cache) loadJSONAnnotations(ctx context.Context) (map[string]map[string]*JSONAnnotation, error) {
	out := map[string]map[string]*JSONAnnotation{}

	rows, err := c.eng.ReadQueryRows(ctx, `
		SELECT table_name, column_name, kind, schema_name, pattern
		FROM _json_column_schemas
	`)
	if err != nil {
		if isMissingTable(err) {
			return out, nil
		}
		return nil, err
	}

	for _, v := range rows.Values {
		table, _ := v[0].(string)
		column, _ := v[1].(string)
		kindStr, _ := v[2].(string)
		schemaName, _ := v[3].(string)
		pattern, _ := v[4].(string)

		ann := &JSONAnnotation{SchemaName: schemaName, Pattern: pattern}
		switch kindStr {
		case "std.FileUpload":
			ann.Kind = JSONFileUpload
		case "std.FileUploads":
			ann.Kind = JSONFileUploads
		default:
			ann.Kind = JSONSchema
		}

		if out[table] == nil {
			out[table] = map[string]*JSONAnnotation{}
		}
		out[table][column] = ann
	}
	return out, nil
}

func isMissingTable(err error) bool {
	return err != nil && (containsAny(err.Error(), "no such table"))
}

func containsAny(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

// Table returns the cached table by name.
func (c *Cache) Table(name string) (*Table, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[name]
	return t, ok
}

// View returns the cached view by name.
func (c *Cache) View(name string) (*View, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.views[name]
	return v, ok
}

// Entity resolves name to either a Table or a View.
func (c *Cache) Entity(name string) (Entity, bool) {
	if t, ok := c.Table(name); ok {
		return t, true
	}
	if v, ok := c.View(name); ok {
		return v, true
	}
	return nil, false
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
