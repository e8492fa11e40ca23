// Package recordapi implements spec.md §4.4: the generic table/view CRUD +
// list surface that is the single largest component of this repository.
//
// Grounded on the teacher's internal/api/handlers/torrents.go and
// instances.go (handler-per-resource, chi URL params, a thin JSON-response
// helper layer) generalized from a fixed set of torrent-shaped resources
// into a schema-driven generic one: Config plays the role the teacher's
// per-handler struct literal plays, only data-driven instead of compiled in.
package recordapi

import (
	"github.com/autobrr/litebase/internal/access"
)

// Config is one record API's configuration: which table/view it exposes,
// who may touch it, and how list queries behave. Loaded from the
// `_record_apis` bookkeeping table (mirrors the `_json_column_schemas`
// table internal/schema introduces for the same reason: SQLite has no
// place to store this metadata except a table of its own).
// Struct tags double as the on-disk YAML shape internal/config's record
// API loader reads (a YAML array of Config), per SPEC_FULL.md's DOMAIN
// STACK entry for gopkg.in/yaml.v3.
type Config struct {
	Table    string          `yaml:"table"`
	Audience access.Audience `yaml:"audience"`
	Rules    access.Rules    `yaml:"rules"`

	// PageSize is the default page size a List call uses when the caller's
	// query string omits `limit`.
	PageSize int `yaml:"pageSize"`
	// MaxPageSize caps a caller-supplied `limit`.
	MaxPageSize int `yaml:"maxPageSize"`
	// BulkInsertLimit is stored with the record API and defaults to 64.
	// Nothing enforces it: Service has no bulk-create path, and Create
	// inserts one record per call.
	BulkInsertLimit int `yaml:"bulkInsertLimit"`

	// ExcludedColumns never appear in a response body (e.g. a password
	// hash column) regardless of what the caller asked to select.
	ExcludedColumns []string `yaml:"excludedColumns"`
	// ExpandableColumns lists the foreign-key columns a caller may pass in
	// `expand=col1,col2` to have the referenced row attached inline.
	ExpandableColumns []string `yaml:"expandableColumns"`
}

const (
	defaultPageSize      = 30
	defaultMaxPageSize   = 200
	defaultBulkInsertCap = 64
)

func (c Config) withDefaults() Config {
	if c.PageSize <= 0 {
		c.PageSize = defaultPageSize
	}
	if c.MaxPageSize <= 0 {
		c.MaxPageSize = defaultMaxPageSize
	}
	if c.BulkInsertLimit <= 0 {
		c.BulkInsertLimit = defaultBulkInsertCap
	}
	return c
}

func (c Config) excludes(column string) bool {
	for _, ex := range c.ExcludedColumns {
		if ex == column {
			return true
		}
	}
	return false
}

func (c Config) expandable(column string) bool {
	for _, e := range c.ExpandableColumns {
		if e == column {
			return true
		}
	}
	return false
}
