package recordapi

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/autobrr/litebase/internal/access"
	"github.com/autobrr/litebase/internal/engine"
)

// LoadConfigs reads every registered record API out of the `_record_apis`
// table internal/migrate creates, the live counterpart to
// internal/config.LoadRecordAPIConfigs' one-time YAML bootstrap.
func LoadConfigs(ctx context.Context, eng *engine.Engine) ([]Config, error) {
	rows, err := eng.ReadQueryRows(ctx, `
		SELECT table_name, world_acl, authenticated_acl,
		       create_rule, read_rule, update_rule, delete_rule, schema_rule, list_rule,
		       page_size, max_page_size, bulk_insert_limit,
		       excluded_columns, expandable_columns
		FROM _record_apis
		ORDER BY table_name
	`)
	if err != nil {
		return nil, fmt.Errorf("recordapi: load configs: %w", err)
	}

	out := make([]Config, 0, len(rows.Values))
	for _, v := range rows.Values {
		cfg, err := configFromRow(v)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

// SaveConfig upserts one record API's configuration by table name.
func SaveConfig(ctx context.Context, eng *engine.Engine, cfg Config) error {
	excluded, err := json.Marshal(cfg.ExcludedColumns)
	if err != nil {
		return fmt.Errorf("recordapi: marshal excluded columns: %w", err)
	}
	expandable, err := json.Marshal(cfg.ExpandableColumns)
	if err != nil {
		return fmt.Errorf("recordapi: marshal expandable columns: %w", err)
	}

	_, err = eng.Execute(ctx, `
		INSERT INTO _record_apis (
			table_name, world_acl, authenticated_acl,
			create_rule, read_rule, update_rule, delete_rule, schema_rule, list_rule,
			page_size, max_page_size, bulk_insert_limit,
			excluded_columns, expandable_columns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (table_name) DO UPDATE SET
			world_acl = excluded.world_acl,
			authenticated_acl = excluded.authenticated_acl,
			create_rule = excluded.create_rule,
			read_rule = excluded.read_rule,
			update_rule = excluded.update_rule,
			delete_rule = excluded.delete_rule,
			schema_rule = excluded.schema_rule,
			list_rule = excluded.list_rule,
			page_size = excluded.page_size,
			max_page_size = excluded.max_page_size,
			bulk_insert_limit = excluded.bulk_insert_limit,
			excluded_columns = excluded.excluded_columns,
			expandable_columns = excluded.expandable_columns
	`,
		cfg.Table, int(cfg.Audience.World), int(cfg.Audience.Authenticated),
		cfg.Rules.Create, cfg.Rules.Read, cfg.Rules.Update, cfg.Rules.Delete, cfg.Rules.Schema, cfg.Rules.List,
		cfg.PageSize, cfg.MaxPageSize, cfg.BulkInsertLimit,
		string(excluded), string(expandable),
	)
	if err != nil {
		return fmt.Errorf("recordapi: save config %q: %w", cfg.Table, err)
	}
	return nil
}

// DeleteConfig removes a table's record API registration.
func DeleteConfig(ctx context.Context, eng *engine.Engine, table string) error {
	_, err := eng.Execute(ctx, `DELETE FROM _record_apis WHERE table_name = ?`, table)
	if err != nil {
		return fmt.Errorf("recordapi: delete config %q: %w", table, err)
	}
	return nil
}

func configFromRow(v engine.Row) (Config, error) {
	table, _ := v[0].(string)

	var excluded, expandable []string
	if s, ok := v[12].(string); ok && s != "" {
		if err := json.Unmarshal([]byte(s), &excluded); err != nil {
			return Config{}, fmt.Errorf("recordapi: unmarshal excluded_columns for %q: %w", table, err)
		}
	}
	if s, ok := v[13].(string); ok && s != "" {
		if err := json.Unmarshal([]byte(s), &expandable); err != nil {
			return Config{}, fmt.Errorf("recordapi: unmarshal expandable_columns for %q: %w", table, err)
		}
	}

	return Config{
		Table: table,
		Audience: access.Audience{
			World:         access.ACL(toInt64(v[1])),
			Authenticated: access.ACL(toInt64(v[2])),
		},
		Rules: access.Rules{
			Create: asString(v[3]),
			Read:   asString(v[4]),
			Update: asString(v[5]),
			Delete: asString(v[6]),
			Schema: asString(v[7]),
			List:   asString(v[8]),
		},
		PageSize:          int(toInt64(v[9])),
		MaxPageSize:       int(toInt64(v[10])),
		BulkInsertLimit:   int(toInt64(v[11])),
		ExcludedColumns:   excluded,
		ExpandableColumns: expandable,
	}, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
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

// Registry is a concurrency-safe, mutable view over every registered
// record API, the thing internal/api's router resolves {table} URL
// segments against and internal/admin mutates on the caller's behalf.
// Service.Configs (a plain map) remains the read path applyExpand uses
// internally; Registry is the synchronized wrapper that owns it.
type Registry struct {
	mu      sync.RWMutex
	configs map[string]Config
	service *Service
}

// NewRegistry builds a Registry backing service, replacing its Configs map
// on every mutation so expand lookups always see the latest set.
func NewRegistry(service *Service) *Registry {
	r := &Registry{configs: map[string]Config{}, service: service}
	service.Configs = r.configs
	return r
}

// Load replaces the registry's contents with every config loaded from the
// `_record_apis` table, called once at startup after internal/migrate runs.
func (r *Registry) Load(ctx context.Context, eng *engine.Engine) error {
	configs, err := LoadConfigs(ctx, eng)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fresh := make(map[string]Config, len(configs))
	for _, cfg := range configs {
		fresh[cfg.Table] = cfg
	}
	r.configs = fresh
	r.service.Configs = fresh
	return nil
}

// Get resolves a table name to its Config.
func (r *Registry) Get(table string) (Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[table]
	return cfg, ok
}

// All returns every registered Config, table-name order not guaranteed.
func (r *Registry) All() []Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Config, 0, len(r.configs))
	for _, cfg := range r.configs {
		out = append(out, cfg)
	}
	return out
}

// Set persists cfg to `_record_apis` and updates the in-memory view,
// internal/admin's write path for creating or editing a record API.
func (r *Registry) Set(ctx context.Context, eng *engine.Engine, cfg Config) error {
	if err := SaveConfig(ctx, eng, cfg); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	next := make(map[string]Config, len(r.configs)+1)
	for k, v := range r.configs {
		next[k] = v
	}
	next[cfg.Table] = cfg
	r.configs = next
	r.service.Configs = next
	return nil
}

// Remove deletes a table's record API registration.
func (r *Registry) Remove(ctx context.Context, eng *engine.Engine, table string) error {
	if err := DeleteConfig(ctx, eng, table); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	next := make(map[string]Config, len(r.configs))
	for k, v := range r.configs {
		if k != table {
			next[k] = v
		}
	}
	r.configs = next
	r.service.Configs = next
	return nil
}
