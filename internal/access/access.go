// Package access implements the deny-by-default two-stage authorization
// described in spec.md §4.3: a coarse ACL bitmask gate, and an optional
// per-operation SQL rule evaluated against _USER_/_REQ_/_ROW_ subqueries.
//
// Grounded on the teacher's internal/api/middleware/auth.go (gate-before-
// business-logic shape) and on the TTL-bounded boolean-result cache in
// other_examples/c1f63295_wayli-app-fluxbase__internal-realtime-subscription.go.
package access

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/litebase/internal/apierr"
	"github.com/autobrr/litebase/internal/engine"
)

// Op is one of the five operation categories an ACL bit or rule governs.
type Op uint8

const (
	OpCreate Op = 1 << iota
	OpRead
	OpUpdate
	OpDelete
	OpSchema
)

// ACL is a per-audience bitmask of permitted operations.
type ACL uint8

// Allows reports whether op is permitted by this ACL.
func (a ACL) Allows(op Op) bool { return ACL(op)&a != 0 }

// Audience distinguishes the world (anonymous) ACL from the authenticated
// one.
type Audience struct {
	World         ACL `yaml:"world"`
	Authenticated ACL `yaml:"authenticated"`
}

// For returns the ACL that applies given whether a user is present.
func (a Audience) For(authenticated bool) ACL {
	if authenticated {
		return a.Authenticated
	}
	return a.World
}

// Rules holds the optional per-operation SQL boolean expressions for one
// record API. An empty string means "no rule" (table ACL is the only
// check for that op).
type Rules struct {
	Create string `yaml:"create,omitempty"`
	Read   string `yaml:"read,omitempty"`
	Update string `yaml:"update,omitempty"`
	Delete string `yaml:"delete,omitempty"`
	Schema string `yaml:"schema,omitempty"`
	// List is evaluated as a WHERE-clause filter, not an allow/deny
	// check, and must reference bare column names rather than _ROW_ (see
	// the config-validation rejection in Validate and DESIGN.md).
	List string `yaml:"list,omitempty"`
}

func (r Rules) forOp(op Op) string {
	switch op {
	case OpCreate:
		return r.Create
	case OpRead:
		return r.Read
	case OpUpdate:
		return r.Update
	case OpDelete:
		return r.Delete
	case OpSchema:
		return r.Schema
	default:
		return ""
	}
}

// Validate rejects a _ROW_ reference inside the list rule, resolving the
// spec.md §9 open question in favor of bare column names in list filters.
func (r Rules) Validate() error {
	if strings.Contains(r.List, "_ROW_") {
		return fmt.Errorf("access: list rule must reference bare column names, not _ROW_")
	}
	return nil
}

// Evaluator is the shared access-control gate used by every record API
// handler.
type Evaluator struct {
	eng   *engine.Engine
	cache *ruleCache
}

func New(eng *engine.Engine) *Evaluator {
	return &Evaluator{eng: eng, cache: newRuleCache(defaultCacheSize, defaultCacheTTL)}
}

// InvalidateCache drops every cached rule result. Callers invalidate after a
// config reload changes a table's ACL or rules, since a stale "allowed"
// entry would otherwise survive until its TTL expires.
func (e *Evaluator) InvalidateCache() {
	e.cache.invalidate()
}

// CheckTable enforces the table-level ACL gate. On denial the record-level
// rule must never even be evaluated (P3).
func (e *Evaluator) CheckTable(audience Audience, authenticated bool, op Op) error {
	if !audience.For(authenticated).Allows(op) {
		return apierr.Forbidden()
	}
	return nil
}

// RecordCheck evaluates a record-scoped rule (Create/Read/Update/Delete/
// Schema) against the `_USER_`/`_REQ_`/`_ROW_` subqueries described in
// spec.md §4.3. An empty rule string means "allow" (the table ACL already
// gated this request). req is nil for ops without a request body
// (Read/Delete/Schema); pkValue is nil for Create (no existing row).
// columns is the entity's full column list (schema.Entity.Columns(), by
// name): spec.md §4.3 requires _REQ_ to project every column of the
// entity, binding NULL for any the caller's request body omitted, so a
// rule referencing a column the request didn't set sees NULL rather than
// failing the query outright.
func (e *Evaluator) RecordCheck(ctx context.Context, table, pkColumn string, op Op, rule string, userID *string, req map[string]any, pkValue any, columns []string) error {
	if rule == "" {
		return nil
	}

	query, args := buildRecordQuery(table, pkColumn, op, rule, req, pkValue, userID, columns)

	// Row-scoped rules (anything touching _ROW_) are never cached: the
	// cache key has no row-content component, so caching here would let a
	// write to the same row return a stale allow/deny for the rest of the
	// TTL window. Only rules that depend solely on _USER_/_REQ_ — which
	// cannot change out from under a cached result within one request
	// lifecycle — are safe to cache.
	cacheable := !referencesRow(rule)

	var cacheKey string
	if cacheable {
		cacheKey = recordCacheKey(table, op, rule, userID, pkValue, req)
		if ok, hit := e.cache.get(cacheKey); hit {
			if !ok {
				return apierr.Forbidden()
			}
			return nil
		}
	}

	var result any
	err := e.eng.ReadQueryValue(ctx, &result, query, args...)
	allowed := err == nil && truthy(result)
	if err != nil {
		// Rule evaluation errors are logged here and never leaked to the
		// client (spec.md §4.3): the caller only sees Forbidden.
		log.Warn().Err(err).Str("table", table).Msg("access: rule evaluation failed")
		allowed = false
	}

	if cacheable {
		e.cache.set(cacheKey, allowed)
	}
	if !allowed {
		return apierr.Forbidden()
	}
	return nil
}

// referencesRow reports whether rule reads the _ROW_ subquery, the only
// part of a record-scoped rule's inputs that can change via a write the
// cache has no way to observe.
func referencesRow(rule string) bool {
	return strings.Contains(rule, "_ROW_")
}

// Check is the convenience entry point record-API handlers use: it picks
// the rule for op out of rules and delegates to RecordCheck.
func (e *Evaluator) Check(ctx context.Context, table, pkColumn string, op Op, rules Rules, userID *string, req map[string]any, pkValue any, columns []string) error {
	return e.RecordCheck(ctx, table, pkColumn, op, rules.forOp(op), userID, req, pkValue, columns)
}

// recordCacheKey derives a cache key from everything the rule's result can
// depend on. req is flattened into a deterministic string since map
// iteration order is not stable; this mirrors the teacher's cache-key
// convention of hashing the distinguishing inputs rather than the full
// query text.
func recordCacheKey(table string, op Op, rule string, userID *string, pkValue any, req map[string]any) string {
	var b strings.Builder
	b.WriteString(table)
	b.WriteByte('|')
	fmt.Fprintf(&b, "%d|", op)
	b.WriteString(rule)
	b.WriteByte('|')
	if userID != nil {
		b.WriteString(*userID)
	}
	b.WriteByte('|')
	fmt.Fprintf(&b, "%v|", pkValue)
	keys := make([]string, 0, len(req))
	for k := range req {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%v;", k, req[k])
	}
	return b.String()
}

// ListFilter returns the SQL fragment to AND into a list query's WHERE
// clause, or "" when no list rule is configured. Unlike RecordCheck this
// is not an allow/deny gate: it is itself part of the WHERE predicate, and
// the caller binds :__user_id once per query (spec.md §4.3).
func (r Rules) ListFilter() string {
	if r.List == "" {
		return ""
	}
	return "(" + r.List + ")"
}

func truthy(v any) bool {
	switch n := v.(type) {
	case int64:
		return n != 0
	case float64:
		return n != 0
	case bool:
		return n
	case nil:
		return false
	default:
		return false
	}
}

func buildRecordQuery(table, pkColumn string, op Op, rule string, req map[string]any, pkValue any, userID *string, columns []string) (string, []any) {
	var b strings.Builder
	args := []any{sql.Named("__user_id", userIDValue(userID))}

	b.WriteString("SELECT (")
	b.WriteString(rule)
	b.WriteString(") FROM (SELECT :__user_id AS id) AS _USER_")

	if op == OpCreate || op == OpUpdate {
		b.WriteString(", (SELECT ")
		if len(columns) == 0 {
			b.WriteString("NULL AS __empty")
		} else {
			for i, col := range columns {
				if i > 0 {
					b.WriteString(", ")
				}
				param := fmt.Sprintf("req_%d", i)
				if val, present := req[col]; present {
					b.WriteString(":" + param + " AS " + quoteIdent(col))
					args = append(args, sql.Named(param, val))
				} else {
					b.WriteString("NULL AS " + quoteIdent(col))
				}
			}
		}
		b.WriteString(") AS _REQ_")
	}

	if op == OpRead || op == OpUpdate || op == OpDelete || op == OpSchema {
		b.WriteString(fmt.Sprintf(", (SELECT * FROM %s WHERE %s = :__record_id) AS _ROW_", quoteIdent(table), quoteIdent(pkColumn)))
		args = append(args, sql.Named("__record_id", pkValue))
	}

	return b.String(), args
}

func userIDValue(userID *string) any {
	if userID == nil {
		return nil
	}
	return *userID
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
