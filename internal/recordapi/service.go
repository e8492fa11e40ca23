package recordapi

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/autobrr/litebase/internal/access"
	"github.com/autobrr/litebase/internal/apierr"
	"github.com/autobrr/litebase/internal/engine"
	"github.com/autobrr/litebase/internal/filestore"
	"github.com/autobrr/litebase/internal/params"
	"github.com/autobrr/litebase/internal/recordapi/filter"
	"github.com/autobrr/litebase/internal/schema"
)

// Service is the shared handler logic behind every record API route,
// deliberately HTTP-agnostic (spec.md §9: keep the wire layer thin) so
// internal/api only has to decode a request and call one of these methods.
type Service struct {
	Eng    *engine.Engine
	Schema *schema.Cache
	Access *access.Evaluator
	Files  filestore.Store

	// Configs is every registered record API keyed by table name, used to
	// resolve expand targets and (indirectly) by internal/api to route
	// incoming requests to the right Config.
	Configs map[string]Config
}

// Caller is the authenticated identity (or lack of one) a request carries,
// threaded through every Service method so the access evaluator can bind
// `_USER_.id`.
type Caller struct {
	UserID        *string
	Authenticated bool
}

func (s *Service) entity(table string) (schema.Entity, error) {
	ent, ok := s.Schema.Entity(table)
	if !ok {
		return nil, apierr.NotFound(fmt.Sprintf("recordapi: no such table or view %q", table))
	}
	return ent, nil
}

func columnNames(ent schema.Entity) []string {
	cols := ent.Columns()
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

// Create implements spec.md §4.4's insert path: ACL gate, param build
// (including file staging), Create rule check against the staged request
// body, RETURNING-based INSERT, file-store release/rollback.
func (s *Service) Create(ctx context.Context, cfg Config, caller Caller, ent schema.Entity, body map[string]any, files []params.FilePart) (map[string]any, error) {
	cfg = cfg.withDefaults()

	if err := s.Access.CheckTable(cfg.Audience, caller.Authenticated, access.OpCreate); err != nil {
		return nil, err
	}

	p, err := params.Build(ctx, s.Files, ent, body, files)
	if err != nil {
		return nil, err
	}

	if err := s.Access.Check(ctx, cfg.Table, "", access.OpCreate, cfg.Rules, caller.UserID, p.AsMap(), nil, columnNames(ent)); err != nil {
		_ = p.Rollback(ctx)
		return nil, err
	}

	query, args := buildInsert(cfg.Table, p)
	row, err := s.Eng.WriteQueryRow(ctx, query, args...)
	if err != nil {
		_ = p.Rollback(ctx)
		return nil, translateWriteError(err)
	}
	if len(row.Values) == 0 {
		_ = p.Rollback(ctx)
		return nil, apierr.Internal(fmt.Errorf("recordapi: insert returned no row"))
	}

	p.Release()
	return rowToMap(cfg, ent, row.Columns, row.Values[0]), nil
}

func buildInsert(table string, p *params.Params) (string, []any) {
	cols := p.ColumnNames()
	vals := p.Values()

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s", quoteIdent(table))
	if len(cols) == 0 {
		b.WriteString(" DEFAULT VALUES")
	} else {
		b.WriteString(" (")
		for i, c := range cols {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(quoteIdent(c))
		}
		b.WriteString(") VALUES (")
		for i := range cols {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("?")
		}
		b.WriteString(")")
	}
	b.WriteString(" RETURNING *")
	return b.String(), vals
}

// Get implements the single-record read path: ACL gate, PK decode, Read
// rule check against the row's committed content, SELECT by PK.
func (s *Service) Get(ctx context.Context, cfg Config, caller Caller, ent schema.Entity, pkRaw string, expand []string) (map[string]any, error) {
	cfg = cfg.withDefaults()

	if err := s.Access.CheckTable(cfg.Audience, caller.Authenticated, access.OpRead); err != nil {
		return nil, err
	}

	pkCol, pkKind := ent.PKColumn()
	if pkKind == schema.PKNone {
		return nil, apierr.Internal(fmt.Errorf("recordapi: %q has no resolvable primary key", cfg.Table))
	}
	pkValue, err := DecodePK(pkKind, pkRaw)
	if err != nil {
		return nil, err
	}

	if err := s.Access.Check(ctx, cfg.Table, pkCol.Name, access.OpRead, cfg.Rules, caller.UserID, nil, pkValue, nil); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = ?", quoteIdent(cfg.Table), quoteIdent(pkCol.Name))
	row, err := s.Eng.ReadQueryRow(ctx, query, pkValue)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	if len(row.Values) == 0 {
		return nil, apierr.NotFound("")
	}

	out := rowToMap(cfg, ent, row.Columns, row.Values[0])
	s.applyExpand(ctx, cfg, ent, out, expand)
	return out, nil
}

// ListResult is one page of List's results, plus the cursor to request the
// next page (spec.md §4.4's cursor pagination, not offset-based, so a
// concurrent insert/delete can't skip or duplicate a row across pages).
type ListResult struct {
	Items      []map[string]any
	NextCursor string
	HasMore    bool
}

// List implements the filtered, paginated read-many path. The List rule
// (spec.md §4.3) is folded directly into the WHERE clause rather than
// evaluated as a per-row allow/deny check, since spec.md's list semantics
// tolerate a query-time snapshot view.
func (s *Service) List(ctx context.Context, cfg Config, caller Caller, ent schema.Entity, query map[string][]string) (ListResult, error) {
	cfg = cfg.withDefaults()

	if err := s.Access.CheckTable(cfg.Audience, caller.Authenticated, access.OpRead); err != nil {
		return ListResult{}, err
	}

	pkCol, pkKind := ent.PKColumn()
	if pkKind == schema.PKNone {
		return ListResult{}, apierr.Internal(fmt.Errorf("recordapi: %q has no resolvable primary key", cfg.Table))
	}

	validColumn := func(name string) bool {
		_, ok := ent.Column(name)
		return ok
	}
	typer := func(name string) (schema.ColumnType, bool) {
		col, ok := ent.Column(name)
		if !ok {
			return 0, false
		}
		return col.Type, true
	}

	node, err := filter.Parse(query, validColumn)
	if err != nil {
		return ListResult{}, apierr.BadRequest("%v", err)
	}
	whereSQL, whereArgs, err := filter.Compile(node, typer)
	if err != nil {
		return ListResult{}, apierr.BadRequest("%v", err)
	}

	// The list rule (unlike a record rule) has no dedicated query of its
	// own; it's spliced straight into this SELECT's WHERE clause. When set,
	// cross-join a one-row _USER_ subquery into the FROM clause so a rule
	// like "owner_id = _USER_.id" resolves the same way it would against
	// buildRecordQuery's synthetic subqueries.
	from := quoteIdent(cfg.Table)
	var args []any
	if cfg.Rules.List != "" {
		from += ", (SELECT ? AS id) AS _USER_"
		args = append(args, namedUserID(caller.UserID))
	}

	var conds []string
	if whereSQL != "" {
		conds = append(conds, whereSQL)
		args = append(args, whereArgs...)
	}
	if lf := cfg.Rules.ListFilter(); lf != "" {
		conds = append(conds, lf)
	}

	limit := parseLimit(query, cfg.PageSize, cfg.MaxPageSize)
	if cursorVals, ok := query["cursor"]; ok && len(cursorVals) > 0 && cursorVals[0] != "" {
		cursorPK, err := DecodePK(pkKind, cursorVals[0])
		if err != nil {
			return ListResult{}, err
		}
		conds = append(conds, quoteIdent(cfg.Table)+"."+quoteIdent(pkCol.Name)+" > ?")
		args = append(args, cursorPK)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s.* FROM %s", quoteIdent(cfg.Table), from)
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		for i, c := range conds {
			if i > 0 {
				b.WriteString(" AND ")
			}
			b.WriteString("(" + c + ")")
		}
	}
	fmt.Fprintf(&b, " ORDER BY %s.%s LIMIT ?", quoteIdent(cfg.Table), quoteIdent(pkCol.Name))
	args = append(args, limit+1)

	rows, err := s.Eng.ReadQueryRows(ctx, b.String(), args...)
	if err != nil {
		return ListResult{}, apierr.Internal(err)
	}

	hasMore := len(rows.Values) > limit
	if hasMore {
		rows.Values = rows.Values[:limit]
	}

	items := rowsToMaps(cfg, ent, rows)
	for _, item := range items {
		s.applyExpand(ctx, cfg, ent, item, query["expand"])
	}

	result := ListResult{Items: items, HasMore: hasMore}
	if hasMore && len(rows.Values) > 0 {
		lastPK := rows.Values[len(rows.Values)-1][indexOf(rows.Columns, pkCol.Name)]
		cursor, err := EncodePK(pkKind, lastPK)
		if err == nil {
			result.NextCursor = cursor
		}
	}
	return result, nil
}

func namedUserID(userID *string) any {
	if userID == nil {
		return nil
	}
	return *userID
}

func indexOf(cols []string, name string) int {
	for i, c := range cols {
		if c == name {
			return i
		}
	}
	return -1
}

func parseLimit(query map[string][]string, def, max int) int {
	vals, ok := query["limit"]
	if !ok || len(vals) == 0 {
		return def
	}
	n, err := strconv.Atoi(vals[0])
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// Update implements the partial-update path: only columns present in body
// are written (params.Build already drops absent keys), RETURNING-based
// UPDATE, Update rule checked against the full entity column projection
// (spec.md §4.3's _REQ_ NULL-fill).
func (s *Service) Update(ctx context.Context, cfg Config, caller Caller, ent schema.Entity, pkRaw string, body map[string]any, files []params.FilePart) (map[string]any, error) {
	cfg = cfg.withDefaults()

	if err := s.Access.CheckTable(cfg.Audience, caller.Authenticated, access.OpUpdate); err != nil {
		return nil, err
	}

	pkCol, pkKind := ent.PKColumn()
	if pkKind == schema.PKNone {
		return nil, apierr.Internal(fmt.Errorf("recordapi: %q has no resolvable primary key", cfg.Table))
	}
	pkValue, err := DecodePK(pkKind, pkRaw)
	if err != nil {
		return nil, err
	}

	p, err := params.Build(ctx, s.Files, ent, body, files)
	if err != nil {
		return nil, err
	}
	if len(p.Bound) == 0 {
		_ = p.Rollback(ctx)
		return nil, apierr.BadRequest("recordapi: request body did not set any known column")
	}

	if err := s.Access.Check(ctx, cfg.Table, pkCol.Name, access.OpUpdate, cfg.Rules, caller.UserID, p.AsMap(), pkValue, columnNames(ent)); err != nil {
		_ = p.Rollback(ctx)
		return nil, err
	}

	query, args := buildUpdate(cfg.Table, pkCol.Name, p, pkValue)
	row, err := s.Eng.WriteQueryRow(ctx, query, args...)
	if err != nil {
		_ = p.Rollback(ctx)
		return nil, translateWriteError(err)
	}
	if len(row.Values) == 0 {
		_ = p.Rollback(ctx)
		return nil, apierr.NotFound("")
	}

	p.Release()
	return rowToMap(cfg, ent, row.Columns, row.Values[0]), nil
}

func buildUpdate(table, pkColumn string, p *params.Params, pkValue any) (string, []any) {
	cols := p.ColumnNames()
	vals := p.Values()

	var b strings.Builder
	fmt.Fprintf(&b, "UPDATE %s SET ", quoteIdent(table))
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quoteIdent(c) + " = ?")
	}
	fmt.Fprintf(&b, " WHERE %s = ? RETURNING *", quoteIdent(pkColumn))

	args := make([]any, 0, len(vals)+1)
	args = append(args, vals...)
	args = append(args, pkValue)
	return b.String(), args
}

// Delete implements the delete path: ACL gate, Delete rule check, a plain
// DELETE. File columns are not cleaned up here; cleanup happens only on
// tables carrying the triggers internal/schema.InstallFileDeletionTriggers
// creates (drained by the scheduler's FileDeletions job), and nothing in
// this repository calls InstallFileDeletionTriggers.
func (s *Service) Delete(ctx context.Context, cfg Config, caller Caller, ent schema.Entity, pkRaw string) error {
	cfg = cfg.withDefaults()

	if err := s.Access.CheckTable(cfg.Audience, caller.Authenticated, access.OpDelete); err != nil {
		return err
	}

	pkCol, pkKind := ent.PKColumn()
	if pkKind == schema.PKNone {
		return apierr.Internal(fmt.Errorf("recordapi: %q has no resolvable primary key", cfg.Table))
	}
	pkValue, err := DecodePK(pkKind, pkRaw)
	if err != nil {
		return err
	}

	if err := s.Access.Check(ctx, cfg.Table, pkCol.Name, access.OpDelete, cfg.Rules, caller.UserID, nil, pkValue, nil); err != nil {
		return err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quoteIdent(cfg.Table), quoteIdent(pkCol.Name))
	res, err := s.Eng.Execute(ctx, query, pkValue)
	if err != nil {
		return translateWriteError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apierr.NotFound("")
	}
	return nil
}

// applyExpand attaches the referenced row for each FK column named in
// expand (and marked expandable in cfg) under item["expand"][column].
// Expansion is read-only and best-effort: a denied or missing target is
// silently omitted rather than failing the whole request, since the
// primary record's own access check already authorized returning it.
func (s *Service) applyExpand(ctx context.Context, cfg Config, ent schema.Entity, item map[string]any, expand []string) {
	if len(expand) == 0 {
		return
	}
	requested := map[string]bool{}
	for _, e := range expand {
		for _, col := range strings.Split(e, ",") {
			col = strings.TrimSpace(col)
			if col != "" {
				requested[col] = true
			}
		}
	}
	if len(requested) == 0 {
		return
	}

	expanded := map[string]any{}
	for _, col := range ent.Columns() {
		if col.ForeignKey == nil || !requested[col.Name] || !cfg.expandable(col.Name) {
			continue
		}
		val, ok := item[col.Name]
		if !ok || val == nil {
			continue
		}

		targetEnt, ok := s.Schema.Entity(col.ForeignKey.RefTable)
		if !ok {
			continue
		}
		targetCfg, ok := s.Configs[col.ForeignKey.RefTable]
		if !ok || !targetCfg.Audience.World.Allows(access.OpRead) && !targetCfg.Audience.Authenticated.Allows(access.OpRead) {
			continue
		}

		query := fmt.Sprintf("SELECT * FROM %s WHERE %s = ?", quoteIdent(col.ForeignKey.RefTable), quoteIdent(col.ForeignKey.RefColumn))
		row, err := s.Eng.ReadQueryRow(ctx, query, refValue(targetEnt, col.ForeignKey.RefColumn, val))
		if err != nil || len(row.Values) == 0 {
			continue
		}
		expanded[col.Name] = rowToMap(targetCfg, targetEnt, row.Columns, row.Values[0])
	}
	if len(expanded) > 0 {
		item["expand"] = expanded
	}
}

// refValue undoes rowToMap's base64 encoding of the foreign key value
// read out of the already-materialized item map, so the lookup query binds
// the same bytes the referenced column stores.
func refValue(targetEnt schema.Entity, refColumn string, v any) any {
	col, ok := targetEnt.Column(refColumn)
	if !ok || col.Type != schema.Blob {
		return v
	}
	s, ok := v.(string)
	if !ok {
		return v
	}
	b, err := decodeBase64(s)
	if err != nil {
		return v
	}
	return b
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
