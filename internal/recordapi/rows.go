package recordapi

import (
	"encoding/base64"

	"github.com/autobrr/litebase/internal/engine"
	"github.com/autobrr/litebase/internal/schema"
)

// rowToMap converts one deep-owned engine row into the JSON-ready shape a
// response body uses: BLOB columns are url-safe-base64 text (the same
// encoding params.Build's coerceBlob decodes on the way back in), and
// Config.ExcludedColumns are dropped before the caller ever sees them.
func rowToMap(cfg Config, ent schema.Entity, cols []string, vals engine.Row) map[string]any {
	out := make(map[string]any, len(cols))
	for i, name := range cols {
		if cfg.excludes(name) {
			continue
		}
		out[name] = encodeValue(ent, name, vals[i])
	}
	return out
}

func encodeValue(ent schema.Entity, column string, v any) any {
	if v == nil {
		return nil
	}
	if b, ok := v.([]byte); ok {
		if col, found := ent.Column(column); found && col.Type == schema.Blob {
			return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(b)
		}
		return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(b)
	}
	return v
}

func decodeBase64(s string) ([]byte, error) {
	return base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(s)
}

func rowsToMaps(cfg Config, ent schema.Entity, rows *engine.Rows) []map[string]any {
	out := make([]map[string]any, 0, len(rows.Values))
	for _, v := range rows.Values {
		out = append(out, rowToMap(cfg, ent, rows.Columns, v))
	}
	return out
}
