package recordapi

import (
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/autobrr/litebase/internal/apierr"
	"github.com/autobrr/litebase/internal/schema"
)

// DecodePK parses the URL path segment identifying a record into the Go
// value the engine should bind: a decimal int64 for an integer rowid-alias
// PK, or url-safe-base64 bytes for a UUIDv7 blob PK (spec.md §3).
func DecodePK(kind schema.PKKind, raw string) (any, error) {
	switch kind {
	case schema.PKIntegerRowID:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, apierr.BadRequest("recordapi: invalid record id %q", raw)
		}
		return n, nil
	case schema.PKBlobUUIDv7:
		b, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(raw)
		if err != nil {
			return nil, apierr.BadRequest("recordapi: invalid record id %q", raw)
		}
		return b, nil
	default:
		return nil, apierr.Internal(fmt.Errorf("recordapi: entity has no resolvable primary key"))
	}
}

// EncodePK renders a PK value read back from the database into the string
// form DecodePK accepts, for embedding in a response body or Location
// header.
func EncodePK(kind schema.PKKind, v any) (string, error) {
	switch kind {
	case schema.PKIntegerRowID:
		n, err := asInt64(v)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(n, 10), nil
	case schema.PKBlobUUIDv7:
		b, ok := v.([]byte)
		if !ok {
			return "", apierr.Internal(fmt.Errorf("recordapi: blob pk column returned non-[]byte value %T", v))
		}
		return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(b), nil
	default:
		return "", apierr.Internal(fmt.Errorf("recordapi: entity has no resolvable primary key"))
	}
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, apierr.Internal(fmt.Errorf("recordapi: integer pk column returned non-numeric value %T", v))
	}
}
