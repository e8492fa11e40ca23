// Package params turns an untyped JSON request body (plus optional
// multipart file parts) into bound SQL parameters for the record API,
// validating JSON-schema columns and staging file uploads along the way
// (spec.md §4.2).
//
// Grounded on the teacher's JSON decoding convention in
// internal/api/handlers (decode into a loosely-typed map first, never a
// strict struct with DisallowUnknownFields — here unknown keys must be
// silently dropped rather than rejected) and on internal/models'
// sentinel-error + errors.As style for reporting validation failures.
package params

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/autobrr/litebase/internal/apierr"
	"github.com/autobrr/litebase/internal/filestore"
	"github.com/autobrr/litebase/internal/schema"
)

// Bound is one resolved (column, SQL value) pair ready to bind as a named
// parameter.
type Bound struct {
	Column string
	Value  any
}

// Params is the output of Build: everything a record API handler needs to
// emit an INSERT or UPDATE statement.
type Params struct {
	Bound   []Bound
	staged  *filestore.StagedWrite
}

// ColumnNames returns the bound column names in order, for building the
// `(col0, col1, ...)` clause of an INSERT.
func (p *Params) ColumnNames() []string {
	out := make([]string, len(p.Bound))
	for i, b := range p.Bound {
		out[i] = b.Column
	}
	return out
}

// Values returns the bound values in the same order as ColumnNames.
func (p *Params) Values() []any {
	out := make([]any, len(p.Bound))
	for i, b := range p.Bound {
		out[i] = b.Value
	}
	return out
}

// AsMap renders the bound params as a map, the shape the access evaluator's
// _REQ_ subquery needs.
func (p *Params) AsMap() map[string]any {
	out := make(map[string]any, len(p.Bound))
	for _, b := range p.Bound {
		out[b.Column] = b.Value
	}
	return out
}

// Release disarms the staged-file rollback once the owning DB transaction
// has committed. A no-op if no files were staged.
func (p *Params) Release() {
	if p.staged != nil {
		p.staged.Release()
	}
}

// Rollback deletes any staged files unless Release was already called.
func (p *Params) Rollback(ctx context.Context) error {
	if p.staged == nil {
		return nil
	}
	return p.staged.Rollback(ctx)
}

// FilePart is one multipart file attached to the request, tagged with the
// form field name it arrived under (spec.md §4.2 step 3: files are mapped
// to columns by matching name to a std.FileUpload* column).
type FilePart struct {
	FieldName        string
	OriginalFilename string
	ContentType      string
	Open             func() (ReadCloser, error)
}

// ReadCloser avoids importing io in the exported surface just for this.
type ReadCloser interface {
	Read(p []byte) (n int, err error)
	Close() error
}

// Build implements spec.md §4.2's algorithm: translate each JSON key that
// matches a known column into a SQL value by the column's declared type,
// silently drop unknown keys, validate/stage JSON-schema and file columns,
// and map multipart files onto their target columns by name.
func Build(ctx context.Context, store filestore.Store, ent schema.Entity, body map[string]any, files []FilePart) (*Params, error) {
	staged := filestore.NewStagedWrite(store)

	filesByField := make(map[string]FilePart, len(files))
	for _, f := range files {
		if _, dup := filesByField[f.FieldName]; dup {
			return nil, apierr.BadRequest("params: multiple files uploaded for field %q", f.FieldName)
		}
		filesByField[f.FieldName] = f
	}

	var bound []Bound
	consumedFields := map[string]bool{}

	for _, col := range ent.Columns() {
		if col.IsFileColumn() {
			b, err := buildFileColumn(ctx, staged, col, body, filesByField, consumedFields)
			if err != nil {
				_ = staged.Rollback(ctx)
				return nil, err
			}
			if b != nil {
				bound = append(bound, *b)
			}
			continue
		}

		raw, present := body[col.Name]
		if !present || raw == nil {
			continue
		}

		val, err := coerce(col, raw)
		if err != nil {
			_ = staged.Rollback(ctx)
			return nil, err
		}
		bound = append(bound, Bound{Column: col.Name, Value: val})
	}

	for field := range filesByField {
		if !consumedFields[field] {
			_ = staged.Rollback(ctx)
			return nil, apierr.BadRequest("params: uploaded file %q does not match any file column", field)
		}
	}

	return &Params{Bound: bound, staged: staged}, nil
}

// buildFileColumn handles a single std.FileUpload/std.FileUploads column,
// marking every multipart field it consumes in consumedFields so Build can
// detect files that were uploaded but never matched a column.
func buildFileColumn(ctx context.Context, staged *filestore.StagedWrite, col schema.Column, body map[string]any, filesByField map[string]FilePart, consumedFields map[string]bool) (*Bound, error) {
	switch col.JSON.Kind {
	case schema.JSONFileUpload:
		part, ok := filesByField[col.Name]
		if !ok {
			if raw, present := body[col.Name]; present && raw != nil {
				// Caller is passing through existing metadata unchanged (e.g. an
				// Update that doesn't touch this column's file).
				s, ok := raw.(string)
				if !ok {
					return nil, apierr.BadRequest("params: column %q expects file metadata JSON", col.Name)
				}
				return &Bound{Column: col.Name, Value: s}, nil
			}
			return nil, nil
		}
		meta, err := stageOne(ctx, staged, part)
		if err != nil {
			return nil, err
		}
		consumedFields[col.Name] = true
		text, err := filestore.MarshalColumn(meta)
		if err != nil {
			return nil, apierr.Internal(err)
		}
		return &Bound{Column: col.Name, Value: text}, nil

	case schema.JSONFileUploads:
		var matchedFields []string
		for field := range filesByField {
			if field == col.Name || hasFieldPrefix(field, col.Name) {
				matchedFields = append(matchedFields, field)
			}
		}
		if len(matchedFields) == 0 {
			return nil, nil
		}
		uploads := make(filestore.FileUploads, 0, len(matchedFields))
		for _, field := range matchedFields {
			meta, err := stageOne(ctx, staged, filesByField[field])
			if err != nil {
				return nil, err
			}
			uploads = append(uploads, meta)
			consumedFields[field] = true
		}
		text, err := filestore.MarshalColumn(uploads)
		if err != nil {
			return nil, apierr.Internal(err)
		}
		return &Bound{Column: col.Name, Value: text}, nil

	default:
		// A user-registered JSON schema column: validate, don't stage.
		raw, present := body[col.Name]
		if !present || raw == nil {
			return nil, nil
		}
		if err := ValidateAgainstSchema(col.JSON, raw); err != nil {
			return nil, err
		}
		text, err := filestore.MarshalColumn(raw)
		if err != nil {
			return nil, apierr.Internal(err)
		}
		return &Bound{Column: col.Name, Value: text}, nil
	}
}

func hasFieldPrefix(field, column string) bool {
	return len(field) > len(column) && field[:len(column)] == column && field[len(column)] == '['
}

func stageOne(ctx context.Context, staged *filestore.StagedWrite, part FilePart) (filestore.FileUpload, error) {
	rc, err := part.Open()
	if err != nil {
		return filestore.FileUpload{}, apierr.BadRequest("params: read uploaded file %q: %v", part.FieldName, err)
	}
	defer rc.Close()

	id, err := staged.Put(ctx, rc)
	if err != nil {
		return filestore.FileUpload{}, apierr.Internal(fmt.Errorf("stage upload %q: %w", part.FieldName, err))
	}
	return filestore.FileUpload{
		ID:               id,
		OriginalFilename: part.OriginalFilename,
		ContentType:      part.ContentType,
		MimeType:         part.ContentType,
	}, nil
}

// coerce translates a JSON-decoded value into the Go value the engine
// should bind for col, following spec.md §4.2's per-type rules.
func coerce(col schema.Column, raw any) (any, error) {
	switch col.Type {
	case schema.Integer:
		return coerceInteger(col, raw)
	case schema.Real:
		return coerceReal(col, raw)
	case schema.Blob:
		return coerceBlob(col, raw)
	case schema.Text:
		return coerceText(col, raw)
	default:
		return nil, apierr.Internal(fmt.Errorf("params: column %q has unknown type", col.Name))
	}
}

func coerceInteger(col schema.Column, raw any) (any, error) {
	switch v := raw.(type) {
	case float64:
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, apierr.BadRequest("params: column %q expects an integer, got %q", col.Name, v)
		}
		return n, nil
	default:
		return nil, apierr.BadRequest("params: column %q expects a number", col.Name)
	}
}

func coerceReal(col schema.Column, raw any) (any, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, apierr.BadRequest("params: column %q expects a real number, got %q", col.Name, v)
		}
		return f, nil
	default:
		return nil, apierr.BadRequest("params: column %q expects a number", col.Name)
	}
}

func coerceBlob(col schema.Column, raw any) (any, error) {
	switch v := raw.(type) {
	case string:
		b, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(v)
		if err != nil {
			if b2, err2 := base64.URLEncoding.DecodeString(v); err2 == nil {
				return b2, nil
			}
			return nil, apierr.BadRequest("params: column %q expects url-safe-base64, got invalid value", col.Name)
		}
		return b, nil
	case []any:
		b := make([]byte, len(v))
		for i, item := range v {
			n, ok := item.(float64)
			if !ok || n < 0 || n > 255 {
				return nil, apierr.BadRequest("params: column %q byte array contains a non-byte value", col.Name)
			}
			b[i] = byte(n)
		}
		return b, nil
	default:
		return nil, apierr.BadRequest("params: column %q expects base64 or a byte array", col.Name)
	}
}

func coerceText(col schema.Column, raw any) (any, error) {
	if col.JSON != nil && col.JSON.Kind == schema.JSONSchema {
		if err := ValidateAgainstSchema(col.JSON, raw); err != nil {
			return nil, err
		}
		text, err := filestore.MarshalColumn(raw)
		if err != nil {
			return nil, apierr.Internal(err)
		}
		return text, nil
	}

	switch v := raw.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case bool:
		if v {
			return "true", nil
		}
		return "false", nil
	default:
		text, err := filestore.MarshalColumn(raw)
		if err != nil {
			return nil, apierr.BadRequest("params: column %q expects a string", col.Name)
		}
		return text, nil
	}
}
