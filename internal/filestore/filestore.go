// Package filestore implements the object store side of spec.md §4.7's file
// lifecycle: FileUpload/FileUploads metadata, a local-disk store keyed by
// generated UUID, and the stage-then-release helper that keeps the object store and
// the database in sync.
//
// Grounded on the teacher's pkg/fsutil (safe path handling) and
// internal/backups/service.go's "create file, defer cleanup, disarm on
// success" sequence (see NewStagedWrite below).
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// FileUpload is the metadata persisted as JSON text in a std.FileUpload
// column (spec.md §3).
type FileUpload struct {
	ID               uuid.UUID `json:"id"`
	OriginalFilename string    `json:"original_filename,omitempty"`
	ContentType      string    `json:"content_type,omitempty"`
	MimeType         string    `json:"mime_type,omitempty"`
}

// FileUploads is the ordered-list counterpart stored in a std.FileUploads
// column.
type FileUploads []FileUpload

// MarshalColumn renders v as the JSON text stored in the column.
func MarshalColumn(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("filestore: marshal column: %w", err)
	}
	return string(b), nil
}

// UnmarshalFileUpload parses a std.FileUpload column's stored JSON text.
func UnmarshalFileUpload(text string) (FileUpload, error) {
	var f FileUpload
	if err := json.Unmarshal([]byte(text), &f); err != nil {
		return FileUpload{}, fmt.Errorf("filestore: unmarshal file upload: %w", err)
	}
	return f, nil
}

// UnmarshalFileUploads parses a std.FileUploads column's stored JSON text.
func UnmarshalFileUploads(text string) (FileUploads, error) {
	var f FileUploads
	if err := json.Unmarshal([]byte(text), &f); err != nil {
		return nil, fmt.Errorf("filestore: unmarshal file uploads: %w", err)
	}
	return f, nil
}

// Store is the object-store seam. DiskStore is the only implementation
// shipped (see DESIGN.md for why no S3/Minio client is wired): it matches
// the teacher's single-binary, no-external-services deployment model.
type Store interface {
	// Put writes content under id, overwriting any existing object.
	Put(ctx context.Context, id uuid.UUID, content io.Reader) (int64, error)
	// Open returns a reader for the object; caller must Close it.
	Open(ctx context.Context, id uuid.UUID) (io.ReadCloser, error)
	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, id uuid.UUID) error
}

// PendingDeletion mirrors a row in the `_file_deletions` bookkeeping table
// (spec.md §3): a file-column value that a trigger observed being
// superseded or orphaned by a row delete.
type PendingDeletion struct {
	TableName    string
	RecordRowID  int64
	ColumnName   string
	JSON         string
	DeletedAt    time.Time
}
