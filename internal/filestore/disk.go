package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// DiskStore lays objects out as <root>/<aa>/<bb>/<uuid> where aa/bb are the
// first two byte-pairs of the id's hex form, the same fan-out shape the
// teacher's internal/backups cache directory convention uses to keep any
// one directory from growing unbounded.
type DiskStore struct {
	root string
}

// NewDiskStore creates (if absent) root and returns a Store rooted there.
func NewDiskStore(root string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("filestore: create root %q: %w", root, err)
	}
	return &DiskStore{root: root}, nil
}

func (s *DiskStore) pathFor(id uuid.UUID) string {
	hex := id.String()
	return filepath.Join(s.root, hex[0:2], hex[2:4], hex)
}

func (s *DiskStore) Put(ctx context.Context, id uuid.UUID, content io.Reader) (int64, error) {
	path := s.pathFor(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("filestore: mkdir for %s: %w", id, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("filestore: create staging file for %s: %w", id, err)
	}
	cleanup := true
	defer func() {
		_ = tmp.Close()
		if cleanup {
			_ = os.Remove(tmp.Name())
		}
	}()

	n, err := io.Copy(tmp, content)
	if err != nil {
		return 0, fmt.Errorf("filestore: write %s: %w", id, err)
	}
	if err := tmp.Sync(); err != nil {
		return 0, fmt.Errorf("filestore: sync %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("filestore: close staging file for %s: %w", id, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("filestore: rename into place for %s: %w", id, err)
	}
	cleanup = false
	return n, nil
}

func (s *DiskStore) Open(ctx context.Context, id uuid.UUID) (io.ReadCloser, error) {
	f, err := os.Open(s.pathFor(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("filestore: open %s: %w", id, err)
	}
	return f, nil
}

func (s *DiskStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := os.Remove(s.pathFor(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("filestore: delete %s: %w", id, err)
	}
	return nil
}

// ErrNotFound is returned by Open when the object doesn't exist.
var ErrNotFound = errors.New("filestore: object not found")
