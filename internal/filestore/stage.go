package filestore

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
)

// StagedWrite batches a set of object-store writes that must all either
// survive (the owning DB transaction commits) or be rolled back (it
// doesn't). Grounded on internal/backups/service.go's archive-write
// sequence: write first, defer a cleanup that runs unless explicitly
// disarmed, disarm only once the caller's own unit of work has succeeded.
type StagedWrite struct {
	store   Store
	mu      sync.Mutex
	written []uuid.UUID
	armed   bool
}

// NewStagedWrite begins a new staging unit against store.
func NewStagedWrite(store Store) *StagedWrite {
	return &StagedWrite{store: store, armed: true}
}

// Put writes content under a freshly generated id and records it for
// rollback. Returns the id so the caller can embed it in FileUpload
// metadata.
func (s *StagedWrite) Put(ctx context.Context, content io.Reader) (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("filestore: generate file id: %w", err)
	}
	if _, err := s.store.Put(ctx, id, content); err != nil {
		return uuid.UUID{}, err
	}

	s.mu.Lock()
	s.written = append(s.written, id)
	s.mu.Unlock()
	return id, nil
}

// Release disarms the rollback: call this only after the DB transaction
// that references these files has committed.
func (s *StagedWrite) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = false
}

// Rollback deletes every written object unless Release was already called.
// Safe to call unconditionally via defer; it is a no-op after Release.
// Deletion is best-effort (spec.md §4.7): errors are collected but do not
// stop the sweep.
func (s *StagedWrite) Rollback(ctx context.Context) error {
	s.mu.Lock()
	armed := s.armed
	ids := s.written
	s.mu.Unlock()

	if !armed {
		return nil
	}

	var firstErr error
	for _, id := range ids {
		if err := s.store.Delete(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
