package params

import (
	"context"
	"sync"

	"github.com/autobrr/litebase/internal/filestore"
	"github.com/autobrr/litebase/internal/schema"
)

// LazyParams defers Build until the first Get; every later Get returns the
// same *Params and error. internal/recordapi does not use it: its Service
// calls Build directly after the table-level ACL check.
type LazyParams struct {
	store filestore.Store
	ent   schema.Entity
	body  map[string]any
	files []FilePart

	once   sync.Once
	result *Params
	err    error
}

func NewLazyParams(store filestore.Store, ent schema.Entity, body map[string]any, files []FilePart) *LazyParams {
	return &LazyParams{store: store, ent: ent, body: body, files: files}
}

// Get builds (once) and returns the resolved Params.
func (l *LazyParams) Get(ctx context.Context) (*Params, error) {
	l.once.Do(func() {
		l.result, l.err = Build(ctx, l.store, l.ent, l.body, l.files)
	})
	return l.result, l.err
}
