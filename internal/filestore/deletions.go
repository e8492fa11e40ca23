package filestore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/autobrr/litebase/internal/engine"
)

// DrainDeletions deletes the object-store entries for every
// `_file_deletions` row older than grace, then removes the bookkeeping
// rows. Called by the scheduler's FileDeletions job (spec.md §4.6); grace
// defaults to ~15 minutes so a deletion triggered mid-transaction is never
// raced against a read that's still using the old value.
func DrainDeletions(ctx context.Context, eng *engine.Engine, store Store, grace time.Duration) (int, error) {
	cutoff := time.Now().Add(-grace).Unix()

	rows, err := eng.ReadQueryRows(ctx, `
		SELECT rowid, json FROM _file_deletions WHERE deleted_ts <= ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("filestore: list pending deletions: %w", err)
	}

	drained := 0
	for _, v := range rows.Values {
		bookkeepingRowID := v[0]
		jsonText, _ := v[1].(string)

		if err := deleteReferencedFiles(ctx, store, jsonText); err != nil {
			continue // leave the bookkeeping row for the next sweep
		}

		if _, err := eng.Execute(ctx, `DELETE FROM _file_deletions WHERE rowid = ?`, bookkeepingRowID); err != nil {
			return drained, fmt.Errorf("filestore: clear deletion record: %w", err)
		}
		drained++
	}
	return drained, nil
}

func deleteReferencedFiles(ctx context.Context, store Store, jsonText string) error {
	if jsonText == "" || jsonText == "null" {
		return nil
	}

	if single, err := UnmarshalFileUpload(jsonText); err == nil && single.ID != uuid.Nil {
		return store.Delete(ctx, single.ID)
	}

	list, err := UnmarshalFileUploads(jsonText)
	if err != nil {
		return err
	}
	for _, f := range list {
		if err := store.Delete(ctx, f.ID); err != nil {
			return err
		}
	}
	return nil
}
