package engine

import (
	"context"
	"fmt"

	"github.com/mwantia/gostow/pkg/db/models"
)

// Snapshot captures the current backend placement of every file record
// so a bulk operation can be undone at the metadata level. Bytes are
// not copied; restoring only rewrites the ledger.
func (e *MigrationEngine) Snapshot(ctx context.Context, name string) (*models.Snapshot, error) {
	snapshot, err := e.store.CreateSnapshot(ctx, name)
	if err != nil {
		return nil, err
	}
	e.log.Info("created snapshot %q covering %d files", name, snapshot.FileCount)
	return snapshot, nil
}

// ListSnapshots returns all snapshots, newest first.
func (e *MigrationEngine) ListSnapshots(ctx context.Context) ([]models.Snapshot, error) {
	return e.store.ListSnapshots(ctx)
}

// RestoreSnapshot rewrites every captured record back to its snapshot
// placement. It takes the batch lease; a restore racing a sync batch
// would interleave conflicting ledger writes.
func (e *MigrationEngine) RestoreSnapshot(ctx context.Context, name string) (int64, error) {
	release, err := e.acquireLease(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	restored, err := e.store.RestoreSnapshot(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("restore snapshot %q: %w", name, err)
	}
	e.log.Info("restored snapshot %q: %d records rewritten", name, restored)
	return restored, nil
}

// DeleteSnapshot removes a snapshot and its entries.
func (e *MigrationEngine) DeleteSnapshot(ctx context.Context, name string) error {
	return e.store.DeleteSnapshot(ctx, name)
}
