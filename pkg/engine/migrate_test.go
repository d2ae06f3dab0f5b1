package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/mwantia/gostow/internal/config/server"
	"github.com/mwantia/gostow/pkg/db/models"
	"github.com/mwantia/gostow/pkg/storage"
)

func migrateCriteria() Criteria {
	return Criteria{
		SourceBackend:    string(storage.TypeS3),
		TargetBackend:    string(storage.TypeSpaces),
		TargetConfigName: "default",
	}
}

func TestPlanCountsOnlyOffTargetFiles(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, config.StorageServerConfig{})
	target := env.memory(t, storage.TypeSpaces)

	env.seedFile(t, storage.TypeS3, "p/one.txt", models.SyncPending, "aaaa")
	env.seedFile(t, storage.TypeS3, "p/two.txt", models.SyncPending, "bbbbbbbb")
	env.seedFile(t, storage.TypeSpaces, "p/done.txt", models.SyncSynced, "cc")

	plan, err := NewMigrationEngine(env.deps()).Plan(ctx, migrateCriteria())
	require.NoError(t, err)

	assert.Equal(t, int64(2), plan.FileCount)
	assert.Equal(t, 2, plan.SampleSize)
	assert.Equal(t, int64(12), plan.EstimatedTotalSize)
	assert.Equal(t, 2*defaultPerFileMs*time.Millisecond, plan.EstimatedTime)

	// Planning never moves bytes.
	assert.Equal(t, 0, target.WriteCalls)
}

func TestPlanRequiresValidTarget(t *testing.T) {
	env := newTestEnv(t, config.StorageServerConfig{})
	engine := NewMigrationEngine(env.deps())

	_, err := engine.Plan(context.Background(), Criteria{})
	assert.ErrorIs(t, err, storage.ErrInvalidConfig)

	_, err = engine.Plan(context.Background(), Criteria{TargetBackend: "tape"})
	assert.ErrorIs(t, err, storage.ErrInvalidConfig)
}

func TestExecuteDryRunTouchesNothing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, config.StorageServerConfig{})
	target := env.memory(t, storage.TypeSpaces)
	source := env.memory(t, storage.TypeS3)

	one := env.seedFile(t, storage.TypeS3, "q/one.txt", models.SyncPending, "aaaa")
	two := env.seedFile(t, storage.TypeS3, "q/two.txt", models.SyncPending, "bb")

	result, err := NewMigrationEngine(env.deps()).Execute(ctx, migrateCriteria(), Options{DryRun: true})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, int64(6), result.TotalSize)

	assert.Equal(t, 0, target.WriteCalls)
	assert.Equal(t, 0, source.DeleteCalls)
	assert.Equal(t, 0, source.ReadCalls)
	assert.Equal(t, string(storage.TypeS3), env.reload(t, one.ID).BackendType)
	assert.Equal(t, string(storage.TypeS3), env.reload(t, two.ID).BackendType)
}

func TestExecuteMovesVerifiesAndDeletesSource(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, config.StorageServerConfig{})
	target := env.memory(t, storage.TypeSpaces)
	source := env.memory(t, storage.TypeS3)

	record := env.seedFile(t, storage.TypeS3, "r/move.txt", models.SyncPending, "payload")

	result, err := NewMigrationEngine(env.deps()).Execute(ctx, migrateCriteria(), Options{
		Verify:       true,
		DeleteSource: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Success)
	assert.Equal(t, 1, target.Len())
	assert.Equal(t, 0, source.Len())

	reloaded := env.reload(t, record.ID)
	assert.Equal(t, string(storage.TypeSpaces), reloaded.BackendType)
	assert.Equal(t, models.SyncSynced, reloaded.SyncStatus)
	assert.Equal(t, string(storage.TypeS3), reloaded.Metadata()[models.MetaOriginalBackend])
}

func TestExecuteSecondRunFindsNoCandidates(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, config.StorageServerConfig{})
	env.memory(t, storage.TypeSpaces)

	env.seedFile(t, storage.TypeS3, "s/once.txt", models.SyncPending, "only once")

	engine := NewMigrationEngine(env.deps())
	first, err := engine.Execute(ctx, migrateCriteria(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Success)

	second, err := engine.Execute(ctx, migrateCriteria(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Processed)
}

func TestVerifyFlagsSizeMismatch(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, config.StorageServerConfig{})
	env.memory(t, storage.TypeSpaces).Seed("t/short.txt", "abc")

	// The ledger claims 10 bytes but the object holds 3.
	record := env.addFile(t, storage.TypeSpaces, "t/short.txt", models.SyncSynced, 10)
	intact := env.seedFile(t, storage.TypeSpaces, "t/ok.txt", models.SyncSynced, "1234")

	result, err := NewMigrationEngine(env.deps()).Verify(ctx, Criteria{TargetBackend: string(storage.TypeSpaces)})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Checked)
	assert.Equal(t, 1, result.Valid)
	assert.Equal(t, 1, result.Invalid)
	assert.Contains(t, result.Errors[record.ID], "10")

	assert.Equal(t, models.SyncFailed, env.reload(t, record.ID).SyncStatus)
	assert.Equal(t, models.SyncSynced, env.reload(t, intact.ID).SyncStatus)
}

func TestRollbackRequiresOriginBreadcrumb(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, config.StorageServerConfig{})
	origin := env.memory(t, storage.TypeS3)

	tracked := env.seedFile(t, storage.TypeSpaces, "u/tracked.txt", models.SyncSynced, "came from s3")
	tracked.MergeMetadata(map[string]string{models.MetaOriginalBackend: string(storage.TypeS3)})
	require.NoError(t, env.store.UpdateFile(ctx, tracked))

	orphan := env.seedFile(t, storage.TypeSpaces, "u/orphan.txt", models.SyncSynced, "origin unknown")

	result, err := NewMigrationEngine(env.deps()).Rollback(ctx, Criteria{
		SourceBackend: string(storage.TypeSpaces),
	}, Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Success)
	assert.Equal(t, 1, result.Failed)
	assert.Contains(t, result.Errors[orphan.ID], "no origin backend")

	assert.Equal(t, string(storage.TypeS3), env.reload(t, tracked.ID).BackendType)
	assert.Equal(t, 1, origin.Len())
	// The orphan stays put; its origin is unknowable.
	assert.Equal(t, string(storage.TypeSpaces), env.reload(t, orphan.ID).BackendType)
}

func TestProgressAndEstimate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, config.StorageServerConfig{})
	env.memory(t, storage.TypeSpaces)

	env.seedFile(t, storage.TypeSpaces, "v/done.txt", models.SyncSynced, "done")
	env.seedFile(t, storage.TypeS3, "v/todo1.txt", models.SyncPending, "todo")
	env.seedFile(t, storage.TypeS3, "v/todo2.txt", models.SyncPending, "todo")

	engine := NewMigrationEngine(env.deps())
	progress, err := engine.Progress(ctx, string(storage.TypeSpaces))
	require.NoError(t, err)
	assert.Equal(t, int64(1), progress.OnTarget)
	assert.Equal(t, int64(2), progress.Remaining)

	// No history yet: flat per-file fallback.
	eta, err := engine.EstimateTimeRemaining(ctx, string(storage.TypeSpaces))
	require.NoError(t, err)
	assert.Equal(t, 2*defaultPerFileMs*time.Millisecond, eta)

	// With history the rolling average takes over.
	for _, ms := range []int64{100, 300} {
		require.NoError(t, env.store.AppendSyncLog(ctx, &models.SyncLogEntry{
			FileID:        1,
			Operation:     models.OpSync,
			TargetBackend: string(storage.TypeSpaces),
			Status:        models.LogSuccess,
			DurationMs:    ms,
			SyncDate:      time.Now().UTC(),
		}))
	}
	eta, err = engine.EstimateTimeRemaining(ctx, string(storage.TypeSpaces))
	require.NoError(t, err)
	assert.Equal(t, 2*200*time.Millisecond, eta)
}

func TestSnapshotRestoreRewritesPlacement(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, config.StorageServerConfig{})
	env.memory(t, storage.TypeSpaces)

	record := env.seedFile(t, storage.TypeS3, "w/file.txt", models.SyncPending, "movable")

	engine := NewMigrationEngine(env.deps())
	snapshot, err := engine.Snapshot(ctx, "before-migration")
	require.NoError(t, err)
	assert.Equal(t, int64(1), snapshot.FileCount)

	_, err = engine.Execute(ctx, migrateCriteria(), Options{})
	require.NoError(t, err)
	assert.Equal(t, string(storage.TypeSpaces), env.reload(t, record.ID).BackendType)

	restored, err := engine.RestoreSnapshot(ctx, "before-migration")
	require.NoError(t, err)
	assert.Equal(t, int64(1), restored)

	reloaded := env.reload(t, record.ID)
	assert.Equal(t, string(storage.TypeS3), reloaded.BackendType)
	assert.Equal(t, "w/file.txt", reloaded.BackendPath)
}

func TestStorageInfoListsBackends(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, config.StorageServerConfig{})
	env.memory(t, storage.TypeS3)
	env.seedFile(t, storage.TypeS3, "x/a.txt", models.SyncSynced, "aaaa")

	infos, err := NewMigrationEngine(env.deps()).StorageInfo(ctx, false)
	require.NoError(t, err)
	require.Len(t, infos, 2)

	assert.Equal(t, string(storage.TypeLocal), infos[0].BackendType)
	assert.Equal(t, string(storage.TypeS3), infos[1].BackendType)
	assert.Equal(t, "default", infos[1].ConfigName)
	assert.Equal(t, int64(1), infos[1].FileCount)
	assert.Equal(t, int64(1), infos[1].SyncedCount)
	// Credentials never leave the registry in the clear.
	assert.NotContains(t, infos[1].Config, "is_active")
}
