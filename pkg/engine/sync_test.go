package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/mwantia/gostow/internal/config/server"
	"github.com/mwantia/gostow/pkg/db/models"
	"github.com/mwantia/gostow/pkg/db/store"
	"github.com/mwantia/gostow/pkg/storage"
)

func syncOpts(batchSize int) SyncOptions {
	return SyncOptions{
		BatchSize:        batchSize,
		TargetBackend:    storage.TypeSpaces,
		TargetConfigName: "default",
	}
}

func TestRunBatchMovesOldestFirst(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, config.StorageServerConfig{})
	target := env.memory(t, storage.TypeSpaces)

	first := env.seedFile(t, storage.TypeS3, "a/first.txt", models.SyncPending, "first")
	second := env.seedFile(t, storage.TypeS3, "a/second.txt", models.SyncPending, "second")
	third := env.seedFile(t, storage.TypeS3, "a/third.txt", models.SyncPending, "third")

	result, err := NewSyncEngine(env.deps()).RunBatch(ctx, syncOpts(2))
	require.NoError(t, err)

	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 2, result.Success)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, int64(len("first")+len("second")), result.TotalSize)
	assert.Equal(t, 2, target.Len())

	for _, id := range []int64{first.ID, second.ID} {
		record := env.reload(t, id)
		assert.Equal(t, models.SyncSynced, record.SyncStatus)
		assert.Equal(t, string(storage.TypeSpaces), record.BackendType)
		assert.NotEmpty(t, record.BackendPath)
		assert.NotNil(t, record.LastSyncDate)

		md := record.Metadata()
		assert.Equal(t, "default", md[models.MetaConfigName])
		assert.Equal(t, string(storage.TypeS3), md[models.MetaOriginalBackend])
		assert.NotEmpty(t, md[models.MetaSyncedAt])
	}

	// The newest file waits for the next batch.
	assert.Equal(t, models.SyncPending, env.reload(t, third.ID).SyncStatus)
}

func TestRunBatchSkipsFilesAlreadyOnTarget(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, config.StorageServerConfig{})
	target := env.memory(t, storage.TypeSpaces)

	record := env.seedFile(t, storage.TypeSpaces, "b/here.txt", models.SyncPending, "already here")

	result, err := NewSyncEngine(env.deps()).RunBatch(ctx, syncOpts(10))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Success)
	assert.Equal(t, 0, target.WriteCalls)
	assert.Equal(t, models.SyncSynced, env.reload(t, record.ID).SyncStatus)
}

func TestRunBatchMissingSourceFailsFileNotBatch(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, config.StorageServerConfig{})
	env.memory(t, storage.TypeSpaces)

	env.memory(t, storage.TypeS3)
	missing := env.addFile(t, storage.TypeS3, "c/gone.txt", models.SyncPending, 42)
	good := env.seedFile(t, storage.TypeS3, "c/good.txt", models.SyncPending, "still here")

	result, err := NewSyncEngine(env.deps()).RunBatch(ctx, syncOpts(10))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Success)
	assert.Contains(t, result.Errors[missing.ID], "c/gone.txt")

	assert.Equal(t, models.SyncFailed, env.reload(t, missing.ID).SyncStatus)
	assert.Equal(t, models.SyncSynced, env.reload(t, good.ID).SyncStatus)

	entries, err := env.store.ListSyncLog(ctx, store.LogFilter{FileID: missing.ID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.LogFailed, entries[0].Status)
	assert.Contains(t, entries[0].ErrorMessage, "c/gone.txt")
}

type deferralRecorder struct {
	ids []int64
}

func (d *deferralRecorder) Defer(_ context.Context, record *models.FileRecord, _ int64) error {
	d.ids = append(d.ids, record.ID)
	return nil
}

func TestRunBatchDefersLargeFiles(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, config.StorageServerConfig{LargeFileThresholdBytes: 10})
	target := env.memory(t, storage.TypeSpaces)

	big := env.seedFile(t, storage.TypeS3, "d/big.bin", models.SyncPending, "12345678901234567890")
	small := env.seedFile(t, storage.TypeS3, "d/small.txt", models.SyncPending, "tiny")

	engine := NewSyncEngine(env.deps())
	sink := &deferralRecorder{}
	engine.SetDeferrals(sink)

	result, err := engine.RunBatch(ctx, syncOpts(10))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Deferred)
	assert.Equal(t, 1, result.Success)
	assert.Equal(t, []int64{big.ID}, sink.ids)
	assert.Equal(t, 1, target.Len())

	// Deferred files stay pending for the background pass.
	assert.Equal(t, models.SyncPending, env.reload(t, big.ID).SyncStatus)
	assert.Equal(t, models.SyncSynced, env.reload(t, small.ID).SyncStatus)
}

func TestRunBatchLeaseContention(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, config.StorageServerConfig{})
	env.memory(t, storage.TypeSpaces)

	require.NoError(t, env.store.AcquireLease(ctx, leaseName, "other-instance", time.Hour))

	_, err := NewSyncEngine(env.deps()).RunBatch(ctx, syncOpts(10))
	assert.ErrorIs(t, err, store.ErrLeaseHeld)
}

func TestVerifyModeFlipsMissingToFailed(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, config.StorageServerConfig{})
	backend := env.memory(t, storage.TypeS3)

	present := env.seedFile(t, storage.TypeS3, "e/present.txt", models.SyncSynced, "here")
	absent := env.addFile(t, storage.TypeS3, "e/absent.txt", models.SyncSynced, 8)

	result, err := NewSyncEngine(env.deps()).RunBatch(ctx, SyncOptions{Mode: ModeVerify})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Success)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, models.SyncSynced, env.reload(t, present.ID).SyncStatus)
	assert.Equal(t, models.SyncFailed, env.reload(t, absent.ID).SyncStatus)

	// Verification never moves or removes bytes.
	assert.Equal(t, 0, backend.WriteCalls)
	assert.Equal(t, 0, backend.DeleteCalls)
}

func TestRunBatchDeleteAfterSyncPolicy(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, config.StorageServerConfig{
		DeleteAfterSync: config.DeleteAfterSyncConfig{Default: true},
	})
	env.memory(t, storage.TypeSpaces)
	source := env.memory(t, storage.TypeS3)

	record := env.seedFile(t, storage.TypeS3, "f/move.txt", models.SyncPending, "moving out")

	result, err := NewSyncEngine(env.deps()).RunBatch(ctx, syncOpts(10))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Success)
	assert.Empty(t, result.CleanupWarnings)
	assert.Equal(t, 0, source.Len())
	assert.Equal(t, models.SyncSynced, env.reload(t, record.ID).SyncStatus)
}

func TestRunBatchSourceDeleteFailureIsWarningOnly(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, config.StorageServerConfig{
		DeleteAfterSync: config.DeleteAfterSyncConfig{Default: true},
	})
	env.memory(t, storage.TypeSpaces)
	source := env.memory(t, storage.TypeS3)

	record := env.seedFile(t, storage.TypeS3, "g/stuck.txt", models.SyncPending, "sticky")
	source.FailWrites = true // blocks deletes, reads still work

	result, err := NewSyncEngine(env.deps()).RunBatch(ctx, syncOpts(10))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Success)
	assert.Equal(t, 0, result.Failed)
	require.Len(t, result.CleanupWarnings, 1)
	assert.Contains(t, result.CleanupWarnings[0], "g/stuck.txt")
	assert.Equal(t, models.SyncSynced, env.reload(t, record.ID).SyncStatus)
}

func TestRunBatchFailedModeRetries(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, config.StorageServerConfig{})
	env.memory(t, storage.TypeSpaces)

	failed := env.seedFile(t, storage.TypeS3, "h/retry.txt", models.SyncFailed, "second chance")
	pending := env.seedFile(t, storage.TypeS3, "h/wait.txt", models.SyncPending, "not yet")

	result, err := NewSyncEngine(env.deps()).RunBatch(ctx, SyncOptions{
		Mode:             ModeFailed,
		TargetBackend:    storage.TypeSpaces,
		TargetConfigName: "default",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Success)
	assert.Equal(t, models.SyncSynced, env.reload(t, failed.ID).SyncStatus)
	assert.Equal(t, models.SyncPending, env.reload(t, pending.ID).SyncStatus)
}
