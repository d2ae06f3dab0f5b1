package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwantia/gostow/pkg/db/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(SQLiteConfig{Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, s.Connect(context.Background()))
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func addFile(t *testing.T, s *SQLiteStore, f models.FileRecord) *models.FileRecord {
	t.Helper()
	require.NoError(t, s.CreateFile(context.Background(), &f))
	return &f
}

func TestListFilesOldestUploadFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	newest := addFile(t, s, models.FileRecord{UploadDate: base.Add(2 * time.Hour), SyncStatus: models.SyncPending})
	oldest := addFile(t, s, models.FileRecord{UploadDate: base, SyncStatus: models.SyncPending})
	middle := addFile(t, s, models.FileRecord{UploadDate: base.Add(time.Hour), SyncStatus: models.SyncPending})

	files, err := s.ListFiles(ctx, FileFilter{}, 0)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, []int64{oldest.ID, middle.ID, newest.ID},
		[]int64{files[0].ID, files[1].ID, files[2].ID})

	// Limit cuts from the newest end.
	files, err = s.ListFiles(ctx, FileFilter{}, 2)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, oldest.ID, files[0].ID)
}

func TestFileFilterCombinations(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	png := addFile(t, s, models.FileRecord{
		BackendType: "local", MimeType: "image/png", SyncStatus: models.SyncPending,
		EntityType: "documents", Size: 100, UploadDate: base,
	})
	pdf := addFile(t, s, models.FileRecord{
		BackendType: "s3", MimeType: "application/pdf", SyncStatus: models.SyncSynced,
		EntityType: "invoices", Size: 5000, UploadDate: base.AddDate(0, 0, 10),
	})
	excluded := addFile(t, s, models.FileRecord{
		BackendType: "local", MimeType: "image/gif", SyncStatus: models.SyncExcluded,
		EntityType: "documents", Size: 300, UploadDate: base,
	})

	ids := func(files []models.FileRecord) []int64 {
		out := make([]int64, 0, len(files))
		for _, f := range files {
			out = append(out, f.ID)
		}
		return out
	}

	files, err := s.ListFiles(ctx, FileFilter{MimePattern: "image/*"}, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{png.ID, excluded.ID}, ids(files))

	files, err = s.ListFiles(ctx, FileFilter{
		MimePattern:     "image/*",
		ExcludeStatuses: []string{models.SyncExcluded},
	}, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{png.ID}, ids(files))

	files, err = s.ListFiles(ctx, FileFilter{ExcludeBackendType: "local"}, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{pdf.ID}, ids(files))

	minSize := int64(200)
	cutoff := base.AddDate(0, 0, 1)
	files, err = s.ListFiles(ctx, FileFilter{MinSize: &minSize, UploadedBefore: &cutoff}, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{excluded.ID}, ids(files))

	count, err := s.CountFiles(ctx, FileFilter{EntityTypes: []string{"documents"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestGetBackendConfigDefaultResolution(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.CreateBackendConfig(ctx, &models.BackendConfig{
		BackendType: "s3", Name: "secondary", IsActive: true,
	}))
	require.NoError(t, s.CreateBackendConfig(ctx, &models.BackendConfig{
		BackendType: "s3", Name: "primary", IsActive: true, IsDefault: true,
	}))

	cfg, err := s.GetBackendConfig(ctx, "s3", "")
	require.NoError(t, err)
	assert.Equal(t, "primary", cfg.Name)

	cfg, err = s.GetBackendConfig(ctx, "s3", "secondary")
	require.NoError(t, err)
	assert.Equal(t, "secondary", cfg.Name)

	_, err = s.GetBackendConfig(ctx, "s3", "missing")
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestCreateBackendConfigKeepsSingleDefault(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first := &models.BackendConfig{BackendType: "gcs", Name: "old", IsActive: true, IsDefault: true}
	require.NoError(t, s.CreateBackendConfig(ctx, first))
	second := &models.BackendConfig{BackendType: "gcs", Name: "new", IsActive: true, IsDefault: true}
	require.NoError(t, s.CreateBackendConfig(ctx, second))

	configs, err := s.ListBackendConfigs(ctx)
	require.NoError(t, err)

	defaults := 0
	for _, c := range configs {
		if c.IsDefault {
			defaults++
			assert.Equal(t, "new", c.Name)
		}
	}
	assert.Equal(t, 1, defaults)
}

func TestDeleteBackendConfigReferentialGuard(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	cfg := &models.BackendConfig{BackendType: "spaces", Name: "fra1", IsActive: true}
	require.NoError(t, s.CreateBackendConfig(ctx, cfg))

	record := addFile(t, s, models.FileRecord{BackendType: "spaces", SyncStatus: models.SyncSynced})
	record.SetMetadata(map[string]string{models.MetaConfigName: "fra1"})
	require.NoError(t, s.UpdateFile(ctx, record))

	err := s.DeleteBackendConfig(ctx, cfg.ID)
	assert.ErrorIs(t, err, ErrConfigReferenced)

	// Repointing the file frees the config for deletion.
	record.SetMetadata(map[string]string{models.MetaConfigName: "other"})
	require.NoError(t, s.UpdateFile(ctx, record))
	require.NoError(t, s.DeleteBackendConfig(ctx, cfg.ID))

	_, err = s.GetBackendConfig(ctx, "spaces", "fra1")
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestAcquireLeaseContentionAndExpiry(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.AcquireLease(ctx, "batch", "alpha", time.Hour))

	// Re-entrant acquisition by the same holder extends the lease.
	require.NoError(t, s.AcquireLease(ctx, "batch", "alpha", time.Hour))

	// Another holder is rejected while the lease is live.
	err := s.AcquireLease(ctx, "batch", "beta", time.Hour)
	assert.ErrorIs(t, err, ErrLeaseHeld)

	// Releasing under the wrong holder is a no-op.
	require.NoError(t, s.ReleaseLease(ctx, "batch", "beta"))
	err = s.AcquireLease(ctx, "batch", "beta", time.Hour)
	assert.ErrorIs(t, err, ErrLeaseHeld)

	require.NoError(t, s.ReleaseLease(ctx, "batch", "alpha"))
	require.NoError(t, s.AcquireLease(ctx, "batch", "beta", time.Hour))
}

func TestAcquireLeaseReclaimsExpired(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// A crashed holder's lease expires on its own.
	require.NoError(t, s.AcquireLease(ctx, "batch", "crashed", -time.Minute))
	require.NoError(t, s.AcquireLease(ctx, "batch", "beta", time.Hour))
}

func TestSnapshotLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	record := addFile(t, s, models.FileRecord{
		BackendType: "local", BackendPath: "files/2025/03/01/doc_ab12cd34.pdf",
		URI: "uploads/doc.pdf", SyncStatus: models.SyncSynced,
	})

	snapshot, err := s.CreateSnapshot(ctx, "pre-migration")
	require.NoError(t, err)
	assert.Equal(t, int64(1), snapshot.FileCount)

	_, err = s.CreateSnapshot(ctx, "pre-migration")
	assert.ErrorIs(t, err, ErrSnapshotExists)

	// Simulate a migration, then restore.
	record.BackendType = "s3"
	record.BackendPath = "files/2025/03/01/doc_ff00ff00.pdf"
	require.NoError(t, s.UpdateFile(ctx, record))

	restored, err := s.RestoreSnapshot(ctx, "pre-migration")
	require.NoError(t, err)
	assert.Equal(t, int64(1), restored)

	reloaded, err := s.GetFile(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, "local", reloaded.BackendType)
	assert.Equal(t, "files/2025/03/01/doc_ab12cd34.pdf", reloaded.BackendPath)
	assert.Equal(t, "uploads/doc.pdf", reloaded.URI)

	require.NoError(t, s.DeleteSnapshot(ctx, "pre-migration"))
	_, err = s.RestoreSnapshot(ctx, "pre-migration")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestRecentSyncDurationsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	record := addFile(t, s, models.FileRecord{SyncStatus: models.SyncSynced})

	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, ms := range []int64{100, 200, 300, 400} {
		require.NoError(t, s.AppendSyncLog(ctx, &models.SyncLogEntry{
			FileID:        record.ID,
			Operation:     models.OpSync,
			TargetBackend: "s3",
			Status:        models.LogSuccess,
			DurationMs:    ms,
			SyncDate:      base.Add(time.Duration(i) * time.Minute),
		}))
	}
	// Failures never feed the estimate.
	require.NoError(t, s.AppendSyncLog(ctx, &models.SyncLogEntry{
		FileID: record.ID, Operation: models.OpSync, TargetBackend: "s3",
		Status: models.LogFailed, DurationMs: 9999, SyncDate: base.Add(time.Hour),
	}))

	durations, err := s.RecentSyncDurations(ctx, "s3", 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{400, 300}, durations)
}

func TestBackendStatsAggregates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	addFile(t, s, models.FileRecord{BackendType: "local", SyncStatus: models.SyncPending, Size: 10})
	addFile(t, s, models.FileRecord{BackendType: "local", SyncStatus: models.SyncSynced, Size: 20})
	addFile(t, s, models.FileRecord{BackendType: "s3", SyncStatus: models.SyncFailed, Size: 40})

	stats, err := s.BackendStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.Equal(t, "local", stats[0].BackendType)
	assert.Equal(t, int64(2), stats[0].FileCount)
	assert.Equal(t, int64(30), stats[0].TotalSize)
	assert.Equal(t, int64(1), stats[0].SyncedCount)

	assert.Equal(t, "s3", stats[1].BackendType)
	assert.Equal(t, int64(1), stats[1].FailedCount)
}
