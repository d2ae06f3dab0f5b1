package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/mwantia/gostow/internal/config/server"
	"github.com/mwantia/gostow/pkg/db/models"
	"github.com/mwantia/gostow/pkg/db/store"
	"github.com/mwantia/gostow/pkg/storage"
	"github.com/mwantia/gostow/pkg/storage/storagetest"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(store.SQLiteConfig{Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestRegistry(t *testing.T, s *store.SQLiteStore, cfg config.StorageServerConfig) *Registry {
	t.Helper()
	if cfg.Local.Root == "" {
		cfg.Local.Root = t.TempDir()
	}
	r := New(s, cfg)
	r.SetFactory(func(_ context.Context, row *models.BackendConfig) (storage.Backend, error) {
		return storagetest.NewMemory(storage.BackendType(row.BackendType)), nil
	})
	return r
}

func TestGetBackendCachesInstances(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateBackendConfig(ctx, &models.BackendConfig{
		BackendType: "s3", Name: "primary", IsActive: true,
	}))

	r := newTestRegistry(t, s, config.StorageServerConfig{})

	b1, err := r.GetBackend(ctx, storage.TypeS3, "primary")
	require.NoError(t, err)
	b2, err := r.GetBackend(ctx, storage.TypeS3, "primary")
	require.NoError(t, err)
	assert.Same(t, b1, b2)

	r.Invalidate()
	b3, err := r.GetBackend(ctx, storage.TypeS3, "primary")
	require.NoError(t, err)
	assert.NotSame(t, b1, b3)
}

func TestGetBackendConfigNotFound(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, newTestStore(t), config.StorageServerConfig{})

	_, err := r.GetBackend(ctx, storage.TypeGCS, "missing")
	assert.ErrorIs(t, err, store.ErrConfigNotFound)
}

func TestGetBackendRejectsUnknownType(t *testing.T) {
	r := newTestRegistry(t, newTestStore(t), config.StorageServerConfig{})
	_, err := r.GetBackend(context.Background(), "ftp", "")
	assert.ErrorIs(t, err, storage.ErrInvalidConfig)
}

func TestGetDefaultBackendFallsBackToLocal(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, newTestStore(t), config.StorageServerConfig{})

	b, err := r.GetDefaultBackend(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.TypeLocal, b.Type())
}

func TestGetBackendForRecord(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateBackendConfig(ctx, &models.BackendConfig{
		BackendType: "spaces", Name: "fra1", IsActive: true,
	}))
	r := newTestRegistry(t, s, config.StorageServerConfig{})

	record := &models.FileRecord{ID: 1, BackendType: "spaces"}
	record.SetMetadata(map[string]string{models.MetaConfigName: "fra1"})

	b, err := r.GetBackendForRecord(ctx, record)
	require.NoError(t, err)
	assert.Equal(t, storage.TypeSpaces, b.Type())

	// legacy record without backend_type resolves to local
	legacy := &models.FileRecord{ID: 2}
	b, err = r.GetBackendForRecord(ctx, legacy)
	require.NoError(t, err)
	assert.Equal(t, storage.TypeLocal, b.Type())
}

func TestGetBackendForNewFilePlacement(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateBackendConfig(ctx, &models.BackendConfig{
		BackendType: "s3", Name: "media", IsActive: true,
	}))

	r := newTestRegistry(t, s, config.StorageServerConfig{
		PlacementRules: []config.PlacementRuleConfig{
			{MimePattern: "video/*", Backend: "s3", ConfigName: "media"},
		},
	})

	b, err := r.GetBackendForNewFile(ctx, FileInfo{MimeType: "video/mp4", Size: 1 << 20})
	require.NoError(t, err)
	assert.Equal(t, storage.TypeS3, b.Type())

	// no rule match falls through to the default backend
	b, err = r.GetBackendForNewFile(ctx, FileInfo{MimeType: "text/plain"})
	require.NoError(t, err)
	assert.Equal(t, storage.TypeLocal, b.Type())
}

func TestInactiveConfigNotResolved(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateBackendConfig(ctx, &models.BackendConfig{
		BackendType: "azure", Name: "cold", IsActive: false,
	}))
	r := newTestRegistry(t, s, config.StorageServerConfig{})

	_, err := r.GetBackend(ctx, storage.TypeAzure, "cold")
	assert.ErrorIs(t, err, store.ErrConfigNotFound)
}
