package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	config "github.com/mwantia/gostow/internal/config/server"
	"github.com/mwantia/gostow/pkg/db/models"
	"github.com/mwantia/gostow/pkg/db/store"
	"github.com/mwantia/gostow/pkg/log"
	"github.com/mwantia/gostow/pkg/storage"
	"github.com/mwantia/gostow/pkg/storage/registry"
	"github.com/mwantia/gostow/pkg/storage/storagetest"
)

// testEnv wires an in-memory ledger and one shared memory backend per
// backend type, so tests can inspect call counters and stored objects.
type testEnv struct {
	store    *store.SQLiteStore
	registry *registry.Registry
	cfg      config.StorageServerConfig
	backends map[storage.BackendType]*storagetest.Memory

	uploadClock time.Time
}

func newTestEnv(t *testing.T, cfg config.StorageServerConfig) *testEnv {
	t.Helper()

	s, err := store.NewSQLiteStore(store.SQLiteConfig{Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	if cfg.Local.Root == "" {
		cfg.Local.Root = t.TempDir()
	}

	env := &testEnv{
		store:       s,
		cfg:         cfg,
		backends:    make(map[storage.BackendType]*storagetest.Memory),
		uploadClock: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	env.registry = registry.New(s, cfg)
	env.registry.SetFactory(func(_ context.Context, row *models.BackendConfig) (storage.Backend, error) {
		return env.memory(t, storage.BackendType(row.BackendType)), nil
	})
	return env
}

// memory returns the shared backend for a type, creating its config
// row on first use.
func (env *testEnv) memory(t *testing.T, bt storage.BackendType) *storagetest.Memory {
	t.Helper()
	if b, ok := env.backends[bt]; ok {
		return b
	}
	b := storagetest.NewMemory(bt)
	env.backends[bt] = b
	if bt != storage.TypeLocal {
		require.NoError(t, env.store.CreateBackendConfig(context.Background(), &models.BackendConfig{
			BackendType: string(bt),
			Name:        "default",
			IsDefault:   true,
			IsActive:    true,
		}))
	}
	return b
}

func (env *testEnv) deps() Deps {
	return Deps{
		Store:    env.store,
		Registry: env.registry,
		Config:   env.cfg,
		Log:      log.Nop(),
		Actor:    "test",
	}
}

// addFile creates a ledger row with a monotonically increasing upload
// date, so insertion order is batch order.
func (env *testEnv) addFile(t *testing.T, bt storage.BackendType, path, status string, size int64) *models.FileRecord {
	t.Helper()
	env.uploadClock = env.uploadClock.Add(time.Minute)
	record := &models.FileRecord{
		BackendType: string(bt),
		BackendPath: path,
		MimeType:    "text/plain",
		SyncStatus:  status,
		Size:        size,
		UploadDate:  env.uploadClock,
	}
	require.NoError(t, env.store.CreateFile(context.Background(), record))
	return record
}

// seedFile creates both the ledger row and the backing object.
func (env *testEnv) seedFile(t *testing.T, bt storage.BackendType, path, status, content string) *models.FileRecord {
	t.Helper()
	env.memory(t, bt).Seed(path, content)
	return env.addFile(t, bt, path, status, int64(len(content)))
}

func (env *testEnv) reload(t *testing.T, id int64) *models.FileRecord {
	t.Helper()
	record, err := env.store.GetFile(context.Background(), id)
	require.NoError(t, err)
	return record
}
