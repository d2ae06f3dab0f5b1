package client

import (
	"fmt"

	config "github.com/mwantia/gostow/internal/config/server"
	"github.com/mwantia/gostow/pkg/db/store"
	"github.com/mwantia/gostow/pkg/engine"
	"github.com/mwantia/gostow/pkg/log"
	"github.com/mwantia/gostow/pkg/storage/registry"
)

// runtime wires the client commands against the shared ledger. The
// run lease keeps them safe to use while an agent is running.
type runtime struct {
	cfg      *config.BaseServerConfig
	store    *store.SQLiteStore
	registry *registry.Registry
	sync     *engine.SyncEngine
	migrate  *engine.MigrationEngine
}

func setup() (*runtime, error) {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load server configuration: %w", err)
	}

	metaStore, err := store.NewSQLiteStore(store.SQLiteConfig{
		Path: cfg.Metadata.SQLite.Path,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}

	logger := log.NewLoggerService("gostow", cfg.Log)
	reg := registry.New(metaStore, cfg.Storage)
	deps := engine.Deps{
		Store:    metaStore,
		Registry: reg,
		Config:   cfg.Storage,
		Log:      logger,
		Actor:    cfg.Actor,
	}

	return &runtime{
		cfg:      cfg,
		store:    metaStore,
		registry: reg,
		sync:     engine.NewSyncEngine(deps),
		migrate:  engine.NewMigrationEngine(deps),
	}, nil
}

func (rt *runtime) close() {
	rt.store.Close()
}

func printBatchResult(result *engine.BatchResult) {
	fmt.Printf("Processed: %d\n", result.Processed)
	fmt.Printf("Success:   %d\n", result.Success)
	fmt.Printf("Failed:    %d\n", result.Failed)
	fmt.Printf("Skipped:   %d\n", result.Skipped)
	if result.Deferred > 0 {
		fmt.Printf("Deferred:  %d\n", result.Deferred)
	}
	fmt.Printf("Duration:  %dms\n", result.DurationMs)

	for id, msg := range result.Errors {
		fmt.Printf("  file %d: %s\n", id, msg)
	}
	for _, warning := range result.CleanupWarnings {
		fmt.Printf("  warning: %s\n", warning)
	}
}
