package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/mwantia/fabric/pkg/container"

	config "github.com/mwantia/gostow/internal/config/server"
	"github.com/mwantia/gostow/pkg/db/store"
	"github.com/mwantia/gostow/pkg/engine"
	"github.com/mwantia/gostow/pkg/log"
	"github.com/mwantia/gostow/pkg/storage/registry"
)

type GoStowAgent struct {
	mutex sync.RWMutex
	wait  sync.WaitGroup

	cfg *config.BaseServerConfig
	sc  *container.ServiceContainer
	log log.LoggerService

	store    *store.SQLiteStore
	registry *registry.Registry
	sync     *engine.SyncEngine
	migrate  *engine.MigrationEngine
	deferred *deferredWorker
}

func NewAgent(cfg *config.BaseServerConfig) *GoStowAgent {
	return &GoStowAgent{
		cfg: cfg,
		sc:  container.NewServiceContainer(),
		log: log.NewLoggerService("gostow", cfg.Log),
	}
}

func (gsa *GoStowAgent) setupServices(ctx context.Context) error {
	metaStore, err := store.NewSQLiteStore(store.SQLiteConfig{
		Path: gsa.cfg.Metadata.SQLite.Path,
	})
	if err != nil {
		return fmt.Errorf("failed to open metadata store: %w", err)
	}
	if err := metaStore.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate metadata store: %w", err)
	}
	gsa.store = metaStore
	gsa.registry = registry.New(metaStore, gsa.cfg.Storage)

	deps := engine.Deps{
		Store:    metaStore,
		Registry: gsa.registry,
		Config:   gsa.cfg.Storage,
		Log:      gsa.log.Named("engine"),
		Actor:    gsa.cfg.Actor,
	}
	gsa.sync = engine.NewSyncEngine(deps)
	gsa.migrate = engine.NewMigrationEngine(deps)
	gsa.deferred = newDeferredWorker(deps)
	gsa.sync.SetDeferrals(gsa.deferred)

	errs := container.Errors{}

	gsa.log.Debug("Registering 'LoggerService'...")
	errs.Add(container.Register[log.LoggerServiceImpl](gsa.sc,
		container.With[log.LoggerService](),
		container.WithInstance(gsa.log)))

	gsa.log.Debug("Registering 'MetadataStore'...")
	errs.Add(container.Register[store.SQLiteStore](gsa.sc,
		container.With[store.MetadataStore](),
		container.WithInstance(metaStore)))

	gsa.log.Debug("Registering 'Registry'...")
	errs.Add(container.Register[registry.Registry](gsa.sc,
		container.WithInstance(gsa.registry)))

	gsa.log.Debug("Registering 'SyncEngine'...")
	errs.Add(container.Register[engine.SyncEngine](gsa.sc,
		container.WithInstance(gsa.sync)))

	gsa.log.Debug("Registering 'MigrationEngine'...")
	errs.Add(container.Register[engine.MigrationEngine](gsa.sc,
		container.WithInstance(gsa.migrate)))

	return errs.Errors()
}

func (gsa *GoStowAgent) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	gsa.mutex.Lock()

	if err := gsa.setupServices(ctx); err != nil {
		gsa.mutex.Unlock()
		return err
	}

	if gsa.cfg.Storage.Enabled {
		gsa.wait.Add(2)
		go gsa.syncLoop(ctx)
		go gsa.deferred.run(ctx, &gsa.wait)
	} else {
		gsa.log.Info("Storage subsystem disabled, agent idling")
	}

	gsa.mutex.Unlock()
	<-ctx.Done()

	timeout, err := time.ParseDuration(gsa.cfg.ShutdownTimeout)
	if err != nil {
		// Set default of 60 seconds if error
		timeout = 60 * time.Second
	}

	shutdown, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := gsa.sc.Cleanup(shutdown); err != nil {
		return fmt.Errorf("failed to complete service container cleanup: %w", err)
	}

	gsa.wait.Wait()

	if gsa.store != nil {
		if err := gsa.store.Close(); err != nil {
			return fmt.Errorf("failed to close metadata store: %w", err)
		}
	}
	return nil
}

// syncLoop runs one batch immediately, then on every interval tick.
func (gsa *GoStowAgent) syncLoop(ctx context.Context) {
	defer gsa.wait.Done()

	interval, err := time.ParseDuration(gsa.cfg.Storage.SyncInterval)
	if err != nil || interval <= 0 {
		interval = time.Hour
	}

	gsa.runBatch(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			gsa.runBatch(ctx)
		}
	}
}

func (gsa *GoStowAgent) runBatch(ctx context.Context) {
	result, err := gsa.sync.RunBatch(ctx, engine.SyncOptions{})
	switch {
	case errors.Is(err, store.ErrLeaseHeld):
		gsa.log.Debug("Sync batch skipped, lease held by another instance")
	case err != nil:
		gsa.log.Error("Sync batch failed: %v", err)
	case result.Failed > 0:
		gsa.log.Warn("Sync batch finished with %d failures", result.Failed)
	}
}
