package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mwantia/gostow/pkg/db/models"
	"github.com/mwantia/gostow/pkg/db/store"
	"github.com/mwantia/gostow/pkg/engine"
	"github.com/mwantia/gostow/pkg/log"
)

const deferredQueueSize = 256

// deferredWorker moves files above the large-file threshold one at a
// time outside the synchronous batch, so a single huge upload cannot
// stall the backlog. It runs its own engine with the threshold lifted.
type deferredWorker struct {
	log    log.LoggerService
	engine *engine.SyncEngine
	queue  chan int64
}

func newDeferredWorker(deps engine.Deps) *deferredWorker {
	deps.Config.LargeFileThresholdBytes = 0
	return &deferredWorker{
		log:    deps.Log.Named("deferred"),
		engine: engine.NewSyncEngine(deps),
		queue:  make(chan int64, deferredQueueSize),
	}
}

// Defer enqueues a large file. The file keeps its pending status, so a
// full queue only postpones it until the next batch sees it again.
func (dw *deferredWorker) Defer(_ context.Context, record *models.FileRecord, size int64) error {
	select {
	case dw.queue <- record.ID:
		dw.log.Debug("Queued file %d for deferred transfer (%d bytes)", record.ID, size)
		return nil
	default:
		return fmt.Errorf("deferred queue full, file %d stays pending", record.ID)
	}
}

func (dw *deferredWorker) run(ctx context.Context, wait *sync.WaitGroup) {
	defer wait.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case id := <-dw.queue:
			dw.process(ctx, id)
		}
	}
}

func (dw *deferredWorker) process(ctx context.Context, id int64) {
	result, err := dw.engine.RunBatch(ctx, engine.SyncOptions{
		FileIDs:   []int64{id},
		BatchSize: 1,
	})
	switch {
	case errors.Is(err, store.ErrLeaseHeld):
		// A foreground batch is running; requeue and back off. The file
		// is still pending either way.
		select {
		case dw.queue <- id:
		default:
		}
		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Second):
		}
	case err != nil:
		dw.log.Error("Deferred transfer of file %d failed: %v", id, err)
	case result.Failed > 0:
		dw.log.Warn("Deferred transfer of file %d failed: %s", id, result.Errors[id])
	case result.Success > 0:
		dw.log.Info("Deferred transfer of file %d complete", id)
	}
}
