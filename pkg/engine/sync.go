package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/mwantia/gostow/pkg/db/models"
	"github.com/mwantia/gostow/pkg/db/store"
	"github.com/mwantia/gostow/pkg/storage"
)

// SyncMode selects the candidate set of a sync batch.
type SyncMode string

const (
	// ModePending processes files not yet on their target backend.
	ModePending SyncMode = "pending"
	// ModeFailed retries previously failed files.
	ModeFailed SyncMode = "failed"
	// ModeVerify probes synced files for existence without moving
	// bytes; a missing object flips the record back to failed.
	ModeVerify SyncMode = "verify"
	// ModeAll combines pending and failed.
	ModeAll SyncMode = "all"
)

// SyncOptions tunes one batch invocation. Zero values fall back to the
// configured defaults.
type SyncOptions struct {
	Mode      SyncMode
	BatchSize int
	// TargetBackend overrides the configured default backend.
	TargetBackend    storage.BackendType
	TargetConfigName string
	// FileIDs narrows the batch to specific records, used by the
	// deferred large-file worker.
	FileIDs []int64
}

// Deferrals receives files above the large-file threshold. Deferred
// files keep their pending status so a later pass picks them up.
type Deferrals interface {
	Defer(ctx context.Context, record *models.FileRecord, size int64) error
}

// SyncEngine drains the sync backlog in bounded, oldest-first batches.
type SyncEngine struct {
	mover
	deferrals Deferrals
}

func NewSyncEngine(deps Deps) *SyncEngine {
	return &SyncEngine{mover: newMover(deps)}
}

// SetDeferrals installs the sink for large files. Without one they are
// simply skipped and stay pending.
func (s *SyncEngine) SetDeferrals(d Deferrals) {
	s.deferrals = d
}

// RunBatch claims the run lease and processes one batch. Per-file
// failures are collected in the result and never abort the batch;
// only lease contention or candidate query errors fail the call.
func (s *SyncEngine) RunBatch(ctx context.Context, opts SyncOptions) (*BatchResult, error) {
	mode := opts.Mode
	if mode == "" {
		mode = ModePending
	}

	release, err := s.acquireLease(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var target storage.Backend
	if mode != ModeVerify {
		target, err = s.resolveTarget(ctx, opts)
		if err != nil {
			return nil, err
		}
	}

	filter, err := syncFilter(mode)
	if err != nil {
		return nil, err
	}
	filter.IDs = opts.FileIDs
	files, err := s.store.ListFiles(ctx, filter, s.batchSize(opts.BatchSize))
	if err != nil {
		return nil, fmt.Errorf("list sync candidates: %w", err)
	}

	start := time.Now()
	result := newBatchResult()
	for i := range files {
		record := &files[i]
		result.Processed++
		if mode == ModeVerify {
			s.verifyFile(ctx, record, result)
			continue
		}
		s.syncFile(ctx, record, target, opts.TargetConfigName, result)
	}
	result.DurationMs = time.Since(start).Milliseconds()

	s.log.Info("sync batch done (mode=%s): %d processed, %d ok, %d failed, %d skipped, %d deferred",
		mode, result.Processed, result.Success, result.Failed, result.Skipped, result.Deferred)
	return result, nil
}

func (s *SyncEngine) resolveTarget(ctx context.Context, opts SyncOptions) (storage.Backend, error) {
	if opts.TargetBackend != "" {
		return s.registry.GetBackend(ctx, opts.TargetBackend, opts.TargetConfigName)
	}
	return s.registry.GetDefaultBackend(ctx)
}

func syncFilter(mode SyncMode) (store.FileFilter, error) {
	switch mode {
	case ModePending:
		return store.FileFilter{SyncStatuses: []string{models.SyncPending}}, nil
	case ModeFailed:
		return store.FileFilter{SyncStatuses: []string{models.SyncFailed}}, nil
	case ModeVerify:
		return store.FileFilter{SyncStatuses: []string{models.SyncSynced}}, nil
	case ModeAll:
		return store.FileFilter{SyncStatuses: []string{models.SyncPending, models.SyncFailed}}, nil
	}
	return store.FileFilter{}, fmt.Errorf("unknown sync mode %q", mode)
}

func (s *SyncEngine) syncFile(ctx context.Context, record *models.FileRecord, target storage.Backend, targetConfigName string, result *BatchResult) {
	fail := func(err error) {
		result.Failed++
		result.Errors[record.ID] = err.Error()
	}

	// Already on the target type: fix the status, move nothing.
	if record.ResolvedBackendType() == target.Type() {
		if record.SyncStatus != models.SyncSynced {
			record.SyncStatus = models.SyncSynced
			if err := s.store.UpdateFile(ctx, record); err != nil {
				fail(fmt.Errorf("update record %d: %w", record.ID, err))
				return
			}
		}
		s.appendSkip(ctx, record, target, models.OpSync, "already on target backend")
		result.Skipped++
		return
	}

	source, err := s.registry.GetBackendForRecord(ctx, record)
	if err != nil {
		s.markFailed(ctx, record, nil, target, models.OpSync, record.Size, err)
		fail(err)
		return
	}

	srcPath, err := record.SourcePath()
	if err != nil {
		err = fmt.Errorf("file %d has no source path: %w", record.ID, err)
		s.markFailed(ctx, record, source, target, models.OpSync, record.Size, err)
		fail(err)
		return
	}

	exists, err := source.Exists(ctx, srcPath)
	if err != nil {
		err = fmt.Errorf("probe source %q: %w", srcPath, err)
		s.markFailed(ctx, record, source, target, models.OpSync, record.Size, err)
		fail(err)
		return
	}
	if !exists {
		err = fmt.Errorf("source object missing at %s/%s", source.Type(), srcPath)
		s.markFailed(ctx, record, source, target, models.OpSync, record.Size, err)
		fail(err)
		return
	}

	size, err := source.GetSize(ctx, srcPath)
	if err != nil {
		size = record.Size
	}
	if s.cfg.LargeFileThresholdBytes > 0 && size > s.cfg.LargeFileThresholdBytes {
		s.appendSkip(ctx, record, target, models.OpSync,
			fmt.Sprintf("deferred: %d bytes exceeds large file threshold", size))
		if s.deferrals != nil {
			if err := s.deferrals.Defer(ctx, record, size); err != nil {
				s.log.Warn("failed to defer file %d: %v", record.ID, err)
			}
		}
		result.Deferred++
		return
	}

	moved, warning, err := s.transfer(ctx, record, source, srcPath, target, targetConfigName, models.OpSync, transferOpts{
		deleteSource: s.cfg.DeleteAfterSync.DeleteSourceFor(string(source.Type()), string(target.Type())),
	})
	if err != nil {
		fail(err)
		return
	}
	if warning != "" {
		result.CleanupWarnings = append(result.CleanupWarnings, warning)
	}
	result.Success++
	result.TotalSize += moved
}

// verifyFile probes a synced record's recorded location. Only a
// confirmed absence flips the status; probe errors leave it untouched.
func (s *SyncEngine) verifyFile(ctx context.Context, record *models.FileRecord, result *BatchResult) {
	backend, err := s.registry.GetBackendForRecord(ctx, record)
	if err != nil {
		result.Failed++
		result.Errors[record.ID] = err.Error()
		return
	}

	if record.BackendPath == "" {
		err = fmt.Errorf("synced file %d has no backend path", record.ID)
		s.markFailed(ctx, record, backend, nil, models.OpVerify, record.Size, err)
		result.Failed++
		result.Errors[record.ID] = err.Error()
		return
	}

	exists, err := backend.Exists(ctx, record.BackendPath)
	if err != nil {
		result.Failed++
		result.Errors[record.ID] = fmt.Sprintf("probe %s/%s: %v", backend.Type(), record.BackendPath, err)
		return
	}
	if !exists {
		err = fmt.Errorf("object missing at %s/%s", backend.Type(), record.BackendPath)
		s.markFailed(ctx, record, backend, nil, models.OpVerify, record.Size, err)
		result.Failed++
		result.Errors[record.ID] = err.Error()
		return
	}

	s.appendLog(ctx, record, backend, nil, models.OpVerify, models.LogSuccess, record.Size, 0, nil)
	result.Success++
}
