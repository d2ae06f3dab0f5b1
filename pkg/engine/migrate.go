package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/mwantia/gostow/pkg/db/models"
	"github.com/mwantia/gostow/pkg/db/store"
	"github.com/mwantia/gostow/pkg/storage"
)

// ErrNoOriginBackend marks a rollback candidate without a recorded
// origin. Rollback never guesses where a file came from.
var ErrNoOriginBackend = errors.New("no origin backend recorded")

const (
	// planSampleSize bounds how many candidates Plan sizes for real.
	planSampleSize = 100

	// estCostPerGiB is a flat advisory transfer figure, not a quote.
	estCostPerGiB = 0.02

	// defaultPerFileMs is the ETA fallback when no sync history exists
	// for the target backend yet.
	defaultPerFileMs = 2000
)

// Criteria selects migration candidates. Every set field narrows the
// set; files already on the target and excluded files never match.
type Criteria struct {
	// SourceBackend narrows to files currently on one backend type.
	SourceBackend string
	// TargetBackend is required for Execute and defines "done" for
	// Plan, Verify and Progress.
	TargetBackend    string
	TargetConfigName string

	EntityTypes []string
	FileTypeIDs []int64
	// MimePattern uses * as wildcard, anchored full-string match.
	MimePattern    string
	UploadedBefore *time.Time
	MinSize        *int64
	MaxSize        *int64
}

func (c Criteria) filter() store.FileFilter {
	f := store.FileFilter{
		ExcludeBackendType: c.TargetBackend,
		ExcludeStatuses:    []string{models.SyncExcluded},
		EntityTypes:        c.EntityTypes,
		FileTypeIDs:        c.FileTypeIDs,
		MimePattern:        c.MimePattern,
		UploadedBefore:     c.UploadedBefore,
		MinSize:            c.MinSize,
		MaxSize:            c.MaxSize,
	}
	if c.SourceBackend != "" {
		f.BackendTypes = []string{c.SourceBackend}
	}
	return f
}

func (c Criteria) validate() error {
	if c.TargetBackend == "" {
		return storage.InvalidConfigf("migration criteria require a target backend")
	}
	if !storage.BackendType(c.TargetBackend).Valid() {
		return storage.InvalidConfigf("unknown target backend %q", c.TargetBackend)
	}
	return nil
}

// Options tunes one Execute or Rollback invocation.
type Options struct {
	BatchSize int
	// DryRun reports what would happen without touching backends or
	// the ledger.
	DryRun bool
	// Verify checks written size against source size after each copy.
	Verify bool
	// DeleteSource removes source objects after successful copies.
	DeleteSource bool
}

// MigrationEngine plans and executes bulk moves between backends.
type MigrationEngine struct {
	mover
}

func NewMigrationEngine(deps Deps) *MigrationEngine {
	return &MigrationEngine{mover: newMover(deps)}
}

// Plan estimates a migration without moving bytes: counts candidates,
// samples real sizes from the source backends and extrapolates.
func (e *MigrationEngine) Plan(ctx context.Context, criteria Criteria) (*MigrationPlan, error) {
	if err := criteria.validate(); err != nil {
		return nil, err
	}

	filter := criteria.filter()
	count, err := e.store.CountFiles(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count migration candidates: %w", err)
	}

	plan := &MigrationPlan{FileCount: count}
	if count == 0 {
		return plan, nil
	}

	sample, err := e.store.ListFiles(ctx, filter, planSampleSize)
	if err != nil {
		return nil, fmt.Errorf("sample migration candidates: %w", err)
	}

	var sampleTotal int64
	for i := range sample {
		record := &sample[i]
		size := record.Size
		if source, serr := e.registry.GetBackendForRecord(ctx, record); serr == nil {
			if srcPath, perr := record.SourcePath(); perr == nil {
				if real, gerr := source.GetSize(ctx, srcPath); gerr == nil {
					size = real
				}
			}
		}
		sampleTotal += size
	}
	plan.SampleSize = len(sample)
	if plan.SampleSize > 0 {
		plan.EstimatedTotalSize = sampleTotal / int64(plan.SampleSize) * count
	}
	plan.EstimatedTime = e.estimatePerFile(ctx, criteria.TargetBackend) * time.Duration(count)
	plan.EstimatedCost = float64(plan.EstimatedTotalSize) / float64(1<<30) * estCostPerGiB

	e.log.Info("migration plan to %s: %d files, ~%s, ~%s",
		criteria.TargetBackend, count, humanize.IBytes(uint64(plan.EstimatedTotalSize)), plan.EstimatedTime.Round(time.Second))
	return plan, nil
}

// Execute moves one batch of candidates to the target. A dry run walks
// the same candidate set but performs no backend calls and no ledger
// writes.
func (e *MigrationEngine) Execute(ctx context.Context, criteria Criteria, opts Options) (*BatchResult, error) {
	if err := criteria.validate(); err != nil {
		return nil, err
	}

	files, err := e.store.ListFiles(ctx, criteria.filter(), e.batchSize(opts.BatchSize))
	if err != nil {
		return nil, fmt.Errorf("list migration candidates: %w", err)
	}

	start := time.Now()
	result := newBatchResult()

	if opts.DryRun {
		for i := range files {
			result.Processed++
			result.Skipped++
			result.TotalSize += files[i].Size
		}
		result.DurationMs = time.Since(start).Milliseconds()
		e.log.Info("migration dry run to %s: %d files, ~%s would move",
			criteria.TargetBackend, result.Processed, humanize.IBytes(uint64(result.TotalSize)))
		return result, nil
	}

	release, err := e.acquireLease(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	target, err := e.registry.GetBackend(ctx, storage.BackendType(criteria.TargetBackend), criteria.TargetConfigName)
	if err != nil {
		return nil, err
	}

	for i := range files {
		record := &files[i]
		result.Processed++
		e.migrateFile(ctx, record, target, criteria.TargetConfigName, opts, result)
	}
	result.DurationMs = time.Since(start).Milliseconds()

	e.log.Info("migration batch to %s: %d processed, %d ok, %d failed, %d skipped, %s moved",
		criteria.TargetBackend, result.Processed, result.Success, result.Failed, result.Skipped,
		humanize.IBytes(uint64(result.TotalSize)))
	return result, nil
}

func (e *MigrationEngine) migrateFile(ctx context.Context, record *models.FileRecord, target storage.Backend,
	targetConfigName string, opts Options, result *BatchResult) {

	fail := func(err error) {
		result.Failed++
		result.Errors[record.ID] = err.Error()
	}

	source, err := e.registry.GetBackendForRecord(ctx, record)
	if err != nil {
		e.markFailed(ctx, record, nil, target, models.OpMigrate, record.Size, err)
		fail(err)
		return
	}

	srcPath, err := record.SourcePath()
	if err != nil {
		err = fmt.Errorf("file %d has no source path: %w", record.ID, err)
		e.markFailed(ctx, record, source, target, models.OpMigrate, record.Size, err)
		fail(err)
		return
	}

	exists, err := source.Exists(ctx, srcPath)
	if err != nil {
		err = fmt.Errorf("probe source %q: %w", srcPath, err)
		e.markFailed(ctx, record, source, target, models.OpMigrate, record.Size, err)
		fail(err)
		return
	}
	if !exists {
		err = fmt.Errorf("source object missing at %s/%s", source.Type(), srcPath)
		e.markFailed(ctx, record, source, target, models.OpMigrate, record.Size, err)
		fail(err)
		return
	}

	moved, warning, err := e.transfer(ctx, record, source, srcPath, target, targetConfigName, models.OpMigrate, transferOpts{
		verify:       opts.Verify,
		deleteSource: opts.DeleteSource,
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

// Verify scans files recorded on the target backend and checks that
// each object exists, with size equality when the record carries one.
// Invalid records flip to failed so the next batch re-transfers them.
func (e *MigrationEngine) Verify(ctx context.Context, criteria Criteria) (*VerifyResult, error) {
	if err := criteria.validate(); err != nil {
		return nil, err
	}

	files, err := e.store.ListFiles(ctx, store.FileFilter{
		BackendTypes:    []string{criteria.TargetBackend},
		ExcludeStatuses: []string{models.SyncExcluded},
		EntityTypes:     criteria.EntityTypes,
		FileTypeIDs:     criteria.FileTypeIDs,
		MimePattern:     criteria.MimePattern,
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("list files on %s: %w", criteria.TargetBackend, err)
	}

	result := &VerifyResult{Errors: make(map[int64]string)}
	for i := range files {
		record := &files[i]
		result.Checked++

		backend, err := e.registry.GetBackendForRecord(ctx, record)
		if err != nil {
			result.Invalid++
			result.Errors[record.ID] = err.Error()
			continue
		}

		if err := e.checkObject(ctx, backend, record); err != nil {
			e.markFailed(ctx, record, backend, nil, models.OpVerify, record.Size, err)
			result.Invalid++
			result.Errors[record.ID] = err.Error()
			continue
		}
		result.Valid++
	}

	e.log.Info("verified %d files on %s: %d valid, %d invalid",
		result.Checked, criteria.TargetBackend, result.Valid, result.Invalid)
	return result, nil
}

func (e *MigrationEngine) checkObject(ctx context.Context, backend storage.Backend, record *models.FileRecord) error {
	if record.BackendPath == "" {
		return fmt.Errorf("file %d has no backend path", record.ID)
	}
	exists, err := backend.Exists(ctx, record.BackendPath)
	if err != nil {
		return fmt.Errorf("probe %s/%s: %w", backend.Type(), record.BackendPath, err)
	}
	if !exists {
		return fmt.Errorf("object missing at %s/%s", backend.Type(), record.BackendPath)
	}
	if record.Size > 0 {
		size, err := backend.GetSize(ctx, record.BackendPath)
		if err != nil {
			return fmt.Errorf("size of %s/%s: %w", backend.Type(), record.BackendPath, err)
		}
		if size != record.Size {
			return fmt.Errorf("object %s/%s has %d bytes, record says %d: %w",
				backend.Type(), record.BackendPath, size, record.Size, storage.ErrVerificationMismatch)
		}
	}
	return nil
}

// Rollback moves files off criteria.SourceBackend back to the backend
// recorded in their origin metadata. Files without that breadcrumb
// fail individually; their location is unknowable, not guessable.
func (e *MigrationEngine) Rollback(ctx context.Context, criteria Criteria, opts Options) (*BatchResult, error) {
	if criteria.SourceBackend == "" {
		return nil, storage.InvalidConfigf("rollback requires a source backend")
	}

	filter := store.FileFilter{
		BackendTypes:    []string{criteria.SourceBackend},
		ExcludeStatuses: []string{models.SyncExcluded},
		EntityTypes:     criteria.EntityTypes,
		FileTypeIDs:     criteria.FileTypeIDs,
		MimePattern:     criteria.MimePattern,
	}
	files, err := e.store.ListFiles(ctx, filter, e.batchSize(opts.BatchSize))
	if err != nil {
		return nil, fmt.Errorf("list rollback candidates: %w", err)
	}

	release, err := e.acquireLease(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	result := newBatchResult()
	for i := range files {
		record := &files[i]
		result.Processed++

		origin := record.Metadata()[models.MetaOriginalBackend]
		if origin == "" {
			err := fmt.Errorf("file %d: %w", record.ID, ErrNoOriginBackend)
			result.Failed++
			result.Errors[record.ID] = err.Error()
			e.appendLog(ctx, record, nil, nil, models.OpRollback, models.LogFailed, record.Size, 0, err)
			continue
		}

		target, err := e.registry.GetBackend(ctx, storage.BackendType(origin), "")
		if err != nil {
			result.Failed++
			result.Errors[record.ID] = err.Error()
			e.appendLog(ctx, record, nil, nil, models.OpRollback, models.LogFailed, record.Size, 0, err)
			continue
		}

		e.rollbackFile(ctx, record, target, opts, result)
	}
	result.DurationMs = time.Since(start).Milliseconds()

	e.log.Info("rollback from %s: %d processed, %d ok, %d failed",
		criteria.SourceBackend, result.Processed, result.Success, result.Failed)
	return result, nil
}

func (e *MigrationEngine) rollbackFile(ctx context.Context, record *models.FileRecord, target storage.Backend,
	opts Options, result *BatchResult) {

	fail := func(err error) {
		result.Failed++
		result.Errors[record.ID] = err.Error()
	}

	source, err := e.registry.GetBackendForRecord(ctx, record)
	if err != nil {
		e.markFailed(ctx, record, nil, target, models.OpRollback, record.Size, err)
		fail(err)
		return
	}
	srcPath, err := record.SourcePath()
	if err != nil {
		err = fmt.Errorf("file %d has no source path: %w", record.ID, err)
		e.markFailed(ctx, record, source, target, models.OpRollback, record.Size, err)
		fail(err)
		return
	}

	moved, warning, err := e.transfer(ctx, record, source, srcPath, target, "", models.OpRollback, transferOpts{
		verify:       opts.Verify,
		deleteSource: opts.DeleteSource,
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
