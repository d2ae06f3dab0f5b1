// Package engine runs the sync and migration batches over the file
// ledger: candidate selection, per-file transfer, audit logging and
// the single-flight run lease.
package engine

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"

	config "github.com/mwantia/gostow/internal/config/server"
	"github.com/mwantia/gostow/pkg/db/models"
	"github.com/mwantia/gostow/pkg/db/store"
	"github.com/mwantia/gostow/pkg/log"
	"github.com/mwantia/gostow/pkg/pathgen"
	"github.com/mwantia/gostow/pkg/storage"
	"github.com/mwantia/gostow/pkg/storage/registry"
)

const (
	// leaseName serializes every record-mutating batch, sync and
	// migration alike. Two concurrent batches could pick the same
	// pending records and double-transfer them.
	leaseName = "storage-batch"

	defaultLeaseTTL  = 30 * time.Minute
	defaultBatchSize = 100
)

// Deps bundles the shared collaborators of both engines.
type Deps struct {
	Store    store.MetadataStore
	Registry *registry.Registry
	Config   config.StorageServerConfig
	Log      log.LoggerService
	// Actor is recorded on every audit entry, typically the instance
	// name.
	Actor string
}

// mover is the shared per-file transfer core embedded by both engines.
type mover struct {
	store    store.MetadataStore
	registry *registry.Registry
	cfg      config.StorageServerConfig
	log      log.LoggerService
	actor    string
}

func newMover(deps Deps) mover {
	return mover{
		store:    deps.Store,
		registry: deps.Registry,
		cfg:      deps.Config,
		log:      deps.Log,
		actor:    deps.Actor,
	}
}

func (m *mover) batchSize(requested int) int {
	if requested > 0 {
		return requested
	}
	if m.cfg.BatchSize > 0 {
		return m.cfg.BatchSize
	}
	return defaultBatchSize
}

func (m *mover) leaseTTL() time.Duration {
	if d, err := time.ParseDuration(m.cfg.LeaseTTL); err == nil && d > 0 {
		return d
	}
	return defaultLeaseTTL
}

// acquireLease claims the batch lease and returns the release func.
func (m *mover) acquireLease(ctx context.Context) (func(), error) {
	holder := uuid.NewString()
	if err := m.store.AcquireLease(ctx, leaseName, holder, m.leaseTTL()); err != nil {
		return nil, err
	}
	return func() {
		if err := m.store.ReleaseLease(context.WithoutCancel(ctx), leaseName, holder); err != nil {
			m.log.Warn("failed to release batch lease: %v", err)
		}
	}, nil
}

type transferOpts struct {
	// verify re-reads the written object and fails the transfer on a
	// size mismatch, leaving the record on the source.
	verify bool
	// deleteSource removes the source object after a successful copy.
	// Failures are reported as warnings, never as transfer failures.
	deleteSource bool
}

// transfer copies one record's bytes from its current backend to the
// target, updates the ledger row and appends the audit entry. The
// returned warning is non-empty when post-copy source deletion failed.
func (m *mover) transfer(ctx context.Context, record *models.FileRecord, source storage.Backend, srcPath string,
	target storage.Backend, targetConfigName, operation string, opts transferOpts) (int64, string, error) {

	start := time.Now()
	targetPath := pathgen.GeneratePath(path.Base(srcPath), record.EntityType, record.MimeType, start.UTC(), record.ID)

	size, err := source.GetSize(ctx, srcPath)
	if err != nil {
		size = record.Size
	}

	visibility := m.registry.VisibilityFor(registry.FileInfo{
		MimeType:   record.MimeType,
		Size:       size,
		EntityType: record.EntityType,
		FileTypeID: record.FileTypeID,
	})

	rc, err := source.ReadStream(ctx, srcPath)
	if err != nil {
		err = fmt.Errorf("read source %q: %w", srcPath, err)
		m.markFailed(ctx, record, source, target, operation, size, err)
		return 0, "", err
	}
	err = target.Write(ctx, targetPath, rc, storage.WriteOptions{
		MimeType:   record.MimeType,
		Visibility: visibility,
	})
	rc.Close()
	if err != nil {
		err = fmt.Errorf("write target %q: %w", targetPath, err)
		m.markFailed(ctx, record, source, target, operation, size, err)
		return 0, "", err
	}

	if opts.verify {
		written, verr := target.GetSize(ctx, targetPath)
		if verr != nil {
			verr = fmt.Errorf("verify written object %q: %w", targetPath, verr)
			m.markFailed(ctx, record, source, target, operation, size, verr)
			return 0, "", verr
		}
		if written != size {
			verr = fmt.Errorf("object %q: wrote %d bytes, source has %d: %w",
				targetPath, written, size, storage.ErrVerificationMismatch)
			// Remove the bad copy so the record stays authoritative on
			// the source.
			if derr := target.Delete(ctx, targetPath); derr != nil {
				m.log.Warn("failed to remove mismatched copy %q: %v", targetPath, derr)
			}
			m.markFailed(ctx, record, source, target, operation, size, verr)
			return 0, "", verr
		}
	}

	now := time.Now().UTC()
	meta := map[string]string{
		models.MetaConfigName:      targetConfigName,
		models.MetaSyncedAt:        now.Format(time.RFC3339),
		models.MetaOriginalBackend: string(record.ResolvedBackendType()),
	}
	if visibility == storage.VisibilityPublic {
		if url, uerr := target.GetURL(ctx, targetPath, 0); uerr == nil {
			meta[models.MetaCDNURL] = url
		}
	}

	record.BackendType = string(target.Type())
	record.BackendPath = targetPath
	record.SyncStatus = models.SyncSynced
	record.LastSyncDate = &now
	record.MergeMetadata(meta)

	if err := m.store.UpdateFile(ctx, record); err != nil {
		// Bytes landed but the ledger write failed. Leave the copy in
		// place; the next batch retries and generates a fresh path.
		err = fmt.Errorf("update record %d: %w", record.ID, err)
		m.appendLog(ctx, record, source, target, operation, models.LogFailed, size, time.Since(start), err)
		return 0, "", err
	}

	m.appendLog(ctx, record, source, target, operation, models.LogSuccess, size, time.Since(start), nil)
	m.log.Debug("moved file %d: %s/%s -> %s/%s (%d bytes)",
		record.ID, source.Type(), srcPath, target.Type(), targetPath, size)

	warning := ""
	if opts.deleteSource && srcPath != targetPath {
		if derr := source.Delete(ctx, srcPath); derr != nil {
			warning = fmt.Sprintf("file %d: source %s/%s not deleted: %v", record.ID, source.Type(), srcPath, derr)
			m.log.Warn("%s", warning)
			m.appendLog(ctx, record, source, target, models.OpDelete, models.LogFailed, size, 0, derr)
		}
	}
	return size, warning, nil
}

// markFailed flips the record to failed and appends the audit entry.
func (m *mover) markFailed(ctx context.Context, record *models.FileRecord, source, target storage.Backend,
	operation string, size int64, cause error) {

	record.SyncStatus = models.SyncFailed
	if err := m.store.UpdateFile(ctx, record); err != nil {
		m.log.Error("failed to mark file %d as failed: %v", record.ID, err)
	}
	m.appendLog(ctx, record, source, target, operation, models.LogFailed, size, 0, cause)
}

func (m *mover) appendLog(ctx context.Context, record *models.FileRecord, source, target storage.Backend,
	operation, status string, size int64, elapsed time.Duration, cause error) {

	entry := &models.SyncLogEntry{
		FileID:     record.ID,
		Operation:  operation,
		Status:     status,
		FileSize:   size,
		DurationMs: elapsed.Milliseconds(),
		SyncDate:   time.Now().UTC(),
		Actor:      m.actor,
	}
	if source != nil {
		entry.SourceBackend = string(source.Type())
	}
	if target != nil {
		entry.TargetBackend = string(target.Type())
	}
	if cause != nil {
		entry.ErrorMessage = cause.Error()
	}
	if err := m.store.AppendSyncLog(ctx, entry); err != nil {
		m.log.Error("failed to append audit entry for file %d: %v", record.ID, err)
	}
}

// appendSkip records a skipped attempt with a human-readable reason.
func (m *mover) appendSkip(ctx context.Context, record *models.FileRecord, target storage.Backend, operation, reason string) {
	entry := &models.SyncLogEntry{
		FileID:        record.ID,
		Operation:     operation,
		SourceBackend: string(record.ResolvedBackendType()),
		Status:        models.LogSkipped,
		ErrorMessage:  reason,
		FileSize:      record.Size,
		SyncDate:      time.Now().UTC(),
		Actor:         m.actor,
	}
	if target != nil {
		entry.TargetBackend = string(target.Type())
	}
	if err := m.store.AppendSyncLog(ctx, entry); err != nil {
		m.log.Error("failed to append audit entry for file %d: %v", record.ID, err)
	}
}
