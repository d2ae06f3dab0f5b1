package store

import (
	"context"
	"errors"
	"time"

	"github.com/mwantia/gostow/pkg/db/models"
)

var (
	// ErrConfigNotFound signals that no active BackendConfig matched a
	// resolution request.
	ErrConfigNotFound = errors.New("backend config not found")

	// ErrConfigReferenced blocks deletion of a BackendConfig still
	// referenced by file records.
	ErrConfigReferenced = errors.New("backend config still referenced by file records")

	// ErrLeaseHeld signals that another batch run holds the lease.
	ErrLeaseHeld = errors.New("run lease held by another instance")

	// ErrSnapshotExists blocks reuse of a snapshot name.
	ErrSnapshotExists = errors.New("snapshot name already exists")

	// ErrSnapshotNotFound signals an unknown snapshot name.
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// FileFilter is the generic query shape over the FileRecord ledger.
// Zero-valued fields are ignored.
type FileFilter struct {
	IDs                []int64
	BackendTypes       []string
	ExcludeBackendType string
	SyncStatuses       []string
	ExcludeStatuses    []string
	EntityTypes        []string
	FileTypeIDs        []int64
	// MimePattern uses * as wildcard, anchored full-string match.
	MimePattern    string
	UploadedBefore *time.Time
	MinSize        *int64
	MaxSize        *int64
}

// LogFilter narrows audit queries. Zero-valued fields are ignored.
type LogFilter struct {
	FileID        int64
	TargetBackend string
	Status        string
	Operation     string
	Limit         int
}

// BackendStat aggregates ledger totals per backend type.
type BackendStat struct {
	BackendType string
	FileCount   int64
	TotalSize   int64
	SyncedCount int64
	FailedCount int64
}

// MetadataStore is the ledger contract consumed by the registry and
// the engines.
type MetadataStore interface {
	// Lifecycle
	Connect(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error
	Health(ctx context.Context) error

	// File records. Listing is always oldest-upload-first so backlogs
	// drain predictably.
	CreateFile(ctx context.Context, file *models.FileRecord) error
	GetFile(ctx context.Context, id int64) (*models.FileRecord, error)
	ListFiles(ctx context.Context, filter FileFilter, limit int) ([]models.FileRecord, error)
	CountFiles(ctx context.Context, filter FileFilter) (int64, error)
	UpdateFile(ctx context.Context, file *models.FileRecord) error

	// Backend configs. Get returns only active rows; an empty name
	// resolves the default (or sole) config for the type.
	CreateBackendConfig(ctx context.Context, cfg *models.BackendConfig) error
	GetBackendConfig(ctx context.Context, backendType, name string) (*models.BackendConfig, error)
	ListBackendConfigs(ctx context.Context) ([]models.BackendConfig, error)
	UpdateBackendConfig(ctx context.Context, cfg *models.BackendConfig) error
	DeleteBackendConfig(ctx context.Context, id uint) error

	// Audit ledger, append-only.
	AppendSyncLog(ctx context.Context, entry *models.SyncLogEntry) error
	ListSyncLog(ctx context.Context, filter LogFilter) ([]models.SyncLogEntry, error)
	RecentSyncDurations(ctx context.Context, targetBackend string, n int) ([]int64, error)

	// Snapshots
	CreateSnapshot(ctx context.Context, name string) (*models.Snapshot, error)
	ListSnapshots(ctx context.Context) ([]models.Snapshot, error)
	RestoreSnapshot(ctx context.Context, name string) (int64, error)
	DeleteSnapshot(ctx context.Context, name string) error

	// Run leases
	AcquireLease(ctx context.Context, name, holder string, ttl time.Duration) error
	ReleaseLease(ctx context.Context, name, holder string) error

	// Reporting
	BackendStats(ctx context.Context) ([]BackendStat, error)
}
