package models

import (
	"encoding/json"
	"time"

	"github.com/mwantia/gostow/pkg/storage"
)

// Sync status state machine: pending -> synced|failed, failed ->
// synced|failed, synced -> synced|failed (verify), excluded is terminal.
const (
	SyncPending  = "pending"
	SyncSynced   = "synced"
	SyncFailed   = "failed"
	SyncExcluded = "excluded"
)

// Keys of the core-owned backend_metadata JSON map.
const (
	MetaConfigName      = "config_name"
	MetaCDNURL          = "cdn_url"
	MetaSyncedAt        = "synced_at"
	MetaOriginalBackend = "original_backend"
)

// FileRecord is the ledger row for one stored file. The host owns the
// row lifecycle; this subsystem owns the backend columns, sync status
// and backend_metadata, and never deletes rows.
type FileRecord struct {
	ID       int64  `gorm:"primaryKey"`
	URI      string `gorm:"type:text"` // legacy local path, superseded by BackendPath
	MimeType string `gorm:"type:text"`

	BackendType     string `gorm:"type:text;not null;default:local;index"`
	BackendPath     string `gorm:"type:text"`
	BackendMetadata string `gorm:"type:text"` // JSON, core-owned
	SyncStatus      string `gorm:"type:text;not null;default:pending;index"`
	LastSyncDate    *time.Time

	// Advisory fields used for estimation and ordering only.
	Size       int64
	UploadDate time.Time `gorm:"index"`

	// Host association, used for path bucketing and visibility rules.
	// Empty means no association.
	EntityType string `gorm:"type:text"`
	FileTypeID int64  `gorm:"index"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ResolvedBackendType applies the legacy default: records written
// before backend tracking existed carry an empty backend_type and mean
// local.
func (f *FileRecord) ResolvedBackendType() storage.BackendType {
	if f.BackendType == "" {
		return storage.TypeLocal
	}
	return storage.BackendType(f.BackendType)
}

// SourcePath returns the authoritative locator: backend_path once set,
// otherwise the legacy uri. ErrMissingPath when neither is present.
func (f *FileRecord) SourcePath() (string, error) {
	if f.BackendPath != "" {
		return f.BackendPath, nil
	}
	if f.URI != "" {
		return f.URI, nil
	}
	return "", storage.ErrMissingPath
}

// Metadata decodes backend_metadata. A missing or malformed blob
// decodes to an empty map; the core rewrites it wholesale on sync.
func (f *FileRecord) Metadata() map[string]string {
	out := map[string]string{}
	if f.BackendMetadata != "" {
		_ = json.Unmarshal([]byte(f.BackendMetadata), &out)
	}
	return out
}

// SetMetadata encodes and stores the metadata map.
func (f *FileRecord) SetMetadata(md map[string]string) {
	raw, err := json.Marshal(md)
	if err != nil {
		return
	}
	f.BackendMetadata = string(raw)
}

// MergeMetadata updates individual keys without dropping the rest.
func (f *FileRecord) MergeMetadata(kv map[string]string) {
	md := f.Metadata()
	for k, v := range kv {
		md[k] = v
	}
	f.SetMetadata(md)
}
