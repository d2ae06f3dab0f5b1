// Package registry resolves backend type plus configuration name to a
// live, cached storage adapter and applies placement rules for new
// files.
package registry

import (
	"context"
	"fmt"
	"sync"

	config "github.com/mwantia/gostow/internal/config/server"
	"github.com/mwantia/gostow/pkg/db/models"
	"github.com/mwantia/gostow/pkg/db/store"
	"github.com/mwantia/gostow/pkg/storage"
	"github.com/mwantia/gostow/pkg/storage/azure"
	"github.com/mwantia/gostow/pkg/storage/gcs"
	"github.com/mwantia/gostow/pkg/storage/local"
	"github.com/mwantia/gostow/pkg/storage/s3"
	"github.com/mwantia/gostow/pkg/storage/spaces"
)

type cacheKey struct {
	backendType storage.BackendType
	configName  string
}

// Registry caches one adapter instance per (type, config name).
// Instances are immutable once built; after any BackendConfig mutation
// the caller must Invalidate explicitly. There is no TTL.
type Registry struct {
	mu    sync.RWMutex
	cache map[cacheKey]storage.Backend

	store store.MetadataStore
	cfg   config.StorageServerConfig

	placementRules  []PlacementRule
	visibilityRules []VisibilityRule
	defaultVis      storage.Visibility

	// factory is swappable for tests.
	factory func(ctx context.Context, row *models.BackendConfig) (storage.Backend, error)
}

// New builds a registry over the ledger store and the static settings.
func New(metaStore store.MetadataStore, cfg config.StorageServerConfig) *Registry {
	r := &Registry{
		cache:      make(map[cacheKey]storage.Backend),
		store:      metaStore,
		cfg:        cfg,
		defaultVis: storage.Visibility(cfg.DefaultVisibility),
	}
	if r.defaultVis != storage.VisibilityPublic {
		r.defaultVis = storage.VisibilityPrivate
	}
	r.factory = buildBackend

	for _, rc := range cfg.PlacementRules {
		r.placementRules = append(r.placementRules, PlacementRule{
			MimePattern: rc.MimePattern,
			MinSize:     rc.MinSize,
			MaxSize:     rc.MaxSize,
			EntityTypes: toSet(rc.EntityTypes),
			FileTypeIDs: toIDSet(rc.FileTypeIDs),
			Backend:     storage.BackendType(rc.Backend),
			ConfigName:  rc.ConfigName,
		})
	}
	for _, rc := range cfg.VisibilityRules {
		vis := storage.Visibility(rc.Visibility)
		if vis != storage.VisibilityPublic {
			vis = storage.VisibilityPrivate
		}
		r.visibilityRules = append(r.visibilityRules, VisibilityRule{
			MimePattern: rc.MimePattern,
			EntityTypes: toSet(rc.EntityTypes),
			Visibility:  vis,
		})
	}
	return r
}

// SetFactory replaces adapter construction, for tests.
func (r *Registry) SetFactory(f func(ctx context.Context, row *models.BackendConfig) (storage.Backend, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factory = f
}

// GetBackend resolves an adapter for the type and config name. The
// local backend uses the fixed paths from settings; every other type
// loads an active BackendConfig row. An empty name resolves the
// default config for the type.
func (r *Registry) GetBackend(ctx context.Context, backendType storage.BackendType, configName string) (storage.Backend, error) {
	if !backendType.Valid() {
		return nil, storage.InvalidConfigf("unknown backend type %q", backendType)
	}

	key := cacheKey{backendType, configName}
	r.mu.RLock()
	if b, ok := r.cache[key]; ok {
		r.mu.RUnlock()
		return b, nil
	}
	r.mu.RUnlock()

	backend, err := r.build(ctx, backendType, configName)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another goroutine may have built it meanwhile; keep the first.
	if existing, ok := r.cache[key]; ok {
		return existing, nil
	}
	r.cache[key] = backend
	return backend, nil
}

func (r *Registry) build(ctx context.Context, backendType storage.BackendType, configName string) (storage.Backend, error) {
	if backendType == storage.TypeLocal {
		return local.New(local.Config{
			Root:    r.cfg.Local.Root,
			BaseURL: r.cfg.Local.BaseURL,
		})
	}

	row, err := r.store.GetBackendConfig(ctx, string(backendType), configName)
	if err != nil {
		return nil, err
	}
	return r.factory(ctx, row)
}

// buildBackend instantiates the concrete adapter for a config row.
func buildBackend(ctx context.Context, row *models.BackendConfig) (storage.Backend, error) {
	switch storage.BackendType(row.BackendType) {
	case storage.TypeS3:
		return s3.New(ctx, s3.Config{
			Region:        row.Region,
			Bucket:        row.Bucket,
			Endpoint:      row.Endpoint,
			AccessKey:     row.AccessKey,
			SecretKey:     row.SecretKey,
			UsePathStyle:  row.UsePathStyle,
			Prefix:        row.Prefix,
			PublicBaseURL: row.PublicBaseURL,
		})
	case storage.TypeSpaces:
		return spaces.New(spaces.Config{
			Endpoint:   row.Endpoint,
			Region:     row.Region,
			Bucket:     row.Bucket,
			AccessKey:  row.AccessKey,
			SecretKey:  row.SecretKey,
			UseSSL:     row.UseSSL,
			Prefix:     row.Prefix,
			CDNBaseURL: row.PublicBaseURL,
		})
	case storage.TypeGCS:
		return gcs.New(ctx, gcs.Config{
			ProjectID:       row.ProjectID,
			Bucket:          row.Bucket,
			CredentialsJSON: row.CredentialsJSON,
			Prefix:          row.Prefix,
			PublicBaseURL:   row.PublicBaseURL,
		})
	case storage.TypeAzure:
		return azure.New(azure.Config{
			AccountName:   row.AccessKey,
			AccountKey:    row.SecretKey,
			Container:     row.Bucket,
			Endpoint:      row.Endpoint,
			Prefix:        row.Prefix,
			PublicBaseURL: row.PublicBaseURL,
		})
	}
	return nil, storage.InvalidConfigf("no adapter for backend type %q", row.BackendType)
}

// GetDefaultBackend resolves the configured default, falling back to
// local when unset.
func (r *Registry) GetDefaultBackend(ctx context.Context) (storage.Backend, error) {
	backendType := storage.BackendType(r.cfg.DefaultBackend)
	if r.cfg.DefaultBackend == "" {
		backendType = storage.TypeLocal
	}
	return r.GetBackend(ctx, backendType, r.cfg.DefaultConfigName)
}

// GetBackendForRecord resolves the adapter currently holding a
// record's bytes, honoring the legacy local default and the
// config_name metadata key.
func (r *Registry) GetBackendForRecord(ctx context.Context, record *models.FileRecord) (storage.Backend, error) {
	return r.GetBackend(ctx, record.ResolvedBackendType(), record.Metadata()[models.MetaConfigName])
}

// GetBackendForFile is the id-based variant of GetBackendForRecord.
func (r *Registry) GetBackendForFile(ctx context.Context, fileID int64) (storage.Backend, error) {
	record, err := r.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("load file %d: %w", fileID, err)
	}
	return r.GetBackendForRecord(ctx, record)
}

// GetBackendForNewFile applies the ordered placement rules; the first
// matching rule wins, no match falls through to the default backend.
func (r *Registry) GetBackendForNewFile(ctx context.Context, info FileInfo) (storage.Backend, error) {
	if rule := ResolvePlacement(r.placementRules, info); rule != nil {
		return r.GetBackend(ctx, rule.Backend, rule.ConfigName)
	}
	return r.GetDefaultBackend(ctx)
}

// VisibilityFor resolves the visibility for a file through the single
// precedence chain.
func (r *Registry) VisibilityFor(info FileInfo) storage.Visibility {
	return ResolveVisibility(r.visibilityRules, info, r.defaultVis)
}

// Invalidate drops every cached adapter. Must be called after any
// BackendConfig mutation; cached instances hold the credentials they
// were built with.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[cacheKey]storage.Backend)
}
