package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mwantia/gostow/pkg/db/migrations"
	"github.com/mwantia/gostow/pkg/db/models"
)

// SQLiteStore implements MetadataStore using SQLite.
type SQLiteStore struct {
	db   *gorm.DB
	path string
}

// DB returns the underlying GORM database instance.
func (s *SQLiteStore) DB() *gorm.DB {
	return s.db
}

// SQLiteConfig holds SQLite-specific configuration.
type SQLiteConfig struct {
	Path     string
	LogLevel logger.LogLevel
}

// NewSQLiteStore creates a new SQLite-backed metadata store.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	// Default to silent logging
	if cfg.LogLevel == 0 {
		cfg.LogLevel = logger.Silent
	}

	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: logger.Default.LogMode(cfg.LogLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	return &SQLiteStore{
		db:   db,
		path: cfg.Path,
	}, nil
}

// Connect initializes the database connection.
func (s *SQLiteStore) Connect(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	// SQLite only supports 1 writer
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return sqlDB.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	return migrations.NewMigrator(s.db).Migrate(ctx)
}

// Health checks database connectivity.
func (s *SQLiteStore) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// File records

func (s *SQLiteStore) CreateFile(ctx context.Context, file *models.FileRecord) error {
	return s.db.WithContext(ctx).Create(file).Error
}

func (s *SQLiteStore) GetFile(ctx context.Context, id int64) (*models.FileRecord, error) {
	var file models.FileRecord
	err := s.db.WithContext(ctx).First(&file, id).Error
	if err != nil {
		return nil, err
	}
	return &file, nil
}

// applyFileFilter translates a FileFilter into WHERE clauses. The mime
// pattern's * wildcard maps onto SQL LIKE %, anchored on both ends.
func applyFileFilter(query *gorm.DB, filter FileFilter) *gorm.DB {
	if len(filter.IDs) > 0 {
		query = query.Where("id IN ?", filter.IDs)
	}
	if len(filter.BackendTypes) > 0 {
		query = query.Where("backend_type IN ?", filter.BackendTypes)
	}
	if filter.ExcludeBackendType != "" {
		query = query.Where("backend_type <> ?", filter.ExcludeBackendType)
	}
	if len(filter.SyncStatuses) > 0 {
		query = query.Where("sync_status IN ?", filter.SyncStatuses)
	}
	if len(filter.ExcludeStatuses) > 0 {
		query = query.Where("sync_status NOT IN ?", filter.ExcludeStatuses)
	}
	if len(filter.EntityTypes) > 0 {
		query = query.Where("entity_type IN ?", filter.EntityTypes)
	}
	if len(filter.FileTypeIDs) > 0 {
		query = query.Where("file_type_id IN ?", filter.FileTypeIDs)
	}
	if filter.MimePattern != "" {
		query = query.Where("mime_type LIKE ?", strings.ReplaceAll(filter.MimePattern, "*", "%"))
	}
	if filter.UploadedBefore != nil {
		query = query.Where("upload_date <= ?", *filter.UploadedBefore)
	}
	if filter.MinSize != nil {
		query = query.Where("size >= ?", *filter.MinSize)
	}
	if filter.MaxSize != nil {
		query = query.Where("size <= ?", *filter.MaxSize)
	}
	return query
}

func (s *SQLiteStore) ListFiles(ctx context.Context, filter FileFilter, limit int) ([]models.FileRecord, error) {
	var files []models.FileRecord
	query := applyFileFilter(s.db.WithContext(ctx).Model(&models.FileRecord{}), filter).
		Order("upload_date ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&files).Error
	return files, err
}

func (s *SQLiteStore) CountFiles(ctx context.Context, filter FileFilter) (int64, error) {
	var count int64
	err := applyFileFilter(s.db.WithContext(ctx).Model(&models.FileRecord{}), filter).
		Count(&count).Error
	return count, err
}

func (s *SQLiteStore) UpdateFile(ctx context.Context, file *models.FileRecord) error {
	return s.db.WithContext(ctx).Save(file).Error
}

// Backend configs

func (s *SQLiteStore) CreateBackendConfig(ctx context.Context, cfg *models.BackendConfig) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if cfg.IsDefault {
			if err := clearDefault(tx, cfg.BackendType, 0); err != nil {
				return err
			}
		}
		return tx.Create(cfg).Error
	})
}

// clearDefault drops the default flag from every other config of the
// type, keeping the one-default-per-type invariant.
func clearDefault(tx *gorm.DB, backendType string, keepID uint) error {
	return tx.Model(&models.BackendConfig{}).
		Where("backend_type = ? AND id <> ?", backendType, keepID).
		Update("is_default", false).Error
}

func (s *SQLiteStore) GetBackendConfig(ctx context.Context, backendType, name string) (*models.BackendConfig, error) {
	query := s.db.WithContext(ctx).
		Where("backend_type = ? AND is_active = ?", backendType, true)
	if name != "" {
		query = query.Where("name = ?", name)
	} else {
		query = query.Order("is_default DESC, id ASC")
	}

	var cfg models.BackendConfig
	if err := query.First(&cfg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("no active config for backend %q name %q: %w", backendType, name, ErrConfigNotFound)
		}
		return nil, err
	}
	return &cfg, nil
}

func (s *SQLiteStore) ListBackendConfigs(ctx context.Context) ([]models.BackendConfig, error) {
	var configs []models.BackendConfig
	err := s.db.WithContext(ctx).Order("backend_type ASC, name ASC").Find(&configs).Error
	return configs, err
}

func (s *SQLiteStore) UpdateBackendConfig(ctx context.Context, cfg *models.BackendConfig) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if cfg.IsDefault {
			if err := clearDefault(tx, cfg.BackendType, cfg.ID); err != nil {
				return err
			}
		}
		return tx.Save(cfg).Error
	})
}

// DeleteBackendConfig refuses to delete a config any file record still
// points at through backend_type plus the config_name metadata key.
func (s *SQLiteStore) DeleteBackendConfig(ctx context.Context, id uint) error {
	var cfg models.BackendConfig
	if err := s.db.WithContext(ctx).First(&cfg, id).Error; err != nil {
		return err
	}

	var refs int64
	err := s.db.WithContext(ctx).Model(&models.FileRecord{}).
		Where("backend_type = ? AND backend_metadata LIKE ?",
			cfg.BackendType, `%"`+models.MetaConfigName+`":"`+cfg.Name+`"%`).
		Count(&refs).Error
	if err != nil {
		return err
	}
	if refs > 0 {
		return fmt.Errorf("config %s/%s has %d referencing files: %w",
			cfg.BackendType, cfg.Name, refs, ErrConfigReferenced)
	}

	return s.db.WithContext(ctx).Delete(&models.BackendConfig{}, id).Error
}

// Audit ledger

func (s *SQLiteStore) AppendSyncLog(ctx context.Context, entry *models.SyncLogEntry) error {
	if entry.SyncDate.IsZero() {
		entry.SyncDate = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(entry).Error
}

func (s *SQLiteStore) ListSyncLog(ctx context.Context, filter LogFilter) ([]models.SyncLogEntry, error) {
	query := s.db.WithContext(ctx).Model(&models.SyncLogEntry{})
	if filter.FileID != 0 {
		query = query.Where("file_id = ?", filter.FileID)
	}
	if filter.TargetBackend != "" {
		query = query.Where("target_backend = ?", filter.TargetBackend)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Operation != "" {
		query = query.Where("operation = ?", filter.Operation)
	}
	query = query.Order("sync_date DESC, id DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var entries []models.SyncLogEntry
	err := query.Find(&entries).Error
	return entries, err
}

func (s *SQLiteStore) RecentSyncDurations(ctx context.Context, targetBackend string, n int) ([]int64, error) {
	var durations []int64
	err := s.db.WithContext(ctx).Model(&models.SyncLogEntry{}).
		Where("target_backend = ? AND status = ?", targetBackend, models.LogSuccess).
		Order("sync_date DESC, id DESC").
		Limit(n).
		Pluck("duration_ms", &durations).Error
	return durations, err
}

// Snapshots

func (s *SQLiteStore) CreateSnapshot(ctx context.Context, name string) (*models.Snapshot, error) {
	var snapshot *models.Snapshot
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.Snapshot{}).Where("name = ?", name).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return fmt.Errorf("snapshot %q: %w", name, ErrSnapshotExists)
		}

		snapshot = &models.Snapshot{Name: name}
		if err := tx.Create(snapshot).Error; err != nil {
			return err
		}

		// Capture in pages to keep memory flat on large ledgers.
		const pageSize = 1000
		var lastID int64
		for {
			var files []models.FileRecord
			if err := tx.Where("id > ?", lastID).Order("id ASC").Limit(pageSize).Find(&files).Error; err != nil {
				return err
			}
			if len(files) == 0 {
				break
			}

			entries := make([]models.SnapshotEntry, 0, len(files))
			for _, f := range files {
				entries = append(entries, models.SnapshotEntry{
					SnapshotID:  snapshot.ID,
					FileID:      f.ID,
					BackendType: f.BackendType,
					BackendPath: f.BackendPath,
					URI:         f.URI,
				})
			}
			if err := tx.Create(&entries).Error; err != nil {
				return err
			}
			snapshot.FileCount += int64(len(files))
			lastID = files[len(files)-1].ID
		}

		return tx.Model(snapshot).Update("file_count", snapshot.FileCount).Error
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *SQLiteStore) ListSnapshots(ctx context.Context) ([]models.Snapshot, error) {
	var snapshots []models.Snapshot
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&snapshots).Error
	return snapshots, err
}

// RestoreSnapshot writes the captured location pointers back verbatim.
// Bytes are not touched; restoring after a delete-source migration is
// unsafe and left to operator judgement.
func (s *SQLiteStore) RestoreSnapshot(ctx context.Context, name string) (int64, error) {
	var restored int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var snapshot models.Snapshot
		if err := tx.Where("name = ?", name).First(&snapshot).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("snapshot %q: %w", name, ErrSnapshotNotFound)
			}
			return err
		}

		const pageSize = 1000
		var lastID uint
		for {
			var entries []models.SnapshotEntry
			if err := tx.Where("snapshot_id = ? AND id > ?", snapshot.ID, lastID).
				Order("id ASC").Limit(pageSize).Find(&entries).Error; err != nil {
				return err
			}
			if len(entries) == 0 {
				break
			}

			for _, e := range entries {
				res := tx.Model(&models.FileRecord{}).
					Where("id = ?", e.FileID).
					Updates(map[string]any{
						"backend_type": e.BackendType,
						"backend_path": e.BackendPath,
						"uri":          e.URI,
					})
				if res.Error != nil {
					return res.Error
				}
				restored += res.RowsAffected
			}
			lastID = entries[len(entries)-1].ID
		}
		return nil
	})
	return restored, err
}

func (s *SQLiteStore) DeleteSnapshot(ctx context.Context, name string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var snapshot models.Snapshot
		if err := tx.Where("name = ?", name).First(&snapshot).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("snapshot %q: %w", name, ErrSnapshotNotFound)
			}
			return err
		}
		if err := tx.Where("snapshot_id = ?", snapshot.ID).Delete(&models.SnapshotEntry{}).Error; err != nil {
			return err
		}
		return tx.Delete(&snapshot).Error
	})
}

// Run leases

func (s *SQLiteStore) AcquireLease(ctx context.Context, name, holder string, ttl time.Duration) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lease models.RunLease
		err := tx.Where("name = ?", name).First(&lease).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&models.RunLease{
				Name:      name,
				Holder:    holder,
				ExpiresAt: now.Add(ttl),
			}).Error
		case err != nil:
			return err
		}

		if lease.Holder != holder && lease.ExpiresAt.After(now) {
			return fmt.Errorf("lease %q held by %q until %s: %w",
				name, lease.Holder, lease.ExpiresAt.Format(time.RFC3339), ErrLeaseHeld)
		}

		// Expired or re-entrant: claim it.
		lease.Holder = holder
		lease.ExpiresAt = now.Add(ttl)
		return tx.Save(&lease).Error
	})
}

func (s *SQLiteStore) ReleaseLease(ctx context.Context, name, holder string) error {
	return s.db.WithContext(ctx).
		Where("name = ? AND holder = ?", name, holder).
		Delete(&models.RunLease{}).Error
}

// Reporting

func (s *SQLiteStore) BackendStats(ctx context.Context) ([]BackendStat, error) {
	var stats []BackendStat
	err := s.db.WithContext(ctx).Model(&models.FileRecord{}).
		Select(`backend_type,
			COUNT(*) AS file_count,
			COALESCE(SUM(size), 0) AS total_size,
			SUM(CASE WHEN sync_status = 'synced' THEN 1 ELSE 0 END) AS synced_count,
			SUM(CASE WHEN sync_status = 'failed' THEN 1 ELSE 0 END) AS failed_count`).
		Group("backend_type").
		Order("backend_type ASC").
		Scan(&stats).Error
	return stats, err
}
