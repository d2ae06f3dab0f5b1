package models

import "time"

// Outcomes recorded per operation attempt.
const (
	LogSuccess = "success"
	LogFailed  = "failed"
	LogSkipped = "skipped"
)

// Operation names recorded in the audit trail.
const (
	OpSync     = "sync"
	OpMigrate  = "migrate"
	OpVerify   = "verify"
	OpRollback = "rollback"
	OpDelete   = "delete"
)

// SyncLogEntry is the append-only audit ledger. Entries are written
// once per operation attempt and never mutated; history, progress and
// ETA queries all read from here.
type SyncLogEntry struct {
	ID     uint `gorm:"primaryKey"`
	FileID int64 `gorm:"not null;index"`

	Operation     string `gorm:"type:text;not null"`
	SourceBackend string `gorm:"type:text"`
	TargetBackend string `gorm:"type:text;index"`
	Status        string `gorm:"type:text;not null;index"`
	ErrorMessage  string `gorm:"type:text"`

	FileSize   int64
	DurationMs int64
	SyncDate   time.Time `gorm:"index"`
	Actor      string    `gorm:"type:text"`

	// Relationships
	File FileRecord `gorm:"foreignKey:FileID;constraint:OnDelete:CASCADE"`
}
