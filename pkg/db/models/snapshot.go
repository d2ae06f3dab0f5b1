package models

import "time"

// Snapshot is a named, immutable point-in-time capture of every file's
// backend location, taken before a risky migration. Restoring writes
// the captured pointers back; it never touches bytes.
type Snapshot struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"type:text;not null;uniqueIndex"`
	FileCount int64
	CreatedAt time.Time

	// Relationships
	Entries []SnapshotEntry `gorm:"foreignKey:SnapshotID;constraint:OnDelete:CASCADE"`
}

// SnapshotEntry captures one file's location pointers.
type SnapshotEntry struct {
	ID         uint  `gorm:"primaryKey"`
	SnapshotID uint  `gorm:"not null;index"`
	FileID     int64 `gorm:"not null"`

	BackendType string `gorm:"type:text"`
	BackendPath string `gorm:"type:text"`
	URI         string `gorm:"type:text"`
}
