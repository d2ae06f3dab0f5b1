package models

import "time"

// RunLease enforces single-flight batch execution. A batch acquires
// the lease for its job name before touching any FileRecord; a second
// run started while an unexpired lease exists fails fast. Expired
// leases are re-claimable, covering runs killed mid-batch.
type RunLease struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"type:text;not null;uniqueIndex"`
	Holder    string `gorm:"type:text;not null"`
	ExpiresAt time.Time
	CreatedAt time.Time
}
