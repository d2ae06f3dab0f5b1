package engine

import "time"

// BatchResult aggregates one sync or migration batch. Per-file errors
// are keyed by file id so operators see exactly which files failed
// without parsing logs. A batch with failed > 0 and success > 0 is
// partially successful, not a hard failure.
type BatchResult struct {
	Processed int `json:"processed"`
	Success   int `json:"success"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Deferred  int `json:"deferred"`

	TotalSize  int64 `json:"total_size"`
	DurationMs int64 `json:"duration_ms"`

	Errors map[int64]string `json:"errors,omitempty"`
	// CleanupWarnings records best-effort housekeeping failures (source
	// deletion after a successful copy) that did not change the primary
	// outcome.
	CleanupWarnings []string `json:"cleanup_warnings,omitempty"`
}

func newBatchResult() *BatchResult {
	return &BatchResult{Errors: make(map[int64]string)}
}

// MigrationPlan is the read-only estimate returned by Plan. No bytes
// are moved to produce it.
type MigrationPlan struct {
	FileCount          int64         `json:"file_count"`
	EstimatedTotalSize int64         `json:"estimated_total_size"`
	EstimatedTime      time.Duration `json:"estimated_time"`
	// EstimatedCost is advisory only, a flat per-GiB transfer figure.
	EstimatedCost float64 `json:"estimated_cost"`
	SampleSize    int     `json:"sample_size"`
}

// VerifyResult reports a verification scan over migrated files.
type VerifyResult struct {
	Checked int              `json:"checked"`
	Valid   int              `json:"valid"`
	Invalid int              `json:"invalid"`
	Errors  map[int64]string `json:"errors,omitempty"`
}

// Progress counts a migration's position against a target backend.
type Progress struct {
	OnTarget  int64 `json:"on_target"`
	Remaining int64 `json:"remaining"`
}

// BackendInfo is the per-backend introspection row.
type BackendInfo struct {
	BackendType string            `json:"backend_type"`
	ConfigName  string            `json:"config_name,omitempty"`
	FileCount   int64             `json:"file_count"`
	TotalSize   int64             `json:"total_size"`
	SyncedCount int64             `json:"synced_count"`
	FailedCount int64             `json:"failed_count"`
	Config      map[string]string `json:"config,omitempty"`
	// Reachable is only set when connection probing was requested.
	Reachable *bool `json:"reachable,omitempty"`
}
