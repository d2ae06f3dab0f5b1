package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/mwantia/gostow/pkg/db/models"
	"github.com/mwantia/gostow/pkg/db/store"
	"github.com/mwantia/gostow/pkg/storage"
)

// Progress counts how far a migration toward the target has come.
func (e *MigrationEngine) Progress(ctx context.Context, targetBackend string) (*Progress, error) {
	if !storage.BackendType(targetBackend).Valid() {
		return nil, storage.InvalidConfigf("unknown target backend %q", targetBackend)
	}

	onTarget, err := e.store.CountFiles(ctx, store.FileFilter{
		BackendTypes: []string{targetBackend},
	})
	if err != nil {
		return nil, fmt.Errorf("count files on %s: %w", targetBackend, err)
	}
	remaining, err := e.store.CountFiles(ctx, store.FileFilter{
		ExcludeBackendType: targetBackend,
		ExcludeStatuses:    []string{models.SyncExcluded},
	})
	if err != nil {
		return nil, fmt.Errorf("count remaining files: %w", err)
	}
	return &Progress{OnTarget: onTarget, Remaining: remaining}, nil
}

// EstimateTimeRemaining extrapolates from the rolling average of recent
// successful transfer durations toward the target backend.
func (e *MigrationEngine) EstimateTimeRemaining(ctx context.Context, targetBackend string) (time.Duration, error) {
	progress, err := e.Progress(ctx, targetBackend)
	if err != nil {
		return 0, err
	}
	return e.estimatePerFile(ctx, targetBackend) * time.Duration(progress.Remaining), nil
}

// estimatePerFile averages recent transfer durations; without history
// it falls back to a flat per-file figure.
func (m *mover) estimatePerFile(ctx context.Context, targetBackend string) time.Duration {
	durations, err := m.store.RecentSyncDurations(ctx, targetBackend, 50)
	if err != nil || len(durations) == 0 {
		return defaultPerFileMs * time.Millisecond
	}
	var total int64
	for _, d := range durations {
		total += d
	}
	avg := total / int64(len(durations))
	if avg <= 0 {
		avg = 1
	}
	return time.Duration(avg) * time.Millisecond
}

// StorageInfo reports per-backend ledger totals plus the sanitized
// configuration. Connection probing is optional because it reaches out
// to every configured backend.
func (e *MigrationEngine) StorageInfo(ctx context.Context, probeConnections bool) ([]BackendInfo, error) {
	stats, err := e.store.BackendStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("backend stats: %w", err)
	}
	statsByType := make(map[string]store.BackendStat, len(stats))
	for _, s := range stats {
		statsByType[s.BackendType] = s
	}

	configs, err := e.store.ListBackendConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list backend configs: %w", err)
	}

	var out []BackendInfo

	// The local backend has no config row; it always appears.
	localStat := statsByType[string(storage.TypeLocal)]
	local := BackendInfo{
		BackendType: string(storage.TypeLocal),
		FileCount:   localStat.FileCount,
		TotalSize:   localStat.TotalSize,
		SyncedCount: localStat.SyncedCount,
		FailedCount: localStat.FailedCount,
		Config: map[string]string{
			"root":     e.cfg.Local.Root,
			"base_url": e.cfg.Local.BaseURL,
		},
	}
	if probeConnections {
		local.Reachable = e.probe(ctx, storage.TypeLocal, "")
	}
	out = append(out, local)

	for i := range configs {
		cfg := &configs[i]
		stat := statsByType[cfg.BackendType]
		info := BackendInfo{
			BackendType: cfg.BackendType,
			ConfigName:  cfg.Name,
			FileCount:   stat.FileCount,
			TotalSize:   stat.TotalSize,
			SyncedCount: stat.SyncedCount,
			FailedCount: stat.FailedCount,
			Config:      cfg.Sanitized(),
		}
		if probeConnections && cfg.IsActive {
			info.Reachable = e.probe(ctx, storage.BackendType(cfg.BackendType), cfg.Name)
		}
		out = append(out, info)
	}
	return out, nil
}

func (m *mover) probe(ctx context.Context, backendType storage.BackendType, configName string) *bool {
	reachable := false
	if backend, err := m.registry.GetBackend(ctx, backendType, configName); err == nil {
		reachable = backend.TestConnection(ctx)
	}
	return &reachable
}
