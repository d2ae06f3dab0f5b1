package server

// StorageServerConfig holds the storage subsystem settings: the local
// backend roots, batch behavior and the ordered rule lists. Remote
// backend credentials live in the database, not here.
type StorageServerConfig struct {
	// Enabled gates the whole subsystem; the agent idles when false.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// DefaultBackend and DefaultConfigName select the backend for files
	// no placement rule claims. An empty type means local.
	DefaultBackend    string `mapstructure:"default_backend"     yaml:"default_backend"`
	DefaultConfigName string `mapstructure:"default_config_name" yaml:"default_config_name"`

	Local LocalStorageConfig `mapstructure:"local" yaml:"local"`

	// LargeFileThresholdBytes defers files above this size to the
	// background queue instead of the synchronous batch.
	LargeFileThresholdBytes int64 `mapstructure:"large_file_threshold_bytes" yaml:"large_file_threshold_bytes"`

	// BatchSize bounds records per batch invocation.
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size"`

	// SyncInterval is the agent's batch cadence.
	SyncInterval string `mapstructure:"sync_interval" yaml:"sync_interval"`

	// LeaseTTL bounds how long a crashed batch blocks the next run.
	LeaseTTL string `mapstructure:"lease_ttl" yaml:"lease_ttl"`

	// DefaultVisibility applies when no visibility rule matches.
	DefaultVisibility string `mapstructure:"default_visibility" yaml:"default_visibility"`

	DeleteAfterSync DeleteAfterSyncConfig  `mapstructure:"delete_after_sync" yaml:"delete_after_sync"`
	PlacementRules  []PlacementRuleConfig  `mapstructure:"placement_rules"   yaml:"placement_rules"`
	VisibilityRules []VisibilityRuleConfig `mapstructure:"visibility_rules"  yaml:"visibility_rules"`
}

// LocalStorageConfig holds the local backend settings, fixed well-known
// paths rather than a BackendConfig row.
type LocalStorageConfig struct {
	Root    string `mapstructure:"root"     yaml:"root"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// DeleteAfterSyncConfig is the source-deletion policy: a global default
// plus per-(source,target) pair overrides, first match wins.
type DeleteAfterSyncConfig struct {
	Default   bool                 `mapstructure:"default"   yaml:"default"`
	Overrides []DeletePairOverride `mapstructure:"overrides" yaml:"overrides"`
}

type DeletePairOverride struct {
	Source string `mapstructure:"source" yaml:"source"`
	Target string `mapstructure:"target" yaml:"target"`
	Delete bool   `mapstructure:"delete" yaml:"delete"`
}

// PlacementRuleConfig routes new files to a backend. All set criteria
// must match; the first matching rule in order wins.
type PlacementRuleConfig struct {
	MimePattern string   `mapstructure:"mime_pattern"  yaml:"mime_pattern"`
	MinSize     int64    `mapstructure:"min_size"      yaml:"min_size"`
	MaxSize     int64    `mapstructure:"max_size"      yaml:"max_size"`
	EntityTypes []string `mapstructure:"entity_types"  yaml:"entity_types"`
	FileTypeIDs []int64  `mapstructure:"file_type_ids" yaml:"file_type_ids"`

	Backend    string `mapstructure:"backend"     yaml:"backend"`
	ConfigName string `mapstructure:"config_name" yaml:"config_name"`
}

// VisibilityRuleConfig assigns public/private per entity or mime type.
type VisibilityRuleConfig struct {
	MimePattern string   `mapstructure:"mime_pattern" yaml:"mime_pattern"`
	EntityTypes []string `mapstructure:"entity_types" yaml:"entity_types"`
	Visibility  string   `mapstructure:"visibility"   yaml:"visibility"`
}

// DeleteSourceFor resolves the deletion policy for a backend pair.
func (c DeleteAfterSyncConfig) DeleteSourceFor(source, target string) bool {
	for _, o := range c.Overrides {
		if o.Source == source && o.Target == target {
			return o.Delete
		}
	}
	return c.Default
}
