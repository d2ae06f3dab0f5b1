package server

import "github.com/spf13/viper"

func GetServerDefault() BaseServerConfig {
	return BaseServerConfig{
		ShutdownTimeout: "10s",
		Actor:           "system",

		Log: LogServerConfig{
			Level:      "INFO",
			TimeFormat: "2006-01-02 15:04:05",
			File:       "",
			NoColor:    false,
			JSON:       false,
			NoTerminal: false,
			Rotation: LogServerRotationConfig{
				MaxSize:    128,
				MaxBackups: 5,
				MaxAge:     16,
				Compress:   false,
			},
		},

		Metadata: MetadataServerConfig{
			Type: "sqlite",
			SQLite: MetadataSQLiteConfig{
				Path: "gostow.db",
			},
		},

		Storage: StorageServerConfig{
			Enabled:                 true,
			DefaultBackend:          "local",
			DefaultConfigName:       "",
			Local:                   LocalStorageConfig{Root: "data/files"},
			LargeFileThresholdBytes: 50 * 1024 * 1024,
			BatchSize:               100,
			SyncInterval:            "1h",
			LeaseTTL:                "30m",
			DefaultVisibility:       "private",
			DeleteAfterSync:         DeleteAfterSyncConfig{Default: false},
		},
	}
}

func setDefaults() {
	defaults := GetServerDefault()

	viper.SetDefault("shutdown_timeout", defaults.ShutdownTimeout)
	viper.SetDefault("actor", defaults.Actor)

	viper.SetDefault("log.level", defaults.Log.Level)
	viper.SetDefault("log.time_format", defaults.Log.TimeFormat)
	viper.SetDefault("log.file", defaults.Log.File)
	viper.SetDefault("log.no_color", defaults.Log.NoColor)
	viper.SetDefault("log.json", defaults.Log.JSON)
	viper.SetDefault("log.no_terminal", defaults.Log.NoTerminal)
	viper.SetDefault("log.rotation.max_size", defaults.Log.Rotation.MaxSize)
	viper.SetDefault("log.rotation.max_backups", defaults.Log.Rotation.MaxBackups)
	viper.SetDefault("log.rotation.max_age", defaults.Log.Rotation.MaxAge)
	viper.SetDefault("log.rotation.compress", defaults.Log.Rotation.Compress)

	viper.SetDefault("metadata.type", defaults.Metadata.Type)
	viper.SetDefault("metadata.sqlite.path", defaults.Metadata.SQLite.Path)

	viper.SetDefault("storage.enabled", defaults.Storage.Enabled)
	viper.SetDefault("storage.default_backend", defaults.Storage.DefaultBackend)
	viper.SetDefault("storage.default_config_name", defaults.Storage.DefaultConfigName)
	viper.SetDefault("storage.local.root", defaults.Storage.Local.Root)
	viper.SetDefault("storage.local.base_url", defaults.Storage.Local.BaseURL)
	viper.SetDefault("storage.large_file_threshold_bytes", defaults.Storage.LargeFileThresholdBytes)
	viper.SetDefault("storage.batch_size", defaults.Storage.BatchSize)
	viper.SetDefault("storage.sync_interval", defaults.Storage.SyncInterval)
	viper.SetDefault("storage.lease_ttl", defaults.Storage.LeaseTTL)
	viper.SetDefault("storage.default_visibility", defaults.Storage.DefaultVisibility)
	viper.SetDefault("storage.delete_after_sync.default", defaults.Storage.DeleteAfterSync.Default)
}
