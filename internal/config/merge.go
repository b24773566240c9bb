package config

// MergeLocal merges a local config into a global config,
// returning a new Config without mutating the global.
// Returns global unchanged if local is nil.
func MergeLocal(global *Config, local *LocalConfig) *Config {
	if local == nil {
		return global
	}

	merged := *global

	if local.CacheDir != "" {
		merged.CacheDir = local.CacheDir
	}

	if local.Log.Level != "" {
		merged.Log.Level = local.Log.Level
	}
	if local.Log.File != "" {
		merged.Log.File = local.Log.File
	}
	if local.Log.MaxSize != nil {
		merged.Log.MaxSize = *local.Log.MaxSize
	}
	if local.Log.MaxBackups != nil {
		merged.Log.MaxBackups = *local.Log.MaxBackups
	}
	if local.Log.Compress != nil {
		merged.Log.Compress = *local.Log.Compress
	}

	return &merged
}
