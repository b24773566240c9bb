package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// LocalConfigFileName is the per-directory override file.
const LocalConfigFileName = ".buildcache.toml"

// LocalConfig holds per-directory overrides from .buildcache.toml.
// Pointer fields and zero-value strings indicate "not set" (inherit from global).
type LocalConfig struct {
	CacheDir string   `toml:"cache_dir"`
	Log      LocalLog `toml:"log"`
}

// LocalLog holds local [log] overrides
type LocalLog struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSize    *int   `toml:"max_size"`
	MaxBackups *int   `toml:"max_backups"`
	Compress   *bool  `toml:"compress"`
}

// LoadLocal reads a .buildcache.toml from the given directory.
// Returns nil (no error) if the file doesn't exist.
// Returns an error only on parse or validation failure.
func LoadLocal(dir string) (*LocalConfig, error) {
	configFile := filepath.Join(dir, LocalConfigFileName)

	data, err := os.ReadFile(configFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read local config %s: %w", configFile, err)
	}

	var local LocalConfig
	if err := toml.Unmarshal(data, &local); err != nil {
		return nil, fmt.Errorf("failed to parse local config %s: %w", configFile, err)
	}

	if err := checkLogLevel(local.Log.Level); err != nil {
		return nil, fmt.Errorf("%w in %s", err, configFile)
	}

	return &local, nil
}
