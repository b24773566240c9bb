package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	// DefaultCacheDir is used when no cache_dir is configured.
	DefaultCacheDir = ".cache"

	// DefaultLogLevel is the level of the log file when [log] level is unset.
	DefaultLogLevel = "info"

	// EnvConfigFile overrides the location of the global config file.
	EnvConfigFile = "BUILDCACHE_CONFIG"

	// EnvCacheDir overrides cache_dir from any config file.
	EnvCacheDir = "BUILDCACHE_DIR"
)

// LogConfig holds the [log] section
type LogConfig struct {
	Level      string `toml:"level"`       // debug, info, warn or error
	File       string `toml:"file"`        // empty disables the log file
	MaxSize    int    `toml:"max_size"`    // megabytes before rotation
	MaxBackups int    `toml:"max_backups"` // rotated files kept
	Compress   bool   `toml:"compress"`    // gzip rotated files
}

// Config holds the buildcache configuration
type Config struct {
	CacheDir string    `toml:"cache_dir"`
	Log      LogConfig `toml:"log"`
}

// Default returns the default configuration
func Default() Config {
	return Config{
		CacheDir: DefaultCacheDir,
		Log: LogConfig{
			Level:      DefaultLogLevel,
			MaxSize:    10,
			MaxBackups: 3,
		},
	}
}

// ResolveCacheDir returns the absolute cache directory for workDir.
// A relative cache_dir is taken relative to workDir.
func (c *Config) ResolveCacheDir(workDir string) (string, error) {
	dir := c.CacheDir
	if dir == "" {
		dir = DefaultCacheDir
	}
	return resolvePath(dir, workDir)
}

// ResolveLogFile returns the absolute log file path for workDir, or "" if
// no log file is configured.
func (c *Config) ResolveLogFile(workDir string) (string, error) {
	if c.Log.File == "" {
		return "", nil
	}
	return resolvePath(c.Log.File, workDir)
}

func resolvePath(path, workDir string) (string, error) {
	expanded, err := expandPath(path)
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(expanded) {
		return filepath.Clean(expanded), nil
	}
	return filepath.Join(workDir, expanded), nil
}

// expandPath expands ~ to the user's home directory
func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand ~: %w", err)
		}
		return filepath.Join(home, path[2:]), nil
	}
	if path == "~" {
		return os.UserHomeDir()
	}
	return path, nil
}

// Path returns the location of the global config file.
// $BUILDCACHE_CONFIG wins over ~/.config/buildcache/config.toml.
func Path() (string, error) {
	if p := os.Getenv(EnvConfigFile); p != "" {
		return expandPath(p)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "buildcache", "config.toml"), nil
}

// Load reads the global config file.
// Returns Default() if the file doesn't exist (no error).
// Returns error only if the file exists but is invalid.
func Load() (Config, error) {
	path, err := Path()
	if err != nil {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Default(), fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	// Use defaults for empty values
	if cfg.CacheDir == "" {
		cfg.CacheDir = DefaultCacheDir
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}

	if err := cfg.Validate(); err != nil {
		return Default(), fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Resolve loads the effective configuration for workDir: the global file,
// overridden by workDir/.buildcache.toml, overridden by $BUILDCACHE_DIR.
func Resolve(workDir string) (*Config, error) {
	global, err := Load()
	if err != nil {
		return nil, err
	}

	local, err := LoadLocal(workDir)
	if err != nil {
		return nil, err
	}

	merged := MergeLocal(&global, local)
	applyEnvOverrides(merged)

	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return merged, nil
}

// applyEnvOverrides applies BUILDCACHE_* environment overrides.
func applyEnvOverrides(cfg *Config) {
	if dir := os.Getenv(EnvCacheDir); dir != "" {
		cfg.CacheDir = dir
	}
}

// ValidLogLevels are the accepted values of [log] level.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// checkLogLevel accepts an unset level or one of ValidLogLevels.
func checkLogLevel(level string) error {
	if level == "" || slices.Contains(ValidLogLevels, level) {
		return nil
	}
	return fmt.Errorf("invalid log.level %q: must be one of %s", level, strings.Join(ValidLogLevels, ", "))
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if err := checkLogLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.MaxSize < 0 {
		errs = append(errs, fmt.Errorf("invalid log.max_size %d: must not be negative", c.Log.MaxSize))
	}
	if c.Log.MaxBackups < 0 {
		errs = append(errs, fmt.Errorf("invalid log.max_backups %d: must not be negative", c.Log.MaxBackups))
	}
	return errors.Join(errs...)
}

const defaultConfig = `# buildcache configuration

# Directory holding cache entries, one subdirectory per key.
# Relative paths are resolved against the working directory (-C).
# Overridden by $BUILDCACHE_DIR and the --cache-dir flag.
# cache_dir = ".cache"

# Log file settings. The console only shows warnings unless -v is given;
# the log file records every save and restore at the configured level.
[log]
level = "info"        # debug, info, warn or error
# file = "~/.local/state/buildcache/buildcache.log"
max_size = 10         # megabytes before the file is rotated
max_backups = 3       # rotated files to keep
compress = false      # gzip rotated files
`

// DefaultConfig returns the commented default config file content.
func DefaultConfig() string {
	return defaultConfig
}

// Init creates a default config file at Path().
// If force is true, overwrites existing file.
// Returns the path to the created file.
func Init(force bool) (string, error) {
	path, err := Path()
	if err != nil {
		return "", err
	}

	if !force {
		if _, err := os.Stat(path); err == nil {
			return "", errors.New("config file already exists: " + path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}

	if err := os.WriteFile(path, []byte(defaultConfig), 0o644); err != nil {
		return "", err
	}

	return path, nil
}
