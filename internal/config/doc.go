// Package config handles loading and validation of buildcache configuration.
//
// Configuration is read from ~/.config/buildcache/config.toml (or the file
// named by $BUILDCACHE_CONFIG), then overridden per working directory by a
// .buildcache.toml file.
//
// # Cache Directory Sources (highest priority first)
//
//   - --cache-dir flag
//   - BUILDCACHE_DIR env var
//   - cache_dir in <workdir>/.buildcache.toml
//   - cache_dir in the global config file
//   - ".cache"
//
// A relative cache_dir is resolved against the working directory, so the
// default keeps entries in <workdir>/.cache.
//
// # Log Configuration
//
//	[log]
//	level = "info"
//	file = "~/.local/state/buildcache/buildcache.log"
//	max_size = 10
//	max_backups = 3
//	compress = true
//
// The log file receives JSON records and is rotated by size.
package config
