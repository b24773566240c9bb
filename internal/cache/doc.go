// Package cache stores snapshots of working-directory subsets on disk,
// addressed by string keys.
//
// The cache directory holds one subdirectory per key:
//
//	<cachedir>/
//	  deps-5891b5b5.../
//	    node_modules/...
//	    go.sum
//	  build-main/
//	    out/...
//
// There is no index or metadata file; an entry exists if and only if its
// directory exists. A key is a single path segment, so entries never nest.
// Names starting with ".buildcache-staging-" are
// reserved for in-progress saves.
//
// # Operations
//
//   - [Store.Save] replaces the entry for a key with copies of the listed
//     paths. The old entry is removed first and the new one is assembled
//     in a staging directory, then renamed into place, so a failed save
//     leaves no entry rather than a partial one.
//
//   - [Store.Restore] merges the first existing entry out of a list of
//     candidate keys into the working directory. Files are overwritten,
//     existing directories are kept, nothing is deleted. Read-only
//     directories in the way are opened up for the copy and keep their mode.
//
//   - [Store.Checksum] returns the combined digest of paths, suitable as a
//     cache key (see package digest).
//
// Symlinks are stored and restored as symlinks with their original target.
// File permission bits and modification times are preserved in both
// directions.
//
// # Concurrency
//
// A Store holds no state between calls. There is no locking: two processes
// saving the same key at the same time race, and the outcome is undefined.
package cache
