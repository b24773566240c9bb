// Package digest computes deterministic content digests for files, symlinks
// and directory trees.
//
// Every file below the digested paths becomes one token in a [Map], keyed by
// its path:
//
//	sha256=<hex>       regular file content
//	symlink=<target>   symbolic link (never followed)
//
// Directories are not tokens themselves; they are expanded into the tokens
// of their members.
//
// # Combined Digest
//
// [Combined] reduces a whole path set to one hex string. The map is
// serialized with its keys sorted (see [Map.Canonical]) before hashing, so
// the result does not depend on directory enumeration order or map
// iteration order. The serialization matches the JSON layout of the
// original Python buildcache, which keeps cache keys stable across both
// tools.
package digest
