package cache

import "errors"

var (
	// ErrPathNotFound is returned by Save when a listed path does not exist
	// under the working directory.
	ErrPathNotFound = errors.New("path not found")

	// ErrInvalidKey is returned for keys that cannot be used as a
	// directory below the cache root.
	ErrInvalidKey = errors.New("invalid cache key")

	// ErrInvalidPath is returned for save paths that escape the working
	// directory.
	ErrInvalidPath = errors.New("invalid path")

	// ErrNotAbsolute is returned by New when a root directory is relative.
	ErrNotAbsolute = errors.New("path must be absolute")
)
