package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/raphi011/buildcache/internal/digest"
	"github.com/raphi011/buildcache/internal/log"
)

// stagingPrefix marks directories that hold an in-progress save.
// Keys may not use it, and Entries skips them.
const stagingPrefix = ".buildcache-staging-"

// Store saves and restores cache entries for one working directory.
type Store struct {
	workDir  string
	cacheDir string
	progress func(rel string)
}

// Option configures a Store.
type Option func(*Store)

// WithProgress registers fn to be called with the relative path of every
// file, symlink and directory copied by Save or Restore.
func WithProgress(fn func(rel string)) Option {
	return func(s *Store) {
		s.progress = fn
	}
}

// RestoreResult describes the outcome of Restore.
// Found is false when none of the keys had an entry.
type RestoreResult struct {
	Key   string
	Found bool
	Files int
	Bytes int64
}

// SaveResult describes a completed Save.
type SaveResult struct {
	Key   string
	Files int
	Bytes int64
}

// Entry is a cache entry found on disk.
type Entry struct {
	Key     string
	Path    string
	Files   int
	Bytes   int64
	ModTime time.Time
}

// New creates a store that reads and writes workDir and keeps entries in
// cacheDir. Both paths must be absolute. cacheDir is created on the first
// save.
func New(workDir, cacheDir string, opts ...Option) (*Store, error) {
	if !filepath.IsAbs(workDir) {
		return nil, fmt.Errorf("work dir %q: %w", workDir, ErrNotAbsolute)
	}
	if !filepath.IsAbs(cacheDir) {
		return nil, fmt.Errorf("cache dir %q: %w", cacheDir, ErrNotAbsolute)
	}

	s := &Store{
		workDir:  filepath.Clean(workDir),
		cacheDir: filepath.Clean(cacheDir),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// WorkDir returns the working directory root.
func (s *Store) WorkDir() string {
	return s.workDir
}

// CacheDir returns the cache directory root.
func (s *Store) CacheDir() string {
	return s.cacheDir
}

// EntryDir returns the directory that holds the entry for key.
func (s *Store) EntryDir(key string) (string, error) {
	if !validKey(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.cacheDir, key), nil
}

// validKey reports whether key is a single path segment that names a
// directory directly below the cache root. Keys must not contain
// separators, so no entry can nest inside another.
func validKey(key string) bool {
	switch {
	case key == "", key == ".", key == "..":
		return false
	case strings.ContainsAny(key, `/\`):
		return false
	case strings.HasPrefix(key, stagingPrefix):
		return false
	}
	return filepath.IsLocal(key)
}

// Restore merges the entry of the first key that exists into the working
// directory. Remaining keys are not looked at once an entry is found.
// If no key has an entry the result has Found == false and err == nil.
func (s *Store) Restore(ctx context.Context, keys []string) (RestoreResult, error) {
	l := log.FromContext(ctx)

	for _, key := range keys {
		if !validKey(key) {
			return RestoreResult{}, fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}

	for _, key := range keys {
		dir, err := s.EntryDir(key)
		if err != nil {
			return RestoreResult{}, err
		}

		info, err := os.Stat(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				l.Debug("cache miss", "key", key)
				continue
			}
			return RestoreResult{}, fmt.Errorf("stat cache entry %q: %w", key, err)
		}
		if !info.IsDir() {
			l.Debug("cache miss: not a directory", "key", key, "path", dir)
			continue
		}

		l.Debug("cache hit", "key", key, "path", dir)

		c := s.newCopier(ctx)
		err = c.copyContents(dir, s.workDir, "")
		if finishErr := c.finish(); err == nil {
			err = finishErr
		}
		if err != nil {
			return RestoreResult{}, fmt.Errorf("restore %q: %w", key, err)
		}

		l.Info("restored cache entry", "key", key, "files", c.files, "bytes", c.bytes)
		return RestoreResult{Key: key, Found: true, Files: c.files, Bytes: c.bytes}, nil
	}

	return RestoreResult{}, nil
}

// Save replaces the entry for key with copies of paths, which are relative
// to the working directory. Directories are copied recursively, symlinks
// are stored as symlinks.
//
// Any existing entry is removed first. If a path does not exist Save
// fails with ErrPathNotFound and the key has no entry afterwards.
func (s *Store) Save(ctx context.Context, key string, paths []string) (SaveResult, error) {
	l := log.FromContext(ctx)

	dir, err := s.EntryDir(key)
	if err != nil {
		return SaveResult{}, err
	}
	for _, p := range paths {
		if !filepath.IsLocal(p) {
			return SaveResult{}, fmt.Errorf("%w: %q is not relative to the working directory", ErrInvalidPath, p)
		}
	}

	if err := removeTree(dir); err != nil {
		return SaveResult{}, fmt.Errorf("remove cache entry %q: %w", key, err)
	}

	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return SaveResult{}, fmt.Errorf("create cache dir: %w", err)
	}

	staging, err := os.MkdirTemp(parent, stagingPrefix+filepath.Base(dir)+"-")
	if err != nil {
		return SaveResult{}, fmt.Errorf("create staging dir: %w", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if err := removeTree(staging); err != nil {
			l.Warn("failed to remove staging dir", "path", staging, "error", err)
		}
	}()

	c := s.newCopier(ctx)
	c.skip = s.cacheDir

	for _, rel := range paths {
		src := filepath.Join(s.workDir, rel)
		if _, err := os.Lstat(src); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return SaveResult{}, fmt.Errorf("save %q: %w", rel, ErrPathNotFound)
			}
			return SaveResult{}, fmt.Errorf("save %q: %w", rel, err)
		}

		dst := filepath.Join(staging, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return SaveResult{}, fmt.Errorf("save %q: %w", rel, err)
		}
		if err := c.copyPath(src, dst, filepath.Clean(rel)); err != nil {
			return SaveResult{}, fmt.Errorf("save %q: %w", rel, err)
		}
	}

	if err := c.finish(); err != nil {
		return SaveResult{}, fmt.Errorf("save %q: %w", key, err)
	}
	if err := os.Chmod(staging, 0o755); err != nil {
		return SaveResult{}, fmt.Errorf("save %q: %w", key, err)
	}
	if err := os.Rename(staging, dir); err != nil {
		return SaveResult{}, fmt.Errorf("commit cache entry %q: %w", key, err)
	}
	committed = true

	l.Info("saved cache entry", "key", key, "paths", len(paths), "files", c.files, "bytes", c.bytes)
	return SaveResult{Key: key, Files: c.files, Bytes: c.bytes}, nil
}

// Checksum returns the combined digest of paths. Relative paths are
// resolved against the working directory.
func (s *Store) Checksum(ctx context.Context, paths []string) (string, error) {
	resolved := make([]string, len(paths))
	for i, p := range paths {
		if filepath.IsAbs(p) {
			resolved[i] = filepath.Clean(p)
		} else {
			resolved[i] = filepath.Join(s.workDir, p)
		}
	}

	sum, err := digest.Combined(ctx, resolved)
	if err != nil {
		return "", fmt.Errorf("checksum: %w", err)
	}

	log.FromContext(ctx).Debug("checksum computed", "paths", len(paths), "digest", sum)
	return sum, nil
}

// Entries lists the entries directly below the cache directory, sorted by
// key. A missing cache directory yields no entries.
func (s *Store) Entries() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.cacheDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cache dir: %w", err)
	}

	var entries []Entry
	for _, de := range dirEntries {
		if !de.IsDir() || strings.HasPrefix(de.Name(), stagingPrefix) {
			continue
		}

		info, err := de.Info()
		if err != nil {
			return nil, err
		}

		path := filepath.Join(s.cacheDir, de.Name())
		files, size, err := treeSize(path)
		if err != nil {
			return nil, fmt.Errorf("scan cache entry %q: %w", de.Name(), err)
		}

		entries = append(entries, Entry{
			Key:     de.Name(),
			Path:    path,
			Files:   files,
			Bytes:   size,
			ModTime: info.ModTime(),
		})
	}

	return entries, nil
}

func (s *Store) newCopier(ctx context.Context) *copier {
	return &copier{
		ctx:      ctx,
		log:      log.FromContext(ctx),
		progress: s.progress,
	}
}

// treeSize counts the non-directory members of dir and the bytes of its
// regular files.
func treeSize(dir string) (files int, size int64, err error) {
	err = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		files++
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			size += info.Size()
		}
		return nil
	})
	return files, size, err
}
