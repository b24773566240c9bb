package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/raphi011/buildcache/internal/log"
)

// copier copies trees between the working directory and the cache.
// Directories it creates get their final mode and mtime in finish, after
// their contents are written, so read-only source directories copy fine.
// Existing directories without owner write access are opened up for the
// copy and get their old mode back in finish.
type copier struct {
	ctx      context.Context
	log      *log.Logger
	progress func(rel string)
	skip     string // source path never copied (the cache dir itself)

	created []createdDir
	files   int
	bytes   int64
}

type createdDir struct {
	path    string
	mode    fs.FileMode
	modTime time.Time // zero keeps the current mtime
}

// copyPath copies src to dst according to its type. rel is the path
// reported to the progress callback.
func (c *copier) copyPath(src, dst, rel string) error {
	if err := c.ctx.Err(); err != nil {
		return err
	}
	if c.skip != "" && src == c.skip {
		c.log.Debug("skipping cache dir", "path", src)
		return nil
	}

	info, err := os.Lstat(src)
	if err != nil {
		return err
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return c.copySymlink(src, dst, rel)
	case info.IsDir():
		return c.copyDir(src, dst, rel, info)
	case info.Mode().IsRegular():
		return c.copyFile(src, dst, rel, info)
	default:
		c.log.Debug("skipping special file", "path", src, "mode", info.Mode().String())
		return nil
	}
}

func (c *copier) copyDir(src, dst, rel string, info fs.FileInfo) error {
	if err := c.mkdir(dst, info); err != nil {
		return err
	}
	c.report(rel)
	return c.copyContents(src, dst, rel)
}

// copyContents copies the members of srcDir into the existing dstDir.
func (c *copier) copyContents(srcDir, dstDir, rel string) error {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return err
	}

	for _, e := range entries {
		name := e.Name()
		if err := c.copyPath(filepath.Join(srcDir, name), filepath.Join(dstDir, name), filepath.Join(rel, name)); err != nil {
			return err
		}
	}
	return nil
}

// mkdir creates dst unless a directory already exists there.
func (c *copier) mkdir(dst string, info fs.FileInfo) error {
	err := os.Mkdir(dst, 0o700)
	if err == nil {
		c.created = append(c.created, createdDir{
			path:    dst,
			mode:    info.Mode().Perm(),
			modTime: info.ModTime(),
		})
		return nil
	}
	if errors.Is(err, fs.ErrExist) {
		if st, statErr := os.Stat(dst); statErr == nil && st.IsDir() {
			return c.makeWritable(dst, st.Mode().Perm())
		}
	}
	return err
}

// makeWritable grants the owner access to an existing directory so its
// members can be replaced. The old mode is restored by finish.
func (c *copier) makeWritable(dir string, perm fs.FileMode) error {
	if perm&0o700 == 0o700 {
		return nil
	}
	if err := os.Chmod(dir, perm|0o700); err != nil {
		return err
	}
	c.created = append(c.created, createdDir{path: dir, mode: perm})
	return nil
}

// copyFile copies a regular file, overwriting dst, and carries over the
// permission bits and modification time of src.
func (c *copier) copyFile(src, dst, rel string, info fs.FileInfo) error {
	if err := removeIfSymlink(dst); err != nil {
		return err
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := openForWrite(dst, info.Mode().Perm())
	if err != nil {
		return err
	}

	n, err := io.Copy(dstFile, srcFile)
	if closeErr := dstFile.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}

	// Chmod as well: OpenFile only applies the mode to new files
	if err := os.Chmod(dst, info.Mode().Perm()); err != nil {
		return err
	}
	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return err
	}

	c.files++
	c.bytes += n
	c.report(rel)
	return nil
}

// copySymlink recreates the link at src with the same target at dst.
// A non-directory at dst is replaced.
func (c *copier) copySymlink(src, dst, rel string) error {
	target, err := os.Readlink(src)
	if err != nil {
		return err
	}

	if existing, err := os.Lstat(dst); err == nil {
		if existing.IsDir() {
			return fmt.Errorf("symlink %s: destination is a directory", dst)
		}
		if err := os.Remove(dst); err != nil {
			return err
		}
	}

	if err := os.Symlink(target, dst); err != nil {
		return err
	}

	c.files++
	c.report(rel)
	return nil
}

// finish applies mode and mtime to the directories created or opened up by
// this copier, deepest first.
func (c *copier) finish() error {
	for i := len(c.created) - 1; i >= 0; i-- {
		d := c.created[i]
		if err := os.Chmod(d.path, d.mode); err != nil {
			return err
		}
		if d.modTime.IsZero() {
			continue
		}
		if err := os.Chtimes(d.path, d.modTime, d.modTime); err != nil {
			return err
		}
	}
	c.created = nil
	return nil
}

func (c *copier) report(rel string) {
	if c.progress != nil {
		c.progress(rel)
	}
}

// openForWrite truncates or creates path. A read-only file in the way is
// replaced.
func openForWrite(path string, perm fs.FileMode) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err == nil || !errors.Is(err, fs.ErrPermission) {
		return f, err
	}
	if _, statErr := os.Lstat(path); statErr != nil {
		return nil, err
	}
	if rmErr := os.Remove(path); rmErr != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
}

func removeIfSymlink(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return os.Remove(path)
	}
	return nil
}

// removeTree removes path and everything below it. Directories without
// write permission (e.g. a saved Go module cache) are made writable and
// the removal retried. A missing path is not an error.
func removeTree(path string) error {
	err := os.RemoveAll(path)
	if err == nil || !errors.Is(err, fs.ErrPermission) {
		return err
	}

	_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err == nil && d.IsDir() {
			_ = os.Chmod(p, 0o700)
		}
		return nil
	})
	return os.RemoveAll(path)
}
