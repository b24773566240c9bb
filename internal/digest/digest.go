package digest

import (
	"context"
	_ "crypto/sha256" // registers the hash used by godigest.SHA256
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	godigest "github.com/opencontainers/go-digest"
)

// ChunkSize is the read buffer used when hashing file content.
// It has no effect on the resulting digest.
const ChunkSize = 64 * 1024

// Token prefixes
const (
	FilePrefix    = "sha256="
	SymlinkPrefix = "symlink="
)

// Map maps absolute file paths to digest tokens.
type Map map[string]string

// File hashes the content of the file at path and returns its token.
func File(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("digest %s: %w", path, err)
	}
	defer f.Close()

	d := godigest.SHA256.Digester()
	h := d.Hash()
	buf := make([]byte, ChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, rerr := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				break
			}
			return "", fmt.Errorf("digest %s: %w", path, rerr)
		}
	}

	return FilePrefix + d.Digest().Encoded(), nil
}

// Path digests a single path.
// Symlinks yield their target, directories are walked recursively
// (child symlinks included as links), everything else is hashed as a file.
func Path(ctx context.Context, path string) (Map, error) {
	m := make(Map)
	if err := m.add(ctx, path); err != nil {
		return nil, err
	}
	return m, nil
}

// Paths digests every path and merges the results into one map.
// Input order does not matter: a path listed twice yields the same token.
func Paths(ctx context.Context, paths []string) (Map, error) {
	m := make(Map)
	for _, p := range paths {
		if err := m.add(ctx, p); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Combined returns the combined digest of paths as a hex string.
func Combined(ctx context.Context, paths []string) (string, error) {
	m, err := Paths(ctx, paths)
	if err != nil {
		return "", err
	}
	return m.Sum(), nil
}

func (m Map) add(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := os.Lstat(path)
	if err != nil {
		return fmt.Errorf("digest %s: %w", path, err)
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(path)
		if err != nil {
			return fmt.Errorf("digest %s: %w", path, err)
		}
		m[path] = SymlinkPrefix + target
	case info.IsDir():
		entries, err := os.ReadDir(path)
		if err != nil {
			return fmt.Errorf("digest %s: %w", path, err)
		}
		for _, e := range entries {
			if err := m.add(ctx, filepath.Join(path, e.Name())); err != nil {
				return err
			}
		}
	default:
		token, err := File(ctx, path)
		if err != nil {
			return err
		}
		m[path] = token
	}

	return nil
}

// Sum returns the hex SHA-256 of the canonical serialization of m.
func (m Map) Sum() string {
	return godigest.SHA256.FromBytes(m.Canonical()).Encoded()
}
