package cache

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphi011/buildcache/internal/digest"
	"github.com/raphi011/buildcache/internal/log"
)

// newTestStore returns a store with a fresh work dir and a cache dir inside
// it, the way the CLI lays them out by default.
func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	work := t.TempDir()
	s, err := New(work, filepath.Join(work, ".cache"), opts...)
	require.NoError(t, err)
	return s
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, rel))
	require.NoError(t, err)
	return string(data)
}

func TestNew_RequiresAbsolutePaths(t *testing.T) {
	t.Parallel()

	_, err := New("work", "/cache")
	assert.ErrorIs(t, err, ErrNotAbsolute)

	_, err = New("/work", ".cache")
	assert.ErrorIs(t, err, ErrNotAbsolute)

	s, err := New("/work/", "/work/.cache/")
	require.NoError(t, err)
	assert.Equal(t, "/work", s.WorkDir())
	assert.Equal(t, "/work/.cache", s.CacheDir())
}

func TestEntryDir(t *testing.T) {
	t.Parallel()

	s, err := New("/w", "/w/.cache")
	require.NoError(t, err)

	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{key: "deps-abc", want: "/w/.cache/deps-abc"},
		{key: "team/deps", wantErr: true},
		{key: `team\deps`, wantErr: true},
		{key: "deps/", wantErr: true},
		{key: "", wantErr: true},
		{key: ".", wantErr: true},
		{key: "..", wantErr: true},
		{key: "../escape", wantErr: true},
		{key: "/abs", wantErr: true},
		{key: "a/../..", wantErr: true},
		{key: stagingPrefix + "x", wantErr: true},
		{key: "team/" + stagingPrefix + "x", wantErr: true},
		{key: ".config", want: "/w/.cache/.config"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Parallel()
			got, err := s.EntryDir(tt.key)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidKey)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSaveRestore_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := newTestStore(t)
	writeFile(t, s.WorkDir(), "node_modules/a/index.js", "module.exports = 1")
	writeFile(t, s.WorkDir(), "node_modules/b/package.json", "{}")
	writeFile(t, s.WorkDir(), "go.sum", "sum")

	saved, err := s.Save(ctx, "deps-1", []string{"node_modules", "go.sum"})
	require.NoError(t, err)
	assert.Equal(t, SaveResult{Key: "deps-1", Files: 3, Bytes: 23}, saved)

	assert.Equal(t, "module.exports = 1", readFile(t, s.CacheDir(), "deps-1/node_modules/a/index.js"))

	require.NoError(t, os.RemoveAll(filepath.Join(s.WorkDir(), "node_modules")))
	require.NoError(t, os.Remove(filepath.Join(s.WorkDir(), "go.sum")))

	restored, err := s.Restore(ctx, []string{"deps-1"})
	require.NoError(t, err)
	assert.Equal(t, RestoreResult{Key: "deps-1", Found: true, Files: 3, Bytes: 23}, restored)

	assert.Equal(t, "module.exports = 1", readFile(t, s.WorkDir(), "node_modules/a/index.js"))
	assert.Equal(t, "{}", readFile(t, s.WorkDir(), "node_modules/b/package.json"))
	assert.Equal(t, "sum", readFile(t, s.WorkDir(), "go.sum"))
}

func TestSaveRestore_NestedPathKeepsStructure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := newTestStore(t)
	writeFile(t, s.WorkDir(), "build/out/app.bin", "bin")

	_, err := s.Save(ctx, "k", []string{"build/out/app.bin"})
	require.NoError(t, err)
	assert.Equal(t, "bin", readFile(t, s.CacheDir(), "k/build/out/app.bin"))

	require.NoError(t, os.RemoveAll(filepath.Join(s.WorkDir(), "build")))

	_, err = s.Restore(ctx, []string{"k"})
	require.NoError(t, err)
	assert.Equal(t, "bin", readFile(t, s.WorkDir(), "build/out/app.bin"))
}

func TestRestore_FirstMatchWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := newTestStore(t)
	writeFile(t, s.WorkDir(), "f", "one")
	_, err := s.Save(ctx, "k1", []string{"f"})
	require.NoError(t, err)

	writeFile(t, s.WorkDir(), "f", "two")
	_, err = s.Save(ctx, "k2", []string{"f"})
	require.NoError(t, err)

	writeFile(t, s.WorkDir(), "f", "local")

	res, err := s.Restore(ctx, []string{"missing", "k2", "k1"})
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, "k2", res.Key)
	assert.Equal(t, "two", readFile(t, s.WorkDir(), "f"))
}

func TestRestore_NoMatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := newTestStore(t)
	writeFile(t, s.WorkDir(), "keep", "untouched")

	res, err := s.Restore(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Empty(t, res.Key)
	assert.Equal(t, "untouched", readFile(t, s.WorkDir(), "keep"))

	res, err = s.Restore(ctx, nil)
	require.NoError(t, err)
	assert.False(t, res.Found)
}

func TestRestore_FileAtKeyIsMiss(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := newTestStore(t)
	writeFile(t, s.CacheDir(), "not-a-dir", "x")

	res, err := s.Restore(ctx, []string{"not-a-dir"})
	require.NoError(t, err)
	assert.False(t, res.Found)
}

func TestRestore_InvalidKey(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	_, err := s.Restore(context.Background(), []string{"../x"})
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestRestore_MergesWithoutDeleting(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := newTestStore(t)
	writeFile(t, s.WorkDir(), "dir/cached.txt", "cached")
	_, err := s.Save(ctx, "k", []string{"dir"})
	require.NoError(t, err)

	writeFile(t, s.WorkDir(), "dir/cached.txt", "modified")
	writeFile(t, s.WorkDir(), "dir/extra.txt", "extra")

	_, err = s.Restore(ctx, []string{"k"})
	require.NoError(t, err)
	assert.Equal(t, "cached", readFile(t, s.WorkDir(), "dir/cached.txt"))
	assert.Equal(t, "extra", readFile(t, s.WorkDir(), "dir/extra.txt"))
}

func TestSave_OverwritePurgesOldEntry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := newTestStore(t)
	writeFile(t, s.WorkDir(), "a", "a")
	writeFile(t, s.WorkDir(), "b", "b")

	_, err := s.Save(ctx, "k", []string{"a"})
	require.NoError(t, err)
	_, err = s.Save(ctx, "k", []string{"b"})
	require.NoError(t, err)

	assert.NoFileExists(t, filepath.Join(s.CacheDir(), "k", "a"))
	assert.FileExists(t, filepath.Join(s.CacheDir(), "k", "b"))
}

func TestSave_MissingPathLeavesNoEntry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := newTestStore(t)
	writeFile(t, s.WorkDir(), "a", "a")
	_, err := s.Save(ctx, "k", []string{"a"})
	require.NoError(t, err)

	_, err = s.Save(ctx, "k", []string{"a", "missing"})
	require.ErrorIs(t, err, ErrPathNotFound)

	assert.NoDirExists(t, filepath.Join(s.CacheDir(), "k"))

	leftovers, err := os.ReadDir(s.CacheDir())
	require.NoError(t, err)
	assert.Empty(t, leftovers, "no staging dir or entry may be left behind")
}

func TestSave_InvalidInput(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := newTestStore(t)
	writeFile(t, s.WorkDir(), "a", "a")
	_, err := s.Save(ctx, "k", []string{"a"})
	require.NoError(t, err)

	_, err = s.Save(ctx, "", []string{"a"})
	assert.ErrorIs(t, err, ErrInvalidKey)

	for _, p := range []string{"../a", "/etc/passwd", ""} {
		_, err = s.Save(ctx, "k", []string{p})
		assert.ErrorIs(t, err, ErrInvalidPath, "path %q", p)
	}

	// Rejected before the old entry is touched
	assert.FileExists(t, filepath.Join(s.CacheDir(), "k", "a"))
}

func TestSave_NoPathsCreatesEmptyEntry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := newTestStore(t)
	res, err := s.Save(ctx, "empty", nil)
	require.NoError(t, err)
	assert.Zero(t, res.Files)
	assert.DirExists(t, filepath.Join(s.CacheDir(), "empty"))

	restored, err := s.Restore(ctx, []string{"empty"})
	require.NoError(t, err)
	assert.True(t, restored.Found)
	assert.Zero(t, restored.Files)
}

func TestSave_OverlappingPaths(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := newTestStore(t)
	writeFile(t, s.WorkDir(), "dir/sub/f", "f")

	res, err := s.Save(ctx, "k", []string{"dir", "dir/sub", "dir/sub/f"})
	require.NoError(t, err)
	assert.Equal(t, "f", readFile(t, s.CacheDir(), "k/dir/sub/f"))
	assert.Equal(t, 3, res.Files, "the file is copied once per listing")
}

func TestSave_WorkDirSkipsCacheDir(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := newTestStore(t)
	writeFile(t, s.WorkDir(), "src/main.go", "package main")
	writeFile(t, s.WorkDir(), "a", "a")
	_, err := s.Save(ctx, "old", []string{"a"})
	require.NoError(t, err)

	_, err = s.Save(ctx, "all", []string{"."})
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(s.CacheDir(), "all", "src", "main.go"))
	assert.NoDirExists(t, filepath.Join(s.CacheDir(), "all", ".cache"))
}

func TestSaveRestore_Symlinks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := newTestStore(t)
	writeFile(t, s.WorkDir(), "target.txt", "target")
	require.NoError(t, os.Symlink("target.txt", filepath.Join(s.WorkDir(), "link")))
	require.NoError(t, os.Symlink("does-not-exist", filepath.Join(s.WorkDir(), "dangling")))

	_, err := s.Save(ctx, "k", []string{"link", "dangling"})
	require.NoError(t, err)

	cached, err := os.Readlink(filepath.Join(s.CacheDir(), "k", "link"))
	require.NoError(t, err)
	assert.Equal(t, "target.txt", cached)

	require.NoError(t, os.Remove(filepath.Join(s.WorkDir(), "link")))
	writeFile(t, s.WorkDir(), "dangling", "regular file in the way")

	_, err = s.Restore(ctx, []string{"k"})
	require.NoError(t, err)

	got, err := os.Readlink(filepath.Join(s.WorkDir(), "link"))
	require.NoError(t, err)
	assert.Equal(t, "target.txt", got)

	got, err = os.Readlink(filepath.Join(s.WorkDir(), "dangling"))
	require.NoError(t, err)
	assert.Equal(t, "does-not-exist", got)
}

func TestSaveRestore_PreservesMetadata(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := newTestStore(t)
	writeFile(t, s.WorkDir(), "bin/tool", "#!/bin/sh")
	writeFile(t, s.WorkDir(), "ro/data", "data")

	tool := filepath.Join(s.WorkDir(), "bin/tool")
	require.NoError(t, os.Chmod(tool, 0o755))
	mtime := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, os.Chtimes(tool, mtime, mtime))

	ro := filepath.Join(s.WorkDir(), "ro")
	require.NoError(t, os.Chmod(filepath.Join(ro, "data"), 0o444))
	require.NoError(t, os.Chmod(ro, 0o555))
	t.Cleanup(func() { _ = removeTree(s.WorkDir()) })

	_, err := s.Save(ctx, "k", []string{"bin", "ro"})
	require.NoError(t, err)

	// Saving again must clear the read-only entry
	_, err = s.Save(ctx, "k", []string{"bin", "ro"})
	require.NoError(t, err)

	require.NoError(t, os.Chmod(ro, 0o755))
	require.NoError(t, os.RemoveAll(filepath.Join(s.WorkDir(), "bin")))
	require.NoError(t, os.RemoveAll(ro))

	_, err = s.Restore(ctx, []string{"k"})
	require.NoError(t, err)

	info, err := os.Stat(tool)
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0o755), info.Mode().Perm())
	assert.True(t, info.ModTime().Equal(mtime), "mtime = %v, want %v", info.ModTime(), mtime)

	info, err = os.Stat(ro)
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0o555), info.Mode().Perm())

	// Restoring over a read-only file replaces it
	require.NoError(t, os.Chmod(tool, 0o444))
	_, err = s.Restore(ctx, []string{"k"})
	require.NoError(t, err)

	info, err = os.Stat(tool)
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0o755), info.Mode().Perm())
}

func TestSaveRestore_ReadOnlyDirTwice(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	t.Parallel()
	ctx := context.Background()

	s := newTestStore(t)
	writeFile(t, s.WorkDir(), "mod/pkg/data", "v1")

	mod := filepath.Join(s.WorkDir(), "mod")
	pkg := filepath.Join(mod, "pkg")
	require.NoError(t, os.Chmod(filepath.Join(pkg, "data"), 0o444))
	require.NoError(t, os.Chmod(pkg, 0o555))
	require.NoError(t, os.Chmod(mod, 0o555))
	t.Cleanup(func() { _ = removeTree(s.WorkDir()) })

	_, err := s.Save(ctx, "gomod", []string{"mod"})
	require.NoError(t, err)

	// The tree is still in place and read-only, as after a first restore
	for range 2 {
		res, err := s.Restore(ctx, []string{"gomod"})
		require.NoError(t, err)
		assert.True(t, res.Found)
	}

	assert.Equal(t, "v1", readFile(t, s.WorkDir(), "mod/pkg/data"))
	for _, dir := range []string{mod, pkg} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.Equal(t, fs.FileMode(0o555), info.Mode().Perm(), dir)
	}
	info, err := os.Stat(filepath.Join(pkg, "data"))
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0o444), info.Mode().Perm())
}

func TestSave_NestedKeyRejected(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := newTestStore(t)
	writeFile(t, s.WorkDir(), "f", "f")
	writeFile(t, s.WorkDir(), "g", "g")

	_, err := s.Save(ctx, "team", []string{"f"})
	require.NoError(t, err)

	_, err = s.Save(ctx, "team/deps", []string{"g"})
	require.ErrorIs(t, err, ErrInvalidKey)
	_, err = s.Restore(ctx, []string{"team/deps"})
	require.ErrorIs(t, err, ErrInvalidKey)

	require.NoError(t, os.Remove(filepath.Join(s.WorkDir(), "f")))
	require.NoError(t, os.Remove(filepath.Join(s.WorkDir(), "g")))

	_, err = s.Restore(ctx, []string{"team"})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(s.WorkDir(), "f"))
	assert.NoFileExists(t, filepath.Join(s.WorkDir(), "g"))
	assert.NoDirExists(t, filepath.Join(s.WorkDir(), "deps"))

	entries, err := s.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "team", entries[0].Key)
	assert.Equal(t, 1, entries[0].Files)
}

func TestSave_Cancelled(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	writeFile(t, s.WorkDir(), "a", "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Save(ctx, "k", []string{"a"})
	require.ErrorIs(t, err, context.Canceled)
	assert.NoDirExists(t, filepath.Join(s.CacheDir(), "k"))
}

func TestStore_Progress(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var seen []string
	s := newTestStore(t, WithProgress(func(rel string) {
		seen = append(seen, rel)
	}))
	writeFile(t, s.WorkDir(), "d/f", "f")

	_, err := s.Save(ctx, "k", []string{"d"})
	require.NoError(t, err)
	assert.Equal(t, []string{"d", filepath.Join("d", "f")}, seen)
}

func TestStore_LogsToContextLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ctx := log.WithLogger(context.Background(), log.New(&buf, true, false))

	s := newTestStore(t)
	_, err := s.Restore(ctx, []string{"nope"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "cache miss key=nope")
}

func TestChecksum(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := newTestStore(t)
	writeFile(t, s.WorkDir(), "go.sum", "sum")
	writeFile(t, s.WorkDir(), "go.mod", "module x")

	got, err := s.Checksum(ctx, []string{"go.sum", "go.mod"})
	require.NoError(t, err)

	want, err := digest.Combined(ctx, []string{
		filepath.Join(s.WorkDir(), "go.mod"),
		filepath.Join(s.WorkDir(), "go.sum"),
	})
	require.NoError(t, err)
	assert.Equal(t, want, got)

	abs, err := s.Checksum(ctx, []string{filepath.Join(s.WorkDir(), "go.mod"), "go.sum"})
	require.NoError(t, err)
	assert.Equal(t, want, abs)

	_, err = s.Checksum(ctx, []string{"missing"})
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestEntries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := newTestStore(t)

	entries, err := s.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries, "missing cache dir has no entries")

	writeFile(t, s.WorkDir(), "a", "aaaa")
	writeFile(t, s.WorkDir(), "d/b", "bb")
	_, err = s.Save(ctx, "beta", []string{"a", "d"})
	require.NoError(t, err)
	_, err = s.Save(ctx, "alpha", []string{"a"})
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(s.CacheDir(), stagingPrefix+"x-1"), 0o755))
	writeFile(t, s.CacheDir(), "stray-file", "x")

	entries, err = s.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "alpha", entries[0].Key)
	assert.Equal(t, 1, entries[0].Files)
	assert.EqualValues(t, 4, entries[0].Bytes)

	assert.Equal(t, "beta", entries[1].Key)
	assert.Equal(t, 2, entries[1].Files)
	assert.EqualValues(t, 6, entries[1].Bytes)
	assert.Equal(t, filepath.Join(s.CacheDir(), "beta"), entries[1].Path)
}
