package fetch

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTarGz builds a .tar.gz fixture from name -> content pairs.
// Names ending in "/" become directories.
func writeTarGz(t *testing.T, path string, entries map[string]string) {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names) // parents before children

	for _, name := range names {
		content := entries[name]
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg}
		if name[len(name)-1] == '/' {
			hdr = &tar.Header{Name: name, Mode: 0o755, Typeflag: tar.TypeDir}
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(content))
			require.NoError(t, err)
		}
	}

	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestExtractStripsVersionedRoot(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "reckless-3.0.3.tar.gz")
	writeTarGz(t, archive, map[string]string{
		"reckless-3.0.3/":                       "",
		"reckless-3.0.3/CMakeLists.txt":         "project(reckless)",
		"reckless-3.0.3/reckless/include/":      "",
		"reckless-3.0.3/reckless/include/log.h": "#pragma once",
	})

	dest := filepath.Join(dir, "src")
	require.NoError(t, Extract(archive, dest))

	// the versioned folder name must not survive
	assert.NoFileExists(t, filepath.Join(dest, "reckless-3.0.3", "CMakeLists.txt"))
	assert.FileExists(t, filepath.Join(dest, "CMakeLists.txt"))
	assert.FileExists(t, filepath.Join(dest, "reckless", "include", "log.h"))
	assert.NoDirExists(t, dest+".extract")
}

func TestExtractFlatArchive(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "pkg.tar.gz")
	writeTarGz(t, archive, map[string]string{
		"a.txt": "a",
		"b.txt": "b",
	})

	dest := filepath.Join(dir, "src")
	require.NoError(t, Extract(archive, dest))
	assert.FileExists(t, filepath.Join(dest, "a.txt"))
	assert.FileExists(t, filepath.Join(dest, "b.txt"))
}

func TestExtractRefusesPopulatedDest(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "pkg.tar.gz")
	writeTarGz(t, archive, map[string]string{"a.txt": "a"})

	dest := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(dest, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "stale"), []byte("x"), 0o644))

	err := Extract(archive, dest)
	require.ErrorIs(t, err, ErrSourceExists)
}

func TestExtractRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.tar.gz")
	writeTarGz(t, archive, map[string]string{"../evil.txt": "gotcha"})

	err := Extract(archive, filepath.Join(dir, "src"))
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "evil.txt"))
}

// writeTarGzRaw builds a .tar.gz from explicit headers, for archives
// the map-based helper cannot express (symlinks, duplicate names).
func writeTarGzRaw(t *testing.T, path string, add func(tw *tar.Writer)) {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	add(tw)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func tarFile(t *testing.T, tw *tar.Writer, name, content string) {
	t.Helper()
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: name, Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg,
	}))
	_, err := tw.Write([]byte(content))
	require.NoError(t, err)
}

func tarSymlink(t *testing.T, tw *tar.Writer, name, target string) {
	t.Helper()
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: name, Mode: 0o777, Typeflag: tar.TypeSymlink, Linkname: target,
	}))
}

func TestExtractRejectsAbsoluteSymlink(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()

	archive := filepath.Join(dir, "evil.tar.gz")
	writeTarGzRaw(t, archive, func(tw *tar.Writer) {
		tarSymlink(t, tw, "pkg-1.0/link", outside)
		tarFile(t, tw, "pkg-1.0/link/pwn.txt", "gotcha")
	})

	err := Extract(archive, filepath.Join(dir, "src"))
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(outside, "pwn.txt"))
}

func TestExtractRejectsRelativeSymlinkEscape(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.tar.gz")
	writeTarGzRaw(t, archive, func(tw *tar.Writer) {
		tarSymlink(t, tw, "pkg-1.0/link", "../../outside")
	})

	err := Extract(archive, filepath.Join(dir, "src"))
	require.Error(t, err)
}

func TestExtractAllowsInternalSymlink(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "pkg.tar.gz")
	writeTarGzRaw(t, archive, func(tw *tar.Writer) {
		tarFile(t, tw, "pkg-1.0/real.txt", "contents")
		tarSymlink(t, tw, "pkg-1.0/alias.txt", "real.txt")
	})

	dest := filepath.Join(dir, "src")
	require.NoError(t, Extract(archive, dest))

	data, err := os.ReadFile(filepath.Join(dest, "alias.txt"))
	require.NoError(t, err)
	assert.Equal(t, "contents", string(data))
}

func TestExtractFileEntryReplacesEarlierSymlink(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "pkg.tar.gz")
	writeTarGzRaw(t, archive, func(tw *tar.Writer) {
		tarFile(t, tw, "pkg-1.0/real.txt", "original")
		tarSymlink(t, tw, "pkg-1.0/dup.txt", "real.txt")
		tarFile(t, tw, "pkg-1.0/dup.txt", "direct")
	})

	dest := filepath.Join(dir, "src")
	require.NoError(t, Extract(archive, dest))

	// the later file entry replaces the link rather than writing
	// through it
	real, err := os.ReadFile(filepath.Join(dest, "real.txt"))
	require.NoError(t, err)
	assert.Equal(t, "original", string(real))

	info, err := os.Lstat(filepath.Join(dest, "dup.txt"))
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular())
}

func TestArchiveSuffix(t *testing.T) {
	cases := map[string]string{
		"reckless-3.0.3.tar.gz":  ".tar.gz",
		"pkg.tgz":                ".tgz",
		"pkg.tar.xz":             ".tar.xz",
		"pkg.tar.zst":            ".tar.zst",
		"pkg.tar.lz4":            ".tar.lz4",
		"pkg.tar":                ".tar",
		"pkg.zip":                "",
		"v3.0.3.tar.gz.sig":      "",
		"reckless-3.0.3.tar.bz2": "",
	}
	for name, want := range cases {
		assert.Equal(t, want, archiveSuffix(name), "suffix of %s", name)
	}
}

func TestDecompressorUnsupported(t *testing.T) {
	_, err := decompressor("pkg.zip", bytes.NewReader(nil))
	require.ErrorIs(t, err, ErrUnsupportedArchive)
}

func TestSafeJoin(t *testing.T) {
	got, err := safeJoin("/root/x", "a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/root/x", "a", "b.txt"), got)

	for _, bad := range []string{"../a", "..", "a/../../b"} {
		_, err := safeJoin("/root/x", bad)
		assert.Error(t, err, "entry %q", bad)
	}
}
