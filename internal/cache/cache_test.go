package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const url = "https://example.com/pkg-1.0.tar.gz"

func putArchive(t *testing.T, s *Store, url, name, content string) {
	t.Helper()
	f, err := s.CreateFile(name)
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, s.Put(url, name))
}

func TestStoreRoundTrip(t *testing.T) {
	base := t.TempDir()
	s, err := Open(base)
	require.NoError(t, err)

	_, ok := s.Path(url)
	assert.False(t, ok)

	putArchive(t, s, url, "abc.tar.gz", "archive-bytes")

	path, ok := s.Path(url)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(base, "abc.tar.gz"), path)

	// the index survives a reopen
	s2, err := Open(base)
	require.NoError(t, err)
	path, ok = s2.Path(url)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(base, "abc.tar.gz"), path)
}

func TestPathMissingFile(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	putArchive(t, s, url, "abc.tar.gz", "x")
	path, _ := s.Path(url)
	require.NoError(t, os.Remove(path))

	// an index entry without its file is treated as a miss
	_, ok := s.Path(url)
	assert.False(t, ok)
}

func TestRemove(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	putArchive(t, s, url, "abc.tar.gz", "x")

	removed, err := s.Remove(url)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Remove(url)
	require.NoError(t, err)
	assert.False(t, removed)

	_, ok := s.Path(url)
	assert.False(t, ok)
}

func TestClearAndSize(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	putArchive(t, s, url, "a.tar.gz", "12345")
	putArchive(t, s, url+".2", "b.tar.gz", "123")

	size, err := s.Size()
	require.NoError(t, err)
	assert.Greater(t, size, int64(8)) // archives plus the index itself

	require.NoError(t, s.Clear())
	assert.Empty(t, s.Entries())

	size, err = s.Size()
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestCopy(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	putArchive(t, s, url, "a.tar.gz", "archive-bytes")

	dest := filepath.Join(t.TempDir(), "out.tar.gz")
	require.NoError(t, s.Copy(dest, url))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "archive-bytes", string(data))

	assert.Error(t, s.Copy(dest, "https://example.com/unknown"))
}
