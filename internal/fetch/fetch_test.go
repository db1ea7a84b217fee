package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crater-build/crater/internal/cache"
	"github.com/crater-build/crater/internal/recipe"
)

// archiveServer serves one tar.gz under /reckless-3.0.3.tar.gz and
// counts hits.
func archiveServer(t *testing.T) (*httptest.Server, *int, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "reckless-3.0.3.tar.gz")
	writeTarGz(t, path, map[string]string{
		"reckless-3.0.3/":               "",
		"reckless-3.0.3/CMakeLists.txt": "project(reckless)",
	})
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	hits := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/reckless-3.0.3.tar.gz" {
			http.NotFound(w, r)
			return
		}
		hits++
		w.Write(data)
	}))
	t.Cleanup(ts.Close)

	sum := sha256.Sum256(data)
	return ts, &hits, hex.EncodeToString(sum[:])
}

func testRecipe(archiveURL, sha string) *recipe.Recipe {
	rcp := &recipe.Recipe{}
	rcp.Package.Name = "reckless"
	rcp.Package.Version = "3.0.3"
	rcp.Package.Archive = archiveURL
	rcp.Source.SHA256 = sha
	return rcp
}

func TestFetchDownloadsVerifiesAndExtracts(t *testing.T) {
	ts, hits, sum := archiveServer(t)
	store, err := cache.Open(t.TempDir())
	require.NoError(t, err)

	rcp := testRecipe(ts.URL+"/reckless-3.0.3.tar.gz", sum)
	dest := filepath.Join(t.TempDir(), "src")

	require.NoError(t, Fetch(context.Background(), rcp, dest, store))
	assert.FileExists(t, filepath.Join(dest, "CMakeLists.txt"))
	assert.Equal(t, 1, *hits)
}

func TestFetchReusesCachedArchive(t *testing.T) {
	ts, hits, sum := archiveServer(t)
	store, err := cache.Open(t.TempDir())
	require.NoError(t, err)

	rcp := testRecipe(ts.URL+"/reckless-3.0.3.tar.gz", sum)

	require.NoError(t, Fetch(context.Background(), rcp, filepath.Join(t.TempDir(), "src"), store))
	require.NoError(t, Fetch(context.Background(), rcp, filepath.Join(t.TempDir(), "src"), store))
	assert.Equal(t, 1, *hits, "second fetch should hit the download cache")
}

func TestFetchChecksumMismatch(t *testing.T) {
	ts, _, _ := archiveServer(t)
	store, err := cache.Open(t.TempDir())
	require.NoError(t, err)

	rcp := testRecipe(ts.URL+"/reckless-3.0.3.tar.gz", "deadbeef")
	err = Fetch(context.Background(), rcp, filepath.Join(t.TempDir(), "src"), store)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
}

func TestFetchHTTPError(t *testing.T) {
	ts, _, _ := archiveServer(t)
	store, err := cache.Open(t.TempDir())
	require.NoError(t, err)

	rcp := testRecipe(ts.URL+"/no-such-file.tar.gz", "")
	err = Fetch(context.Background(), rcp, filepath.Join(t.TempDir(), "src"), store)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status")
}

func TestFetchUnsupportedArchiveURL(t *testing.T) {
	store, err := cache.Open(t.TempDir())
	require.NoError(t, err)

	rcp := testRecipe("https://example.com/reckless.zip", "")
	err = Fetch(context.Background(), rcp, filepath.Join(t.TempDir(), "src"), store)
	require.ErrorIs(t, err, ErrUnsupportedArchive)
}

func TestFetchRefusesPopulatedDest(t *testing.T) {
	store, err := cache.Open(t.TempDir())
	require.NoError(t, err)

	dest := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dest, "stale"), []byte("x"), 0o644))

	err = Fetch(context.Background(), testRecipe("https://example.com/x.tar.gz", ""), dest, store)
	require.ErrorIs(t, err, ErrSourceExists)
}

func TestFetchNoSource(t *testing.T) {
	store, err := cache.Open(t.TempDir())
	require.NoError(t, err)

	err = Fetch(context.Background(), &recipe.Recipe{}, filepath.Join(t.TempDir(), "src"), store)
	require.ErrorIs(t, err, errNoSource)
}

func TestParseGitURL(t *testing.T) {
	cases := []struct {
		in   string
		want gitURL
	}{
		{"https://github.com/mattiasflodin/reckless", gitURL{cleanURL: "https://github.com/mattiasflodin/reckless.git"}},
		{"https://github.com/a/b@master", gitURL{cleanURL: "https://github.com/a/b.git", branch: "master"}},
		{"https://github.com/a/b#v3.0.3", gitURL{cleanURL: "https://github.com/a/b.git", commitOrTag: "v3.0.3"}},
		{"https://github.com/a/b@dev#12345abc", gitURL{cleanURL: "https://github.com/a/b.git", branch: "dev", commitOrTag: "12345abc"}},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, parseGitURL(c.in), "parseGitURL(%q)", c.in)
	}
}

func TestCloneSourceRejectsUnknownScheme(t *testing.T) {
	err := cloneSource(context.Background(), "svn:whatever", t.TempDir())
	require.ErrorIs(t, err, errIllegalGitSource)

	err = cloneSource(context.Background(), "", t.TempDir())
	require.ErrorIs(t, err, errIllegalGitSource)
}
