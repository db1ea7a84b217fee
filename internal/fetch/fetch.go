// Package fetch resolves a package identity to a populated source
// staging directory: download (or reuse a cached) archive, verify,
// extract, and relocate to the canonical path. Git sources clone
// directly. Retries, if desired, belong to the transport, not here.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/crater-build/crater/internal/cache"
	"github.com/crater-build/crater/internal/msg"
	"github.com/crater-build/crater/internal/recipe"
)

var (
	ErrSourceExists = errors.New("source staging directory is already populated")

	errNoSource = errors.New("recipe declares neither an archive template nor a git source")
)

var httpClient = &http.Client{
	Timeout: 60 * time.Second,
}

// Fetch populates destDir with the upstream source tree for the recipe.
// destDir must not be populated yet.
func Fetch(ctx context.Context, rcp *recipe.Recipe, destDir string, store *cache.Store) error {
	if populated, err := isPopulated(destDir); err != nil {
		return err
	} else if populated {
		return fmt.Errorf("%w: %s", ErrSourceExists, destDir)
	}

	if rcp.Source.Git != "" {
		msg.Step("Cloning", "%s", rcp.Source.Git)
		return cloneSource(ctx, rcp.Source.Git, destDir)
	}

	archiveURL := rcp.Package.Archive
	if archiveURL == "" {
		return errNoSource
	}

	archivePath, ok := store.Path(archiveURL)
	if !ok {
		var err error
		archivePath, err = download(ctx, archiveURL, store)
		if err != nil {
			return err
		}
	}

	if rcp.Source.SHA256 != "" {
		if err := verifyChecksum(archivePath, rcp.Source.SHA256); err != nil {
			return err
		}
	}

	return Extract(archivePath, destDir)
}

// download retrieves the archive into the store and returns its path.
func download(ctx context.Context, rawURL string, store *cache.Store) (string, error) {
	suffix, err := urlArchiveSuffix(rawURL)
	if err != nil {
		return "", err
	}

	msg.Step("Fetching", "%s", rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: unexpected status %s", rawURL, resp.Status)
	}

	name := uuid.New().String() + suffix
	f, err := store.CreateFile(name)
	if err != nil {
		return "", err
	}

	pb := msg.NewProgressBar(resp.ContentLength, 4, os.Stdout)
	_, err = io.Copy(f, io.TeeReader(resp.Body, pb))
	pb.Finish()
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}

	if err := store.Put(rawURL, name); err != nil {
		return "", err
	}
	archivePath, _ := store.Path(rawURL)
	return archivePath, nil
}

// urlArchiveSuffix extracts the recognized tarball suffix from the URL
// path, rejecting unsupported formats before any bytes move.
func urlArchiveSuffix(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	suffix := archiveSuffix(path.Base(u.Path))
	if suffix == "" {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedArchive, path.Base(u.Path))
	}
	return suffix, nil
}

func verifyChecksum(archivePath, want string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return err
	}

	got := hex.EncodeToString(hash.Sum(nil))
	if got != want {
		return fmt.Errorf("checksum mismatch for %s: got %s, want %s", archivePath, got, want)
	}
	return nil
}
