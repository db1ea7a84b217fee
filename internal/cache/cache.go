// Package cache keeps downloaded source archives under the user cache
// directory so repeated invocations for the same URL skip the network.
package cache

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
)

const IndexFilename = "crater_downloads.json"

// Store maps archive URLs to file names inside its base directory.
//
// on windows: %LocalAppData%/crater/downloads
// on linux: ~/.cache/crater/downloads
type Store struct {
	basePath string
	entries  map[string]string
}

// Open loads (or initializes) a store rooted at basePath.
func Open(basePath string) (*Store, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, err
	}

	s := &Store{basePath: basePath, entries: make(map[string]string)}

	f, err := os.Open(filepath.Join(basePath, IndexFilename))
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := json.NewDecoder(bufio.NewReader(f)).Decode(&s.entries); err != nil {
		return nil, err
	}
	return s, nil
}

// Default opens the per-user store.
func Default() (*Store, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return nil, err
	}
	return Open(filepath.Join(cacheDir, "crater", "downloads"))
}

func (s *Store) save() error {
	f, err := os.Create(filepath.Join(s.basePath, IndexFilename))
	if err != nil {
		return err
	}
	defer f.Close()

	bufw := bufio.NewWriter(f)
	defer bufw.Flush()

	enc := json.NewEncoder(bufw)
	enc.SetIndent("", "  ")
	return enc.Encode(s.entries)
}

// Path returns the cached archive path for a URL, if any.
func (s *Store) Path(url string) (string, bool) {
	name, ok := s.entries[url]
	if !ok {
		return "", false
	}
	path := filepath.Join(s.basePath, name)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// CreateFile opens a new file inside the store directory for a download
// in progress. The caller records it with Put once complete.
func (s *Store) CreateFile(name string) (*os.File, error) {
	return os.Create(filepath.Join(s.basePath, name))
}

// Put records a completed download under its URL and persists the index.
func (s *Store) Put(url, name string) error {
	s.entries[url] = name
	return s.save()
}

// Entries returns a copy of the index.
func (s *Store) Entries() map[string]string {
	out := make(map[string]string, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// Remove drops a single entry and its file.
func (s *Store) Remove(url string) (bool, error) {
	name, ok := s.entries[url]
	if !ok {
		return false, nil
	}
	delete(s.entries, url)
	if err := os.Remove(filepath.Join(s.basePath, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	return true, s.save()
}

// Clear removes every cached archive and the index itself.
func (s *Store) Clear() error {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(s.basePath, e.Name())); err != nil {
			return err
		}
	}
	s.entries = make(map[string]string)
	return nil
}

// Size reports the total bytes held by the store.
func (s *Store) Size() (int64, error) {
	var total int64
	err := filepath.WalkDir(s.basePath, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// Copy copies a cached archive to an arbitrary destination path.
func (s *Store) Copy(destPath, url string) error {
	path, ok := s.Path(url)
	if !ok {
		return errors.New("archive not found in download cache")
	}

	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}
