package fetch

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

var ErrUnsupportedArchive = errors.New("unsupported archive format (expected a compressed tarball)")

// archiveSuffixes lists the tarball flavors Extract understands, in
// match order.
var archiveSuffixes = []string{
	".tar.gz", ".tgz",
	".tar.xz", ".txz",
	".tar.zst",
	".tar.lz4",
	".tar",
}

// archiveSuffix returns the recognized suffix of an archive name, or "".
func archiveSuffix(name string) string {
	for _, s := range archiveSuffixes {
		if strings.HasSuffix(name, s) {
			return s
		}
	}
	return ""
}

// decompressor wraps the raw archive stream according to the file name.
func decompressor(name string, r io.Reader) (io.Reader, error) {
	switch archiveSuffix(name) {
	case ".tar.gz", ".tgz":
		return gzip.NewReader(r)
	case ".tar.xz", ".txz":
		return xz.NewReader(r)
	case ".tar.zst":
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	case ".tar.lz4":
		return lz4.NewReader(r), nil
	case ".tar":
		return r, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedArchive, filepath.Base(name))
}

// safeJoin joins an archive entry name onto root, rejecting entries
// that would escape it.
func safeJoin(root, name string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(cleaned) || cleaned == ".." ||
		strings.HasPrefix(cleaned, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry %q escapes the extraction root", name)
	}
	return filepath.Join(root, cleaned), nil
}

// safeLink rejects symlink entries whose target, resolved relative to
// the entry's directory, lands outside the extraction root. Name-based
// checks alone are not enough: a link out of the root followed by an
// entry beneath the link would plant files elsewhere.
func safeLink(name, target string) error {
	if filepath.IsAbs(target) || filepath.IsAbs(filepath.FromSlash(target)) {
		return fmt.Errorf("archive symlink %q targets absolute path %q", name, target)
	}
	resolved := filepath.Join(filepath.Dir(filepath.FromSlash(name)), filepath.FromSlash(target))
	if !filepath.IsLocal(resolved) {
		return fmt.Errorf("archive symlink %q escapes the extraction root via %q", name, target)
	}
	return nil
}

// dirChecker verifies that directories entries are written into still
// resolve inside root, so nothing is created through a symlinked
// directory a hostile archive laid down earlier.
type dirChecker struct {
	resolvedRoot string
}

func newDirChecker(root string) (*dirChecker, error) {
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, err
	}
	return &dirChecker{resolvedRoot: resolved}, nil
}

func (c *dirChecker) check(dir string) error {
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return err
	}
	if resolved != c.resolvedRoot &&
		!strings.HasPrefix(resolved, c.resolvedRoot+string(os.PathSeparator)) {
		return fmt.Errorf("archive entry directory %q escapes the extraction root", dir)
	}
	return nil
}

func extractTarball(archivePath, root string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	stream, err := decompressor(archivePath, f)
	if err != nil {
		return err
	}

	checker, err := newDirChecker(root)
	if err != nil {
		return err
	}

	tr := tar.NewReader(stream)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("malformed archive %s: %w", filepath.Base(archivePath), err)
		}

		path, err := safeJoin(root, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(path, 0755); err != nil {
				return err
			}
			if err := checker.check(path); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return err
			}
			if err := checker.check(filepath.Dir(path)); err != nil {
				return err
			}
			// an earlier symlink entry with the same name must not
			// redirect the write
			if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
				if err := os.Remove(path); err != nil {
					return err
				}
			}
			out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, hdr.FileInfo().Mode().Perm())
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := safeLink(hdr.Name, hdr.Linkname); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return err
			}
			if err := checker.check(filepath.Dir(path)); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, path); err != nil {
				return err
			}
		default:
			// hardlinks, devices, pax headers: not part of source
			// distributions we consume
		}
	}
}

// relocateRoot moves the extracted tree at scratch to destDir. A single
// version-qualified top-level folder (the common case for release
// tarballs) becomes destDir itself, so downstream steps never see the
// versioned name.
func relocateRoot(scratch, destDir string) error {
	entries, err := os.ReadDir(scratch)
	if err != nil {
		return err
	}

	if len(entries) == 1 && entries[0].IsDir() {
		if err := os.Rename(filepath.Join(scratch, entries[0].Name()), destDir); err != nil {
			return err
		}
		return os.RemoveAll(scratch)
	}
	return os.Rename(scratch, destDir)
}

// Extract unpacks a supported tarball into destDir, which must not be
// populated yet.
func Extract(archivePath, destDir string) error {
	if populated, err := isPopulated(destDir); err != nil {
		return err
	} else if populated {
		return fmt.Errorf("%w: %s", ErrSourceExists, destDir)
	}

	scratch := destDir + ".extract"
	if err := os.RemoveAll(scratch); err != nil {
		return err
	}
	if err := os.MkdirAll(scratch, 0755); err != nil {
		return err
	}

	if err := extractTarball(archivePath, scratch); err != nil {
		return err
	}
	return relocateRoot(scratch, destDir)
}

func isPopulated(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return len(entries) > 0, nil
}
