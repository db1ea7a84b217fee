package recipe

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/crater-build/crater/internal/profile"
)

// Env is the expression environment visible to `{{ }}` interpolation
// and conditional section keys. basedir anchors Patch and ReadFile to
// the extracted source tree.
type Env struct {
	Name       string            `expr:"name"`
	Version    string            `expr:"version"`
	URL        string            `expr:"url"`
	BuildType  string            `expr:"build_type"`
	Arch       string            `expr:"arch"`
	Compiler   string            `expr:"compiler"`
	Std        string            `expr:"std"`
	TargetOS   string            `expr:"target_os"`
	TargetArch string            `expr:"target_arch"`
	Environ    map[string]string `expr:"environ"`
	basedir    string
}

// NewEnv builds the environment for a profile. basedir is the source
// staging directory patches apply against.
func NewEnv(basedir string, prof profile.Profile) Env {
	environ := make(map[string]string)
	for _, e := range os.Environ() {
		if i := strings.Index(e, "="); i >= 0 {
			environ[e[:i]] = e[i+1:]
		}
	}

	return Env{
		BuildType:  prof.BuildType.String(),
		Arch:       prof.Arch,
		Compiler:   prof.Compiler,
		Std:        prof.Std,
		TargetOS:   runtime.GOOS,
		TargetArch: runtime.GOARCH,
		Environ:    environ,
		basedir:    basedir,
	}
}

func (env Env) withIdentity(name, version, url string) Env {
	env.Name = name
	env.Version = version
	env.URL = url
	return env
}

// resolve anchors a recipe-supplied path to the source staging
// directory, rejecting anything that would land outside it.
func (env Env) resolve(path string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(path))
	if !filepath.IsLocal(cleaned) {
		return "", fmt.Errorf("path %q is outside of source directory %q", path, env.basedir)
	}
	return filepath.Join(env.basedir, cleaned), nil
}

// Patch applies a unified patch text to a file under the source
// staging directory. It reports whether any hunk applied.
func (env Env) Patch(path, patchText string) (bool, error) {
	fullPath, err := env.resolve(path)
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return false, err
	}
	origText := string(data)

	dmp := diffmatchpatch.New()
	patches, err := dmp.PatchFromText(patchText)
	if err != nil {
		return false, fmt.Errorf("parse patch for %s: %w", path, err)
	}
	patchedText, results := dmp.PatchApply(patches, origText)

	applied := false
	for _, ok := range results {
		if ok {
			applied = true
			break
		}
	}
	if !applied {
		return false, nil // nothing was applied, nothing to write
	}

	if err := os.WriteFile(fullPath, []byte(patchedText), 0644); err != nil {
		return false, err
	}
	return true, nil
}

// ReadFile reads a file under the source staging directory.
func (env Env) ReadFile(path string) (string, error) {
	fullPath, err := env.resolve(path)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", err
	}

	return string(data), nil
}
