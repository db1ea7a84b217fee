package stage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/crater-build/crater/internal/profile"
)

const ManifestFilename = "crater_manifest.json"

// Manifest is the surface downstream package managers consume. Library
// is the single logical name consumers link against, regardless of the
// physical static or import library produced for the platform.
type Manifest struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Library string `json:"library"`
	Include string `json:"include"`
	Src     string `json:"src,omitempty"`
}

func (s *Stager) writeManifest() error {
	m := Manifest{
		Name:    s.Recipe.Package.Name,
		Version: s.Recipe.Package.Version,
		Library: s.Recipe.Package.Name,
		Include: "include",
	}
	if s.Profile.BuildType == profile.Debug {
		m.Src = "src"
	}

	f, err := os.Create(filepath.Join(s.OutDir, ManifestFilename))
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
