// Package profile holds the externally supplied build settings that
// drive configuration and artifact selection.
package profile

import (
	"fmt"
	"strings"
)

// BuildType is a closed set: artifact staging branches on it, so
// anything outside the set is rejected at parse time.
type BuildType int

const (
	Release BuildType = iota
	Debug
)

func (t BuildType) String() string {
	switch t {
	case Release:
		return "Release"
	case Debug:
		return "Debug"
	default:
		return fmt.Sprintf("BuildType(%d)", int(t))
	}
}

// ParseBuildType accepts the type name case-insensitively.
func ParseBuildType(s string) (BuildType, error) {
	switch strings.ToLower(s) {
	case "release":
		return Release, nil
	case "debug":
		return Debug, nil
	}
	return 0, fmt.Errorf("unknown build type %q, expected one of: debug, release", s)
}

// Profile is read-only to the pipeline. Arch and Compiler are free-form
// identifiers understood by the underlying generator; Std is the C++
// language standard ("14", "17", ...).
type Profile struct {
	Arch      string
	Compiler  string
	Std       string
	BuildType BuildType
}

func (p Profile) String() string {
	parts := []string{"build_type=" + p.BuildType.String()}
	if p.Arch != "" {
		parts = append(parts, "arch="+p.Arch)
	}
	if p.Compiler != "" {
		parts = append(parts, "compiler="+p.Compiler)
	}
	if p.Std != "" {
		parts = append(parts, "std="+p.Std)
	}
	return strings.Join(parts, " ")
}
