package toolchain

import (
	"strings"

	"github.com/heaths/go-vssetup"
)

// DefaultGenerator maps the newest installed Visual Studio to the
// matching CMake generator name. Empty when no installation is found,
// letting CMake pick its own default.
func DefaultGenerator() string {
	instances, err := vssetup.Instances(false)
	if err != nil {
		return ""
	}

	newest := ""
	for _, instance := range instances {
		version, err := instance.InstallationVersion()
		instance.Close()
		if err != nil {
			continue
		}
		if version > newest {
			newest = version
		}
	}

	switch {
	case strings.HasPrefix(newest, "17."):
		return "Visual Studio 17 2022"
	case strings.HasPrefix(newest, "16."):
		return "Visual Studio 16 2019"
	}
	return ""
}
