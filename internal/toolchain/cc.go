// Package toolchain resolves the host C/C++ toolchain: which compiler
// the build should use and, on Windows, which Visual Studio generator
// CMake should target.
package toolchain

import (
	"os"
	"os/exec"
)

var (
	commonCCompilers   = []string{"clang", "gcc", "icx", "icc", "tcc", "cl"}
	commonCxxCompilers = []string{"clang++", "g++", "clang", "gcc", "icpx", "icx", "icpc", "icc", "cl"}
)

// FindCompiler resolves the compiler to hand to CMake. An explicit
// preference (from the command line) wins, then CC/CXX from the
// environment, then the first common compiler present on PATH. Returns
// "" when nothing is found, in which case CMake does its own detection.
func FindCompiler(preferred string, needCxx bool) string {
	if preferred != "" {
		return preferred
	}

	cc := os.Getenv("CC")
	cxx := os.Getenv("CXX")

	if needCxx && cxx != "" {
		return cxx
	}
	if !needCxx && cc != "" {
		return cc
	}

	if cxx != "" {
		return cxx
	}
	if cc != "" {
		return cc
	}

	var compilersToTry []string
	if needCxx {
		compilersToTry = commonCxxCompilers
	} else {
		compilersToTry = commonCCompilers
	}

	for _, compiler := range compilersToTry {
		path, err := exec.LookPath(compiler)
		if err == nil {
			return path
		}
	}

	return ""
}
