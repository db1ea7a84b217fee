//go:build !windows

package toolchain

// DefaultGenerator returns "" outside Windows; CMake picks the native
// default (usually Unix Makefiles or Ninja) on its own.
func DefaultGenerator() string {
	return ""
}
