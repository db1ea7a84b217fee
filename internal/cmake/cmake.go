// Package cmake wraps the cmake configure/build workflow against
// strictly separated source and build directories.
package cmake

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
)

// ErrBuildDirExists signals a prior incomplete or concurrent invocation:
// the build directory is created exclusively and never silently reused.
var ErrBuildDirExists = errors.New("build directory already exists")

type defineValue struct {
	value    string
	typeName string
}

// CMake drives CMake-based builds.
type CMake struct {
	sourceDir string
	buildDir  string
	generator string
	buildType string
	defines   map[string]defineValue
}

// New returns a ready-to-use CMake.
func New(sourceDir, buildDir string) *CMake {
	return &CMake{
		sourceDir: sourceDir,
		buildDir:  buildDir,
		defines:   make(map[string]defineValue),
	}
}

// Generator sets the CMake generator (e.g. "Ninja", "Unix Makefiles").
func (c *CMake) Generator(name string) { c.generator = name }

// BuildType sets CMAKE_BUILD_TYPE (e.g. "Release", "Debug").
func (c *CMake) BuildType(name string) { c.buildType = name }

// Define adds a -D<key>:STRING=<value> definition.
func (c *CMake) Define(key, value string) {
	c.defines[key] = defineValue{value: value, typeName: "STRING"}
}

// DefineBool adds a -D<key>:BOOL=ON/OFF definition.
func (c *CMake) DefineBool(key string, value bool) {
	v := "OFF"
	if value {
		v = "ON"
	}
	c.defines[key] = defineValue{value: v, typeName: "BOOL"}
}

// Configure creates the build directory exclusively and runs
// "cmake -S <source> -B <build>" with all configured options. Extra
// args are appended at the end. Nothing is written into the source
// directory.
func (c *CMake) Configure(ctx context.Context, args ...string) error {
	if err := os.Mkdir(c.buildDir, 0o755); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrBuildDirExists, c.buildDir)
		}
		return err
	}

	cmakeArgs := []string{"-S", c.sourceDir, "-B", c.buildDir}
	if c.generator != "" {
		cmakeArgs = append(cmakeArgs, "-G", c.generator)
	}
	if c.buildType != "" {
		c.Define("CMAKE_BUILD_TYPE", c.buildType)
	}
	cmakeArgs = append(cmakeArgs, c.definesArgs()...)
	cmakeArgs = append(cmakeArgs, args...)
	return c.run(ctx, "cmake", cmakeArgs)
}

// Build runs "cmake --build ." with the working directory scoped to the
// build directory. The previous working directory is restored on every
// exit path, including failure.
func (c *CMake) Build(ctx context.Context, args ...string) error {
	restore, err := pushd(c.buildDir)
	if err != nil {
		return err
	}
	defer restore()

	cmakeArgs := []string{"--build", "."}
	if c.buildType != "" {
		cmakeArgs = append(cmakeArgs, "--config", c.buildType)
	}
	cmakeArgs = append(cmakeArgs, args...)
	return c.run(ctx, "cmake", cmakeArgs)
}

// run invokes the tool with its diagnostics passed through unmodified.
func (c *CMake) run(ctx context.Context, name string, args []string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func (c *CMake) definesArgs() []string {
	if len(c.defines) == 0 {
		return nil
	}
	keys := make([]string, 0, len(c.defines))
	for k := range c.defines {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]string, 0, len(keys))
	for _, k := range keys {
		d := c.defines[k]
		args = append(args, "-D"+k+":"+d.typeName+"="+d.value)
	}
	return args
}
