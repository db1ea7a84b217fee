// Package builder runs the pipeline: acquire sources, configure the
// native build, run it, and stage the artifacts into the package
// output layout. Stages run strictly in order and the first failure
// aborts the invocation; partial staging state is left in place for
// inspection.
package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/crater-build/crater/internal/cache"
	"github.com/crater-build/crater/internal/cmake"
	"github.com/crater-build/crater/internal/fetch"
	"github.com/crater-build/crater/internal/msg"
	"github.com/crater-build/crater/internal/profile"
	"github.com/crater-build/crater/internal/recipe"
	"github.com/crater-build/crater/internal/stage"
	"github.com/crater-build/crater/internal/toolchain"
)

// Builder holds one invocation: a parsed recipe, the build profile and
// the invocation root the canonical src/, build/ and package/
// directories live under.
type Builder struct {
	Recipe  *recipe.Recipe
	Profile profile.Profile

	recipeDir string
	root      string
	store     *cache.Store
}

// New parses the recipe in dir and prepares an invocation rooted at
// root (dir itself when root is empty). versionOverride, if non-empty,
// replaces the recipe's version before interpolation.
func New(dir string, prof profile.Profile, root, versionOverride string) (*Builder, error) {
	if root == "" {
		root = dir
	}

	env := recipe.NewEnv(filepath.Join(root, "src"), prof)
	rcp, err := recipe.ParseFile(filepath.Join(dir, recipe.Filename), env, versionOverride)
	if err != nil {
		return nil, err
	}

	store, err := cache.Default()
	if err != nil {
		return nil, err
	}

	return &Builder{
		Recipe:    rcp,
		Profile:   prof,
		recipeDir: dir,
		root:      root,
		store:     store,
	}, nil
}

func (b *Builder) SourceDir() string  { return filepath.Join(b.root, "src") }
func (b *Builder) BuildDir() string   { return filepath.Join(b.root, "build") }
func (b *Builder) PackageDir() string { return filepath.Join(b.root, "package") }

// Source acquires the upstream tree into the source staging directory
// and applies the recipe's patches.
func (b *Builder) Source(ctx context.Context) error {
	if err := os.MkdirAll(b.root, 0o755); err != nil {
		return err
	}
	if err := fetch.Fetch(ctx, b.Recipe, b.SourceDir(), b.store); err != nil {
		return err
	}
	return b.applyPatches()
}

func (b *Builder) applyPatches() error {
	if len(b.Recipe.Source.Patches) == 0 {
		return nil
	}

	env := recipe.NewEnv(b.SourceDir(), b.Profile)
	for _, p := range b.Recipe.Source.Patches {
		text, err := os.ReadFile(filepath.Join(b.recipeDir, p.File))
		if err != nil {
			return fmt.Errorf("read patch %s: %w", p.File, err)
		}
		msg.Step("Patching", "%s", p.Target)
		applied, err := env.Patch(p.Target, string(text))
		if err != nil {
			return err
		}
		if !applied {
			return fmt.Errorf("patch %s did not apply to %s", p.File, p.Target)
		}
	}
	return nil
}

// cmake builds the configured wrapper. Construction is pure so
// Configure and Build agree on generator and build type.
func (b *Builder) cmake() *cmake.CMake {
	cm := cmake.New(b.SourceDir(), b.BuildDir())
	cm.BuildType(b.Profile.BuildType.String())

	generator := b.Recipe.Build.Generator
	if generator == "" {
		generator = toolchain.DefaultGenerator()
	}
	if generator != "" {
		cm.Generator(generator)
	}

	if std := b.std(); std != "" {
		cm.Define("CMAKE_CXX_STANDARD", std)
		cm.DefineBool("CMAKE_CXX_STANDARD_REQUIRED", true)
	}
	if compiler := toolchain.FindCompiler(b.Profile.Compiler, true); compiler != "" {
		cm.Define("CMAKE_CXX_COMPILER", compiler)
	}
	if len(b.Recipe.Build.Cflags) > 0 {
		cm.Define("CMAKE_CXX_FLAGS", strings.Join(b.Recipe.Build.Cflags, " "))
	}
	for k, v := range b.Recipe.Build.Defines {
		cm.Define(k, v)
	}
	return cm
}

// std resolves the language standard: the profile wins over the recipe.
func (b *Builder) std() string {
	if b.Profile.Std != "" {
		return b.Profile.Std
	}
	return b.Recipe.Build.Std
}

// Configure creates the build staging directory and configures the
// generator against the acquired sources.
func (b *Builder) Configure(ctx context.Context) error {
	msg.Step("Configuring", "%s %s (%s)", b.Recipe.Package.Name, b.Recipe.Package.Version, b.Profile)
	return b.cmake().Configure(ctx)
}

// Build compiles inside the build staging directory.
func (b *Builder) Build(ctx context.Context) error {
	msg.Step("Building", "%s %s", b.Recipe.Package.Name, b.Recipe.Package.Version)
	return b.cmake().Build(ctx)
}

// Package stages artifacts into the package output layout and writes
// the manifest.
func (b *Builder) Package() error {
	msg.Step("Packaging", "%s %s", b.Recipe.Package.Name, b.Recipe.Package.Version)
	s := &stage.Stager{
		Recipe:    b.Recipe,
		Profile:   b.Profile,
		BuildDir:  b.BuildDir(),
		SourceDir: b.SourceDir(),
		OutDir:    b.PackageDir(),
	}
	if err := s.Run(); err != nil {
		return err
	}
	msg.Info("package layout written to %s", b.PackageDir())
	return nil
}

// Run executes the full pipeline.
func (b *Builder) Run(ctx context.Context) error {
	if err := b.Source(ctx); err != nil {
		return err
	}
	if err := b.Configure(ctx); err != nil {
		return err
	}
	if err := b.Build(ctx); err != nil {
		return err
	}
	return b.Package()
}
