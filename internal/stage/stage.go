// Package stage assembles the package output layout: compiled
// artifacts, public headers, the license text and, for debug builds,
// symbols and mirrored sources. Everything is expressed as copy rules
// so the set of staged files is a function of the build type, not of
// scattered conditionals.
package stage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/crater-build/crater/internal/msg"
	"github.com/crater-build/crater/internal/profile"
	"github.com/crater-build/crater/internal/recipe"
)

// Origin names the staging tree a rule reads from.
type Origin int

const (
	FromBuild Origin = iota
	FromSource
)

// Rule copies everything matching Pattern under Root (a subtree of the
// origin) into To inside the output layout. KeepPath preserves the
// relative path under Root; otherwise matches are flattened.
type Rule struct {
	Pattern  string
	From     Origin
	Root     string
	To       string
	KeepPath bool
}

// rules returns the copy rules for a build type. The base set applies
// to every build; Debug adds symbol files and a source mirror for
// debugger navigation.
func rules(rcp *recipe.Recipe, buildType profile.BuildType) []Rule {
	rs := []Rule{
		{Pattern: "**/*.a", From: FromBuild, To: "lib"},
		{Pattern: "**/*.lib", From: FromBuild, To: "lib"},
		{Pattern: "**/*.h", From: FromSource, Root: rcp.IncludeRoot(), To: "include", KeepPath: true},
		{Pattern: "**/*.hpp", From: FromSource, Root: rcp.IncludeRoot(), To: "include", KeepPath: true},
	}
	if rcp.Package.License != "" {
		rs = append(rs, Rule{Pattern: rcp.Package.License, From: FromSource, To: ".", KeepPath: true})
	}
	rs = append(rs, extraRules[buildType]...)
	return rs
}

// extraRules maps each build type to the rules applied on top of the
// base set.
var extraRules = map[profile.BuildType][]Rule{
	profile.Release: nil,
	profile.Debug: {
		{Pattern: "**/*.pdb", From: FromBuild, To: "lib"},
		{Pattern: "**/*.c", From: FromSource, Root: "{src}", To: "src", KeepPath: true},
		{Pattern: "**/*.cc", From: FromSource, Root: "{src}", To: "src", KeepPath: true},
		{Pattern: "**/*.cpp", From: FromSource, Root: "{src}", To: "src", KeepPath: true},
	},
}

// recipeRule converts a [[stage.rule]] entry.
func recipeRule(spec recipe.RuleSpec) (Rule, error) {
	r := Rule{Pattern: spec.Pattern, To: spec.To, KeepPath: spec.KeepPath}
	switch spec.From {
	case "build", "":
		r.From = FromBuild
	case "source":
		r.From = FromSource
	default:
		return Rule{}, fmt.Errorf("stage rule %q: unknown origin %q (want build or source)", spec.Pattern, spec.From)
	}
	return r, nil
}

// Stager copies build and source artifacts into the output layout.
type Stager struct {
	Recipe    *recipe.Recipe
	Profile   profile.Profile
	BuildDir  string
	SourceDir string
	OutDir    string
}

// Run applies the rule set for the profile's build type, then the
// recipe's extra rules, and writes the package manifest. Reruns over
// the same staging state produce an identical layout.
func (s *Stager) Run() error {
	all := rules(s.Recipe, s.Profile.BuildType)
	for _, spec := range s.Recipe.Stage.Rules {
		r, err := recipeRule(spec)
		if err != nil {
			return err
		}
		all = append(all, r)
	}

	if err := os.MkdirAll(s.OutDir, 0o755); err != nil {
		return err
	}

	for _, r := range all {
		if err := s.apply(r); err != nil {
			return err
		}
	}

	return s.writeManifest()
}

// apply copies one rule's matches. A rule that matches nothing is a
// no-op, not an error; recipes share rule tables across platforms that
// produce different artifact kinds.
func (s *Stager) apply(r Rule) error {
	root := s.BuildDir
	if r.From == FromSource {
		root = s.SourceDir
	}
	if sub := s.ruleRoot(r); sub != "" {
		root = filepath.Join(root, filepath.FromSlash(sub))
	}
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil
	}

	matches, err := doublestar.Glob(os.DirFS(root), r.Pattern, doublestar.WithFilesOnly())
	if err != nil {
		return fmt.Errorf("stage rule %q: %w", r.Pattern, err)
	}

	for _, match := range matches {
		rel := match
		if !r.KeepPath {
			rel = filepath.Base(match)
		}
		dest := filepath.Join(s.OutDir, filepath.FromSlash(r.To), filepath.FromSlash(rel))
		if err := copyFile(filepath.Join(root, filepath.FromSlash(match)), dest); err != nil {
			return fmt.Errorf("stage rule %q: %w", r.Pattern, err)
		}
	}

	if len(matches) > 0 {
		msg.Step("Staging", "%s (%d files)", r.Pattern, len(matches))
	}
	return nil
}

// ruleRoot resolves the builtin "{src}" placeholder; builtin tables are
// shared across recipes and cannot bake a recipe's subtree in.
func (s *Stager) ruleRoot(r Rule) string {
	if r.Root == "{src}" {
		return s.Recipe.SrcRoot()
	}
	return r.Root
}

// copyFile copies src to dest, creating parent directories. The source
// tree is read-only to staging; only the output layout is written.
func copyFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := out.ReadFrom(in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
