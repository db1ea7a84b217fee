// Package recipe parses Crater.toml, the file that names an upstream
// library, where its source archive lives, and how its build artifacts
// are staged.
package recipe

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/pelletier/go-toml/v2"
)

const Filename = "Crater.toml"

type Recipe struct {
	Package PackageSection `toml:"package"`
	Source  SourceSection  `toml:"source"`
	Build   BuildSection   `toml:"build"`
	Stage   StageSection   `toml:"stage"`
}

// PackageSection is the package identity: immutable for the lifetime of
// a build invocation. Archive is an expression template, e.g.
// `{{ url }}/archive/v{{ version }}.tar.gz`.
type PackageSection struct {
	Name        string `toml:"name"`
	Version     string `toml:"version"`
	Description string `toml:"description"`
	License     string `toml:"license"`
	URL         string `toml:"url"`
	Archive     string `toml:"archive"`
}

// SourceSection describes how the upstream tree is obtained and which
// of its subtrees hold public headers and library sources.
type SourceSection struct {
	// Git is an alternative to the archive template, e.g.
	// `gh:owner/repo@branch#tag` or `git:https://...`.
	Git     string      `toml:"git"`
	SHA256  string      `toml:"sha256"`
	Include string      `toml:"include"`
	Src     string      `toml:"src"`
	Patches []PatchSpec `toml:"patch"`
}

// PatchSpec applies a unified patch (relative to the recipe directory)
// to a file of the extracted source tree.
type PatchSpec struct {
	File   string `toml:"file"`
	Target string `toml:"target"`
}

// BuildSection configures the generator invocation.
type BuildSection struct {
	Generator string            `toml:"generator"`
	Std       string            `toml:"std"`
	Defines   map[string]string `toml:"defines"`
	Cflags    []string          `toml:"cflags"`
}

// StageSection carries extra copy rules on top of the builtin tables.
type StageSection struct {
	Rules []RuleSpec `toml:"rule"`
}

type RuleSpec struct {
	Pattern  string `toml:"pattern"`
	From     string `toml:"from"` // "build" or "source"
	To       string `toml:"to"`
	KeepPath bool   `toml:"keep-path"`
}

// IncludeRoot returns the header subtree inside the source staging
// directory, defaulting to `<name>/include`.
func (r *Recipe) IncludeRoot() string {
	if r.Source.Include != "" {
		return r.Source.Include
	}
	return r.Package.Name + "/include"
}

// SrcRoot returns the library-source subtree inside the source staging
// directory, defaulting to `<name>/src`.
func (r *Recipe) SrcRoot() string {
	if r.Source.Src != "" {
		return r.Source.Src
	}
	return r.Package.Name + "/src"
}

// mergeStructs merges the fields of the src struct into the dst struct
func mergeStructs(dst, src any) error {
	dstVal := reflect.ValueOf(dst)
	if dstVal.Kind() != reflect.Pointer || dstVal.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("dst must be a pointer to a struct")
	}

	dstElem := dstVal.Elem()
	srcVal := reflect.ValueOf(src)

	if srcVal.Kind() == reflect.Pointer {
		srcVal = srcVal.Elem()
	}

	if srcVal.Kind() != reflect.Struct {
		return fmt.Errorf("src must be a struct or a pointer to a struct")
	}

	if dstElem.Type() != srcVal.Type() {
		return fmt.Errorf("dst and src must be of the same struct type")
	}

	for i := range srcVal.NumField() {
		srcField := srcVal.Field(i)
		dstField := dstElem.Field(i)

		if !dstField.CanSet() {
			continue
		}

		switch dstField.Kind() {
		case reflect.Slice:
			if !srcField.IsNil() {
				dstField.Set(reflect.AppendSlice(dstField, srcField))
			}
		case reflect.Map:
			if !srcField.IsNil() {
				if dstField.IsNil() {
					dstField.Set(reflect.MakeMap(dstField.Type()))
				}
				for _, key := range srcField.MapKeys() {
					dstField.SetMapIndex(key, srcField.MapIndex(key))
				}
			}
		case reflect.Bool:
			dstField.SetBool(dstField.Bool() || srcField.Bool())
		default:
			if !srcField.IsZero() {
				dstField.Set(srcField)
			}
		}
	}

	return nil
}

func mustMarshal(v any) string {
	b, err := toml.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// unmarshalSection is a helper to parse sections without conditional logic
func unmarshalSection(rawCfg map[string]any, name string, dst any) error {
	if data, ok := rawCfg[name]; ok {
		if err := toml.Unmarshal([]byte(mustMarshal(data)), dst); err != nil {
			return fmt.Errorf("failed to parse [%s] section: %w", name, err)
		}
	}
	return nil
}

// unmarshalConditionalSection parses a section whose sub-tables may be
// keyed by a profile expression; matching sub-tables are merged in.
func unmarshalConditionalSection[T any](rawCfg map[string]any, name string, dst *T, env Env) error {
	sectionData, ok := rawCfg[name]
	if !ok {
		return nil
	}

	sectionMap, ok := sectionData.(map[string]any)
	if !ok {
		return fmt.Errorf("invalid [%s] section format: expected a table", name)
	}

	baseFields := make(map[string]any)
	conditionalFields := make(map[string]map[string]any)

	for key, val := range sectionMap {
		if subMap, ok := val.(map[string]any); ok {
			_, err := expr.Compile(key, expr.Env(env))
			if err == nil {
				conditionalFields[key] = subMap
			} else {
				baseFields[key] = val
			}
		} else {
			baseFields[key] = val
		}
	}

	if len(baseFields) > 0 {
		if err := toml.Unmarshal([]byte(mustMarshal(baseFields)), dst); err != nil {
			return fmt.Errorf("failed to parse base [%s] section: %w", name, err)
		}
	}

	// merge in a fixed order so overlapping matches resolve the same
	// way on every parse
	expressions := make([]string, 0, len(conditionalFields))
	for expression := range conditionalFields {
		expressions = append(expressions, expression)
	}
	sort.Strings(expressions)

	for _, expression := range expressions {
		condMap := conditionalFields[expression]
		program, err := expr.Compile(expression, expr.Env(env))
		if err != nil {
			return fmt.Errorf("failed to compile expression for [%s.%q]: %w", name, expression, err)
		}

		result, err := expr.Run(program, env)
		if err != nil {
			return fmt.Errorf("failed to run expression for [%s.%q]: %w", name, expression, err)
		}

		// merge sections if the result is true
		if matched, ok := result.(bool); !ok || !matched {
			continue
		}

		var condSection T
		if err := toml.Unmarshal([]byte(mustMarshal(condMap)), &condSection); err != nil {
			return fmt.Errorf("failed to parse conditional section [%s.%q]: %w", name, expression, err)
		}
		if err := mergeStructs(dst, condSection); err != nil {
			return fmt.Errorf("failed to merge conditional section [%s.%q]: %w", name, expression, err)
		}
	}

	return nil
}

var exprRegex = regexp.MustCompile(`\{\{(.+?)\}\}`)

// evaluateString finds and evaluates all {{...}} expressions in a string
func evaluateString(s string, env Env) (string, error) {
	matches := exprRegex.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	var builder strings.Builder
	lastIndex := 0

	for _, matchIndexes := range matches {
		fullMatchStart := matchIndexes[0]
		fullMatchEnd := matchIndexes[1]
		expressionStart := matchIndexes[2]
		expressionEnd := matchIndexes[3]

		builder.WriteString(s[lastIndex:fullMatchStart])

		expression := strings.TrimSpace(s[expressionStart:expressionEnd])
		program, err := expr.Compile(expression, expr.Env(env))
		if err != nil {
			return "", fmt.Errorf("failed to compile expression %q: %w", expression, err)
		}

		result, err := expr.Run(program, env)
		if err != nil {
			return "", fmt.Errorf("failed to run expression %q: %w", expression, err)
		}

		builder.WriteString(fmt.Sprintf("%v", result))
		lastIndex = fullMatchEnd
	}

	builder.WriteString(s[lastIndex:])

	return builder.String(), nil
}

// processExpressions recursively walks the parsed TOML data and evaluates expressions in strings
func processExpressions(data any, env Env) (any, error) {
	switch v := data.(type) {
	case map[string]any:
		for key, val := range v {
			processedVal, err := processExpressions(val, env)
			if err != nil {
				return nil, err
			}
			v[key] = processedVal
		}
		return v, nil
	case []any:
		for i, item := range v {
			processedItem, err := processExpressions(item, env)
			if err != nil {
				return nil, err
			}
			v[i] = processedItem
		}
		return v, nil
	case string:
		return evaluateString(v, env)
	default:
		return data, nil
	}
}

// Parse reads a recipe. The identity fields ([package]) are decoded
// first so that `{{ name }}`, `{{ version }}` and `{{ url }}` are
// available to expressions in the rest of the file; versionOverride, if
// non-empty, replaces the recipe's version before interpolation.
func Parse(rdr io.Reader, env Env, versionOverride string) (*Recipe, error) {
	var rawConfig map[string]any
	dec := toml.NewDecoder(rdr)
	if err := dec.Decode(&rawConfig); err != nil {
		if derr, ok := err.(*toml.DecodeError); ok {
			return nil, errors.New(derr.String())
		}
		return nil, err
	}

	rcp := new(Recipe)
	if err := unmarshalSection(rawConfig, "package", &rcp.Package); err != nil {
		return nil, err
	}
	if rcp.Package.Name == "" {
		return nil, errors.New("recipe has no package name")
	}
	if versionOverride != "" {
		rcp.Package.Version = versionOverride
	}
	env = env.withIdentity(rcp.Package.Name, rcp.Package.Version, rcp.Package.URL)

	processedConfig, err := processExpressions(rawConfig, env)
	if err != nil {
		return nil, fmt.Errorf("error processing expressions in recipe: %w", err)
	}
	rawConfig = processedConfig.(map[string]any)

	// re-read the identity so interpolated fields (archive, license)
	// land in their final form
	if err := unmarshalSection(rawConfig, "package", &rcp.Package); err != nil {
		return nil, err
	}
	if versionOverride != "" {
		rcp.Package.Version = versionOverride
	}
	if err := unmarshalConditionalSection(rawConfig, "source", &rcp.Source, env); err != nil {
		return nil, err
	}
	if err := unmarshalConditionalSection(rawConfig, "build", &rcp.Build, env); err != nil {
		return nil, err
	}
	if err := unmarshalConditionalSection(rawConfig, "stage", &rcp.Stage, env); err != nil {
		return nil, err
	}

	return rcp, nil
}

// ParseFile parses a recipe from a filepath.
func ParseFile(path string, env Env, versionOverride string) (*Recipe, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Parse(bufio.NewReader(f), env, versionOverride)
}
