// crater init [name]
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/crater-build/crater/internal/msg"
	"github.com/crater-build/crater/internal/recipe"
)

func writefile(content string, elem ...string) {
	path := filepath.Join(elem...)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err = os.WriteFile(path, []byte(content), 0o644); err != nil {
			msg.Fatal("create file %s: %v", path, err)
		}
		fmt.Printf("%s file: %s\n", color.HiGreenString("Created"), filepath.ToSlash(path))
	}
}

func getProgramName() string {
	if len(os.Args) == 0 {
		return "crater"
	}
	basename := filepath.Base(os.Args[0])
	return strings.TrimSuffix(basename, filepath.Ext(basename))
}

// initIn scaffolds a recipe in an existing directory
func initIn(dir, name string) {
	writefile(`[package]
name = "`+name+`"
version = "1.0.0"
description = "This is where I package a library."
license = "LICENSE.txt"
url = "https://github.com/someone/`+name+`"
archive = "{{ url }}/archive/v{{ version }}.tar.gz"

[source]
# sha256 = ""
include = "`+name+`/include"
src = "`+name+`/src"

[build]
std = "11"

[build."build_type == 'Debug'".defines]
# MY_LIB_ENABLE_ASSERTS = "ON"
`, dir, recipe.Filename)

	writefile(`src/
build/
package/
`, dir, ".gitignore")

	programName := getProgramName()
	fmt.Printf("You can now do %s to build a release package, or %s for a debug one.\n",
		color.HiCyanString(programName+" "+dir), color.HiCyanString(programName+" "+dir+" -t debug"))
}

var initCmd = &cobra.Command{
	Use:   "init [name]",
	Short: "Create a recipe in the current directory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		initIn(".", args[0])
	},
}

var newCmd = &cobra.Command{
	Use:   "new [path]",
	Short: "Create a recipe in a new directory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := os.MkdirAll(args[0], 0o755); err != nil {
			msg.Fatal("mkdir %s: %v", args[0], err)
		}
		initIn(args[0], filepath.Base(args[0]))
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(newCmd)
}
