// crater [recipe dir], crater build [recipe dir]
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/crater-build/crater/internal/builder"
	"github.com/crater-build/crater/internal/msg"
	"github.com/crater-build/crater/internal/profile"
)

var (
	flagArch      string
	flagCompiler  string
	flagStd       string
	flagVersion   string
	flagRoot      string
	flagBuildType EnumValue = NewEnumValue("release", map[string]string{
		"release": "Optimized build, no debug artifacts staged (default)",
		"debug":   "Stages debug symbols and a source mirror alongside the library",
	})
)

// signalContext is the context every pipeline stage runs under;
// Ctrl-C cancels in-flight downloads, clones and tool invocations.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// newBuilder assembles the profile from flags and parses the recipe in
// the target directory.
func newBuilder(args []string) *builder.Builder {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}

	buildType, err := profile.ParseBuildType(flagBuildType.Value())
	if err != nil {
		msg.Fatal("%v", err)
	}
	prof := profile.Profile{
		BuildType: buildType,
		Arch:      flagArch,
		Compiler:  flagCompiler,
		Std:       flagStd,
	}

	b, err := builder.New(dir, prof, flagRoot, flagVersion)
	if err != nil {
		msg.Fatal("%v", err)
	}
	return b
}

func doBuild(cmd *cobra.Command, args []string) {
	b := newBuilder(args)

	ctx, stop := signalContext()
	defer stop()

	if err := b.Run(ctx); err != nil {
		msg.Fatal("%v", err)
	}
}

var rootCmd = &cobra.Command{
	Use:   "crater [recipe dir]",
	Short: "Build upstream library packages from Crater.toml recipes",
	Long:  `Fetch an upstream source distribution, build it with CMake and stage the artifacts into a package layout.`,
	Args:  cobra.MinimumNArgs(1),
	Run:   doBuild,
}

var buildCmd = &cobra.Command{
	Use:   "build [recipe dir]",
	Short: "Run the full pipeline: source, configure, build, package",
	Long:  `Run the full pipeline. If no recipe dir is given, uses "."`,
	Args:  cobra.MaximumNArgs(1),
	Run:   doBuild,
}

func init() {
	addBuildFlags(rootCmd)

	// crater build subcommand
	rootCmd.AddCommand(buildCmd)
	addBuildFlags(buildCmd)
}

func addBuildFlags(cmd *cobra.Command) {
	cmd.Flags().VarP(&flagBuildType, "build-type", "t", "Build type, one of "+flagBuildType.HelpString())
	cmd.RegisterFlagCompletionFunc("build-type", flagBuildType.CompletionFunc())
	cmd.Flags().StringVarP(&flagArch, "arch", "a", "", "Target architecture handed to the recipe environment")
	cmd.Flags().StringVarP(&flagCompiler, "compiler", "c", "", "C++ compiler to hand to CMake (default: CC/CXX, then PATH probe)")
	cmd.Flags().StringVar(&flagStd, "std", "", "C++ language standard, e.g. 11 or 17 (overrides the recipe)")
	cmd.Flags().StringVarP(&flagVersion, "version", "v", "", "Override the recipe's package version")
	cmd.Flags().StringVar(&flagRoot, "root", "", "Invocation root for src/, build/ and package/ (default: recipe dir)")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
