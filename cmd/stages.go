// crater source [recipe dir], crater package [recipe dir]
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/crater-build/crater/internal/msg"
)

var sourceCmd = &cobra.Command{
	Use:   "source [recipe dir]",
	Short: "Fetch, verify and patch the upstream sources only",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		b := newBuilder(args)

		ctx, stop := signalContext()
		defer stop()

		if err := b.Source(ctx); err != nil {
			msg.Fatal("%v", err)
		}
		msg.Info("sources staged in %s", b.SourceDir())
	},
}

var packageCmd = &cobra.Command{
	Use:   "package [recipe dir]",
	Short: "Stage artifacts from an existing build into the package layout",
	Long:  `Stage artifacts from an existing build. Expects src/ and build/ to be populated by earlier source and build steps.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		b := newBuilder(args)
		if err := b.Package(); err != nil {
			msg.Fatal("%v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(sourceCmd)
	addBuildFlags(sourceCmd)

	rootCmd.AddCommand(packageCmd)
	addBuildFlags(packageCmd)
}
