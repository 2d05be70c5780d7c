// Package main implements the pssbuild CLI.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pssbuild",
	Short: "Pointer state subgraph builder",
	Long:  `pssbuild lowers a compiled module into its pointer state subgraph and reports what it finds.`,
}

func main() {
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("color", "auto", "colorize diagnostics (auto|on|off)")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress non-essential output")
	rootCmd.PersistentFlags().Bool("timings", false, "show phase timing information")
	rootCmd.PersistentFlags().Int("max-diagnostics", 4096, "maximum number of diagnostics to report")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
