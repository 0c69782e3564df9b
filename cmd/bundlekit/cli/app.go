// Package cli wires the bundlekit root command and its global flags.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/willibrandon/bundlekit/cmd/bundlekit/output"
)

var rootCmd = &cobra.Command{
	Use:   "bundlekit",
	Short: "Prepares a publishable, license-compliant bundle of a package",
	Long: `bundlekit analyzes a package's transitive dependency closure, validates
license and resource policy, generates an attributions document, and
produces a minimal self-contained bundle ready for publication.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

// Console is the global console used by every command.
var Console *output.Console

func init() {
	Console = output.DefaultConsole()

	rootCmd.PersistentFlags().StringP("config", "", "", "Path to bundlekit.config.json")
	rootCmd.PersistentFlags().StringP("verbosity", "", "normal", "Display verbosity (quiet, normal, detailed)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Accepted but has no effect: logs are always written as console text")
	rootCmd.PersistentFlags().String("metrics-out", "", "Write Prometheus metrics in text exposition format to this path")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// AddCommand registers a subcommand on the root command.
func AddCommand(cmd *cobra.Command) {
	rootCmd.AddCommand(cmd)
}

// GetRootCommand returns the root command, used by commands that need to
// read global persistent flags.
func GetRootCommand() *cobra.Command {
	return rootCmd
}
