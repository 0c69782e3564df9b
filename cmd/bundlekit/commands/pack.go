package commands

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/willibrandon/bundlekit/cmd/bundlekit/output"
)

// NewPackCommand creates the pack command.
func NewPackCommand(console *output.Console) *cobra.Command {
	f := &sharedFlags{}
	var destination string

	cmd := &cobra.Command{
		Use:   "pack",
		Short: "Write the bundle and pack it into a publishable tarball",
		Long: `Runs the same steps as write, then invokes the packing tool to produce
"<name>-<version>.tgz" in the destination directory.

Examples:
  bundlekit pack
  bundlekit pack --destination ./out`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := buildPipeline(cmd, f)
			if err != nil {
				return reportFailure(console, err)
			}

			ctx := cmd.Context()
			prepared, err := p.Prepare(ctx)
			if err != nil {
				return reportFailure(console, err)
			}

			stagingDir, err := os.MkdirTemp("", "bundlekit-pack-*")
			if err != nil {
				return reportFailure(console, err)
			}
			defer os.RemoveAll(stagingDir)

			if err := os.MkdirAll(destination, 0o755); err != nil {
				return reportFailure(console, err)
			}

			tarballPath, err := p.Pack(ctx, prepared, stagingDir, destination)
			if err != nil {
				return reportFailure(console, err)
			}

			if err := flushMetrics(cmd); err != nil {
				return reportFailure(console, err)
			}

			console.Success("Packed %s", filepath.Clean(tarballPath))
			return nil
		},
	}

	addSharedFlags(cmd, f)
	cmd.Flags().StringVar(&destination, "destination", ".", "Directory to write the tarball into")

	return cmd
}
