package commands

import (
	"github.com/spf13/cobra"

	"github.com/willibrandon/bundlekit/cmd/bundlekit/output"
)

// NewWriteCommand creates the write command.
func NewWriteCommand(console *output.Console) *cobra.Command {
	f := &sharedFlags{}
	var outDir string

	cmd := &cobra.Command{
		Use:   "write",
		Short: "Write the bundle directory without packing a tarball",
		Long: `Runs the bundler against the package's dependency closure, overlays the
result onto a copy of the package tree with the manifest rewritten and
the attributions document flushed, producing a bundle directory ready
for inspection or manual packing.

Examples:
  bundlekit write
  bundlekit write --out dist/bundle`,
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

			bundleDir, err := p.Write(ctx, prepared, outDir)
			if err != nil {
				return reportFailure(console, err)
			}

			if err := flushMetrics(cmd); err != nil {
				return reportFailure(console, err)
			}

			console.Success("Wrote bundle to %s", bundleDir)
			return nil
		},
	}

	addSharedFlags(cmd, f)
	cmd.Flags().StringVar(&outDir, "out", "dist", "Directory to write the bundle into")

	return cmd
}
