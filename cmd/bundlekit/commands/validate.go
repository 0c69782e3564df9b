package commands

import (
	"github.com/spf13/cobra"

	"github.com/willibrandon/bundlekit/cmd/bundlekit/output"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(console *output.Console) *cobra.Command {
	f := &sharedFlags{}
	var fix bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the dependency closure against licensing and resource policy",
		Long: `Resolves the package's dependency closure, classifies bundled vs.
externalized dependencies, and reports every policy violation found:
invalid or missing licenses, a stale or absent attributions document,
circular imports, and missing declared resources.

Examples:
  bundlekit validate
  bundlekit validate --fix
  bundlekit validate --package-dir ./my-package --allowed-license MIT`,
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

			report, err := p.Validate(ctx, prepared, fix)
			if err != nil {
				return reportFailure(console, err)
			}

			if err := flushMetrics(cmd); err != nil {
				return reportFailure(console, err)
			}

			if report.Success() {
				console.Success("No violations found")
				return nil
			}

			console.Warning("%d violation(s) found:", len(report.Violations))
			console.Println(report.Summary())

			if fix {
				console.Success("Fixable violations were corrected; re-run validate to confirm")
			}

			return errValidationFailed
		},
	}

	addSharedFlags(cmd, f)
	cmd.Flags().BoolVarP(&fix, "fix", "f", false, "Invoke each fixable violation's fixer before reporting")

	return cmd
}
