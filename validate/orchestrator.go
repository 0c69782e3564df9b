package validate

import (
	"context"

	"github.com/willibrandon/bundlekit/circularity"
	"github.com/willibrandon/bundlekit/closure"
	"github.com/willibrandon/bundlekit/resources"
)

// Orchestrator fuses the circularity, resource, and attribution checks
// into one Report. Each sub-check's violations are appended in a fixed
// order: circularity, resources, attributions.
type Orchestrator struct {
	Circularity    *circularity.Analyzer
	EntryPoints    []string
	DeclaredAssets map[string]string
}

// Run executes every configured check against root and returns the fused
// Report. Any hard failure raised by a sub-check (a *PipelineError or a
// tool-invocation error) aborts the run and is returned directly.
func (o *Orchestrator) Run(ctx context.Context, root *closure.Package, attributionViolations []Violation) (Report, error) {
	var report Report

	if o.Circularity != nil {
		cycles, err := o.Circularity.Analyze(ctx, root.RootDir, o.EntryPoints)
		if err != nil {
			return Report{}, err
		}
		for _, c := range cycles {
			report.Violations = append(report.Violations, Violation{
				Kind:    KindCircularImport,
				Message: c.Chain,
			})
		}
	}

	if o.DeclaredAssets != nil {
		report.Violations = append(report.Violations, resources.Resolve(root.RootDir, o.DeclaredAssets)...)
	}

	report.Violations = append(report.Violations, attributionViolations...)

	return report, nil
}

// Fix invokes every fixable violation's Fixer, in report order, stopping
// and returning the first error encountered. Violations without a Fixer
// are skipped. No fixer observes another fixer's side effects within the
// same Fix call; each is independent by construction.
func Fix(report Report) error {
	for _, v := range report.Violations {
		if !v.Fixable() {
			continue
		}
		if err := v.Fixer(); err != nil {
			return err
		}
	}
	return nil
}
