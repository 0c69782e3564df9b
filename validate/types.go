// Package validate defines the Violation/ValidationReport vocabulary and
// the orchestrator that fuses circularity, resource, and attribution
// checks into one fix-capable report.
package validate

// Kind is the closed set of violation kinds the pipeline can produce.
type Kind string

const (
	KindInvalidLicense   Kind = "invalid-license"
	KindNoLicense        Kind = "no-license"
	KindMultipleLicense  Kind = "multiple-license"
	KindMissingLicenses  Kind = "missing-licenses"
	KindOutdatedLicenses Kind = "outdated-licenses"
	KindMissingVersions  Kind = "missing-versions"
	KindOutdatedVersions Kind = "outdated-versions"
	KindCircularImport   Kind = "circular-import"
	KindMissingResource  Kind = "missing-resource"
)

// Fixer is a bound action that corrects the condition a fixable Violation
// describes. Invoked at most once, by the orchestrator, in report order.
// No fixer observes another fixer's state.
type Fixer func() error

// Violation is a single policy finding.
type Violation struct {
	Kind    Kind
	Message string
	Fixer   Fixer // nil when not fixable
}

// Fixable reports whether this violation carries a fixer.
func (v Violation) Fixable() bool {
	return v.Fixer != nil
}

// Report is the fused result of one validation run.
type Report struct {
	Violations []Violation
}

// Success reports whether the report is empty.
func (r Report) Success() bool {
	return len(r.Violations) == 0
}

// Summary renders the user-visible failure payload: one "- kind: message"
// line per violation, in report order.
func (r Report) Summary() string {
	if len(r.Violations) == 0 {
		return ""
	}

	var b []byte
	for i, v := range r.Violations {
		if i > 0 {
			b = append(b, '\n')
		}
		b = append(b, '-', ' ')
		b = append(b, v.Kind...)
		b = append(b, ':', ' ')
		b = append(b, v.Message...)
	}
	return string(b)
}
