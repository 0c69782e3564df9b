// Package attributions computes the canonical attributions document and
// versions index for a bundled closure, compares them to on-disk state,
// and flushes corrections. License metadata is generalized from a single
// manifest's declared license to a whole closure's worth of dependencies.
package attributions

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/willibrandon/bundlekit/closure"
	"github.com/willibrandon/bundlekit/licenseprobe"
	"github.com/willibrandon/bundlekit/validate"
)

// Attribution is one bundled dependency's identity, licensing metadata,
// and embeddable text.
type Attribution struct {
	PackageFqn  string // name@version
	Name        string
	Version     string
	URL         string
	Licenses    []string
	LicenseText string
	NoticeText  string
}

// VersionsIndex maps a package name to the versions of it present in the
// closure, in first-seen traversal order (not sorted by the engine).
type VersionsIndex map[string][]string

// Config holds the immutable inputs for one AttributionsEngine.
type Config struct {
	PackageDir       string
	PackageName      string
	Dependencies     []*closure.Package // the bundled closure
	DependenciesRoot string             // working directory passed to the bulk probe lookup
	LicensesPath     string
	AllowedLicenses  []string // SPDX identifiers, case-insensitive
	Exclude          *regexp.Regexp

	// VersionsPath, when set, causes versions to be emitted as a separate
	// file and attribution titles to omit the version suffix.
	VersionsPath string

	// EncodeVersionsSeparately controls whether Flush writes
	// <LicensesPath>.versions.json unconditionally when VersionsPath is
	// unset. Resolves the "open question" left ambiguous upstream: default
	// false, i.e. no unconditional sidecar.
	EncodeVersionsSeparately bool
}

// Engine is the AttributionsEngine.
type Engine struct {
	cfg   Config
	probe *licenseprobe.Probe
}

// New creates an Engine.
func New(cfg Config, probe *licenseprobe.Probe) *Engine {
	return &Engine{cfg: cfg, probe: probe}
}

// filteredDependencies applies the exclude regex, if any, against each
// dependency's name.
func (e *Engine) filteredDependencies() []*closure.Package {
	if e.cfg.Exclude == nil {
		return e.cfg.Dependencies
	}
	var out []*closure.Package
	for _, d := range e.cfg.Dependencies {
		if !e.cfg.Exclude.MatchString(d.Name) {
			out = append(out, d)
		}
	}
	return out
}

// Collect builds the attribution list and versions index for the
// (filtered) bundled closure. Dependencies excluded by the configured
// regex never reach either the attributions document or the versions
// index; the filter is applied before both renderings.
func (e *Engine) Collect(ctx context.Context) ([]Attribution, VersionsIndex, error) {
	deps := e.filteredDependencies()

	if len(deps) == 0 {
		return nil, VersionsIndex{}, nil
	}

	identifiers := make([]string, len(deps))
	for i, d := range deps {
		identifiers[i] = d.FQN()
	}

	bulk, err := e.probe.Lookup(ctx, e.cfg.DependenciesRoot, identifiers)
	if err != nil {
		return nil, nil, err
	}

	attributions := make([]Attribution, 0, len(deps))
	versions := VersionsIndex{}

	for _, d := range deps {
		entry, ok := bulk[d.FQN()]
		if !ok {
			// Fallback: probe the package's own directory. Handles
			// multiple major versions of the same package coexisting,
			// where the bulk lookup's working directory only surfaces one.
			fallback, err := e.probe.Lookup(ctx, d.RootDir, []string{d.FQN()})
			if err != nil {
				return nil, nil, err
			}
			entry, ok = fallback[d.FQN()]
			if !ok {
				return nil, nil, &validate.PipelineError{
					Code:    validate.CodeAttributionFailed,
					Message: fmt.Sprintf("license probe could not locate %s", d.FQN()),
				}
			}
		}

		attr := Attribution{
			PackageFqn: d.FQN(),
			Name:       d.Name,
			Version:    d.Version,
			Licenses:   entry.Licenses,
			URL:        e.url(d.Name, d.Version),
		}

		if entry.LicenseFile != "" && !strings.HasSuffix(strings.ToLower(entry.LicenseFile), ".md") {
			text, err := os.ReadFile(entry.LicenseFile)
			if err == nil {
				attr.LicenseText = normalizeLineEndings(string(text))
			}
		}
		if entry.NoticeFile != "" {
			text, err := os.ReadFile(entry.NoticeFile)
			if err == nil {
				attr.NoticeText = normalizeLineEndings(string(text))
			}
		}

		attributions = append(attributions, attr)
		versions[d.Name] = append(versions[d.Name], d.Version)
	}

	sort.Slice(attributions, func(i, j int) bool {
		return attributions[i].PackageFqn < attributions[j].PackageFqn
	})

	return attributions, versions, nil
}

func (e *Engine) url(name, version string) string {
	if e.cfg.VersionsPath != "" {
		return fmt.Sprintf("https://www.npmjs.com/package/%s", name)
	}
	return fmt.Sprintf("https://www.npmjs.com/package/%s/v/%s", name, version)
}

func normalizeLineEndings(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// Render produces the canonical attributions document. Empty closures
// render as the empty string.
func (e *Engine) Render(attributions []Attribution) string {
	if len(attributions) == 0 {
		return ""
	}

	var blocks []string
	for _, a := range attributions {
		title := a.PackageFqn
		if e.cfg.VersionsPath != "" {
			title = a.Name
		}

		firstLicense := ""
		if len(a.Licenses) > 0 {
			firstLicense = a.Licenses[0]
		}

		header := fmt.Sprintf("** %s - %s | %s", title, a.URL, firstLicense)

		body := a.NoticeText
		if body == "" {
			body = a.LicenseText
		}

		block := header
		if body != "" {
			block += "\n" + body
		}
		block += "\n----------------\n"

		blocks = append(blocks, block)
	}

	preamble := fmt.Sprintf("The %s package includes the following third-party software/licensing:\n\n", e.cfg.PackageName)
	return preamble + strings.Join(blocks, "\n")
}

// RenderVersionsJSON renders the versions index as two-space-indented JSON.
func RenderVersionsJSON(idx VersionsIndex) ([]byte, error) {
	if idx == nil {
		idx = VersionsIndex{}
	}
	return json.MarshalIndent(idx, "", "  ")
}

// Validate compares canonical artifacts to on-disk state and checks
// license-allow-list compliance, returning one Violation per finding.
// Fixable violations (missing/outdated licenses or versions) carry a
// Fixer that writes the canonical content when invoked.
func (e *Engine) Validate(attributions []Attribution, versions VersionsIndex) []validate.Violation {
	var violations []validate.Violation

	allowed := make(map[string]bool, len(e.cfg.AllowedLicenses))
	for _, l := range e.cfg.AllowedLicenses {
		allowed[strings.ToLower(l)] = true
	}

	for _, a := range attributions {
		switch len(a.Licenses) {
		case 0:
			violations = append(violations, validate.Violation{
				Kind:    validate.KindNoLicense,
				Message: fmt.Sprintf("Dependency %s has no license", a.PackageFqn),
			})
		case 1:
			if !allowed[strings.ToLower(a.Licenses[0])] {
				violations = append(violations, validate.Violation{
					Kind:    validate.KindInvalidLicense,
					Message: fmt.Sprintf("Dependency %s has an invalid license: %s", a.PackageFqn, a.Licenses[0]),
				})
			}
		default:
			violations = append(violations, validate.Violation{
				Kind:    validate.KindMultipleLicense,
				Message: fmt.Sprintf("Dependency %s has multiple licenses: %s", a.PackageFqn, strings.Join(a.Licenses, ",")),
			})
		}
	}

	document := e.Render(attributions)
	versionsJSON, _ := RenderVersionsJSON(versions)

	if v, ok := e.checkLicensesFile(document); ok {
		violations = append(violations, v)
	}

	if e.cfg.VersionsPath != "" {
		if v, ok := e.checkVersionsFile(versionsJSON); ok {
			violations = append(violations, v)
		}
	}

	return violations
}

func (e *Engine) checkLicensesFile(document string) (validate.Violation, bool) {
	name := filepath.Base(e.cfg.LicensesPath)

	existing, err := os.ReadFile(e.cfg.LicensesPath)
	if err != nil {
		return validate.Violation{
			Kind:    validate.KindMissingLicenses,
			Message: fmt.Sprintf("%s is missing", name),
			Fixer:   func() error { return e.flushLicenses(document) },
		}, true
	}

	if string(existing) != document {
		return validate.Violation{
			Kind:    validate.KindOutdatedLicenses,
			Message: fmt.Sprintf("%s is outdated", name),
			Fixer:   func() error { return e.flushLicenses(document) },
		}, true
	}

	return validate.Violation{}, false
}

func (e *Engine) checkVersionsFile(versionsJSON []byte) (validate.Violation, bool) {
	name := filepath.Base(e.cfg.VersionsPath)

	existing, err := os.ReadFile(e.cfg.VersionsPath)
	if err != nil {
		return validate.Violation{
			Kind:    validate.KindMissingVersions,
			Message: fmt.Sprintf("%s is missing", name),
			Fixer:   func() error { return e.flushVersions(versionsJSON) },
		}, true
	}

	if string(existing) != string(versionsJSON) {
		return validate.Violation{
			Kind:    validate.KindOutdatedVersions,
			Message: fmt.Sprintf("%s is outdated", name),
			Fixer:   func() error { return e.flushVersions(versionsJSON) },
		}, true
	}

	return validate.Violation{}, false
}

// Flush writes the canonical attributions document to LicensesPath. If
// VersionsPath is set, the versions index is written there. Otherwise, the
// versions sidecar is written next to LicensesPath with a ".versions.json"
// suffix only when EncodeVersionsSeparately is set, never unconditionally.
func (e *Engine) Flush(attributions []Attribution, versions VersionsIndex) error {
	document := e.Render(attributions)
	if err := e.flushLicenses(document); err != nil {
		return err
	}

	versionsJSON, err := RenderVersionsJSON(versions)
	if err != nil {
		return err
	}

	if e.cfg.VersionsPath != "" {
		return e.flushVersions(versionsJSON)
	}

	if e.cfg.EncodeVersionsSeparately {
		legacyPath := e.cfg.LicensesPath + ".versions.json"
		return os.WriteFile(legacyPath, versionsJSON, 0o644)
	}

	return nil
}

func (e *Engine) flushLicenses(document string) error {
	if err := os.MkdirAll(filepath.Dir(e.cfg.LicensesPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(e.cfg.LicensesPath, []byte(document), 0o644)
}

func (e *Engine) flushVersions(versionsJSON []byte) error {
	if err := os.MkdirAll(filepath.Dir(e.cfg.VersionsPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(e.cfg.VersionsPath, versionsJSON, 0o644)
}
