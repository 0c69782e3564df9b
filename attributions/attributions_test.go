package attributions

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/willibrandon/bundlekit/closure"
	"github.com/willibrandon/bundlekit/licenseprobe"
	"github.com/willibrandon/bundlekit/validate"
)

// fakeInvoker answers license-probe invocations from an in-memory map
// keyed by each identifier in the "--packages" argument. When onlyDir is
// set, invocations in any other working directory report no entries.
type fakeInvoker struct {
	responses map[string]licenseprobe.Entry
	onlyDir   string
}

func (f *fakeInvoker) Run(_ context.Context, _, dir, _ string, args ...string) ([]byte, error) {
	if f.onlyDir != "" && dir != f.onlyDir {
		return []byte(`{}`), nil
	}

	var packages string
	for i, a := range args {
		if a == "--packages" && i+1 < len(args) {
			packages = args[i+1]
		}
	}

	raw := map[string]struct {
		Licenses    []string `json:"licenses"`
		LicenseFile string   `json:"licenseFile"`
		NoticeFile  string   `json:"noticeFile"`
	}{}

	ids := strings.Split(packages, ";")
	for _, id := range ids {
		for key, entry := range f.responses {
			if key == id {
				raw[id] = struct {
					Licenses    []string `json:"licenses"`
					LicenseFile string   `json:"licenseFile"`
					NoticeFile  string   `json:"noticeFile"`
				}{entry.Licenses, entry.LicenseFile, entry.NoticeFile}
			}
		}
	}

	return json.Marshal(raw)
}

func newTestEngine(t *testing.T, responses map[string]licenseprobe.Entry, cfg Config) *Engine {
	t.Helper()
	invoker := &fakeInvoker{responses: responses}
	probe := licenseprobe.New(invoker, "license-probe")
	return New(cfg, probe)
}

// TestScenarioA reproduces the acceptance scenario: dep1 carries a single
// unrecognized license, dep2 carries two. Both must surface as violations
// with the exact message format, and the attributions document is
// reported missing until flushed.
func TestScenarioA(t *testing.T) {
	root := t.TempDir()

	deps := []*closure.Package{
		{Name: "dep1", Version: "0.0.0", RootDir: filepath.Join(root, "node_modules", "dep1")},
		{Name: "dep2", Version: "0.0.0", RootDir: filepath.Join(root, "node_modules", "dep2")},
	}

	responses := map[string]licenseprobe.Entry{
		"dep1@0.0.0": {Licenses: []string{"UNKNOWN"}},
		"dep2@0.0.0": {Licenses: []string{"Apache-2.0", "MIT"}},
	}

	cfg := Config{
		PackageDir:       root,
		PackageName:      "my-package",
		Dependencies:     deps,
		DependenciesRoot: root,
		LicensesPath:     filepath.Join(root, "THIRD_PARTY_LICENSES"),
		AllowedLicenses:  []string{"MIT", "Apache-2.0"},
	}
	engine := newTestEngine(t, responses, cfg)

	attrs, versions, err := engine.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(attrs) != 2 {
		t.Fatalf("Collect() returned %d attributions, want 2", len(attrs))
	}
	if len(versions["dep1"]) != 1 || versions["dep1"][0] != "0.0.0" {
		t.Errorf("versions[dep1] = %v", versions["dep1"])
	}

	violations := engine.Validate(attrs, versions)

	var invalid, multiple, missing bool
	for _, v := range violations {
		switch v.Kind {
		case validate.KindInvalidLicense:
			invalid = true
			want := "Dependency dep1@0.0.0 has an invalid license: UNKNOWN"
			if v.Message != want {
				t.Errorf("invalid-license message = %q, want %q", v.Message, want)
			}
		case validate.KindMultipleLicense:
			multiple = true
			want := "Dependency dep2@0.0.0 has multiple licenses: Apache-2.0,MIT"
			if v.Message != want {
				t.Errorf("multiple-license message = %q, want %q", v.Message, want)
			}
		case validate.KindMissingLicenses:
			missing = true
		}
	}

	if !invalid {
		t.Error("expected an invalid-license violation for dep1")
	}
	if !multiple {
		t.Error("expected a multiple-license violation for dep2")
	}
	if !missing {
		t.Error("expected THIRD_PARTY_LICENSES is missing, since it has not been flushed yet")
	}

	if err := engine.Flush(attrs, versions); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	violations = engine.Validate(attrs, versions)
	for _, v := range violations {
		if v.Kind == validate.KindMissingLicenses || v.Kind == validate.KindOutdatedLicenses {
			t.Errorf("unexpected %s violation after Flush: %s", v.Kind, v.Message)
		}
	}
}

func TestValidate_OutdatedLicenses(t *testing.T) {
	root := t.TempDir()
	licensesPath := filepath.Join(root, "THIRD_PARTY_LICENSES")
	if err := os.WriteFile(licensesPath, []byte("stale content"), 0o644); err != nil {
		t.Fatal(err)
	}

	deps := []*closure.Package{
		{Name: "dep1", Version: "1.0.0", RootDir: filepath.Join(root, "node_modules", "dep1")},
	}
	responses := map[string]licenseprobe.Entry{
		"dep1@1.0.0": {Licenses: []string{"MIT"}},
	}
	cfg := Config{
		PackageDir:      root,
		PackageName:     "my-package",
		Dependencies:    deps,
		LicensesPath:    licensesPath,
		AllowedLicenses: []string{"MIT"},
	}
	engine := newTestEngine(t, responses, cfg)

	attrs, versions, err := engine.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	violations := engine.Validate(attrs, versions)
	var found bool
	for _, v := range violations {
		if v.Kind == validate.KindOutdatedLicenses {
			found = true
			if !v.Fixable() {
				t.Error("outdated-licenses must be fixable")
			}
		}
	}
	if !found {
		t.Error("expected outdated-licenses violation")
	}
}

func TestValidate_MissingAndOutdatedVersions(t *testing.T) {
	root := t.TempDir()
	deps := []*closure.Package{
		{Name: "dep1", Version: "1.0.0", RootDir: filepath.Join(root, "node_modules", "dep1")},
	}
	responses := map[string]licenseprobe.Entry{
		"dep1@1.0.0": {Licenses: []string{"MIT"}},
	}
	versionsPath := filepath.Join(root, "THIRD_PARTY_VERSIONS")
	cfg := Config{
		PackageDir:      root,
		PackageName:     "my-package",
		Dependencies:    deps,
		LicensesPath:    filepath.Join(root, "THIRD_PARTY_LICENSES"),
		VersionsPath:    versionsPath,
		AllowedLicenses: []string{"MIT"},
	}
	engine := newTestEngine(t, responses, cfg)

	attrs, versions, err := engine.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	violations := engine.Validate(attrs, versions)
	var missingVersions bool
	for _, v := range violations {
		if v.Kind == validate.KindMissingVersions {
			missingVersions = true
			want := "THIRD_PARTY_VERSIONS is missing"
			if v.Message != want {
				t.Errorf("message = %q, want %q", v.Message, want)
			}
		}
	}
	if !missingVersions {
		t.Fatal("expected missing-versions violation")
	}

	if err := os.WriteFile(versionsPath, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	violations = engine.Validate(attrs, versions)
	var outdatedVersions bool
	for _, v := range violations {
		if v.Kind == validate.KindOutdatedVersions {
			outdatedVersions = true
			want := "THIRD_PARTY_VERSIONS is outdated"
			if v.Message != want {
				t.Errorf("message = %q, want %q", v.Message, want)
			}
		}
	}
	if !outdatedVersions {
		t.Fatal("expected outdated-versions violation")
	}
}

func TestCollect_ExcludeFilter(t *testing.T) {
	root := t.TempDir()
	deps := []*closure.Package{
		{Name: "dep1", Version: "1.0.0", RootDir: filepath.Join(root, "node_modules", "dep1")},
		{Name: "internal-dep", Version: "1.0.0", RootDir: filepath.Join(root, "node_modules", "internal-dep")},
	}
	responses := map[string]licenseprobe.Entry{
		"dep1@1.0.0": {Licenses: []string{"MIT"}},
	}
	cfg := Config{
		PackageDir:      root,
		PackageName:     "my-package",
		Dependencies:    deps,
		LicensesPath:    filepath.Join(root, "THIRD_PARTY_LICENSES"),
		AllowedLicenses: []string{"MIT"},
		Exclude:         regexp.MustCompile("^internal-"),
	}
	engine := newTestEngine(t, responses, cfg)

	attrs, versions, err := engine.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(attrs) != 1 {
		t.Fatalf("Collect() returned %d attributions, want 1", len(attrs))
	}
	if _, ok := versions["internal-dep"]; ok {
		t.Error("excluded dependency leaked into versions index")
	}
}

func TestCollect_FallbackLookup(t *testing.T) {
	root := t.TempDir()
	depRoot := filepath.Join(root, "node_modules", "dep1")
	deps := []*closure.Package{
		{Name: "dep1", Version: "2.0.0", RootDir: depRoot},
	}
	// Bulk lookup (keyed by DependenciesRoot) has no entry; fallback lookup
	// (keyed by the package's own RootDir) succeeds.
	responses := map[string]licenseprobe.Entry{
		"dep1@2.0.0": {Licenses: []string{"ISC"}},
	}
	cfg := Config{
		PackageDir:       root,
		PackageName:      "my-package",
		Dependencies:     deps,
		DependenciesRoot: root,
		LicensesPath:     filepath.Join(root, "THIRD_PARTY_LICENSES"),
		AllowedLicenses:  []string{"ISC"},
	}
	invoker := &fakeInvoker{responses: responses, onlyDir: depRoot}
	engine := New(cfg, licenseprobe.New(invoker, "license-probe"))

	attrs, _, err := engine.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(attrs) != 1 || attrs[0].Licenses[0] != "ISC" {
		t.Fatalf("Collect() = %+v", attrs)
	}
}

func TestRender_EmptyClosure(t *testing.T) {
	cfg := Config{PackageName: "my-package"}
	engine := New(cfg, nil)
	if got := engine.Render(nil); got != "" {
		t.Errorf("Render(nil) = %q, want empty string", got)
	}
}

func TestRender_Deterministic(t *testing.T) {
	cfg := Config{PackageName: "my-package"}
	engine := New(cfg, nil)

	attrs := []Attribution{
		{PackageFqn: "b@1.0.0", Name: "b", Version: "1.0.0", URL: "https://www.npmjs.com/package/b/v/1.0.0", Licenses: []string{"MIT"}},
		{PackageFqn: "a@1.0.0", Name: "a", Version: "1.0.0", URL: "https://www.npmjs.com/package/a/v/1.0.0", Licenses: []string{"MIT"}},
	}

	first := engine.Render(attrs)
	second := engine.Render(attrs)
	if first != second {
		t.Error("Render is not deterministic across calls")
	}
	if !strings.Contains(first, "** b@1.0.0 - https://www.npmjs.com/package/b/v/1.0.0 | MIT") {
		t.Errorf("Render() missing expected header:\n%s", first)
	}
}
