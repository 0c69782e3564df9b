package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/willibrandon/bundlekit/bundleconfig"
	"github.com/willibrandon/bundlekit/bundler"
	"github.com/willibrandon/bundlekit/circularity"
	"github.com/willibrandon/bundlekit/licenseprobe"
)

// buildFixture lays out a minimal package with one bundled dependency and
// one runtime external, the shape exercised by Scenario A/F.
func buildFixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	write := func(rel, content string) {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	write("package.json", `{
		"name": "consumer",
		"version": "1.0.0",
		"main": "index.js",
		"dependencies": {"dep1": "^0.0.0", "react": "^18.0.0"}
	}`)
	write("index.js", "module.exports = {}")
	write("node_modules/dep1/package.json", `{"name": "dep1", "version": "0.0.0"}`)
	write("node_modules/dep1/index.js", "module.exports = {}")
	write("node_modules/react/package.json", `{"name": "react", "version": "18.0.0"}`)
	write("node_modules/react/index.js", "module.exports = {}")

	return root
}

func newTestPipeline(root string) *Pipeline {
	cfg := bundleconfig.Defaults()
	cfg.PackageDir = root
	cfg.Externals = bundleconfig.Externals{Runtime: []string{"react"}}
	cfg.AllowedLicenses = []string{"MIT"}

	invoker := &scriptedInvoker{}
	return newWithInvoker(cfg, invoker)
}

// scriptedInvoker answers every shell.Invoker-shaped call used across the
// pipeline's collaborators (probe, circularity, bundler, packer) from a
// fixed script keyed by the "tool" label.
type scriptedInvoker struct{}

func (s *scriptedInvoker) Run(_ context.Context, tool, _, _ string, _ ...string) ([]byte, error) {
	switch tool {
	case "probe":
		return []byte(`{"dep1@0.0.0":{"licenses":["MIT"]}}`), nil
	case "circularity":
		return []byte(`[]`), nil
	case "bundler":
		return []byte(`{"outputDir":"","entryFiles":["index.js"],"externalRefs":["react"]}`), nil
	default:
		return []byte(`{}`), nil
	}
}

// newWithInvoker constructs a Pipeline directly from a fake Invoker rather
// than a *shell.Adapter, for test isolation from os/exec.
func newWithInvoker(cfg bundleconfig.Config, invoker *scriptedInvoker) *Pipeline {
	p := New(cfg, nil, nil)
	p.probe = licenseprobe.New(invoker, cfg.LicenseProbeBinary)
	p.circularity = circularity.New(invoker, cfg.CircularityBinary)
	p.bundler = bundler.New(invoker, cfg.BundlerBinary)
	return p
}

func TestPrepareAndValidate_NoViolations(t *testing.T) {
	root := buildFixture(t)
	p := newTestPipeline(root)

	ctx := context.Background()
	prepared, err := p.Prepare(ctx)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	if len(prepared.Classification.Bundled) != 1 || prepared.Classification.Bundled[0].Name != "dep1" {
		t.Fatalf("Classification.Bundled = %+v", prepared.Classification.Bundled)
	}
	if len(prepared.Classification.RuntimeExternal) != 1 || prepared.Classification.RuntimeExternal[0].Name != "react" {
		t.Fatalf("Classification.RuntimeExternal = %+v", prepared.Classification.RuntimeExternal)
	}

	report, err := p.Validate(ctx, prepared, true)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	// First pass may report missing-licenses (not yet flushed); fix should
	// have corrected it.
	second, err := p.Validate(ctx, prepared, false)
	if err != nil {
		t.Fatalf("second Validate() error = %v", err)
	}
	if !second.Success() {
		t.Errorf("expected success after fix, got: %s (first pass: %s)", second.Summary(), report.Summary())
	}
}

func TestNew_AssignsDistinctRunIDs(t *testing.T) {
	root := buildFixture(t)
	a := newTestPipeline(root)
	b := newTestPipeline(root)

	if a.RunID() == "" {
		t.Fatal("RunID() should not be empty")
	}
	if a.RunID() == b.RunID() {
		t.Error("two Pipeline instances should not share a RunID")
	}
	if _, err := uuid.Parse(a.RunID()); err != nil {
		t.Errorf("RunID() = %q is not a valid UUID: %v", a.RunID(), err)
	}
}

func TestWrite_PreservesExternalInManifest(t *testing.T) {
	root := buildFixture(t)
	p := newTestPipeline(root)
	ctx := context.Background()

	prepared, err := p.Prepare(ctx)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	outDir := t.TempDir()
	if _, err := p.Write(ctx, prepared, outDir); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(outDir, "package.json"))
	if err != nil {
		t.Fatal(err)
	}

	var manifest struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		t.Fatal(err)
	}

	if _, ok := manifest.Dependencies["react"]; !ok {
		t.Error("external dependency react should survive in written package.json dependencies")
	}
	if _, ok := manifest.Dependencies["dep1"]; ok {
		t.Error("bundled dependency dep1 should not remain in dependencies")
	}
	if _, ok := manifest.DevDependencies["dep1"]; !ok {
		t.Error("bundled dependency dep1 should be moved to devDependencies")
	}
}
