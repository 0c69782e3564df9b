package pkgjson

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	content := `{
		"name": "consumer",
		"version": "0.0.0",
		"dependencies": {"dep1": "^1.0.0"},
		"optionalDependencies": {"dep2": "^2.0.0"},
		"devDependencies": {"jest": "^29.0.0"}
	}`
	if err := os.WriteFile(filepath.Join(dir, ManifestFileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if m.Name != "consumer" || m.Version != "0.0.0" {
		t.Errorf("Name/Version = %q/%q, want consumer/0.0.0", m.Name, m.Version)
	}

	names := m.RuntimeDependencyNames()
	if len(names) != 2 {
		t.Errorf("RuntimeDependencyNames() = %v, want 2 entries", names)
	}

	if !m.IsOptional("dep2") {
		t.Error("IsOptional(dep2) = false, want true")
	}
	if m.IsOptional("dep1") {
		t.Error("IsOptional(dep1) = true, want false")
	}
}

func TestManifest_FQN(t *testing.T) {
	m := &Manifest{Name: "consumer", Version: "0.0.0"}
	if got, want := m.FQN(), "consumer@0.0.0"; got != want {
		t.Errorf("FQN() = %q, want %q", got, want)
	}
}

func TestManifest_Rewrite(t *testing.T) {
	data := []byte(`{
		"name": "consumer",
		"version": "0.0.0",
		"dependencies": {"dep1": "^1.0.0", "dep2": "^2.0.0"},
		"devDependencies": {"jest": "^29.0.0"}
	}`)

	m, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	out, err := m.Rewrite(
		map[string]string{"dep2": "^2.0.0"}, // external stays in dependencies
		nil,
		map[string]string{"dep1": "^1.0.0", "jest": "^29.0.0"}, // bundled moved in
	)
	if err != nil {
		t.Fatalf("Rewrite() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("unmarshal rewritten manifest: %v", err)
	}

	deps, _ := decoded["dependencies"].(map[string]any)
	if _, ok := deps["dep1"]; ok {
		t.Error("dependencies still contains bundled dep1")
	}
	if _, ok := deps["dep2"]; !ok {
		t.Error("dependencies missing external dep2")
	}

	dev, _ := decoded["devDependencies"].(map[string]any)
	if _, ok := dev["dep1"]; !ok {
		t.Error("devDependencies missing moved dep1")
	}
	if _, ok := dev["jest"]; !ok {
		t.Error("devDependencies missing original jest")
	}

	if _, ok := decoded["optionalDependencies"]; ok {
		t.Error("optionalDependencies should be removed when empty")
	}
}
