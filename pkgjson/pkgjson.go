// Package pkgjson parses the subset of package.json fields the bundle
// pipeline needs: identity, declared dependency names, and the entry point.
package pkgjson

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Manifest represents the fields of package.json read by the pipeline.
// Dependency values are version ranges as declared by the author; the
// resolver only uses the map keys (names) to locate installed copies on
// disk, so ranges are kept as opaque strings rather than parsed.
type Manifest struct {
	Name                 string            `json:"name"`
	Version              string            `json:"version"`
	Main                 string            `json:"main,omitempty"`
	Dependencies         map[string]string `json:"dependencies,omitempty"`
	OptionalDependencies  map[string]string `json:"optionalDependencies,omitempty"`
	DevDependencies       map[string]string `json:"devDependencies,omitempty"`

	// raw retains the full decoded document so Rewrite can emit every field
	// the author set, not just the ones this package understands.
	raw map[string]json.RawMessage
}

// ManifestFileName is the conventional name of a package manifest.
const ManifestFileName = "package.json"

// Load reads and parses the manifest at <dir>/package.json.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes manifest JSON bytes.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse package.json: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse package.json: %w", err)
	}
	m.raw = raw

	return &m, nil
}

// RuntimeDependencyNames returns the names declared in "dependencies" and
// "optionalDependencies", the edges PackageResolver walks. devDependencies
// are intentionally excluded; they are never traversed.
func (m *Manifest) RuntimeDependencyNames() []string {
	names := make([]string, 0, len(m.Dependencies)+len(m.OptionalDependencies))
	for name := range m.Dependencies {
		names = append(names, name)
	}
	for name := range m.OptionalDependencies {
		names = append(names, name)
	}
	return names
}

// IsOptional reports whether name was declared under optionalDependencies.
func (m *Manifest) IsOptional(name string) bool {
	_, ok := m.OptionalDependencies[name]
	return ok
}

// FQN returns the "name@version" identity string used throughout the
// pipeline (attribution keys, license-probe package identifiers).
func (m *Manifest) FQN() string {
	return m.Name + "@" + m.Version
}

// Rewrite returns a copy of the manifest JSON with "dependencies",
// "optionalDependencies" and "devDependencies" replaced wholesale by
// depEntries, optEntries and devEntries; a key whose entries are empty is
// removed. The caller merges any existing devDependencies into devEntries
// itself. Used by WriteEngine to move
// bundled dependencies' manifest entries into devDependencies and keep only
// externals in dependencies/optionalDependencies.
func (m *Manifest) Rewrite(depEntries, optEntries, devEntries map[string]string) ([]byte, error) {
	out := make(map[string]json.RawMessage, len(m.raw))
	for k, v := range m.raw {
		out[k] = v
	}

	setOrDelete := func(key string, entries map[string]string) error {
		if len(entries) == 0 {
			delete(out, key)
			return nil
		}
		b, err := json.Marshal(entries)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", key, err)
		}
		out[key] = b
		return nil
	}

	if err := setOrDelete("dependencies", depEntries); err != nil {
		return nil, err
	}
	if err := setOrDelete("optionalDependencies", optEntries); err != nil {
		return nil, err
	}
	if err := setOrDelete("devDependencies", devEntries); err != nil {
		return nil, err
	}

	return marshalIndentStable(out)
}

// marshalIndentStable marshals a raw-message map with two-space indentation
// and keys in ascending order (the default for encoding/json maps).
func marshalIndentStable(v map[string]json.RawMessage) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
