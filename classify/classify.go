// Package classify partitions a dependency closure into bundled and
// externalized sets by a graph traversal that stops at configured
// boundary names instead of at version conflicts.
package classify

import (
	"fmt"

	"github.com/willibrandon/bundlekit/closure"
)

// ExternalsConfig lists dependency names that should be excluded from the
// bundle. Runtime and Optional must be disjoint.
type ExternalsConfig struct {
	Runtime  map[string]bool
	Optional map[string]bool
}

// NewExternalsConfig builds an ExternalsConfig from name slices.
func NewExternalsConfig(runtime, optional []string) ExternalsConfig {
	cfg := ExternalsConfig{
		Runtime:  make(map[string]bool, len(runtime)),
		Optional: make(map[string]bool, len(optional)),
	}
	for _, n := range runtime {
		cfg.Runtime[n] = true
	}
	for _, n := range optional {
		cfg.Optional[n] = true
	}
	return cfg
}

// InvalidConfigError is a hard failure raised for contradictory or
// malformed configuration.
type InvalidConfigError struct {
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s", e.Reason)
}

// Classification partitions a closure into bundled and external sets.
type Classification struct {
	Bundled          []*closure.Package
	RuntimeExternal  []*closure.Package
	OptionalExternal []*closure.Package
}

// Classify performs a breadth-first traversal from root, stopping descent
// at any node whose name is configured as external. That node is placed
// into the matching external partition; every other visited node
// (excluding root) becomes bundled. A name appearing in both external sets
// is rejected up front.
func Classify(root *closure.Package, cfg ExternalsConfig) (*Classification, error) {
	for name := range cfg.Runtime {
		if cfg.Optional[name] {
			return nil, &InvalidConfigError{Reason: fmt.Sprintf("%q listed in both runtime and optional externals", name)}
		}
	}

	result := &Classification{}
	seen := make(map[string]bool) // keyed by name@version, root excluded by construction

	queue := append([]*closure.Package(nil), root.Dependencies...)
	for len(queue) > 0 {
		pkg := queue[0]
		queue = queue[1:]

		key := pkg.Name + "@" + pkg.Version
		if seen[key] {
			continue
		}
		seen[key] = true

		switch {
		case cfg.Runtime[pkg.Name]:
			result.RuntimeExternal = append(result.RuntimeExternal, pkg)
			// Do not descend: the external's own transitive dependencies
			// are excluded from both bundling and attribution.
		case cfg.Optional[pkg.Name]:
			result.OptionalExternal = append(result.OptionalExternal, pkg)
		default:
			result.Bundled = append(result.Bundled, pkg)
			queue = append(queue, pkg.Dependencies...)
		}
	}

	return result, nil
}

// IsExternal reports whether name is configured as either kind of external.
func (c ExternalsConfig) IsExternal(name string) bool {
	return c.Runtime[name] || c.Optional[name]
}
