// Package closure resolves a package's transitive installed dependency
// closure by walking the nested node_modules layout on disk.
//
// Walks an on-disk install tree instead of a remote metadata source: there is no
// network fetch here, every package named by a manifest must already be
// installed under some node_modules directory reachable from its parent.
package closure

import (
	"fmt"
)

// Package is an installed dependency: identity plus its own transitive
// dependencies. Identity is (Name, Version, RootDir); construction happens
// once in PackageResolver and the graph is immutable afterward.
type Package struct {
	Name         string
	Version      string
	RootDir      string
	ManifestPath string
	Optional     bool
	Dependencies []*Package
}

// FQN returns the "name@version" identity string.
func (p *Package) FQN() string {
	return fmt.Sprintf("%s@%s", p.Name, p.Version)
}

// ResolutionFailedError is a hard failure: a declared dependency could not
// be located anywhere in the node_modules search path.
type ResolutionFailedError struct {
	PackageID string
	From      string
}

func (e *ResolutionFailedError) Error() string {
	return fmt.Sprintf("resolution failed: could not locate %q (declared by %s)", e.PackageID, e.From)
}
