package closure

import (
	"os"
	"path/filepath"

	"github.com/willibrandon/bundlekit/observability"
	"github.com/willibrandon/bundlekit/pkgjson"
)

// NodeModulesDir is the conventional nested-install directory name.
const NodeModulesDir = "node_modules"

// Resolver builds the transitive dependency closure of a package by
// parsing its manifest and walking the nested node_modules layout,
// starting from the package's own directory and searching upward.
type Resolver struct {
	log observability.Logger

	// visited de-duplicates by absolute directory path so diamond
	// dependencies and installed symlink cycles both terminate; the same
	// (name, version) found at two distinct paths counts as two Packages,
	// since their license metadata may differ.
	visited map[string]*Package
}

// NewResolver creates a PackageResolver. log may be nil, in which case a
// null logger is used.
func NewResolver(log observability.Logger) *Resolver {
	if log == nil {
		log = observability.NewNullLogger()
	}
	return &Resolver{log: log, visited: make(map[string]*Package)}
}

// Resolve reads the manifest at packageDir and recursively walks its
// runtime and optional dependencies, returning the root Package with
// Dependencies populated with the full transitive closure.
func (r *Resolver) Resolve(packageDir string) (*Package, error) {
	absRoot, err := filepath.Abs(packageDir)
	if err != nil {
		return nil, err
	}
	return r.resolveAt(absRoot, false, "<root>")
}

func (r *Resolver) resolveAt(absDir string, optional bool, declaredBy string) (*Package, error) {
	if existing, ok := r.visited[absDir]; ok {
		return existing, nil
	}

	manifest, err := pkgjson.Load(absDir)
	if err != nil {
		return nil, &ResolutionFailedError{PackageID: filepath.Base(absDir), From: declaredBy}
	}

	pkg := &Package{
		Name:         manifest.Name,
		Version:      manifest.Version,
		RootDir:      absDir,
		ManifestPath: filepath.Join(absDir, pkgjson.ManifestFileName),
		Optional:     optional,
	}

	// Mark visited before recursing so a symlink cycle in the install
	// layout terminates instead of recursing forever; the installer is
	// not trusted to guarantee a DAG.
	r.visited[absDir] = pkg

	for _, depName := range manifest.RuntimeDependencyNames() {
		depDir, found := r.locate(absDir, depName)
		if !found {
			r.log.Error("Unable to locate dependency {Name} declared by {Parent}", depName, manifest.FQN())
			return nil, &ResolutionFailedError{PackageID: depName, From: manifest.FQN()}
		}

		depPkg, err := r.resolveAt(depDir, manifest.IsOptional(depName), manifest.FQN())
		if err != nil {
			return nil, err
		}
		pkg.Dependencies = append(pkg.Dependencies, depPkg)
	}

	return pkg, nil
}

// locate walks upward from fromDir, inspecting node_modules/<name> at each
// level, until an installed copy is found or the filesystem root is
// reached. This mirrors npm's node_modules resolution algorithm: the
// nearest installed copy wins.
func (r *Resolver) locate(fromDir, name string) (string, bool) {
	dir := fromDir
	for {
		candidate := filepath.Join(dir, NodeModulesDir, name)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// Flatten returns every Package in the closure reachable from root,
// excluding root itself, in breadth-first discovery order with no
// duplicates by (name, version).
func Flatten(root *Package) []*Package {
	seen := make(map[string]bool)
	var order []*Package

	queue := append([]*Package(nil), root.Dependencies...)
	for len(queue) > 0 {
		pkg := queue[0]
		queue = queue[1:]

		key := pkg.Name + "@" + pkg.Version
		if seen[key] {
			continue
		}
		seen[key] = true
		order = append(order, pkg)

		queue = append(queue, pkg.Dependencies...)
	}

	return order
}
