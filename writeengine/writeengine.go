// Package writeengine assembles the publishable bundle directory: a copy
// of the package tree with .git and node_modules excluded, the bundler's
// tree-shaken output overlaid on top, the manifest rewritten so bundled
// dependencies no longer appear as runtime dependencies, and the
// attributions/versions artifacts written alongside.
package writeengine

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/willibrandon/bundlekit/attributions"
	"github.com/willibrandon/bundlekit/pkgjson"
)

// excludedTopLevelEntries names directories skipped when copying the
// package tree, matched only at the root of the copy. A nested directory
// that happens to share the name (e.g. vendor/node_modules, a submodule
// named ".git") is copied normally.
var excludedTopLevelEntries = map[string]bool{
	".git":         true,
	"node_modules": true,
}

// Plan describes one write operation.
type Plan struct {
	PackageDir      string // source package root
	OutDir          string // destination bundle directory
	BundlerOutput   string // directory produced by bundler.Result.OutputDir, overlaid into OutDir
	BundledNames    []string
	ExternalRuntime map[string]string // name -> version range, retained in dependencies
	ExternalOptional map[string]string // name -> version range, retained in optionalDependencies
	Attributions    *attributions.Engine
	AttrList        []attributions.Attribution
	Versions        attributions.VersionsIndex
}

// Engine runs write Plans.
type Engine struct{}

// New creates a WriteEngine.
func New() *Engine {
	return &Engine{}
}

// Write executes a Plan: flush attributions, copy, overlay, rewrite
// manifest. The attributions engine writes to its own configured paths
// (under the package directory), so flushing before the copy is what
// carries the fresh artifacts into the bundle. Returns the path to the
// produced bundle directory.
func (e *Engine) Write(plan Plan) (string, error) {
	if err := os.MkdirAll(plan.OutDir, 0o755); err != nil {
		return "", fmt.Errorf("create bundle directory: %w", err)
	}

	if plan.Attributions != nil {
		if err := plan.Attributions.Flush(plan.AttrList, plan.Versions); err != nil {
			return "", fmt.Errorf("flush attributions: %w", err)
		}
	}

	if err := copyTree(plan.PackageDir, plan.OutDir, true); err != nil {
		return "", fmt.Errorf("copy package tree: %w", err)
	}

	if plan.BundlerOutput != "" {
		if err := copyTree(plan.BundlerOutput, plan.OutDir, false); err != nil {
			return "", fmt.Errorf("overlay bundler output: %w", err)
		}
	}

	if err := e.rewriteManifest(plan); err != nil {
		return "", err
	}

	return plan.OutDir, nil
}

func (e *Engine) rewriteManifest(plan Plan) error {
	manifest, err := pkgjson.Load(plan.PackageDir)
	if err != nil {
		return fmt.Errorf("load manifest for rewrite: %w", err)
	}

	bundled := make(map[string]bool, len(plan.BundledNames))
	for _, n := range plan.BundledNames {
		bundled[n] = true
	}

	devEntries := map[string]string{}
	for name, version := range manifest.Dependencies {
		if bundled[name] {
			devEntries[name] = version
		}
	}
	for name, version := range manifest.OptionalDependencies {
		if bundled[name] {
			devEntries[name] = version
		}
	}
	for name, version := range manifest.DevDependencies {
		devEntries[name] = version
	}

	rewritten, err := manifest.Rewrite(plan.ExternalRuntime, plan.ExternalOptional, devEntries)
	if err != nil {
		return fmt.Errorf("rewrite manifest: %w", err)
	}

	return os.WriteFile(filepath.Join(plan.OutDir, pkgjson.ManifestFileName), rewritten, 0o644)
}

// copyTree copies src into dst. When excludeTopLevel is true, the direct
// children of src named in excludedTopLevelEntries are skipped; nested
// occurrences are always copied.
func copyTree(src, dst string, excludeTopLevel bool) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if excludeTopLevel && excludedTopLevelEntries[entry.Name()] {
			continue
		}

		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		if entry.IsDir() {
			if err := os.MkdirAll(dstPath, 0o755); err != nil {
				return err
			}
			if err := copyTree(srcPath, dstPath, false); err != nil {
				return err
			}
			continue
		}

		if err := copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}

	return nil
}

func copyFile(src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(src)
		if err != nil {
			return err
		}
		_ = os.Remove(dst)
		return os.Symlink(target, dst)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
