// Package packer produces the final publishable tarball from a written
// bundle directory, invoking the opaque packing tool shelled out to an
// external binary rather than composed in-process.
package packer

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/willibrandon/bundlekit/writeengine"
)

// Invoker is the subset of shell.Adapter used here.
type Invoker interface {
	Run(ctx context.Context, tool, dir, name string, args ...string) ([]byte, error)
}

// Packer writes the bundle and packs it into a tarball.
type Packer struct {
	writer  *writeengine.Engine
	invoker Invoker
	binary  string
}

// New creates a Packer. binary names the packing executable (e.g. "npm").
func New(writer *writeengine.Engine, invoker Invoker, binary string) *Packer {
	if binary == "" {
		binary = "npm"
	}
	return &Packer{writer: writer, invoker: invoker, binary: binary}
}

// Pack runs the write plan, then invokes the packing tool against the
// written bundle, producing "<name>-<version>.tgz" in destinationDir.
// Returns the absolute path to the produced tarball.
func (p *Packer) Pack(ctx context.Context, plan writeengine.Plan, packageName, packageVersion, destinationDir string) (string, error) {
	// The packing tool runs inside the bundle directory, so a relative
	// destination is resolved against the caller's working directory first.
	destinationDir, err := filepath.Abs(destinationDir)
	if err != nil {
		return "", fmt.Errorf("resolve pack destination: %w", err)
	}

	bundleDir, err := p.writer.Write(plan)
	if err != nil {
		return "", fmt.Errorf("write bundle: %w", err)
	}

	if _, err := p.invoker.Run(ctx, "packer", bundleDir, p.binary, "pack", "--pack-destination", destinationDir); err != nil {
		return "", err
	}

	tarballName := fmt.Sprintf("%s-%s.tgz", sanitizeForTarball(packageName), packageVersion)
	return filepath.Join(destinationDir, tarballName), nil
}

// sanitizeForTarball mirrors npm's scoped-package tarball naming: a
// leading "@scope/" becomes "scope-" since '/' cannot appear in a filename.
func sanitizeForTarball(name string) string {
	if len(name) == 0 || name[0] != '@' {
		return name
	}
	for i := 1; i < len(name); i++ {
		if name[i] == '/' {
			return name[1:i] + "-" + name[i+1:]
		}
	}
	return name
}
