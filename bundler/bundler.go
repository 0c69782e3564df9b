// Package bundler wraps the opaque bundling/tree-shaking tool: given a
// package root, an output directory, and the set of dependency names to
// leave unresolved (externals), it produces a minimal self-contained
// bundle directory. This package never inspects the tool's internal
// algorithm, only its invocation contract, the same way circularity
// wraps its own black-box binary.
package bundler

import (
	"context"
	"encoding/json"
	"fmt"
)

// Invoker is the subset of shell.Adapter used here.
type Invoker interface {
	Run(ctx context.Context, tool, dir, name string, args ...string) ([]byte, error)
}

// Bundler runs the external bundling tool.
type Bundler struct {
	invoker Invoker
	binary  string
}

// New creates a Bundler. binary names the executable (e.g. "js-bundler").
func New(invoker Invoker, binary string) *Bundler {
	if binary == "" {
		binary = "js-bundler"
	}
	return &Bundler{invoker: invoker, binary: binary}
}

// Result is the bundler tool's reported output, decoded from its JSON
// response on stdout.
type Result struct {
	OutputDir    string   `json:"outputDir"`
	EntryFiles   []string `json:"entryFiles"`
	ExternalRefs []string `json:"externalRefs"`
}

// Run invokes the bundler against packageRoot, writing a tree-shaken
// bundle to outDir. externals names dependencies the bundler must leave
// as unresolved require()/import specifiers rather than inlining,
// exactly the set classify.Classification partitions out of Bundled.
func (b *Bundler) Run(ctx context.Context, packageRoot, outDir string, externals []string) (*Result, error) {
	args := []string{"--json", "--out", outDir}
	for _, ext := range externals {
		args = append(args, "--external", ext)
	}

	out, err := b.invoker.Run(ctx, "bundler", packageRoot, b.binary, args...)
	if err != nil {
		return nil, err
	}

	var result Result
	if err := json.Unmarshal(out, &result); err != nil {
		return nil, fmt.Errorf("decode bundler output: %w", err)
	}
	return &result, nil
}
