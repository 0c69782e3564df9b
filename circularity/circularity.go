// Package circularity wraps the opaque import-cycle analyzer tool. The
// tool itself performs the source-level import graph analysis; this
// package only shapes the invocation and the resulting cycle list, rendered
// as arrow-joined chains.
package circularity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Invoker is the subset of shell.Adapter used here.
type Invoker interface {
	Run(ctx context.Context, tool, dir, name string, args ...string) ([]byte, error)
}

// Analyzer runs the import-cycle analyzer.
type Analyzer struct {
	invoker Invoker
	binary  string
}

// New creates a CircularityAnalyzer. binary names the executable.
func New(invoker Invoker, binary string) *Analyzer {
	if binary == "" {
		binary = "import-cycle-analyzer"
	}
	return &Analyzer{invoker: invoker, binary: binary}
}

// Cycle is one detected import cycle, already rendered as an arrow chain
// ("a.js -> b.js" for a 2-node cycle, longer chains for larger ones).
type Cycle struct {
	Chain string
}

// Analyze runs the tool against packageRoot for the given entry points and
// returns the (possibly empty) list of detected cycles. A failure to run
// the tool at all is a hard ToolFailure, surfaced by the Invoker.
func (a *Analyzer) Analyze(ctx context.Context, packageRoot string, entryPoints []string) ([]Cycle, error) {
	out, err := a.invoker.Run(ctx, "circularity", packageRoot, a.binary, append([]string{"--json"}, entryPoints...)...)
	if err != nil {
		return nil, err
	}

	var chains []string
	if err := json.Unmarshal(out, &chains); err != nil {
		return nil, fmt.Errorf("decode circularity analyzer output: %w", err)
	}

	cycles := make([]Cycle, 0, len(chains))
	for _, c := range chains {
		cycles = append(cycles, Cycle{Chain: strings.TrimSpace(c)})
	}
	return cycles, nil
}
