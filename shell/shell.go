// Package shell provides the synchronous external-process invoker used by
// every opaque tool adapter (license probe, circularity analyzer, bundler,
// packer). It is the one seam between this module and the outside world.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/willibrandon/bundlekit/observability"
	"github.com/willibrandon/bundlekit/resilience"
)

// ToolFailureError is a hard failure: an external tool exited non-zero.
type ToolFailureError struct {
	Tool   string
	Args   []string
	Stderr string
	Err    error
}

func (e *ToolFailureError) Error() string {
	return fmt.Sprintf("tool failure running %s %v: %v: %s", e.Tool, e.Args, e.Err, e.Stderr)
}

func (e *ToolFailureError) Unwrap() error { return e.Err }

// Invoker runs external commands and returns captured stdout. Implementations
// substitute deterministic fakes in tests.
type Invoker interface {
	Run(ctx context.Context, tool, dir, name string, args ...string) ([]byte, error)
}

// Adapter is the default Invoker: it shells out via os/exec, wraps the
// invocation in a per-tool circuit breaker so a flapping tool fails fast
// instead of being retried forever, and records invocation metrics.
type Adapter struct {
	log      observability.Logger
	breakers *breakerRegistry
}

// NewAdapter creates a ShellAdapter. log may be nil.
func NewAdapter(log observability.Logger) *Adapter {
	if log == nil {
		log = observability.NewNullLogger()
	}
	return &Adapter{log: log, breakers: newBreakerRegistry()}
}

// Run executes name with args in dir, returning captured stdout. A
// non-zero exit status is surfaced as *ToolFailureError with stderr
// attached. Tool is a label identifying the calling subsystem (e.g.
// "probe", "bundler", "circularity", "packer") used for circuit-breaker
// and metric partitioning.
func (a *Adapter) Run(ctx context.Context, tool, dir, name string, args ...string) ([]byte, error) {
	breaker := a.breakers.get(tool)

	if err := breaker.CanExecute(); err != nil {
		observability.ToolInvocationsTotal.WithLabelValues(tool, "circuit-open").Inc()
		return nil, &ToolFailureError{Tool: name, Args: args, Err: err}
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	observability.ToolInvocationDuration.WithLabelValues(tool).Observe(time.Since(start).Seconds())
	observability.CircuitBreakerState.WithLabelValues(tool).Set(float64(breaker.State()))

	if err != nil {
		breaker.RecordFailure()
		observability.ToolInvocationsTotal.WithLabelValues(tool, "failure").Inc()
		observability.ForTool(a.log, tool).Error("Invocation failed: {Error}", err)
		return nil, &ToolFailureError{Tool: name, Args: args, Stderr: stderr.String(), Err: err}
	}

	breaker.RecordSuccess()
	observability.ToolInvocationsTotal.WithLabelValues(tool, "success").Inc()
	return stdout.Bytes(), nil
}

// breakerRegistry lazily creates one CircuitBreaker per tool label. Guarded
// by a mutex so one Adapter can be shared by concurrent callers; the
// pipeline itself invokes every tool sequentially.
type breakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*resilience.CircuitBreaker
}

func newBreakerRegistry() *breakerRegistry {
	return &breakerRegistry{breakers: make(map[string]*resilience.CircuitBreaker)}
}

func (r *breakerRegistry) get(tool string) *resilience.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[tool]; ok {
		return b
	}
	b := resilience.NewCircuitBreaker(tool, resilience.ConfigForTool(tool))
	r.breakers[tool] = b
	return b
}
