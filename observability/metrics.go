package observability

import (
	"io"
	"net/http"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ClosureSize tracks the number of packages in the most recent dependency
	// closure, partitioned by classification.
	ClosureSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bundlekit_closure_size",
			Help: "Number of packages in the dependency closure by classification",
		},
		[]string{"classification"}, // bundled, runtime-external, optional-external
	)

	// ViolationsTotal counts validation violations by kind across pipeline runs.
	ViolationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bundlekit_violations_total",
			Help: "Total number of validation violations by kind",
		},
		[]string{"kind"},
	)

	// ToolInvocationDuration tracks external tool invocation duration in seconds.
	ToolInvocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bundlekit_tool_invocation_duration_seconds",
			Help:    "External tool invocation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		[]string{"tool"}, // probe, bundler, circularity, packer
	)

	// ToolInvocationsTotal counts external tool invocations by tool and outcome.
	ToolInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bundlekit_tool_invocations_total",
			Help: "Total number of external tool invocations by outcome",
		},
		[]string{"tool", "outcome"}, // outcome: success, failure, circuit-open
	)

	// CircuitBreakerState tracks circuit breaker state by tool name.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bundlekit_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"tool"},
	)

	// PipelineRunDuration tracks end-to-end pipeline run duration in seconds by command.
	PipelineRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bundlekit_pipeline_run_duration_seconds",
			Help:    "End-to-end pipeline run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		},
		[]string{"command"}, // validate, write, pack
	)
)

// MetricsHandler returns an HTTP handler for Prometheus metrics.
// Not served by the CLI itself; exposed only so callers embedding the
// pipeline in a longer-lived process can mount it.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// GetCounterValue retrieves the current value of a counter metric with the given labels.
// Intended for tests.
func GetCounterValue(counter *prometheus.CounterVec, labels ...string) (float64, error) {
	metric, err := counter.GetMetricWithLabelValues(labels...)
	if err != nil {
		return 0, err
	}

	var pb dto.Metric
	if err := metric.Write(&pb); err != nil {
		return 0, err
	}

	if pb.Counter != nil {
		return pb.Counter.GetValue(), nil
	}

	return 0, nil
}

// GetGaugeValue retrieves the current value of a gauge metric with the given labels.
// Intended for tests.
func GetGaugeValue(gauge *prometheus.GaugeVec, labels ...string) (float64, error) {
	metric, err := gauge.GetMetricWithLabelValues(labels...)
	if err != nil {
		return 0, err
	}

	var pb dto.Metric
	if err := metric.Write(&pb); err != nil {
		return 0, err
	}

	if pb.Gauge != nil {
		return pb.Gauge.GetValue(), nil
	}

	return 0, nil
}

// WriteExpositionFormat writes the default registry in Prometheus text
// exposition format to w, used by --metrics-out since this is a one-shot
// batch tool rather than a long-lived server.
func WriteExpositionFormat(w io.Writer) error {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return err
	}

	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}

	return nil
}
