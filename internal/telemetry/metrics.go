package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks executor observables.
type Metrics struct {
	// Invocations counts top-level runtime calls, labelled by outcome
	// ("ok", "trap").
	Invocations *prometheus.CounterVec
	// InvocationSeconds observes wall-clock time per top-level call.
	InvocationSeconds prometheus.Histogram
	// SandboxInstances counts nested instantiations.
	SandboxInstances prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates and registers the executor metrics.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,

		Invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "invocations_total",
			Help:      "Top-level runtime invocations by outcome.",
		}, []string{"outcome"}),
		InvocationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "invocation_seconds",
			Help:      "Wall-clock duration of top-level invocations.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		SandboxInstances: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "sandbox_instances_total",
			Help:      "Nested sandbox instantiations.",
		}),
	}

	reg.MustRegister(m.Invocations, m.InvocationSeconds, m.SandboxInstances)
	return m
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveInvocation records one top-level call. Nil receivers are
// tolerated so the executor can run without telemetry wired.
func (m *Metrics) ObserveInvocation(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.Invocations.WithLabelValues(outcome).Inc()
	m.InvocationSeconds.Observe(seconds)
}
