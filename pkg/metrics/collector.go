package metrics

import (
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
	"github.com/psantana5/callguard/pkg/guard"
)

// Collector records guard activity as Prometheus metrics.
// It implements guard.Observer.
type Collector struct {
	registry *prometheus.Registry

	attempts        *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	outcomes        *prometheus.CounterVec
	attemptsPerCall *prometheus.HistogramVec
	notifications   *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callguard_attempts_total",
				Help: "Guarded operation attempts by operation and failure kind (kind=\"none\" on success)",
			},
			[]string{"operation", "kind"},
		),
		attemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callguard_attempt_duration_seconds",
				Help:    "Duration of a single guarded attempt",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"operation"},
		),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callguard_invocations_total",
				Help: "Guarded invocations by final outcome",
			},
			[]string{"operation", "outcome"},
		),
		attemptsPerCall: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callguard_attempts_per_invocation",
				Help:    "Number of attempts a guarded invocation used",
				Buckets: prometheus.LinearBuckets(1, 1, 6),
			},
			[]string{"operation"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callguard_notifications_total",
				Help: "User notifications emitted by failure kind",
			},
			[]string{"operation", "kind"},
		),
	}

	c.registry.MustRegister(c.attempts, c.attemptDuration, c.outcomes, c.attemptsPerCall, c.notifications)
	return c
}

// ObserveAttempt implements guard.Observer.
func (c *Collector) ObserveAttempt(operation string, d time.Duration, err error) {
	kind := "none"
	if err != nil {
		kind = guard.Classify(err).String()
	}
	c.attempts.WithLabelValues(operation, kind).Inc()
	c.attemptDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveOutcome implements guard.Observer.
func (c *Collector) ObserveOutcome(operation string, outcome guard.Outcome, attempts int) {
	c.outcomes.WithLabelValues(operation, outcome.String()).Inc()
	c.attemptsPerCall.WithLabelValues(operation).Observe(float64(attempts))
}

// ObserveNotification implements guard.Observer.
func (c *Collector) ObserveNotification(operation string, kind guard.Kind) {
	c.notifications.WithLabelValues(operation, kind.String()).Inc()
}

// Registry exposes the underlying registry so callers can add their own metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// WriteText dumps every metric family in text format.
func (c *Collector) WriteText(w io.Writer) error {
	families, err := c.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
