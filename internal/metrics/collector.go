// Package metrics exposes the relay's Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	orchestration "github.com/koscakluka/ema-relay/core"
	"github.com/koscakluka/ema-relay/core/events"
	"github.com/koscakluka/ema-relay/core/turncompletion"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var _ orchestration.Metrics = (*Collector)(nil)

// Collector records call and turn metrics on its own registry
type Collector struct {
	registry *prometheus.Registry

	sessionsActive      prometheus.Gauge
	eventsTotal         *prometheus.CounterVec
	generationsTotal    *prometheus.CounterVec
	generationDuration  *prometheus.HistogramVec
	classifierDecisions *prometheus.CounterVec
	storeFailures       *prometheus.CounterVec
	interruptions       *prometheus.CounterVec
}

func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of calls in progress",
		}),
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Inbound call events by type",
		}, []string{"type"}),
		generationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Response generations by outcome",
		}, []string{"outcome"}),
		generationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Time from the start of a generation until it completed, was cancelled or failed",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 15, 30, 60},
		}, []string{"outcome"}),
		classifierDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_decisions_total",
			Help:      "Turn completion decisions",
		}, []string{"decision"}),
		storeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_failures_total",
			Help:      "Failed session store operations",
		}, []string{"op"}),
		interruptions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interruptions_total",
			Help:      "Caller interruptions by whether they changed the conversation",
		}, []string{"matched"}),
	}
}

// Handler serves the collected metrics in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) CallStarted() {
	c.sessionsActive.Inc()
}

func (c *Collector) CallEnded() {
	c.sessionsActive.Dec()
}

func (c *Collector) EventReceived(kind events.Kind) {
	c.eventsTotal.WithLabelValues(kind.String()).Inc()
}

func (c *Collector) GenerationFinished(outcome string, duration time.Duration) {
	c.generationsTotal.WithLabelValues(outcome).Inc()
	c.generationDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (c *Collector) ClassifierDecision(decision turncompletion.Decision) {
	c.classifierDecisions.WithLabelValues(decision.String()).Inc()
}

func (c *Collector) StoreFailure(operation string) {
	c.storeFailures.WithLabelValues(operation).Inc()
}

func (c *Collector) Interruption(matched bool) {
	c.interruptions.WithLabelValues(strconv.FormatBool(matched)).Inc()
}
