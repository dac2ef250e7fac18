// Package metrics exposes run telemetry as Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/use-agent/newsingest/models"
)

const namespace = "newsingest"

// Collector records scraping activity. It satisfies manager.Observer.
type Collector struct {
	registry *prometheus.Registry

	sessionsStarted  *prometheus.CounterVec
	sessionsFinished *prometheus.CounterVec
	sessionDuration  *prometheus.HistogramVec
	articles         *prometheus.CounterVec
	itemErrors       *prometheus.CounterVec
	running          prometheus.Gauge
}

// New creates a Collector with its own registry, including the Go runtime
// and process collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		sessionsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Scraping sessions started, by requested source.",
		}, []string{"source"}),
		sessionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_finished_total",
			Help:      "Scraping sessions finalized, by source and status.",
		}, []string{"source", "status"}),
		sessionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Wall time of finalized sessions.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"source"}),
		articles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_total",
			Help:      "Processed articles, by source and outcome (inserted, updated, normalized, skipped).",
		}, []string{"source", "outcome"}),
		itemErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "item_errors_total",
			Help:      "Item-level failures, by source and error kind.",
		}, []string{"source", "kind"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_running",
			Help:      "Sessions currently in progress.",
		}),
	}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.sessionsStarted, c.sessionsFinished, c.sessionDuration,
		c.articles, c.itemErrors, c.running,
	)
	return c
}

// Registry returns the registry backing the collector.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) SessionStarted(source models.Source) {
	c.sessionsStarted.WithLabelValues(string(source)).Inc()
	c.running.Inc()
}

func (c *Collector) SessionFinished(s models.Session, elapsed time.Duration) {
	c.running.Dec()
	c.sessionsFinished.WithLabelValues(string(s.Source), string(s.Status)).Inc()
	c.sessionDuration.WithLabelValues(string(s.Source)).Observe(elapsed.Seconds())
}

func (c *Collector) ItemStored(source models.Source, outcome string) {
	c.articles.WithLabelValues(string(source), outcome).Inc()
}

func (c *Collector) ItemFailed(source models.Source, kind string) {
	c.itemErrors.WithLabelValues(string(source), kind).Inc()
}
