// Package metrics exports HTTP, search and ingestion metrics in Prometheus
// format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/marketsearch/internal/domain"
)

const namespace = "marketsearch"

// Exporter owns a private registry and the collectors registered on it.
type Exporter struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	searches      *prometheus.CounterVec
	searchResults prometheus.Histogram

	ingestMarkets *prometheus.CounterVec
	ingestRuns    *prometheus.CounterVec
	ingestLatency *prometheus.HistogramVec
}

// Config configures the exporter.
type Config struct {
	// LatencyBuckets are histogram buckets in seconds.
	LatencyBuckets []float64
	// ProcessCollectors adds the Go runtime and process collectors.
	ProcessCollectors bool
}

// DefaultConfig returns the default exporter configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets:    []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		ProcessCollectors: true,
	}
}

// New creates an Exporter.
func New(cfg Config) *Exporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   cfg.LatencyBuckets,
		}, []string{"method", "route"}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Search requests by outcome.",
		}, []string{"outcome"}),
		searchResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "page_results",
			Help:      "Markets returned per search page.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
		ingestMarkets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "markets_total",
			Help:      "Markets fetched and upserted by site.",
		}, []string{"site", "stage"}),
		ingestRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "runs_total",
			Help:      "Ingest runs by site and outcome.",
		}, []string{"site", "outcome"}),
		ingestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "run_duration_seconds",
			Help:      "Duration of a full ingest run by site.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"site"}),
	}

	e.registry.MustRegister(
		e.httpRequests, e.httpLatency,
		e.searches, e.searchResults,
		e.ingestMarkets, e.ingestRuns, e.ingestLatency,
	)
	if cfg.ProcessCollectors {
		e.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return e
}

// Handler serves the registry in the Prometheus exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{Registry: e.registry})
}

// ObserveHTTP records one served request.
func (e *Exporter) ObserveHTTP(method, route string, status int, d time.Duration) {
	e.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	e.httpLatency.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveSearch records the outcome of one search request. outcome is "ok"
// or an error class such as "invalid" or "upstream".
func (e *Exporter) ObserveSearch(outcome string, results int) {
	e.searches.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		e.searchResults.Observe(float64(results))
	}
}

// ObservePage records one ingested page.
func (e *Exporter) ObservePage(site domain.Site, fetched, upserted int) {
	e.ingestMarkets.WithLabelValues(string(site), "fetched").Add(float64(fetched))
	e.ingestMarkets.WithLabelValues(string(site), "upserted").Add(float64(upserted))
}

// ObserveRun records a finished ingest run.
func (e *Exporter) ObserveRun(site domain.Site, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	e.ingestRuns.WithLabelValues(string(site), outcome).Inc()
	e.ingestLatency.WithLabelValues(string(site)).Observe(d.Seconds())
}
