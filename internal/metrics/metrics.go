// Package metrics exposes Prometheus collectors for the resolver service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	resolverSourceTotal        *prometheus.CounterVec
	loaderAttemptsTotal        *prometheus.CounterVec
	loaderExhaustedTotal       prometheus.Counter
	sheetCacheLookupsTotal     *prometheus.CounterVec
	rendererPagesInUse         prometheus.Gauge
	rendererBudgetWaitSeconds  *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		resolverSourceTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resolver_source_total",
				Help: "Resolver lookups per source, labeled by operation, source and outcome.",
			},
			[]string{"op", "source", "outcome"},
		)

		loaderAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loader_attempts_total",
				Help: "Page load attempts, labeled by strategy and outcome.",
			},
			[]string{"strategy", "outcome"},
		)

		loaderExhaustedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "loader_exhausted_total",
				Help: "Page loads that failed on every strategy.",
			},
		)

		sheetCacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sheet_cache_lookups_total",
				Help: "Chord-sheet cache lookups, labeled by facet and hit/miss.",
			},
			[]string{"facet", "result"},
		)

		rendererPagesInUse = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "renderer_pages_in_use",
				Help: "Number of renderer pages currently checked out.",
			},
		)

		rendererBudgetWaitSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "renderer_budget_wait_seconds",
				Help:    "Histogram of per-host navigation budget waits.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"domain"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 30, 60},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveSource counts one resolver source lookup.
func ObserveSource(op, source, outcome string) {
	resolverSourceTotal.WithLabelValues(op, source, outcome).Inc()
}

// Loader implements loader.Observer.
type Loader struct{}

// ObserveAttempt counts one strategy attempt.
func (Loader) ObserveAttempt(strategy, outcome string) {
	loaderAttemptsTotal.WithLabelValues(strategy, outcome).Inc()
}

// ObserveExhausted counts one load that failed on every strategy.
func (Loader) ObserveExhausted() {
	loaderExhaustedTotal.Inc()
}

// SheetCache implements sheetcache.Observer.
type SheetCache struct{}

// ObserveLookup counts one facet lookup.
func (SheetCache) ObserveLookup(facet, result string) {
	sheetCacheLookupsTotal.WithLabelValues(facet, result).Inc()
}

// Renderer implements render.Observer.
type Renderer struct{}

// PageOpened increments the pages gauge.
func (Renderer) PageOpened() { rendererPagesInUse.Inc() }

// PageClosed decrements the pages gauge.
func (Renderer) PageClosed() { rendererPagesInUse.Dec() }

// ObserveBudgetWait records the duration of a per-host budget wait.
func (Renderer) ObserveBudgetWait(host string, d time.Duration) {
	rendererBudgetWaitSeconds.WithLabelValues(host).Observe(d.Seconds())
}

// Resolver implements resolver.Observer.
type Resolver struct{}

// ObserveSource counts one resolver source lookup.
func (Resolver) ObserveSource(op, source, outcome string) {
	ObserveSource(op, source, outcome)
}
