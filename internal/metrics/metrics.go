// Package metrics exposes Prometheus collectors for the scraper service.
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
	scrapesTotal           *prometheus.CounterVec
	scrapeDurationSeconds  *prometheus.HistogramVec
	rateLimitHitsTotal     *prometheus.CounterVec
	breakerRateLimitsGauge prometheus.Gauge
	queueDepthGauge        prometheus.Gauge
	remoteRestartGauge     prometheus.Gauge
	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDuration    *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		scrapesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_extractions_total",
				Help: "Extraction attempts, labeled by method, data type and result.",
			},
			[]string{"method", "data_type", "result"},
		)

		scrapeDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_extraction_duration_seconds",
				Help:    "Histogram of extraction latencies, labeled by method.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 45, 60},
			},
			[]string{"method"},
		)

		rateLimitHitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_rate_limit_hits_total",
				Help: "Detected anti-bot blocks, labeled by domain.",
			},
			[]string{"domain"},
		)

		breakerRateLimitsGauge = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scraper_breaker_consecutive_rate_limits",
				Help: "Current consecutive rate-limit count in the circuit breaker.",
			},
		)

		queueDepthGauge = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scraper_queue_depth",
				Help: "Number of queued scrape tasks.",
			},
		)

		remoteRestartGauge = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scraper_remote_restart_needed",
				Help: "1 when the remote extraction service needs an external restart.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler exposing the Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveScrape records one extraction attempt.
func ObserveScrape(method, dataType string, success bool, duration time.Duration) {
	if scrapesTotal == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	if method == "" {
		method = "none"
	}
	scrapesTotal.WithLabelValues(method, dataType, result).Inc()
	scrapeDurationSeconds.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserveRateLimitHit counts one detected block for the domain.
func ObserveRateLimitHit(domain string) {
	if rateLimitHitsTotal == nil {
		return
	}
	rateLimitHitsTotal.WithLabelValues(domain).Inc()
}

// SetBreakerRateLimits publishes the breaker's consecutive counter.
func SetBreakerRateLimits(n int) {
	if breakerRateLimitsGauge == nil {
		return
	}
	breakerRateLimitsGauge.Set(float64(n))
}

// SetQueueDepth publishes the queue depth.
func SetQueueDepth(n int) {
	if queueDepthGauge == nil {
		return
	}
	queueDepthGauge.Set(float64(n))
}

// SetRemoteRestartNeeded publishes the remote service's restart flag so a
// supervisor can alert on it.
func SetRemoteRestartNeeded(needed bool) {
	if remoteRestartGauge == nil {
		return
	}
	v := 0.0
	if needed {
		v = 1.0
	}
	remoteRestartGauge.Set(v)
}

// ObserveHTTPRequest records one API request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
