// Package metrics collects Prometheus metrics for the HTTP layer and the agenda engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector is used by middleware and services.
type MetricsCollector interface {
	RecordRequest(route string, method string, statusCode int, duration time.Duration)
	RecordRateLimited(userUuid string)
	// RecordAggregation observes how many schedules an agenda query returned.
	RecordAggregation(mode string, count int)
}

type Collector struct {
	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	denied       *prometheus.CounterVec
	rateLimited  prometheus.Counter
	aggregations *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grouplan_http_requests_total",
			Help: "HTTP requests by route, method and status code",
		}, []string{"route", "method", "status_code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grouplan_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		denied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grouplan_access_denied_total",
			Help: "Requests rejected with 403 by route",
		}, []string{"route"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grouplan_rate_limited_total",
			Help: "Requests rejected by the per-user rate limiter",
		}),
		aggregations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grouplan_agenda_schedules",
			Help:    "Number of schedules returned by agenda queries",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		}, []string{"mode"}),
	}

	reg.MustRegister(
		c.requests,
		c.latency,
		c.denied,
		c.rateLimited,
		c.aggregations,
	)

	return c
}

func (c *Collector) RecordRequest(route string, method string, statusCode int, duration time.Duration) {
	c.requests.WithLabelValues(route, method, strconv.Itoa(statusCode)).Inc()
	c.latency.WithLabelValues(route, method).Observe(duration.Seconds())
	if statusCode == http.StatusForbidden {
		c.denied.WithLabelValues(route).Inc()
	}
}

func (c *Collector) RecordRateLimited(userUuid string) {
	c.rateLimited.Inc()
}

func (c *Collector) RecordAggregation(mode string, count int) {
	c.aggregations.WithLabelValues(mode).Observe(float64(count))
}

// Handler returns the scrape endpoint for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
