// Package metrics holds the Prometheus collectors a front-end exposes on
// /metrics. Each Collector owns its registry so tests can build as many as
// they like.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "testgen"

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

type Collector struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	Generations         *prometheus.CounterVec
	GenerationDuration  *prometheus.HistogramVec
	TokenRefreshes      *prometheus.CounterVec
}

// New builds a Collector whose metrics carry a constant "service" label.
func New(service string) *Collector {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"service": service}

	c := &Collector{
		registry: reg,
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: labels,
		}, []string{"method", "path", "status_code"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "http_request_duration_seconds",
			Help:        "Duration of HTTP requests in seconds",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"method", "path"}),
		Generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "generations_total",
			Help:        "Test generation requests by source, outcome and error kind",
			ConstLabels: labels,
		}, []string{"source", "outcome", "kind"}),
		GenerationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "generation_duration_seconds",
			Help:        "End-to-end generation time, inference included",
			ConstLabels: labels,
			Buckets:     []float64{1, 2.5, 5, 10, 20, 40, 60, 90, 120},
		}, []string{"source"}),
		TokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "iam_token_refreshes_total",
			Help:        "IAM token exchanges by result",
			ConstLabels: labels,
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		c.HTTPRequestsTotal,
		c.HTTPRequestDuration,
		c.Generations,
		c.GenerationDuration,
		c.TokenRefreshes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) RecordHTTPRequest(method, path string, statusCode int, d time.Duration) {
	c.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	c.HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// RecordGeneration counts one generation. kind is empty on success.
func (c *Collector) RecordGeneration(source, outcome, kind string, d time.Duration) {
	c.Generations.WithLabelValues(source, outcome, kind).Inc()
	c.GenerationDuration.WithLabelValues(source).Observe(d.Seconds())
}

// RecordTokenRefresh matches the granite refresh hook signature.
func (c *Collector) RecordTokenRefresh(err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	c.TokenRefreshes.WithLabelValues(outcome).Inc()
}
