package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// APIMetricsCollector handles marketplace API request metrics
type APIMetricsCollector struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewAPIMetricsCollector creates a new API metrics collector
func NewAPIMetricsCollector() *APIMetricsCollector {
	return &APIMetricsCollector{
		// Attempts by account, method, path, and status code. Transport
		// failures that never produced a response carry status code 0.
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "api_requests_total",
				Help:      "Total number of API request attempts by account, method, path, and status code",
			},
			[]string{"account", "method", "path", "status_code"},
		),

		// Attempt duration histogram
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "api_request_duration_seconds",
				Help:      "API request attempt duration distribution",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
			},
			[]string{"account", "method", "path"},
		),
	}
}

// Register registers all API metrics with the Prometheus registry
func (c *APIMetricsCollector) Register() error {
	if Registry == nil {
		return nil // Metrics not enabled
	}

	metrics := []prometheus.Collector{
		c.requestsTotal,
		c.requestDuration,
	}

	for _, metric := range metrics {
		if err := Registry.Register(metric); err != nil {
			return err
		}
	}

	return nil
}

// RecordAttempt records one HTTP attempt, retries included
func (c *APIMetricsCollector) RecordAttempt(
	account string,
	method string,
	path string,
	statusCode int,
	duration time.Duration,
) {
	statusCodeStr := strconv.Itoa(statusCode)

	c.requestsTotal.WithLabelValues(account, method, path, statusCodeStr).Inc()
	c.requestDuration.WithLabelValues(account, method, path).Observe(duration.Seconds())
}
