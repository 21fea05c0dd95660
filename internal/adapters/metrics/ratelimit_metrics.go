package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RateLimitMetricsCollector handles rate limiter metrics
type RateLimitMetricsCollector struct {
	admissionsTotal *prometheus.CounterVec
	waitDuration    *prometheus.HistogramVec
	waiting         *prometheus.GaugeVec
}

// NewRateLimitMetricsCollector creates a new rate limiter metrics collector
func NewRateLimitMetricsCollector() *RateLimitMetricsCollector {
	return &RateLimitMetricsCollector{
		// Permits granted by account and request class
		admissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "rate_limit_admissions_total",
				Help:      "Total number of requests admitted by the rate limiter",
			},
			[]string{"account", "class"},
		),

		// Time spent blocked waiting for a permit
		waitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "rate_limit_wait_seconds",
				Help:      "Time spent waiting for a rate limiter permit",
				Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1.0, 2.0, 5.0},
			},
			[]string{"account", "class"},
		),

		// Goroutines currently queued on a permit
		waiting: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "rate_limit_waiting",
				Help:      "Number of goroutines currently waiting for a permit",
			},
			[]string{"account", "class"},
		),
	}
}

// Register registers all rate limiter metrics with the Prometheus registry
func (c *RateLimitMetricsCollector) Register() error {
	if Registry == nil {
		return nil // Metrics not enabled
	}

	metrics := []prometheus.Collector{
		c.admissionsTotal,
		c.waitDuration,
		c.waiting,
	}

	for _, metric := range metrics {
		if err := Registry.Register(metric); err != nil {
			return err
		}
	}

	return nil
}

// RecordAdmission records a granted permit and how long the caller waited
func (c *RateLimitMetricsCollector) RecordAdmission(account, class string, waited time.Duration) {
	c.admissionsTotal.WithLabelValues(account, class).Inc()
	c.waitDuration.WithLabelValues(account, class).Observe(waited.Seconds())
}

// SetWaiting reports how many goroutines are currently queued for a permit
func (c *RateLimitMetricsCollector) SetWaiting(account, class string, waiters int) {
	c.waiting.WithLabelValues(account, class).Set(float64(waiters))
}
