package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetricsCollector handles sync run metrics
type SyncMetricsCollector struct {
	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	pagesTotal  *prometheus.CounterVec
	itemsTotal  *prometheus.CounterVec
}

// NewSyncMetricsCollector creates a new sync run metrics collector
func NewSyncMetricsCollector() *SyncMetricsCollector {
	return &SyncMetricsCollector{
		// Finished runs by account, resource, and terminal status
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "runs_total",
				Help:      "Total number of finished sync runs by account, resource, and status",
			},
			[]string{"account", "resource", "status"},
		),

		// Run duration histogram; runs are capped at ten minutes
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "run_duration_seconds",
				Help:      "Sync run duration distribution",
				Buckets:   []float64{1.0, 5.0, 15.0, 30.0, 60.0, 120.0, 300.0, 600.0},
			},
			[]string{"account", "resource"},
		),

		// Pages fetched counter
		pagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "pages_total",
				Help:      "Total number of pages fetched from the marketplace",
			},
			[]string{"account", "resource"},
		),

		// Item outcomes counter (created, updated, skipped, failed, review)
		itemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "items_total",
				Help:      "Total number of item outcomes by account, resource, and action",
			},
			[]string{"account", "resource", "action"},
		),
	}
}

// Register registers all sync metrics with the Prometheus registry
func (c *SyncMetricsCollector) Register() error {
	if Registry == nil {
		return nil // Metrics not enabled
	}

	metrics := []prometheus.Collector{
		c.runsTotal,
		c.runDuration,
		c.pagesTotal,
		c.itemsTotal,
	}

	for _, metric := range metrics {
		if err := Registry.Register(metric); err != nil {
			return err
		}
	}

	return nil
}

// RecordRun records a finished sync run with its terminal status
func (c *SyncMetricsCollector) RecordRun(account, resource, status string, duration time.Duration) {
	c.runsTotal.WithLabelValues(account, resource, status).Inc()
	c.runDuration.WithLabelValues(account, resource).Observe(duration.Seconds())
}

// RecordPage counts one fetched page
func (c *SyncMetricsCollector) RecordPage(account, resource string) {
	c.pagesTotal.WithLabelValues(account, resource).Inc()
}

// RecordItems adds n item outcomes of the given action
func (c *SyncMetricsCollector) RecordItems(account, resource, action string, n int) {
	if n <= 0 {
		return
	}
	c.itemsTotal.WithLabelValues(account, resource, action).Add(float64(n))
}
