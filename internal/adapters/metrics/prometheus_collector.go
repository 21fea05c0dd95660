package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Namespace for all metrics
	namespace = "emag"
	// Subsystem for sync daemon metrics
	subsystem = "sync"
)

// Registry is the global Prometheus registry for all metrics.
// It stays nil when metrics are disabled; collectors treat a nil
// registry as "do not register" and keep recording into unexported
// vectors that nothing scrapes.
var Registry *prometheus.Registry

// InitRegistry initializes the Prometheus registry with the standard
// process and Go runtime collectors.
// Should be called once at application startup if metrics are enabled.
func InitRegistry() {
	Registry = prometheus.NewRegistry()
	Registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
}

// GetRegistry returns the global Prometheus registry
// Returns nil if metrics are not initialized
func GetRegistry() *prometheus.Registry {
	return Registry
}

// IsEnabled returns true if metrics collection is enabled
func IsEnabled() bool {
	return Registry != nil
}

// Handler serves the registry in the Prometheus exposition format.
// Returns a 404 handler when metrics are not initialized.
func Handler() http.Handler {
	if Registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
