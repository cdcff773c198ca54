package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config holds configuration for metrics collection.
type Config struct {
	// Enabled controls whether metrics collection is active.
	Enabled bool

	// Registry is the Prometheus registry to use. If nil, a fresh registry is created.
	Registry *prometheus.Registry

	// Addr is the listen address of the /metrics endpoint. Empty disables the endpoint.
	Addr string
}

// DefaultConfig returns a default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Enabled: false,
	}
}

// Setup builds the registry described by config. The returned registry is nil
// when metrics are disabled.
func Setup(config Config) (*Registry, *prometheus.Registry) {
	if !config.Enabled {
		return nil, nil
	}
	reg := config.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return NewRegistry(reg), reg
}

// NewServer returns an HTTP server exposing gatherer on /metrics.
func NewServer(addr string, gatherer prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
