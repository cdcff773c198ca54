package progress

import (
	"github.com/vnykmshr/parcsv/pkg/metrics"
)

// Metrics counts rows and finished files in a metrics.Registry.
type Metrics struct {
	registry *metrics.Registry
}

// NewMetrics creates a Metrics reporter.
func NewMetrics(registry *metrics.Registry) *Metrics {
	return &Metrics{registry: registry}
}

func (m *Metrics) FileStarted(FileInfo) {}

func (m *Metrics) RowWritten(_ FileInfo, row Row) {
	outcome := "failed"
	if row.Succeeded {
		outcome = "succeeded"
	}
	m.registry.RowsProcessed.WithLabelValues(outcome).Inc()
}

func (m *Metrics) FileFinished(s Summary) {
	if s.Dropped > 0 {
		m.registry.RowsProcessed.WithLabelValues("dropped").Add(float64(s.Dropped))
	}
	m.registry.FilesFinished.WithLabelValues(string(s.Status)).Inc()
}
