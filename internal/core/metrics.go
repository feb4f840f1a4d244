package core

import (
	"context"
	"time"

	"itemdb/pkg/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsRecorder observes World operations such as commit and load.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// RecordCounter is implemented by recorders that also count committed records
// by kind.
type RecordCounter interface {
	CountRecords(kind domain.RecordKind, n int)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

// PrometheusMetrics exports World metrics to a Prometheus registry.
type PrometheusMetrics struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	records    *prometheus.CounterVec
}

// NewPrometheusMetrics registers the World collectors on reg.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)
	return &PrometheusMetrics{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "itemdb",
			Subsystem: "world",
			Name:      "operations_total",
			Help:      "World operations by outcome.",
		}, []string{"operation", "status"}),
		durations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "itemdb",
			Subsystem: "world",
			Name:      "operation_duration_seconds",
			Help:      "Duration of World operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"operation"}),
		records: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "itemdb",
			Subsystem: "world",
			Name:      "records_committed_total",
			Help:      "Records committed, by kind.",
		}, []string{"kind"}),
	}
}

// Observe implements MetricsRecorder.
func (m *PrometheusMetrics) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	status := "error"
	if success {
		status = "success"
	}
	m.operations.WithLabelValues(operation, status).Inc()
	m.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

// CountRecords implements RecordCounter.
func (m *PrometheusMetrics) CountRecords(kind domain.RecordKind, n int) {
	m.records.WithLabelValues(string(kind)).Add(float64(n))
}

var (
	_ MetricsRecorder = noopMetrics{}
	_ MetricsRecorder = (*PrometheusMetrics)(nil)
	_ RecordCounter   = (*PrometheusMetrics)(nil)
	_ MetricsRecorder = (*ExpvarMetricsRecorder)(nil)
)
