package tracking

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the collectors shared by every Tracker registered with the
// same registry. Each tracker writes the series labelled with its name.
type Metrics struct {
	allocations   *prometheus.CounterVec
	deallocations *prometheus.CounterVec
	failures      *prometheus.CounterVec
	invalidUse    *prometheus.CounterVec
	liveBytes     *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with r. A nil r
// leaves them unregistered.
func NewMetrics(r prometheus.Registerer) *Metrics {
	return &Metrics{
		allocations: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Name: "memkit_allocations_total",
			Help: "Total number of successful allocations.",
		}, []string{"tracker"}),
		deallocations: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Name: "memkit_deallocations_total",
			Help: "Total number of successful deallocations.",
		}, []string{"tracker"}),
		failures: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Name: "memkit_allocation_failures_total",
			Help: "Total number of allocations and reallocations the allocator could not serve.",
		}, []string{"tracker"}),
		invalidUse: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Name: "memkit_invalid_use_total",
			Help: "Total number of calls with a span that was not allocated through the tracker.",
		}, []string{"tracker"}),
		liveBytes: promauto.With(r).NewGaugeVec(prometheus.GaugeOpts{
			Name: "memkit_live_bytes",
			Help: "Bytes currently allocated.",
		}, []string{"tracker"}),
	}
}

type trackerMetrics struct {
	allocations   prometheus.Counter
	deallocations prometheus.Counter
	failures      prometheus.Counter
	invalidUse    prometheus.Counter
	liveBytes     prometheus.Gauge
}

func (m *Metrics) forTracker(name string) trackerMetrics {
	return trackerMetrics{
		allocations:   m.allocations.WithLabelValues(name),
		deallocations: m.deallocations.WithLabelValues(name),
		failures:      m.failures.WithLabelValues(name),
		invalidUse:    m.invalidUse.WithLabelValues(name),
		liveBytes:     m.liveBytes.WithLabelValues(name),
	}
}
