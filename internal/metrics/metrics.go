// Package metrics provides Prometheus instrumentation for plan state.
//
// Metrics cover the three operations that must never desynchronize:
//   - Promotions of nested-trace placeholders into an ancestor plan
//   - Simplify/detail round trips through the codec
//   - Registrations into a worker's identity registry
//
// All methods are nil-safe so packages can carry an optional *Metrics
// without guarding every call site.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace for all metrics.
const metricsNamespace = "planstate"

// Metrics holds every planstate counter.
type Metrics struct {
	PromotionsTotal    prometheus.Counter
	ReadsTotal         *prometheus.CounterVec
	CodecOpsTotal      *prometheus.CounterVec
	CodecBytesTotal    *prometheus.CounterVec
	RegistrationsTotal *prometheus.CounterVec
}

// New creates the metrics and registers them with reg.
// Pass prometheus.NewRegistry() in tests to keep registries isolated.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PromotionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "state",
			Name:      "promotions_total",
			Help:      "Placeholders promoted from a nested trace into an ancestor plan",
		}),
		ReadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "state",
			Name:      "reads_total",
			Help:      "State reads by whether an ancestor trace was active",
		}, []string{"nested"}),
		CodecOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "codec",
			Name:      "operations_total",
			Help:      "Codec operations by direction, object type and result",
		}, []string{"direction", "type", "result"}),
		CodecBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "codec",
			Name:      "bytes_total",
			Help:      "Wire bytes produced or consumed by direction",
		}, []string{"direction"}),
		RegistrationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "registry",
			Name:      "registrations_total",
			Help:      "Values registered into a worker registry",
		}, []string{"worker"}),
	}

	reg.MustRegister(
		m.PromotionsTotal,
		m.ReadsTotal,
		m.CodecOpsTotal,
		m.CodecBytesTotal,
		m.RegistrationsTotal,
	)
	return m
}

// RecordPromotion counts one promoted placeholder.
func (m *Metrics) RecordPromotion() {
	if m == nil {
		return
	}
	m.PromotionsTotal.Inc()
}

// RecordRead counts one state read.
func (m *Metrics) RecordRead(nested bool) {
	if m == nil {
		return
	}
	label := "false"
	if nested {
		label = "true"
	}
	m.ReadsTotal.WithLabelValues(label).Inc()
}

// RecordCodec counts one simplify or detail call and the bytes it moved.
func (m *Metrics) RecordCodec(direction, typ string, size int, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.CodecOpsTotal.WithLabelValues(direction, typ, result).Inc()
	if err == nil && size > 0 {
		m.CodecBytesTotal.WithLabelValues(direction).Add(float64(size))
	}
}

// RecordRegistration counts one registry insertion on worker.
func (m *Metrics) RecordRegistration(worker string) {
	if m == nil {
		return
	}
	m.RegistrationsTotal.WithLabelValues(worker).Inc()
}
