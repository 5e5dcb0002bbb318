package observability

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"otcpool/core/events"
)

// PoolMetrics records pool operation outcomes, published events and value
// flowing to the treasury.
type PoolMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	events     *prometheus.CounterVec
	fees       *prometheus.CounterVec
	stranded   *prometheus.CounterVec
	anomalies  *prometheus.CounterVec
	throttles  *prometheus.CounterVec

	otelOps metric.Int64Counter
}

var (
	poolMetricsOnce sync.Once
	poolRegistry    *PoolMetrics
)

// Pool returns the lazily initialised pool metrics registry.
func Pool() *PoolMetrics {
	poolMetricsOnce.Do(func() {
		poolRegistry = &PoolMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "otc",
				Subsystem: "pool",
				Name:      "operations_total",
				Help:      "Pool operations segmented by operation and outcome (ok or error kind).",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "otc",
				Subsystem: "pool",
				Name:      "operation_duration_seconds",
				Help:      "Latency of pool operations including the storage commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "otc",
				Subsystem: "pool",
				Name:      "events_total",
				Help:      "Committed pool events by type.",
			}, []string{"type"}),
			fees: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "otc",
				Subsystem: "pool",
				Name:      "fees_collected_total",
				Help:      "Fees paid to the treasury, in base units, by mint.",
			}, []string{"mint"}),
			stranded: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "otc",
				Subsystem: "pool",
				Name:      "escrow_stranded_total",
				Help:      "Escrow balance left behind by expiry closes, in base units, by mint.",
			}, []string{"mint"}),
			anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "otc",
				Subsystem: "recon",
				Name:      "anomalies_total",
				Help:      "Reconciliation anomalies by type.",
			}, []string{"type"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "otc",
				Subsystem: "api",
				Name:      "throttled_total",
				Help:      "Requests rejected by rate limits or quotas, by reason.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			poolRegistry.operations,
			poolRegistry.latency,
			poolRegistry.events,
			poolRegistry.fees,
			poolRegistry.stranded,
			poolRegistry.anomalies,
			poolRegistry.throttles,
		)
		counter, err := otel.Meter("otcpool").Int64Counter("otc.pool.operations",
			metric.WithDescription("Pool operations by operation and outcome."))
		if err == nil {
			poolRegistry.otelOps = counter
		}
	})
	return poolRegistry
}

// RecordOperation records one pool operation. outcome is "ok" or the error kind.
func (m *PoolMetrics) RecordOperation(ctx context.Context, operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "ok"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
	if m.otelOps != nil {
		m.otelOps.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("outcome", outcome),
		))
	}
}

// RecordAnomaly counts a reconciliation finding.
func (m *PoolMetrics) RecordAnomaly(kind string) {
	if m == nil {
		return
	}
	m.anomalies.WithLabelValues(kind).Inc()
}

// RecordThrottle counts a rejected request.
func (m *PoolMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// Emit implements events.Emitter so the registry can observe committed
// events directly.
func (m *PoolMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	m.events.WithLabelValues(evt.EventType()).Inc()
	payload, ok := evt.(events.Payload)
	if !ok || payload.Event() == nil {
		return
	}
	attrs := payload.Event().Attributes
	if fee, ok := parseAmount(attrs["fee"]); ok && fee > 0 {
		m.fees.WithLabelValues(attrs["mintA"]).Add(float64(fee))
	}
	if stranded, ok := parseAmount(attrs["strandedAmountA"]); ok && stranded > 0 {
		m.stranded.WithLabelValues(attrs["mintA"]).Add(float64(stranded))
	}
}

func parseAmount(raw string) (uint64, bool) {
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
