package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	SettlementCreated  = "created"
	SettlementReplayed = "replayed"
	SettlementRejected = "rejected"
	SettlementConflict = "conflict"
	SettlementErrored  = "error"
)

// SettlementMetrics records payment verification outcomes and provider latency.
type SettlementMetrics struct {
	settlements *prometheus.CounterVec
	gateway     *prometheus.HistogramVec
}

func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlements_total",
		Help: "Payment verifications by outcome.",
	}, []string{"outcome"})
	gateway := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_gateway_duration_seconds",
		Help:    "Payment provider call latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "outcome"})
	reg.MustRegister(settlements, gateway)
	return &SettlementMetrics{settlements: settlements, gateway: gateway}
}

// IncSettlement counts one verification with the given outcome.
func (s *SettlementMetrics) IncSettlement(result string) {
	if s == nil || s.settlements == nil {
		return
	}
	s.settlements.WithLabelValues(normalizeLabel(result)).Inc()
}

// ObserveGateway records the latency of a provider call.
func (s *SettlementMetrics) ObserveGateway(operation string, duration time.Duration, err error) {
	if s == nil || s.gateway == nil {
		return
	}
	s.gateway.WithLabelValues(normalizeLabel(operation), outcome(err)).Observe(duration.Seconds())
}
