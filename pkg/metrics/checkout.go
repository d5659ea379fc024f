package metrics

import "github.com/prometheus/client_golang/prometheus"

// CheckoutMetrics counts checkout state machine transitions.
type CheckoutMetrics struct {
	transitions *prometheus.CounterVec
}

func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_transitions_total",
		Help: "Checkout orchestrator transitions by target state.",
	}, []string{"state"})
	reg.MustRegister(transitions)
	return &CheckoutMetrics{transitions: transitions}
}

// ObserveTransition counts entry into state.
func (c *CheckoutMetrics) ObserveTransition(state string) {
	if c == nil || c.transitions == nil {
		return
	}
	c.transitions.WithLabelValues(normalizeLabel(state)).Inc()
}
