package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// CartMetrics records cart mutations and anonymous-to-account merges.
type CartMetrics struct {
	mutations     *prometheus.CounterVec
	mergeLines    *prometheus.CounterVec
	mergeDuration prometheus.Histogram
}

// NewCartMetrics registers the cart metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return &CartMetrics{}
	}
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Cart mutations by operation and outcome.",
	}, []string{"op", "outcome"})
	mergeLines := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_merge_lines_total",
		Help: "Local cart lines submitted to the account cart during merges.",
	}, []string{"outcome"})
	mergeDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cart_merge_duration_seconds",
		Help:    "Duration of local-to-account cart merges in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(mutations, mergeLines, mergeDuration)
	return &CartMetrics{
		mutations:     mutations,
		mergeLines:    mergeLines,
		mergeDuration: mergeDuration,
	}
}

// ObserveMutation counts one mutation attempt.
func (c *CartMetrics) ObserveMutation(op string, err error) {
	if c == nil || c.mutations == nil {
		return
	}
	c.mutations.WithLabelValues(normalizeLabel(op), outcome(err)).Inc()
}

// ObserveMerge records a finished merge.
func (c *CartMetrics) ObserveMerge(merged, failed int, duration time.Duration) {
	if c == nil || c.mergeLines == nil {
		return
	}
	c.mergeLines.WithLabelValues(OutcomeSuccess).Add(float64(merged))
	c.mergeLines.WithLabelValues(OutcomeFailure).Add(float64(failed))
	c.mergeDuration.Observe(duration.Seconds())
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
