package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "approvals"

// Collectors groups the engine's prometheus metrics.
type Collectors struct {
	Transitions      *prometheus.CounterVec
	Escalations      prometheus.Counter
	DispatchFailures *prometheus.CounterVec
	SweepDuration    prometheus.Histogram
}

// NewCollectors registers the collectors with reg. A nil reg leaves them unregistered.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)

	return &Collectors{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Request status transitions by target status.",
		}, []string{"status"}),
		Escalations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "Requests escalated by the sweeper.",
		}),
		DispatchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_failures_total",
			Help:      "Side effects that failed after approval, by type.",
		}, []string{"type"}),
		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of escalation sweeps.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Discard returns collectors that are not registered anywhere.
func Discard() *Collectors {
	return NewCollectors(nil)
}

func (c *Collectors) Transition(status string) {
	c.Transitions.WithLabelValues(status).Inc()
}

func (c *Collectors) DispatchFailed(actionType string) {
	c.DispatchFailures.WithLabelValues(actionType).Inc()
}
