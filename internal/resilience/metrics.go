package resilience

import "github.com/prometheus/client_golang/prometheus"

// Breaker telemetry is labelled by target, one breaker per courier upstream
// (cdek, boxberry, russianpost) plus the order callback.
var (
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "artshop",
			Name:      "courier_breaker_state",
			Help:      "Breaker state per courier upstream: 0=closed,1=open,2=half-open",
		},
		[]string{"target"},
	)
	BreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "artshop",
			Name:      "courier_breaker_transition_total",
			Help:      "Breaker state transitions per courier upstream",
		},
		[]string{"target", "from", "to"},
	)
	BreakerOpenedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "artshop",
			Name:      "courier_breaker_open_total",
			Help:      "Times a courier upstream breaker opened",
		},
		[]string{"target"},
	)
)

func init() {
	prometheus.MustRegister(BreakerState, BreakerTransitions, BreakerOpenedTotal)
}
