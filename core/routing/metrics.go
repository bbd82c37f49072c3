package routing

import "github.com/prometheus/client_golang/prometheus"

var routeComputations *prometheus.CounterVec

func newCollectors() *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "route_computations_total",
			Help: "Number of route computations by result",
		},
		[]string{"result"},
	)
}

func init() {
	routeComputations = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers routing metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(routeComputations)
}

// ResetMetrics reinitializes the collectors for tests and registers them on
// reg when it is not nil.
func ResetMetrics(reg prometheus.Registerer) {
	routeComputations = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
