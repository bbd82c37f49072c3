package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	cycleCount     *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
	phaseDuration  *prometheus.HistogramVec
	ordersAssigned *prometheus.CounterVec
	ordersCreated  *prometheus.CounterVec
	ordersFailed   *prometheus.CounterVec
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, prometheus.Histogram, *prometheus.HistogramVec, *prometheus.CounterVec, *prometheus.CounterVec, *prometheus.CounterVec) {
	cycles := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_cycles_total",
			Help: "Number of dispatcher work units by trigger and result",
		},
		[]string{"trigger", "result"},
	)
	dur := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_cycle_duration_seconds",
			Help:    "Duration of a dispatch cycle",
			Buckets: prometheus.DefBuckets,
		},
	)
	phase := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_phase_duration_seconds",
			Help:    "Duration of a single dispatch phase",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)
	assigned := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_orders_assigned_total",
			Help: "Number of transport orders assigned to vehicles",
		},
		[]string{"order_type"},
	)
	created := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_orders_created_total",
			Help: "Number of transport orders created by the dispatcher",
		},
		[]string{"order_type"},
	)
	failed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_orders_failed_total",
			Help: "Number of transport orders failed by the dispatcher",
		},
		[]string{"order_type"},
	)
	return cycles, dur, phase, assigned, created, failed
}

func init() {
	cycleCount, cycleDuration, phaseDuration, ordersAssigned, ordersCreated, ordersFailed = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(cycleCount, cycleDuration, phaseDuration, ordersAssigned, ordersCreated, ordersFailed)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	cycleCount, cycleDuration, phaseDuration, ordersAssigned, ordersCreated, ordersFailed = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}

func observeCycle(c *Cycle) {
	for t, n := range c.Assignments() {
		ordersAssigned.WithLabelValues(t).Add(float64(n))
	}
	for t, n := range c.Created() {
		ordersCreated.WithLabelValues(t).Add(float64(n))
	}
	for t, n := range c.Failures() {
		ordersFailed.WithLabelValues(t).Add(float64(n))
	}
}
