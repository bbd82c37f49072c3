package metrics

import (
	"errors"
	"math"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/agvdispatch/core/metrics"
)

// PromSink exports cycle summaries and order outcomes as Prometheus metrics.
type PromSink struct {
	cycles      *prometheus.CounterVec
	decisions   prometheus.Histogram
	lastCycle   prometheus.Gauge
	assignments *prometheus.CounterVec
	costs       *prometheus.HistogramVec
	failures    *prometheus.CounterVec
}

// NewPromSink registers the sink's metrics on the default registerer. The
// HTTP endpoint is served separately, see StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Metrics
// already registered by an earlier sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agv_dispatch_reports_total",
			Help: "Dispatch cycle reports received, by trigger and result",
		}, []string{"trigger", "result"}),
		decisions: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "agv_dispatch_cycle_decisions",
			Help:    "Number of decisions logged per cycle",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8),
		}),
		lastCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agv_dispatch_last_cycle_timestamp_seconds",
			Help: "Start time of the last reported cycle",
		}),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agv_order_assignments_total",
			Help: "Orders assigned, by vehicle and order type",
		}, []string{"vehicle", "order_type"}),
		costs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agv_order_assignment_costs",
			Help:    "Route costs of assigned orders",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"order_type"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agv_order_failures_total",
			Help: "Orders failed, by order type and phase",
		}, []string{"order_type", "phase"}),
	}
	var err error
	if s.cycles, err = register(reg, s.cycles); err != nil {
		return nil, err
	}
	if s.decisions, err = register(reg, s.decisions); err != nil {
		return nil, err
	}
	if s.lastCycle, err = register(reg, s.lastCycle); err != nil {
		return nil, err
	}
	if s.assignments, err = register(reg, s.assignments); err != nil {
		return nil, err
	}
	if s.costs, err = register(reg, s.costs); err != nil {
		return nil, err
	}
	if s.failures, err = register(reg, s.failures); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (s *PromSink) RecordCycle(rep coremetrics.CycleReport) error {
	result := "ok"
	if rep.Err != "" {
		result = "error"
	}
	s.cycles.WithLabelValues(rep.Trigger, result).Inc()
	s.decisions.Observe(float64(rep.Decisions))
	s.lastCycle.Set(float64(rep.Start.UnixNano()) / 1e9)
	return nil
}

func (s *PromSink) RecordAssignment(ev coremetrics.AssignmentEvent) error {
	s.assignments.WithLabelValues(ev.Vehicle, ev.OrderType).Inc()
	if !math.IsInf(ev.Costs, 0) && !math.IsNaN(ev.Costs) {
		s.costs.WithLabelValues(ev.OrderType).Observe(ev.Costs)
	}
	return nil
}

func (s *PromSink) RecordOrderFailure(ev coremetrics.OrderFailureEvent) error {
	s.failures.WithLabelValues(ev.OrderType, ev.Phase).Inc()
	return nil
}
