package metrics

import (
	"time"
)

// CycleReport summarizes one unit of dispatcher work.
type CycleReport struct {
	CycleID  string
	Trigger  string
	Start    time.Time
	Duration time.Duration
	// Counts by order type.
	Assignments map[string]int
	Created     map[string]int
	Failed      map[string]int
	Decisions   int
	Err         string
}

// MetricsSink records dispatch cycles for observability purposes.
type MetricsSink interface {
	RecordCycle(rep CycleReport) error
}

// AssignmentEvent describes an order handed to a vehicle.
type AssignmentEvent struct {
	Order     string
	OrderType string
	Vehicle   string
	Phase     string
	Costs     float64
	Time      time.Time
}

// AssignmentRecorder records individual assignments.
type AssignmentRecorder interface {
	RecordAssignment(ev AssignmentEvent) error
}

// OrderFailureEvent describes an order that could not be served.
type OrderFailureEvent struct {
	Order     string
	OrderType string
	Vehicle   string
	Phase     string
	Reason    string
	Time      time.Time
}

// OrderFailureRecorder records failed orders.
type OrderFailureRecorder interface {
	RecordOrderFailure(ev OrderFailureEvent) error
}

// NopSink implements MetricsSink with no-op methods.
type NopSink struct{}

func (NopSink) RecordCycle(CycleReport) error              { return nil }
func (NopSink) RecordAssignment(AssignmentEvent) error     { return nil }
func (NopSink) RecordOrderFailure(OrderFailureEvent) error { return nil }

// MultiSink fans records out to several sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordCycle forwards the report to all sinks, returning the first error encountered.
func (m *MultiSink) RecordCycle(rep CycleReport) error {
	for _, s := range m.Sinks {
		if err := s.RecordCycle(rep); err != nil {
			return err
		}
	}
	return nil
}

// RecordAssignment forwards to the sinks that record assignments.
func (m *MultiSink) RecordAssignment(ev AssignmentEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(AssignmentRecorder); ok {
			if err := rec.RecordAssignment(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordOrderFailure forwards to the sinks that record failures.
func (m *MultiSink) RecordOrderFailure(ev OrderFailureEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(OrderFailureRecorder); ok {
			if err := rec.RecordOrderFailure(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close closes the sinks that hold resources.
func (m *MultiSink) Close() {
	for _, s := range m.Sinks {
		CloseSink(s)
	}
}

// CloseSink closes s when it holds resources.
func CloseSink(s MetricsSink) {
	if c, ok := s.(interface{ Close() }); ok {
		c.Close()
	}
}
