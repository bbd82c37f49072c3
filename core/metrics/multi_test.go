package metrics

import "testing"

type recordSink struct {
	count int
}

func (r *recordSink) RecordCycle(CycleReport) error {
	r.count++
	return nil
}

func (r *recordSink) RecordAssignment(AssignmentEvent) error {
	r.count++
	return nil
}

type cycleOnly struct{ cycles int }

func (c *cycleOnly) RecordCycle(CycleReport) error {
	c.cycles++
	return nil
}

// TestMultiSink ensures records are forwarded to all sinks.
func TestMultiSink(t *testing.T) {
	s1 := &recordSink{}
	s2 := &recordSink{}
	only := &cycleOnly{}
	m := NewMultiSink(s1, s2, only)
	if err := m.RecordCycle(CycleReport{CycleID: "c"}); err != nil {
		t.Fatalf("record cycle: %v", err)
	}
	if err := m.RecordAssignment(AssignmentEvent{Order: "o"}); err != nil {
		t.Fatalf("record assignment: %v", err)
	}
	if err := m.RecordOrderFailure(OrderFailureEvent{Order: "o"}); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if s1.count != 2 || s2.count != 2 {
		t.Fatalf("records not forwarded: %d %d", s1.count, s2.count)
	}
	if only.cycles != 1 {
		t.Fatalf("expected one cycle on partial sink, got %d", only.cycles)
	}
}
