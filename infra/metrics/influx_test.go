package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/agvdispatch/core/metrics"
)

// lineServer collects the line protocol bodies written to it.
type lineServer struct {
	*httptest.Server
	mu     sync.Mutex
	bodies []string
}

func newLineServer() *lineServer {
	ls := &lineServer{}
	ls.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		ls.mu.Lock()
		ls.bodies = append(ls.bodies, strings.TrimSpace(string(data)))
		ls.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	return ls
}

func (ls *lineServer) lines() []string {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return append([]string(nil), ls.bodies...)
}

func TestInfluxSink_RecordCycle(t *testing.T) {
	srv := newLineServer()
	defer srv.Close()

	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()
	rep := coremetrics.CycleReport{
		CycleID:     "c-1",
		Trigger:     "explicit",
		Start:       now,
		Duration:    1500 * time.Microsecond,
		Assignments: map[string]int{"Transport": 2, "Park": 1},
		Failed:      map[string]int{"Charge": 1},
		Decisions:   5,
	}
	if err := sink.RecordCycle(rep); err != nil {
		t.Fatalf("record error: %v", err)
	}
	p := write.NewPointWithMeasurement("dispatch_cycle").
		AddTag("trigger", "explicit").
		AddTag("result", "ok").
		AddTag("cycle_id", "c-1").
		AddField("duration_ms", 1.5).
		AddField("decisions", 5).
		AddField("assigned", 3).
		AddField("created", 0).
		AddField("failed", 1).
		SetTime(now)
	expected := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	if got := srv.lines(); len(got) != 1 || got[0] != expected {
		t.Errorf("unexpected body: %#v", got)
	}
}

func TestInfluxSink_RecordOrderOutcomes(t *testing.T) {
	srv := newLineServer()
	defer srv.Close()

	sink := NewInfluxSink(srv.URL+"/api/v2/write", "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()
	if err := sink.RecordAssignment(coremetrics.AssignmentEvent{
		Order: "T-1", OrderType: "Transport", Vehicle: "V1", Phase: "assign_free_orders", Costs: 2.12345, Time: now,
	}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := sink.RecordOrderFailure(coremetrics.OrderFailureEvent{
		Order: "Recharge-00001", OrderType: "Charge", Reason: "destination-occupied", Time: now,
	}); err != nil {
		t.Fatalf("record: %v", err)
	}
	p1 := write.NewPointWithMeasurement("order_assigned").
		AddTag("vehicle_id", "V1").
		AddTag("order_type", "Transport").
		AddTag("phase", "assign_free_orders").
		AddTag("order_id", "T-1").
		AddField("costs", 2.123).
		SetTime(now)
	p2 := write.NewPointWithMeasurement("order_failed").
		AddTag("order_type", "Charge").
		AddTag("order_id", "Recharge-00001").
		AddField("reason", "destination-occupied").
		SetTime(now)
	exp1 := strings.TrimSpace(write.PointToLineProtocol(p1, time.Nanosecond))
	exp2 := strings.TrimSpace(write.PointToLineProtocol(p2, time.Nanosecond))
	got := srv.lines()
	if len(got) != 2 || got[0] != exp1 || got[1] != exp2 {
		t.Errorf("unexpected bodies: %#v", got)
	}
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(srv.URL+"/api/v2/write", "tok", "org", "bucket")
	if _, ok := sink.(*InfluxSink); ok {
		t.Fatalf("expected NopSink on failing health check")
	}
	if !called {
		t.Fatalf("health endpoint not called")
	}
}
