package logging

import (
	"context"
	"testing"
	"time"
)

func TestSQLiteStore_PersistQuery(t *testing.T) {
	store, err := NewSQLiteStore("file:test.db?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = store.Close() }()
	now := time.Now()
	recs := []LogRecord{
		{Timestamp: now, CycleID: "c1", Trigger: "periodic", Decisions: []Decision{
			{Phase: "assign_free_orders", Action: ActionAssigned, Order: "o1", Vehicle: "v1"},
		}},
		{Timestamp: now.Add(time.Second), CycleID: "c2", Trigger: "explicit", Decisions: []Decision{
			{Phase: "recharge_idle_vehicles", Action: ActionFailed, Order: "Recharge-0001", Vehicle: "v2"},
		}},
	}
	for _, rec := range recs {
		if err := store.Append(context.Background(), rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	out, err := store.Query(context.Background(), LogQuery{VehicleID: "v1"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 1 || out[0].CycleID != "c1" {
		t.Fatalf("expected c1 only, got %+v", out)
	}
	out, err = store.Query(context.Background(), LogQuery{Phase: "recharge_idle_vehicles", OrderID: "Recharge-0001"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 1 || out[0].CycleID != "c2" {
		t.Fatalf("expected c2 only, got %+v", out)
	}
	out, err = store.Query(context.Background(), LogQuery{Start: now.Add(500 * time.Millisecond)})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 record after start, got %d", len(out))
	}
}
