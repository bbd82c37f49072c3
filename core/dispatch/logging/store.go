package logging

import (
	"context"
	"time"
)

// Decision is one action taken, or refused, during a dispatch cycle.
type Decision struct {
	Phase   string   `json:"phase"`
	Action  string   `json:"action"`
	Order   string   `json:"order,omitempty"`
	Vehicle string   `json:"vehicle,omitempty"`
	Target  string   `json:"target,omitempty"`
	Costs   float64  `json:"costs,omitempty"`
	Reasons []string `json:"reasons,omitempty"`
}

// Decision actions.
const (
	ActionActivated  = "activated"
	ActionUnroutable = "unroutable"
	ActionCreated    = "created"
	ActionAssigned   = "assigned"
	ActionFailed     = "failed"
	ActionWithdrawn  = "withdrawn"
	ActionReleased   = "released"
	ActionRerouted   = "rerouted"
	ActionSkipped    = "skipped"
)

// LogRecord captures the decisions of one unit of dispatcher work.
type LogRecord struct {
	Timestamp time.Time  `json:"timestamp"`
	CycleID   string     `json:"cycle_id"`
	Trigger   string     `json:"trigger"`
	Duration  float64    `json:"duration_seconds"`
	Decisions []Decision `json:"decisions"`
	Error     string     `json:"error,omitempty"`
}

// LogQuery defines filters for retrieving records.
type LogQuery struct {
	Start     time.Time
	End       time.Time
	VehicleID string
	OrderID   string
	Phase     string
}

// Matches reports whether rec satisfies every filter set in q.
func (q LogQuery) Matches(rec LogRecord) bool {
	if !q.Start.IsZero() && rec.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && rec.Timestamp.After(q.End) {
		return false
	}
	if q.VehicleID == "" && q.OrderID == "" && q.Phase == "" {
		return true
	}
	for _, d := range rec.Decisions {
		if q.VehicleID != "" && d.Vehicle != q.VehicleID {
			continue
		}
		if q.OrderID != "" && d.Order != q.OrderID {
			continue
		}
		if q.Phase != "" && d.Phase != q.Phase {
			continue
		}
		return true
	}
	return false
}

// LogStore persists LogRecords and supports querying.
type LogStore interface {
	Append(ctx context.Context, rec LogRecord) error
	Query(ctx context.Context, q LogQuery) ([]LogRecord, error)
	Close() error
}

// NopStore discards every record.
type NopStore struct{}

func (NopStore) Append(context.Context, LogRecord) error                { return nil }
func (NopStore) Query(context.Context, LogQuery) ([]LogRecord, error) { return nil, nil }
func (NopStore) Close() error                                          { return nil }
