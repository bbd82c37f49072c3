package events

import "time"

// CycleEvent summarizes one dispatch cycle.
type CycleEvent struct {
	CycleID     string
	Trigger     string
	Assignments int
	Failures    int
	Duration    time.Duration
	Err         error
	Time        time.Time
}
