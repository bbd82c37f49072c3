package metrics

import (
	"context"
	"strings"

	"github.com/kilianp07/agvdispatch/core/events"
	coremetrics "github.com/kilianp07/agvdispatch/core/metrics"
	"github.com/kilianp07/agvdispatch/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and forwards order
// outcomes to the sink, when it records them. It stops when the context is
// canceled or the bus is closed.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.MetricsSink) {
	if bus == nil || sink == nil {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				record(sink, ev)
			}
		}
	}()
}

func record(sink coremetrics.MetricsSink, ev eventbus.Event) {
	switch e := ev.(type) {
	case events.OrderAssignedEvent:
		if r, ok := sink.(coremetrics.AssignmentRecorder); ok {
			_ = r.RecordAssignment(coremetrics.AssignmentEvent{
				Order: e.Order, OrderType: e.Type, Vehicle: e.Vehicle,
				Phase: e.Phase, Costs: e.Costs, Time: e.Time,
			})
		}
	case events.OrderFailedEvent:
		if r, ok := sink.(coremetrics.OrderFailureRecorder); ok {
			_ = r.RecordOrderFailure(coremetrics.OrderFailureEvent{
				Order: e.Order, OrderType: e.Type, Vehicle: e.Vehicle,
				Phase: e.Phase, Reason: strings.Join(e.Reasons, ","), Time: e.Time,
			})
		}
	}
}
