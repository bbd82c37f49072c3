package mqtt

import (
	"context"
	"time"

	"github.com/kilianp07/agvdispatch/core/events"
	corelog "github.com/kilianp07/agvdispatch/core/logger"
	coremqtt "github.com/kilianp07/agvdispatch/core/mqtt"
	"github.com/kilianp07/agvdispatch/internal/eventbus"
)

// ForwarderOptions tune StartOrderForwarder.
type ForwarderOptions struct {
	// AckTimeout enables acknowledgment tracking when positive.
	AckTimeout time.Duration
	Logger     corelog.Logger
}

// StartOrderForwarder publishes every assigned transport order to the
// vehicle it was assigned to. Publishing happens on its own goroutine, never
// on the dispatcher's worker. It stops when the context is canceled or the
// bus is closed.
func StartOrderForwarder(ctx context.Context, bus eventbus.EventBus, cli Client, opts ForwarderOptions) {
	if bus == nil || cli == nil {
		return
	}
	log := opts.Logger
	if log == nil {
		log = corelog.NopLogger{}
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
				e, isAssign := ev.(events.OrderAssignedEvent)
				if !isAssign {
					continue
				}
				forward(ctx, cli, e, opts.AckTimeout, log)
			}
		}
	}()
}

func forward(ctx context.Context, cli Client, e events.OrderAssignedEvent, ackTimeout time.Duration, log corelog.Logger) {
	id, err := cli.SendOrder(coremqtt.OrderCommand{
		Vehicle:     e.Vehicle,
		Order:       e.Order,
		Type:        e.Type,
		DriveOrders: e.DriveOrders,
		Timestamp:   e.Time.UnixMilli(),
	})
	if err != nil {
		log.Errorf("forward order %s to %s: %v", e.Order, e.Vehicle, err)
		return
	}
	if ackTimeout <= 0 {
		return
	}
	go func() {
		if ctx.Err() != nil {
			return
		}
		acked, err := cli.WaitForAck(id, ackTimeout)
		switch {
		case err != nil:
			log.Warnf("order %s: %v", e.Order, err)
		case !acked:
			log.Warnf("order %s rejected by %s", e.Order, e.Vehicle)
		default:
			log.Debugw("order acknowledged", map[string]any{"order": e.Order, "vehicle": e.Vehicle, "command": id})
		}
	}()
}
