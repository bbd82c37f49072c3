package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/kilianp07/agvdispatch/core/dispatch/logging"
	"github.com/kilianp07/agvdispatch/core/events"
	"github.com/kilianp07/agvdispatch/core/model"
)

// Operation triggers recorded in the decision log.
const (
	TriggerWithdrawByVehicle = "withdraw_by_vehicle"
	TriggerWithdrawByOrder   = "withdraw_by_order"
	TriggerReroute           = "reroute"
	TriggerRerouteAll        = "reroute_all"
	TriggerAssignNow         = "assign_now"
)

// Reasons recorded when an operation leaves things as they were.
const (
	ReasonNoRoute    = "no-route"
	ReasonNoOrder    = "no-transport-order"
	ReasonFinalState = "order-in-final-state"
)

// Operations is the remote-callable surface of the dispatcher.
type Operations interface {
	Dispatch(ctx context.Context) error
	WithdrawByVehicle(ctx context.Context, vehicle string, immediate bool) error
	WithdrawByTransportOrder(ctx context.Context, order string, immediate bool) error
	Reroute(ctx context.Context, vehicle string, t model.ReroutingType) error
	RerouteAll(ctx context.Context, t model.ReroutingType) error
	AssignNow(ctx context.Context, order string) error
}

var _ Operations = (*Dispatcher)(nil)

// WithdrawByVehicle withdraws the order the vehicle is processing. Without
// immediate abort the order becomes WITHDRAWN and is finished by the next
// cycle; with it the order fails and the vehicle is released right away.
func (d *Dispatcher) WithdrawByVehicle(ctx context.Context, vehicle string, immediate bool) error {
	if vehicle == "" {
		return fmt.Errorf("%w: vehicle name is required", ErrInvalidArgument)
	}
	return d.submit(ctx, TriggerWithdrawByVehicle, false, func(ctx context.Context, c *Cycle) error {
		v, ok := c.Vehicle(vehicle)
		if !ok {
			return fmt.Errorf("%w: vehicle %s", ErrUnknownObject, vehicle)
		}
		if v.TransportOrder == "" {
			c.Record(Decision{Action: logging.ActionSkipped, Vehicle: vehicle, Reasons: []string{ReasonNoOrder}})
			return nil
		}
		return withdraw(ctx, c, v.TransportOrder, immediate)
	})
}

// WithdrawByTransportOrder withdraws an order; see WithdrawByVehicle.
func (d *Dispatcher) WithdrawByTransportOrder(ctx context.Context, order string, immediate bool) error {
	if order == "" {
		return fmt.Errorf("%w: order name is required", ErrInvalidArgument)
	}
	return d.submit(ctx, TriggerWithdrawByOrder, false, func(ctx context.Context, c *Cycle) error {
		if _, ok := c.Order(order); !ok {
			return fmt.Errorf("%w: transport order %s", ErrUnknownObject, order)
		}
		return withdraw(ctx, c, order, immediate)
	})
}

func withdraw(ctx context.Context, c *Cycle, order string, immediate bool) error {
	o, _ := c.Order(order)
	switch {
	case o.State.IsFinalState():
		c.Record(Decision{Action: logging.ActionSkipped, Order: order, Reasons: []string{ReasonFinalState}})
		return nil
	case immediate:
		if err := c.FailOrder(ctx, order, []string{"withdrawn"}); err != nil {
			return err
		}
		c.Record(Decision{Action: logging.ActionWithdrawn, Order: order, Vehicle: o.ProcessingVehicle})
		c.publish(events.OrderWithdrawnEvent{Order: order, Vehicle: o.ProcessingVehicle, ImmediateAbort: true, Time: c.now()})
		return nil
	case o.State == model.OrderStateWithdrawn:
		return nil
	case o.State == model.OrderStateBeingProcessed:
		return c.WithdrawOrder(ctx, order)
	default:
		// Nobody works on it yet, so there is nothing to wait for.
		return c.FailOrder(ctx, order, []string{"withdrawn"})
	}
}

// Reroute recomputes the routes of the unfinished drive orders of the
// vehicle's order. When no new route exists the old one is kept.
func (d *Dispatcher) Reroute(ctx context.Context, vehicle string, t model.ReroutingType) error {
	if vehicle == "" {
		return fmt.Errorf("%w: vehicle name is required", ErrInvalidArgument)
	}
	if _, err := model.ParseReroutingType(string(t)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return d.submit(ctx, TriggerReroute, false, func(ctx context.Context, c *Cycle) error {
		if _, ok := c.Vehicle(vehicle); !ok {
			return fmt.Errorf("%w: vehicle %s", ErrUnknownObject, vehicle)
		}
		return d.reroute(ctx, c, vehicle, t)
	})
}

// RerouteAll reroutes every vehicle processing an order. Failures for
// single vehicles are collected; the others are still rerouted.
func (d *Dispatcher) RerouteAll(ctx context.Context, t model.ReroutingType) error {
	if _, err := model.ParseReroutingType(string(t)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return d.submit(ctx, TriggerRerouteAll, false, func(ctx context.Context, c *Cycle) error {
		var errs []error
		for _, v := range c.Vehicles() {
			if v.TransportOrder == "" {
				continue
			}
			if err := d.reroute(ctx, c, v.Name, t); err != nil {
				errs = append(errs, fmt.Errorf("vehicle %s: %w", v.Name, err))
			}
		}
		return errors.Join(errs...)
	})
}

func (d *Dispatcher) reroute(ctx context.Context, c *Cycle, vehicle string, t model.ReroutingType) error {
	v, _ := c.Vehicle(vehicle)
	o, ok := c.Order(v.TransportOrder)
	if v.TransportOrder == "" || !ok || o.State != model.OrderStateBeingProcessed {
		c.Record(Decision{Action: logging.ActionSkipped, Vehicle: vehicle, Reasons: []string{ReasonNoOrder}})
		return nil
	}
	start := v.CurrentPosition
	if t != model.ReroutingForced && v.NextPosition != "" {
		start = v.NextPosition
	}
	if start == "" {
		c.Record(Decision{Action: logging.ActionSkipped, Order: o.Name, Vehicle: vehicle, Reasons: []string{ReasonNoPosition}})
		return nil
	}
	if _, err := d.orders.FetchPoint(ctx, start); err != nil {
		return serviceError("fetch point", err)
	}
	future := o.FutureDriveOrders()
	if len(future) == 0 {
		return nil
	}
	pending := o
	pending.DriveOrders = future
	drive, ok := NewRouteAssigner(c).TryAssignRoutes(pending, v, start)
	if !ok {
		c.Record(Decision{Action: logging.ActionSkipped, Order: o.Name, Vehicle: vehicle, Reasons: []string{ReasonNoRoute}})
		return nil
	}
	for i := range drive {
		// The leg in progress keeps its progress state.
		drive[i].State = future[i].State
	}
	if err := c.UpdateDriveOrders(ctx, o.Name, drive); err != nil {
		return err
	}
	costs := AssignmentCandidate{Vehicle: v, TransportOrder: o, DriveOrders: drive}.TotalCosts()
	c.Record(Decision{Action: logging.ActionRerouted, Order: o.Name, Vehicle: vehicle, Costs: costs})
	c.publish(events.VehicleReroutedEvent{Vehicle: vehicle, Order: o.Name, Type: t, Costs: costs, Time: c.now()})
	return nil
}

// AssignNow assigns a dispatchable order to its intended vehicle at once,
// bypassing the selection filters of the regular cycle.
func (d *Dispatcher) AssignNow(ctx context.Context, order string) error {
	if order == "" {
		return fmt.Errorf("%w: order name is required", ErrInvalidArgument)
	}
	return d.submit(ctx, TriggerAssignNow, false, func(ctx context.Context, c *Cycle) error {
		o, ok := c.Order(order)
		if !ok {
			return fmt.Errorf("%w: transport order %s", ErrUnknownObject, order)
		}
		if !o.HasIntendedVehicle() {
			return fmt.Errorf("%w: order %s has no intended vehicle", ErrInvalidArgument, order)
		}
		if o.State != model.OrderStateDispatchable {
			return fmt.Errorf("%w: order %s is %s", ErrNotAssignable, order, o.State)
		}
		v, ok := c.Vehicle(o.IntendedVehicle)
		if !ok {
			return fmt.Errorf("%w: vehicle %s", ErrUnknownObject, o.IntendedVehicle)
		}
		if v.TransportOrder != "" {
			if cur, known := c.Order(v.TransportOrder); known && !cur.Dispensable {
				return fmt.Errorf("%w: vehicle %s is processing %s", ErrNotAssignable, v.Name, cur.Name)
			}
		}
		cand, ok := BuildCandidate(c, o, v)
		if !ok {
			return fmt.Errorf("%w: no route for %s with vehicle %s", ErrNotAssignable, order, v.Name)
		}
		return c.Assign(ctx, cand)
	})
}
