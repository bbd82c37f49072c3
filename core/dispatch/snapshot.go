package dispatch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kilianp07/agvdispatch/core/dispatch/logging"
	"github.com/kilianp07/agvdispatch/core/events"
	"github.com/kilianp07/agvdispatch/core/model"
	"github.com/kilianp07/agvdispatch/core/plant"
	"github.com/kilianp07/agvdispatch/internal/eventbus"
)

// Decision is one entry of the per-cycle decision log.
type Decision = logging.Decision

// Snapshot is the state of the plant, the fleet and the order pool taken
// once at the start of a unit of dispatcher work. Vehicles and orders are
// kept sorted by name.
type Snapshot struct {
	plant    *plant.Model
	router   Router
	vehicles []model.Vehicle
	orders   []model.TransportOrder
}

// NewSnapshot builds a snapshot from fetched state.
func NewSnapshot(m *plant.Model, r Router, vehicles []model.Vehicle, orders []model.TransportOrder) *Snapshot {
	s := &Snapshot{
		plant:    m,
		router:   r,
		vehicles: append([]model.Vehicle(nil), vehicles...),
		orders:   append([]model.TransportOrder(nil), orders...),
	}
	sort.Slice(s.vehicles, func(i, j int) bool { return s.vehicles[i].Name < s.vehicles[j].Name })
	sort.Slice(s.orders, func(i, j int) bool { return s.orders[i].Name < s.orders[j].Name })
	return s
}

func (s *Snapshot) Plant() *plant.Model { return s.plant }
func (s *Snapshot) Router() Router       { return s.router }

// Vehicles returns a copy of the fleet in name order.
func (s *Snapshot) Vehicles() []model.Vehicle { return append([]model.Vehicle(nil), s.vehicles...) }

// Orders returns a copy of the order pool in name order.
func (s *Snapshot) Orders() []model.TransportOrder {
	return append([]model.TransportOrder(nil), s.orders...)
}

// Vehicle looks up a vehicle by name.
func (s *Snapshot) Vehicle(name string) (model.Vehicle, bool) {
	if i, ok := s.vehicleIndex(name); ok {
		return s.vehicles[i], true
	}
	return model.Vehicle{}, false
}

// Order looks up a transport order by name.
func (s *Snapshot) Order(name string) (model.TransportOrder, bool) {
	if i, ok := s.orderIndex(name); ok {
		return s.orders[i], true
	}
	return model.TransportOrder{}, false
}

// OrdersInState returns the orders in state st, in name order.
func (s *Snapshot) OrdersInState(st model.OrderState) []model.TransportOrder {
	var out []model.TransportOrder
	for _, o := range s.orders {
		if o.State == st {
			out = append(out, o)
		}
	}
	return out
}

// TargetedPoints maps final destination points of orders being processed,
// and the next positions of moving vehicles, to the vehicle heading there.
func (s *Snapshot) TargetedPoints() map[string]string {
	out := map[string]string{}
	for _, v := range s.vehicles {
		if v.NextPosition != "" {
			out[v.NextPosition] = v.Name
		}
	}
	for _, o := range s.orders {
		if o.State != model.OrderStateBeingProcessed || o.ProcessingVehicle == "" {
			continue
		}
		if p, ok := o.FinalDestinationPoint(); ok {
			out[p] = o.ProcessingVehicle
		}
	}
	return out
}

func (s *Snapshot) vehicleIndex(name string) (int, bool) {
	i := sort.Search(len(s.vehicles), func(i int) bool { return s.vehicles[i].Name >= name })
	return i, i < len(s.vehicles) && s.vehicles[i].Name == name
}

func (s *Snapshot) orderIndex(name string) (int, bool) {
	i := sort.Search(len(s.orders), func(i int) bool { return s.orders[i].Name >= name })
	return i, i < len(s.orders) && s.orders[i].Name == name
}

func (s *Snapshot) putOrder(o model.TransportOrder) {
	i, ok := s.orderIndex(o.Name)
	if ok {
		s.orders[i] = o
		return
	}
	s.orders = append(s.orders, model.TransportOrder{})
	copy(s.orders[i+1:], s.orders[i:])
	s.orders[i] = o
}

func (s *Snapshot) updateVehicle(name string, fn func(*model.Vehicle)) {
	if i, ok := s.vehicleIndex(name); ok {
		fn(&s.vehicles[i])
	}
}

func (s *Snapshot) updateOrder(name string, fn func(*model.TransportOrder)) {
	if i, ok := s.orderIndex(name); ok {
		fn(&s.orders[i])
	}
}

// vehicleContext wraps v for the vehicle filters.
func (s *Snapshot) vehicleContext(v model.Vehicle) VehicleContext {
	return VehicleContext{Vehicle: v, View: s, Orders: s}
}

// Cycle is one unit of dispatcher work: a snapshot plus the commands issued
// against the order service. Every command is sent synchronously and then
// mirrored into the snapshot, so later phases see the effects of earlier ones.
type Cycle struct {
	*Snapshot
	ID      string
	Trigger string

	orders    OrderService
	bus       eventbus.EventBus
	now       func() time.Time
	phase     string
	decisions []Decision

	assignments map[string]int
	created     map[string]int
	failed      map[string]int
}

// NewCycle binds a snapshot to the order service it was taken from.
func NewCycle(id, trigger string, snap *Snapshot, orders OrderService, bus eventbus.EventBus) *Cycle {
	return &Cycle{
		Snapshot:    snap,
		ID:          id,
		Trigger:     trigger,
		orders:      orders,
		bus:         bus,
		now:         time.Now,
		assignments: map[string]int{},
		created:     map[string]int{},
		failed:      map[string]int{},
	}
}

// Decisions returns the decisions recorded so far.
func (c *Cycle) Decisions() []Decision { return append([]Decision(nil), c.decisions...) }

// Assignments returns the number of assignments made, by order type.
func (c *Cycle) Assignments() map[string]int { return c.assignments }

// Failures returns the number of orders failed, by order type.
func (c *Cycle) Failures() map[string]int { return c.failed }

// Created returns the number of orders created, by order type.
func (c *Cycle) Created() map[string]int { return c.created }

func (c *Cycle) enterPhase(name string) { c.phase = name }

// Record appends a decision attributed to the running phase.
func (c *Cycle) Record(d Decision) {
	if d.Phase == "" {
		d.Phase = c.phase
	}
	c.decisions = append(c.decisions, d)
}

func (c *Cycle) publish(e eventbus.Event) {
	if c.bus != nil {
		c.bus.Publish(e)
	}
}

// CreateOrder creates an order and makes it dispatchable right away.
func (c *Cycle) CreateOrder(ctx context.Context, creation model.TransportOrderCreation) (model.TransportOrder, error) {
	if err := creation.Validate(); err != nil {
		return model.TransportOrder{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	o, err := c.orders.CreateTransportOrder(ctx, creation)
	if err != nil {
		return model.TransportOrder{}, serviceError("create transport order", err)
	}
	c.Snapshot.putOrder(o)
	c.created[o.Type]++
	c.Record(Decision{Action: logging.ActionCreated, Order: o.Name, Vehicle: o.IntendedVehicle, Target: lastTarget(o)})
	c.publish(events.OrderCreatedEvent{Order: o.Name, Type: o.Type, Vehicle: o.IntendedVehicle, Phase: c.phase, Time: c.now()})
	for _, st := range []model.OrderState{model.OrderStateActive, model.OrderStateDispatchable} {
		if o.State == st || !o.State.CanTransitionTo(st) {
			continue
		}
		if err := c.SetOrderState(ctx, o.Name, st); err != nil {
			return o, err
		}
		o.State = st
	}
	return o, nil
}

// SetOrderState moves an order to st.
func (c *Cycle) SetOrderState(ctx context.Context, order string, st model.OrderState) error {
	o, ok := c.Order(order)
	if !ok {
		return fmt.Errorf("%w: transport order %s", ErrUnknownObject, order)
	}
	if !o.State.CanTransitionTo(st) {
		return fmt.Errorf("%w: order %s cannot move from %s to %s", ErrInvalidArgument, order, o.State, st)
	}
	if err := c.orders.UpdateTransportOrderState(ctx, order, st); err != nil {
		return serviceError("update transport order state", err)
	}
	c.updateOrder(order, func(o *model.TransportOrder) { o.State = st })
	return nil
}

// Assign commits a candidate. A dispensable order the vehicle is still
// processing is aborted first.
func (c *Cycle) Assign(ctx context.Context, cand AssignmentCandidate) error {
	v, ok := c.Vehicle(cand.Vehicle.Name)
	if !ok {
		return fmt.Errorf("%w: vehicle %s", ErrUnknownObject, cand.Vehicle.Name)
	}
	if v.TransportOrder != "" && v.TransportOrder != cand.TransportOrder.Name {
		prev, known := c.Order(v.TransportOrder)
		if known && !prev.Dispensable {
			return fmt.Errorf("%w: vehicle %s is processing %s", ErrNotAssignable, v.Name, prev.Name)
		}
		if err := c.AbortOrder(ctx, v.TransportOrder, []string{"superseded by " + cand.TransportOrder.Name}); err != nil {
			return err
		}
	}
	order := cand.TransportOrder.Name
	if err := c.orders.AssignTransportOrder(ctx, order, v.Name, cand.DriveOrders); err != nil {
		return serviceError("assign transport order", err)
	}
	drive := model.CloneDriveOrders(cand.DriveOrders)
	c.updateOrder(order, func(o *model.TransportOrder) {
		o.State = model.OrderStateBeingProcessed
		o.ProcessingVehicle = v.Name
		o.DriveOrders = drive
		o.CurrentDriveOrder = 0
	})
	c.updateVehicle(v.Name, func(veh *model.Vehicle) {
		veh.TransportOrder = order
		veh.ProcState = model.ProcStateProcessingOrder
	})
	costs := cand.TotalCosts()
	target, _ := cand.FinalDestination()
	c.assignments[cand.TransportOrder.Type]++
	c.Record(Decision{Action: logging.ActionAssigned, Order: order, Vehicle: v.Name, Target: target, Costs: costs})
	c.publish(events.OrderAssignedEvent{
		Order: order, Type: cand.TransportOrder.Type, Vehicle: v.Name,
		DriveOrders: drive, Costs: costs, Phase: c.phase, Time: c.now(),
	})
	return nil
}

// ReleaseVehicle detaches the vehicle from its order.
func (c *Cycle) ReleaseVehicle(ctx context.Context, vehicle string) error {
	if _, ok := c.Vehicle(vehicle); !ok {
		return fmt.Errorf("%w: vehicle %s", ErrUnknownObject, vehicle)
	}
	if err := c.orders.ReleaseVehicle(ctx, vehicle); err != nil {
		return serviceError("release vehicle", err)
	}
	c.updateVehicle(vehicle, func(v *model.Vehicle) {
		v.TransportOrder = ""
		v.ProcState = model.ProcStateIdle
	})
	c.Record(Decision{Action: logging.ActionReleased, Vehicle: vehicle})
	return nil
}

// UpdateDriveOrders replaces the unfinished drive orders of an order.
func (c *Cycle) UpdateDriveOrders(ctx context.Context, order string, future []model.DriveOrder) error {
	if _, ok := c.Order(order); !ok {
		return fmt.Errorf("%w: transport order %s", ErrUnknownObject, order)
	}
	if err := c.orders.UpdateDriveOrders(ctx, order, future); err != nil {
		return serviceError("update drive orders", err)
	}
	drive := model.CloneDriveOrders(future)
	c.updateOrder(order, func(o *model.TransportOrder) {
		cur := min(o.CurrentDriveOrder, len(o.DriveOrders))
		o.DriveOrders = append(o.DriveOrders[:cur:cur], drive...)
	})
	return nil
}

// FailOrder moves an order to FAILED and releases the vehicle processing it.
func (c *Cycle) FailOrder(ctx context.Context, order string, reasons []string) error {
	o, ok := c.Order(order)
	if !ok {
		return fmt.Errorf("%w: transport order %s", ErrUnknownObject, order)
	}
	if o.State.IsFinalState() {
		return nil
	}
	if err := c.SetOrderState(ctx, order, model.OrderStateFailed); err != nil {
		return err
	}
	vehicle := o.ProcessingVehicle
	if vehicle != "" {
		if v, ok := c.Vehicle(vehicle); ok && v.TransportOrder == order {
			if err := c.ReleaseVehicle(ctx, vehicle); err != nil {
				return err
			}
		}
	} else {
		vehicle = o.IntendedVehicle
	}
	c.failed[o.Type]++
	c.Record(Decision{Action: logging.ActionFailed, Order: order, Vehicle: vehicle, Reasons: reasons})
	c.publish(events.OrderFailedEvent{
		Order: order, Type: o.Type, Vehicle: vehicle, State: model.OrderStateFailed,
		Reasons: reasons, Phase: c.phase, Time: c.now(),
	})
	return nil
}

// AbortOrder fails an order a vehicle is processing, e.g. a dispensable
// parking order replaced by real work.
func (c *Cycle) AbortOrder(ctx context.Context, order string, reasons []string) error {
	return c.FailOrder(ctx, order, reasons)
}

// WithdrawOrder marks an order WITHDRAWN. The vehicle keeps it until
// finish_withdrawals runs.
func (c *Cycle) WithdrawOrder(ctx context.Context, order string) error {
	o, ok := c.Order(order)
	if !ok {
		return fmt.Errorf("%w: transport order %s", ErrUnknownObject, order)
	}
	if err := c.SetOrderState(ctx, order, model.OrderStateWithdrawn); err != nil {
		return err
	}
	c.Record(Decision{Action: logging.ActionWithdrawn, Order: order, Vehicle: o.ProcessingVehicle})
	c.publish(events.OrderWithdrawnEvent{Order: order, Vehicle: o.ProcessingVehicle, Time: c.now()})
	return nil
}

func lastTarget(o model.TransportOrder) string {
	if len(o.DriveOrders) == 0 {
		return ""
	}
	return o.DriveOrders[len(o.DriveOrders)-1].Destination.Target
}
