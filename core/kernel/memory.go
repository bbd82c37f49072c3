// Package kernel provides an in-memory vehicle, order and plant registry
// implementing the services the dispatcher consumes. It backs the CLI, the
// HTTP demo mode and tests.
package kernel

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/agvdispatch/core/dispatch"
	"github.com/kilianp07/agvdispatch/core/model"
	"github.com/kilianp07/agvdispatch/core/plant"
)

// MemoryKernel keeps vehicles and transport orders in maps guarded by a
// mutex. Point occupancy is derived from vehicle positions, merged with the
// occupancy of the base plant model.
type MemoryKernel struct {
	mu       sync.RWMutex
	plant    *plant.Model
	vehicles map[string]model.Vehicle
	orders   map[string]model.TransportOrder
	seq      int
	now      func() time.Time
}

var (
	_ dispatch.OrderService      = (*MemoryKernel)(nil)
	_ dispatch.PlantModelService = (*MemoryKernel)(nil)
)

// NewMemoryKernel creates a kernel for the plant and fleet.
func NewMemoryKernel(m *plant.Model, vehicles []model.Vehicle) (*MemoryKernel, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: plant model is required", dispatch.ErrInvalidArgument)
	}
	k := &MemoryKernel{
		plant:    m,
		vehicles: make(map[string]model.Vehicle, len(vehicles)),
		orders:   map[string]model.TransportOrder{},
		now:      time.Now,
	}
	for _, v := range vehicles {
		if err := k.UpdateVehicle(v); err != nil {
			return nil, err
		}
	}
	return k, nil
}

// UpdateVehicle inserts or replaces a vehicle. Reports about a vehicle
// already known should go through PatchVehicle, which cannot undo an
// assignment made in the meantime.
func (k *MemoryKernel) UpdateVehicle(v model.Vehicle) error {
	if v.Name == "" {
		return fmt.Errorf("%w: vehicle name is required", dispatch.ErrInvalidArgument)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkVehicle(v); err != nil {
		return err
	}
	k.vehicles[v.Name] = v.Clone()
	return nil
}

// PatchVehicle applies fn to the stored vehicle under the kernel lock. The
// order assignment (transport order and processing state) is owned by the
// dispatcher and survives whatever fn does to it.
func (k *MemoryKernel) PatchVehicle(name string, fn func(*model.Vehicle) error) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	cur, ok := k.vehicles[name]
	if !ok {
		return fmt.Errorf("%w: vehicle %s", dispatch.ErrUnknownObject, name)
	}
	v := cur.Clone()
	if err := fn(&v); err != nil {
		return err
	}
	v.Name = cur.Name
	v.TransportOrder = cur.TransportOrder
	v.ProcState = cur.ProcState
	if err := k.checkVehicle(v); err != nil {
		return err
	}
	k.vehicles[name] = v
	return nil
}

// checkVehicle validates positions and occupancy. k.mu must be held.
func (k *MemoryKernel) checkVehicle(v model.Vehicle) error {
	for _, p := range []string{v.CurrentPosition, v.NextPosition} {
		if p == "" {
			continue
		}
		if _, ok := k.plant.Point(p); !ok {
			return fmt.Errorf("%w: vehicle %s at unknown point %s", dispatch.ErrUnknownObject, v.Name, p)
		}
	}
	if v.CurrentPosition != "" {
		for _, other := range k.vehicles {
			if other.Name != v.Name && other.CurrentPosition == v.CurrentPosition {
				return fmt.Errorf("%w: point %s already occupied by %s", dispatch.ErrInvalidArgument, v.CurrentPosition, other.Name)
			}
		}
	}
	return nil
}

func (k *MemoryKernel) FetchVehicles(context.Context) ([]model.Vehicle, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]model.Vehicle, 0, len(k.vehicles))
	for _, v := range k.vehicles {
		out = append(out, v.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (k *MemoryKernel) FetchVehicle(_ context.Context, name string) (model.Vehicle, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	v, ok := k.vehicles[name]
	if !ok {
		return model.Vehicle{}, fmt.Errorf("%w: vehicle %s", dispatch.ErrUnknownObject, name)
	}
	return v.Clone(), nil
}

func (k *MemoryKernel) FetchTransportOrders(context.Context) ([]model.TransportOrder, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]model.TransportOrder, 0, len(k.orders))
	for _, o := range k.orders {
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// FetchTransportOrder returns one order.
func (k *MemoryKernel) FetchTransportOrder(_ context.Context, name string) (model.TransportOrder, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	o, ok := k.orders[name]
	if !ok {
		return model.TransportOrder{}, fmt.Errorf("%w: transport order %s", dispatch.ErrUnknownObject, name)
	}
	return o.Clone(), nil
}

func (k *MemoryKernel) FetchPoint(ctx context.Context, name string) (model.Point, error) {
	m, err := k.FetchPlantModel(ctx)
	if err != nil {
		return model.Point{}, err
	}
	p, ok := m.Point(name)
	if !ok {
		return model.Point{}, fmt.Errorf("%w: point %s", dispatch.ErrUnknownObject, name)
	}
	return p, nil
}

// FetchPlantModel returns the plant with occupancy taken from the vehicles.
func (k *MemoryKernel) FetchPlantModel(context.Context) (*plant.Model, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	occ := map[string]string{}
	for _, p := range k.plant.Points() {
		if p.OccupyingVehicle != "" {
			occ[p.Name] = p.OccupyingVehicle
		}
	}
	for _, v := range k.vehicles {
		if v.CurrentPosition == "" {
			continue
		}
		for p, by := range occ {
			if by == v.Name {
				delete(occ, p)
			}
		}
		occ[v.CurrentPosition] = v.Name
	}
	return k.plant.WithOccupancy(occ)
}

func (k *MemoryKernel) CreateTransportOrder(_ context.Context, c model.TransportOrderCreation) (model.TransportOrder, error) {
	if err := c.Validate(); err != nil {
		return model.TransportOrder{}, fmt.Errorf("%w: %v", dispatch.ErrInvalidArgument, err)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	name := c.Name
	if c.IncompleteName {
		k.seq++
		name = fmt.Sprintf("%s%05d", c.Name, k.seq)
	}
	if _, dup := k.orders[name]; dup {
		return model.TransportOrder{}, fmt.Errorf("%w: transport order %s already exists", dispatch.ErrInvalidArgument, name)
	}
	o := model.TransportOrder{
		Name:            name,
		Type:            c.Type,
		State:           model.OrderStateRaw,
		Dispensable:     c.Dispensable,
		IntendedVehicle: c.IntendedVehicle,
		CreationTime:    k.now(),
		Deadline:        c.Deadline,
		Properties:      c.Properties,
	}
	if o.Type == "" {
		o.Type = model.OrderTypeTransport
	}
	for _, d := range c.Destinations {
		o.DriveOrders = append(o.DriveOrders, model.DriveOrder{Destination: d, State: model.DriveOrderPristine})
	}
	k.orders[name] = o.Clone()
	return o, nil
}

func (k *MemoryKernel) UpdateTransportOrderState(_ context.Context, name string, st model.OrderState) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	o, ok := k.orders[name]
	if !ok {
		return fmt.Errorf("%w: transport order %s", dispatch.ErrUnknownObject, name)
	}
	if !o.State.CanTransitionTo(st) {
		return fmt.Errorf("%w: transport order %s cannot move from %s to %s", dispatch.ErrInvalidArgument, name, o.State, st)
	}
	o.State = st
	k.orders[name] = o
	return nil
}

func (k *MemoryKernel) AssignTransportOrder(_ context.Context, order, vehicle string, driveOrders []model.DriveOrder) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	o, ok := k.orders[order]
	if !ok {
		return fmt.Errorf("%w: transport order %s", dispatch.ErrUnknownObject, order)
	}
	v, ok := k.vehicles[vehicle]
	if !ok {
		return fmt.Errorf("%w: vehicle %s", dispatch.ErrUnknownObject, vehicle)
	}
	if o.State != model.OrderStateDispatchable {
		return fmt.Errorf("%w: transport order %s is %s", dispatch.ErrNotAssignable, order, o.State)
	}
	if v.TransportOrder != "" {
		return fmt.Errorf("%w: vehicle %s is processing %s", dispatch.ErrNotAssignable, vehicle, v.TransportOrder)
	}
	if len(driveOrders) != len(o.DriveOrders) {
		return fmt.Errorf("%w: %d drive orders for %d destinations", dispatch.ErrInvalidArgument, len(driveOrders), len(o.DriveOrders))
	}
	o.State = model.OrderStateBeingProcessed
	o.ProcessingVehicle = vehicle
	o.DriveOrders = model.CloneDriveOrders(driveOrders)
	o.CurrentDriveOrder = 0
	v.TransportOrder = order
	v.ProcState = model.ProcStateProcessingOrder
	k.orders[order] = o
	k.vehicles[vehicle] = v
	return nil
}

func (k *MemoryKernel) UpdateDriveOrders(_ context.Context, order string, future []model.DriveOrder) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	o, ok := k.orders[order]
	if !ok {
		return fmt.Errorf("%w: transport order %s", dispatch.ErrUnknownObject, order)
	}
	cur := min(o.CurrentDriveOrder, len(o.DriveOrders))
	if len(future) != len(o.DriveOrders)-cur {
		return fmt.Errorf("%w: %d drive orders for %d pending legs", dispatch.ErrInvalidArgument, len(future), len(o.DriveOrders)-cur)
	}
	o.DriveOrders = append(model.CloneDriveOrders(o.DriveOrders[:cur]), model.CloneDriveOrders(future)...)
	k.orders[order] = o
	return nil
}

func (k *MemoryKernel) ReleaseVehicle(_ context.Context, vehicle string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.vehicles[vehicle]
	if !ok {
		return fmt.Errorf("%w: vehicle %s", dispatch.ErrUnknownObject, vehicle)
	}
	v.TransportOrder = ""
	v.ProcState = model.ProcStateIdle
	k.vehicles[vehicle] = v
	return nil
}

// FinishOrder marks the order a vehicle completed as FINISHED and moves the
// vehicle onto the final point.
func (k *MemoryKernel) FinishOrder(_ context.Context, order string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	o, ok := k.orders[order]
	if !ok {
		return fmt.Errorf("%w: transport order %s", dispatch.ErrUnknownObject, order)
	}
	if !o.State.CanTransitionTo(model.OrderStateFinished) {
		return fmt.Errorf("%w: transport order %s is %s", dispatch.ErrInvalidArgument, order, o.State)
	}
	o.State = model.OrderStateFinished
	o.DriveOrders = model.CloneDriveOrders(o.DriveOrders)
	for i := range o.DriveOrders {
		o.DriveOrders[i].State = model.DriveOrderFinished
	}
	o.CurrentDriveOrder = len(o.DriveOrders)
	k.orders[order] = o
	if v, ok := k.vehicles[o.ProcessingVehicle]; ok && v.TransportOrder == order {
		if dst, ok := o.FinalDestinationPoint(); ok {
			v.CurrentPosition = dst
		}
		v.NextPosition = ""
		v.TransportOrder = ""
		v.ProcState = model.ProcStateIdle
		k.vehicles[v.Name] = v
	}
	return nil
}

// SetPathLocked locks or unlocks a path. Locked paths are not routed over.
func (k *MemoryKernel) SetPathLocked(name string, locked bool) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.plant.Path(name); !ok {
		return fmt.Errorf("%w: path %s", dispatch.ErrUnknownObject, name)
	}
	paths := k.plant.Paths()
	for i := range paths {
		if paths[i].Name == name {
			paths[i].Locked = locked
		}
	}
	m, err := plant.NewModel(k.plant.Points(), paths, k.plant.Locations())
	if err != nil {
		return err
	}
	k.plant = m
	return nil
}

// MoveVehicle reports a vehicle at a new position, e.g. while it follows
// its route.
func (k *MemoryKernel) MoveVehicle(name, current, next string) error {
	return k.PatchVehicle(name, func(v *model.Vehicle) error {
		v.CurrentPosition, v.NextPosition = current, next
		return nil
	})
}
