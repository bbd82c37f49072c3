package kernel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/agvdispatch/core/dispatch"
	"github.com/kilianp07/agvdispatch/core/model"
	"github.com/kilianp07/agvdispatch/core/plant"
)

func testPlant(t *testing.T) *plant.Model {
	t.Helper()
	m, err := plant.NewModel(
		[]model.Point{{Name: "A"}, {Name: "B"}, {Name: "C", OccupyingVehicle: "ghost"}},
		[]model.Path{{Name: "A--B", Source: "A", Destination: "B", Length: 1000, MaxVelocity: 1000}},
		nil,
	)
	require.NoError(t, err)
	return m
}

func newKernel(t *testing.T, vehicles ...model.Vehicle) *MemoryKernel {
	t.Helper()
	k, err := NewMemoryKernel(testPlant(t), vehicles)
	require.NoError(t, err)
	return k
}

func TestNewMemoryKernelRejectsBadInput(t *testing.T) {
	_, err := NewMemoryKernel(nil, nil)
	assert.ErrorIs(t, err, dispatch.ErrInvalidArgument)

	_, err = NewMemoryKernel(testPlant(t), []model.Vehicle{{Name: "V1", CurrentPosition: "Z"}})
	assert.ErrorIs(t, err, dispatch.ErrUnknownObject)

	_, err = NewMemoryKernel(testPlant(t), []model.Vehicle{{Name: "V1", CurrentPosition: "A"}, {Name: "V2", CurrentPosition: "A"}})
	assert.ErrorIs(t, err, dispatch.ErrInvalidArgument)
}

func TestFetchPlantModelOccupancy(t *testing.T) {
	ctx := context.Background()
	k := newKernel(t, model.Vehicle{Name: "V1", CurrentPosition: "A"})
	m, err := k.FetchPlantModel(ctx)
	require.NoError(t, err)

	by, ok := m.OccupiedBy("A")
	assert.True(t, ok)
	assert.Equal(t, "V1", by)
	by, _ = m.OccupiedBy("C")
	assert.Equal(t, "ghost", by)
	_, ok = m.OccupiedBy("B")
	assert.False(t, ok)

	require.NoError(t, k.UpdateVehicle(model.Vehicle{Name: "V1", CurrentPosition: "B"}))
	m, err = k.FetchPlantModel(ctx)
	require.NoError(t, err)
	_, ok = m.OccupiedBy("A")
	assert.False(t, ok, "old position is freed")
	by, _ = m.OccupiedBy("B")
	assert.Equal(t, "V1", by)

	p, err := k.FetchPoint(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, "V1", p.OccupyingVehicle)
	_, err = k.FetchPoint(ctx, "nope")
	assert.ErrorIs(t, err, dispatch.ErrUnknownObject)
}

func TestCreateTransportOrder(t *testing.T) {
	ctx := context.Background()
	k := newKernel(t)

	_, err := k.CreateTransportOrder(ctx, model.TransportOrderCreation{Name: "T"})
	assert.ErrorIs(t, err, dispatch.ErrInvalidArgument)

	dest := []model.Destination{{Target: "B", Operation: model.OpNop}}
	o, err := k.CreateTransportOrder(ctx, model.TransportOrderCreation{Name: "T", Destinations: dest})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStateRaw, o.State)
	assert.Equal(t, model.OrderTypeTransport, o.Type)
	require.Len(t, o.DriveOrders, 1)
	assert.Equal(t, model.DriveOrderPristine, o.DriveOrders[0].State)

	_, err = k.CreateTransportOrder(ctx, model.TransportOrderCreation{Name: "T", Destinations: dest})
	assert.ErrorIs(t, err, dispatch.ErrInvalidArgument, "duplicate name")

	a, err := k.CreateTransportOrder(ctx, model.TransportOrderCreation{Name: "Park-", IncompleteName: true, Destinations: dest})
	require.NoError(t, err)
	b, err := k.CreateTransportOrder(ctx, model.TransportOrderCreation{Name: "Park-", IncompleteName: true, Destinations: dest})
	require.NoError(t, err)
	assert.Equal(t, "Park-00001", a.Name)
	assert.Equal(t, "Park-00002", b.Name)

	all, err := k.FetchTransportOrders(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Park-00001", all[0].Name)
}

func TestOrderLifecycle(t *testing.T) {
	ctx := context.Background()
	k := newKernel(t, model.Vehicle{Name: "V1", CurrentPosition: "A"})
	_, err := k.CreateTransportOrder(ctx, model.TransportOrderCreation{
		Name:         "T",
		Destinations: []model.Destination{{Target: "B", Operation: model.OpNop}},
	})
	require.NoError(t, err)

	route := &model.Route{Start: "A", Steps: []model.Step{{Path: "A--B", Source: "A", Destination: "B"}}, Costs: 1}
	drive := []model.DriveOrder{{Destination: model.Destination{Target: "B"}, Route: route, State: model.DriveOrderPristine}}

	err = k.AssignTransportOrder(ctx, "T", "V1", drive)
	assert.ErrorIs(t, err, dispatch.ErrNotAssignable, "order is still RAW")

	require.NoError(t, k.UpdateTransportOrderState(ctx, "T", model.OrderStateActive))
	err = k.UpdateTransportOrderState(ctx, "T", model.OrderStateRaw)
	assert.ErrorIs(t, err, dispatch.ErrInvalidArgument, "states only move forward")
	require.NoError(t, k.UpdateTransportOrderState(ctx, "T", model.OrderStateDispatchable))

	assert.ErrorIs(t, k.AssignTransportOrder(ctx, "T", "V9", drive), dispatch.ErrUnknownObject)
	require.NoError(t, k.AssignTransportOrder(ctx, "T", "V1", drive))

	v, err := k.FetchVehicle(ctx, "V1")
	require.NoError(t, err)
	assert.Equal(t, "T", v.TransportOrder)
	assert.Equal(t, model.ProcStateProcessingOrder, v.ProcState)

	o, err := k.FetchTransportOrder(ctx, "T")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStateBeingProcessed, o.State)
	assert.Equal(t, "V1", o.ProcessingVehicle)

	require.NoError(t, k.UpdateDriveOrders(ctx, "T", drive))
	assert.ErrorIs(t, k.UpdateDriveOrders(ctx, "T", nil), dispatch.ErrInvalidArgument)

	require.NoError(t, k.FinishOrder(ctx, "T"))
	v, _ = k.FetchVehicle(ctx, "V1")
	assert.Equal(t, "B", v.CurrentPosition)
	assert.Empty(t, v.TransportOrder)
	assert.Equal(t, model.ProcStateIdle, v.ProcState)
	o, _ = k.FetchTransportOrder(ctx, "T")
	assert.Equal(t, model.OrderStateFinished, o.State)
}

func TestReleaseVehicle(t *testing.T) {
	ctx := context.Background()
	k := newKernel(t, model.Vehicle{Name: "V1", CurrentPosition: "A", TransportOrder: "T", ProcState: model.ProcStateProcessingOrder})
	require.NoError(t, k.ReleaseVehicle(ctx, "V1"))
	v, _ := k.FetchVehicle(ctx, "V1")
	assert.Empty(t, v.TransportOrder)
	assert.ErrorIs(t, k.ReleaseVehicle(ctx, "V2"), dispatch.ErrUnknownObject)
}

func TestSetPathLocked(t *testing.T) {
	k := newKernel(t)
	require.NoError(t, k.SetPathLocked("A--B", true))
	m, err := k.FetchPlantModel(context.Background())
	require.NoError(t, err)
	p, _ := m.Path("A--B")
	assert.True(t, p.Locked)
	assert.ErrorIs(t, k.SetPathLocked("B--C", true), dispatch.ErrUnknownObject)
}

func TestMoveVehicle(t *testing.T) {
	k := newKernel(t, model.Vehicle{Name: "V1", CurrentPosition: "A"})
	require.NoError(t, k.MoveVehicle("V1", "A", "B"))
	v, _ := k.FetchVehicle(context.Background(), "V1")
	assert.Equal(t, "B", v.NextPosition)
	assert.ErrorIs(t, k.MoveVehicle("V1", "Z", ""), dispatch.ErrUnknownObject)
	assert.ErrorIs(t, k.MoveVehicle("V9", "A", ""), dispatch.ErrUnknownObject)
}

func assignedKernel(t *testing.T) *MemoryKernel {
	t.Helper()
	ctx := context.Background()
	k := newKernel(t, model.Vehicle{Name: "V1", CurrentPosition: "A", State: model.VehicleStateIdle, EnergyLevel: 80})
	_, err := k.CreateTransportOrder(ctx, model.TransportOrderCreation{
		Name:         "T",
		Destinations: []model.Destination{{Target: "B", Operation: model.OpNop}},
		Properties:   map[string]string{"lane": "1"},
	})
	require.NoError(t, err)
	require.NoError(t, k.UpdateTransportOrderState(ctx, "T", model.OrderStateActive))
	require.NoError(t, k.UpdateTransportOrderState(ctx, "T", model.OrderStateDispatchable))
	route := &model.Route{Start: "A", Steps: []model.Step{{Path: "A--B", Source: "A", Destination: "B"}}, Costs: 1}
	drive := []model.DriveOrder{{Destination: model.Destination{Target: "B"}, Route: route, State: model.DriveOrderPristine}}
	require.NoError(t, k.AssignTransportOrder(ctx, "T", "V1", drive))
	return k
}

func TestPatchVehicleKeepsAssignment(t *testing.T) {
	ctx := context.Background()
	k := newKernel(t, model.Vehicle{Name: "V1", CurrentPosition: "A", State: model.VehicleStateIdle, EnergyLevel: 80})
	_, err := k.CreateTransportOrder(ctx, model.TransportOrderCreation{
		Name:         "T",
		Destinations: []model.Destination{{Target: "B", Operation: model.OpNop}},
	})
	require.NoError(t, err)
	require.NoError(t, k.UpdateTransportOrderState(ctx, "T", model.OrderStateActive))
	require.NoError(t, k.UpdateTransportOrderState(ctx, "T", model.OrderStateDispatchable))

	// A report read before the assignment lands must not undo it.
	stale, err := k.FetchVehicle(ctx, "V1")
	require.NoError(t, err)
	require.NoError(t, k.AssignTransportOrder(ctx, "T", "V1", []model.DriveOrder{{Destination: model.Destination{Target: "B"}}}))
	require.NoError(t, k.PatchVehicle("V1", func(v *model.Vehicle) error {
		*v = stale
		v.EnergyLevel = 55
		return nil
	}))

	v, err := k.FetchVehicle(ctx, "V1")
	require.NoError(t, err)
	assert.Equal(t, 55, v.EnergyLevel)
	assert.Equal(t, "T", v.TransportOrder)
	assert.Equal(t, model.ProcStateProcessingOrder, v.ProcState)
}

func TestPatchVehicleRejects(t *testing.T) {
	k := assignedKernel(t)
	assert.ErrorIs(t, k.PatchVehicle("V9", func(*model.Vehicle) error { return nil }), dispatch.ErrUnknownObject)

	assert.ErrorIs(t, k.PatchVehicle("V1", func(v *model.Vehicle) error {
		v.CurrentPosition = "Z"
		return nil
	}), dispatch.ErrUnknownObject)

	boom := assert.AnError
	assert.ErrorIs(t, k.PatchVehicle("V1", func(v *model.Vehicle) error {
		v.EnergyLevel = 1
		return boom
	}), boom)

	v, _ := k.FetchVehicle(context.Background(), "V1")
	assert.Equal(t, "A", v.CurrentPosition)
	assert.Equal(t, 80, v.EnergyLevel, "failed patches leave the vehicle alone")
	assert.Equal(t, "T", v.TransportOrder)
}

func TestMoveVehicleKeepsAssignment(t *testing.T) {
	k := assignedKernel(t)
	require.NoError(t, k.MoveVehicle("V1", "A", "B"))
	v, _ := k.FetchVehicle(context.Background(), "V1")
	assert.Equal(t, "T", v.TransportOrder)
	assert.Equal(t, model.ProcStateProcessingOrder, v.ProcState)
}

func TestFetchedOrdersAreCopies(t *testing.T) {
	ctx := context.Background()
	k := assignedKernel(t)

	before, err := k.FetchTransportOrders(ctx)
	require.NoError(t, err)
	require.Len(t, before, 1)
	require.Len(t, before[0].DriveOrders, 1)

	before[0].Properties["lane"] = "9"
	before[0].DriveOrders[0].Route.Steps[0].Path = "X"

	require.NoError(t, k.FinishOrder(ctx, "T"))
	assert.Equal(t, model.DriveOrderPristine, before[0].DriveOrders[0].State, "snapshot taken before finishing is unchanged")

	o, err := k.FetchTransportOrder(ctx, "T")
	require.NoError(t, err)
	assert.Equal(t, "1", o.Properties["lane"])
	assert.Equal(t, "A--B", o.DriveOrders[0].Route.Steps[0].Path)
	assert.Equal(t, model.DriveOrderFinished, o.DriveOrders[0].State)
}

func TestStoredOrdersAreCopies(t *testing.T) {
	ctx := context.Background()
	k := newKernel(t, model.Vehicle{Name: "V1", CurrentPosition: "A"})
	props := map[string]string{"lane": "1"}
	created, err := k.CreateTransportOrder(ctx, model.TransportOrderCreation{
		Name:         "T",
		Destinations: []model.Destination{{Target: "B"}},
		Properties:   props,
	})
	require.NoError(t, err)
	created.DriveOrders[0].State = model.DriveOrderFinished
	props["lane"] = "2"

	require.NoError(t, k.UpdateTransportOrderState(ctx, "T", model.OrderStateActive))
	require.NoError(t, k.UpdateTransportOrderState(ctx, "T", model.OrderStateDispatchable))
	drive := []model.DriveOrder{{Destination: model.Destination{Target: "B"}, State: model.DriveOrderPristine}}
	require.NoError(t, k.AssignTransportOrder(ctx, "T", "V1", drive))
	drive[0].State = model.DriveOrderFinished

	o, err := k.FetchTransportOrder(ctx, "T")
	require.NoError(t, err)
	assert.Equal(t, "1", o.Properties["lane"])
	assert.Equal(t, model.DriveOrderPristine, o.DriveOrders[0].State)
}
