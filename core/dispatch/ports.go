package dispatch

import (
	"context"

	"github.com/kilianp07/agvdispatch/core/model"
	"github.com/kilianp07/agvdispatch/core/plant"
)

// OrderService is the kernel's vehicle and transport order registry. All
// calls are synchronous and run on the dispatcher's worker.
type OrderService interface {
	FetchVehicles(ctx context.Context) ([]model.Vehicle, error)
	FetchVehicle(ctx context.Context, name string) (model.Vehicle, error)
	FetchTransportOrders(ctx context.Context) ([]model.TransportOrder, error)
	FetchPoint(ctx context.Context, name string) (model.Point, error)
	CreateTransportOrder(ctx context.Context, c model.TransportOrderCreation) (model.TransportOrder, error)
	UpdateTransportOrderState(ctx context.Context, order string, state model.OrderState) error
	// AssignTransportOrder binds a dispatchable order and its routed drive
	// orders to a vehicle.
	AssignTransportOrder(ctx context.Context, order, vehicle string, driveOrders []model.DriveOrder) error
	UpdateDriveOrders(ctx context.Context, order string, driveOrders []model.DriveOrder) error
	// ReleaseVehicle detaches the vehicle from its transport order.
	ReleaseVehicle(ctx context.Context, vehicle string) error
}

// PlantModelService provides the plant graph with current occupancy.
type PlantModelService interface {
	FetchPlantModel(ctx context.Context) (*plant.Model, error)
}

// Router is the route computation used by suppliers and the route assigner.
// *routing.Router implements it.
type Router interface {
	FindRoute(v model.Vehicle, source, dest string) (model.Route, bool)
	FindRoutes(v model.Vehicle, source string, dests []string) []model.Route
	Costs(v model.Vehicle, source string, dests []string) map[string]float64
}

// PlantView is the read-only plant state a supplier or filter works on.
type PlantView interface {
	Plant() *plant.Model
	Router() Router
	// TargetedPoints maps final destinations of orders in progress to the
	// vehicle heading there.
	TargetedPoints() map[string]string
}
