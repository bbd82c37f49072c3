package events

import (
	"time"

	"github.com/kilianp07/agvdispatch/core/model"
)

// OrderCreatedEvent is published when a phase creates an order of its own.
type OrderCreatedEvent struct {
	Order   string
	Type    string
	Vehicle string
	Phase   string
	Time    time.Time
}

// OrderAssignedEvent is published once the kernel accepted an assignment.
type OrderAssignedEvent struct {
	Order       string
	Type        string
	Vehicle     string
	DriveOrders []model.DriveOrder
	Costs       float64
	Phase       string
	Time        time.Time
}

// OrderFailedEvent is published when an order reaches a failed final state.
type OrderFailedEvent struct {
	Order   string
	Type    string
	Vehicle string
	State   model.OrderState
	Reasons []string
	Phase   string
	Time    time.Time
}

// OrderWithdrawnEvent is published when an order is withdrawn.
type OrderWithdrawnEvent struct {
	Order          string
	Vehicle        string
	ImmediateAbort bool
	Time           time.Time
}

// VehicleReroutedEvent is published after a vehicle's routes were replaced.
type VehicleReroutedEvent struct {
	Vehicle string
	Order   string
	Type    model.ReroutingType
	Costs   float64
	Time    time.Time
}
