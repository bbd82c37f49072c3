package model

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

// Transport order types known to the dispatcher.
const (
	OrderTypeAny       = "*"
	OrderTypeNone      = "-"
	OrderTypeCharge    = "Charge"
	OrderTypePark      = "Park"
	OrderTypeTransport = "Transport"
)

// Operations performed at a destination.
const (
	OpNop    = "NOP"
	OpMove   = "MOVE"
	OpPark   = "PARK"
	OpCharge = "CHARGE"
)

// OrderState is the lifecycle state of a transport order.
type OrderState string

const (
	OrderStateRaw            OrderState = "RAW"
	OrderStateActive         OrderState = "ACTIVE"
	OrderStateDispatchable   OrderState = "DISPATCHABLE"
	OrderStateBeingProcessed OrderState = "BEING_PROCESSED"
	OrderStateWithdrawn      OrderState = "WITHDRAWN"
	OrderStateFinished       OrderState = "FINISHED"
	OrderStateFailed         OrderState = "FAILED"
	OrderStateUnroutable     OrderState = "UNROUTABLE"
)

// IsFinalState reports whether no further transition is possible.
func (s OrderState) IsFinalState() bool {
	return s == OrderStateFinished || s == OrderStateFailed || s == OrderStateUnroutable
}

var orderTransitions = map[OrderState][]OrderState{
	OrderStateRaw:            {OrderStateActive, OrderStateUnroutable, OrderStateWithdrawn, OrderStateFailed},
	OrderStateActive:         {OrderStateDispatchable, OrderStateUnroutable, OrderStateWithdrawn, OrderStateFailed},
	OrderStateDispatchable:   {OrderStateBeingProcessed, OrderStateWithdrawn, OrderStateFailed},
	OrderStateBeingProcessed: {OrderStateFinished, OrderStateWithdrawn, OrderStateFailed},
	OrderStateWithdrawn:      {OrderStateFailed},
}

// CanTransitionTo reports whether next is a legal successor of s.
// Transitions only move forward; final states accept nothing.
func (s OrderState) CanTransitionTo(next OrderState) bool {
	for _, n := range orderTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// DriveOrderState tracks the progress of a single leg.
type DriveOrderState string

const (
	DriveOrderPristine   DriveOrderState = "PRISTINE"
	DriveOrderTravelling DriveOrderState = "TRAVELLING"
	DriveOrderFinished   DriveOrderState = "FINISHED"
	DriveOrderFailed     DriveOrderState = "FAILED"
)

// Destination is the target of one leg: a point or location name and the
// operation to perform there.
type Destination struct {
	Target     string            `json:"target"`
	Operation  string            `json:"operation"`
	Properties map[string]string `json:"properties,omitempty"`
}

// DriveOrder is one leg of a transport order. Route is nil until routed.
type DriveOrder struct {
	Destination Destination     `json:"destination"`
	Route       *Route          `json:"route,omitempty"`
	State       DriveOrderState `json:"state"`
}

// TransportOrder is a snapshot of an order known to the order service.
type TransportOrder struct {
	Name              string            `json:"name"`
	Type              string            `json:"type"`
	DriveOrders       []DriveOrder      `json:"drive_orders"`
	CurrentDriveOrder int               `json:"current_drive_order"`
	State             OrderState        `json:"state"`
	Dispensable       bool              `json:"dispensable"`
	IntendedVehicle   string            `json:"intended_vehicle,omitempty"`
	ProcessingVehicle string            `json:"processing_vehicle,omitempty"`
	CreationTime      time.Time         `json:"creation_time"`
	Deadline          time.Time         `json:"deadline,omitempty"`
	Properties        map[string]string `json:"properties,omitempty"`
}

// Clone returns a copy sharing no slices, maps or routes with o.
func (o TransportOrder) Clone() TransportOrder {
	o.DriveOrders = CloneDriveOrders(o.DriveOrders)
	o.Properties = maps.Clone(o.Properties)
	return o
}

// CloneDriveOrders deep-copies drive orders including their routes.
func CloneDriveOrders(in []DriveOrder) []DriveOrder {
	if in == nil {
		return nil
	}
	out := make([]DriveOrder, len(in))
	for i, d := range in {
		out[i] = d
		out[i].Destination.Properties = maps.Clone(d.Destination.Properties)
		if d.Route != nil {
			r := *d.Route
			r.Steps = slices.Clone(d.Route.Steps)
			out[i].Route = &r
		}
	}
	return out
}

// HasIntendedVehicle reports whether the order is bound to a specific vehicle.
func (o TransportOrder) HasIntendedVehicle() bool { return o.IntendedVehicle != "" }

// Destinations returns the targets of all legs in order.
func (o TransportOrder) Destinations() []Destination {
	out := make([]Destination, len(o.DriveOrders))
	for i, d := range o.DriveOrders {
		out[i] = d.Destination
	}
	return out
}

// FinalDestinationPoint returns the point the order ends on, once routed.
func (o TransportOrder) FinalDestinationPoint() (string, bool) {
	if len(o.DriveOrders) == 0 {
		return "", false
	}
	last := o.DriveOrders[len(o.DriveOrders)-1]
	if last.Route == nil {
		return "", false
	}
	return last.Route.FinalDestination()
}

// FutureDriveOrders returns the legs not yet finished, starting with the current one.
func (o TransportOrder) FutureDriveOrders() []DriveOrder {
	if o.CurrentDriveOrder >= len(o.DriveOrders) {
		return nil
	}
	return o.DriveOrders[o.CurrentDriveOrder:]
}

// TransportOrderCreation describes an order to be created by the order service.
type TransportOrderCreation struct {
	Name string `json:"name"`
	// IncompleteName asks the order service to append a unique suffix.
	IncompleteName  bool              `json:"incomplete_name"`
	Destinations    []Destination     `json:"destinations"`
	IntendedVehicle string            `json:"intended_vehicle,omitempty"`
	Type            string            `json:"type"`
	Dispensable     bool              `json:"dispensable"`
	Deadline        time.Time         `json:"deadline,omitempty"`
	Properties      map[string]string `json:"properties,omitempty"`
}

// Validate rejects creations that cannot become an order.
func (c TransportOrderCreation) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("order name is required")
	}
	if len(c.Destinations) == 0 {
		return fmt.Errorf("order %s: at least one destination is required", c.Name)
	}
	for i, d := range c.Destinations {
		if d.Target == "" {
			return fmt.Errorf("order %s: destination %d has no target", c.Name, i)
		}
	}
	return nil
}

// ReroutingType selects the start point used when rerouting a vehicle.
type ReroutingType string

const (
	// ReroutingRegular reroutes from the point the vehicle is about to reach.
	ReroutingRegular ReroutingType = "REGULAR"
	// ReroutingForced reroutes from the vehicle's current position.
	ReroutingForced ReroutingType = "FORCED"
)

// ParseReroutingType converts s into a ReroutingType.
func ParseReroutingType(s string) (ReroutingType, error) {
	switch ReroutingType(s) {
	case ReroutingRegular, ReroutingForced:
		return ReroutingType(s), nil
	case "":
		return ReroutingRegular, nil
	}
	return "", fmt.Errorf("unknown rerouting type %q", s)
}
