package dispatch

import "github.com/kilianp07/agvdispatch/core/model"

// Filter inspects a value and returns the reasons it is rejected. An empty
// result means the value passes.
type Filter[T any] interface {
	Apply(T) []string
}

// FilterFunc adapts a function to Filter.
type FilterFunc[T any] func(T) []string

func (f FilterFunc[T]) Apply(v T) []string { return f(v) }

// CompositeFilter applies every child and concatenates their reasons.
type CompositeFilter[T any] []Filter[T]

func (c CompositeFilter[T]) Apply(v T) []string {
	var reasons []string
	for _, f := range c {
		reasons = append(reasons, f.Apply(v)...)
	}
	return reasons
}

// Passes reports whether v passes f.
func Passes[T any](f Filter[T], v T) bool { return len(f.Apply(v)) == 0 }

// Rejection reasons reported by the built-in filters.
const (
	ReasonNotUtilized          = "integration-level-not-utilized"
	ReasonNoPosition           = "no-position"
	ReasonBusy                 = "processing-order"
	ReasonStateNotIdle         = "state-not-idle"
	ReasonNeedsCharging        = "needs-more-charging"
	ReasonEnergyGood           = "energy-level-good"
	ReasonOrderTypeRejected    = "order-type-not-accepted"
	ReasonAtParkingPosition    = "at-parking-position"
	ReasonNotAtParkingPosition = "not-at-parking-position"
	ReasonOrderNotDispatchable = "order-not-dispatchable"
	ReasonIntendedVehicle      = "intended-vehicle-mismatch"
	ReasonDestinationOccupied  = "destination-occupied"
	ReasonDestinationTargeted  = "destination-targeted"
	ReasonEnergyCritical       = "energy-level-critical"
	ReasonUnrouted             = "drive-orders-not-routed"
)

// VehicleContext gives vehicle filters access to the snapshot the vehicle
// was taken from.
type VehicleContext struct {
	Vehicle model.Vehicle
	View    PlantView
	Orders  OrderLookup
}

// OrderLookup resolves order names within a snapshot.
type OrderLookup interface {
	Order(name string) (model.TransportOrder, bool)
}

func isUtilized(vc VehicleContext) []string {
	if vc.Vehicle.IntegrationLevel != model.IntegrationToBeUtilized {
		return []string{ReasonNotUtilized}
	}
	return nil
}

func hasPosition(vc VehicleContext) []string {
	if !vc.Vehicle.HasPosition() {
		return []string{ReasonNoPosition}
	}
	return nil
}

// processesDispensableOrder reports whether the vehicle's current order may
// be replaced by a regular one.
func processesDispensableOrder(vc VehicleContext) bool {
	v := vc.Vehicle
	if v.TransportOrder == "" || v.ProcState != model.ProcStateProcessingOrder || vc.Orders == nil {
		return false
	}
	o, ok := vc.Orders.Order(v.TransportOrder)
	return ok && o.Dispensable && o.State == model.OrderStateBeingProcessed
}

func processesNoOrder(v model.Vehicle) bool {
	return v.TransportOrder == "" && v.ProcState == model.ProcStateIdle &&
		(v.State == model.VehicleStateIdle || v.State == model.VehicleStateCharging)
}

// IsAvailableForAnyOrder accepts vehicles that are idle, or busy with a
// dispensable order, and not still recharging below the sufficient level.
var IsAvailableForAnyOrder Filter[VehicleContext] = CompositeFilter[VehicleContext]{
	FilterFunc[VehicleContext](isUtilized),
	FilterFunc[VehicleContext](hasPosition),
	FilterFunc[VehicleContext](func(vc VehicleContext) []string {
		v := vc.Vehicle
		if v.State == model.VehicleStateCharging && !v.IsEnergyLevelSufficientlyRecharged() {
			return []string{ReasonNeedsCharging}
		}
		if !processesNoOrder(v) && !processesDispensableOrder(vc) {
			return []string{ReasonBusy}
		}
		return nil
	}),
}

func idleWithoutOrder(vc VehicleContext) []string {
	v := vc.Vehicle
	if v.TransportOrder != "" || v.ProcState != model.ProcStateIdle {
		return []string{ReasonBusy}
	}
	return nil
}

// NeedsRecharge accepts idle vehicles whose energy level is degraded.
var NeedsRecharge Filter[VehicleContext] = CompositeFilter[VehicleContext]{
	FilterFunc[VehicleContext](isUtilized),
	FilterFunc[VehicleContext](hasPosition),
	FilterFunc[VehicleContext](idleWithoutOrder),
	FilterFunc[VehicleContext](func(vc VehicleContext) []string {
		v := vc.Vehicle
		var reasons []string
		if v.State != model.VehicleStateIdle && v.State != model.VehicleStateCharging {
			reasons = append(reasons, ReasonStateNotIdle)
		}
		if v.IsEnergyLevelGood() {
			reasons = append(reasons, ReasonEnergyGood)
		}
		if !v.AcceptsOrderType(model.OrderTypeCharge) {
			reasons = append(reasons, ReasonOrderTypeRejected)
		}
		return reasons
	}),
}

func idleState(vc VehicleContext) []string {
	if vc.Vehicle.State != model.VehicleStateIdle {
		return []string{ReasonStateNotIdle}
	}
	return nil
}

func acceptsPark(vc VehicleContext) []string {
	if !vc.Vehicle.AcceptsOrderType(model.OrderTypePark) {
		return []string{ReasonOrderTypeRejected}
	}
	return nil
}

func onParkingPosition(vc VehicleContext) bool {
	if vc.View == nil {
		return false
	}
	p, ok := vc.View.Plant().Point(vc.Vehicle.CurrentPosition)
	return ok && p.IsParkingPosition()
}

// IsParkable accepts idle vehicles that are not standing on a parking position.
var IsParkable Filter[VehicleContext] = CompositeFilter[VehicleContext]{
	FilterFunc[VehicleContext](isUtilized),
	FilterFunc[VehicleContext](hasPosition),
	FilterFunc[VehicleContext](idleWithoutOrder),
	FilterFunc[VehicleContext](idleState),
	FilterFunc[VehicleContext](acceptsPark),
	FilterFunc[VehicleContext](func(vc VehicleContext) []string {
		if onParkingPosition(vc) {
			return []string{ReasonAtParkingPosition}
		}
		return nil
	}),
}

// IsReparkable accepts idle vehicles already standing on a parking position.
var IsReparkable Filter[VehicleContext] = CompositeFilter[VehicleContext]{
	FilterFunc[VehicleContext](isUtilized),
	FilterFunc[VehicleContext](hasPosition),
	FilterFunc[VehicleContext](idleWithoutOrder),
	FilterFunc[VehicleContext](idleState),
	FilterFunc[VehicleContext](acceptsPark),
	FilterFunc[VehicleContext](func(vc VehicleContext) []string {
		if !onParkingPosition(vc) {
			return []string{ReasonNotAtParkingPosition}
		}
		return nil
	}),
}

// IsDispatchable accepts orders waiting for a vehicle.
var IsDispatchable Filter[model.TransportOrder] = FilterFunc[model.TransportOrder](func(o model.TransportOrder) []string {
	if o.State != model.OrderStateDispatchable {
		return []string{ReasonOrderNotDispatchable}
	}
	return nil
})

// CandidateContext is what candidate filters inspect.
type CandidateContext struct {
	Candidate AssignmentCandidate
	View      PlantView
}

// IntendedVehicleMatches rejects orders bound to another vehicle.
var IntendedVehicleMatches Filter[CandidateContext] = FilterFunc[CandidateContext](func(cc CandidateContext) []string {
	o := cc.Candidate.TransportOrder
	if o.HasIntendedVehicle() && o.IntendedVehicle != cc.Candidate.Vehicle.Name {
		return []string{ReasonIntendedVehicle}
	}
	return nil
})

// OrderTypeAccepted rejects orders whose type the vehicle does not take.
var OrderTypeAccepted Filter[CandidateContext] = FilterFunc[CandidateContext](func(cc CandidateContext) []string {
	if !cc.Candidate.Vehicle.AcceptsOrderType(cc.Candidate.TransportOrder.Type) {
		return []string{ReasonOrderTypeRejected}
	}
	return nil
})

// EnergyLevelSufficient keeps critically charged vehicles for charge orders.
var EnergyLevelSufficient Filter[CandidateContext] = FilterFunc[CandidateContext](func(cc CandidateContext) []string {
	v := cc.Candidate.Vehicle
	if v.IsEnergyLevelCritical() && cc.Candidate.TransportOrder.Type != model.OrderTypeCharge {
		return []string{ReasonEnergyCritical}
	}
	return nil
})

// DestinationAvailable rejects park and charge candidates whose final point
// is occupied or targeted by another vehicle.
var DestinationAvailable Filter[CandidateContext] = FilterFunc[CandidateContext](func(cc CandidateContext) []string {
	t := cc.Candidate.TransportOrder.Type
	if t != model.OrderTypePark && t != model.OrderTypeCharge {
		return nil
	}
	dst, ok := cc.Candidate.FinalDestination()
	if !ok {
		return []string{ReasonUnrouted}
	}
	self := cc.Candidate.Vehicle.Name
	var reasons []string
	if by, occupied := cc.View.Plant().OccupiedBy(dst); occupied && by != self {
		reasons = append(reasons, ReasonDestinationOccupied)
	}
	if by, targeted := cc.View.TargetedPoints()[dst]; targeted && by != self {
		reasons = append(reasons, ReasonDestinationTargeted)
	}
	return reasons
})

// IsRouted rejects candidates that are not fully routed.
var IsRouted Filter[CandidateContext] = FilterFunc[CandidateContext](func(cc CandidateContext) []string {
	if err := cc.Candidate.Validate(); err != nil {
		return []string{ReasonUnrouted}
	}
	return nil
})

// DefaultCandidateFilter is applied before any assignment made by a phase.
var DefaultCandidateFilter Filter[CandidateContext] = CompositeFilter[CandidateContext]{
	IsRouted,
	IntendedVehicleMatches,
	OrderTypeAccepted,
	EnergyLevelSufficient,
	DestinationAvailable,
}
