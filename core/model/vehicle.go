package model

import (
	"maps"
	"slices"
)

// VehicleState is the operational state reported by the vehicle driver.
type VehicleState string

const (
	VehicleStateUnknown     VehicleState = "UNKNOWN"
	VehicleStateUnavailable VehicleState = "UNAVAILABLE"
	VehicleStateError       VehicleState = "ERROR"
	VehicleStateIdle        VehicleState = "IDLE"
	VehicleStateExecuting   VehicleState = "EXECUTING"
	VehicleStateCharging    VehicleState = "CHARGING"
)

// ProcState describes the vehicle's state with respect to transport orders.
type ProcState string

const (
	ProcStateIdle            ProcState = "IDLE"
	ProcStateAwaitingOrder   ProcState = "AWAITING_ORDER"
	ProcStateProcessingOrder ProcState = "PROCESSING_ORDER"
)

// IntegrationLevel controls how far the dispatcher may use a vehicle.
type IntegrationLevel string

const (
	IntegrationToBeIgnored   IntegrationLevel = "TO_BE_IGNORED"
	IntegrationToBeNoticed   IntegrationLevel = "TO_BE_NOTICED"
	IntegrationToBeRespected IntegrationLevel = "TO_BE_RESPECTED"
	IntegrationToBeUtilized  IntegrationLevel = "TO_BE_UTILIZED"
)

// Vehicle is a read-only snapshot of a fleet vehicle.
type Vehicle struct {
	Name            string `json:"name"`
	Type            string `json:"type,omitempty"`
	CurrentPosition string `json:"current_position,omitempty"` // empty when unknown
	NextPosition    string `json:"next_position,omitempty"`

	EnergyLevel                      int `json:"energy_level"` // percent
	EnergyLevelCritical              int `json:"energy_level_critical"`
	EnergyLevelGood                  int `json:"energy_level_good"`
	EnergyLevelSufficientlyRecharged int `json:"energy_level_sufficiently_recharged"`
	EnergyLevelFullyRecharged        int `json:"energy_level_fully_recharged"`

	MaxVelocity        int `json:"max_velocity"`         // mm/s
	MaxReverseVelocity int `json:"max_reverse_velocity"` // mm/s

	State            VehicleState     `json:"state"`
	ProcState        ProcState        `json:"proc_state"`
	IntegrationLevel IntegrationLevel `json:"integration_level"`

	TransportOrder    string   `json:"transport_order,omitempty"`
	RechargeOperation string   `json:"recharge_operation,omitempty"`
	AllowedOrderTypes []string `json:"allowed_order_types,omitempty"`

	Properties map[string]string `json:"properties,omitempty"`
}

// HasPosition reports whether the vehicle's current position is known.
func (v Vehicle) HasPosition() bool { return v.CurrentPosition != "" }

// IsProcessingOrder reports whether a transport order is assigned to the vehicle.
func (v Vehicle) IsProcessingOrder() bool {
	return v.TransportOrder != "" && v.ProcState != ProcStateIdle
}

// IsEnergyLevelCritical reports whether the vehicle must recharge before anything else.
func (v Vehicle) IsEnergyLevelCritical() bool { return v.EnergyLevel <= v.EnergyLevelCritical }

// IsEnergyLevelDegraded reports whether the vehicle should recharge when idle.
func (v Vehicle) IsEnergyLevelDegraded() bool { return v.EnergyLevel <= v.EnergyLevelGood }

// IsEnergyLevelGood is the negation of IsEnergyLevelDegraded.
func (v Vehicle) IsEnergyLevelGood() bool { return v.EnergyLevel > v.EnergyLevelGood }

func (v Vehicle) IsEnergyLevelSufficientlyRecharged() bool {
	return v.EnergyLevel >= v.EnergyLevelSufficientlyRecharged
}

func (v Vehicle) IsEnergyLevelFullyRecharged() bool {
	return v.EnergyLevel >= v.EnergyLevelFullyRecharged
}

// AcceptsOrderType reports whether orders of type t may be assigned to the
// vehicle. An empty allow-list accepts every type.
func (v Vehicle) AcceptsOrderType(t string) bool {
	if len(v.AllowedOrderTypes) == 0 {
		return true
	}
	for _, a := range v.AllowedOrderTypes {
		if a == OrderTypeAny || a == t {
			return true
		}
	}
	return false
}

// Property returns the value of the named property.
func (v Vehicle) Property(key string) (string, bool) {
	val, ok := v.Properties[key]
	return val, ok
}

// Clone returns a copy sharing no slices or maps with v.
func (v Vehicle) Clone() Vehicle {
	v.AllowedOrderTypes = slices.Clone(v.AllowedOrderTypes)
	v.Properties = maps.Clone(v.Properties)
	return v
}
