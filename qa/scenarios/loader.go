// Package scenarios replays dispatcher acceptance scenarios described in
// YAML: a plant with its fleet, a sequence of operations and the expected
// order and vehicle states afterwards.
package scenarios

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/agvdispatch/core/dispatch"
	"github.com/kilianp07/agvdispatch/core/kernel"
)

// Step actions.
const (
	ActionDispatch        = "dispatch"
	ActionWithdrawOrder   = "withdraw_order"
	ActionWithdrawVehicle = "withdraw_vehicle"
	ActionReroute         = "reroute"
	ActionRerouteAll      = "reroute_all"
	ActionAssignNow       = "assign_now"
	ActionFinish          = "finish"
	ActionLockPath        = "lock_path"
	ActionUnlockPath      = "unlock_path"
	ActionEnergy          = "energy"
)

type Step struct {
	Action    string `yaml:"action"`
	Order     string `yaml:"order,omitempty"`
	Vehicle   string `yaml:"vehicle,omitempty"`
	Path      string `yaml:"path,omitempty"`
	Immediate bool   `yaml:"immediate,omitempty"`
	Type      string `yaml:"type,omitempty"`
	Level     int    `yaml:"level,omitempty"`
	// Error names the error kind the step must fail with.
	Error string `yaml:"error,omitempty"`
}

type DispatchDef struct {
	RechargeIdleVehicles       bool     `yaml:"recharge_idle_vehicles"`
	ParkIdleVehicles           bool     `yaml:"park_idle_vehicles"`
	ReparkVehicles             bool     `yaml:"repark_vehicles"`
	PrioritizedParking         bool     `yaml:"prioritized_parking"`
	PrioritizedRecharging      bool     `yaml:"prioritized_recharging"`
	Phases                     []string `yaml:"phases"`
	OrderPriorities            []string `yaml:"order_priorities"`
	VehicleCandidatePriorities []string `yaml:"vehicle_candidate_priorities"`
}

func (d DispatchDef) ToConfig() dispatch.Config {
	return dispatch.Config{
		RechargeIdleVehicles:                    d.RechargeIdleVehicles,
		ParkIdleVehicles:                        d.ParkIdleVehicles,
		ReparkVehiclesToHigherPriorityPositions: d.ReparkVehicles,
		PrioritizedParking:                      d.PrioritizedParking,
		PrioritizedRecharging:                   d.PrioritizedRecharging,
		Phases:                                  d.Phases,
		OrderPriorities:                         d.OrderPriorities,
		VehicleCandidatePriorities:              d.VehicleCandidatePriorities,
	}
}

type OrderExpectation struct {
	State   string `yaml:"state"`
	Vehicle string `yaml:"vehicle,omitempty"`
}

type VehicleExpectation struct {
	// OrderPrefix is matched against the name of the order the vehicle
	// processes; "-" means no order.
	OrderPrefix string `yaml:"order_prefix,omitempty"`
	Position    string `yaml:"position,omitempty"`
}

type Expected struct {
	Orders   map[string]OrderExpectation   `yaml:"orders"`
	Vehicles map[string]VehicleExpectation `yaml:"vehicles"`
	// Forwarded lists, per vehicle, the prefixes of the orders sent to it.
	Forwarded map[string][]string `yaml:"forwarded"`
}

type Scenario struct {
	Name         string          `yaml:"name"`
	Description  string          `yaml:"description,omitempty"`
	Plant        kernel.Scenario `yaml:"plant"`
	Dispatch     DispatchDef     `yaml:"dispatch"`
	Evaluators   []string        `yaml:"evaluators"`
	FailVehicles []string        `yaml:"fail_vehicles,omitempty"`
	Steps        []Step          `yaml:"steps"`
	Expected     Expected        `yaml:"expected"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("%s: scenario has no name", path)
	}
	return &sc, nil
}
