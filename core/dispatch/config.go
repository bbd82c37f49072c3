package dispatch

import (
	"fmt"
	"runtime"
	"time"
)

// Default priority property keys.
const (
	DefaultParkingPriorityProperty  = "tcs:parkingPositionPriority"
	DefaultRechargePriorityProperty = "tcs:rechargePriority"
)

// Config defines dispatcher settings.
type Config struct {
	RechargeIdleVehicles                    bool `json:"recharge_idle_vehicles"`
	ParkIdleVehicles                        bool `json:"park_idle_vehicles"`
	ReparkVehiclesToHigherPriorityPositions bool `json:"repark_vehicles_to_higher_priority_positions"`
	PrioritizedParking                      bool `json:"prioritized_parking"`
	PrioritizedRecharging                   bool `json:"prioritized_recharging"`

	// Phases lists the phases of a cycle in execution order.
	Phases                     []string `json:"phases"`
	OrderPriorities            []string `json:"order_priorities"`
	VehicleCandidatePriorities []string `json:"vehicle_candidate_priorities"`

	// IdleVehicleRedispatchingIntervalMs triggers a periodic cycle; 0 disables it.
	IdleVehicleRedispatchingIntervalMs int `json:"idle_vehicle_redispatching_interval_ms"`
	// MinDispatchIntervalMs bounds how often cycles may start; 0 means unbounded.
	MinDispatchIntervalMs int `json:"min_dispatch_interval_ms"`
	CandidateParallelism  int `json:"candidate_parallelism"`

	ParkingPriorityProperty  string `json:"parking_priority_property"`
	RechargePriorityProperty string `json:"recharge_priority_property"`
}

// DefaultPhases is the cycle used when none is configured.
var DefaultPhases = []string{
	PhaseFinishWithdrawals,
	PhaseActivateOrders,
	PhaseAssignFreeOrders,
	PhaseRechargeIdleVehicles,
	PhaseParkIdleVehicles,
	PhaseReparkVehicles,
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if len(c.Phases) == 0 {
		c.Phases = append([]string(nil), DefaultPhases...)
	}
	if len(c.OrderPriorities) == 0 {
		c.OrderPriorities = []string{OrderByDeadline, OrderByAge, OrderByName}
	}
	if len(c.VehicleCandidatePriorities) == 0 {
		c.VehicleCandidatePriorities = []string{CandidateByInitialRoutingCosts, CandidateByEnergyLevel, CandidateByVehicleName}
	}
	if c.CandidateParallelism == 0 {
		c.CandidateParallelism = runtime.NumCPU()
	}
	if c.ParkingPriorityProperty == "" {
		c.ParkingPriorityProperty = DefaultParkingPriorityProperty
	}
	if c.RechargePriorityProperty == "" {
		c.RechargePriorityProperty = DefaultRechargePriorityProperty
	}
}

// Validate rejects unknown names and negative values.
func (c Config) Validate() error {
	seen := map[string]bool{}
	for _, p := range c.Phases {
		if !KnownPhase(p) {
			return fmt.Errorf("%w: unknown phase %q", ErrInvalidArgument, p)
		}
		if seen[p] {
			return fmt.Errorf("%w: phase %q listed twice", ErrInvalidArgument, p)
		}
		seen[p] = true
	}
	if _, err := orderSorter(c.OrderPriorities); err != nil {
		return err
	}
	if _, err := candidateRanker(c.VehicleCandidatePriorities); err != nil {
		return err
	}
	if c.IdleVehicleRedispatchingIntervalMs < 0 {
		return fmt.Errorf("%w: negative redispatching interval %d", ErrInvalidArgument, c.IdleVehicleRedispatchingIntervalMs)
	}
	if c.MinDispatchIntervalMs < 0 {
		return fmt.Errorf("%w: negative dispatch interval %d", ErrInvalidArgument, c.MinDispatchIntervalMs)
	}
	if c.CandidateParallelism < 0 {
		return fmt.Errorf("%w: negative candidate parallelism %d", ErrInvalidArgument, c.CandidateParallelism)
	}
	return nil
}

// RedispatchInterval returns the periodic cycle interval.
func (c Config) RedispatchInterval() time.Duration {
	return time.Duration(c.IdleVehicleRedispatchingIntervalMs) * time.Millisecond
}

// MinDispatchInterval returns the minimum spacing between cycles.
func (c Config) MinDispatchInterval() time.Duration {
	return time.Duration(c.MinDispatchIntervalMs) * time.Millisecond
}
