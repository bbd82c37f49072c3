package dispatch

import (
	"context"
	"fmt"
	"strings"
)

// Phase names accepted in Config.Phases.
const (
	PhaseFinishWithdrawals    = "finish_withdrawals"
	PhaseActivateOrders       = "activate_orders"
	PhaseAssignFreeOrders     = "assign_free_orders"
	PhaseRechargeIdleVehicles = "recharge_idle_vehicles"
	PhaseParkIdleVehicles     = "park_idle_vehicles"
	PhaseReparkVehicles       = "repark_vehicles"
)

// Phase is one step of a dispatch cycle. Run executes a single pass against
// the cycle; effects are visible to the phases that follow.
type Phase interface {
	Name() string
	Initialize()
	IsInitialized() bool
	Terminate()
	Run(ctx context.Context, c *Cycle) error
}

// PhaseDeps are the collaborators phases are built with.
type PhaseDeps struct {
	Config             Config
	Parking            ParkingPositionSupplier
	PrioritizedParking ParkingPositionSupplier
	Recharge           RechargePositionSupplier
}

type phaseConstructor func(PhaseDeps) (Phase, error)

var phaseConstructors = map[string]phaseConstructor{
	PhaseFinishWithdrawals: func(PhaseDeps) (Phase, error) { return NewFinishWithdrawalsPhase(), nil },
	PhaseActivateOrders:    func(PhaseDeps) (Phase, error) { return NewActivateOrdersPhase(), nil },
	PhaseAssignFreeOrders: func(d PhaseDeps) (Phase, error) {
		return NewAssignFreeOrdersPhase(d.Config.OrderPriorities, d.Config.VehicleCandidatePriorities, d.Config.CandidateParallelism)
	},
	PhaseRechargeIdleVehicles: func(d PhaseDeps) (Phase, error) {
		return NewRechargeIdleVehiclesPhase(d.Config.RechargeIdleVehicles, d.Recharge), nil
	},
	PhaseParkIdleVehicles: func(d PhaseDeps) (Phase, error) {
		var prio ParkingPositionSupplier
		if d.Config.PrioritizedParking {
			prio = d.PrioritizedParking
		}
		return NewParkIdleVehiclesPhase(d.Config.ParkIdleVehicles, prio, d.Parking), nil
	},
	PhaseReparkVehicles: func(d PhaseDeps) (Phase, error) {
		fn := PropertyPriority(d.Config.ParkingPriorityProperty)
		return NewReparkVehiclesPhase(d.Config.ParkIdleVehicles && d.Config.ReparkVehiclesToHigherPriorityPositions, d.PrioritizedParking, fn), nil
	},
}

// KnownPhase reports whether name is a built-in phase.
func KnownPhase(name string) bool {
	_, ok := phaseConstructors[strings.ToLower(name)]
	return ok
}

// BuildPhases creates the phases named in cfg, in order.
func BuildPhases(deps PhaseDeps) ([]Phase, error) {
	out := make([]Phase, 0, len(deps.Config.Phases))
	for _, name := range deps.Config.Phases {
		ctor, ok := phaseConstructors[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("%w: unknown phase %q", ErrInvalidArgument, name)
		}
		p, err := ctor(deps)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// basePhase provides the name and lifecycle of a phase.
type basePhase struct {
	Lifecycle
	name string
}

func (b *basePhase) Name() string { return b.name }
func (b *basePhase) Initialize()  { b.Lifecycle.Initialize(nil) }
func (b *basePhase) Terminate()   { b.Lifecycle.Terminate(nil) }
