package dispatch

import (
	"context"
	"sort"

	"github.com/kilianp07/agvdispatch/core/dispatch/logging"
	"github.com/kilianp07/agvdispatch/core/model"
)

// Name prefixes of orders created by the dispatcher. The order service
// completes them with a unique suffix.
const (
	RechargeOrderPrefix = "Recharge-"
	ParkOrderPrefix     = "Park-"
)

// Skip reasons recorded by the vehicle phases.
const (
	ReasonNoRechargePosition = "no-recharge-position"
	ReasonNoParkingPosition  = "no-parking-position"
	ReasonNoCandidate        = "no-assignment-candidate"
)

// commitCreated routes a dispatcher-created order for v and assigns it when
// the candidate passes filter. Otherwise the order fails.
func commitCreated(ctx context.Context, c *Cycle, filter Filter[CandidateContext], o model.TransportOrder, v model.Vehicle) error {
	cand, ok := BuildCandidate(c, o, v)
	if !ok {
		return c.FailOrder(ctx, o.Name, []string{ReasonNoCandidate})
	}
	if reasons := filter.Apply(CandidateContext{Candidate: cand, View: c}); len(reasons) > 0 {
		return c.FailOrder(ctx, o.Name, reasons)
	}
	return c.Assign(ctx, cand)
}

// RechargeIdleVehiclesPhase sends idle vehicles with a degraded energy level
// to a charger.
type RechargeIdleVehiclesPhase struct {
	basePhase
	enabled  bool
	supplier RechargePositionSupplier
	filter   Filter[CandidateContext]
}

func NewRechargeIdleVehiclesPhase(enabled bool, supplier RechargePositionSupplier) *RechargeIdleVehiclesPhase {
	return &RechargeIdleVehiclesPhase{
		basePhase: basePhase{name: PhaseRechargeIdleVehicles},
		enabled:   enabled,
		supplier:  supplier,
		filter:    DefaultCandidateFilter,
	}
}

func (p *RechargeIdleVehiclesPhase) Initialize() {
	p.Lifecycle.Initialize(func() { p.supplier.Initialize() })
}

func (p *RechargeIdleVehiclesPhase) Terminate() {
	p.Lifecycle.Terminate(func() { p.supplier.Terminate() })
}

func (p *RechargeIdleVehiclesPhase) Run(ctx context.Context, c *Cycle) error {
	if !p.enabled {
		return nil
	}
	for _, v := range c.Vehicles() {
		current, _ := c.Vehicle(v.Name)
		if !Passes(NeedsRecharge, c.vehicleContext(current)) {
			continue
		}
		seq := p.supplier.FindRechargeSequence(c, current)
		if len(seq) == 0 {
			c.Record(Decision{Action: logging.ActionSkipped, Vehicle: current.Name, Reasons: []string{ReasonNoRechargePosition}})
			continue
		}
		o, err := c.CreateOrder(ctx, model.TransportOrderCreation{
			Name:            RechargeOrderPrefix,
			IncompleteName:  true,
			Destinations:    seq,
			IntendedVehicle: current.Name,
			Type:            model.OrderTypeCharge,
			Dispensable:     !current.IsEnergyLevelCritical(),
		})
		if err != nil {
			return err
		}
		if err := commitCreated(ctx, c, p.filter, o, current); err != nil {
			return err
		}
	}
	return nil
}

// ParkIdleVehiclesPhase sends idle vehicles that are not parked to a parking
// position. The prioritized supplier, when set, is asked first.
type ParkIdleVehiclesPhase struct {
	basePhase
	enabled     bool
	prioritized ParkingPositionSupplier
	fallback    ParkingPositionSupplier
	filter      Filter[CandidateContext]
}

func NewParkIdleVehiclesPhase(enabled bool, prioritized, fallback ParkingPositionSupplier) *ParkIdleVehiclesPhase {
	return &ParkIdleVehiclesPhase{
		basePhase:   basePhase{name: PhaseParkIdleVehicles},
		enabled:     enabled,
		prioritized: prioritized,
		fallback:    fallback,
		filter:      DefaultCandidateFilter,
	}
}

func (p *ParkIdleVehiclesPhase) Initialize() {
	p.Lifecycle.Initialize(func() {
		for _, s := range p.suppliers() {
			s.Initialize()
		}
	})
}

func (p *ParkIdleVehiclesPhase) Terminate() {
	p.Lifecycle.Terminate(func() {
		for _, s := range p.suppliers() {
			s.Terminate()
		}
	})
}

func (p *ParkIdleVehiclesPhase) suppliers() []ParkingPositionSupplier {
	var out []ParkingPositionSupplier
	for _, s := range []ParkingPositionSupplier{p.prioritized, p.fallback} {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (p *ParkIdleVehiclesPhase) Run(ctx context.Context, c *Cycle) error {
	if !p.enabled {
		return nil
	}
	for _, v := range c.Vehicles() {
		current, _ := c.Vehicle(v.Name)
		if !Passes(IsParkable, c.vehicleContext(current)) {
			continue
		}
		var (
			point model.Point
			found bool
		)
		for _, s := range p.suppliers() {
			if point, found = s.FindParkingPosition(c, current); found {
				break
			}
		}
		if !found {
			c.Record(Decision{Action: logging.ActionSkipped, Vehicle: current.Name, Reasons: []string{ReasonNoParkingPosition}})
			continue
		}
		if err := createParkOrder(ctx, c, p.filter, current, point); err != nil {
			return err
		}
	}
	return nil
}

func createParkOrder(ctx context.Context, c *Cycle, filter Filter[CandidateContext], v model.Vehicle, point model.Point) error {
	o, err := c.CreateOrder(ctx, model.TransportOrderCreation{
		Name:            ParkOrderPrefix,
		IncompleteName:  true,
		Destinations:    []model.Destination{{Target: point.Name, Operation: model.OpPark}},
		IntendedVehicle: v.Name,
		Type:            model.OrderTypePark,
		Dispensable:     true,
	})
	if err != nil {
		return err
	}
	return commitCreated(ctx, c, filter, o, v)
}

// ReparkVehiclesPhase moves parked vehicles to free parking positions of
// better priority. Vehicles on the worst positions go first.
type ReparkVehiclesPhase struct {
	basePhase
	enabled  bool
	supplier ParkingPositionSupplier
	priority PriorityFunction
	filter   Filter[CandidateContext]
}

func NewReparkVehiclesPhase(enabled bool, supplier ParkingPositionSupplier, fn PriorityFunction) *ReparkVehiclesPhase {
	return &ReparkVehiclesPhase{
		basePhase: basePhase{name: PhaseReparkVehicles},
		enabled:   enabled,
		supplier:  supplier,
		priority:  fn,
		filter:    DefaultCandidateFilter,
	}
}

func (p *ReparkVehiclesPhase) Initialize() {
	p.Lifecycle.Initialize(func() { p.supplier.Initialize() })
}

func (p *ReparkVehiclesPhase) Terminate() {
	p.Lifecycle.Terminate(func() { p.supplier.Terminate() })
}

func (p *ReparkVehiclesPhase) Run(ctx context.Context, c *Cycle) error {
	if !p.enabled {
		return nil
	}
	var parked []model.Vehicle
	for _, v := range c.Vehicles() {
		if Passes(IsReparkable, c.vehicleContext(v)) {
			parked = append(parked, v)
		}
	}
	m := c.Plant()
	sort.SliceStable(parked, func(i, j int) bool {
		pi := priorityOf(p.priority, m, parked[i].CurrentPosition)
		pj := priorityOf(p.priority, m, parked[j].CurrentPosition)
		if pi != pj {
			return pi > pj
		}
		return parked[i].Name < parked[j].Name
	})
	for _, v := range parked {
		point, found := p.supplier.FindParkingPosition(c, v)
		if !found {
			continue
		}
		if err := createParkOrder(ctx, c, p.filter, v, point); err != nil {
			return err
		}
	}
	return nil
}
