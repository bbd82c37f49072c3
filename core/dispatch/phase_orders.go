package dispatch

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/agvdispatch/core/dispatch/logging"
	"github.com/kilianp07/agvdispatch/core/events"
	"github.com/kilianp07/agvdispatch/core/model"
)

// FinishWithdrawalsPhase fails withdrawn orders and releases their vehicles.
type FinishWithdrawalsPhase struct{ basePhase }

func NewFinishWithdrawalsPhase() *FinishWithdrawalsPhase {
	return &FinishWithdrawalsPhase{basePhase{name: PhaseFinishWithdrawals}}
}

func (p *FinishWithdrawalsPhase) Run(ctx context.Context, c *Cycle) error {
	for _, o := range c.OrdersInState(model.OrderStateWithdrawn) {
		if err := c.FailOrder(ctx, o.Name, []string{"withdrawn"}); err != nil {
			return err
		}
	}
	return nil
}

// ActivateOrdersPhase checks new orders and makes them dispatchable. Orders
// whose destinations do not exist, or whose intended vehicle is unknown,
// become UNROUTABLE.
type ActivateOrdersPhase struct{ basePhase }

func NewActivateOrdersPhase() *ActivateOrdersPhase {
	return &ActivateOrdersPhase{basePhase{name: PhaseActivateOrders}}
}

func (p *ActivateOrdersPhase) Run(ctx context.Context, c *Cycle) error {
	for _, o := range c.OrdersInState(model.OrderStateRaw) {
		if reasons := p.check(c, o); len(reasons) > 0 {
			if err := c.SetOrderState(ctx, o.Name, model.OrderStateUnroutable); err != nil {
				return err
			}
			c.Record(Decision{Action: logging.ActionUnroutable, Order: o.Name, Vehicle: o.IntendedVehicle, Reasons: reasons})
			c.publish(events.OrderFailedEvent{
				Order: o.Name, Type: o.Type, Vehicle: o.IntendedVehicle,
				State: model.OrderStateUnroutable, Reasons: reasons, Phase: p.name, Time: c.now(),
			})
			continue
		}
		if err := c.SetOrderState(ctx, o.Name, model.OrderStateActive); err != nil {
			return err
		}
	}
	for _, o := range c.OrdersInState(model.OrderStateActive) {
		if err := c.SetOrderState(ctx, o.Name, model.OrderStateDispatchable); err != nil {
			return err
		}
		c.Record(Decision{Action: logging.ActionActivated, Order: o.Name, Vehicle: o.IntendedVehicle})
	}
	return nil
}

func (p *ActivateOrdersPhase) check(c *Cycle, o model.TransportOrder) []string {
	var reasons []string
	if len(o.DriveOrders) == 0 {
		reasons = append(reasons, "no destinations")
	}
	for _, d := range o.DriveOrders {
		if _, err := c.Plant().ResolveDestination(d.Destination.Target); err != nil {
			reasons = append(reasons, err.Error())
		}
	}
	if o.HasIntendedVehicle() {
		if _, ok := c.Vehicle(o.IntendedVehicle); !ok {
			reasons = append(reasons, "unknown intended vehicle "+o.IntendedVehicle)
		}
	}
	return reasons
}

// AssignFreeOrdersPhase assigns dispatchable orders to available vehicles.
// Candidates are routed in parallel; assignment then walks the orders by
// priority and gives each one the best remaining vehicle.
type AssignFreeOrdersPhase struct {
	basePhase
	sortOrders  func([]model.TransportOrder)
	better      func(a, b AssignmentCandidate) bool
	parallelism int
	filter      Filter[CandidateContext]
}

// NewAssignFreeOrdersPhase ranks orders and candidates by the named priorities.
func NewAssignFreeOrdersPhase(orderPriorities, candidatePriorities []string, parallelism int) (*AssignFreeOrdersPhase, error) {
	sortOrders, err := orderSorter(orderPriorities)
	if err != nil {
		return nil, err
	}
	better, err := candidateRanker(candidatePriorities)
	if err != nil {
		return nil, err
	}
	if parallelism <= 0 {
		parallelism = 1
	}
	return &AssignFreeOrdersPhase{
		basePhase:   basePhase{name: PhaseAssignFreeOrders},
		sortOrders:  sortOrders,
		better:      better,
		parallelism: parallelism,
		filter:      DefaultCandidateFilter,
	}, nil
}

type pairing struct {
	order   int
	vehicle int
}

func (p *AssignFreeOrdersPhase) Run(ctx context.Context, c *Cycle) error {
	var orders []model.TransportOrder
	for _, o := range c.Orders() {
		if Passes(IsDispatchable, o) {
			orders = append(orders, o)
		}
	}
	var vehicles []model.Vehicle
	for _, v := range c.Vehicles() {
		if Passes(IsAvailableForAnyOrder, c.vehicleContext(v)) {
			vehicles = append(vehicles, v)
		}
	}
	if len(orders) == 0 || len(vehicles) == 0 {
		return nil
	}
	p.sortOrders(orders)

	candidates, err := p.routeAll(ctx, c, orders, vehicles)
	if err != nil {
		return err
	}

	taken := map[string]bool{}
	for oi, o := range orders {
		var (
			best    AssignmentCandidate
			found   bool
			reasons []string
		)
		for vi, v := range vehicles {
			if taken[v.Name] {
				continue
			}
			cand, ok := candidates[pairing{oi, vi}]
			if !ok {
				continue
			}
			if o.Dispensable && v.TransportOrder != "" {
				continue
			}
			if r := p.filter.Apply(CandidateContext{Candidate: cand, View: c}); len(r) > 0 {
				reasons = append(reasons, r...)
				continue
			}
			if !found || p.better(cand, best) {
				best, found = cand, true
			}
		}
		if !found {
			c.Record(Decision{Action: logging.ActionSkipped, Order: o.Name, Reasons: dedupe(reasons)})
			continue
		}
		if err := c.Assign(ctx, best); err != nil {
			return err
		}
		taken[best.Vehicle.Name] = true
	}
	return nil
}

// routeAll computes a candidate for every pairing the vehicle could take.
// Routing only reads the snapshot, so it runs on a bounded number of goroutines.
func (p *AssignFreeOrdersPhase) routeAll(ctx context.Context, c *Cycle, orders []model.TransportOrder, vehicles []model.Vehicle) (map[pairing]AssignmentCandidate, error) {
	var pairs []pairing
	for oi, o := range orders {
		for vi, v := range vehicles {
			if o.HasIntendedVehicle() && o.IntendedVehicle != v.Name {
				continue
			}
			if !v.AcceptsOrderType(o.Type) {
				continue
			}
			pairs = append(pairs, pairing{oi, vi})
		}
	}
	results := make([]*AssignmentCandidate, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism)
	for i, pr := range pairs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if cand, ok := BuildCandidate(c, orders[pr.order], vehicles[pr.vehicle]); ok {
				results[i] = &cand
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[pairing]AssignmentCandidate, len(pairs))
	for i, r := range results {
		if r != nil {
			out[pairs[i]] = *r
		}
	}
	return out, nil
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
