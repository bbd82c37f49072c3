package dispatch

import (
	"errors"
	"fmt"
	"math"

	"github.com/kilianp07/agvdispatch/core/model"
)

// PropDestinationPoint pins a location destination to one of its linked
// points. Suppliers set it when they already picked the point.
const PropDestinationPoint = "agv:destinationPoint"

var errEmptyCandidate = errors.New("candidate has no drive orders")

// AssignmentCandidate is a routed pairing of a vehicle and an order. It
// lives for one cycle only.
type AssignmentCandidate struct {
	Vehicle        model.Vehicle
	TransportOrder model.TransportOrder
	DriveOrders    []model.DriveOrder
}

// InitialRoutingCosts returns the costs of the route to the first destination.
func (c AssignmentCandidate) InitialRoutingCosts() float64 {
	if len(c.DriveOrders) == 0 || c.DriveOrders[0].Route == nil {
		return math.Inf(1)
	}
	return c.DriveOrders[0].Route.Costs
}

// TotalCosts returns the summed route costs of all legs.
func (c AssignmentCandidate) TotalCosts() float64 {
	total := 0.0
	for _, d := range c.DriveOrders {
		if d.Route == nil {
			return math.Inf(1)
		}
		total += d.Route.Costs
	}
	return total
}

// FinalDestination returns the point the vehicle ends on.
func (c AssignmentCandidate) FinalDestination() (string, bool) {
	if len(c.DriveOrders) == 0 {
		return "", false
	}
	last := c.DriveOrders[len(c.DriveOrders)-1]
	if last.Route == nil {
		return "", false
	}
	return last.Route.FinalDestination()
}

// Validate checks that every leg is routed with finite costs and that the
// legs chain into one another.
func (c AssignmentCandidate) Validate() error {
	if len(c.DriveOrders) == 0 {
		return errEmptyCandidate
	}
	prev := c.Vehicle.CurrentPosition
	for i, d := range c.DriveOrders {
		if d.Route == nil {
			return fmt.Errorf("drive order %d has no route", i)
		}
		if math.IsInf(d.Route.Costs, 0) || math.IsNaN(d.Route.Costs) {
			return fmt.Errorf("drive order %d has infinite costs", i)
		}
		if !d.Route.IsContiguous() {
			return fmt.Errorf("drive order %d route is not contiguous", i)
		}
		if prev != "" && d.Route.Start != prev {
			return fmt.Errorf("drive order %d starts at %s, expected %s", i, d.Route.Start, prev)
		}
		prev, _ = d.Route.FinalDestination()
	}
	return nil
}

// RouteAssigner routes the legs of transport orders.
type RouteAssigner struct {
	view PlantView
}

// NewRouteAssigner returns an assigner working on view.
func NewRouteAssigner(view PlantView) *RouteAssigner {
	return &RouteAssigner{view: view}
}

// TryAssignRoutes routes every leg of order for v, the first one from start
// and each following one from where the previous leg ended. It returns false
// as soon as one leg cannot be routed; order is never modified.
func (a *RouteAssigner) TryAssignRoutes(order model.TransportOrder, v model.Vehicle, start string) ([]model.DriveOrder, bool) {
	if start == "" || len(order.DriveOrders) == 0 {
		return nil, false
	}
	out := make([]model.DriveOrder, 0, len(order.DriveOrders))
	from := start
	for _, d := range order.DriveOrders {
		points, err := a.destinationPoints(d.Destination)
		if err != nil {
			return nil, false
		}
		routes := a.view.Router().FindRoutes(v, from, points)
		if len(routes) == 0 {
			return nil, false
		}
		route := routes[0]
		dst, _ := route.FinalDestination()
		out = append(out, model.DriveOrder{
			Destination: copyDestination(d.Destination),
			Route:       &route,
			State:       model.DriveOrderPristine,
		})
		from = dst
	}
	return out, true
}

// destinationPoints lists the points a destination may be reached on.
func (a *RouteAssigner) destinationPoints(d model.Destination) ([]string, error) {
	points, err := a.view.Plant().ResolveDestination(d.Target)
	if err != nil {
		return nil, err
	}
	if pinned, ok := d.Properties[PropDestinationPoint]; ok && pinned != "" {
		for _, p := range points {
			if p == pinned {
				return []string{p}, nil
			}
		}
		return nil, fmt.Errorf("%s is not linked to %s", pinned, d.Target)
	}
	return points, nil
}

// BuildCandidate routes order for v from its current position.
func BuildCandidate(view PlantView, order model.TransportOrder, v model.Vehicle) (AssignmentCandidate, bool) {
	if !v.HasPosition() {
		return AssignmentCandidate{}, false
	}
	drive, ok := NewRouteAssigner(view).TryAssignRoutes(order, v, v.CurrentPosition)
	if !ok {
		return AssignmentCandidate{}, false
	}
	return AssignmentCandidate{Vehicle: v, TransportOrder: order, DriveOrders: drive}, true
}

func copyDestination(d model.Destination) model.Destination {
	out := d
	if d.Properties != nil {
		out.Properties = make(map[string]string, len(d.Properties))
		for k, v := range d.Properties {
			out.Properties[k] = v
		}
	}
	return out
}
