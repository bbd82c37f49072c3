package dispatch

import (
	"math"
	"sort"

	"github.com/kilianp07/agvdispatch/core/model"
)

// ParkingPositionSupplier picks a parking position for a vehicle.
type ParkingPositionSupplier interface {
	Initialize()
	IsInitialized() bool
	Terminate()
	FindParkingPosition(view PlantView, v model.Vehicle) (model.Point, bool)
}

// positionCandidate is a point with its priority and travel costs.
type positionCandidate struct {
	point    model.Point
	priority int
	costs    float64
}

// usable reports whether v may target p: nobody else stands on it or heads there.
func usable(targeted map[string]string, p model.Point, v model.Vehicle) bool {
	if p.OccupyingVehicle != "" && p.OccupyingVehicle != v.Name {
		return false
	}
	if by, ok := targeted[p.Name]; ok && by != v.Name {
		return false
	}
	return true
}

// nearest returns the cheapest reachable candidate; equal costs go to the
// lower point name. Candidates must be sorted by name.
func nearest(cands []positionCandidate) (positionCandidate, bool) {
	best, found := positionCandidate{costs: math.Inf(1)}, false
	for _, c := range cands {
		if math.IsInf(c.costs, 1) {
			continue
		}
		if !found || c.costs < best.costs {
			best, found = c, true
		}
	}
	return best, found
}

// withCosts fills in route costs from the vehicle's position. The router is
// invoked once for all candidates.
func withCosts(view PlantView, v model.Vehicle, cands []positionCandidate) []positionCandidate {
	if len(cands) == 0 {
		return cands
	}
	dests := make([]string, len(cands))
	for i, c := range cands {
		dests[i] = c.point.Name
	}
	costs := view.Router().Costs(v, v.CurrentPosition, dests)
	for i := range cands {
		if c, ok := costs[cands[i].point.Name]; ok {
			cands[i].costs = c
		} else {
			cands[i].costs = math.Inf(1)
		}
	}
	return cands
}

// NearestParkingPositionSupplier picks the closest free parking position.
type NearestParkingPositionSupplier struct {
	Lifecycle
}

// NewNearestParkingPositionSupplier returns a ready supplier.
func NewNearestParkingPositionSupplier() *NearestParkingPositionSupplier {
	return &NearestParkingPositionSupplier{}
}

func (s *NearestParkingPositionSupplier) Initialize() { s.Lifecycle.Initialize(nil) }
func (s *NearestParkingPositionSupplier) Terminate()  { s.Lifecycle.Terminate(nil) }

func (s *NearestParkingPositionSupplier) FindParkingPosition(view PlantView, v model.Vehicle) (model.Point, bool) {
	if !v.HasPosition() {
		return model.Point{}, false
	}
	targeted := view.TargetedPoints()
	var cands []positionCandidate
	for _, p := range view.Plant().Points() {
		if !p.IsParkingPosition() || p.Name == v.CurrentPosition || !usable(targeted, p, v) {
			continue
		}
		cands = append(cands, positionCandidate{point: p})
	}
	best, ok := nearest(withCosts(view, v, cands))
	return best.point, ok
}

// PrioritizedParkingPositionSupplier moves vehicles to parking positions
// with a strictly better priority than the one they stand on.
type PrioritizedParkingPositionSupplier struct {
	Lifecycle
	priority PriorityFunction
}

// NewPrioritizedParkingPositionSupplier reads priorities with fn.
func NewPrioritizedParkingPositionSupplier(fn PriorityFunction) *PrioritizedParkingPositionSupplier {
	return &PrioritizedParkingPositionSupplier{priority: fn}
}

func (s *PrioritizedParkingPositionSupplier) Initialize() { s.Lifecycle.Initialize(nil) }
func (s *PrioritizedParkingPositionSupplier) Terminate()  { s.Lifecycle.Terminate(nil) }

func (s *PrioritizedParkingPositionSupplier) FindParkingPosition(view PlantView, v model.Vehicle) (model.Point, bool) {
	if !v.HasPosition() {
		return model.Point{}, false
	}
	m := view.Plant()
	current := priorityOf(s.priority, m, v.CurrentPosition)
	targeted := view.TargetedPoints()
	var cands []positionCandidate
	for _, p := range m.Points() {
		if !p.IsParkingPosition() || !usable(targeted, p, v) {
			continue
		}
		prio := priorityOf(s.priority, m, p.Name)
		if prio >= current {
			continue
		}
		cands = append(cands, positionCandidate{point: p, priority: prio})
	}
	best, ok := nearest(bestPriorityGroup(withCosts(view, v, cands)))
	return best.point, ok
}

// bestPriorityGroup keeps the reachable candidates sharing the lowest
// priority value.
func bestPriorityGroup(cands []positionCandidate) []positionCandidate {
	lowest := NoPriority
	for _, c := range cands {
		if !math.IsInf(c.costs, 1) && c.priority < lowest {
			lowest = c.priority
		}
	}
	var out []positionCandidate
	for _, c := range cands {
		if c.priority == lowest && !math.IsInf(c.costs, 1) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].point.Name < out[j].point.Name })
	return out
}
