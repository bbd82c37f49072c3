package dispatch

import (
	"github.com/kilianp07/agvdispatch/core/model"
)

// RechargePositionSupplier computes the destinations a vehicle visits to recharge.
type RechargePositionSupplier interface {
	Initialize()
	IsInitialized() bool
	Terminate()
	FindRechargeSequence(view PlantView, v model.Vehicle) []model.Destination
}

// rechargeOperation returns the operation v performs at a charger.
func rechargeOperation(v model.Vehicle) string {
	if v.RechargeOperation != "" {
		return v.RechargeOperation
	}
	return model.OpCharge
}

// chargingPoints lists the points linked to a location that allows the
// vehicle's recharge operation, in point name order. A point linked to
// several chargers maps to the first location by name.
func chargingPoints(view PlantView, v model.Vehicle) (map[string]model.Location, []model.Point) {
	m := view.Plant()
	op := rechargeOperation(v)
	byPoint := map[string]model.Location{}
	for _, l := range m.Locations() {
		if !l.AllowsOperation(op) {
			continue
		}
		for _, p := range l.SortedLinks() {
			if _, seen := byPoint[p]; !seen {
				byPoint[p] = l
			}
		}
	}
	var points []model.Point
	for _, p := range m.Points() {
		if _, ok := byPoint[p.Name]; ok {
			points = append(points, p)
		}
	}
	return byPoint, points
}

// PrioritizedRechargePositionSupplier sends vehicles to a free charger. With
// a priority function set, only chargers of strictly better priority than
// the vehicle's position qualify as a first choice. When no charger
// qualifies, the nearest reachable one is returned regardless of occupancy
// and priority so that the caller can reject it.
type PrioritizedRechargePositionSupplier struct {
	Lifecycle
	priority PriorityFunction
}

// NewRechargePositionSupplier returns a supplier; fn may be nil to ignore
// priorities.
func NewRechargePositionSupplier(fn PriorityFunction) *PrioritizedRechargePositionSupplier {
	return &PrioritizedRechargePositionSupplier{priority: fn}
}

func (s *PrioritizedRechargePositionSupplier) Initialize() { s.Lifecycle.Initialize(nil) }
func (s *PrioritizedRechargePositionSupplier) Terminate()  { s.Lifecycle.Terminate(nil) }

func (s *PrioritizedRechargePositionSupplier) FindRechargeSequence(view PlantView, v model.Vehicle) []model.Destination {
	if !v.HasPosition() {
		return nil
	}
	locations, points := chargingPoints(view, v)
	if len(points) == 0 {
		return nil
	}
	all := make([]positionCandidate, len(points))
	for i, p := range points {
		all[i] = positionCandidate{point: p, priority: NoPriority}
	}
	all = withCosts(view, v, all)

	m := view.Plant()
	targeted := view.TargetedPoints()
	current := NoPriority
	if s.priority != nil {
		current = priorityOf(s.priority, m, v.CurrentPosition)
	}
	var preferred, free []positionCandidate
	for _, c := range all {
		if !usable(targeted, c.point, v) {
			continue
		}
		free = append(free, c)
		if s.priority == nil {
			continue
		}
		c.priority = priorityOf(s.priority, m, c.point.Name)
		if c.priority < current {
			preferred = append(preferred, c)
		}
	}

	var (
		best positionCandidate
		ok   bool
	)
	if s.priority != nil {
		best, ok = nearest(bestPriorityGroup(preferred))
	}
	if !ok {
		best, ok = nearest(free)
	}
	if !ok {
		best, ok = nearest(all)
	}
	if !ok {
		return nil
	}
	loc := locations[best.point.Name]
	return []model.Destination{{
		Target:     loc.Name,
		Operation:  rechargeOperation(v),
		Properties: map[string]string{PropDestinationPoint: best.point.Name},
	}}
}
