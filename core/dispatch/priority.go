package dispatch

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/kilianp07/agvdispatch/core/model"
	"github.com/kilianp07/agvdispatch/core/plant"
)

// NoPriority is reported for positions without a priority. It ranks below
// every explicit priority.
const NoPriority = math.MaxInt

// PriorityFunction returns the priority of a point; lower is better.
type PriorityFunction func(m *plant.Model, point string) (int, bool)

// PropertyPriority reads the priority from the point property key, falling
// back to the smallest value found on a location linked to the point.
func PropertyPriority(key string) PriorityFunction {
	return func(m *plant.Model, point string) (int, bool) {
		p, ok := m.Point(point)
		if !ok {
			return NoPriority, false
		}
		if raw, ok := p.Property(key); ok {
			if v, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
				return v, true
			}
		}
		best, found := NoPriority, false
		for _, l := range m.Locations() {
			if !l.LinkedTo(point) {
				continue
			}
			raw, ok := l.Property(key)
			if !ok {
				continue
			}
			if v, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && v < best {
				best, found = v, true
			}
		}
		return best, found
	}
}

// priorityOf returns the priority of point or NoPriority.
func priorityOf(fn PriorityFunction, m *plant.Model, point string) int {
	if point == "" {
		return NoPriority
	}
	if v, ok := fn(m, point); ok {
		return v
	}
	return NoPriority
}

// Order and candidate priority names.
const (
	OrderByDeadline = "BY_DEADLINE"
	OrderByAge      = "BY_AGE"
	OrderByName     = "BY_NAME"

	CandidateByInitialRoutingCosts  = "BY_INITIAL_ROUTING_COSTS"
	CandidateByCompleteRoutingCosts = "BY_COMPLETE_ROUTING_COSTS"
	CandidateByEnergyLevel          = "BY_ENERGY_LEVEL"
	CandidateByVehicleName          = "BY_VEHICLE_NAME"
)

type orderComparator func(a, b model.TransportOrder) int

type candidateComparator func(a, b AssignmentCandidate) int

var orderComparators = map[string]orderComparator{
	OrderByDeadline: func(a, b model.TransportOrder) int {
		switch {
		case a.Deadline.IsZero() && b.Deadline.IsZero():
			return 0
		case a.Deadline.IsZero():
			return 1
		case b.Deadline.IsZero():
			return -1
		}
		return a.Deadline.Compare(b.Deadline)
	},
	OrderByAge: func(a, b model.TransportOrder) int { return a.CreationTime.Compare(b.CreationTime) },
	OrderByName: func(a, b model.TransportOrder) int { return strings.Compare(a.Name, b.Name) },
}

var candidateComparators = map[string]candidateComparator{
	CandidateByInitialRoutingCosts: func(a, b AssignmentCandidate) int {
		return compareFloat(a.InitialRoutingCosts(), b.InitialRoutingCosts())
	},
	CandidateByCompleteRoutingCosts: func(a, b AssignmentCandidate) int {
		return compareFloat(a.TotalCosts(), b.TotalCosts())
	},
	CandidateByEnergyLevel: func(a, b AssignmentCandidate) int {
		return b.Vehicle.EnergyLevel - a.Vehicle.EnergyLevel
	},
	CandidateByVehicleName: func(a, b AssignmentCandidate) int {
		return strings.Compare(a.Vehicle.Name, b.Vehicle.Name)
	},
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// orderSorter builds the configured order ranking, always ending with the
// name so that the result is total.
func orderSorter(names []string) (func([]model.TransportOrder), error) {
	cmps := make([]orderComparator, 0, len(names)+1)
	for _, n := range names {
		c, ok := orderComparators[strings.ToUpper(n)]
		if !ok {
			return nil, fmt.Errorf("%w: unknown order priority %q", ErrInvalidArgument, n)
		}
		cmps = append(cmps, c)
	}
	cmps = append(cmps, orderComparators[OrderByName])
	return func(orders []model.TransportOrder) {
		sort.SliceStable(orders, func(i, j int) bool {
			for _, c := range cmps {
				if r := c(orders[i], orders[j]); r != 0 {
					return r < 0
				}
			}
			return false
		})
	}, nil
}

// candidateRanker returns a less function over candidates, ending with the
// vehicle name.
func candidateRanker(names []string) (func(a, b AssignmentCandidate) bool, error) {
	cmps := make([]candidateComparator, 0, len(names)+1)
	for _, n := range names {
		c, ok := candidateComparators[strings.ToUpper(n)]
		if !ok {
			return nil, fmt.Errorf("%w: unknown candidate priority %q", ErrInvalidArgument, n)
		}
		cmps = append(cmps, c)
	}
	cmps = append(cmps, candidateComparators[CandidateByVehicleName])
	return func(a, b AssignmentCandidate) bool {
		for _, c := range cmps {
			if r := c(a, b); r != 0 {
				return r < 0
			}
		}
		return false
	}, nil
}
