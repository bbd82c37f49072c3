// Package routing computes least-cost routes through the plant graph for a
// given vehicle. Costs come from pluggable EdgeEvaluators.
package routing

import (
	"math"
	"strconv"

	"github.com/kilianp07/agvdispatch/core/model"
)

// InfiniteCost marks an edge the vehicle cannot traverse.
var InfiniteCost = math.Inf(1)

// IsInfinite reports whether w is InfiniteCost.
func IsInfinite(w float64) bool { return math.IsInf(w, 1) }

// Edge is a path travelled in one direction.
type Edge struct {
	Path    model.Path
	Reverse bool
}

// Source returns the point the edge starts at.
func (e Edge) Source() string {
	if e.Reverse {
		return e.Path.Destination
	}
	return e.Path.Source
}

// Destination returns the point the edge ends at.
func (e Edge) Destination() string {
	if e.Reverse {
		return e.Path.Source
	}
	return e.Path.Destination
}

// EdgeEvaluator assigns a traversal cost to an edge for a vehicle.
// ComputeWeight must be a pure function of its arguments; per-computation
// caches may only live between the two lifecycle hooks.
type EdgeEvaluator interface {
	OnGraphComputationStart(v model.Vehicle)
	OnGraphComputationEnd(v model.Vehicle)
	// ComputeWeight returns a weight >= 0 or InfiniteCost.
	ComputeWeight(e Edge, v model.Vehicle) float64
}

// hooks provides no-op lifecycle hooks for stateless evaluators.
type hooks struct{}

func (hooks) OnGraphComputationStart(model.Vehicle) {}
func (hooks) OnGraphComputationEnd(model.Vehicle)   {}

// TravelTimeEvaluator weighs edges by the time needed to travel them at the
// lower of the vehicle and path speed limits.
type TravelTimeEvaluator struct{ hooks }

func (TravelTimeEvaluator) ComputeWeight(e Edge, v model.Vehicle) float64 {
	var vel int
	if e.Reverse {
		vel = min(v.MaxReverseVelocity, e.Path.MaxReverseVelocity)
	} else {
		vel = min(v.MaxVelocity, e.Path.MaxVelocity)
	}
	if vel <= 0 {
		return InfiniteCost
	}
	return float64(e.Path.Length) / float64(vel)
}

// DistanceEvaluator weighs edges by path length. Reverse travel is
// multiplied by ReversePenalty when it is greater than one.
type DistanceEvaluator struct {
	hooks
	ReversePenalty float64
}

func (d DistanceEvaluator) ComputeWeight(e Edge, _ model.Vehicle) float64 {
	w := float64(e.Path.Length)
	if e.Reverse && d.ReversePenalty > 1 {
		w *= d.ReversePenalty
	}
	return w
}

// HopsEvaluator gives every edge the same weight.
type HopsEvaluator struct{ hooks }

func (HopsEvaluator) ComputeWeight(Edge, model.Vehicle) float64 { return 1 }

// Path property keys read by ExplicitPropertiesEvaluator. The vehicle's
// routing group, if set, is appended to the key.
const (
	PropRoutingCostForward = "tcs:routingCostForward"
	PropRoutingCostReverse = "tcs:routingCostReverse"
	PropRoutingGroup       = "tcs:routingGroup"
)

// ExplicitPropertiesEvaluator reads weights from path properties and falls
// back to DefaultValue when the property is absent.
type ExplicitPropertiesEvaluator struct {
	hooks
	DefaultValue float64
}

func (x ExplicitPropertiesEvaluator) ComputeWeight(e Edge, v model.Vehicle) float64 {
	key := PropRoutingCostForward
	if e.Reverse {
		key = PropRoutingCostReverse
	}
	if g, ok := v.Property(PropRoutingGroup); ok && g != "" {
		key += g
	}
	raw, ok := e.Path.Property(key)
	if !ok {
		return x.DefaultValue
	}
	w, err := strconv.ParseFloat(raw, 64)
	if err != nil || w < 0 || math.IsNaN(w) {
		return InfiniteCost
	}
	return w
}

// Composite sums the weights of its children. The first infinite child
// weight ends the evaluation.
type Composite struct {
	Evaluators []EdgeEvaluator
}

// NewComposite returns a Composite over evs.
func NewComposite(evs ...EdgeEvaluator) *Composite {
	return &Composite{Evaluators: evs}
}

func (c *Composite) OnGraphComputationStart(v model.Vehicle) {
	for _, ev := range c.Evaluators {
		ev.OnGraphComputationStart(v)
	}
}

func (c *Composite) OnGraphComputationEnd(v model.Vehicle) {
	for _, ev := range c.Evaluators {
		ev.OnGraphComputationEnd(v)
	}
}

func (c *Composite) ComputeWeight(e Edge, v model.Vehicle) float64 {
	var sum float64
	for _, ev := range c.Evaluators {
		w := ev.ComputeWeight(e, v)
		if IsInfinite(w) || math.IsNaN(w) {
			return InfiniteCost
		}
		sum += w
	}
	return sum
}
