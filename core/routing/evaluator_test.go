package routing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/agvdispatch/core/factory"
	"github.com/kilianp07/agvdispatch/core/model"
)

func TestTravelTimeZeroVelocityIsInfinite(t *testing.T) {
	ev := TravelTimeEvaluator{}
	p := model.Path{Name: "p", Source: "A", Destination: "B", Length: 1000, MaxVelocity: 500, MaxReverseVelocity: 0}
	cases := []struct {
		name    string
		vehicle model.Vehicle
		reverse bool
		want    float64
	}{
		{"path reverse zero", model.Vehicle{MaxVelocity: 1000, MaxReverseVelocity: 1000}, true, InfiniteCost},
		{"vehicle forward zero", model.Vehicle{MaxVelocity: 0, MaxReverseVelocity: 1000}, false, InfiniteCost},
		{"limited by path", model.Vehicle{MaxVelocity: 1000}, false, 2},
		{"limited by vehicle", model.Vehicle{MaxVelocity: 250}, false, 4},
	}
	for _, c := range cases {
		w := ev.ComputeWeight(Edge{Path: p, Reverse: c.reverse}, c.vehicle)
		if math.IsNaN(w) {
			t.Fatalf("%s: NaN weight", c.name)
		}
		if w != c.want {
			t.Errorf("%s: expected %v got %v", c.name, c.want, w)
		}
	}
}

type countingEvaluator struct {
	weight  float64
	calls   int
	started int
	ended   int
}

func (c *countingEvaluator) OnGraphComputationStart(model.Vehicle) { c.started++ }
func (c *countingEvaluator) OnGraphComputationEnd(model.Vehicle)   { c.ended++ }
func (c *countingEvaluator) ComputeWeight(Edge, model.Vehicle) float64 {
	c.calls++
	return c.weight
}

func TestCompositeSumsAndShortCircuits(t *testing.T) {
	a := &countingEvaluator{weight: 2}
	b := &countingEvaluator{weight: 3}
	c := NewComposite(a, b)
	assert.Equal(t, 5.0, c.ComputeWeight(Edge{}, model.Vehicle{}))

	inf := &countingEvaluator{weight: InfiniteCost}
	after := &countingEvaluator{weight: 1}
	c = NewComposite(inf, after)
	assert.True(t, IsInfinite(c.ComputeWeight(Edge{}, model.Vehicle{})))
	assert.Equal(t, 0, after.calls, "evaluation must stop at the first infinite weight")

	c.OnGraphComputationStart(model.Vehicle{})
	c.OnGraphComputationEnd(model.Vehicle{})
	assert.Equal(t, 1, inf.started)
	assert.Equal(t, 1, after.ended)
}

func TestExplicitPropertiesEvaluator(t *testing.T) {
	ev := ExplicitPropertiesEvaluator{DefaultValue: 7}
	p := model.Path{Name: "p", Properties: map[string]string{
		PropRoutingCostForward:        "3",
		PropRoutingCostReverse:        "oops",
		PropRoutingCostForward + "g1": "11",
	}}
	assert.Equal(t, 3.0, ev.ComputeWeight(Edge{Path: p}, model.Vehicle{}))
	assert.True(t, IsInfinite(ev.ComputeWeight(Edge{Path: p, Reverse: true}, model.Vehicle{})))
	grouped := model.Vehicle{Properties: map[string]string{PropRoutingGroup: "g1"}}
	assert.Equal(t, 11.0, ev.ComputeWeight(Edge{Path: p}, grouped))
	assert.Equal(t, 7.0, ev.ComputeWeight(Edge{Path: model.Path{}}, model.Vehicle{}))
}

func TestDistanceAndHops(t *testing.T) {
	p := model.Path{Length: 1000}
	assert.Equal(t, 1000.0, DistanceEvaluator{}.ComputeWeight(Edge{Path: p, Reverse: true}, model.Vehicle{}))
	assert.Equal(t, 2000.0, DistanceEvaluator{ReversePenalty: 2}.ComputeWeight(Edge{Path: p, Reverse: true}, model.Vehicle{}))
	assert.Equal(t, 1.0, HopsEvaluator{}.ComputeWeight(Edge{Path: p}, model.Vehicle{}))
}

func TestNewEvaluatorFromConfig(t *testing.T) {
	ev, err := NewEvaluator(nil)
	require.NoError(t, err)
	assert.IsType(t, TravelTimeEvaluator{}, ev)

	ev, err = NewEvaluator([]factory.ModuleConfig{
		{Type: EvaluatorDistance, Conf: map[string]any{"reverse_penalty": 1.5}},
		{Type: EvaluatorHops},
	})
	require.NoError(t, err)
	comp, ok := ev.(*Composite)
	require.True(t, ok)
	assert.Len(t, comp.Evaluators, 2)

	_, err = NewEvaluator([]factory.ModuleConfig{{Type: "TELEPORT"}})
	assert.Error(t, err)
	_, err = NewEvaluator([]factory.ModuleConfig{{Type: EvaluatorDistance, Conf: map[string]any{"reverse_penalty": 0.5}}})
	assert.Error(t, err)
	assert.True(t, KnownEvaluator(EvaluatorExplicitProperties))
}
