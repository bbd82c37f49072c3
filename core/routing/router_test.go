package routing

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/agvdispatch/core/model"
	"github.com/kilianp07/agvdispatch/core/plant"
)

func mkPath(name, src, dst string, length int64, fwd, rev int) model.Path {
	return model.Path{Name: name, Source: src, Destination: dst, Length: length, MaxVelocity: fwd, MaxReverseVelocity: rev}
}

func buildPlant(t *testing.T, paths ...model.Path) *plant.Model {
	t.Helper()
	seen := map[string]bool{}
	var pts []model.Point
	for _, p := range paths {
		for _, n := range []string{p.Source, p.Destination} {
			if !seen[n] {
				seen[n] = true
				pts = append(pts, model.Point{Name: n})
			}
		}
	}
	m, err := plant.NewModel(pts, paths, nil)
	require.NoError(t, err)
	return m
}

var fastVehicle = model.Vehicle{Name: "v1", MaxVelocity: 1000, MaxReverseVelocity: 1000}

func TestRouterRespectsDirection(t *testing.T) {
	m := buildPlant(t, mkPath("A--B", "A", "B", 1000, 1000, 0))
	r := NewRouter(m, nil)
	route, ok := r.FindRoute(fastVehicle, "A", "B")
	require.True(t, ok)
	assert.Equal(t, []string{"A--B"}, route.PathNames())
	assert.Equal(t, 1.0, route.Costs)

	_, ok = r.FindRoute(fastVehicle, "B", "A")
	assert.False(t, ok, "reverse travel is not allowed")
}

func TestRouterReverseTravel(t *testing.T) {
	m := buildPlant(t, mkPath("A--B", "A", "B", 1000, 1000, 500))
	route, ok := NewRouter(m, nil).FindRoute(fastVehicle, "B", "A")
	require.True(t, ok)
	require.Len(t, route.Steps, 1)
	assert.True(t, route.Steps[0].Reverse)
	assert.Equal(t, "B", route.Steps[0].Source)
	assert.Equal(t, 2.0, route.Costs)
}

func TestRouterSkipsLockedAndRestrictedPaths(t *testing.T) {
	locked := mkPath("A--C", "A", "C", 100, 1000, 0)
	locked.Locked = true
	typed := mkPath("A--B", "A", "B", 100, 1000, 0)
	typed.Properties = map[string]string{PropAllowedVehicleTypes: "forklift, tugger"}
	m := buildPlant(t, locked, typed, mkPath("B--C", "B", "C", 100, 1000, 0))
	r := NewRouter(m, nil)

	_, ok := r.FindRoute(fastVehicle, "A", "C")
	assert.False(t, ok)

	tugger := fastVehicle
	tugger.Type = "Tugger"
	route, ok := r.FindRoute(tugger, "A", "C")
	require.True(t, ok)
	assert.Equal(t, []string{"A--B", "B--C"}, route.PathNames())
}

func TestRouterShortestAndDeterministic(t *testing.T) {
	// Two equal-cost branches A-B-D and A-C-D plus an expensive direct path.
	m := buildPlant(t,
		mkPath("A--B", "A", "B", 1000, 1000, 0),
		mkPath("A--C", "A", "C", 1000, 1000, 0),
		mkPath("B--D", "B", "D", 1000, 1000, 0),
		mkPath("C--D", "C", "D", 1000, 1000, 0),
		mkPath("A--D", "A", "D", 5000, 1000, 0),
	)
	r := NewRouter(m, nil)
	first, ok := r.FindRoute(fastVehicle, "A", "D")
	require.True(t, ok)
	assert.Equal(t, 2.0, first.Costs)
	assert.True(t, first.IsContiguous())
	for i := 0; i < 20; i++ {
		again, ok := NewRouter(m, nil).FindRoute(fastVehicle, "A", "D")
		require.True(t, ok)
		assert.Equal(t, first.PathNames(), again.PathNames())
	}
}

func TestRouterParallelPathsPreferCheapestThenName(t *testing.T) {
	m := buildPlant(t,
		mkPath("P2", "A", "B", 1000, 1000, 0),
		mkPath("P1", "A", "B", 1000, 1000, 0),
		mkPath("P0", "A", "B", 3000, 1000, 0),
	)
	route, ok := NewRouter(m, nil).FindRoute(fastVehicle, "A", "B")
	require.True(t, ok)
	assert.Equal(t, []string{"P1"}, route.PathNames())
}

func TestRouterFindRoutesAndCosts(t *testing.T) {
	m := buildPlant(t,
		mkPath("A--B", "A", "B", 2000, 1000, 0),
		mkPath("A--C", "A", "C", 1000, 1000, 0),
		mkPath("X--Y", "X", "Y", 1000, 1000, 0),
	)
	r := NewRouter(m, nil)
	routes := r.FindRoutes(fastVehicle, "A", []string{"B", "Y", "C", "A"})
	require.Len(t, routes, 3)
	dst := func(rt model.Route) string { d, _ := rt.FinalDestination(); return d }
	assert.Equal(t, []string{"A", "C", "B"}, []string{dst(routes[0]), dst(routes[1]), dst(routes[2])})

	costs := r.Costs(fastVehicle, "A", []string{"B", "Y"})
	assert.Equal(t, 2.0, costs["B"])
	assert.True(t, IsInfinite(costs["Y"]))

	_, ok := r.FindRoute(fastVehicle, "nowhere", "B")
	assert.False(t, ok)
}

func TestRouterEvaluatorHooksBracketComputation(t *testing.T) {
	m := buildPlant(t, mkPath("A--B", "A", "B", 1000, 1000, 0))
	ev := &countingEvaluator{weight: 1}
	_, ok := NewRouter(m, ev).FindRoute(fastVehicle, "A", "B")
	require.True(t, ok)
	assert.Equal(t, 1, ev.started)
	assert.Equal(t, 1, ev.ended)
}

func TestRoutingMetricsRegistration(t *testing.T) {
	ResetMetrics(nil)
	t.Cleanup(func() { ResetMetrics(nil) })
	reg := prometheus.NewRegistry()
	MustRegisterMetrics(reg)
	m := buildPlant(t, mkPath("A--B", "A", "B", 1000, 1000, 0))
	NewRouter(m, nil).FindRoute(fastVehicle, "A", "B")
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "route_computations_total" {
			found = true
		}
	}
	if !found {
		t.Fatal("route_computations_total not registered")
	}
}
