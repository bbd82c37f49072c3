package routing

import (
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/iterator"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/kilianp07/agvdispatch/core/model"
	"github.com/kilianp07/agvdispatch/core/plant"
)

// PropAllowedVehicleTypes restricts a path to a comma separated list of
// vehicle types. Paths without the property accept every vehicle.
const PropAllowedVehicleTypes = "tcs:allowedVehicleTypes"

// Router computes routes on one plant snapshot. It never mutates the model
// and may be used concurrently for different vehicles.
type Router struct {
	plant     *plant.Model
	evaluator EdgeEvaluator
	ids       map[string]int64
}

// NewRouter returns a router over m using ev for edge weights. A nil
// evaluator selects travel time.
func NewRouter(m *plant.Model, ev EdgeEvaluator) *Router {
	if ev == nil {
		ev = TravelTimeEvaluator{}
	}
	names := m.PointNames()
	ids := make(map[string]int64, len(names))
	for i, n := range names {
		ids[n] = int64(i)
	}
	return &Router{plant: m, evaluator: ev, ids: ids}
}

// Plant returns the snapshot the router works on.
func (r *Router) Plant() *plant.Model { return r.plant }

// FindRoute returns the cheapest route from source to dest for v.
func (r *Router) FindRoute(v model.Vehicle, source, dest string) (model.Route, bool) {
	t, ok := r.tree(v, source)
	if !ok {
		routeComputations.WithLabelValues("none").Inc()
		return model.Route{}, false
	}
	route, ok := t.routeTo(dest)
	if ok {
		routeComputations.WithLabelValues("found").Inc()
	} else {
		routeComputations.WithLabelValues("none").Inc()
	}
	return route, ok
}

// FindRoutes returns one route per reachable destination, cheapest first.
// Equal costs are ordered by destination name.
func (r *Router) FindRoutes(v model.Vehicle, source string, dests []string) []model.Route {
	t, ok := r.tree(v, source)
	if !ok {
		routeComputations.WithLabelValues("none").Inc()
		return nil
	}
	var out []model.Route
	seen := map[string]bool{}
	for _, d := range dests {
		if seen[d] {
			continue
		}
		seen[d] = true
		if route, ok := t.routeTo(d); ok {
			out = append(out, route)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Costs != out[j].Costs {
			return out[i].Costs < out[j].Costs
		}
		di, _ := out[i].FinalDestination()
		dj, _ := out[j].FinalDestination()
		return di < dj
	})
	if len(out) > 0 {
		routeComputations.WithLabelValues("found").Inc()
	} else {
		routeComputations.WithLabelValues("none").Inc()
	}
	return out
}

// Costs returns the route cost from source to every destination.
// Unreachable destinations get InfiniteCost.
func (r *Router) Costs(v model.Vehicle, source string, dests []string) map[string]float64 {
	out := make(map[string]float64, len(dests))
	t, ok := r.tree(v, source)
	for _, d := range dests {
		out[d] = InfiniteCost
		if !ok {
			continue
		}
		if route, found := t.routeTo(d); found {
			out[d] = route.Costs
		}
	}
	return out
}

// weightedGraph is the directed view of the plant for one vehicle. Only
// edges with finite weight are present.
type weightedGraph struct {
	// adj[from][to] holds the cheapest edge between the two points.
	adj map[int64]map[int64]weightedEdge
	// order[from] lists successors in ascending point name order.
	order map[int64][]graph.Node
}

type weightedEdge struct {
	edge   Edge
	weight float64
}

func (g *weightedGraph) From(id int64) graph.Nodes {
	succ := g.order[id]
	if len(succ) == 0 {
		return graph.Empty
	}
	return iterator.NewOrderedNodes(succ)
}

func (g *weightedGraph) Edge(uid, vid int64) graph.Edge {
	if _, ok := g.adj[uid][vid]; !ok {
		return nil
	}
	return simple.Edge{F: simple.Node(uid), T: simple.Node(vid)}
}

func (g *weightedGraph) Weight(xid, yid int64) (float64, bool) {
	if xid == yid {
		return 0, true
	}
	e, ok := g.adj[xid][yid]
	if !ok {
		return InfiniteCost, false
	}
	return e.weight, true
}

// buildGraph evaluates every traversable edge for v. Between two points the
// cheapest edge wins; equal weights prefer the lower path name, then
// forward travel.
func (r *Router) buildGraph(v model.Vehicle) *weightedGraph {
	g := &weightedGraph{
		adj:   make(map[int64]map[int64]weightedEdge),
		order: make(map[int64][]graph.Node),
	}
	r.evaluator.OnGraphComputationStart(v)
	defer r.evaluator.OnGraphComputationEnd(v)
	for _, p := range r.plant.Paths() {
		if p.Source == p.Destination || !vehicleTypeAllowed(p, v) {
			continue
		}
		if p.NavigableForward() {
			r.addEdge(g, Edge{Path: p}, v)
		}
		if p.NavigableReverse() {
			r.addEdge(g, Edge{Path: p, Reverse: true}, v)
		}
	}
	for from, succ := range g.adj {
		ns := make([]graph.Node, 0, len(succ))
		for to := range succ {
			ns = append(ns, simple.Node(to))
		}
		// IDs follow point name order.
		sort.Slice(ns, func(i, j int) bool { return ns[i].ID() < ns[j].ID() })
		g.order[from] = ns
	}
	return g
}

func (r *Router) addEdge(g *weightedGraph, e Edge, v model.Vehicle) {
	w := r.evaluator.ComputeWeight(e, v)
	if IsInfinite(w) || math.IsNaN(w) || w < 0 {
		return
	}
	from, to := r.ids[e.Source()], r.ids[e.Destination()]
	succ := g.adj[from]
	if succ == nil {
		succ = make(map[int64]weightedEdge)
		g.adj[from] = succ
	}
	cur, ok := succ[to]
	if ok && !preferEdge(weightedEdge{edge: e, weight: w}, cur) {
		return
	}
	succ[to] = weightedEdge{edge: e, weight: w}
}

func preferEdge(a, b weightedEdge) bool {
	if a.weight != b.weight {
		return a.weight < b.weight
	}
	if a.edge.Path.Name != b.edge.Path.Name {
		return a.edge.Path.Name < b.edge.Path.Name
	}
	return !a.edge.Reverse && b.edge.Reverse
}

func vehicleTypeAllowed(p model.Path, v model.Vehicle) bool {
	raw, ok := p.Property(PropAllowedVehicleTypes)
	if !ok || strings.TrimSpace(raw) == "" {
		return true
	}
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t == model.OrderTypeAny || strings.EqualFold(t, v.Type) {
			return true
		}
	}
	return false
}

// shortestTree wraps a single-source Dijkstra result.
type shortestTree struct {
	r      *Router
	g      *weightedGraph
	source string
	paths  path.Shortest
}

func (r *Router) tree(v model.Vehicle, source string) (*shortestTree, bool) {
	id, ok := r.ids[source]
	if !ok {
		return nil, false
	}
	g := r.buildGraph(v)
	return &shortestTree{
		r:      r,
		g:      g,
		source: source,
		paths:  path.DijkstraFrom(simple.Node(id), g),
	}, true
}

func (t *shortestTree) routeTo(dest string) (model.Route, bool) {
	if dest == t.source {
		return model.Route{Start: t.source}, true
	}
	id, ok := t.r.ids[dest]
	if !ok {
		return model.Route{}, false
	}
	nodes, cost := t.paths.To(id)
	if len(nodes) < 2 || IsInfinite(cost) {
		return model.Route{}, false
	}
	names := t.r.plant.PointNames()
	route := model.Route{Start: t.source, Steps: make([]model.Step, 0, len(nodes)-1)}
	for i := 1; i < len(nodes); i++ {
		e := t.g.adj[nodes[i-1].ID()][nodes[i].ID()]
		route.Steps = append(route.Steps, model.Step{
			Path:        e.edge.Path.Name,
			Source:      names[nodes[i-1].ID()],
			Destination: names[nodes[i].ID()],
			Reverse:     e.edge.Reverse,
			Index:       i - 1,
		})
		route.Costs += e.weight
	}
	return route, true
}
