// Package plant holds the per-cycle snapshot of the plant graph: points,
// paths and locations plus point occupancy.
package plant

import (
	"errors"
	"fmt"
	"sort"

	"github.com/kilianp07/agvdispatch/core/model"
)

// ErrInvalidModel is returned when a plant snapshot is structurally inconsistent.
var ErrInvalidModel = errors.New("invalid plant model")

// Model is an immutable snapshot of the plant graph. All slices returned by
// its accessors are sorted by name and must not be modified.
type Model struct {
	points    map[string]model.Point
	paths     map[string]model.Path
	locations map[string]model.Location

	pointNames    []string
	pathNames     []string
	locationNames []string

	outgoing map[string][]model.Path
	incoming map[string][]model.Path
}

// NewModel validates the elements and builds the adjacency index.
func NewModel(points []model.Point, paths []model.Path, locations []model.Location) (*Model, error) {
	m := &Model{
		points:    make(map[string]model.Point, len(points)),
		paths:     make(map[string]model.Path, len(paths)),
		locations: make(map[string]model.Location, len(locations)),
		outgoing:  make(map[string][]model.Path),
		incoming:  make(map[string][]model.Path),
	}
	occupants := map[string]string{}
	for _, p := range points {
		if p.Name == "" {
			return nil, fmt.Errorf("%w: point without name", ErrInvalidModel)
		}
		if _, dup := m.points[p.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate point %s", ErrInvalidModel, p.Name)
		}
		if p.OccupyingVehicle != "" {
			if other, ok := occupants[p.OccupyingVehicle]; ok {
				return nil, fmt.Errorf("%w: vehicle %s occupies %s and %s", ErrInvalidModel, p.OccupyingVehicle, other, p.Name)
			}
			occupants[p.OccupyingVehicle] = p.Name
		}
		m.points[p.Name] = p
		m.pointNames = append(m.pointNames, p.Name)
	}
	for _, p := range paths {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
		}
		if _, dup := m.paths[p.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate path %s", ErrInvalidModel, p.Name)
		}
		if _, ok := m.points[p.Source]; !ok {
			return nil, fmt.Errorf("%w: path %s references unknown point %s", ErrInvalidModel, p.Name, p.Source)
		}
		if _, ok := m.points[p.Destination]; !ok {
			return nil, fmt.Errorf("%w: path %s references unknown point %s", ErrInvalidModel, p.Name, p.Destination)
		}
		m.paths[p.Name] = p
		m.pathNames = append(m.pathNames, p.Name)
		m.outgoing[p.Source] = append(m.outgoing[p.Source], p)
		m.incoming[p.Destination] = append(m.incoming[p.Destination], p)
	}
	for _, l := range locations {
		if l.Name == "" {
			return nil, fmt.Errorf("%w: location without name", ErrInvalidModel)
		}
		if _, dup := m.locations[l.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate location %s", ErrInvalidModel, l.Name)
		}
		for _, link := range l.Links {
			if _, ok := m.points[link]; !ok {
				return nil, fmt.Errorf("%w: location %s linked to unknown point %s", ErrInvalidModel, l.Name, link)
			}
		}
		m.locations[l.Name] = l
		m.locationNames = append(m.locationNames, l.Name)
	}
	sort.Strings(m.pointNames)
	sort.Strings(m.pathNames)
	sort.Strings(m.locationNames)
	for _, idx := range []map[string][]model.Path{m.outgoing, m.incoming} {
		for k := range idx {
			ps := idx[k]
			sort.Slice(ps, func(i, j int) bool { return ps[i].Name < ps[j].Name })
		}
	}
	return m, nil
}

// Point returns the named point.
func (m *Model) Point(name string) (model.Point, bool) {
	p, ok := m.points[name]
	return p, ok
}

// Path returns the named path.
func (m *Model) Path(name string) (model.Path, bool) {
	p, ok := m.paths[name]
	return p, ok
}

// Location returns the named location.
func (m *Model) Location(name string) (model.Location, bool) {
	l, ok := m.locations[name]
	return l, ok
}

// Points returns all points sorted by name.
func (m *Model) Points() []model.Point {
	out := make([]model.Point, len(m.pointNames))
	for i, n := range m.pointNames {
		out[i] = m.points[n]
	}
	return out
}

// Paths returns all paths sorted by name.
func (m *Model) Paths() []model.Path {
	out := make([]model.Path, len(m.pathNames))
	for i, n := range m.pathNames {
		out[i] = m.paths[n]
	}
	return out
}

// Locations returns all locations sorted by name.
func (m *Model) Locations() []model.Location {
	out := make([]model.Location, len(m.locationNames))
	for i, n := range m.locationNames {
		out[i] = m.locations[n]
	}
	return out
}

// PointNames returns the sorted point names.
func (m *Model) PointNames() []string { return m.pointNames }

// OutgoingPaths returns the paths starting at point, sorted by name.
func (m *Model) OutgoingPaths(point string) []model.Path { return m.outgoing[point] }

// IncomingPaths returns the paths ending at point, sorted by name.
func (m *Model) IncomingPaths(point string) []model.Path { return m.incoming[point] }

// OccupiedBy returns the vehicle standing on point, if any.
func (m *Model) OccupiedBy(point string) (string, bool) {
	p, ok := m.points[point]
	if !ok || p.OccupyingVehicle == "" {
		return "", false
	}
	return p.OccupyingVehicle, true
}

// WithOccupancy returns a copy of the model where point occupancy is
// replaced by occ (point name to vehicle name).
func (m *Model) WithOccupancy(occ map[string]string) (*Model, error) {
	points := m.Points()
	for i := range points {
		points[i].OccupyingVehicle = occ[points[i].Name]
	}
	for p := range occ {
		if _, ok := m.points[p]; !ok {
			return nil, fmt.Errorf("%w: occupancy for unknown point %s", ErrInvalidModel, p)
		}
	}
	return NewModel(points, m.Paths(), m.Locations())
}

// ResolveDestination maps a destination target to candidate points: a point
// resolves to itself and a location to its linked points in name order.
func (m *Model) ResolveDestination(target string) ([]string, error) {
	if _, ok := m.points[target]; ok {
		return []string{target}, nil
	}
	if l, ok := m.locations[target]; ok {
		links := l.SortedLinks()
		if len(links) == 0 {
			return nil, fmt.Errorf("location %s has no linked points", target)
		}
		return links, nil
	}
	return nil, fmt.Errorf("unknown destination %s", target)
}
