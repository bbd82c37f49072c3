package model

import (
	"fmt"
	"sort"
	"strings"
)

// Triple is a plant coordinate in millimetres.
type Triple struct {
	X int64 `json:"x"`
	Y int64 `json:"y"`
	Z int64 `json:"z"`
}

// PointType distinguishes plain halt points from parking positions.
type PointType string

const (
	PointTypeHalt PointType = "HALT_POSITION"
	PointTypePark PointType = "PARK_POSITION"
)

// Point is a node of the plant graph.
type Point struct {
	Name       string            `json:"name"`
	Position   Triple            `json:"position"`
	Type       PointType         `json:"type"`
	Properties map[string]string `json:"properties,omitempty"`
	// OccupyingVehicle is empty when no vehicle stands on the point.
	OccupyingVehicle string `json:"occupying_vehicle,omitempty"`
}

// IsOccupied reports whether a vehicle currently occupies the point.
func (p Point) IsOccupied() bool { return p.OccupyingVehicle != "" }

// IsParkingPosition reports whether vehicles may park on the point.
func (p Point) IsParkingPosition() bool { return p.Type == PointTypePark }

// Property returns the value of the named property.
func (p Point) Property(key string) (string, bool) {
	v, ok := p.Properties[key]
	return v, ok
}

// Path is a directed connection between two points. Vehicles may travel
// it in reverse when MaxReverseVelocity is positive.
type Path struct {
	Name               string            `json:"name"`
	Source             string            `json:"source"`
	Destination        string            `json:"destination"`
	Length             int64             `json:"length"`               // mm
	MaxVelocity        int               `json:"max_velocity"`         // mm/s
	MaxReverseVelocity int               `json:"max_reverse_velocity"` // mm/s
	Locked             bool              `json:"locked"`
	Properties         map[string]string `json:"properties,omitempty"`
}

// NavigableForward reports whether the path may be travelled source to destination.
func (p Path) NavigableForward() bool { return !p.Locked && p.MaxVelocity > 0 }

// NavigableReverse reports whether the path may be travelled destination to source.
func (p Path) NavigableReverse() bool { return !p.Locked && p.MaxReverseVelocity > 0 }

// Property returns the value of the named property.
func (p Path) Property(key string) (string, bool) {
	v, ok := p.Properties[key]
	return v, ok
}

// Validate checks the structural fields of the path.
func (p Path) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("path name is required")
	}
	if p.Source == "" || p.Destination == "" {
		return fmt.Errorf("path %s: source and destination are required", p.Name)
	}
	if p.Length < 0 {
		return fmt.Errorf("path %s: negative length %d", p.Name, p.Length)
	}
	if p.MaxVelocity < 0 || p.MaxReverseVelocity < 0 {
		return fmt.Errorf("path %s: negative velocity", p.Name)
	}
	return nil
}

// Location is a station linked to one or more points, e.g. a charging station.
type Location struct {
	Name       string            `json:"name"`
	Type       string            `json:"type"`
	Links      []string          `json:"links"`
	Operations []string          `json:"operations,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// AllowsOperation reports whether op can be performed at the location.
// Operation names are compared case-insensitively.
func (l Location) AllowsOperation(op string) bool {
	for _, o := range l.Operations {
		if strings.EqualFold(o, op) {
			return true
		}
	}
	return false
}

// LinkedTo reports whether the location is linked to the given point.
func (l Location) LinkedTo(point string) bool {
	for _, p := range l.Links {
		if p == point {
			return true
		}
	}
	return false
}

// SortedLinks returns the linked point names in ascending order.
func (l Location) SortedLinks() []string {
	out := append([]string(nil), l.Links...)
	sort.Strings(out)
	return out
}

// Property returns the value of the named property.
func (l Location) Property(key string) (string, bool) {
	v, ok := l.Properties[key]
	return v, ok
}
