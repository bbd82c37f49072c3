package model

// Step is one traversal of a path within a route.
type Step struct {
	Path        string `json:"path"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Reverse     bool   `json:"reverse"`
	Index       int    `json:"index"`
}

// Route is a contiguous sequence of steps with its total cost. A route
// with no steps means the vehicle already stands on the destination; its
// Start then names that point.
type Route struct {
	Start string  `json:"start"`
	Steps []Step  `json:"steps"`
	Costs float64 `json:"costs"`
}

// FinalDestination returns the point the route ends on.
func (r Route) FinalDestination() (string, bool) {
	if len(r.Steps) == 0 {
		return r.Start, r.Start != ""
	}
	return r.Steps[len(r.Steps)-1].Destination, true
}

// PathNames returns the names of the traversed paths in order.
func (r Route) PathNames() []string {
	out := make([]string, len(r.Steps))
	for i, s := range r.Steps {
		out[i] = s.Path
	}
	return out
}

// IsContiguous reports whether every step starts where the previous one ended.
func (r Route) IsContiguous() bool {
	prev := r.Start
	for _, s := range r.Steps {
		if prev != "" && s.Source != prev {
			return false
		}
		prev = s.Destination
	}
	return true
}
