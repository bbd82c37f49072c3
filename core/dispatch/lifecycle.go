package dispatch

import "sync"

// LifecycleState is the state of a Lifecycle.
type LifecycleState int

const (
	Uninitialized LifecycleState = iota
	Ready
	Terminated
)

func (s LifecycleState) String() string {
	switch s {
	case Ready:
		return "ready"
	case Terminated:
		return "terminated"
	default:
		return "uninitialized"
	}
}

// Lifecycle is a small state machine shared by phases and suppliers.
// Initialize and Terminate run their callback at most once per transition;
// repeated calls are no-ops. A terminated component may be initialized again.
type Lifecycle struct {
	mu    sync.Mutex
	state LifecycleState
}

// Initialize moves to Ready, running fn first. It does nothing when already Ready.
func (l *Lifecycle) Initialize(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == Ready {
		return
	}
	if fn != nil {
		fn()
	}
	l.state = Ready
}

// Terminate moves from Ready to Terminated, running fn first. Any other
// state is left untouched.
func (l *Lifecycle) Terminate(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Ready {
		return
	}
	if fn != nil {
		fn()
	}
	l.state = Terminated
}

// IsInitialized reports whether the component is Ready.
func (l *Lifecycle) IsInitialized() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == Ready
}

// State returns the current state.
func (l *Lifecycle) State() LifecycleState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}
