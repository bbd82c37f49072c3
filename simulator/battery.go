package simulator

import "sync"

// Battery tracks a vehicle's energy level in percent.
type Battery struct {
	mu    sync.Mutex
	level int
}

func NewBattery(level int) *Battery {
	return &Battery{level: clamp(level)}
}

// Level returns the current energy level.
func (b *Battery) Level() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.level
}

// Drain removes pct percent and returns the new level.
func (b *Battery) Drain(pct int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.level = clamp(b.level - pct)
	return b.level
}

// Charge adds pct percent and returns the new level.
func (b *Battery) Charge(pct int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.level = clamp(b.level + pct)
	return b.level
}

func clamp(l int) int { return min(max(l, 0), 100) }
