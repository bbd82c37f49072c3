package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLifecycleTransitions(t *testing.T) {
	var l Lifecycle
	inits, terms := 0, 0
	assert.Equal(t, Uninitialized, l.State())

	l.Terminate(func() { terms++ })
	assert.Zero(t, terms, "terminate before initialize is ignored")

	l.Initialize(func() { inits++ })
	l.Initialize(func() { inits++ })
	assert.Equal(t, 1, inits)
	assert.True(t, l.IsInitialized())

	l.Terminate(func() { terms++ })
	l.Terminate(func() { terms++ })
	assert.Equal(t, 1, terms)
	assert.Equal(t, "terminated", l.State().String())

	l.Initialize(func() { inits++ })
	assert.Equal(t, 2, inits)
	assert.True(t, l.IsInitialized())
}

func TestPhasesInitializeSuppliers(t *testing.T) {
	parking := NewNearestParkingPositionSupplier()
	prio := NewPrioritizedParkingPositionSupplier(PropertyPriority(DefaultParkingPriorityProperty))
	p := NewParkIdleVehiclesPhase(true, prio, parking)

	p.Initialize()
	assert.True(t, p.IsInitialized())
	assert.True(t, parking.IsInitialized())
	assert.True(t, prio.IsInitialized())

	p.Terminate()
	assert.False(t, p.IsInitialized())
	assert.Equal(t, Terminated, parking.State())
	assert.Equal(t, Terminated, prio.State())
}
