package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.SetDefaults()
	require.NoError(t, c.Validate())
	assert.Equal(t, DefaultPhases, c.Phases)
	assert.Equal(t, []string{OrderByDeadline, OrderByAge, OrderByName}, c.OrderPriorities)
	assert.Positive(t, c.CandidateParallelism)
	assert.Equal(t, DefaultParkingPriorityProperty, c.ParkingPriorityProperty)
	assert.Equal(t, DefaultRechargePriorityProperty, c.RechargePriorityProperty)
	assert.False(t, c.ParkIdleVehicles)
	assert.Zero(t, c.RedispatchInterval())
}

func TestConfigValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown phase":     func(c *Config) { c.Phases = []string{"teleport"} },
		"duplicate phase":   func(c *Config) { c.Phases = []string{PhaseActivateOrders, PhaseActivateOrders} },
		"order priority":    func(c *Config) { c.OrderPriorities = []string{"BY_SIZE"} },
		"candidate prio":    func(c *Config) { c.VehicleCandidatePriorities = []string{"BY_COLOR"} },
		"negative interval": func(c *Config) { c.IdleVehicleRedispatchingIntervalMs = -1 },
		"negative min":      func(c *Config) { c.MinDispatchIntervalMs = -5 },
		"negative workers":  func(c *Config) { c.CandidateParallelism = -2 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			var c Config
			c.SetDefaults()
			mutate(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalidArgument)
		})
	}
}

func TestBuildPhasesOrder(t *testing.T) {
	c := Config{Phases: []string{PhaseAssignFreeOrders, PhaseActivateOrders}}
	c.SetDefaults()
	phases, err := BuildPhases(PhaseDeps{
		Config:             c,
		Parking:            NewNearestParkingPositionSupplier(),
		PrioritizedParking: NewPrioritizedParkingPositionSupplier(PropertyPriority(c.ParkingPriorityProperty)),
		Recharge:           NewRechargePositionSupplier(nil),
	})
	require.NoError(t, err)
	require.Len(t, phases, 2)
	assert.Equal(t, PhaseAssignFreeOrders, phases[0].Name())
	assert.Equal(t, PhaseActivateOrders, phases[1].Name())
}
