package kernel

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/agvdispatch/core/dispatch"
	"github.com/kilianp07/agvdispatch/core/model"
)

func TestLoadScenarioYAML(t *testing.T) {
	s, err := LoadScenario("testdata/basic.yaml")
	require.NoError(t, err)
	require.Len(t, s.Points, 4)
	require.Len(t, s.Vehicles, 2)

	k, err := s.Build(context.Background())
	require.NoError(t, err)

	m, err := k.FetchPlantModel(context.Background())
	require.NoError(t, err)
	p1, ok := m.Point("P1")
	require.True(t, ok)
	assert.True(t, p1.IsParkingPosition())
	assert.Equal(t, "V2", p1.OccupyingVehicle)
	x, _ := m.Point("X")
	assert.Equal(t, "forklift", x.OccupyingVehicle)

	v1, err := k.FetchVehicle(context.Background(), "V1")
	require.NoError(t, err)
	assert.Equal(t, 80, v1.EnergyLevel)
	assert.Equal(t, 10, v1.EnergyLevelCritical)
	assert.Equal(t, 40, v1.EnergyLevelGood)
	assert.Equal(t, model.IntegrationToBeUtilized, v1.IntegrationLevel)
	assert.Equal(t, model.VehicleStateIdle, v1.State)

	v2, _ := k.FetchVehicle(context.Background(), "V2")
	assert.Equal(t, 100, v2.EnergyLevel)
	assert.True(t, v2.AcceptsOrderType(model.OrderTypePark))
	assert.False(t, v2.AcceptsOrderType(model.OrderTypeCharge))

	orders, err := k.FetchTransportOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "Station", orders[0].DriveOrders[0].Destination.Target)
	assert.Equal(t, model.OrderStateRaw, orders[0].State)
}

func TestDecodeScenarioJSON(t *testing.T) {
	in := `{"points":[{"name":"A"},{"name":"B"}],
	"paths":[{"name":"A--B","source":"A","destination":"B","length":500,"max_velocity":1000}],
	"vehicles":[{"name":"V1","position":"A"}]}`
	s, err := DecodeScenario(strings.NewReader(in), "json")
	require.NoError(t, err)
	m, err := s.PlantModel()
	require.NoError(t, err)
	_, ok := m.Path("A--B")
	assert.True(t, ok)
	assert.Equal(t, "A", s.FleetVehicles()[0].CurrentPosition)
}

func TestDecodeScenarioErrors(t *testing.T) {
	_, err := DecodeScenario(strings.NewReader("points: []"), "toml")
	assert.ErrorIs(t, err, dispatch.ErrInvalidArgument)

	_, err = DecodeScenario(strings.NewReader("pointz: []"), "yaml")
	assert.ErrorIs(t, err, dispatch.ErrInvalidArgument, "unknown fields are rejected")

	_, err = DecodeScenario(strings.NewReader(`{"points": 3}`), "json")
	assert.ErrorIs(t, err, dispatch.ErrInvalidArgument)

	s, err := DecodeScenario(strings.NewReader(""), "yaml")
	require.NoError(t, err)
	assert.Empty(t, s.Points)

	_, err = LoadScenario("testdata/missing.yaml")
	assert.Error(t, err)
}

func TestBuildRejectsUnknownVehiclePosition(t *testing.T) {
	s := Scenario{
		Points:   []PointSpec{{Name: "A"}},
		Vehicles: []VehicleSpec{{Name: "V1", Position: "B"}},
	}
	_, err := s.Build(context.Background())
	assert.ErrorIs(t, err, dispatch.ErrUnknownObject)
}
