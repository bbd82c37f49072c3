package dispatch

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kilianp07/agvdispatch/core/model"
	"github.com/kilianp07/agvdispatch/core/plant"
	"github.com/kilianp07/agvdispatch/core/routing"
)

// edge is a bidirectional path of the given length at 1 m/s.
func edge(a, b string, length int64) model.Path {
	return model.Path{Name: a + "--" + b, Source: a, Destination: b, Length: length, MaxVelocity: 1000, MaxReverseVelocity: 1000}
}

func buildModel(t *testing.T, points []model.Point, paths []model.Path, locations ...model.Location) *plant.Model {
	t.Helper()
	m, err := plant.NewModel(points, paths, locations)
	require.NoError(t, err)
	return m
}

func parkPoint(name string, prio string) model.Point {
	p := model.Point{Name: name, Type: model.PointTypePark}
	if prio != "" {
		p.Properties = map[string]string{DefaultParkingPriorityProperty: prio}
	}
	return p
}

func utilized(name, pos string) model.Vehicle {
	return model.Vehicle{
		Name:                             name,
		CurrentPosition:                  pos,
		EnergyLevel:                      100,
		EnergyLevelCritical:              10,
		EnergyLevelGood:                  50,
		EnergyLevelSufficientlyRecharged: 60,
		EnergyLevelFullyRecharged:        95,
		MaxVelocity:                      1000,
		MaxReverseVelocity:               1000,
		State:                            model.VehicleStateIdle,
		ProcState:                        model.ProcStateIdle,
		IntegrationLevel:                 model.IntegrationToBeUtilized,
	}
}

// countingRouter records how often route costs were requested.
type countingRouter struct {
	Router
	costCalls atomic.Int32
}

func (c *countingRouter) Costs(v model.Vehicle, source string, dests []string) map[string]float64 {
	c.costCalls.Add(1)
	return c.Router.Costs(v, source, dests)
}

func snapshotOf(m *plant.Model, vehicles []model.Vehicle, orders ...model.TransportOrder) *Snapshot {
	return NewSnapshot(m, routing.NewRouter(m, nil), vehicles, orders)
}
