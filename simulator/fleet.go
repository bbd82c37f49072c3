package simulator

import (
	"context"
	"sync"

	"github.com/kilianp07/agvdispatch/core/kernel"
	"github.com/kilianp07/agvdispatch/infra/logger"
)

// FleetFromScenario creates one simulated vehicle per scenario vehicle,
// starting at its position with its energy level. names restricts the
// fleet when not empty.
func FleetFromScenario(s kernel.Scenario, cfg Config, strat AckStrategy, names ...string) []*SimulatedVehicle {
	want := map[string]bool{}
	for _, n := range names {
		want[n] = true
	}
	var out []*SimulatedVehicle
	for _, v := range s.FleetVehicles() {
		if len(want) > 0 && !want[v.Name] {
			continue
		}
		out = append(out, NewSimulatedVehicle(v.Name, v.CurrentPosition, v.EnergyLevel, cfg, strat))
	}
	return out
}

// RunFleet runs every vehicle until ctx is done.
func RunFleet(ctx context.Context, vehicles []*SimulatedVehicle) {
	log := logger.New("simulator")
	var wg sync.WaitGroup
	for _, v := range vehicles {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := v.Run(ctx); err != nil {
				log.Errorf("%s: %v", v.Name, err)
			}
		}()
	}
	wg.Wait()
}
