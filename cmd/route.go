package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/agvdispatch/core/factory"
	"github.com/kilianp07/agvdispatch/core/kernel"
	"github.com/kilianp07/agvdispatch/core/model"
	"github.com/kilianp07/agvdispatch/core/routing"
)

type routeOptions struct {
	scenario   string
	vehicle    string
	from       string
	to         string
	evaluators []string
}

func newRouteCmd() *cobra.Command {
	var o routeOptions
	cmd := &cobra.Command{
		Use:   "route",
		Short: "Compute one route on a scenario's plant",
		Example: `  agvdispatch route --scenario plant.yaml --vehicle V1 --to Station
  agvdispatch route --scenario plant.yaml --from A --to C --evaluator DISTANCE --evaluator HOPS`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRoute(cmd, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.scenario, "scenario", "", "scenario file (YAML or JSON)")
	f.StringVar(&o.vehicle, "vehicle", "", "vehicle to route for; its position is the default source")
	f.StringVar(&o.from, "from", "", "source point")
	f.StringVar(&o.to, "to", "", "destination point or location")
	f.StringArrayVar(&o.evaluators, "evaluator", nil, "edge evaluator, repeatable (default TRAVELTIME)")
	_ = cmd.MarkFlagRequired("scenario")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func runRoute(cmd *cobra.Command, o routeOptions) error {
	s, err := kernel.LoadScenario(o.scenario)
	if err != nil {
		return err
	}
	k, err := s.Build(cmd.Context())
	if err != nil {
		return err
	}
	m, err := k.FetchPlantModel(cmd.Context())
	if err != nil {
		return err
	}
	cfgs := make([]factory.ModuleConfig, 0, len(o.evaluators))
	for _, name := range o.evaluators {
		cfgs = append(cfgs, factory.ModuleConfig{Type: name})
	}
	ev, err := routing.NewEvaluator(cfgs)
	if err != nil {
		return err
	}

	v := model.Vehicle{Name: "route", MaxVelocity: 1000, MaxReverseVelocity: 1000}
	if o.vehicle != "" {
		if v, err = k.FetchVehicle(cmd.Context(), o.vehicle); err != nil {
			return err
		}
	}
	source := o.from
	if source == "" {
		source = v.CurrentPosition
	}
	if source == "" {
		return fmt.Errorf("no source point: set --from or --vehicle")
	}
	dests, err := m.ResolveDestination(o.to)
	if err != nil {
		return err
	}
	routes := routing.NewRouter(m, ev).FindRoutes(v, source, dests)
	if len(routes) == 0 {
		return fmt.Errorf("no route from %s to %s", source, o.to)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(routes[0])
}
