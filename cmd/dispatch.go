package cmd

import (
	"context"
	"fmt"
	"sync"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kilianp07/agvdispatch/core/dispatch"
	"github.com/kilianp07/agvdispatch/core/dispatch/logging"
	"github.com/kilianp07/agvdispatch/core/kernel"
	"github.com/kilianp07/agvdispatch/core/plant"
	"github.com/kilianp07/agvdispatch/core/routing"
	"github.com/kilianp07/agvdispatch/infra/logger"
	"github.com/kilianp07/agvdispatch/pkg/export"
)

type dispatchOptions struct {
	scenario string
	cycles   int
	park     bool
	recharge bool
	format   string
}

func newDispatchCmd() *cobra.Command {
	var o dispatchOptions
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Run dispatch cycles on a scenario and print the decisions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDispatch(cmd, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.scenario, "scenario", "", "scenario file (YAML or JSON)")
	f.IntVar(&o.cycles, "cycles", 1, "number of cycles to run")
	f.BoolVar(&o.park, "park", false, "park idle vehicles")
	f.BoolVar(&o.recharge, "recharge", false, "recharge idle vehicles")
	f.StringVar(&o.format, "format", "table", "output format: table, json or csv")
	_ = cmd.MarkFlagRequired("scenario")
	return cmd
}

// memoryStore keeps decision records for printing.
type memoryStore struct {
	mu   sync.Mutex
	recs []logging.LogRecord
}

func (s *memoryStore) Append(_ context.Context, rec logging.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return nil
}

func (s *memoryStore) Query(_ context.Context, q logging.LogQuery) ([]logging.LogRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []logging.LogRecord
	for _, r := range s.recs {
		if q.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memoryStore) Close() error { return nil }

func runDispatch(cmd *cobra.Command, o dispatchOptions) error {
	if o.cycles < 1 {
		return fmt.Errorf("cycles must be at least 1")
	}
	switch o.format {
	case "table", "json", "csv":
	default:
		return fmt.Errorf("unknown format %q", o.format)
	}
	ctx := cmd.Context()
	s, err := kernel.LoadScenario(o.scenario)
	if err != nil {
		return err
	}
	k, err := s.Build(ctx)
	if err != nil {
		return err
	}
	cfg := dispatch.Config{ParkIdleVehicles: o.park, RechargeIdleVehicles: o.recharge}
	routerFor := func(m *plant.Model) dispatch.Router { return routing.NewRouter(m, routing.TravelTimeEvaluator{}) }
	d, err := dispatch.NewDispatcher(cfg, k, k, routerFor, logger.New("dispatch"))
	if err != nil {
		return err
	}
	store := &memoryStore{}
	d.SetLogStore(store)
	d.Start(ctx)
	defer d.Stop()
	for range o.cycles {
		if err := d.Dispatch(ctx); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	recs, _ := store.Query(ctx, logging.LogQuery{})
	switch o.format {
	case "json":
		return export.WriteJSON(out, recs)
	case "csv":
		return export.WriteCSV(out, recs)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CYCLE\tPHASE\tACTION\tORDER\tVEHICLE\tCOSTS\tREASONS")
	for _, r := range recs {
		for _, dec := range r.Decisions {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%.0f\t%v\n", shortID(r.CycleID), dec.Phase, dec.Action, dec.Order, dec.Vehicle, dec.Costs, dec.Reasons)
		}
	}
	return tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
