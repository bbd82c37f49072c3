package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/agvdispatch/core/kernel"
	"github.com/kilianp07/agvdispatch/simulator"
)

type simulateOptions struct {
	scenario string
	vehicles []string
	cfg      simulator.Config
}

func newSimulateCmd() *cobra.Command {
	var o simulateOptions
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Simulate the vehicles of a scenario over MQTT",
		Long: `Each simulated vehicle subscribes to vehicle/<name>/order, acknowledges
the orders it receives, travels their routes and publishes its state on
vehicle/<name>/state.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSimulate(o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.scenario, "scenario", "", "scenario file the fleet is read from")
	f.StringSliceVar(&o.vehicles, "vehicle", nil, "only simulate these vehicles")
	f.StringVar(&o.cfg.Broker, "broker", "tcp://localhost:1883", "MQTT broker URL")
	f.DurationVar(&o.cfg.AckLatency, "ack-latency", 0, "ack latency")
	f.Float64Var(&o.cfg.DropRate, "drop-rate", 0, "ack drop rate")
	f.DurationVar(&o.cfg.StepDuration, "step-duration", time.Second, "time to travel one path")
	f.IntVar(&o.cfg.DrainPerStep, "drain", 1, "energy used per path, in percent")
	f.IntVar(&o.cfg.ChargePerStep, "charge", 10, "energy gained per step at a charger, in percent")
	f.DurationVar(&o.cfg.ReportInterval, "report-interval", 30*time.Second, "state report interval")
	_ = cmd.MarkFlagRequired("scenario")
	return cmd
}

func runSimulate(o simulateOptions) error {
	o.cfg.SetDefaults()
	if err := o.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	s, err := kernel.LoadScenario(o.scenario)
	if err != nil {
		return err
	}
	strat := simulator.RandomAck{Delay: o.cfg.AckLatency, DropRate: o.cfg.DropRate}
	fleet := simulator.FleetFromScenario(s, o.cfg, strat, o.vehicles...)
	if len(fleet) == 0 {
		return fmt.Errorf("no vehicles to simulate")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	simulator.RunFleet(ctx, fleet)
	return nil
}
