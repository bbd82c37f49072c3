package simulator

import (
	"fmt"
	"time"
)

// Config holds parameters for the simulator.
type Config struct {
	Broker     string
	AckLatency time.Duration
	DropRate   float64
	// StepDuration is the time a vehicle needs to travel one path.
	StepDuration time.Duration
	// DrainPerStep is the energy, in percent, used per path travelled.
	DrainPerStep int
	// ChargePerStep is the energy gained per StepDuration at a charger.
	ChargePerStep int
	// ReportInterval publishes an unsolicited state report when positive.
	ReportInterval time.Duration
}

func (c *Config) SetDefaults() {
	if c.Broker == "" {
		c.Broker = "tcp://localhost:1883"
	}
	if c.StepDuration == 0 {
		c.StepDuration = time.Second
	}
	if c.DrainPerStep == 0 {
		c.DrainPerStep = 1
	}
	if c.ChargePerStep == 0 {
		c.ChargePerStep = 10
	}
}

func (c Config) Validate() error {
	if c.DropRate < 0 || c.DropRate > 1 {
		return fmt.Errorf("drop rate must be within [0,1], got %v", c.DropRate)
	}
	if c.StepDuration < 0 || c.AckLatency < 0 || c.ReportInterval < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if c.DrainPerStep < 0 || c.ChargePerStep <= 0 {
		return fmt.Errorf("invalid energy rates: drain %d, charge %d", c.DrainPerStep, c.ChargePerStep)
	}
	return nil
}
