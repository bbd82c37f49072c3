package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kilianp07/agvdispatch/core/factory"
	"github.com/kilianp07/agvdispatch/core/routing"
)

// KernelConfig locates the plant and fleet the in-memory kernel starts with.
type KernelConfig struct {
	// Scenario is a YAML or JSON scenario file.
	Scenario string `json:"scenario"`
}

func (c KernelConfig) Validate() error {
	if c.Scenario == "" {
		return fmt.Errorf("scenario is required")
	}
	if _, err := os.Stat(c.Scenario); err != nil {
		return fmt.Errorf("scenario: %w", err)
	}
	return nil
}

// RoutingConfig selects the edge evaluators the router weighs paths with.
type RoutingConfig struct {
	Evaluators []factory.ModuleConfig `json:"evaluators"`
}

func (c RoutingConfig) Validate() error {
	for _, e := range c.Evaluators {
		if !routing.KnownEvaluator(e.Type) {
			return fmt.Errorf("unknown edge evaluator %q", e.Type)
		}
	}
	_, err := routing.NewEvaluator(c.Evaluators)
	return err
}

// ForwardingConfig tunes how assigned orders are sent to vehicles.
type ForwardingConfig struct {
	// AckTimeoutMS waits for vehicle acknowledgments when positive.
	AckTimeoutMS int `json:"ack_timeout_ms"`
}

func (c ForwardingConfig) Validate() error {
	if c.AckTimeoutMS < 0 {
		return fmt.Errorf("negative ack_timeout_ms %d", c.AckTimeoutMS)
	}
	return nil
}

// AckTimeout returns the acknowledgment timeout.
func (c ForwardingConfig) AckTimeout() time.Duration {
	return time.Duration(c.AckTimeoutMS) * time.Millisecond
}

// HTTPConfig configures the dispatch API server.
type HTTPConfig struct {
	Addr string `json:"addr"`
	// Token, when set, is required as a bearer token on every request.
	Token          string `json:"token"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

func (c *HTTPConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 30
	}
}

func (c HTTPConfig) Validate() error {
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("negative timeout_seconds %d", c.TimeoutSeconds)
	}
	return nil
}

// Timeout returns the per-request dispatcher timeout.
func (c HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
