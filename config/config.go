package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"

	"github.com/kilianp07/agvdispatch/core/dispatch"
	"github.com/kilianp07/agvdispatch/core/metrics"
	"github.com/kilianp07/agvdispatch/infra/mqtt"
	"github.com/kilianp07/agvdispatch/infra/telemetry"
)

type Config struct {
	// LogLevel is the minimum level of the process logs.
	LogLevel   string           `json:"log_level"`
	Kernel     KernelConfig     `json:"kernel"`
	Dispatch   dispatch.Config  `json:"dispatch"`
	Routing    RoutingConfig    `json:"routing"`
	MQTT       mqtt.Config      `json:"mqtt"`
	Forwarding ForwardingConfig `json:"forwarding"`
	Telemetry  telemetry.Config `json:"telemetry"`
	Metrics    metrics.Config   `json:"metrics"`
	Logging    LoggingConfig    `json:"logging"`
	HTTP       HTTPConfig       `json:"http"`
}

// Load reads the configuration file at path, applies K_ prefixed
// environment overrides (K_DISPATCH__PARK_IDLE_VEHICLES=true), fills
// defaults and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides, K_HTTP__ADDR -> http.addr
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills unset fields of every section.
func (c *Config) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	c.Dispatch.SetDefaults()
	c.Logging.SetDefaults()
	c.HTTP.SetDefaults()
	c.Telemetry.SetDefaults()
	if c.MQTTEnabled() {
		c.MQTT.SetDefaults()
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if err := c.Kernel.Validate(); err != nil {
		return fmt.Errorf("kernel: %w", err)
	}
	if err := c.Dispatch.Validate(); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	if err := c.Routing.Validate(); err != nil {
		return fmt.Errorf("routing: %w", err)
	}
	if c.MQTTEnabled() {
		if err := c.MQTT.Validate(); err != nil {
			return err
		}
	}
	if err := c.Forwarding.Validate(); err != nil {
		return fmt.Errorf("forwarding: %w", err)
	}
	if c.Telemetry.Enabled && !c.MQTTEnabled() {
		return fmt.Errorf("telemetry: requires mqtt.broker")
	}
	if err := c.Telemetry.Validate(); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http: %w", err)
	}
	return nil
}

// MQTTEnabled reports whether assigned orders are forwarded to a broker.
func (c Config) MQTTEnabled() bool { return c.MQTT.Broker != "" }
