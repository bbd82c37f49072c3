// Package telemetry applies the state vehicles publish over MQTT to the
// kernel: position, energy level, operational state and finished orders.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/agvdispatch/core/model"
	"github.com/kilianp07/agvdispatch/infra/logger"
	infmqtt "github.com/kilianp07/agvdispatch/infra/mqtt"
)

// DefaultStateTopic matches the state reports of every vehicle.
const DefaultStateTopic = "vehicle/+/state"

// Config holds configuration for the telemetry manager.
type Config struct {
	Enabled    bool   `json:"enabled"`
	StateTopic string `json:"state_topic"`
	QoS        byte   `json:"qos"`
	// Redispatch runs a dispatch cycle after a vehicle finished an order or
	// became idle.
	Redispatch bool `json:"redispatch"`
}

func (c *Config) SetDefaults() {
	if c.StateTopic == "" {
		c.StateTopic = DefaultStateTopic
	}
}

func (c Config) Validate() error {
	if c.QoS > 2 {
		return fmt.Errorf("telemetry: qos must be 0, 1 or 2")
	}
	return nil
}

// Fleet is the part of the kernel vehicle reports are applied to.
type Fleet interface {
	PatchVehicle(name string, fn func(*model.Vehicle) error) error
	FinishOrder(ctx context.Context, order string) error
}

// Trigger requests a dispatch cycle.
type Trigger func(ctx context.Context) error

// Report is the payload published on the state topic. Unset fields are
// left unchanged.
type Report struct {
	Vehicle       string              `json:"vehicle"`
	Position      *string             `json:"position,omitempty"`
	NextPosition  *string             `json:"next_position,omitempty"`
	EnergyLevel   *int                `json:"energy_level,omitempty"`
	State         *model.VehicleState `json:"state,omitempty"`
	FinishedOrder string              `json:"finished_order,omitempty"`
	TS            *int64              `json:"ts,omitempty"`
}

type subscriber interface {
	IsConnected() bool
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Disconnect(quiesce uint)
}

// Manager collects vehicle state reports pushed over MQTT.
type Manager struct {
	cfg     Config
	cli     subscriber
	fleet   Fleet
	trigger Trigger
	log     logger.Logger
	now     func() time.Time
}

var (
	reports = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "agv_telemetry_reports_total",
		Help: "Vehicle state reports by outcome.",
	}, []string{"result"})
	lastReport = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "agv_telemetry_last_report_timestamp_seconds",
		Help: "Unix timestamp of the last applied vehicle report.",
	})
	reportLag = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "agv_telemetry_report_lag_seconds",
		Help:    "Delay between a report's timestamp and its arrival.",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	for _, c := range []prometheus.Collector{reports, lastReport, reportLag} {
		if err := prometheus.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}

var newClient = func(opts *paho.ClientOptions) (subscriber, error) {
	cli := paho.NewClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return cli, nil
}

// NewManager connects to MQTT and prepares telemetry collection.
func NewManager(mqttCfg infmqtt.Config, cfg Config, fleet Fleet, trigger Trigger) (*Manager, error) {
	if fleet == nil {
		return nil, fmt.Errorf("telemetry: nil fleet")
	}
	cfg.SetDefaults()
	opts, err := infmqtt.NewClientOptions(mqttCfg)
	if err != nil {
		return nil, err
	}
	id := mqttCfg.ClientID
	if id != "" {
		id += "-telemetry"
	} else {
		id = "telemetry-" + uuid.NewString()
	}
	opts.SetClientID(id)
	cli, err := newClient(opts)
	if err != nil {
		return nil, err
	}
	return &Manager{
		cfg:     cfg,
		cli:     cli,
		fleet:   fleet,
		trigger: trigger,
		log:     logger.New("telemetry"),
		now:     time.Now,
	}, nil
}

// Start subscribes to the state topic and runs until context is done.
func (m *Manager) Start(ctx context.Context) {
	handler := func(_ paho.Client, msg paho.Message) {
		if err := m.process(ctx, msg.Payload(), msg.Topic()); err != nil {
			m.log.Errorf("vehicle report on %s: %v", msg.Topic(), err)
		}
	}
	if token := m.cli.Subscribe(m.cfg.StateTopic, m.cfg.QoS, handler); token.Wait() && token.Error() != nil {
		m.log.Errorf("subscribe state: %v", token.Error())
	}
	<-ctx.Done()
	if m.cli.IsConnected() {
		m.cli.Disconnect(250)
	}
}

// vehicleFromTopic returns the segment in place of the "+" wildcard of
// vehicle/+/state.
func vehicleFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	return ""
}

func (m *Manager) process(ctx context.Context, payload []byte, topic string) error {
	err := m.apply(ctx, payload, topic)
	result := "applied"
	if err != nil {
		result = "rejected"
	}
	reports.WithLabelValues(result).Inc()
	return err
}

func (m *Manager) apply(ctx context.Context, payload []byte, topic string) error {
	var rep Report
	if err := json.Unmarshal(payload, &rep); err != nil {
		return err
	}
	if rep.Vehicle == "" {
		rep.Vehicle = vehicleFromTopic(topic)
	}
	if rep.Vehicle == "" {
		return fmt.Errorf("report names no vehicle")
	}
	now := m.now()
	if rep.TS != nil {
		reportLag.Observe(now.Sub(time.Unix(*rep.TS, 0)).Seconds())
	}

	var becameIdle bool
	err := m.fleet.PatchVehicle(rep.Vehicle, func(v *model.Vehicle) error {
		wasIdle := v.State == model.VehicleStateIdle
		if rep.Position != nil {
			v.CurrentPosition = *rep.Position
		}
		if rep.NextPosition != nil {
			v.NextPosition = *rep.NextPosition
		}
		if rep.EnergyLevel != nil {
			v.EnergyLevel = min(max(*rep.EnergyLevel, 0), 100)
		}
		if rep.State != nil {
			v.State = *rep.State
		}
		becameIdle = !wasIdle && v.State == model.VehicleStateIdle
		return nil
	})
	if err != nil {
		return err
	}
	finished := false
	if rep.FinishedOrder != "" {
		if err := m.fleet.FinishOrder(ctx, rep.FinishedOrder); err != nil {
			return err
		}
		finished = true
	}
	lastReport.Set(float64(now.Unix()))

	if m.cfg.Redispatch && m.trigger != nil && (finished || becameIdle) {
		// Not waiting on the dispatcher keeps the MQTT callback short.
		go func() {
			if err := m.trigger(ctx); err != nil {
				m.log.Warnf("redispatch after report of %s: %v", rep.Vehicle, err)
			}
		}()
	}
	return nil
}
