// Package simulator runs simulated vehicles that execute the orders the
// dispatcher forwards over MQTT and report their state back.
package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	coremqtt "github.com/kilianp07/agvdispatch/core/mqtt"
	"github.com/kilianp07/agvdispatch/core/model"
	"github.com/kilianp07/agvdispatch/infra/logger"
	"github.com/kilianp07/agvdispatch/infra/telemetry"
)

// AckTopic is the topic vehicle acknowledges order commands on.
func AckTopic(vehicle string) string { return "vehicle/" + vehicle + "/ack" }

// StateTopic is the topic vehicle publishes its state reports on.
func StateTopic(vehicle string) string { return "vehicle/" + vehicle + "/state" }

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

type client interface {
	publisher
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

var newMQTTClient = func(broker, clientID string) (client, error) {
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID(clientID)
	opts.AutoReconnect = true
	cli := paho.NewClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return cli, nil
}

func publish(cli publisher, topic string, payload []byte) error {
	token := cli.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	return token.Error()
}

// SimulatedVehicle executes the drive orders it receives over MQTT one
// after the other and reports its state while doing so.
type SimulatedVehicle struct {
	Name     string
	Battery  *Battery
	Strategy AckStrategy

	cfg      Config
	mu       sync.Mutex
	position string
	state    model.VehicleState
	client   client
	commands chan coremqtt.OrderCommand
	log      logger.Logger
}

// NewSimulatedVehicle creates an idle vehicle standing on position.
func NewSimulatedVehicle(name, position string, energy int, cfg Config, strat AckStrategy) *SimulatedVehicle {
	cfg.SetDefaults()
	if strat == nil {
		strat = AutoAck{Delay: cfg.AckLatency}
	}
	return &SimulatedVehicle{
		Name:     name,
		Battery:  NewBattery(energy),
		Strategy: strat,
		cfg:      cfg,
		position: position,
		state:    model.VehicleStateIdle,
		commands: make(chan coremqtt.OrderCommand, 16),
		log:      logger.New("sim-" + name),
	}
}

// Position returns the point the vehicle stands on.
func (v *SimulatedVehicle) Position() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.position
}

// Run connects to the broker and executes commands until ctx is done.
func (v *SimulatedVehicle) Run(ctx context.Context) error {
	cli, err := newMQTTClient(v.cfg.Broker, "sim-"+v.Name)
	if err != nil {
		return err
	}
	v.client = cli
	defer cli.Disconnect(250)
	if token := cli.Subscribe(coremqtt.OrderTopic(v.Name), 1, v.onOrder); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	v.report("", nil)

	var tick <-chan time.Time
	if v.cfg.ReportInterval > 0 {
		t := time.NewTicker(v.cfg.ReportInterval)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-v.commands:
			if err := v.execute(ctx, cmd); err != nil {
				v.log.Warnf("order %s: %v", cmd.Order, err)
			}
		case <-tick:
			v.report("", nil)
		}
	}
}

func (v *SimulatedVehicle) onOrder(_ paho.Client, msg paho.Message) {
	var cmd coremqtt.OrderCommand
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		v.log.Errorf("decode order: %v", err)
		return
	}
	select {
	case v.commands <- cmd:
	default:
		v.log.Warnf("command queue full, dropping order %s", cmd.Order)
	}
}

// execute acknowledges cmd, travels its routes and reports the order as
// finished.
func (v *SimulatedVehicle) execute(ctx context.Context, cmd coremqtt.OrderCommand) error {
	if err := v.Strategy.Ack(ctx, v.client, v.Name, cmd.CommandID); err != nil {
		return fmt.Errorf("ack: %w", err)
	}
	v.setState(model.VehicleStateExecuting)
	v.report("", nil)
	for _, d := range cmd.DriveOrders {
		if d.State == model.DriveOrderFinished {
			continue
		}
		if d.Route != nil {
			for _, step := range d.Route.Steps {
				next := step.Destination
				v.report("", &next)
				if !wait(ctx, v.cfg.StepDuration) {
					return ctx.Err()
				}
				v.mu.Lock()
				v.position = step.Destination
				v.mu.Unlock()
				v.Battery.Drain(v.cfg.DrainPerStep)
				v.report("", nil)
			}
		}
		if d.Destination.Operation == model.OpCharge {
			if err := v.charge(ctx); err != nil {
				return err
			}
		}
	}
	v.setState(model.VehicleStateIdle)
	v.report(cmd.Order, nil)
	return nil
}

func (v *SimulatedVehicle) charge(ctx context.Context) error {
	v.setState(model.VehicleStateCharging)
	v.report("", nil)
	for v.Battery.Level() < 100 {
		if !wait(ctx, v.cfg.StepDuration) {
			return ctx.Err()
		}
		v.Battery.Charge(v.cfg.ChargePerStep)
		v.report("", nil)
	}
	v.setState(model.VehicleStateExecuting)
	return nil
}

func (v *SimulatedVehicle) setState(s model.VehicleState) {
	v.mu.Lock()
	v.state = s
	v.mu.Unlock()
}

// report publishes the vehicle's state. next, when set, is the point the
// vehicle is heading to.
func (v *SimulatedVehicle) report(finished string, next *string) {
	v.mu.Lock()
	pos, state := v.position, v.state
	v.mu.Unlock()
	energy := v.Battery.Level()
	ts := time.Now().Unix()
	empty := ""
	if next == nil {
		next = &empty
	}
	rep := telemetry.Report{
		Vehicle:       v.Name,
		Position:      &pos,
		NextPosition:  next,
		EnergyLevel:   &energy,
		State:         &state,
		FinishedOrder: finished,
		TS:            &ts,
	}
	payload, err := json.Marshal(rep)
	if err != nil {
		v.log.Errorf("marshal report: %v", err)
		return
	}
	if err := publish(v.client, StateTopic(v.Name), payload); err != nil {
		v.log.Errorf("state report: %v", err)
	}
}
