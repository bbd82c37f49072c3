package simulator

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/agvdispatch/core/kernel"
	"github.com/kilianp07/agvdispatch/core/model"
	coremqtt "github.com/kilianp07/agvdispatch/core/mqtt"
	infmqtt "github.com/kilianp07/agvdispatch/infra/mqtt"
	"github.com/kilianp07/agvdispatch/infra/telemetry"
)

type stubToken struct{ err error }

func (t *stubToken) Wait() bool                     { return true }
func (t *stubToken) WaitTimeout(time.Duration) bool { return true }
func (t *stubToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (t *stubToken) Error() error                   { return t.err }

type message struct {
	topic   string
	payload []byte
}

type stubClient struct {
	mu           sync.Mutex
	subs         map[string]paho.MessageHandler
	pubs         []message
	disconnected int
}

func (c *stubClient) IsConnected() bool { return true }
func (c *stubClient) Disconnect(uint)   { c.mu.Lock(); c.disconnected++; c.mu.Unlock() }
func (c *stubClient) Publish(topic string, _ byte, _ bool, payload interface{}) paho.Token {
	c.mu.Lock()
	c.pubs = append(c.pubs, message{topic, payload.([]byte)})
	c.mu.Unlock()
	return &stubToken{}
}
func (c *stubClient) Subscribe(topic string, _ byte, cb paho.MessageHandler) paho.Token {
	c.mu.Lock()
	if c.subs == nil {
		c.subs = map[string]paho.MessageHandler{}
	}
	c.subs[topic] = cb
	c.mu.Unlock()
	return &stubToken{}
}

func (c *stubClient) published(topic string) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out [][]byte
	for _, m := range c.pubs {
		if m.topic == topic {
			out = append(out, m.payload)
		}
	}
	return out
}

func (c *stubClient) handler(topic string) paho.MessageHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs[topic]
}

type fakeMessage struct {
	paho.Message
	payload []byte
}

func (m fakeMessage) Payload() []byte { return m.payload }

func reports(t *testing.T, payloads [][]byte) []telemetry.Report {
	t.Helper()
	out := make([]telemetry.Report, len(payloads))
	for i, p := range payloads {
		require.NoError(t, json.Unmarshal(p, &out[i]))
	}
	return out
}

func testVehicle(sc *stubClient, energy int) *SimulatedVehicle {
	v := NewSimulatedVehicle("V1", "A", energy, Config{StepDuration: time.Millisecond, DrainPerStep: 5, ChargePerStep: 50}, nil)
	v.client = sc
	return v
}

func TestExecuteDrivesRouteAndFinishes(t *testing.T) {
	sc := &stubClient{}
	v := testVehicle(sc, 80)
	route := &model.Route{Start: "A", Steps: []model.Step{
		{Path: "A--B", Source: "A", Destination: "B"},
		{Path: "B--C", Source: "B", Destination: "C", Index: 1},
	}}
	cmd := coremqtt.OrderCommand{CommandID: "c1", Vehicle: "V1", Order: "T-1", DriveOrders: []model.DriveOrder{
		{Destination: model.Destination{Target: "C", Operation: model.OpNop}, Route: route},
	}}
	require.NoError(t, v.execute(context.Background(), cmd))

	acks := sc.published(AckTopic("V1"))
	require.Len(t, acks, 1)
	var ack infmqtt.Ack
	require.NoError(t, json.Unmarshal(acks[0], &ack))
	assert.Equal(t, infmqtt.Ack{CommandID: "c1", Vehicle: "V1"}, ack)

	reps := reports(t, sc.published(StateTopic("V1")))
	require.NotEmpty(t, reps)
	assert.Equal(t, model.VehicleStateExecuting, *reps[0].State)
	last := reps[len(reps)-1]
	assert.Equal(t, "T-1", last.FinishedOrder)
	assert.Equal(t, "C", *last.Position)
	assert.Equal(t, model.VehicleStateIdle, *last.State)
	assert.Equal(t, 70, *last.EnergyLevel)
	assert.Equal(t, "C", v.Position())
}

func TestExecuteCharges(t *testing.T) {
	sc := &stubClient{}
	v := testVehicle(sc, 20)
	cmd := coremqtt.OrderCommand{CommandID: "c2", Order: "Recharge-1", DriveOrders: []model.DriveOrder{
		{Destination: model.Destination{Target: "Charger", Operation: model.OpCharge}, Route: &model.Route{Start: "A"}},
	}}
	require.NoError(t, v.execute(context.Background(), cmd))
	assert.Equal(t, 100, v.Battery.Level())

	var charging bool
	for _, r := range reports(t, sc.published(StateTopic("V1"))) {
		charging = charging || *r.State == model.VehicleStateCharging
	}
	assert.True(t, charging)
}

func TestExecuteStopsOnCancel(t *testing.T) {
	sc := &stubClient{}
	v := NewSimulatedVehicle("V1", "A", 50, Config{StepDuration: time.Hour}, nil)
	v.client = sc
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cmd := coremqtt.OrderCommand{CommandID: "c3", Order: "T-2"}
	assert.ErrorIs(t, v.execute(ctx, cmd), context.Canceled)
}

func TestRunSubscribesAndExecutesOrders(t *testing.T) {
	sc := &stubClient{}
	prev := newMQTTClient
	newMQTTClient = func(string, string) (client, error) { return sc, nil }
	t.Cleanup(func() { newMQTTClient = prev })

	v := testVehicle(sc, 90)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- v.Run(ctx) }()

	require.Eventually(t, func() bool { return sc.handler(coremqtt.OrderTopic("V1")) != nil }, time.Second, time.Millisecond)
	payload, err := json.Marshal(coremqtt.OrderCommand{CommandID: "c4", Vehicle: "V1", Order: "T-4"})
	require.NoError(t, err)
	sc.handler(coremqtt.OrderTopic("V1"))(nil, fakeMessage{payload: payload})
	sc.handler(coremqtt.OrderTopic("V1"))(nil, fakeMessage{payload: []byte("garbage")})

	require.Eventually(t, func() bool {
		for _, r := range reports(t, sc.published(StateTopic("V1"))) {
			if r.FinishedOrder == "T-4" {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 1, sc.disconnected)
}

func TestRandomAckDrops(t *testing.T) {
	sc := &stubClient{}
	require.NoError(t, RandomAck{DropRate: 1}.Ack(context.Background(), sc, "V1", "c1"))
	assert.Empty(t, sc.published(AckTopic("V1")))
	require.NoError(t, RandomAck{}.Ack(context.Background(), sc, "V1", "c1"))
	assert.Len(t, sc.published(AckTopic("V1")), 1)
}

func TestBatteryClamps(t *testing.T) {
	b := NewBattery(120)
	assert.Equal(t, 100, b.Level())
	assert.Equal(t, 0, b.Drain(150))
	assert.Equal(t, 30, b.Charge(30))
}

func TestConfigValidate(t *testing.T) {
	var c Config
	c.SetDefaults()
	require.NoError(t, c.Validate())
	assert.Equal(t, time.Second, c.StepDuration)

	c.DropRate = 2
	assert.Error(t, c.Validate())
	c = Config{StepDuration: -1, ChargePerStep: 1}
	assert.Error(t, c.Validate())
}

func TestFleetFromScenario(t *testing.T) {
	s, err := kernel.LoadScenario(filepath.Join("..", "core", "kernel", "testdata", "basic.yaml"))
	require.NoError(t, err)
	all := FleetFromScenario(s, Config{}, nil)
	require.Len(t, all, 2)
	assert.Equal(t, "A", all[0].Position())
	assert.Equal(t, 80, all[0].Battery.Level())

	one := FleetFromScenario(s, Config{}, nil, "V2")
	require.Len(t, one, 1)
	assert.Equal(t, "P1", one[0].Position())
}
