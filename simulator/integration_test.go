//go:build integration

package simulator

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/agvdispatch/app"
	"github.com/kilianp07/agvdispatch/config"
	"github.com/kilianp07/agvdispatch/core/kernel"
	"github.com/kilianp07/agvdispatch/core/model"
	infmqtt "github.com/kilianp07/agvdispatch/infra/mqtt"
	"github.com/kilianp07/agvdispatch/infra/telemetry"
)

func startMosquitto(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("docker not available: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })
	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "1883")
	require.NoError(t, err)
	return fmt.Sprintf("tcp://%s:%s", host, port.Port())
}

// TestFleetCompletesScenarioOrder runs the service against simulated
// vehicles: the order is assigned, forwarded, driven and reported finished.
func TestFleetCompletesScenarioOrder(t *testing.T) {
	broker := startMosquitto(t)
	scenarioPath := filepath.Join("..", "core", "kernel", "testdata", "basic.yaml")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := kernel.LoadScenario(scenarioPath)
	require.NoError(t, err)
	fleet := FleetFromScenario(s, Config{Broker: broker, StepDuration: 20 * time.Millisecond}, AutoAck{})
	go RunFleet(ctx, fleet)
	// order subscriptions have to be in place before the first cycle
	time.Sleep(500 * time.Millisecond)

	cfg := &config.Config{
		Kernel:     config.KernelConfig{Scenario: scenarioPath},
		MQTT:       infmqtt.Config{Broker: broker, QoS: map[string]byte{"order": 1, "ack": 1}},
		Forwarding: config.ForwardingConfig{AckTimeoutMS: 2000},
		Telemetry:  telemetry.Config{Enabled: true, QoS: 1, Redispatch: true},
		Logging:    config.LoggingConfig{Path: filepath.Join(t.TempDir(), "decisions.jsonl")},
		HTTP:       config.HTTPConfig{Addr: "127.0.0.1:0"},
	}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	svc, err := app.New(ctx, cfg)
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	defer func() {
		cancel()
		<-done
		_ = svc.Close()
	}()

	require.Eventually(t, func() bool {
		o, err := svc.Kernel.FetchTransportOrder(context.Background(), "T-1")
		return err == nil && o.State == model.OrderStateFinished
	}, 15*time.Second, 50*time.Millisecond)

	o, err := svc.Kernel.FetchTransportOrder(context.Background(), "T-1")
	require.NoError(t, err)
	v, err := svc.Kernel.FetchVehicle(context.Background(), o.ProcessingVehicle)
	require.NoError(t, err)
	require.Equal(t, "B", v.CurrentPosition)
	require.Empty(t, v.TransportOrder)
}
