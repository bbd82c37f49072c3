package mqtt

import (
	"fmt"
	"sync"
	"time"

	coremqtt "github.com/kilianp07/agvdispatch/core/mqtt"
)

// Client mirrors the core mqtt.Client interface.
type Client = coremqtt.Client

// MockPublisher is a simple publisher used in tests.
type MockPublisher struct {
	Messages   map[string][]coremqtt.OrderCommand
	FailIDs    map[string]bool
	AckResults map[string]bool
	mu         sync.Mutex
}

var _ Client = (*MockPublisher)(nil)

// NewMockPublisher creates a new MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		Messages:   make(map[string][]coremqtt.OrderCommand),
		FailIDs:    make(map[string]bool),
		AckResults: make(map[string]bool),
	}
}

// FailVehicle makes publishes for vehicle fail from now on.
func (m *MockPublisher) FailVehicle(vehicle string) {
	m.mu.Lock()
	m.FailIDs[vehicle] = true
	m.mu.Unlock()
}

// SendOrder records the message or returns an error if configured to fail.
func (m *MockPublisher) SendOrder(cmd coremqtt.OrderCommand) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailIDs[cmd.Vehicle] {
		return "", fmt.Errorf("publish failed")
	}
	if cmd.CommandID == "" {
		cmd.CommandID = fmt.Sprintf("cmd-%s-%s", cmd.Vehicle, cmd.Order)
	}
	m.Messages[cmd.Vehicle] = append(m.Messages[cmd.Vehicle], cmd)
	m.AckResults[cmd.CommandID] = true
	return cmd.CommandID, nil
}

// WaitForAck simulates an immediate acknowledgment based on the stored result.
func (m *MockPublisher) WaitForAck(commandID string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	ok, exists := m.AckResults[commandID]
	m.mu.Unlock()
	if !exists {
		return false, fmt.Errorf("%w: %s", coremqtt.ErrUnknownCommand, commandID)
	}
	return ok, nil
}

// Sent returns the commands recorded for vehicle.
func (m *MockPublisher) Sent(vehicle string) []coremqtt.OrderCommand {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]coremqtt.OrderCommand(nil), m.Messages[vehicle]...)
}
