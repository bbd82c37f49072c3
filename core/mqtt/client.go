package mqtt

import (
	"time"

	"github.com/kilianp07/agvdispatch/core/model"
)

// OrderCommand is the message sent to a vehicle once a transport order was
// assigned to it.
type OrderCommand struct {
	CommandID   string             `json:"command_id"`
	Vehicle     string             `json:"vehicle"`
	Order       string             `json:"order"`
	Type        string             `json:"type"`
	DriveOrders []model.DriveOrder `json:"drive_orders"`
	Timestamp   int64              `json:"timestamp"`
}

// Client represents an MQTT client capable of sending drive orders and
// waiting for acknowledgments from vehicles.
type Client interface {
	// SendOrder publishes cmd to the vehicle's order topic and returns the
	// command identifier used to track the acknowledgment. An empty
	// CommandID is filled in.
	SendOrder(cmd OrderCommand) (commandID string, err error)

	// WaitForAck waits for an acknowledgment for the provided command
	// identifier or until the timeout expires.
	WaitForAck(commandID string, timeout time.Duration) (bool, error)
}

// OrderTopic is the topic drive orders for vehicle are published on.
func OrderTopic(vehicle string) string { return "vehicle/" + vehicle + "/order" }
