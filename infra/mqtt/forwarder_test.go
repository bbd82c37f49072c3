package mqtt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/agvdispatch/core/events"
	"github.com/kilianp07/agvdispatch/core/model"
	"github.com/kilianp07/agvdispatch/internal/eventbus"
)

func TestOrderForwarderPublishesAssignments(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	pub := NewMockPublisher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartOrderForwarder(ctx, bus, pub, ForwarderOptions{AckTimeout: time.Second})

	drive := []model.DriveOrder{{Destination: model.Destination{Target: "P1", Operation: model.OpPark}}}
	bus.Publish(events.CycleEvent{CycleID: "c1"})
	bus.Publish(events.OrderAssignedEvent{Order: "Park-00001", Type: model.OrderTypePark, Vehicle: "V1", DriveOrders: drive, Time: time.Now()})

	require.Eventually(t, func() bool { return len(pub.Sent("V1")) == 1 }, time.Second, 5*time.Millisecond)
	sent := pub.Sent("V1")[0]
	assert.Equal(t, "Park-00001", sent.Order)
	assert.Equal(t, model.OrderTypePark, sent.Type)
	assert.Equal(t, drive, sent.DriveOrders)
}

func TestOrderForwarderSurvivesPublishErrors(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	pub := NewMockPublisher()
	pub.FailVehicle("V1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartOrderForwarder(ctx, bus, pub, ForwarderOptions{})

	bus.Publish(events.OrderAssignedEvent{Order: "T-1", Vehicle: "V1", Time: time.Now()})
	bus.Publish(events.OrderAssignedEvent{Order: "T-2", Vehicle: "V2", Time: time.Now()})

	require.Eventually(t, func() bool { return len(pub.Sent("V2")) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, pub.Sent("V1"))
}

func TestOrderForwarderNilArguments(t *testing.T) {
	assert.NotPanics(t, func() {
		StartOrderForwarder(context.Background(), nil, NewMockPublisher(), ForwarderOptions{})
		StartOrderForwarder(context.Background(), eventbus.New(), nil, ForwarderOptions{})
	})
}
