package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	infmqtt "github.com/kilianp07/agvdispatch/infra/mqtt"
)

var (
	rngMu sync.Mutex
	rng   = rand.New(rand.NewSource(time.Now().UnixNano()))
)

func randFloat() float64 {
	rngMu.Lock()
	defer rngMu.Unlock()
	return rng.Float64()
}

// AckStrategy defines how a vehicle acknowledges order commands.
type AckStrategy interface {
	Ack(ctx context.Context, cli publisher, vehicle, commandID string) error
}

// AutoAck sends an ACK after an optional fixed delay.
type AutoAck struct {
	Delay time.Duration
}

// Ack implements AckStrategy.
func (a AutoAck) Ack(ctx context.Context, cli publisher, vehicle, commandID string) error {
	if !wait(ctx, a.Delay) {
		return ctx.Err()
	}
	return publishAck(cli, vehicle, commandID)
}

// RandomAck drops acknowledgments with the configured probability and
// waits for the specified delay before sending.
type RandomAck struct {
	Delay    time.Duration
	DropRate float64
}

// Ack implements AckStrategy.
func (r RandomAck) Ack(ctx context.Context, cli publisher, vehicle, commandID string) error {
	if r.DropRate > 0 && randFloat() < r.DropRate {
		return nil
	}
	return AutoAck{Delay: r.Delay}.Ack(ctx, cli, vehicle, commandID)
}

func publishAck(cli publisher, vehicle, commandID string) error {
	payload, err := json.Marshal(infmqtt.Ack{CommandID: commandID, Vehicle: vehicle})
	if err != nil {
		return fmt.Errorf("marshal ack: %w", err)
	}
	return publish(cli, AckTopic(vehicle), payload)
}

// wait sleeps for d unless ctx ends first.
func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
