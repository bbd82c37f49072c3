package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/agvdispatch/core/metrics"
	"github.com/kilianp07/agvdispatch/infra/logger"
)

// InfluxSink writes dispatch cycles and order outcomes to InfluxDB.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }

// RecordCycle writes one dispatch_cycle point per report.
func (s *InfluxSink) RecordCycle(rep coremetrics.CycleReport) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result := "ok"
	if rep.Err != "" {
		result = "error"
	}
	p := write.NewPointWithMeasurement("dispatch_cycle").
		AddTag("trigger", rep.Trigger).
		AddTag("result", result).
		AddTag("cycle_id", rep.CycleID).
		AddField("duration_ms", round3(rep.Duration.Seconds()*1000)).
		AddField("decisions", rep.Decisions).
		AddField("assigned", total(rep.Assignments)).
		AddField("created", total(rep.Created)).
		AddField("failed", total(rep.Failed)).
		SetTime(rep.Start)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordAssignment writes an order_assigned point.
func (s *InfluxSink) RecordAssignment(ev coremetrics.AssignmentEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("order_assigned").
		AddTag("vehicle_id", ev.Vehicle).
		AddTag("order_type", ev.OrderType).
		AddTag("phase", ev.Phase).
		AddTag("order_id", ev.Order).
		AddField("costs", round3(ev.Costs)).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordOrderFailure writes an order_failed point.
func (s *InfluxSink) RecordOrderFailure(ev coremetrics.OrderFailureEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("order_failed").
		AddTag("order_type", ev.OrderType).
		AddTag("order_id", ev.Order)
	if ev.Vehicle != "" {
		p = p.AddTag("vehicle_id", ev.Vehicle)
	}
	if ev.Phase != "" {
		p = p.AddTag("phase", ev.Phase)
	}
	p = p.AddField("reason", ev.Reason).SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

func total(counts map[string]int) int {
	n := 0
	for _, c := range counts {
		n += c
	}
	return n
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
