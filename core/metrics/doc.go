// Package metrics defines the sinks dispatch cycles are reported to. Sinks
// like PromSink and InfluxSink live in infra/metrics and register
// themselves by name; NewMetricsSink builds them from configuration and
// wraps several in a MultiSink.
package metrics
