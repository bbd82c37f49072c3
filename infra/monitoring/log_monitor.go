// Package monitoring provides the error reporter installed by the service.
// Captured errors are logged with their tags and counted per module.
package monitoring

import (
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	corelog "github.com/kilianp07/agvdispatch/core/logger"
	coremon "github.com/kilianp07/agvdispatch/core/monitoring"
)

var capturedErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "agv_captured_errors_total",
	Help: "Errors reported to the monitor by module.",
}, []string{"module"})

func init() {
	if err := prometheus.Register(capturedErrors); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			capturedErrors = are.ExistingCollector.(*prometheus.CounterVec)
		}
	}
}

type logMonitor struct {
	log corelog.Logger
}

// NewLogMonitor returns a Monitor writing captured errors to log.
func NewLogMonitor(log corelog.Logger) coremon.Monitor {
	if log == nil {
		log = corelog.NopLogger{}
	}
	return &logMonitor{log: log}
}

func (m *logMonitor) CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	module := tags["module"]
	if module == "" {
		module = "unknown"
	}
	capturedErrors.WithLabelValues(module).Inc()
	m.log.Errorf("captured error: %v [%s]", err, formatTags(tags))
}

// Flush does nothing; the log is written synchronously.
func (m *logMonitor) Flush(time.Duration) {}

func formatTags(tags map[string]string) string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+tags[k])
	}
	return strings.Join(parts, " ")
}
