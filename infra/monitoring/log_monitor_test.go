package monitoring

import (
	"bytes"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/kilianp07/agvdispatch/infra/logger"
)

func TestLogMonitorCapture(t *testing.T) {
	var buf bytes.Buffer
	mon := NewLogMonitor(logger.NewWithWriter("monitor", &buf))
	before := testutil.ToFloat64(capturedErrors.WithLabelValues("mqtt"))

	mon.CaptureException(errors.New("broker down"), map[string]string{"vehicle": "V1", "module": "mqtt"})
	mon.CaptureException(nil, map[string]string{"module": "mqtt"})

	assert.Equal(t, before+1, testutil.ToFloat64(capturedErrors.WithLabelValues("mqtt")))
	assert.Contains(t, buf.String(), "broker down")
	assert.Contains(t, buf.String(), "module=mqtt vehicle=V1")
}
