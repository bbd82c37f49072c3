package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologLoggerMethods(t *testing.T) {
	assert.NoError(t, os.Setenv("APP_ENV", "dev"))
	defer func() { assert.NoError(t, os.Unsetenv("APP_ENV")) }()
	l := NewZerologLogger("test")
	if l == nil {
		t.Fatalf("nil logger")
	}
	l.Debugf("debug %d", 1)
	l.Debugw("debug", map[string]any{"k": 1})
	l.Infof("info %s", "test")
	l.Warnf("warn")
	l.Errorf("error")
}

func TestLoggerLevelAndFields(t *testing.T) {
	require.NoError(t, SetLevel("debug"))
	t.Cleanup(func() { _ = SetLevel("info") })

	var buf bytes.Buffer
	l := NewWithWriter("dispatcher", &buf)
	l.Debugw("cycle done", map[string]any{"cycle": "c-1", "decisions": 3})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "dispatcher", line["component"])
	assert.Equal(t, "debug", line["level"])
	assert.Equal(t, "c-1", line["cycle"])
	assert.Equal(t, float64(3), line["decisions"])

	require.NoError(t, SetLevel("warn"))
	buf.Reset()
	l = NewWithWriter("dispatcher", &buf)
	l.Infof("hidden")
	l.Warnf("shown")
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))

	assert.Error(t, SetLevel("loud"))
}
