package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerTextFormat(t *testing.T) {
	var buf bytes.Buffer

	logger := NewLogger(Options{Level: "info", Format: "text", Output: &buf})
	logger.Info("hello", "key", "value")

	out := buf.String()
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "key=value")
	assert.Contains(t, out, "service=pgconvo")
}

func TestNewLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer

	logger := NewLogger(Options{Level: "debug", Format: "json", Output: &buf})
	logger.Debug("mapping database", "tables", 12)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "mapping database", entry["msg"])
	assert.Equal(t, float64(12), entry["tables"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer

	logger := NewLogger(Options{Level: "warn", Format: "text", Output: &buf})
	logger.Info("should not appear")
	logger.Warn("should appear")

	out := buf.String()
	assert.False(t, strings.Contains(out, "should not appear"))
	assert.Contains(t, out, "should appear")
}

func TestGetLoggerDefault(t *testing.T) {
	assert.NotNil(t, GetLogger())
}
