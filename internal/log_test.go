package internal

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLogLevel(t *testing.T) {
	level, ok := ParseLogLevel(" debug ")
	assert.True(t, ok)
	assert.Equal(t, LogLevelDebug, level)

	level, ok = ParseLogLevel("loud")
	assert.False(t, ok)
	assert.Equal(t, LogLevelInfo, level)
}

func TestLogger_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LogLevelWarn)

	logger.Info("[Test] hidden")
	logger.Warn("[Test] shown %d", 1)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "[WARN] [Test] shown 1")

	logger.SetLevel(LogLevelDebug)
	logger.Debug("[Test] now visible")
	assert.Contains(t, buf.String(), "[DEBUG] [Test] now visible")
	assert.Equal(t, LogLevelDebug, logger.GetLevel())
}
