package gcp

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCloudLogger_UsesCloudLoggingKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := NewCloudLogger(&buf, "debug")

	logger.Warn("Stage failed.", "jobId", "abc")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARNING", entry["severity"])
	assert.Equal(t, "Stage failed.", entry["message"])
	assert.Equal(t, "abc", entry["jobId"])
	assert.NotContains(t, entry, "level")
	assert.NotContains(t, entry, "msg")
}

func TestNewCloudLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewCloudLogger(&buf, "error")
	logger.Info("hidden")
	assert.Zero(t, buf.Len())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}
