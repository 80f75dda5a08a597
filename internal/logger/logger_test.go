package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/commandbus/assembly"
)

func TestLoggerJSON(t *testing.T) {
	var out bytes.Buffer
	log, err := newWithWriter(assembly.LoggingConfig{Format: "json", Level: "info"}, &out)
	require.NoError(t, err)

	log.With("component", "assembly").Info("dispatcher built", "command", "orders.create")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "dispatcher built", entry["msg"])
	assert.Equal(t, "assembly", entry["component"])
	assert.Equal(t, "orders.create", entry["command"])
}

func TestLoggerLevelFiltering(t *testing.T) {
	var out bytes.Buffer
	log, err := newWithWriter(assembly.LoggingConfig{Format: "json", Level: "error"}, &out)
	require.NoError(t, err)

	log.Info("ignored")
	assert.Empty(t, strings.TrimSpace(out.String()))

	log.Error("kept")
	assert.Contains(t, out.String(), "kept")
}

func TestLoggerText(t *testing.T) {
	var out bytes.Buffer
	log, err := newWithWriter(assembly.LoggingConfig{}, &out)
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("shown", "transport", "memory")

	assert.NotContains(t, out.String(), "hidden")
	assert.Contains(t, out.String(), "shown")
	assert.Contains(t, out.String(), "memory")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{input: "", want: slog.LevelInfo},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: " warning ", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_UnsupportedFormat(t *testing.T) {
	_, err := New(assembly.LoggingConfig{Format: "xml"})
	assert.ErrorContains(t, err, "unsupported log format")
}
