package log_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/dukex/agendaflow/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() {
		slog.SetDefault(previous)
	})

	tests := []struct {
		level   string
		enabled slog.Level
		hidden  slog.Level
	}{
		{"debug", slog.LevelDebug, slog.LevelDebug - 1},
		{"WARN", slog.LevelWarn, slog.LevelInfo},
		{"error", slog.LevelError, slog.LevelWarn},
		{"bogus", slog.LevelInfo, slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			log.Setup(tt.level, log.FormatText)

			handler := slog.Default().Handler()
			assert.True(t, handler.Enabled(context.Background(), tt.enabled))
			assert.False(t, handler.Enabled(context.Background(), tt.hidden))
		})
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer

	logger := log.New(&buf, "info", log.FormatJSON)
	logger.Info("execution proposed", "execution_id", "exec-1")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "execution proposed", record["msg"])
	assert.Equal(t, "exec-1", record["execution_id"])
}

func TestNew_TextByDefault(t *testing.T) {
	var buf bytes.Buffer

	log.New(&buf, "info", "").Info("hello")

	assert.Contains(t, buf.String(), "msg=hello")
}

func TestWithModule(t *testing.T) {
	assert.NotNil(t, log.WithModule("executor"))
}
