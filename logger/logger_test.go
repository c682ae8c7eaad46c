package logger

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gtarp/main_backend/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestInitJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portal.log")
	require.NoError(t, Init(config.LoggerConfig{Level: "info", Format: "json", OutputPath: path}))
	t.Cleanup(func() { base = nil })

	WithComponent("workflow").Info("application reviewed", "application_id", "a1")
	WithComponent("workflow").Debug("dropped")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(data, &line))
	assert.Equal(t, "application reviewed", line["msg"])
	assert.Equal(t, "workflow", line["component"])
	assert.Equal(t, "a1", line["application_id"])
}
