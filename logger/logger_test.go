package logger_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/config"
	"github.com/warp/payroll-engine/logger"
)

func TestNew_WritesToFile(t *testing.T) {
	// GIVEN: A JSON logger with a rotating file
	path := filepath.Join(t.TempDir(), "payroll.log")
	log, err := logger.New(config.LogConfig{Level: "info", Format: "json", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	// WHEN: Logging above and below the level
	log.Info("weekly run finished")
	log.Debug("hidden")
	_ = log.Sync()

	// THEN: Only the info entry reaches the file
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "weekly run finished")
	assert.NotContains(t, string(data), "hidden")
}

func TestNew_Console(t *testing.T) {
	log, err := logger.New(config.LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(-1)) // debug
}

func TestNew_BadLevel(t *testing.T) {
	_, err := logger.New(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}
