package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arknettransit/dutyplan/internal/config"
	"github.com/arknettransit/dutyplan/internal/timespan"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{
		"APP_ENV", "LOG_LEVEL", "OTEL_ENABLED", "WORKER_CONCURRENCY",
		"BLOCK_TIMEOUT_SEC", "SERVICE_DAY_START", "TZ", "NATS_URL", "OTEL_TRACE_SAMPLE_RATIO",
	} {
		t.Setenv(key, "")
	}

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel)
	assert.False(t, cfg.TelemetryEnabled)
	assert.InDelta(t, 1.0, cfg.TraceSampleRatio, 0)
	assert.Equal(t, 4, cfg.WorkerConcurrency)
	assert.Equal(t, 10*time.Second, cfg.BlockTimeout)
	assert.Equal(t, timespan.Clock(4, 0, 0), cfg.ServiceDayStart)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.Equal(t, "dutyplan", cfg.Database.Database)
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "worker.env")
	require.NoError(t, os.WriteFile(path, []byte("WORKER_CONCURRENCY=9\nSERVICE_DAY_START=03:30\nOTEL_ENABLED=yes\nCOUNTRY_ID=ZM\n"), 0o600))
	for _, key := range []string{"WORKER_CONCURRENCY", "SERVICE_DAY_START", "OTEL_ENABLED", "COUNTRY_ID"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.WorkerConcurrency)
	assert.Equal(t, timespan.Clock(3, 30, 0), cfg.ServiceDayStart)
	assert.True(t, cfg.TelemetryEnabled)
	assert.Equal(t, "zm", cfg.CountryID)

	_, err = config.Load(filepath.Join(dir, "missing.env"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"WORKER_CONCURRENCY", "0"},
		{"WORKER_CONCURRENCY", "many"},
		{"BLOCK_TIMEOUT_SEC", "-5"},
		{"OTEL_ENABLED", "maybe"},
		{"OTEL_TRACE_SAMPLE_RATIO", "1.5"},
		{"SERVICE_DAY_START", "25:00"},
		{"SERVICE_DAY_START", "4am"},
		{"LOG_LEVEL", "loud"},
		{"TZ", "Mars/Olympus"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv(tt.key, tt.value)
			_, err := config.Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}
