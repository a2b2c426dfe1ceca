package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, DefaultRefreshInterval, cfg.RefreshInterval)
	assert.Equal(t, DefaultDBPath, cfg.DBPath)
	assert.Equal(t, DefaultHTTPAddr, cfg.HTTPAddr)
	assert.Equal(t, DefaultFetchConcurrency, cfg.FetchConcurrency)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.HomeAssistantEnabled())
}

func TestExplicitValues(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"REFRESH_INTERVAL":  "300",
		"DB_PATH":           "/tmp/x.db",
		"HTTP_ADDR":         "",
		"PLANTS_FILE":       "plants.yaml",
		"FETCH_CONCURRENCY": "2",
		"HA_URL":            "ws://ha:8123/api/websocket",
		"HA_TOKEN":          "secret",
		"LOG_LEVEL":         "DEBUG",
	}))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.RefreshInterval)
	assert.Equal(t, "/tmp/x.db", cfg.DBPath)
	assert.Empty(t, cfg.HTTPAddr, "explicitly empty address disables the API")
	assert.Equal(t, "plants.yaml", cfg.PlantsFile)
	assert.Equal(t, 2, cfg.FetchConcurrency)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.HomeAssistantEnabled())
}

func TestParseRefreshInterval(t *testing.T) {
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "", want: time.Minute},
		{raw: "30", want: 30 * time.Second},
		{raw: "3600", want: time.Hour},
		{raw: "90", want: 90 * time.Second},
		{raw: "29", wantErr: true},
		{raw: "3630", wantErr: true},
		{raw: "45", wantErr: true},
		{raw: "0", wantErr: true},
		{raw: "-60", wantErr: true},
		{raw: "1m", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseRefreshInterval(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInvalidValues(t *testing.T) {
	tests := map[string]map[string]string{
		"interval":    {"REFRESH_INTERVAL": "15"},
		"concurrency": {"FETCH_CONCURRENCY": "0"},
		"not number":  {"FETCH_CONCURRENCY": "many"},
		"log level":   {"LOG_LEVEL": "verbose"},
	}

	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := FromLookup(lookupFrom(env))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("warn")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	_, err = NewLogger("loud")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
