// Package config loads process configuration from the environment
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	MinRefreshInterval     = 30 * time.Second
	MaxRefreshInterval     = time.Hour
	RefreshIntervalStep    = 30 * time.Second
	DefaultRefreshInterval = 60 * time.Second

	DefaultDBPath           = "data/nuclear.db"
	DefaultHTTPAddr         = ":8080"
	DefaultFetchConcurrency = 4
	DefaultLogLevel         = "info"
)

// ErrInvalidConfig is returned for any value that fails validation
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds everything both binaries read from the environment
type Config struct {
	RefreshInterval  time.Duration
	DBPath           string
	HTTPAddr         string // empty disables the read API
	PlantsFile       string // optional registry override
	FetchConcurrency int
	HAURL            string
	HAToken          string
	TelegramBotToken string
	OpenAIAPIKey     string
	LogLevel         string
}

// HomeAssistantEnabled reports whether both HA settings are present
func (c *Config) HomeAssistantEnabled() bool {
	return c.HAURL != "" && c.HAToken != ""
}

// Load reads an optional .env file and then the process environment.
// The returned bool is false when no .env file was found.
func Load() (*Config, bool, error) {
	dotenv := godotenv.Load() == nil
	cfg, err := FromLookup(os.LookupEnv)
	return cfg, dotenv, err
}

// FromLookup builds a Config from a lookup function shaped like os.LookupEnv
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok {
			return strings.TrimSpace(v)
		}
		return def
	}

	cfg := &Config{
		DBPath:           get("DB_PATH", DefaultDBPath),
		HTTPAddr:         get("HTTP_ADDR", DefaultHTTPAddr),
		PlantsFile:       get("PLANTS_FILE", ""),
		HAURL:            get("HA_URL", ""),
		HAToken:          get("HA_TOKEN", ""),
		TelegramBotToken: get("TELEGRAM_BOT_TOKEN", ""),
		OpenAIAPIKey:     get("OPENAI_API_KEY", ""),
		LogLevel:         strings.ToLower(get("LOG_LEVEL", DefaultLogLevel)),
	}
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}

	interval, err := ParseRefreshInterval(get("REFRESH_INTERVAL", ""))
	if err != nil {
		return nil, err
	}
	cfg.RefreshInterval = interval

	cfg.FetchConcurrency = DefaultFetchConcurrency
	if raw := get("FETCH_CONCURRENCY", ""); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("%w: FETCH_CONCURRENCY must be a positive integer, got %q", ErrInvalidConfig, raw)
		}
		cfg.FetchConcurrency = n
	}

	if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("%w: LOG_LEVEL %q", ErrInvalidConfig, cfg.LogLevel)
	}

	return cfg, nil
}

// ParseRefreshInterval parses a number of seconds; empty yields the default
func ParseRefreshInterval(raw string) (time.Duration, error) {
	if raw == "" {
		return DefaultRefreshInterval, nil
	}
	secs, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: REFRESH_INTERVAL must be a number of seconds, got %q", ErrInvalidConfig, raw)
	}
	d := time.Duration(secs) * time.Second
	if d < MinRefreshInterval || d > MaxRefreshInterval {
		return 0, fmt.Errorf("%w: REFRESH_INTERVAL %ds outside [%d, %d]",
			ErrInvalidConfig, secs, int(MinRefreshInterval.Seconds()), int(MaxRefreshInterval.Seconds()))
	}
	if d%RefreshIntervalStep != 0 {
		return 0, fmt.Errorf("%w: REFRESH_INTERVAL %ds is not a multiple of %d",
			ErrInvalidConfig, secs, int(RefreshIntervalStep.Seconds()))
	}
	return d, nil
}

// NewLogger builds a production zap logger at the given level
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("%w: LOG_LEVEL %q", ErrInvalidConfig, level)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}
