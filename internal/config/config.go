// Package config loads worker configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/arknettransit/dutyplan/internal/database"
	"github.com/arknettransit/dutyplan/internal/timespan"
)

// Config holds everything cmd/worker needs to start.
type Config struct {
	Env      string
	Port     string
	LogLevel zerolog.Level

	Database database.Config

	NATSURL  string
	NATSName string

	PubSubProjectID    string
	PubSubSubscription string

	TelemetryEnabled bool
	OTLPEndpoint     string
	TraceSampleRatio float64

	// WorkerConcurrency bounds parallel block validation.
	WorkerConcurrency int
	// BlockTimeout limits the time spent validating one block.
	BlockTimeout time.Duration

	// CountryID scopes imports and validation runs.
	CountryID   string
	GTFSFeedURL string
	// ServiceDayStart is the clock time a service day begins at. GTFS
	// clock times before it belong to the previous service day.
	ServiceDayStart timespan.Seconds

	Location *time.Location
}

// Load reads envFile (or .env when empty and present) into the process
// environment, then builds a Config from environment variables.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{
		Env:                getEnvOrDefault("APP_ENV", "development"),
		Port:               getEnvOrDefault("APP_PORT", "8080"),
		Database:           database.ConfigFromEnv(),
		NATSURL:            os.Getenv("NATS_URL"),
		NATSName:           getEnvOrDefault("NATS_CLIENT_NAME", "dutyplan-worker"),
		PubSubProjectID:    os.Getenv("PUBSUB_PROJECT_ID"),
		PubSubSubscription: getEnvOrDefault("PUBSUB_SUBSCRIPTION", "dutyplan-validate"),
		OTLPEndpoint:       getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		CountryID:          strings.ToLower(os.Getenv("COUNTRY_ID")),
		GTFSFeedURL:        os.Getenv("GTFS_FEED_URL"),
	}

	level, err := zerolog.ParseLevel(getEnvOrDefault("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q", os.Getenv("LOG_LEVEL"))
	}
	cfg.LogLevel = level

	if cfg.TelemetryEnabled, err = parseBool("OTEL_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.TraceSampleRatio, err = ratio("OTEL_TRACE_SAMPLE_RATIO", 1); err != nil {
		return nil, err
	}
	if cfg.WorkerConcurrency, err = positiveInt("WORKER_CONCURRENCY", 4); err != nil {
		return nil, err
	}

	timeoutSec, err := positiveInt("BLOCK_TIMEOUT_SEC", 10)
	if err != nil {
		return nil, err
	}
	cfg.BlockTimeout = time.Duration(timeoutSec) * time.Second

	start := getEnvOrDefault("SERVICE_DAY_START", "04:00")
	if cfg.ServiceDayStart, err = timespan.ParseClock(start); err != nil || cfg.ServiceDayStart >= timespan.Day {
		return nil, fmt.Errorf("invalid SERVICE_DAY_START: %q", start)
	}

	tz := getEnvOrDefault("TZ", "UTC")
	if cfg.Location, err = time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("invalid TZ: %q", tz)
	}

	return cfg, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid %s: %q", key, v)
}

func positiveInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func ratio(key string, defaultValue float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 || f > 1 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return f, nil
}
