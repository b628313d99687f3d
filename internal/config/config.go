package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for our application
type Config struct {
	DiscordToken string
	DatabaseDSN  string

	LogLevel      string
	MetricsAddr   string
	CommandPrefix string

	// ReconcileInterval is the period between sweeps; zero disables them.
	ReconcileInterval   time.Duration
	StartupSweepTimeout time.Duration
	StoreTimeout        time.Duration
	DispatchWorkers     int
	SweepConcurrency    int
	PruneOrphans        bool

	AnalyticsTrackingID string
	OTLPEndpoint        string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// .env file is optional, continue with environment variables
	_ = godotenv.Load()

	config := &Config{
		DiscordToken:        os.Getenv("DISCORD_TOKEN"),
		DatabaseDSN:         os.Getenv("DATABASE_DSN"),
		LogLevel:            getEnvDefault("LOG_LEVEL", "info"),
		MetricsAddr:         getEnvDefault("METRICS_ADDR", ":9090"),
		CommandPrefix:       getEnvDefault("COMMAND_PREFIX", "!"),
		AnalyticsTrackingID: os.Getenv("GA_TRACKING_ID"),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if config.DiscordToken == "" {
		return nil, &ConfigError{Field: "DISCORD_TOKEN", Message: "DISCORD_TOKEN is required"}
	}

	if config.DatabaseDSN == "" {
		return nil, &ConfigError{Field: "DATABASE_DSN", Message: "DATABASE_DSN is required"}
	}

	var err error
	if config.ReconcileInterval, err = durationEnv("RECONCILE_INTERVAL", 15*time.Minute, true); err != nil {
		return nil, err
	}
	if config.StartupSweepTimeout, err = durationEnv("STARTUP_SWEEP_TIMEOUT", 30*time.Second, false); err != nil {
		return nil, err
	}
	if config.StoreTimeout, err = durationEnv("STORE_TIMEOUT", 5*time.Second, false); err != nil {
		return nil, err
	}
	if config.DispatchWorkers, err = positiveIntEnv("DISPATCH_WORKERS", 8); err != nil {
		return nil, err
	}
	if config.SweepConcurrency, err = positiveIntEnv("SWEEP_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if s := os.Getenv("PRUNE_ORPHANED_SESSIONS"); s != "" {
		b, perr := strconv.ParseBool(s)
		if perr != nil {
			return nil, &ConfigError{Field: "PRUNE_ORPHANED_SESSIONS", Message: "PRUNE_ORPHANED_SESSIONS must be a boolean"}
		}
		config.PruneOrphans = b
	}

	return config, nil
}

func getEnvDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// durationEnv parses a Go duration. Zero is accepted only when allowZero is set.
func durationEnv(key string, def time.Duration, allowZero bool) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		return 0, &ConfigError{Field: key, Message: key + " must be a valid positive duration"}
	}
	return d, nil
}

func positiveIntEnv(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, &ConfigError{Field: key, Message: key + " must be a positive integer"}
	}
	return n, nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
