package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// SupportedProvider is the only geocoding provider this job talks to.
const SupportedProvider = "mapbox"

// Fixed run parameters, not read from the environment.
const (
	BatchSize       = 1000
	MaxAttempts     = 4
	BackoffBase     = 1500 * time.Millisecond
	RequestInterval = time.Second
	CountryName     = "Australia"
	CountryFilter   = "au"
)

var (
	// ErrMissingDatabaseURL is returned when DATABASE_URL is unset.
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is not set")

	// ErrUnsupportedProvider is returned when GEOCODE_PROVIDER is not mapbox.
	ErrUnsupportedProvider = errors.New("unsupported geocode provider")
)

// Config holds all backfill settings, populated from environment variables.
// It is built once at startup and passed by pointer to each component.
type Config struct {
	DatabaseURL     string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Geocoding provider configuration.
	Provider        string
	MapboxToken     string
	MapboxTimeout   time.Duration
	MapboxCacheSize int

	// Optional post-commit publication and metrics push.
	KafkaBrokers   []string
	KafkaTopic     string
	PushgatewayURL string
}

// Load reads configuration from environment variables, applying defaults
// where unset. It fails before any I/O when the database target is missing
// or the provider is not supported.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	mapboxTimeoutStr := sharedcfg.EnvOrDefault("MAPBOX_TIMEOUT", "20s")
	mapboxTimeout, err := time.ParseDuration(mapboxTimeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid MAPBOX_TIMEOUT %q: %w", mapboxTimeoutStr, err)
	}
	if mapboxTimeout <= 0 {
		return nil, fmt.Errorf("invalid MAPBOX_TIMEOUT %q: must be positive", mapboxTimeoutStr)
	}

	mapboxCacheSize, err := parseMapboxCacheSize()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:     strings.TrimSpace(os.Getenv("DATABASE_URL")),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		Provider:        strings.ToLower(strings.TrimSpace(sharedcfg.EnvOrDefault("GEOCODE_PROVIDER", SupportedProvider))),
		MapboxToken:     strings.TrimSpace(os.Getenv("GEOCODE_API_KEY")),
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: mapboxCacheSize,

		KafkaBrokers:   parseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:     sharedcfg.EnvOrDefault("KAFKA_TOPIC", "geocode-updates"),
		PushgatewayURL: os.Getenv("PUSHGATEWAY_URL"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings a run cannot start without.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	if c.Provider != SupportedProvider {
		return fmt.Errorf("%w: GEOCODE_PROVIDER=%q, only %q is supported", ErrUnsupportedProvider, c.Provider, SupportedProvider)
	}
	return nil
}

// PublishEnabled reports whether coordinate updates go to Kafka after commit.
func (c *Config) PublishEnabled() bool {
	return len(c.KafkaBrokers) > 0 && c.KafkaTopic != ""
}

func parseBrokers(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return sharedcfg.ParseBrokers(s)
}

func parseMapboxCacheSize() (int, error) {
	s := strings.TrimSpace(os.Getenv("MAPBOX_CACHE_SIZE"))
	if s == "" {
		return 1000, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid MAPBOX_CACHE_SIZE %q: %w", s, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid MAPBOX_CACHE_SIZE %q: must be positive", s)
	}
	return n, nil
}
