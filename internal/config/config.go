// Package config centralizes all application configuration into typed structs.
//
// Go Learning Note (Configuration Management):
// Go projects typically manage configuration in one of these ways:
//  1. Struct literals with defaults
//  2. Environment variables via os.Getenv() or "github.com/kelseyhightower/envconfig"
//  3. Config files (YAML/TOML) via "github.com/spf13/viper"
//  4. Command-line flags via the standard "flag" package
//
// This package combines the first two: NewDefaultConfig holds the defaults as
// a struct literal and Load overlays whatever BOOKING_* variables are set.
// Typed structs (not raw strings/maps) give compile-time safety and IDE
// autocompletion.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"

	"booking/pkg/logger"
)

// EnvPrefix namespaces every variable, e.g. BOOKING_SERVER_PORT or
// BOOKING_LIBRARY_MAXBOOKS.
const EnvPrefix = "BOOKING"

// Config is the top-level configuration container. Grouping related settings
// into sub-structs keeps the config organized as the application grows.
//
// Go Learning Note (Struct Composition):
// Go doesn't have classes or inheritance. Instead, you compose structs by
// embedding or nesting them. Here Config "has a" ServerConfig, LibraryConfig,
// etc. envconfig walks the same nesting to build variable names, so the
// struct layout is also the environment layout.
type Config struct {
	Server  ServerConfig
	Library LibraryConfig
	Pricing PricingConfig
	Geo     GeoConfig
	Notify  NotifyConfig
	Log     logger.Log
}

// ServerConfig holds HTTP server settings.
//
// Go Learning Note (time.Duration):
// Go uses time.Duration (an int64 of nanoseconds) instead of raw integers for
// timeouts and intervals. envconfig parses values such as "10s" or "250ms"
// with time.ParseDuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT"`
	RateLimitRPS    float64       `envconfig:"RATE_LIMIT_RPS"`
	RateLimitBurst  int           `envconfig:"RATE_LIMIT_BURST"`
}

// LibraryConfig holds the circulation rules.
type LibraryConfig struct {
	MaxBooksPerMember int           `envconfig:"MAX_BOOKS"`
	LendingPeriod     time.Duration `envconfig:"LENDING_PERIOD"`
	FinePerDay        float64       `envconfig:"FINE_PER_DAY"`
}

// PricingConfig defines the fare calculation parameters.
// Fare = (BaseFare + DistanceKm*PerKmRate + DurationMins*PerMinuteRate) * Multipliers[class]
// Each term and the total are rounded to two decimals.
type PricingConfig struct {
	BaseFare        float64            `envconfig:"BASE_FARE"`
	PerKmRate       float64            `envconfig:"PER_KM"`
	PerMinuteRate   float64            `envconfig:"PER_MINUTE"`
	AverageSpeedKmH float64            `envconfig:"AVERAGE_SPEED"`
	Multipliers     map[string]float64 `envconfig:"MULTIPLIERS"`
}

// GeoConfig controls geohash encoding precision. Precision 6 ≈ 1.2 km cells,
// precision 7 ≈ 150 m cells. Higher precision means smaller cells and more
// accurate proximity queries, but requires scanning more neighboring cells.
type GeoConfig struct {
	GeohashPrecision int     `envconfig:"GEOHASH_PRECISION"`
	SearchRadiusKm   float64 `envconfig:"SEARCH_RADIUS_KM"`
}

// NotifyConfig sizes the notification dispatcher. KafkaBrokers is optional;
// when empty, events are only logged.
type NotifyConfig struct {
	BufferSize   int      `envconfig:"BUFFER_SIZE"`
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC"`
}

// NewDefaultConfig returns a Config populated with sensible defaults.
//
// Go Learning Note (Constructor Functions):
// Go has no constructors. By convention, New<Type>() functions serve the same
// purpose. They return a pointer (*Config) so the caller gets a reference to
// shared, mutable state. Returning a value type would copy the struct on every
// assignment, which is fine for small immutable data but wasteful for large
// config objects that get passed around.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			RateLimitRPS:    100,
			RateLimitBurst:  20,
		},
		Library: LibraryConfig{
			MaxBooksPerMember: 5,
			LendingPeriod:     10 * 24 * time.Hour,
			FinePerDay:        1.00,
		},
		Pricing: PricingConfig{
			BaseFare:        2.00,
			PerKmRate:       1.50,
			PerMinuteRate:   0.30,
			AverageSpeedKmH: 30,
			Multipliers: map[string]float64{
				"economy": 1.0,
				"xl":      1.5,
				"black":   2.0,
				"pool":    0.8,
			},
		},
		Geo: GeoConfig{
			GeohashPrecision: 6,
			SearchRadiusKm:   5.0,
		},
		Notify: NotifyConfig{
			BufferSize: 256,
			KafkaTopic: "booking.events",
		},
		Log: logger.Log{
			LogLevel: zapcore.InfoLevel,
		},
	}
}

// Load reads an optional .env file and overlays BOOKING_* variables on the
// defaults. Unset variables keep their default value.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, errors.Wrapf(err, "load %s", f)
		}
	}

	cfg := NewDefaultConfig()
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, errors.Wrap(err, "process env")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Library.MaxBooksPerMember < 1:
		return errors.Errorf("library max books must be positive, got %d", c.Library.MaxBooksPerMember)
	case c.Library.LendingPeriod <= 0:
		return errors.Errorf("library lending period must be positive, got %s", c.Library.LendingPeriod)
	case c.Library.FinePerDay < 0:
		return errors.Errorf("fine per day must not be negative, got %v", c.Library.FinePerDay)
	case c.Geo.GeohashPrecision < 1 || c.Geo.GeohashPrecision > 12:
		return errors.Errorf("geohash precision out of range: %d", c.Geo.GeohashPrecision)
	case c.Notify.BufferSize < 1:
		return errors.Errorf("notify buffer must be positive, got %d", c.Notify.BufferSize)
	}
	for class, m := range c.Pricing.Multipliers {
		if m <= 0 {
			return errors.Errorf("multiplier for %s must be positive, got %v", class, m)
		}
	}
	return nil
}
