// Package config provides Viper-based configuration loading for the rollcast server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// HTTPConfig holds HTTP API listener settings.
type HTTPConfig struct {
	// Host is the bind address for the HTTP listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the HTTP listener.
	Port int `mapstructure:"port"`
	// ReadTimeout is the maximum duration for reading an entire request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration before timing out response writes.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the grace period for draining in-flight requests.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// DiceConfig holds dice engine settings.
type DiceConfig struct {
	// PoolSize is the number of pre-drawn secure random values kept ready.
	PoolSize int `mapstructure:"pool_size"`
	// PoolLowWater is the pool depth below which a background refill is scheduled.
	PoolLowWater int `mapstructure:"pool_low_water"`
	// TrackerWindow is the number of latency samples kept for percentile reporting.
	TrackerWindow int `mapstructure:"tracker_window"`
	// DifficultyFile is the path to the YAML table of named difficulty levels.
	// Empty means the built-in table is used.
	DifficultyFile string `mapstructure:"difficulty_file"`
}

// BroadcastConfig holds delivery cache and janitor settings.
type BroadcastConfig struct {
	// LedgerCapacity is the per-session bound on retained roll results.
	LedgerCapacity int `mapstructure:"ledger_capacity"`
	// QueueCapacity bounds the fire-and-forget side-effect queue.
	QueueCapacity int `mapstructure:"queue_capacity"`
	// JanitorInterval is how often stale-session sweeps run.
	JanitorInterval time.Duration `mapstructure:"janitor_interval"`
	// SessionTTL is the inactivity threshold after which a session is evicted.
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	// BroadcastMaxAge is the maximum age of queued broadcast records.
	BroadcastMaxAge time.Duration `mapstructure:"broadcast_max_age"`
}

// DatabaseConfig holds PostgreSQL connection settings for roll history.
type DatabaseConfig struct {
	// Enabled toggles the fire-and-forget roll history writer. When false the
	// engine runs purely in memory.
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	Dice      DiceConfig      `mapstructure:"dice"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateHTTP(c.HTTP); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateDice(c.Dice); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateBroadcast(c.Broadcast); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Database.Enabled {
		if err := validateDatabase(c.Database); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateHTTP(h HTTPConfig) error {
	var errs []string
	if h.Port < 1 || h.Port > 65535 {
		errs = append(errs, fmt.Sprintf("http.port must be 1-65535, got %d", h.Port))
	}
	if h.ReadTimeout < 0 {
		errs = append(errs, "http.read_timeout must not be negative")
	}
	if h.WriteTimeout < 0 {
		errs = append(errs, "http.write_timeout must not be negative")
	}
	if h.ShutdownTimeout < 0 {
		errs = append(errs, "http.shutdown_timeout must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateDice(d DiceConfig) error {
	var errs []string
	if d.PoolSize < 1 {
		errs = append(errs, fmt.Sprintf("dice.pool_size must be >= 1, got %d", d.PoolSize))
	}
	if d.PoolLowWater < 0 {
		errs = append(errs, fmt.Sprintf("dice.pool_low_water must be >= 0, got %d", d.PoolLowWater))
	}
	if d.PoolLowWater >= d.PoolSize {
		errs = append(errs, "dice.pool_low_water must be less than dice.pool_size")
	}
	if d.TrackerWindow < 1 {
		errs = append(errs, fmt.Sprintf("dice.tracker_window must be >= 1, got %d", d.TrackerWindow))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateBroadcast(b BroadcastConfig) error {
	var errs []string
	if b.LedgerCapacity < 1 {
		errs = append(errs, fmt.Sprintf("broadcast.ledger_capacity must be >= 1, got %d", b.LedgerCapacity))
	}
	if b.QueueCapacity < 1 {
		errs = append(errs, fmt.Sprintf("broadcast.queue_capacity must be >= 1, got %d", b.QueueCapacity))
	}
	if b.JanitorInterval <= 0 {
		errs = append(errs, "broadcast.janitor_interval must be positive")
	}
	if b.SessionTTL <= 0 {
		errs = append(errs, "broadcast.session_ttl must be positive")
	}
	if b.BroadcastMaxAge <= 0 {
		errs = append(errs, "broadcast.broadcast_max_age must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with ROLLCAST_ prefix
	v.SetEnvPrefix("ROLLCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	if v == nil {
		return Config{}, errors.New("nil viper instance")
	}

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)
	v.SetDefault("http.shutdown_timeout", 15*time.Second)

	v.SetDefault("dice.pool_size", 10000)
	v.SetDefault("dice.pool_low_water", 100)
	v.SetDefault("dice.tracker_window", 1000)
	v.SetDefault("dice.difficulty_file", "")

	v.SetDefault("broadcast.ledger_capacity", 100)
	v.SetDefault("broadcast.queue_capacity", 1024)
	v.SetDefault("broadcast.janitor_interval", 5*time.Minute)
	v.SetDefault("broadcast.session_ttl", 30*time.Minute)
	v.SetDefault("broadcast.broadcast_max_age", time.Hour)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "rollcast")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "rollcast")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", time.Hour)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
