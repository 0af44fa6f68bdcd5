package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"

	"github.com/Axmae/ambulance-management/internal/localstate"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Storage drivers for the per-profile key/value container.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverS3       = "s3"
)

// Config holds the configuration for the admin service.
// Environment variables are parsed from the AMBULANCE_ADMIN_ prefix.
type Config struct {
	// Build target selects high-level environment: local, demo, cloud
	BuildTarget string `envconfig:"BUILD_TARGET" default:"local"`

	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string      `envconfig:"LOG_LEVEL" default:"info"`

	// HTTP Configuration
	HTTPPort      int    `envconfig:"HTTP_PORT" default:"8080"`
	ProfileCookie string `envconfig:"PROFILE_COOKIE" default:"ambulance_profile"`
	LiveUpdates   bool   `envconfig:"LIVE_UPDATES" default:"true"`

	// Storage; "auto" derives the driver from BuildTarget
	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"auto"`
	SQLitePath    string `envconfig:"SQLITE_PATH" default:""`
	FileDir       string `envconfig:"FILE_DIR" default:""`
	PostgresDSN   string `envconfig:"POSTGRES_DSN" default:""`

	S3Bucket    string `envconfig:"S3_BUCKET" default:""`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Endpoint  string `envconfig:"S3_ENDPOINT" default:""`
	S3PathStyle bool   `envconfig:"S3_PATH_STYLE" default:"false"`
	S3Prefix    string `envconfig:"S3_PREFIX" default:"profiles/"`

	// Seed document: "embedded", a file path, or an http(s) URL
	SeedSource         string `envconfig:"SEED_SOURCE" default:"embedded"`
	SeedTimeoutSeconds int    `envconfig:"SEED_TIMEOUT_SECONDS" default:"5"`

	// Admin allowlist entries "identity:secret:role"; empty keeps the built-in demo accounts
	AdminCredentials []string `envconfig:"ADMIN_CREDENTIALS"`

	DefaultLanguage  string `envconfig:"DEFAULT_LANGUAGE" default:"fr"`
	DefaultTheme     string `envconfig:"DEFAULT_THEME" default:"light"`
	ProfileCacheSize int    `envconfig:"PROFILE_CACHE_SIZE" default:"256"`

	// Health
	HealthIntervalSeconds     int `envconfig:"HEALTH_INTERVAL_SECONDS" default:"30"`
	HealthProbeTimeoutSeconds int `envconfig:"HEALTH_PROBE_TIMEOUT_SECONDS" default:"2"`
}

// ResolveDefaults validates BuildTarget and derives StorageDriver when set to "auto" or empty.
func (c *Config) ResolveDefaults() error {
	var defaultDriver string

	switch c.BuildTarget {
	case "local":
		defaultDriver = DriverSQLite
	case "demo":
		defaultDriver = DriverMemory
	case "cloud":
		defaultDriver = DriverPostgres
	default:
		return fmt.Errorf("unsupported BUILD_TARGET: %s", c.BuildTarget)
	}

	if c.StorageDriver == "" || c.StorageDriver == "auto" {
		c.StorageDriver = defaultDriver
	}

	switch c.StorageDriver {
	case DriverMemory, DriverPostgres:
	case DriverSQLite:
		if c.SQLitePath == "" {
			p, err := localstate.DBPath()
			if err != nil {
				return err
			}
			c.SQLitePath = p
		}
	case DriverFile:
		if c.FileDir == "" {
			d, err := localstate.FilesDir()
			if err != nil {
				return err
			}
			c.FileDir = d
		}
	case DriverS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when STORAGE_DRIVER=s3")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER: %s", c.StorageDriver)
	}

	switch c.DefaultTheme {
	case "light", "dark":
	default:
		return fmt.Errorf("unsupported DEFAULT_THEME: %s", c.DefaultTheme)
	}
	c.DefaultLanguage = strings.ToLower(c.DefaultLanguage)
	if c.ProfileCacheSize <= 0 {
		c.ProfileCacheSize = 256
	}
	return nil
}

// New creates a new Config by parsing environment variables
// Environment variables should be prefixed with AMBULANCE_ADMIN_
// Example: AMBULANCE_ADMIN_HTTP_PORT, AMBULANCE_ADMIN_STORAGE_DRIVER
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("AMBULANCE_ADMIN", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("storage_driver", cfg.StorageDriver).
		Str("environment", string(cfg.Environment)).
		Int("port", cfg.HTTPPort).
		Str("seed_source", cfg.SeedSource).
		Bool("postgres_dsn_present", cfg.PostgresDSN != "").
		Int("admin_credentials", len(cfg.AdminCredentials)).
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config specifically for testing
func NewForTesting() *Config {
	return &Config{
		BuildTarget:               "demo",
		Environment:               EnvTesting,
		LogLevel:                  "debug",
		HTTPPort:                  8080,
		ProfileCookie:             "ambulance_profile",
		StorageDriver:             DriverMemory,
		SeedSource:                "embedded",
		SeedTimeoutSeconds:        1,
		DefaultLanguage:           "fr",
		DefaultTheme:              "light",
		ProfileCacheSize:          16,
		HealthIntervalSeconds:     1,
		HealthProbeTimeoutSeconds: 1,
	}
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
