// Package config loads service configuration from a yaml file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// RemoteConfig holds the base URLs of the peer services.
type RemoteConfig struct {
	IdentityURL string `yaml:"identity_url"`
	CatalogURL  string `yaml:"catalog_url"`
	TaggingURL  string `yaml:"tagging_url"`
}

// RateLimitConfig holds per-actor rate limiting settings.
type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	Burst             int `yaml:"burst"`
}

// AuditConfig holds audit ring settings.
type AuditConfig struct {
	Max  int    `yaml:"max"`
	File string `yaml:"file"`
}

// Config is the full service configuration.
type Config struct {
	ListenAddr               string          `yaml:"listen_addr"`
	DatabaseURL              string          `yaml:"database_url"`
	AuthPublicKeyFile        string          `yaml:"auth_public_key_file"`
	ServiceAuthPublicKeyFile string          `yaml:"service_auth_public_key_file"`
	AllowedServices          []string        `yaml:"allowed_services"`
	AllowedOrigins           []string        `yaml:"allowed_origins"`
	Remotes                  RemoteConfig    `yaml:"remotes"`
	RateLimit                RateLimitConfig `yaml:"rate_limit"`
	Audit                    AuditConfig     `yaml:"audit"`
}

// Default returns the configuration used when no file or overrides are
// present. An empty DatabaseURL selects the in-memory store.
func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		RateLimit:  RateLimitConfig{RequestsPerSecond: 50, Burst: 100},
		Audit:      AuditConfig{Max: 200},
	}
}

// Load reads the yaml file at path (if it exists), then applies
// environment overrides. A .env file in the working directory is loaded
// first, matching local development setups.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// Config file is optional; env and defaults cover everything.
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.RateLimit.RequestsPerSecond <= 0 {
		return nil, fmt.Errorf("rate_limit.requests_per_second must be positive")
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = cfg.RateLimit.RequestsPerSecond
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.ListenAddr, "LISTEN_ADDR")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.AuthPublicKeyFile, "AUTH_PUBLIC_KEY_FILE")
	setString(&cfg.ServiceAuthPublicKeyFile, "SERVICE_AUTH_PUBLIC_KEY_FILE")
	setString(&cfg.Remotes.IdentityURL, "IDENTITY_URL")
	setString(&cfg.Remotes.CatalogURL, "CATALOG_URL")
	setString(&cfg.Remotes.TaggingURL, "TAGGING_URL")
	setString(&cfg.Audit.File, "AUDIT_FILE")
	setInt(&cfg.Audit.Max, "AUDIT_MAX")
	setInt(&cfg.RateLimit.RequestsPerSecond, "RATE_LIMIT_RPS")
	setInt(&cfg.RateLimit.Burst, "RATE_LIMIT_BURST")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}
