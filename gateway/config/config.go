// Package config holds the read gateway's listener, middleware and auth
// settings. It is embedded in the daemon configuration under "gateway".
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultListen         = ":8645"
	DefaultReadTimeout    = 15 * time.Second
	DefaultWriteTimeout   = 30 * time.Second
	DefaultIdleTimeout    = 120 * time.Second
	DefaultRequestTimeout = 10 * time.Second
	DefaultClockSkew      = 2 * time.Minute
)

var ErrAuthSecretMissing = errors.New("gateway.auth.hmacSecret required when auth is enabled")

type RateLimitConfig struct {
	// RequestsPerSecond per client address; 0 disables limiting.
	RequestsPerSecond float64 `yaml:"requestsPerSecond" toml:"requestsPerSecond"`
	Burst             int     `yaml:"burst" toml:"burst"`
}

type ObservabilityConfig struct {
	Metrics       bool   `yaml:"metrics" toml:"metrics"`
	Tracing       bool   `yaml:"tracing" toml:"tracing"`
	LogRequests   bool   `yaml:"logRequests" toml:"logRequests"`
	MetricsPrefix string `yaml:"metricsPrefix" toml:"metricsPrefix"`
}

type AuthConfig struct {
	Enabled    bool   `yaml:"enabled" toml:"enabled"`
	HMACSecret string `yaml:"hmacSecret" toml:"hmacSecret"`
	Issuer     string `yaml:"issuer" toml:"issuer"`
	Audience   string `yaml:"audience" toml:"audience"`
	ScopeClaim string `yaml:"scopeClaim" toml:"scopeClaim"`
	// AnonymousPaths are path prefixes served without a token.
	AnonymousPaths []string      `yaml:"anonymousPaths" toml:"anonymousPaths"`
	ClockSkew      time.Duration `yaml:"clockSkew" toml:"clockSkew"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins" toml:"allowedOrigins"`
}

type Config struct {
	Listen         string              `yaml:"listen" toml:"listen"`
	ReadTimeout    time.Duration       `yaml:"readTimeout" toml:"readTimeout"`
	WriteTimeout   time.Duration       `yaml:"writeTimeout" toml:"writeTimeout"`
	IdleTimeout    time.Duration       `yaml:"idleTimeout" toml:"idleTimeout"`
	RequestTimeout time.Duration       `yaml:"requestTimeout" toml:"requestTimeout"`
	RateLimit      RateLimitConfig     `yaml:"rateLimit" toml:"rateLimit"`
	Observability  ObservabilityConfig `yaml:"observability" toml:"observability"`
	Auth           AuthConfig          `yaml:"auth" toml:"auth"`
	CORS           CORSConfig          `yaml:"cors" toml:"cors"`
}

// Default returns the gateway configuration applied before a file is decoded.
func Default() Config {
	return Config{
		Listen:         DefaultListen,
		ReadTimeout:    DefaultReadTimeout,
		WriteTimeout:   DefaultWriteTimeout,
		IdleTimeout:    DefaultIdleTimeout,
		RequestTimeout: DefaultRequestTimeout,
		RateLimit:      RateLimitConfig{RequestsPerSecond: 10, Burst: 20},
		Observability: ObservabilityConfig{
			Metrics:       true,
			Tracing:       true,
			MetricsPrefix: "trovekit_gateway",
		},
		Auth: AuthConfig{
			ScopeClaim:     "scope",
			AnonymousPaths: []string{"/healthz", "/metrics"},
			ClockSkew:      DefaultClockSkew,
		},
	}
}

// Normalize fills zero values left by a partial file.
func (cfg *Config) Normalize() {
	if cfg == nil {
		return
	}
	defaults := Default()
	cfg.Listen = strings.TrimSpace(cfg.Listen)
	if cfg.Listen == "" {
		cfg.Listen = defaults.Listen
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaults.IdleTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaults.RequestTimeout
	}
	if cfg.RateLimit.RequestsPerSecond > 0 && cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 1
	}
	if cfg.Observability.MetricsPrefix == "" {
		cfg.Observability.MetricsPrefix = defaults.Observability.MetricsPrefix
	}
	if cfg.Auth.ScopeClaim == "" {
		cfg.Auth.ScopeClaim = defaults.Auth.ScopeClaim
	}
	if cfg.Auth.ClockSkew <= 0 {
		cfg.Auth.ClockSkew = defaults.Auth.ClockSkew
	}
	cfg.Auth.HMACSecret = strings.TrimSpace(cfg.Auth.HMACSecret)
	for i, path := range cfg.Auth.AnonymousPaths {
		cfg.Auth.AnonymousPaths[i] = strings.TrimSpace(path)
	}
}

// Validate reports the first invalid setting.
func (cfg Config) Validate() error {
	if cfg.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("gateway.rateLimit.requestsPerSecond must not be negative")
	}
	if cfg.Auth.Enabled && cfg.Auth.HMACSecret == "" {
		return ErrAuthSecretMissing
	}
	for i, path := range cfg.Auth.AnonymousPaths {
		if path == "" {
			return fmt.Errorf("gateway.auth.anonymousPaths[%d] cannot be empty", i)
		}
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("gateway.auth.anonymousPaths[%d] must start with '/'", i)
		}
	}
	return nil
}
