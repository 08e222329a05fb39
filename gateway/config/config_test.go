package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Auth.Enabled {
		t.Fatalf("expected auth to be off without a secret")
	}
}

func TestNormalizeFillsZeroValues(t *testing.T) {
	cfg := Config{Listen: "  ", RateLimit: RateLimitConfig{RequestsPerSecond: 5}}
	cfg.Normalize()
	if cfg.Listen != DefaultListen {
		t.Fatalf("expected default listen, got %q", cfg.Listen)
	}
	if cfg.RequestTimeout != DefaultRequestTimeout || cfg.Auth.ClockSkew != DefaultClockSkew {
		t.Fatalf("expected default timeouts, got %v / %v", cfg.RequestTimeout, cfg.Auth.ClockSkew)
	}
	if cfg.RateLimit.Burst != 1 {
		t.Fatalf("expected burst to default to 1, got %d", cfg.RateLimit.Burst)
	}
	if cfg.Auth.ScopeClaim != "scope" {
		t.Fatalf("expected scope claim default, got %q", cfg.Auth.ScopeClaim)
	}
}

func TestValidateAuth(t *testing.T) {
	cfg := Default()
	cfg.Auth.Enabled = true
	cfg.Normalize()
	if err := cfg.Validate(); !errors.Is(err, ErrAuthSecretMissing) {
		t.Fatalf("expected ErrAuthSecretMissing, got %v", err)
	}

	cfg.Auth.HMACSecret = "  s3cret  "
	cfg.Normalize()
	if cfg.Auth.HMACSecret != "s3cret" {
		t.Fatalf("expected secret to be trimmed")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg.Auth.AnonymousPaths = []string{"healthz"}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "must start with '/'") {
		t.Fatalf("expected path prefix error, got %v", err)
	}
}

func TestValidateRateLimit(t *testing.T) {
	cfg := Default()
	cfg.RateLimit.RequestsPerSecond = -1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected negative rate to fail")
	}
	cfg.RateLimit.RequestsPerSecond = 0
	cfg.IdleTimeout = time.Second
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected disabled limiter to pass, got %v", err)
	}
}
