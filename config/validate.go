package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"

	"trovekit/observability/logging"
)

var errRPCURLMissing = errors.New("rpc.url required")

func (c *Config) normalize() {
	c.Env = strings.TrimSpace(c.Env)
	c.LogLevel = strings.TrimSpace(c.LogLevel)
	c.RPC.URL = strings.TrimSpace(c.RPC.URL)
	if c.RPC.RequestsPerSecond == 0 {
		c.RPC.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if c.RPC.Burst <= 0 {
		c.RPC.Burst = DefaultBurst
	}
	if c.Watch.Window <= 0 {
		c.Watch.Window = DefaultWatchWindow
	}
	if strings.TrimSpace(c.Observability.ServiceName) == "" {
		c.Observability.ServiceName = "trovekitd"
	}
	c.Gateway.Normalize()
}

func (c *Config) validate() error {
	if c.RPC.URL == "" {
		return errRPCURLMissing
	}
	parsed, err := url.Parse(c.RPC.URL)
	if err != nil {
		return fmt.Errorf("rpc.url: %w", err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https", "ws", "wss":
	default:
		if !strings.HasSuffix(c.RPC.URL, ".ipc") {
			return fmt.Errorf("rpc.url: unsupported scheme %q", parsed.Scheme)
		}
	}
	if c.RPC.RequestsPerSecond < 0 {
		return fmt.Errorf("rpc.requestsPerSecond must not be negative")
	}
	if _, err := c.Contracts.Addresses(); err != nil {
		return err
	}
	if c.Hints.TrialMultiplier <= 0 || math.IsNaN(c.Hints.TrialMultiplier) || math.IsInf(c.Hints.TrialMultiplier, 0) {
		return fmt.Errorf("hints.trialMultiplier must be positive")
	}
	if c.Hints.MinTrials > c.Hints.MaxTrials {
		return fmt.Errorf("hints.minTrials (%d) exceeds hints.maxTrials (%d)", c.Hints.MinTrials, c.Hints.MaxTrials)
	}
	if c.Observability.SampleRatio < 0 || c.Observability.SampleRatio > 1 {
		return fmt.Errorf("observability.sampleRatio must be within [0, 1]")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("logLevel: %w", err)
	}
	return c.Gateway.Validate()
}
