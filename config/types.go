package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"trovekit/observability/metrics"
	"trovekit/observability/otel"
	"trovekit/sdk/contracts"
	"trovekit/sdk/hints"
	"trovekit/sdk/watch"
)

const (
	DefaultRequestsPerSecond = 20
	DefaultBurst             = 10
	DefaultWatchWindow       = watch.DefaultWindow
)

// RPC points at the node.
type RPC struct {
	URL               string  `yaml:"url" toml:"url"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond" toml:"requestsPerSecond"`
	Burst             int     `yaml:"burst" toml:"burst"`
}

// Contracts is the deployment's address book, as hex strings.
type Contracts struct {
	TroveManager       string `yaml:"troveManager" toml:"troveManager"`
	SortedTroves       string `yaml:"sortedTroves" toml:"sortedTroves"`
	HintHelpers        string `yaml:"hintHelpers" toml:"hintHelpers"`
	StabilityPool      string `yaml:"stabilityPool" toml:"stabilityPool"`
	PriceFeed          string `yaml:"priceFeed" toml:"priceFeed"`
	BorrowerOperations string `yaml:"borrowerOperations" toml:"borrowerOperations"`
}

// Addresses parses the address book.
func (c Contracts) Addresses() (contracts.Addresses, error) {
	var out contracts.Addresses
	fields := []struct {
		name string
		raw  string
		dst  *common.Address
	}{
		{"troveManager", c.TroveManager, &out.TroveManager},
		{"sortedTroves", c.SortedTroves, &out.SortedTroves},
		{"hintHelpers", c.HintHelpers, &out.HintHelpers},
		{"stabilityPool", c.StabilityPool, &out.StabilityPool},
		{"priceFeed", c.PriceFeed, &out.PriceFeed},
		{"borrowerOperations", c.BorrowerOperations, &out.BorrowerOperations},
	}
	for _, field := range fields {
		if !common.IsHexAddress(field.raw) {
			return contracts.Addresses{}, fmt.Errorf("contracts.%s: %q is not a hex address", field.name, field.raw)
		}
		*field.dst = common.HexToAddress(field.raw)
	}
	return out, out.Validate()
}

type Hints struct {
	Enabled         bool    `yaml:"enabled" toml:"enabled"`
	TrialMultiplier float64 `yaml:"trialMultiplier" toml:"trialMultiplier"`
	MinTrials       uint64  `yaml:"minTrials" toml:"minTrials"`
	MaxTrials       uint64  `yaml:"maxTrials" toml:"maxTrials"`
}

// Resolver converts the section into a resolver configuration.
func (h Hints) Resolver(logger *slog.Logger, m *metrics.MirrorMetrics) hints.Config {
	cfg := hints.DefaultConfig()
	cfg.Enabled = h.Enabled
	cfg.TrialMultiplier = h.TrialMultiplier
	cfg.MinTrials = h.MinTrials
	cfg.MaxTrials = h.MaxTrials
	cfg.Logger = logger
	cfg.Metrics = m
	return cfg
}

type Watch struct {
	Window time.Duration `yaml:"window" toml:"window"`
}

type Observability struct {
	ServiceName string            `yaml:"serviceName" toml:"serviceName"`
	Metrics     bool              `yaml:"metrics" toml:"metrics"`
	Tracing     bool              `yaml:"tracing" toml:"tracing"`
	Endpoint    string            `yaml:"endpoint" toml:"endpoint"`
	Insecure    bool              `yaml:"insecure" toml:"insecure"`
	Headers     map[string]string `yaml:"headers" toml:"headers"`
	SampleRatio float64           `yaml:"sampleRatio" toml:"sampleRatio"`
}

// Telemetry converts the section into an exporter configuration.
func (o Observability) Telemetry(env string) otel.Config {
	return otel.Config{
		ServiceName: o.ServiceName,
		Environment: env,
		Endpoint:    o.Endpoint,
		Insecure:    o.Insecure,
		Headers:     o.Headers,
		Traces:      o.Tracing,
		Metrics:     o.Metrics,
		SampleRatio: o.SampleRatio,
	}
}
