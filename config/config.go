// Package config loads the trovekitd configuration from YAML or TOML.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	gatewayconfig "trovekit/gateway/config"
)

// Config is the full daemon configuration.
type Config struct {
	// Env names the deployment, e.g. "dev" or "mainnet".
	Env           string               `yaml:"env" toml:"env"`
	LogLevel      string               `yaml:"logLevel" toml:"logLevel"`
	RPC           RPC                  `yaml:"rpc" toml:"rpc"`
	Contracts     Contracts            `yaml:"contracts" toml:"contracts"`
	Hints         Hints                `yaml:"hints" toml:"hints"`
	Watch         Watch                `yaml:"watch" toml:"watch"`
	Gateway       gatewayconfig.Config `yaml:"gateway" toml:"gateway"`
	Observability Observability        `yaml:"observability" toml:"observability"`
}

// Default returns the configuration every file is decoded over.
func Default() Config {
	return Config{
		Env:      "dev",
		LogLevel: "info",
		RPC: RPC{
			RequestsPerSecond: DefaultRequestsPerSecond,
			Burst:             DefaultBurst,
		},
		Hints: Hints{
			Enabled:         true,
			TrialMultiplier: 1,
			MinTrials:       1,
			MaxTrials:       5000,
		},
		Watch:   Watch{Window: DefaultWatchWindow},
		Gateway: gatewayconfig.Default(),
		Observability: Observability{
			ServiceName: "trovekitd",
			Metrics:     true,
		},
	}
}

// Load decodes path, chosen by extension, over Default, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	case ".toml":
		meta, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config %s: unknown key %s", path, undecoded[0].String())
		}
	default:
		return nil, fmt.Errorf("config %s: unsupported extension %q", path, ext)
	}
	cfg.applyEnv(os.LookupEnv)
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}
