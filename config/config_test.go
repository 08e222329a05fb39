package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const contractsYAML = `contracts:
  troveManager: "0x1000000000000000000000000000000000000001"
  sortedTroves: "0x1000000000000000000000000000000000000002"
  hintHelpers: "0x1000000000000000000000000000000000000003"
  stabilityPool: "0x1000000000000000000000000000000000000004"
  priceFeed: "0x1000000000000000000000000000000000000005"
  borrowerOperations: "0x1000000000000000000000000000000000000006"
`

const contractsTOML = `[contracts]
troveManager = "0x1000000000000000000000000000000000000001"
sortedTroves = "0x1000000000000000000000000000000000000002"
hintHelpers = "0x1000000000000000000000000000000000000003"
stabilityPool = "0x1000000000000000000000000000000000000004"
priceFeed = "0x1000000000000000000000000000000000000005"
borrowerOperations = "0x1000000000000000000000000000000000000006"
`

func writeConfig(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAMLAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "trovekit.yaml", `env: staging
rpc:
  url: "wss://node.example:8546"
watch:
  window: 40ms
`+contractsYAML)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "staging", cfg.Env)
	require.Equal(t, 40*time.Millisecond, cfg.Watch.Window)
	require.Equal(t, float64(DefaultRequestsPerSecond), cfg.RPC.RequestsPerSecond)
	require.True(t, cfg.Hints.Enabled)
	require.Equal(t, uint64(5000), cfg.Hints.MaxTrials)
	require.Equal(t, ":8645", cfg.Gateway.Listen)

	addrs, err := cfg.Contracts.Addresses()
	require.NoError(t, err)
	require.Equal(t, "0x1000000000000000000000000000000000000004", strings.ToLower(addrs.StabilityPool.Hex()))
}

func TestLoadTOML(t *testing.T) {
	path := writeConfig(t, "trovekit.toml", `logLevel = "debug"

[rpc]
url = "http://127.0.0.1:8545"
requestsPerSecond = 5.5

[hints]
enabled = false
maxTrials = 100

`+contractsTOML)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 5.5, cfg.RPC.RequestsPerSecond)
	require.False(t, cfg.Hints.Enabled)
	require.Equal(t, uint64(100), cfg.Hints.MaxTrials)

	resolver := cfg.Hints.Resolver(nil, nil)
	require.False(t, resolver.Enabled)
	require.Equal(t, uint64(100), resolver.MaxTrials)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	yamlPath := writeConfig(t, "bad.yaml", "rpc:\n  url: http://x\n  bogus: 1\n"+contractsYAML)
	if _, err := Load(yamlPath); err == nil {
		t.Fatalf("expected unknown yaml key to fail")
	}

	tomlPath := writeConfig(t, "bad.toml", "bogus = 1\n[rpc]\nurl = \"http://x\"\n"+contractsTOML)
	_, err := Load(tomlPath)
	if err == nil || !strings.Contains(err.Error(), "unknown key bogus") {
		t.Fatalf("expected unknown toml key error, got %v", err)
	}

	if _, err := Load(writeConfig(t, "cfg.json", "{}")); err == nil {
		t.Fatalf("expected unsupported extension to fail")
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name     string
		contents string
		want     string
	}{
		{"missing url", contractsYAML, "rpc.url required"},
		{"bad scheme", "rpc:\n  url: ftp://node\n" + contractsYAML, "unsupported scheme"},
		{"bad address", "rpc:\n  url: http://node\ncontracts:\n  troveManager: nope\n", "contracts.troveManager"},
		{"trial bounds", "rpc:\n  url: http://node\nhints:\n  minTrials: 10\n  maxTrials: 5\n" + contractsYAML, "exceeds"},
		{"sample ratio", "rpc:\n  url: http://node\nobservability:\n  sampleRatio: 2\n" + contractsYAML, "sampleRatio"},
		{"log level", "logLevel: loud\nrpc:\n  url: http://node\n" + contractsYAML, "logLevel"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "cfg.yaml", tc.contents))
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv(EnvRPCURL, "https://override.example")
	t.Setenv(EnvEnvironment, "mainnet")
	t.Setenv(EnvJWTSecret, "env-secret")
	t.Setenv(EnvOTLPEndpoint, "http://collector:4318")
	t.Setenv(EnvOTLPHeaders, "authorization=Bearer abc,x-tenant=mirror")

	cfg, err := Load(writeConfig(t, "cfg.yaml", "rpc:\n  url: http://ignored\n"+contractsYAML))
	require.NoError(t, err)
	require.Equal(t, "https://override.example", cfg.RPC.URL)
	require.Equal(t, "mainnet", cfg.Env)
	require.Equal(t, "env-secret", cfg.Gateway.Auth.HMACSecret)
	require.Equal(t, "collector:4318", cfg.Observability.Endpoint)
	require.True(t, cfg.Observability.Insecure)
	require.Equal(t, "mirror", cfg.Observability.Headers["x-tenant"])

	telemetry := cfg.Observability.Telemetry(cfg.Env)
	require.Equal(t, "mainnet", telemetry.Environment)
	require.Equal(t, "trovekitd", telemetry.ServiceName)
}
