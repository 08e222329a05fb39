package config

import (
	"strconv"
	"strings"

	"trovekit/observability/otel"
)

// Environment variables that override file values.
const (
	EnvRPCURL        = "TROVEKIT_RPC_URL"
	EnvEnvironment   = "TROVEKIT_ENV"
	EnvJWTSecret     = "TROVEKIT_GATEWAY_JWT_SECRET"
	EnvOTLPEndpoint  = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvOTLPHeaders   = "OTEL_EXPORTER_OTLP_HEADERS"
	EnvOTLPInsecure  = "OTEL_EXPORTER_OTLP_INSECURE"
	EnvOTLPSampleRaw = "OTEL_TRACES_SAMPLER_ARG"
)

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	get := func(key string) (string, bool) {
		value, ok := lookup(key)
		value = strings.TrimSpace(value)
		return value, ok && value != ""
	}
	if value, ok := get(EnvRPCURL); ok {
		c.RPC.URL = value
	}
	if value, ok := get(EnvEnvironment); ok {
		c.Env = value
	}
	if value, ok := get(EnvJWTSecret); ok {
		c.Gateway.Auth.HMACSecret = value
	}
	if value, ok := get(EnvOTLPEndpoint); ok {
		c.Observability.Endpoint = stripScheme(value, &c.Observability.Insecure)
	}
	if value, ok := get(EnvOTLPHeaders); ok {
		c.Observability.Headers = otel.ParseHeaders(value)
	}
	if value, ok := get(EnvOTLPInsecure); ok {
		if insecure, err := strconv.ParseBool(value); err == nil {
			c.Observability.Insecure = insecure
		}
	}
	if value, ok := get(EnvOTLPSampleRaw); ok {
		if ratio, err := strconv.ParseFloat(value, 64); err == nil {
			c.Observability.SampleRatio = ratio
		}
	}
}

// stripScheme turns an OTLP endpoint URL into the host:port the exporters
// expect; an http scheme marks the connection insecure.
func stripScheme(endpoint string, insecure *bool) string {
	switch {
	case strings.HasPrefix(endpoint, "http://"):
		*insecure = true
		return strings.TrimPrefix(endpoint, "http://")
	case strings.HasPrefix(endpoint, "https://"):
		return strings.TrimPrefix(endpoint, "https://")
	default:
		return endpoint
	}
}
