package logging

import (
	"log/slog"
	"net/url"
	"sort"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

var redactionAllowlist = map[string]struct{}{
	"service":      {},
	"env":          {},
	"message":      {},
	"severity":     {},
	"timestamp":    {},
	"error":        {},
	"component":    {},
	"owner":        {},
	"block":        {},
	"entity":       {},
	"subscription": {},
	"operation":    {},
	"path":         {},
}

// IsAllowlisted reports whether key is exempt from automatic redaction.
func IsAllowlisted(key string) bool {
	_, ok := redactionAllowlist[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// RedactionAllowlist returns a sorted copy of the keys emitted without redaction.
func RedactionAllowlist() []string {
	keys := make([]string, 0, len(redactionAllowlist))
	for key := range redactionAllowlist {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskValue returns the placeholder for non-empty values. Empty values are returned
// unchanged.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField returns a slog.Attr that redacts value unless key is allowlisted.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// MaskURL strips credentials, query and path from an RPC endpoint. Hosted node
// providers put API keys in any of the three.
func MaskURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return trimmed
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return RedactedValue
	}
	masked := parsed.Scheme + "://" + parsed.Host
	if parsed.User != nil {
		masked = parsed.Scheme + "://" + RedactedValue + "@" + parsed.Host
	}
	if (parsed.Path != "" && parsed.Path != "/") || parsed.RawQuery != "" {
		masked += "/" + RedactedValue
	}
	return masked
}
