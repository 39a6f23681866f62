package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue replaces secrets in log lines.
const RedactedValue = "[REDACTED]"

// Keys that are logged verbatim. Anything else passed through MaskField is
// treated as a secret.
var plainKeys = map[string]struct{}{
	"service":   {},
	"env":       {},
	"message":   {},
	"severity":  {},
	"timestamp": {},
	"error":     {},
	"reason":    {},
	"component": {},
	"account":   {},
	"pool":      {},
	"quantity":  {},
	"driver":    {},
}

// IsAllowlisted reports whether key is logged without redaction.
func IsAllowlisted(key string) bool {
	_, ok := plainKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// RedactionAllowlist returns the plain keys in sorted order.
func RedactionAllowlist() []string {
	keys := make([]string, 0, len(plainKeys))
	for key := range plainKeys {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskValue returns RedactedValue for any non-blank value.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField builds an attribute whose value is redacted unless key is
// allowlisted. Blank values stay blank so a missing secret is visible.
func MaskField(key, value string) slog.Attr {
	if IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, MaskValue(value))
}
