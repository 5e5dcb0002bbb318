package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

// Keys that carry public protocol data and are safe to log verbatim.
// Signatures, bearer tokens, nonces and passphrases stay masked.
var redactionAllowlist = map[string]struct{}{
	"service":   {},
	"env":       {},
	"message":   {},
	"severity":  {},
	"timestamp": {},
	"error":     {},
	"reason":    {},
	"component": {},
	"caller":    {},
	"maker":     {},
	"taker":     {},
	"partner":   {},
	"mint":      {},
	"escrow":    {},
	"offer_id":  {},
	"route":     {},
	"method":    {},
	"status":    {},
}

// IsAllowlisted reports whether the provided key is exempt from automatic redaction.
func IsAllowlisted(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	_, ok := redactionAllowlist[normalized]
	return ok
}

// RedactionAllowlist returns a sorted copy of the keys that may be logged
// without redaction.
func RedactionAllowlist() []string {
	keys := make([]string, 0, len(redactionAllowlist))
	for key := range redactionAllowlist {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskField returns a slog.Attr that redacts the supplied value unless the key is
// explicitly allowlisted. The original key casing is preserved for readability.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// Fingerprint keeps the first and last four characters of a long secret so
// operators can correlate requests without exposing the value.
func Fingerprint(value string) string {
	value = strings.TrimSpace(value)
	if len(value) <= 12 {
		return MaskField("secret", value).Value.String()
	}
	return value[:4] + "…" + value[len(value)-4:]
}
