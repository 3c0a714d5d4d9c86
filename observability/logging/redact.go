package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces opaque payloads in log lines.
const RedactedValue = "[REDACTED]"

// opaqueKeys carry caller-supplied bytes that are passed through untouched,
// such as flash loan callback data.
var opaqueKeys = map[string]struct{}{
	"callback_data":    {},
	"instruction_data": {},
}

// IsOpaque reports whether values logged under key are masked.
func IsOpaque(key string) bool {
	_, ok := opaqueKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskField returns value under key, masked when the key is opaque and the
// value non-empty.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || !IsOpaque(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// maskAttr masks opaque keys however they were logged.
func maskAttr(attr slog.Attr) slog.Attr {
	if !IsOpaque(attr.Key) || attr.Value.Kind() == slog.KindGroup {
		return attr
	}
	if attr.Value.Kind() == slog.KindString && strings.TrimSpace(attr.Value.String()) == "" {
		return attr
	}
	return slog.String(attr.Key, RedactedValue)
}
