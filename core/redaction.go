package core

import "strings"

const (
	RedactedValue = "[REDACTED]"

	truncatedIdentifierLength = 8
)

func RedactSensitiveMap(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	return redactSensitiveMap(metadata)
}

func redactSensitiveMap(source map[string]any) map[string]any {
	target := make(map[string]any, len(source))
	for key, value := range source {
		if shouldRedactKey(key) {
			target[key] = RedactedValue
			continue
		}
		target[key] = redactSensitiveValue(value)
	}
	return target
}

func redactSensitiveValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return redactSensitiveMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = redactSensitiveValue(typed[i])
		}
		return out
	default:
		return value
	}
}

// IsSensitiveKey reports whether values logged or stored under key are
// replaced with RedactedValue.
func IsSensitiveKey(key string) bool {
	return shouldRedactKey(key)
}

func shouldRedactKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || isTraceabilityKey(key) {
		return false
	}
	for _, token := range []string{
		"password",
		"secret",
		"token",
		"authorization",
		"api_key",
		"apikey",
		"code",
		"refresh",
		"credential",
		"signature",
		"state",
	} {
		if strings.Contains(key, token) {
			return true
		}
	}
	return false
}

func isTraceabilityKey(key string) bool {
	switch key {
	case "provider_id",
		"organization_id",
		"token_type",
		"provider_status",
		"state_reason",
		"callback_state",
		"error_code",
		"error_text_code",
		"request_id":
		return true
	default:
		return false
	}
}

// TruncateIdentifier keeps enough of an identifier to correlate log lines
// without writing the full value.
func TruncateIdentifier(value string) string {
	value = strings.TrimSpace(value)
	if len(value) <= truncatedIdentifierLength {
		return value
	}
	return value[:truncatedIdentifierLength] + "…"
}

// TruncateBody shortens a provider response body for internal logs.
func TruncateBody(body []byte, limit int) string {
	if limit <= 0 || len(body) <= limit {
		return string(body)
	}
	return string(body[:limit]) + "…(truncated)"
}
