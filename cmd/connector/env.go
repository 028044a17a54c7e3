package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/koanf/providers/env"
)

const (
	envPrefix    = "CONNECTOR_"
	envDelimiter = "__"
)

// envLoader reads CONNECTOR_* variables into the raw map decoded by cfgx.
// A double underscore separates nesting levels, for example
// CONNECTOR_STATE__SIGNING_SECRET or
// CONNECTOR_PROVIDERS__GOOGLE_DRIVE__CLIENT_ID. Typed values (durations,
// booleans, integers) are left as strings for the cfgx decode hooks.
type envLoader struct {
	prefix string
}

func newEnvLoader() envLoader {
	return envLoader{prefix: envPrefix}
}

func (l envLoader) LoadRaw(context.Context) (map[string]any, error) {
	prefix := l.prefix
	if prefix == "" {
		prefix = envPrefix
	}
	provider := env.ProviderWithValue(prefix, ".", func(key string, value string) (string, any) {
		return envKeyValue(prefix, key, value)
	})
	// The provider's default logger prints every variable, secrets included.
	provider.SetLogger(quietEnvLogger{})
	payload, err := provider.ReadBytes()
	if err != nil {
		return nil, fmt.Errorf("config: read environment: %w", err)
	}
	raw := map[string]any{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("config: decode environment: %w", err)
	}
	return raw, nil
}

// envKeyValue maps CONNECTOR_A__B_C to a.b_c. Empty values are dropped so an
// unset-but-exported variable does not override a default.
func envKeyValue(prefix string, key string, value string) (string, any) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	path := strings.ToLower(strings.TrimPrefix(key, prefix))
	path = strings.ReplaceAll(path, envDelimiter, ".")
	if path == "" || strings.HasPrefix(path, ".") || strings.HasSuffix(path, ".") {
		return "", nil
	}
	if isListKey(path) {
		return path, splitList(value)
	}
	return path, value
}

type quietEnvLogger struct{}

func (quietEnvLogger) Debug(string, ...any) {}
func (quietEnvLogger) Info(string, ...any)  {}
func (quietEnvLogger) Error(string, ...any) {}

func isListKey(path string) bool {
	return path == "allowed_origins" ||
		(strings.HasPrefix(path, "providers.") && strings.HasSuffix(path, ".scopes"))
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
