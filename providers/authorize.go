package providers

import (
	"fmt"
	"net/url"
	"strings"
)

// BuildAuthorizationURL merges params into the query of authURL. Empty values
// are skipped.
func BuildAuthorizationURL(authURL string, params url.Values) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(authURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("providers: invalid authorization url %q", authURL)
	}
	query := parsed.Query()
	for key, values := range params {
		for _, value := range values {
			if strings.TrimSpace(value) != "" {
				query.Set(key, value)
			}
		}
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func RequireState(state string) error {
	if strings.TrimSpace(state) == "" {
		return fmt.Errorf("providers: authorization state is required")
	}
	return nil
}

// ScopesOrDefault returns requested when any are set, otherwise defaults.
func ScopesOrDefault(requested []string, defaults []string) []string {
	out := make([]string, 0, len(requested))
	for _, scope := range requested {
		if trimmed := strings.TrimSpace(scope); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) > 0 {
		return out
	}
	return append([]string(nil), defaults...)
}

func FirstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
