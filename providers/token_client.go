package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-connectors/core"
)

const (
	MaxTokenResponseBytes = 1 << 20 // 1 MiB
	loggedBodyLimit       = 512
)

type ClientAuth int

const (
	// ClientAuthBasic sends client_id/client_secret as HTTP Basic credentials.
	ClientAuthBasic ClientAuth = iota
	// ClientAuthBody sends them as fields of the request body.
	ClientAuthBody
)

type BodyEncoding int

const (
	EncodeForm BodyEncoding = iota
	EncodeJSON
)

type TokenClientConfig struct {
	Provider     core.ProviderID
	ClientID     string
	ClientSecret string
	Auth         ClientAuth
	Encoding     BodyEncoding
}

type TokenRequest struct {
	URL    string
	Fields map[string]string
}

// TokenResponse is the decoded token endpoint answer. Raw keeps every field
// so adapters can lift provider-specific values into bundle metadata.
type TokenResponse struct {
	AccessToken      string
	TokenType        string
	RefreshToken     string
	Scope            string
	ExpiresIn        int64
	ErrorCode        string
	ErrorDescription string
	Raw              map[string]any
}

// TokenClient performs a single authorization-code exchange against a token
// endpoint. It never retries and classifies every failure as a
// *core.ExchangeError.
type TokenClient struct {
	cfg      TokenClientConfig
	settings Settings
}

func NewTokenClient(cfg TokenClientConfig, opts ...Option) (*TokenClient, error) {
	if !cfg.Provider.Known() {
		return nil, fmt.Errorf("providers: unknown provider %q", cfg.Provider)
	}
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("providers: client id is required for provider %q", cfg.Provider)
	}
	return &TokenClient{cfg: cfg, settings: ResolveSettings(opts...)}, nil
}

func (c *TokenClient) Provider() core.ProviderID {
	if c == nil {
		return ""
	}
	return c.cfg.Provider
}

func (c *TokenClient) Exchange(ctx context.Context, req TokenRequest) (TokenResponse, error) {
	if c == nil {
		return TokenResponse{}, fmt.Errorf("providers: token client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	provider := c.cfg.Provider
	if strings.TrimSpace(req.URL) == "" {
		return TokenResponse{}, core.NewExchangeError(core.ExchangeInvalidRequest, provider, "token url is required", nil)
	}

	body, contentType, err := c.encode(req.Fields)
	if err != nil {
		return TokenResponse{}, core.NewExchangeError(core.ExchangeInvalidRequest, provider, "encode token request", err)
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.settings.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, http.MethodPost, strings.TrimSpace(req.URL), bytes.NewReader(body))
	if err != nil {
		return TokenResponse{}, core.NewExchangeError(core.ExchangeInvalidRequest, provider, "build token request", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	if c.cfg.Auth == ClientAuthBasic {
		httpReq.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	}

	response, err := c.settings.HTTPClient.Do(httpReq)
	if err != nil {
		return TokenResponse{}, c.unreachable(err)
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(response.Body, MaxTokenResponseBytes+1))
	if err != nil {
		return TokenResponse{}, c.unreachable(err)
	}
	status := response.StatusCode
	if int64(len(raw)) > MaxTokenResponseBytes {
		c.logRejected(status, nil)
		return TokenResponse{}, core.NewProviderRejectedError(provider, status,
			fmt.Sprintf("token response exceeds %d bytes", MaxTokenResponseBytes))
	}

	payload, parseErr := parseTokenPayload(raw, response.Header.Get("Content-Type"))
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		c.logRejected(status, raw)
		return TokenResponse{}, core.NewProviderRejectedError(provider, status, describeTokenError(payload))
	}
	if parseErr != nil {
		c.logRejected(status, raw)
		return TokenResponse{}, &core.ExchangeError{
			Kind:           core.ExchangeProviderRejected,
			Provider:       provider,
			ProviderStatus: status,
			Message:        "undecodable token response",
			Cause:          parseErr,
		}
	}
	if payload.ErrorCode != "" {
		c.logRejected(status, raw)
		return TokenResponse{}, core.NewProviderRejectedError(provider, status, describeTokenError(payload))
	}
	if payload.AccessToken == "" {
		c.logRejected(status, raw)
		return TokenResponse{}, core.NewProviderRejectedError(provider, status, "token response missing access_token")
	}
	return payload, nil
}

// Bundle maps a successful response onto a credential bundle. A relative
// expires_in becomes an absolute instant on the client clock.
func (c *TokenClient) Bundle(token TokenResponse) core.CredentialBundle {
	return core.CredentialBundle{
		Provider:     c.cfg.Provider,
		TokenType:    NormalizeTokenType(token.TokenType),
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Scope:        token.Scope,
		ExpiresAt:    ExpiresAt(c.settings.Clock, token.ExpiresIn),
		Metadata:     map[string]any{},
	}
}

func (c *TokenClient) encode(fields map[string]string) ([]byte, string, error) {
	values := make(map[string]string, len(fields)+2)
	for key, value := range fields {
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		values[key] = value
	}
	if c.cfg.Auth == ClientAuthBody {
		values["client_id"] = c.cfg.ClientID
		if c.cfg.ClientSecret != "" {
			values["client_secret"] = c.cfg.ClientSecret
		}
	}
	if c.cfg.Encoding == EncodeJSON {
		data, err := json.Marshal(values)
		if err != nil {
			return nil, "", err
		}
		return data, "application/json", nil
	}
	form := url.Values{}
	for key, value := range values {
		form.Set(key, value)
	}
	return []byte(form.Encode()), "application/x-www-form-urlencoded", nil
}

func (c *TokenClient) unreachable(err error) error {
	message := "token request failed"
	if errors.Is(err, context.DeadlineExceeded) {
		message = "token request timed out"
	}
	c.settings.Logger.Warn("provider token endpoint unreachable",
		"provider_id", string(c.cfg.Provider),
		"error", err.Error(),
	)
	return core.NewExchangeError(core.ExchangeProviderUnreachable, c.cfg.Provider, message, err)
}

func (c *TokenClient) logRejected(status int, body []byte) {
	c.settings.Logger.Warn("provider token exchange rejected",
		"provider_id", string(c.cfg.Provider),
		"provider_status", status,
		"body", RedactedBody(body),
	)
}

// RedactedBody renders a provider response for internal logs with secret
// fields masked and the length capped.
func RedactedBody(body []byte) string {
	if len(bytes.TrimSpace(body)) == 0 {
		return ""
	}
	if payload, err := parseTokenPayload(body, ""); err == nil && len(payload.Raw) > 0 {
		if data, err := json.Marshal(core.RedactSensitiveMap(payload.Raw)); err == nil {
			return core.TruncateBody(data, loggedBodyLimit)
		}
	}
	return core.TruncateBody(body, loggedBodyLimit)
}

func ExpiresAt(clock core.Clock, expiresIn int64) *time.Time {
	if expiresIn <= 0 || clock == nil {
		return nil
	}
	at := clock().UTC().Add(time.Duration(expiresIn) * time.Second)
	return &at
}

func NormalizeTokenType(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "bearer"
	}
	return normalized
}

func describeTokenError(payload TokenResponse) string {
	if payload.ErrorDescription != "" {
		return payload.ErrorDescription
	}
	if payload.ErrorCode != "" {
		return payload.ErrorCode
	}
	return "token endpoint error"
}

func parseTokenPayload(body []byte, contentType string) (TokenResponse, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if strings.Contains(contentType, "json") {
		return parseTokenPayloadJSON(body)
	}
	if strings.Contains(contentType, "x-www-form-urlencoded") || strings.Contains(contentType, "text/plain") {
		return parseTokenPayloadForm(body)
	}
	if payload, err := parseTokenPayloadJSON(body); err == nil {
		return payload, nil
	}
	return parseTokenPayloadForm(body)
}

func parseTokenPayloadJSON(body []byte) (TokenResponse, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return TokenResponse{}, fmt.Errorf("empty payload")
	}
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var decoded map[string]any
	if err := decoder.Decode(&decoded); err != nil {
		return TokenResponse{}, err
	}
	return tokenResponseFromMap(decoded), nil
}

func parseTokenPayloadForm(body []byte) (TokenResponse, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return TokenResponse{}, fmt.Errorf("empty payload")
	}
	values, err := url.ParseQuery(strings.TrimSpace(string(body)))
	if err != nil {
		return TokenResponse{}, err
	}
	decoded := make(map[string]any, len(values))
	for key := range values {
		decoded[key] = values.Get(key)
	}
	return tokenResponseFromMap(decoded), nil
}

func tokenResponseFromMap(decoded map[string]any) TokenResponse {
	return TokenResponse{
		AccessToken:      ReadString(decoded, "access_token"),
		TokenType:        ReadString(decoded, "token_type"),
		RefreshToken:     ReadString(decoded, "refresh_token"),
		Scope:            ReadString(decoded, "scope"),
		ExpiresIn:        ReadInt64(decoded, "expires_in"),
		ErrorCode:        ReadString(decoded, "error"),
		ErrorDescription: ReadString(decoded, "error_description"),
		Raw:              decoded,
	}
}

func ReadString(values map[string]any, key string) string {
	value, ok := values[key]
	if !ok || value == nil {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return typed.String()
	case map[string]any, []any:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(typed))
	}
}

func ReadInt64(values map[string]any, key string) int64 {
	switch typed := values[key].(type) {
	case int64:
		return typed
	case float64:
		return int64(typed)
	case json.Number:
		if parsed, err := typed.Int64(); err == nil {
			return parsed
		}
		if parsed, err := typed.Float64(); err == nil {
			return int64(parsed)
		}
	case string:
		if parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64); err == nil {
			return parsed
		}
	}
	return 0
}
