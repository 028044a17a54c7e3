package providers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-connectors/core"
	"github.com/goliatone/go-connectors/providers/devkit"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func newTestClient(t *testing.T, cfg TokenClientConfig, opts ...Option) *TokenClient {
	t.Helper()
	if cfg.Provider == "" {
		cfg.Provider = core.ProviderDropbox
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "client-123"
		cfg.ClientSecret = "secret-456"
	}
	client, err := NewTokenClient(cfg, append([]Option{WithClock(fixedClock)}, opts...)...)
	if err != nil {
		t.Fatalf("new token client: %v", err)
	}
	return client
}

func requireExchangeKind(t *testing.T, err error, kind core.ExchangeErrorKind) *core.ExchangeError {
	t.Helper()
	var exchangeErr *core.ExchangeError
	if !errors.As(err, &exchangeErr) {
		t.Fatalf("expected *core.ExchangeError, got %T (%v)", err, err)
	}
	if exchangeErr.Kind != kind {
		t.Fatalf("expected kind %s, got %s", kind, exchangeErr.Kind)
	}
	return exchangeErr
}

func TestTokenClient_FormWithBasicAuth(t *testing.T) {
	server := devkit.NewTokenServer(devkit.JSONToken(
		`{"access_token":"at-1","refresh_token":"rt-1","token_type":"Bearer","expires_in":3600,"scope":"files.read"}`,
	))
	defer server.Close()

	client := newTestClient(t, TokenClientConfig{Auth: ClientAuthBasic, Encoding: EncodeForm})
	token, err := client.Exchange(context.Background(), TokenRequest{
		URL: server.URL + "/oauth2/token",
		Fields: map[string]string{
			"grant_type":   "authorization_code",
			"code":         "code-1",
			"redirect_uri": "https://api.example.com/oauth/callback",
		},
	})
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if server.Calls() != 1 {
		t.Fatalf("expected one request, got %d", server.Calls())
	}
	req := server.Last()
	if req.ContentType != "application/x-www-form-urlencoded" {
		t.Fatalf("unexpected content type %q", req.ContentType)
	}
	form := req.Form()
	if form.Get("code") != "code-1" || form.Get("grant_type") != "authorization_code" {
		t.Fatalf("unexpected form %v", form)
	}
	if form.Get("client_secret") != "" {
		t.Fatalf("expected client secret to stay out of the body")
	}
	user, pass, ok := req.BasicAuth()
	if !ok || user != "client-123" || pass != "secret-456" {
		t.Fatalf("expected basic client credentials, got %q/%q ok=%v", user, pass, ok)
	}

	bundle := client.Bundle(token)
	if bundle.AccessToken != "at-1" || bundle.RefreshToken != "rt-1" {
		t.Fatalf("unexpected bundle tokens")
	}
	if bundle.TokenType != "bearer" || bundle.Scope != "files.read" {
		t.Fatalf("unexpected bundle token type/scope %q/%q", bundle.TokenType, bundle.Scope)
	}
	if bundle.ExpiresAt == nil || !bundle.ExpiresAt.Equal(fixedNow.Add(time.Hour)) {
		t.Fatalf("expected expiry one hour after clock, got %v", bundle.ExpiresAt)
	}
}

func TestTokenClient_JSONWithBodyCredentials(t *testing.T) {
	server := devkit.NewTokenServer(devkit.JSONToken(`{"access_token":"at-2","scope":"read_products"}`))
	defer server.Close()

	client := newTestClient(t, TokenClientConfig{
		Provider: core.ProviderShopify,
		Auth:     ClientAuthBody,
		Encoding: EncodeJSON,
	})
	token, err := client.Exchange(context.Background(), TokenRequest{
		URL:    server.URL,
		Fields: map[string]string{"code": "code-2"},
	})
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	body := server.Last().JSON()
	if body["client_id"] != "client-123" || body["client_secret"] != "secret-456" || body["code"] != "code-2" {
		t.Fatalf("unexpected json body %#v", body)
	}
	if _, _, ok := server.Last().BasicAuth(); ok {
		t.Fatalf("expected no basic auth header")
	}
	if bundle := client.Bundle(token); bundle.ExpiresAt != nil {
		t.Fatalf("expected no expiry without expires_in")
	}
}

func TestTokenClient_NonSuccessStatusIsRejected(t *testing.T) {
	server := devkit.NewTokenServer(devkit.TokenScript{
		Status:      http.StatusBadRequest,
		ContentType: "application/json",
		Body:        `{"error":"invalid_grant","error_description":"code expired"}`,
	})
	defer server.Close()

	client := newTestClient(t, TokenClientConfig{})
	_, err := client.Exchange(context.Background(), TokenRequest{URL: server.URL, Fields: map[string]string{"code": "c"}})
	exchangeErr := requireExchangeKind(t, err, core.ExchangeProviderRejected)
	if exchangeErr.ProviderStatus != http.StatusBadRequest {
		t.Fatalf("expected provider status 400, got %d", exchangeErr.ProviderStatus)
	}
	if exchangeErr.Message != "code expired" {
		t.Fatalf("expected provider description in message, got %q", exchangeErr.Message)
	}
	if server.Calls() != 1 {
		t.Fatalf("expected no retry, got %d calls", server.Calls())
	}
}

func TestTokenClient_ErrorFieldOnSuccessIsRejected(t *testing.T) {
	server := devkit.NewTokenServer(devkit.JSONToken(`{"error":"bad_verification_code"}`))
	defer server.Close()

	client := newTestClient(t, TokenClientConfig{})
	_, err := client.Exchange(context.Background(), TokenRequest{URL: server.URL})
	exchangeErr := requireExchangeKind(t, err, core.ExchangeProviderRejected)
	if exchangeErr.ProviderStatus != http.StatusOK {
		t.Fatalf("expected provider status 200, got %d", exchangeErr.ProviderStatus)
	}
}

func TestTokenClient_MissingAccessTokenIsRejected(t *testing.T) {
	server := devkit.NewTokenServer(devkit.JSONToken(`{"token_type":"bearer"}`))
	defer server.Close()

	client := newTestClient(t, TokenClientConfig{})
	_, err := client.Exchange(context.Background(), TokenRequest{URL: server.URL})
	requireExchangeKind(t, err, core.ExchangeProviderRejected)
}

func TestTokenClient_OversizedBodyIsRejected(t *testing.T) {
	server := devkit.NewTokenServer(devkit.JSONToken(`{"access_token":"` + strings.Repeat("a", MaxTokenResponseBytes) + `"}`))
	defer server.Close()

	client := newTestClient(t, TokenClientConfig{})
	_, err := client.Exchange(context.Background(), TokenRequest{URL: server.URL})
	requireExchangeKind(t, err, core.ExchangeProviderRejected)
}

func TestTokenClient_TimeoutIsUnreachable(t *testing.T) {
	server := devkit.NewTokenServer(devkit.TokenScript{
		Status: http.StatusOK,
		Body:   `{"access_token":"late"}`,
		Delay:  500 * time.Millisecond,
	})
	defer server.Close()

	client := newTestClient(t, TokenClientConfig{}, WithTimeout(20*time.Millisecond))
	_, err := client.Exchange(context.Background(), TokenRequest{URL: server.URL})
	requireExchangeKind(t, err, core.ExchangeProviderUnreachable)
	if server.Calls() != 1 {
		t.Fatalf("expected exactly one attempt, got %d", server.Calls())
	}
}

func TestTokenClient_ClosedServerIsUnreachable(t *testing.T) {
	server := devkit.NewTokenServer()
	endpoint := server.URL
	server.Close()

	client := newTestClient(t, TokenClientConfig{})
	_, err := client.Exchange(context.Background(), TokenRequest{URL: endpoint})
	requireExchangeKind(t, err, core.ExchangeProviderUnreachable)
}

func TestTokenClient_FormEncodedResponse(t *testing.T) {
	server := devkit.NewTokenServer(devkit.TokenScript{
		Status:      http.StatusOK,
		ContentType: "application/x-www-form-urlencoded",
		Body:        "access_token=form-token&token_type=bearer&expires_in=60",
	})
	defer server.Close()

	client := newTestClient(t, TokenClientConfig{})
	token, err := client.Exchange(context.Background(), TokenRequest{URL: server.URL})
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if token.AccessToken != "form-token" || token.ExpiresIn != 60 {
		t.Fatalf("unexpected form token %+v", token)
	}
}

func TestNewTokenClient_RequiresKnownProviderAndClientID(t *testing.T) {
	if _, err := NewTokenClient(TokenClientConfig{Provider: "box", ClientID: "x"}); err == nil {
		t.Fatalf("expected unknown provider error")
	}
	if _, err := NewTokenClient(TokenClientConfig{Provider: core.ProviderNotion}); err == nil {
		t.Fatalf("expected missing client id error")
	}
}

func TestRedactedBody_MasksTokens(t *testing.T) {
	rendered := RedactedBody([]byte(`{"access_token":"very-secret","error":"invalid_grant"}`))
	if strings.Contains(rendered, "very-secret") {
		t.Fatalf("expected token to be masked, got %s", rendered)
	}
	if !strings.Contains(rendered, "invalid_grant") {
		t.Fatalf("expected error code to survive, got %s", rendered)
	}
	long := RedactedBody([]byte(strings.Repeat("x", 2000)))
	if len(long) > loggedBodyLimit+len("…(truncated)") {
		t.Fatalf("expected truncated body, got %d bytes", len(long))
	}
}

func TestBuildAuthorizationURL_MergesQuery(t *testing.T) {
	raw, err := BuildAuthorizationURL("https://auth.example.com/authorize?prompt=consent", map[string][]string{
		"state":     {"user-1:1:abc"},
		"client_id": {"cid"},
		"scope":     {""},
	})
	if err != nil {
		t.Fatalf("build url: %v", err)
	}
	if !strings.Contains(raw, "prompt=consent") || !strings.Contains(raw, "state=user-1%3A1%3Aabc") {
		t.Fatalf("unexpected url %s", raw)
	}
	if strings.Contains(raw, "scope=") {
		t.Fatalf("expected empty scope to be skipped, got %s", raw)
	}
	if _, err := BuildAuthorizationURL("not a url", nil); err == nil {
		t.Fatalf("expected invalid url error")
	}
}
