package shopify

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/goliatone/go-connectors/core"
	"github.com/goliatone/go-connectors/providers/devkit"
)

func newProvider(t *testing.T, tokenURL string) *Provider {
	t.Helper()
	provider, err := New(core.ProviderCredentials{
		ClientID:     "shp-client",
		ClientSecret: "shp-secret",
		TokenURL:     tokenURL,
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return provider
}

func TestExchange_PostsJSONCredentials(t *testing.T) {
	server := devkit.NewTokenServer(devkit.JSONToken(`{"access_token":"shpat_1","scope":"read_products,read_orders"}`))
	defer server.Close()

	provider := newProvider(t, server.URL+"/"+ShopPlaceholder+"/admin/oauth/access_token")
	bundle, err := devkit.ValidateExchangerConformance(context.Background(), provider, server, core.ExchangeRequest{
		Code:         "shp-code",
		ProviderHint: "Acme-Store.myshopify.com",
	}, "shpat_1")
	if err != nil {
		t.Fatalf("conformance: %v", err)
	}

	req := server.Last()
	if req.Method != http.MethodPost || req.Path != "/acme-store.myshopify.com/admin/oauth/access_token" {
		t.Fatalf("unexpected request %s %s", req.Method, req.Path)
	}
	if !strings.HasPrefix(req.ContentType, "application/json") {
		t.Fatalf("expected json body, got %q", req.ContentType)
	}
	body := req.JSON()
	if len(body) != 3 || body["client_id"] != "shp-client" || body["client_secret"] != "shp-secret" || body["code"] != "shp-code" {
		t.Fatalf("unexpected json body %#v", body)
	}
	if bundle.ExpiresAt != nil {
		t.Fatalf("expected offline token without expiry")
	}
	if bundle.Metadata["shop"] != "acme-store.myshopify.com" {
		t.Fatalf("expected shop metadata, got %#v", bundle.Metadata)
	}
	if bundle.Scope != "read_products,read_orders" {
		t.Fatalf("unexpected scope %q", bundle.Scope)
	}
}

func TestExchange_InvalidShopMakesNoRequest(t *testing.T) {
	server := devkit.NewTokenServer()
	defer server.Close()

	provider := newProvider(t, server.URL)
	for _, hint := range []string{"", "evil.example.com", "https://acme.myshopify.com:8443", "acme.myshopify.com.evil.io"} {
		_, err := provider.Exchange(context.Background(), core.ExchangeRequest{Code: "c", ProviderHint: hint})
		var exchangeErr *core.ExchangeError
		if !errors.As(err, &exchangeErr) || exchangeErr.Kind != core.ExchangeInvalidRequest {
			t.Fatalf("hint %q: expected invalid request, got %v", hint, err)
		}
	}
	if server.Calls() != 0 {
		t.Fatalf("expected no request, got %d", server.Calls())
	}
}

func TestNormalizeShopDomain(t *testing.T) {
	cases := map[string]string{
		"acme":                        "acme.myshopify.com",
		"ACME.myshopify.com":          "acme.myshopify.com",
		"https://acme.myshopify.com/": "acme.myshopify.com",
		" acme-store.myshopify.com  ": "acme-store.myshopify.com",
	}
	for input, want := range cases {
		got, err := NormalizeShopDomain(input)
		if err != nil {
			t.Fatalf("%q: unexpected error %v", input, err)
		}
		if got != want {
			t.Fatalf("%q: expected %q, got %q", input, want, got)
		}
	}
	if _, err := NormalizeShopDomain("http://acme.myshopify.com"); err == nil {
		t.Fatalf("expected plain http to be rejected")
	}
}

func TestAuthorizationURL_UsesShopHost(t *testing.T) {
	provider := newProvider(t, "")
	parsed, err := devkit.ValidateAuthorizerConformance(provider, core.AuthorizationRequest{
		State:        "user-1:1700000000000:aa",
		RedirectURI:  "https://api.example.com/oauth/callback",
		ProviderHint: "acme",
	})
	if err != nil {
		t.Fatalf("authorizer conformance: %v", err)
	}
	if parsed.Host != "acme.myshopify.com" || parsed.Path != "/admin/oauth/authorize" {
		t.Fatalf("unexpected authorize endpoint %s", parsed.String())
	}
	if parsed.Query().Get("scope") != "read_products,read_inventory,read_orders" {
		t.Fatalf("unexpected scope %q", parsed.Query().Get("scope"))
	}
	if _, err := provider.AuthorizationURL(core.AuthorizationRequest{State: "s", ProviderHint: "nope.example.com"}); err == nil {
		t.Fatalf("expected invalid shop error")
	}
}
