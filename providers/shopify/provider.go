// Package shopify exchanges Shopify authorization codes against the token
// endpoint of the shop named in the provider hint.
package shopify

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/goliatone/go-connectors/core"
	"github.com/goliatone/go-connectors/providers"
)

const (
	ShopPlaceholder = "{shop}"

	DefaultAuthURL  = "https://" + ShopPlaceholder + "/admin/oauth/authorize"
	DefaultTokenURL = "https://" + ShopPlaceholder + "/admin/oauth/access_token"

	ScopeReadProducts  = "read_products"
	ScopeReadInventory = "read_inventory"
	ScopeReadOrders    = "read_orders"

	domainSuffix = ".myshopify.com"
)

var shopDomainPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*\.myshopify\.com$`)

type Provider struct {
	authURL  string
	tokenURL string
	clientID string
	scopes   []string
	client   *providers.TokenClient
}

func New(creds core.ProviderCredentials, opts ...providers.Option) (*Provider, error) {
	client, err := providers.NewTokenClient(providers.TokenClientConfig{
		Provider:     core.ProviderShopify,
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Auth:         providers.ClientAuthBody,
		Encoding:     providers.EncodeJSON,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("providers/shopify: %w", err)
	}
	return &Provider{
		authURL:  providers.FirstNonEmpty(creds.AuthURL, DefaultAuthURL),
		tokenURL: providers.FirstNonEmpty(creds.TokenURL, DefaultTokenURL),
		clientID: strings.TrimSpace(creds.ClientID),
		scopes:   providers.ScopesOrDefault(creds.Scopes, []string{ScopeReadProducts, ScopeReadInventory, ScopeReadOrders}),
		client:   client,
	}, nil
}

func (p *Provider) ID() core.ProviderID {
	return core.ProviderShopify
}

func (p *Provider) AuthorizationURL(req core.AuthorizationRequest) (string, error) {
	if err := providers.RequireState(req.State); err != nil {
		return "", err
	}
	shop, err := NormalizeShopDomain(req.ProviderHint)
	if err != nil {
		return "", err
	}
	return providers.BuildAuthorizationURL(forShop(p.authURL, shop), url.Values{
		"client_id":    {p.clientID},
		"scope":        {strings.Join(providers.ScopesOrDefault(req.Scopes, p.scopes), ",")},
		"redirect_uri": {strings.TrimSpace(req.RedirectURI)},
		"state":        {req.State},
	})
}

// Exchange validates the shop hint before any network call. Offline access
// tokens carry no expiry.
func (p *Provider) Exchange(ctx context.Context, req core.ExchangeRequest) (core.CredentialBundle, error) {
	shop, err := NormalizeShopDomain(req.ProviderHint)
	if err != nil {
		return core.CredentialBundle{}, core.NewExchangeError(core.ExchangeInvalidRequest, p.ID(), "invalid shop domain", err)
	}
	if strings.TrimSpace(req.Code) == "" {
		return core.CredentialBundle{}, core.NewExchangeError(core.ExchangeInvalidRequest, p.ID(), "authorization code is required", nil)
	}
	token, err := p.client.Exchange(ctx, providers.TokenRequest{
		URL:    forShop(p.tokenURL, shop),
		Fields: map[string]string{"code": req.Code},
	})
	if err != nil {
		return core.CredentialBundle{}, err
	}
	bundle := p.client.Bundle(token)
	bundle.ExpiresAt = nil
	bundle.Metadata["shop"] = shop
	bundle.Metadata["access_mode"] = "offline"
	return bundle, nil
}

// NormalizeShopDomain accepts a bare shop handle, a myshopify.com host or an
// https URL on that host and returns the lowercase host.
func NormalizeShopDomain(value string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return "", fmt.Errorf("providers/shopify: shop domain is required")
	}
	if strings.Contains(trimmed, "://") {
		parsed, err := url.Parse(trimmed)
		if err != nil {
			return "", fmt.Errorf("providers/shopify: parse shop domain: %w", err)
		}
		if parsed.Scheme != "https" || parsed.User != nil || parsed.Port() != "" {
			return "", fmt.Errorf("providers/shopify: invalid shop domain")
		}
		trimmed = parsed.Hostname()
	}
	trimmed = strings.TrimSuffix(trimmed, "/")
	if !strings.Contains(trimmed, ".") {
		trimmed += domainSuffix
	}
	if !shopDomainPattern.MatchString(trimmed) {
		return "", fmt.Errorf("providers/shopify: shop domain must be a %s host", domainSuffix)
	}
	return trimmed, nil
}

func forShop(template string, shop string) string {
	return strings.ReplaceAll(template, ShopPlaceholder, shop)
}

var (
	_ core.Exchanger  = (*Provider)(nil)
	_ core.Authorizer = (*Provider)(nil)
)
