// Package notion exchanges Notion authorization codes. The request body is
// JSON and the client credentials travel as HTTP Basic auth.
package notion

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-connectors/core"
	"github.com/goliatone/go-connectors/providers"
)

const (
	DefaultAuthURL  = "https://api.notion.com/v1/oauth/authorize"
	DefaultTokenURL = "https://api.notion.com/v1/oauth/token"
)

// workspace fields lifted from the token response into bundle metadata.
var metadataFields = []string{"workspace_id", "workspace_name", "bot_id"}

type Provider struct {
	authURL  string
	tokenURL string
	clientID string
	client   *providers.TokenClient
}

func New(creds core.ProviderCredentials, opts ...providers.Option) (*Provider, error) {
	client, err := providers.NewTokenClient(providers.TokenClientConfig{
		Provider:     core.ProviderNotion,
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Auth:         providers.ClientAuthBasic,
		Encoding:     providers.EncodeJSON,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("providers/notion: %w", err)
	}
	return &Provider{
		authURL:  providers.FirstNonEmpty(creds.AuthURL, DefaultAuthURL),
		tokenURL: providers.FirstNonEmpty(creds.TokenURL, DefaultTokenURL),
		clientID: strings.TrimSpace(creds.ClientID),
		client:   client,
	}, nil
}

func (p *Provider) ID() core.ProviderID {
	return core.ProviderNotion
}

func (p *Provider) AuthorizationURL(req core.AuthorizationRequest) (string, error) {
	if err := providers.RequireState(req.State); err != nil {
		return "", err
	}
	return providers.BuildAuthorizationURL(p.authURL, url.Values{
		"client_id":     {p.clientID},
		"response_type": {"code"},
		"owner":         {"user"},
		"redirect_uri":  {strings.TrimSpace(req.RedirectURI)},
		"state":         {req.State},
	})
}

func (p *Provider) Exchange(ctx context.Context, req core.ExchangeRequest) (core.CredentialBundle, error) {
	if strings.TrimSpace(req.Code) == "" {
		return core.CredentialBundle{}, core.NewExchangeError(core.ExchangeInvalidRequest, p.ID(), "authorization code is required", nil)
	}
	token, err := p.client.Exchange(ctx, providers.TokenRequest{
		URL: p.tokenURL,
		Fields: map[string]string{
			"grant_type":   "authorization_code",
			"code":         req.Code,
			"redirect_uri": req.RedirectURI,
		},
	})
	if err != nil {
		return core.CredentialBundle{}, err
	}
	bundle := p.client.Bundle(token)
	for _, field := range metadataFields {
		if value := providers.ReadString(token.Raw, field); value != "" {
			bundle.Metadata[field] = value
		}
	}
	return bundle, nil
}

var (
	_ core.Exchanger  = (*Provider)(nil)
	_ core.Authorizer = (*Provider)(nil)
)
