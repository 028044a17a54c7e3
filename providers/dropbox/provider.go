// Package dropbox exchanges Dropbox authorization codes with a form-encoded
// request and HTTP Basic client credentials.
package dropbox

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-connectors/core"
	"github.com/goliatone/go-connectors/providers"
)

const (
	DefaultAuthURL  = "https://www.dropbox.com/oauth2/authorize"
	DefaultTokenURL = "https://api.dropboxapi.com/oauth2/token"
)

type Provider struct {
	authURL  string
	tokenURL string
	clientID string
	scopes   []string
	client   *providers.TokenClient
}

func New(creds core.ProviderCredentials, opts ...providers.Option) (*Provider, error) {
	client, err := providers.NewTokenClient(providers.TokenClientConfig{
		Provider:     core.ProviderDropbox,
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Auth:         providers.ClientAuthBasic,
		Encoding:     providers.EncodeForm,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("providers/dropbox: %w", err)
	}
	return &Provider{
		authURL:  providers.FirstNonEmpty(creds.AuthURL, DefaultAuthURL),
		tokenURL: providers.FirstNonEmpty(creds.TokenURL, DefaultTokenURL),
		clientID: strings.TrimSpace(creds.ClientID),
		scopes:   providers.ScopesOrDefault(creds.Scopes, nil),
		client:   client,
	}, nil
}

func (p *Provider) ID() core.ProviderID {
	return core.ProviderDropbox
}

func (p *Provider) AuthorizationURL(req core.AuthorizationRequest) (string, error) {
	if err := providers.RequireState(req.State); err != nil {
		return "", err
	}
	return providers.BuildAuthorizationURL(p.authURL, url.Values{
		"response_type":     {"code"},
		"client_id":         {p.clientID},
		"redirect_uri":      {strings.TrimSpace(req.RedirectURI)},
		"state":             {req.State},
		"token_access_type": {"offline"},
		"scope":             {strings.Join(providers.ScopesOrDefault(req.Scopes, p.scopes), " ")},
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
	if accountID := providers.ReadString(token.Raw, "account_id"); accountID != "" {
		bundle.Metadata["account_id"] = accountID
	}
	if teamID := providers.ReadString(token.Raw, "team_id"); teamID != "" {
		bundle.Metadata["team_id"] = teamID
	}
	return bundle, nil
}

var (
	_ core.Exchanger  = (*Provider)(nil)
	_ core.Authorizer = (*Provider)(nil)
)
