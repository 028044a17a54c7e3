// Package googledrive exchanges Google authorization codes for Drive access
// through golang.org/x/oauth2.
package googledrive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/goliatone/go-connectors/core"
	"github.com/goliatone/go-connectors/providers"
)

const (
	DefaultAuthURL  = "https://accounts.google.com/o/oauth2/auth"
	DefaultTokenURL = "https://oauth2.googleapis.com/token"

	ScopeDriveFile     = "https://www.googleapis.com/auth/drive.file"
	ScopeDriveReadonly = "https://www.googleapis.com/auth/drive.readonly"
)

type Provider struct {
	oauth    oauth2.Config
	settings providers.Settings
	client   *http.Client
}

func New(creds core.ProviderCredentials, opts ...providers.Option) (*Provider, error) {
	clientID := strings.TrimSpace(creds.ClientID)
	if clientID == "" {
		return nil, fmt.Errorf("providers/googledrive: client id is required")
	}
	settings := providers.ResolveSettings(opts...)
	return &Provider{
		oauth: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: strings.TrimSpace(creds.ClientSecret),
			Endpoint: oauth2.Endpoint{
				AuthURL:  providers.FirstNonEmpty(creds.AuthURL, DefaultAuthURL),
				TokenURL: providers.FirstNonEmpty(creds.TokenURL, DefaultTokenURL),
				// Auto-detection retries with the other style on failure.
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: providers.ScopesOrDefault(creds.Scopes, []string{ScopeDriveFile}),
		},
		settings: settings,
		client:   httpClient(settings),
	}, nil
}

func (p *Provider) ID() core.ProviderID {
	return core.ProviderGoogleDrive
}

func (p *Provider) AuthorizationURL(req core.AuthorizationRequest) (string, error) {
	if err := providers.RequireState(req.State); err != nil {
		return "", err
	}
	cfg := p.oauth
	cfg.RedirectURL = strings.TrimSpace(req.RedirectURI)
	cfg.Scopes = providers.ScopesOrDefault(req.Scopes, p.oauth.Scopes)
	return cfg.AuthCodeURL(req.State,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	), nil
}

func (p *Provider) Exchange(ctx context.Context, req core.ExchangeRequest) (core.CredentialBundle, error) {
	if strings.TrimSpace(req.Code) == "" {
		return core.CredentialBundle{}, core.NewExchangeError(core.ExchangeInvalidRequest, p.ID(), "authorization code is required", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	requestCtx, cancel := context.WithTimeout(ctx, p.settings.Timeout)
	defer cancel()
	requestCtx = context.WithValue(requestCtx, oauth2.HTTPClient, p.client)

	cfg := p.oauth
	cfg.RedirectURL = strings.TrimSpace(req.RedirectURI)
	token, err := cfg.Exchange(requestCtx, strings.TrimSpace(req.Code))
	if err != nil {
		return core.CredentialBundle{}, p.classify(err)
	}

	bundle := core.CredentialBundle{
		Provider:     p.ID(),
		TokenType:    providers.NormalizeTokenType(token.TokenType),
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Scope:        providers.ReadString(map[string]any{"scope": token.Extra("scope")}, "scope"),
		ExpiresAt:    providers.ExpiresAt(p.settings.Clock, providers.ReadInt64(map[string]any{"expires_in": token.Extra("expires_in")}, "expires_in")),
		Metadata:     map[string]any{},
	}
	if bundle.ExpiresAt == nil && !token.Expiry.IsZero() {
		expiry := token.Expiry.UTC()
		bundle.ExpiresAt = &expiry
	}
	return bundle, nil
}

func (p *Provider) classify(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		p.settings.Logger.Warn("provider token exchange rejected",
			"provider_id", string(p.ID()),
			"provider_status", status,
			"body", providers.RedactedBody(retrieveErr.Body),
		)
		message := providers.FirstNonEmpty(retrieveErr.ErrorDescription, retrieveErr.ErrorCode, "token endpoint error")
		return &core.ExchangeError{
			Kind:           core.ExchangeProviderRejected,
			Provider:       p.ID(),
			ProviderStatus: status,
			Message:        message,
		}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		p.settings.Logger.Warn("provider token endpoint unreachable",
			"provider_id", string(p.ID()),
			"error", err.Error(),
		)
		return core.NewExchangeError(core.ExchangeProviderUnreachable, p.ID(), "token request failed", err)
	}
	// oauth2 reports a 2xx body without access_token as a plain error.
	return &core.ExchangeError{
		Kind:           core.ExchangeProviderRejected,
		Provider:       p.ID(),
		ProviderStatus: http.StatusOK,
		Message:        "token response rejected",
		Cause:          err,
	}
}

func httpClient(settings providers.Settings) *http.Client {
	if client, ok := settings.HTTPClient.(*http.Client); ok {
		return client
	}
	return &http.Client{
		Timeout:   settings.Timeout,
		Transport: doerTransport{doer: settings.HTTPClient},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

type doerTransport struct {
	doer providers.HTTPDoer
}

func (t doerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.doer.Do(req)
}

var (
	_ core.Exchanger  = (*Provider)(nil)
	_ core.Authorizer = (*Provider)(nil)
)
