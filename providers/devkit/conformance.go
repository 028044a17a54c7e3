package devkit

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-connectors/core"
)

// ValidateExchangerConformance runs one successful exchange against server
// and checks the contract every adapter shares: a known id, exactly one
// outbound request and a bundle carrying the issued access token.
func ValidateExchangerConformance(
	ctx context.Context,
	exchanger core.Exchanger,
	server *TokenServer,
	req core.ExchangeRequest,
	wantAccessToken string,
) (core.CredentialBundle, error) {
	if exchanger == nil {
		return core.CredentialBundle{}, fmt.Errorf("devkit: exchanger is required")
	}
	if !exchanger.ID().Known() {
		return core.CredentialBundle{}, fmt.Errorf("devkit: exchanger id %q is not a known provider", exchanger.ID())
	}
	before := server.Calls()
	bundle, err := exchanger.Exchange(ctx, req)
	if err != nil {
		return core.CredentialBundle{}, err
	}
	if calls := server.Calls() - before; calls != 1 {
		return core.CredentialBundle{}, fmt.Errorf("devkit: expected exactly one token request, got %d", calls)
	}
	if bundle.AccessToken != wantAccessToken {
		return core.CredentialBundle{}, fmt.Errorf("devkit: unexpected access token in bundle")
	}
	if bundle.Provider != exchanger.ID() {
		return core.CredentialBundle{}, fmt.Errorf("devkit: bundle provider %q does not match %q", bundle.Provider, exchanger.ID())
	}
	return bundle, nil
}

// ValidateAuthorizerConformance checks that the authorization URL carries the
// state token and redirect uri untouched.
func ValidateAuthorizerConformance(authorizer core.Authorizer, req core.AuthorizationRequest) (*url.URL, error) {
	if authorizer == nil {
		return nil, fmt.Errorf("devkit: authorizer is required")
	}
	raw, err := authorizer.AuthorizationURL(req)
	if err != nil {
		return nil, err
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("devkit: parse authorization url: %w", err)
	}
	query := parsed.Query()
	if query.Get("state") != req.State {
		return nil, fmt.Errorf("devkit: authorization url state %q does not match", query.Get("state"))
	}
	if strings.TrimSpace(req.RedirectURI) != "" && query.Get("redirect_uri") != req.RedirectURI {
		return nil, fmt.Errorf("devkit: authorization url redirect_uri %q does not match", query.Get("redirect_uri"))
	}
	return parsed, nil
}
