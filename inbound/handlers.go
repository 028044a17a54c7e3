package inbound

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	gocmd "github.com/goliatone/go-command"
	connectorcommand "github.com/goliatone/go-connectors/command"
	"github.com/goliatone/go-connectors/core"
	connectorquery "github.com/goliatone/go-connectors/query"
)

type authorizeRequest struct {
	Provider    string   `json:"provider"`
	RedirectURI string   `json:"redirect_uri"`
	Shop        string   `json:"shop"`
	Scopes      []string `json:"scopes"`
}

type authorizeResponse struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

type writeCredentialRequest struct {
	OrganizationID string         `json:"org_id"`
	Provider       string         `json:"provider"`
	AccessToken    string         `json:"access_token"`
	RefreshToken   string         `json:"refresh_token"`
	TokenType      string         `json:"token_type"`
	ExpiresAt      *time.Time     `json:"expires_at"`
	Scope          string         `json:"scope"`
	Metadata       map[string]any `json:"metadata"`
}

// handleCallback never echoes the code or any token: the browser only sees
// the redirect the service built.
func (rt *router) handleCallback(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	msg := connectorcommand.CompleteCallbackMessage{Request: core.CallbackRequest{
		BearerToken:  bearerToken(r),
		Code:         params.Get("code"),
		State:        params.Get("state"),
		Provider:     params.Get("provider"),
		ProviderHint: params.Get("shop"),
	}}

	collector := gocmd.NewResult[core.CallbackOutcome]()
	ctx := gocmd.ContextWithResult(r.Context(), collector)
	if err := rt.handlers.CompleteCallback.Execute(ctx, msg); err != nil {
		rt.writeError(w, r, err)
		return
	}
	outcome, ok := collector.Load()
	if !ok {
		rt.writeError(w, r, fmt.Errorf("inbound: callback produced no outcome"))
		return
	}
	if outcome.Redirect() {
		w.Header().Set("Cache-Control", "no-store")
		http.Redirect(w, r, outcome.RedirectURL, http.StatusFound)
		return
	}
	err := outcome.Err
	if err == nil {
		err = fmt.Errorf("inbound: callback ended in %s without redirect", outcome.State)
	}
	rt.writeError(w, r, err)
}

func (rt *router) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	principal, ok := rt.authenticate(w, r)
	if !ok {
		return
	}
	var body authorizeRequest
	if err := decodeJSON(r, &body); err != nil {
		rt.writeError(w, r, err)
		return
	}
	msg := connectorcommand.BeginConnectMessage{
		Principal: principal,
		Request: core.BeginConnectRequest{
			Provider:     body.Provider,
			RedirectURI:  body.RedirectURI,
			ProviderHint: body.Shop,
			Scopes:       body.Scopes,
		},
	}
	if err := msg.Validate(); err != nil {
		rt.writeError(w, r, err)
		return
	}

	collector := gocmd.NewResult[core.BeginConnectResponse]()
	ctx := gocmd.ContextWithResult(r.Context(), collector)
	if err := rt.handlers.BeginConnect.Execute(ctx, msg); err != nil {
		rt.writeError(w, r, err)
		return
	}
	out, ok := collector.Load()
	if !ok {
		rt.writeError(w, r, fmt.Errorf("inbound: connect produced no result"))
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, authorizeResponse{URL: out.URL, State: out.State})
}

func (rt *router) handleWriteCredential(w http.ResponseWriter, r *http.Request) {
	principal, ok := rt.authenticate(w, r)
	if !ok {
		return
	}
	var body writeCredentialRequest
	if err := decodeJSON(r, &body); err != nil {
		rt.writeError(w, r, err)
		return
	}
	msg := connectorcommand.WriteCredentialMessage{
		Principal: principal,
		Request: core.WriteCredentialRequest{
			OrganizationID: body.OrganizationID,
			Provider:       body.Provider,
			AccessToken:    body.AccessToken,
			RefreshToken:   body.RefreshToken,
			TokenType:      body.TokenType,
			ExpiresAt:      body.ExpiresAt,
			Scope:          body.Scope,
			Metadata:       body.Metadata,
		},
	}
	if err := msg.Validate(); err != nil {
		rt.writeError(w, r, err)
		return
	}
	if err := rt.handlers.WriteCredential.Execute(r.Context(), msg); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *router) handleCredentialStatus(w http.ResponseWriter, r *http.Request) {
	principal, ok := rt.authenticate(w, r)
	if !ok {
		return
	}
	status, err := rt.handlers.CredentialStatus.Query(r.Context(), connectorquery.CredentialStatusMessage{
		Principal:      principal,
		OrganizationID: chi.URLParam(r, "org_id"),
		Provider:       chi.URLParam(r, "provider"),
	})
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func decodeJSON(r *http.Request, target any) error {
	if r.Body == nil {
		return inboundBadInput("body", "Request body is required")
	}
	if contentType := r.Header.Get("Content-Type"); contentType != "" &&
		!strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "application/json") {
		return inboundBadInput("body", "Request body must be JSON")
	}
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return inboundBadInput("body", "Request body is required")
		}
		return inboundWrapBadInput(err, "body", "Request body is not valid JSON")
	}
	return nil
}
