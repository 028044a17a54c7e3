package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	CredentialPayloadFormatJSONV1 = "credential_bundle_json"
	CredentialPayloadVersionV1    = 1
)

// CredentialCodec serializes the secret half of a bundle before encryption.
type CredentialCodec interface {
	Format() string
	Version() int
	Encode(bundle CredentialBundle) ([]byte, error)
	Decode(payload []byte) (CredentialBundle, error)
}

type JSONCredentialCodec struct{}

func (JSONCredentialCodec) Format() string {
	return CredentialPayloadFormatJSONV1
}

func (JSONCredentialCodec) Version() int {
	return CredentialPayloadVersionV1
}

type jsonCredentialPayload struct {
	Version      int            `json:"v"`
	Provider     string         `json:"provider"`
	TokenType    string         `json:"token_type,omitempty"`
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token,omitempty"`
	Scope        string         `json:"scope,omitempty"`
	ExpiresAt    *time.Time     `json:"expires_at,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func (JSONCredentialCodec) Encode(bundle CredentialBundle) ([]byte, error) {
	payload := jsonCredentialPayload{
		Version:      CredentialPayloadVersionV1,
		Provider:     string(bundle.Provider),
		TokenType:    strings.TrimSpace(bundle.TokenType),
		AccessToken:  strings.TrimSpace(bundle.AccessToken),
		RefreshToken: strings.TrimSpace(bundle.RefreshToken),
		Scope:        strings.TrimSpace(bundle.Scope),
		ExpiresAt:    cloneTimePointer(bundle.ExpiresAt),
		Metadata:     copyAnyMap(bundle.Metadata),
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("core: encode credential payload: %w", err)
	}
	return encoded, nil
}

func (JSONCredentialCodec) Decode(payload []byte) (CredentialBundle, error) {
	if len(payload) == 0 {
		return CredentialBundle{}, fmt.Errorf("core: credential payload is empty")
	}
	decoded := jsonCredentialPayload{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return CredentialBundle{}, fmt.Errorf("core: decode credential payload: %w", err)
	}
	if decoded.Version != CredentialPayloadVersionV1 {
		return CredentialBundle{}, fmt.Errorf("core: unsupported credential payload version %d", decoded.Version)
	}
	return CredentialBundle{
		Provider:     ProviderID(decoded.Provider),
		TokenType:    decoded.TokenType,
		AccessToken:  decoded.AccessToken,
		RefreshToken: decoded.RefreshToken,
		Scope:        decoded.Scope,
		ExpiresAt:    cloneTimePointer(decoded.ExpiresAt),
		Metadata:     copyAnyMap(decoded.Metadata),
	}, nil
}

func cloneTimePointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := value.UTC()
	return &clone
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
