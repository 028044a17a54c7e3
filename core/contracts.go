package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type ProviderID string

const (
	ProviderGoogleDrive ProviderID = "google_drive"
	ProviderDropbox     ProviderID = "dropbox"
	ProviderShopify     ProviderID = "shopify"
	ProviderNotion      ProviderID = "notion"
)

var knownProviders = map[ProviderID]struct{}{
	ProviderGoogleDrive: {},
	ProviderDropbox:     {},
	ProviderShopify:     {},
	ProviderNotion:      {},
}

func ParseProviderID(value string) (ProviderID, error) {
	id := ProviderID(strings.ToLower(strings.TrimSpace(value)))
	if id == "" {
		return "", fmt.Errorf("%w: provider is required", ErrUnsupportedProvider)
	}
	if _, ok := knownProviders[id]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedProvider, value)
	}
	return id, nil
}

func (p ProviderID) Known() bool {
	_, ok := knownProviders[p]
	return ok
}

func KnownProviders() []ProviderID {
	out := make([]ProviderID, 0, len(knownProviders))
	for id := range knownProviders {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CredentialBundle is the provider-neutral result of a code exchange. It must
// only ever be handed to the vault; String and GoString redact the secrets.
type CredentialBundle struct {
	OrganizationID string
	Provider       ProviderID
	TokenType      string
	AccessToken    string
	RefreshToken   string
	ExpiresAt      *time.Time
	Scope          string
	Metadata       map[string]any
}

func (b CredentialBundle) String() string {
	return fmt.Sprintf(
		"CredentialBundle{organization_id=%s provider=%s access_token=%s refresh_token=%s}",
		TruncateIdentifier(b.OrganizationID),
		b.Provider,
		RedactedValue,
		redactIfSet(b.RefreshToken),
	)
}

func (b CredentialBundle) GoString() string {
	return b.String()
}

func (b CredentialBundle) Clone() CredentialBundle {
	out := b
	out.ExpiresAt = cloneTimePointer(b.ExpiresAt)
	out.Metadata = copyAnyMap(b.Metadata)
	return out
}

func redactIfSet(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return RedactedValue
}

type ExchangeRequest struct {
	Provider       ProviderID
	OrganizationID string
	Code           string
	RedirectURI    string
	ProviderHint   string
}

type AuthorizationRequest struct {
	Provider     ProviderID
	State        string
	RedirectURI  string
	ProviderHint string
	Scopes       []string
}

// Exchanger turns a one-time authorization code into a credential bundle. An
// implementation issues exactly one request to the provider token endpoint.
type Exchanger interface {
	ID() ProviderID
	Exchange(ctx context.Context, req ExchangeRequest) (CredentialBundle, error)
}

// Authorizer is implemented by adapters that can build the outbound
// authorization URL carrying the state token.
type Authorizer interface {
	AuthorizationURL(req AuthorizationRequest) (string, error)
}

type Identity struct {
	UserID    string
	SessionID string
	Email     string
}

type Membership struct {
	UserID         string
	OrganizationID string
	Role           string
}

// IdentityVerifier resolves a bearer credential to an authenticated user.
type IdentityVerifier interface {
	VerifyBearer(ctx context.Context, token string) (Identity, error)
}

// MembershipResolver answers org membership questions for a user.
type MembershipResolver interface {
	PrimaryMembership(ctx context.Context, userID string) (Membership, error)
	IsMember(ctx context.Context, userID string, organizationID string) (bool, error)
}

type StoredCredential struct {
	ID                string
	OrganizationID    string
	Provider          ProviderID
	EncryptedPayload  []byte
	PayloadFormat     string
	PayloadVersion    int
	EncryptionKeyID   string
	EncryptionVersion int
	TokenType         string
	Scope             string
	ExpiresAt         *time.Time
	Metadata          map[string]any
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CredentialStore persists ciphertext only. Upsert replaces any existing row
// for the same organization and provider atomically.
type CredentialStore interface {
	Upsert(ctx context.Context, credential StoredCredential) (StoredCredential, error)
	Exists(ctx context.Context, organizationID string, provider ProviderID) (bool, error)
}

type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// KeyedSecretProvider exposes the key identity recorded next to ciphertext.
type KeyedSecretProvider interface {
	SecretProvider
	KeyID() string
	Version() int
}

type AuditSink interface {
	Record(ctx context.Context, event AuditEvent) error
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}
