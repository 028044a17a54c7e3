package core

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"
)

const testSigningSecret = "s3cret"

func fixedClock(at time.Time) Clock {
	return func() time.Time { return at }
}

type testExchanger struct {
	id     ProviderID
	bundle CredentialBundle
	err    error

	mu    sync.Mutex
	calls []ExchangeRequest
}

func (e *testExchanger) ID() ProviderID { return e.id }

func (e *testExchanger) Exchange(_ context.Context, req ExchangeRequest) (CredentialBundle, error) {
	e.mu.Lock()
	e.calls = append(e.calls, req)
	e.mu.Unlock()
	if e.err != nil {
		return CredentialBundle{}, e.err
	}
	return e.bundle.Clone(), nil
}

func (e *testExchanger) AuthorizationURL(req AuthorizationRequest) (string, error) {
	return "https://auth.example.com/authorize?state=" + req.State + "&redirect_uri=" + req.RedirectURI, nil
}

func (e *testExchanger) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

type testSecretProvider struct{}

func (testSecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("test secret provider: plaintext is required")
	}
	return []byte("enc:" + base64.StdEncoding.EncodeToString(plaintext)), nil
}

func (testSecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	raw := strings.TrimPrefix(string(ciphertext), "enc:")
	return base64.StdEncoding.DecodeString(raw)
}

func (testSecretProvider) KeyID() string { return "test-key" }

func (testSecretProvider) Version() int { return 3 }

type memoryCredentialStore struct {
	mu      sync.Mutex
	rows    map[string]StoredCredential
	upserts int
	err     error
	lastCtx context.Context
}

func newMemoryCredentialStore() *memoryCredentialStore {
	return &memoryCredentialStore{rows: map[string]StoredCredential{}}
}

func (s *memoryCredentialStore) Upsert(ctx context.Context, credential StoredCredential) (StoredCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCtx = ctx
	if s.err != nil {
		return StoredCredential{}, s.err
	}
	s.upserts++
	key := credential.OrganizationID + "/" + string(credential.Provider)
	if existing, ok := s.rows[key]; ok {
		credential.ID = existing.ID
		credential.CreatedAt = existing.CreatedAt
	} else {
		credential.ID = fmt.Sprintf("cred_%d", len(s.rows)+1)
	}
	s.rows[key] = credential
	return credential, nil
}

func (s *memoryCredentialStore) Exists(_ context.Context, organizationID string, provider ProviderID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rows[organizationID+"/"+string(provider)]
	return ok, nil
}

func (s *memoryCredentialStore) row(organizationID string, provider ProviderID) (StoredCredential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[organizationID+"/"+string(provider)]
	return row, ok
}

func (s *memoryCredentialStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

type staticIdentityVerifier struct {
	tokens map[string]Identity
}

func (v staticIdentityVerifier) VerifyBearer(_ context.Context, token string) (Identity, error) {
	identity, ok := v.tokens[token]
	if !ok {
		return Identity{}, ErrUnauthenticated
	}
	return identity, nil
}

type staticMembershipResolver struct {
	memberships map[string][]string
}

func (r staticMembershipResolver) PrimaryMembership(_ context.Context, userID string) (Membership, error) {
	orgs := r.memberships[userID]
	if len(orgs) == 0 {
		return Membership{}, ErrNoMembership
	}
	return Membership{UserID: userID, OrganizationID: orgs[0], Role: "owner"}, nil
}

func (r staticMembershipResolver) IsMember(_ context.Context, userID string, organizationID string) (bool, error) {
	for _, org := range r.memberships[userID] {
		if org == organizationID {
			return true, nil
		}
	}
	return false, nil
}

type failingAuditSink struct{}

func (failingAuditSink) Record(context.Context, AuditEvent) error {
	return fmt.Errorf("audit storage offline")
}

type recordingMetrics struct {
	mu       sync.Mutex
	counters map[string]int64
}

func (m *recordingMetrics) IncCounter(_ context.Context, name string, value int64, _ map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = map[string]int64{}
	}
	m.counters[name] += value
}

func (m *recordingMetrics) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.IntegrationsURL = "https://app.example.com/settings/integrations"
	cfg.CallbackURL = "https://api.example.com/oauth/callback"
	cfg.State.SigningSecret = testSigningSecret
	return cfg
}
