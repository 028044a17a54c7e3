package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-connectors/core"
	connectormigrations "github.com/goliatone/go-connectors/migrations"
	sqlstore "github.com/goliatone/go-connectors/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-connectors-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, table := range []string{"connector_credentials", "connector_audit_events", "organization_members"} {
		var name string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(context.Background(), &name); err != nil {
			t.Fatalf("query sqlite master for %s: %v", table, err)
		}
		if name != table {
			t.Fatalf("expected table %s, got %q", table, name)
		}
	}
}

func TestCredentialStore_DoubleWriteKeepsOneRow(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()
	store := factory.CredentialStore()

	first, err := store.Upsert(ctx, storedCredential("org-1", core.ProviderDropbox, "first", map[string]any{"account_id": "dbid:1"}))
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	second, err := store.Upsert(ctx, storedCredential("org-1", core.ProviderDropbox, "second", map[string]any{"account_id": "dbid:2"}))
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected row id %q to be kept, got %q", first.ID, second.ID)
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one credential row, got %d", count)
	}
	stored, err := store.Get(ctx, "org-1", core.ProviderDropbox)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(stored.EncryptedPayload) != "second" {
		t.Fatalf("expected second payload, got %q", stored.EncryptedPayload)
	}
	if stored.Metadata["account_id"] != "dbid:2" {
		t.Fatalf("expected second metadata, got %#v", stored.Metadata)
	}
	if stored.ExpiresAt == nil {
		t.Fatalf("expected expires_at to round trip")
	}
}

func TestCredentialStore_ConcurrentWritesConverge(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()
	store := factory.CredentialStore()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for idx := 0; idx < 8; idx++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, err := store.Upsert(ctx, storedCredential("org-2", core.ProviderNotion, fmt.Sprintf("payload-%d", idx), nil))
			errs <- err
		}(idx)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent upsert: %v", err)
		}
	}
	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected concurrent writes to converge on one row, got %d", count)
	}
}

func TestCredentialStore_ExistsAndNotFound(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()
	store := factory.CredentialStore()

	exists, err := store.Exists(ctx, "org-3", core.ProviderShopify)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists {
		t.Fatalf("expected no credential before write")
	}
	if _, err := store.Get(ctx, "org-3", core.ProviderShopify); !errors.Is(err, sqlstore.ErrCredentialNotFound) {
		t.Fatalf("expected ErrCredentialNotFound, got %v", err)
	}

	if _, err := store.Upsert(ctx, storedCredential("org-3", core.ProviderShopify, "x", nil)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	exists, err = store.Exists(ctx, "org-3", core.ProviderShopify)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !exists {
		t.Fatalf("expected credential after write")
	}
	exists, err = store.Exists(ctx, "org-3", core.ProviderDropbox)
	if err != nil {
		t.Fatalf("exists other provider: %v", err)
	}
	if exists {
		t.Fatalf("expected other provider to be absent")
	}
}

func TestCredentialStore_RejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()
	store := factory.CredentialStore()

	if _, err := store.Upsert(ctx, storedCredential("", core.ProviderDropbox, "x", nil)); err == nil {
		t.Fatalf("expected missing organization to fail")
	}
	if _, err := store.Upsert(ctx, storedCredential("org", core.ProviderID("github"), "x", nil)); err == nil {
		t.Fatalf("expected unknown provider to fail")
	}
	if _, err := store.Upsert(ctx, storedCredential("org", core.ProviderDropbox, "", nil)); err == nil {
		t.Fatalf("expected empty payload to fail")
	}
}

func TestCredentialStore_WorksBehindVault(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	vault := core.NewVault(factory.CredentialStore(), reverseSecretProvider{})
	bundle := core.CredentialBundle{
		OrganizationID: "org-4",
		Provider:       core.ProviderGoogleDrive,
		AccessToken:    "ya29.token",
		RefreshToken:   "1//refresh",
		TokenType:      "bearer",
		Metadata:       map[string]any{},
	}
	if err := vault.Write(ctx, bundle); err != nil {
		t.Fatalf("vault write: %v", err)
	}
	stored, err := factory.CredentialStore().Get(ctx, "org-4", core.ProviderGoogleDrive)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(stored.EncryptedPayload) == "" {
		t.Fatalf("expected ciphertext to be stored")
	}
	for _, secret := range []string{"ya29.token", "1//refresh"} {
		if containsBytes(stored.EncryptedPayload, secret) {
			t.Fatalf("expected plaintext %q to be absent from stored payload", secret)
		}
	}
	connected, err := vault.Exists(ctx, "org-4", core.ProviderGoogleDrive)
	if err != nil {
		t.Fatalf("vault exists: %v", err)
	}
	if !connected {
		t.Fatalf("expected vault to report the credential")
	}
}

func TestAuditStore_ChainVerifiesAcrossRoundTrip(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()
	audit := factory.AuditStore()

	base := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	for idx := 0; idx < 3; idx++ {
		if err := audit.Record(ctx, core.AuditEvent{
			ActorID:        "user-1",
			OrganizationID: "org-1",
			Action:         core.AuditActionStateMismatch,
			ResourceType:   core.AuditResourceOAuthCallback,
			ResourceID:     "dropbox",
			Metadata:       map[string]any{"provider_id": "dropbox", "attempt": idx},
			Timestamp:      base.Add(time.Duration(idx) * time.Second),
		}); err != nil {
			t.Fatalf("record %d: %v", idx, err)
		}
	}

	events, err := audit.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].PrevHash != "" {
		t.Fatalf("expected first event to start the chain")
	}
	for idx := 1; idx < len(events); idx++ {
		if events[idx].PrevHash != events[idx-1].Hash {
			t.Fatalf("event %d is not linked to its predecessor", idx)
		}
	}
	broken, err := audit.Verify(ctx)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if broken != -1 {
		t.Fatalf("expected intact chain, first break at %d", broken)
	}

	events[1].ResourceID = "notion"
	broken, err = core.VerifyChain(events)
	if err != nil {
		t.Fatalf("verify tampered: %v", err)
	}
	if broken != 1 {
		t.Fatalf("expected tampering detected at 1, got %d", broken)
	}
}

func TestAuditStore_ConcurrentAppendsStayLinear(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()
	audit := factory.AuditStore()

	var wg sync.WaitGroup
	for idx := 0; idx < 6; idx++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			if err := audit.Record(ctx, core.AuditEvent{
				OrganizationID: fmt.Sprintf("org-%d", idx),
				Action:         core.AuditActionExchangeFailed,
				ResourceType:   core.AuditResourceOAuthCallback,
			}); err != nil {
				t.Errorf("record %d: %v", idx, err)
			}
		}(idx)
	}
	wg.Wait()

	events, err := audit.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 6 {
		t.Fatalf("expected 6 events, got %d", len(events))
	}
	broken, err := core.VerifyChain(events)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if broken != -1 {
		t.Fatalf("expected linear chain, first break at %d", broken)
	}
}

func TestAuditStore_RequiresAction(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()
	if err := factory.AuditStore().Record(context.Background(), core.AuditEvent{}); err == nil {
		t.Fatalf("expected missing action to fail")
	}
}

func TestMembershipStore_PrimaryIsOldest(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()
	members := factory.MembershipStore()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := members.Add(ctx, core.Membership{UserID: "user-1", OrganizationID: "org-new", Role: "member"}, base.Add(time.Hour)); err != nil {
		t.Fatalf("add newer: %v", err)
	}
	if err := members.Add(ctx, core.Membership{UserID: "user-1", OrganizationID: "org-old", Role: "owner"}, base); err != nil {
		t.Fatalf("add older: %v", err)
	}

	primary, err := members.PrimaryMembership(ctx, "user-1")
	if err != nil {
		t.Fatalf("primary membership: %v", err)
	}
	if primary.OrganizationID != "org-old" || primary.Role != "owner" {
		t.Fatalf("expected oldest membership, got %#v", primary)
	}

	if _, err := members.PrimaryMembership(ctx, "user-2"); !errors.Is(err, core.ErrNoMembership) {
		t.Fatalf("expected ErrNoMembership, got %v", err)
	}

	member, err := members.IsMember(ctx, "user-1", "org-new")
	if err != nil {
		t.Fatalf("is member: %v", err)
	}
	if !member {
		t.Fatalf("expected user-1 to be a member of org-new")
	}
	member, err = members.IsMember(ctx, "user-1", "org-other")
	if err != nil {
		t.Fatalf("is member other: %v", err)
	}
	if member {
		t.Fatalf("expected user-1 not to be a member of org-other")
	}
}

func TestMembershipStore_RejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()
	members := factory.MembershipStore()

	membership := core.Membership{UserID: "user-1", OrganizationID: "org-1"}
	if err := members.Add(ctx, membership, time.Time{}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := members.Add(ctx, membership, time.Time{}); err == nil {
		t.Fatalf("expected duplicate membership to fail")
	}
}

func TestRepositoryFactory_RequiresClient(t *testing.T) {
	if _, err := sqlstore.NewRepositoryFactoryFromPersistence(nil); err == nil {
		t.Fatalf("expected nil client to fail")
	}
	if _, err := sqlstore.NewRepositoryFactoryFromDB(nil); err == nil {
		t.Fatalf("expected nil db to fail")
	}
}

func storedCredential(orgID string, provider core.ProviderID, payload string, metadata map[string]any) core.StoredCredential {
	expiresAt := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	return core.StoredCredential{
		OrganizationID:    orgID,
		Provider:          provider,
		EncryptedPayload:  []byte(payload),
		PayloadFormat:     "json",
		PayloadVersion:    1,
		EncryptionKeyID:   "app-key",
		EncryptionVersion: 1,
		TokenType:         "bearer",
		Scope:             "files.read",
		ExpiresAt:         &expiresAt,
		Metadata:          metadata,
	}
}

type reverseSecretProvider struct{}

func (reverseSecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	out := make([]byte, len(plaintext))
	for idx, b := range plaintext {
		out[len(plaintext)-1-idx] = b ^ 0x5a
	}
	return out, nil
}

func (reverseSecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	out := make([]byte, len(ciphertext))
	for idx, b := range ciphertext {
		out[len(ciphertext)-1-idx] = b ^ 0x5a
	}
	return out, nil
}

func containsBytes(haystack []byte, needle string) bool {
	if len(needle) == 0 || len(haystack) < len(needle) {
		return false
	}
	for idx := 0; idx+len(needle) <= len(haystack); idx++ {
		if string(haystack[idx:idx+len(needle)]) == needle {
			return true
		}
	}
	return false
}

func newFactory(t *testing.T) (*sqlstore.RepositoryFactory, func()) {
	t.Helper()
	client, cleanup := newSQLiteClient(t)
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		cleanup()
		t.Fatalf("new repository factory: %v", err)
	}
	return factory, cleanup
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:connectors-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	client, err := persistence.New(testPersistenceConfig{driver: "sqlite3", server: dsn}, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}
	if err := connectormigrations.Apply(context.Background(), client, connectormigrations.DialectSQLite); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}
	return client, func() {
		_ = client.Close()
	}
}

func TestOpenClient_SQLite(t *testing.T) {
	dsn := fmt.Sprintf("file:connectors-open-%d?mode=memory&cache=shared", time.Now().UnixNano())
	client, err := sqlstore.OpenClient(core.DatabaseConfig{Driver: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("open client: %v", err)
	}
	defer client.Close()

	if err := connectormigrations.Apply(context.Background(), client, connectormigrations.DialectSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	count, err := factory.CredentialStore().Count(context.Background())
	if err != nil || count != 0 {
		t.Fatalf("expected empty credential table, got %d (%v)", count, err)
	}
}

func TestOpenClient_RejectsMissingDSNAndUnknownDriver(t *testing.T) {
	if _, err := sqlstore.OpenClient(core.DatabaseConfig{Driver: "sqlite"}); err == nil {
		t.Fatalf("expected missing dsn error")
	}
	if _, err := sqlstore.OpenClient(core.DatabaseConfig{Driver: "mysql", DSN: "x"}); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
	if got := sqlstore.DriverName("PostgreSQL"); got != "postgres" {
		t.Fatalf("unexpected driver name %q", got)
	}
}
