package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-connectors/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// CredentialStore keeps one encrypted row per organization and provider.
type CredentialStore struct {
	db    *bun.DB
	repo  repository.Repository[*credentialRecord]
	clock core.Clock
}

func NewCredentialStore(db *bun.DB) (*CredentialStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*credentialRecord](db, credentialHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid credential repository wiring: %w", err)
		}
	}
	return &CredentialStore{
		db:    db,
		repo:  repo,
		clock: func() time.Time { return time.Now().UTC() },
	}, nil
}

// Upsert inserts the credential or replaces the ciphertext and descriptive
// columns of the existing row in one statement. The row id and created_at of
// an existing row are kept.
func (s *CredentialStore) Upsert(ctx context.Context, in core.StoredCredential) (core.StoredCredential, error) {
	if s == nil || s.db == nil {
		return core.StoredCredential{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	if strings.TrimSpace(in.OrganizationID) == "" {
		return core.StoredCredential{}, fmt.Errorf("sqlstore: organization id is required")
	}
	if !in.Provider.Known() {
		return core.StoredCredential{}, fmt.Errorf("sqlstore: unknown provider %q", in.Provider)
	}
	if len(in.EncryptedPayload) == 0 {
		return core.StoredCredential{}, fmt.Errorf("sqlstore: encrypted payload is required")
	}

	record := newCredentialRecord(in, s.clock())
	var stored core.StoredCredential
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().
			Model(record).
			On("CONFLICT (organization_id, provider) DO UPDATE").
			Set("encrypted_payload = EXCLUDED.encrypted_payload").
			Set("payload_format = EXCLUDED.payload_format").
			Set("payload_version = EXCLUDED.payload_version").
			Set("encryption_key_id = EXCLUDED.encryption_key_id").
			Set("encryption_version = EXCLUDED.encryption_version").
			Set("token_type = EXCLUDED.token_type").
			Set("scope = EXCLUDED.scope").
			Set("expires_at = EXCLUDED.expires_at").
			Set("metadata = EXCLUDED.metadata").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx); err != nil {
			return err
		}
		current := &credentialRecord{}
		if err := tx.NewSelect().
			Model(current).
			Where("?TableAlias.organization_id = ?", record.OrganizationID).
			Where("?TableAlias.provider = ?", record.Provider).
			Limit(1).
			Scan(ctx); err != nil {
			return err
		}
		stored = current.toDomain()
		return nil
	})
	if err != nil {
		return core.StoredCredential{}, err
	}
	return stored, nil
}

func (s *CredentialStore) Exists(ctx context.Context, organizationID string, provider core.ProviderID) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: credential store is not configured")
	}
	return s.db.NewSelect().
		Model((*credentialRecord)(nil)).
		Where("?TableAlias.organization_id = ?", strings.TrimSpace(organizationID)).
		Where("?TableAlias.provider = ?", string(provider)).
		Exists(ctx)
}

// Get returns the stored ciphertext row. It exists for operators and tests;
// the connector itself only writes and checks existence.
func (s *CredentialStore) Get(ctx context.Context, organizationID string, provider core.ProviderID) (core.StoredCredential, error) {
	if s == nil || s.repo == nil {
		return core.StoredCredential{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("organization_id", "=", strings.TrimSpace(organizationID)),
		repository.SelectBy("provider", "=", string(provider)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.StoredCredential{}, ErrCredentialNotFound
		}
		return core.StoredCredential{}, err
	}
	if len(records) == 0 {
		return core.StoredCredential{}, ErrCredentialNotFound
	}
	return records[0].toDomain(), nil
}

func (s *CredentialStore) Count(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: credential store is not configured")
	}
	return s.db.NewSelect().Model((*credentialRecord)(nil)).Count(ctx)
}
