package core

import (
	"context"
	"strings"
	"time"
)

// Vault is the only component that sees credential plaintext. It encrypts a
// bundle and hands ciphertext to the store; there is no read path.
type Vault struct {
	store        CredentialStore
	secrets      SecretProvider
	codec        CredentialCodec
	clock        Clock
	writeTimeout time.Duration
}

type VaultOption func(*Vault)

func WithVaultCodec(codec CredentialCodec) VaultOption {
	return func(v *Vault) {
		if codec != nil {
			v.codec = codec
		}
	}
}

func WithVaultClock(clock Clock) VaultOption {
	return func(v *Vault) {
		if clock != nil {
			v.clock = clock
		}
	}
}

func WithVaultWriteTimeout(timeout time.Duration) VaultOption {
	return func(v *Vault) {
		if timeout > 0 {
			v.writeTimeout = timeout
		}
	}
}

// NewVault builds a vault over store. A nil secrets provider means no key is
// configured: every Write then fails with KEY_NOT_CONFIGURED.
func NewVault(store CredentialStore, secrets SecretProvider, opts ...VaultOption) *Vault {
	vault := &Vault{
		store:        store,
		secrets:      secrets,
		codec:        JSONCredentialCodec{},
		clock:        systemClock,
		writeTimeout: defaultVaultTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(vault)
		}
	}
	return vault
}

func (v *Vault) KeyConfigured() bool {
	return v != nil && v.secrets != nil
}

// Write encrypts and upserts the bundle keyed by organization and provider.
// The write is detached from ctx cancellation and bounded by its own timeout
// so a dropped client cannot abandon it halfway.
func (v *Vault) Write(ctx context.Context, bundle CredentialBundle) error {
	if err := validateBundle(bundle); err != nil {
		return err
	}
	if !v.KeyConfigured() {
		return &VaultError{Kind: VaultKeyNotConfigured}
	}
	if v.store == nil {
		return &VaultError{Kind: VaultStorageFailed, Cause: errCredentialStoreMissing}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.writeTimeout)
	defer cancel()

	payload, err := v.codec.Encode(bundle)
	if err != nil {
		return &VaultError{Kind: VaultEncryptionFailed, Cause: err}
	}
	ciphertext, err := v.secrets.Encrypt(writeCtx, payload)
	if err != nil {
		return &VaultError{Kind: VaultEncryptionFailed, Cause: err}
	}

	keyID, keyVersion := "", 0
	if keyed, ok := v.secrets.(KeyedSecretProvider); ok {
		keyID, keyVersion = keyed.KeyID(), keyed.Version()
	}
	now := v.clock().UTC()
	_, err = v.store.Upsert(writeCtx, StoredCredential{
		OrganizationID:    strings.TrimSpace(bundle.OrganizationID),
		Provider:          bundle.Provider,
		EncryptedPayload:  ciphertext,
		PayloadFormat:     v.codec.Format(),
		PayloadVersion:    v.codec.Version(),
		EncryptionKeyID:   keyID,
		EncryptionVersion: keyVersion,
		TokenType:         strings.TrimSpace(bundle.TokenType),
		Scope:             strings.TrimSpace(bundle.Scope),
		ExpiresAt:         cloneTimePointer(bundle.ExpiresAt),
		Metadata:          RedactSensitiveMap(bundle.Metadata),
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	if err != nil {
		return &VaultError{Kind: VaultStorageFailed, Cause: err}
	}
	return nil
}

func (v *Vault) Exists(ctx context.Context, organizationID string, provider ProviderID) (bool, error) {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return false, &VaultError{Kind: VaultInvalidBundle, Field: "org_id"}
	}
	if !provider.Known() {
		return false, &VaultError{Kind: VaultInvalidBundle, Field: "provider"}
	}
	if v == nil || v.store == nil {
		return false, &VaultError{Kind: VaultStorageFailed, Cause: errCredentialStoreMissing}
	}
	exists, err := v.store.Exists(ctx, organizationID, provider)
	if err != nil {
		return false, &VaultError{Kind: VaultStorageFailed, Cause: err}
	}
	return exists, nil
}

func validateBundle(bundle CredentialBundle) error {
	switch {
	case strings.TrimSpace(bundle.OrganizationID) == "":
		return &VaultError{Kind: VaultInvalidBundle, Field: "org_id"}
	case !bundle.Provider.Known():
		return &VaultError{Kind: VaultInvalidBundle, Field: "provider"}
	case strings.TrimSpace(bundle.AccessToken) == "":
		return &VaultError{Kind: VaultInvalidBundle, Field: "access_token"}
	}
	return nil
}
