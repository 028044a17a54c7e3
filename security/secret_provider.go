package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/goliatone/go-connectors/core"
)

const (
	defaultKeyID      = "app-key"
	defaultKeyVersion = 1
	keySize           = 32
)

type keyVersion struct {
	id      string
	version int
	aead    cipher.AEAD
}

// AESGCMSecretProvider encrypts and decrypts with a single versioned key.
// Envelopes sealed under another key id or version are refused.
type AESGCMSecretProvider struct {
	active keyVersion
	random io.Reader
}

type Option func(*providerOptions)

type providerOptions struct {
	keyID   string
	version int
	random  io.Reader
}

func WithKeyID(id string) Option {
	return func(o *providerOptions) {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			o.keyID = trimmed
		}
	}
}

func WithVersion(version int) Option {
	return func(o *providerOptions) {
		if version > 0 {
			o.version = version
		}
	}
}

func withRandom(reader io.Reader) Option {
	return func(o *providerOptions) {
		if reader != nil {
			o.random = reader
		}
	}
}

func NewAESGCMSecretProvider(keyMaterial []byte, opts ...Option) (*AESGCMSecretProvider, error) {
	options := providerOptions{
		keyID:   defaultKeyID,
		version: defaultKeyVersion,
		random:  rand.Reader,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	active, err := newKeyVersion(options.keyID, options.version, keyMaterial)
	if err != nil {
		return nil, err
	}
	return &AESGCMSecretProvider{
		active: active,
		random: options.random,
	}, nil
}

// NewSecretProviderFromConfig returns nil when no encryption key is
// configured, which leaves the vault refusing writes.
func NewSecretProviderFromConfig(cfg core.VaultConfig) (core.SecretProvider, error) {
	material := strings.TrimSpace(cfg.EncryptionKey)
	if material == "" {
		return nil, nil
	}
	provider, err := NewAESGCMSecretProvider([]byte(material), WithKeyID(cfg.KeyID), WithVersion(cfg.KeyVersion))
	if err != nil {
		return nil, err
	}
	return provider, nil
}

func (p *AESGCMSecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("security: plaintext is required")
	}
	nonce := make([]byte, p.active.aead.NonceSize())
	if _, err := io.ReadFull(p.random, nonce); err != nil {
		return nil, fmt.Errorf("security: nonce generation failed: %w", err)
	}
	sealed := p.active.aead.Seal(nil, nonce, plaintext, additionalData(p.active.id, p.active.version))
	return encodeEnvelope(envelope{
		KeyID:      p.active.id,
		Version:    p.active.version,
		Algorithm:  envelopeAlgorithm,
		Nonce:      encodeBase64(nonce),
		Ciphertext: encodeBase64(sealed),
	})
}

func (p *AESGCMSecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	env, err := decodeEnvelope(ciphertext)
	if err != nil {
		return nil, err
	}
	key := p.active
	if env.KeyID != key.id || env.Version != key.version {
		return nil, fmt.Errorf("security: no key registered for %q version %d", env.KeyID, env.Version)
	}
	nonce, err := decodeBase64("nonce", env.Nonce)
	if err != nil {
		return nil, err
	}
	if len(nonce) != key.aead.NonceSize() {
		return nil, fmt.Errorf("security: invalid nonce length")
	}
	sealed, err := decodeBase64("ciphertext payload", env.Ciphertext)
	if err != nil {
		return nil, err
	}
	plaintext, err := key.aead.Open(nil, nonce, sealed, additionalData(key.id, key.version))
	if err != nil {
		return nil, fmt.Errorf("security: decrypt payload: %w", err)
	}
	return plaintext, nil
}

func (p *AESGCMSecretProvider) KeyID() string {
	if p == nil {
		return ""
	}
	return p.active.id
}

func (p *AESGCMSecretProvider) Version() int {
	if p == nil {
		return 0
	}
	return p.active.version
}

func newKeyVersion(id string, version int, material []byte) (keyVersion, error) {
	trimmed := bytes.TrimSpace(material)
	if len(trimmed) == 0 {
		return keyVersion{}, fmt.Errorf("security: key material is required")
	}
	block, err := aes.NewCipher(deriveKey(trimmed))
	if err != nil {
		return keyVersion{}, fmt.Errorf("security: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return keyVersion{}, fmt.Errorf("security: create gcm: %w", err)
	}
	return keyVersion{id: id, version: version, aead: aead}, nil
}

// deriveKey uses 32-byte material as is and hashes anything else down to an
// AES-256 key.
func deriveKey(material []byte) []byte {
	if len(material) == keySize {
		return bytes.Clone(material)
	}
	sum := sha256.Sum256(material)
	return sum[:]
}

func additionalData(id string, version int) []byte {
	return []byte(versionKey(id, version))
}

func versionKey(id string, version int) string {
	return id + "#" + strconv.Itoa(version)
}

var _ core.KeyedSecretProvider = (*AESGCMSecretProvider)(nil)
