package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	EnvironmentDevelopment = "development"
	EnvironmentProduction  = "production"

	defaultProviderTimeout = 10 * time.Second
	defaultVaultTimeout    = 10 * time.Second
)

type StateConfig struct {
	SigningSecret string `koanf:"signing_secret" mapstructure:"signing_secret"`
	AllowUnsigned bool   `koanf:"allow_unsigned" mapstructure:"allow_unsigned"`
}

type VaultConfig struct {
	EncryptionKey string        `koanf:"encryption_key" mapstructure:"encryption_key"`
	KeyID         string        `koanf:"key_id" mapstructure:"key_id"`
	KeyVersion    int           `koanf:"key_version" mapstructure:"key_version"`
	WriteTimeout  time.Duration `koanf:"write_timeout" mapstructure:"write_timeout"`
}

type AuthConfig struct {
	JWTSecret   string `koanf:"jwt_secret" mapstructure:"jwt_secret"`
	JWTIssuer   string `koanf:"jwt_issuer" mapstructure:"jwt_issuer"`
	JWTAudience string `koanf:"jwt_audience" mapstructure:"jwt_audience"`
}

type DatabaseConfig struct {
	Driver string `koanf:"driver" mapstructure:"driver"`
	DSN    string `koanf:"dsn" mapstructure:"dsn"`
	Debug  bool   `koanf:"debug" mapstructure:"debug"`
}

type ProviderCredentials struct {
	ClientID     string   `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret string   `koanf:"client_secret" mapstructure:"client_secret"`
	AuthURL      string   `koanf:"auth_url" mapstructure:"auth_url"`
	TokenURL     string   `koanf:"token_url" mapstructure:"token_url"`
	Scopes       []string `koanf:"scopes" mapstructure:"scopes"`
}

type Config struct {
	ServiceName     string                         `koanf:"service_name" mapstructure:"service_name"`
	Environment     string                         `koanf:"environment" mapstructure:"environment"`
	ListenAddr      string                         `koanf:"listen_addr" mapstructure:"listen_addr"`
	IntegrationsURL string                         `koanf:"integrations_url" mapstructure:"integrations_url"`
	CallbackURL     string                         `koanf:"callback_url" mapstructure:"callback_url"`
	AllowedOrigins  []string                       `koanf:"allowed_origins" mapstructure:"allowed_origins"`
	ProviderTimeout time.Duration                  `koanf:"provider_timeout" mapstructure:"provider_timeout"`
	State           StateConfig                    `koanf:"state" mapstructure:"state"`
	Vault           VaultConfig                    `koanf:"vault" mapstructure:"vault"`
	Auth            AuthConfig                     `koanf:"auth" mapstructure:"auth"`
	Database        DatabaseConfig                 `koanf:"database" mapstructure:"database"`
	Providers       map[string]ProviderCredentials `koanf:"providers" mapstructure:"providers"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:     "connectors",
		Environment:     EnvironmentProduction,
		ListenAddr:      ":8080",
		IntegrationsURL: "/settings/integrations",
		AllowedOrigins:  []string{"*"},
		ProviderTimeout: defaultProviderTimeout,
		Vault: VaultConfig{
			KeyID:        "app-key",
			KeyVersion:   1,
			WriteTimeout: defaultVaultTimeout,
		},
		Database: DatabaseConfig{
			Driver: "postgres",
		},
		Providers: map[string]ProviderCredentials{},
	}
}

// Validate rejects configurations the connector must not start with. A missing
// vault key is not rejected here: the vault refuses each write instead.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.IntegrationsURL) == "" {
		return fmt.Errorf("core: integrations_url is required")
	}
	if _, err := url.Parse(strings.TrimSpace(c.IntegrationsURL)); err != nil {
		return fmt.Errorf("core: integrations_url is invalid: %w", err)
	}
	if c.ProviderTimeout < 0 {
		return fmt.Errorf("core: provider_timeout must not be negative")
	}
	if strings.TrimSpace(c.State.SigningSecret) == "" && !c.UnsignedStateAllowed() {
		return fmt.Errorf("core: state.signing_secret is required outside development with state.allow_unsigned")
	}
	for id := range c.Providers {
		if _, err := ParseProviderID(id); err != nil {
			return err
		}
	}
	return nil
}

// UnsignedStateAllowed reports whether the state codec may run without a
// signing secret. Only an explicit development flag enables it.
func (c Config) UnsignedStateAllowed() bool {
	return c.State.AllowUnsigned &&
		strings.EqualFold(strings.TrimSpace(c.Environment), EnvironmentDevelopment)
}

func (c Config) EffectiveProviderTimeout() time.Duration {
	if c.ProviderTimeout <= 0 {
		return defaultProviderTimeout
	}
	return c.ProviderTimeout
}

func (c Config) ProviderCredentialsFor(id ProviderID) (ProviderCredentials, bool) {
	if len(c.Providers) == 0 {
		return ProviderCredentials{}, false
	}
	creds, ok := c.Providers[string(id)]
	return creds, ok
}
