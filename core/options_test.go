package core

import (
	"context"
	"errors"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type fixedConfigProvider struct {
	cfg Config
}

func (p *fixedConfigProvider) Load(context.Context, Config) (Config, error) {
	return p.cfg, nil
}

type fixedOptionsResolver struct {
	cfg Config
}

func (r *fixedOptionsResolver) Resolve(Config, Config, Config) (Config, error) {
	return r.cfg, nil
}

func TestNewService_DefaultDependencies(t *testing.T) {
	f := newServiceFixture(t)
	if f.service.Logger() == nil {
		t.Fatalf("expected default logger")
	}
	if f.service.errorMapper == nil {
		t.Fatalf("expected default error mapper")
	}
	if f.service.stateCodec == nil || f.service.stateCodec.Unsigned() {
		t.Fatalf("expected signed state codec built from config")
	}
	if !f.service.vault.KeyConfigured() {
		t.Fatalf("expected vault built from secret provider")
	}
	cfg := f.service.Config()
	if cfg.ServiceName != "connectors" {
		t.Fatalf("expected default service_name=connectors, got %q", cfg.ServiceName)
	}
}

func TestNewService_WithXOverrides(t *testing.T) {
	sentinel := errors.New("sentinel")
	customMapper := func(error) *goerrors.Error {
		return goerrors.Wrap(sentinel, goerrors.CategoryOperation, "mapped")
	}
	resolved := testConfig()
	resolved.ServiceName = "resolved"
	optionsResolver := &fixedOptionsResolver{cfg: resolved}
	configProvider := &fixedConfigProvider{cfg: Config{ServiceName: "from-provider"}}
	codec, err := NewStateTokenCodec("other-secret")
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}

	f := newServiceFixture(t,
		WithErrorMapper(customMapper),
		WithConfigProvider(configProvider),
		WithOptionsResolver(optionsResolver),
		WithStateCodec(codec),
	)
	if got := f.service.Config().ServiceName; got != "resolved" {
		t.Fatalf("expected options resolver output config, got %q", got)
	}
	if f.service.stateCodec != codec {
		t.Fatalf("expected custom state codec override")
	}
	if mapped := f.service.MapError(errors.New("boom")); mapped == nil || mapped.Message != "mapped" {
		t.Fatalf("expected custom error mapper to be used")
	}
}

func TestNewService_ConfigLayeringPrecedence(t *testing.T) {
	provider := NewCfgxConfigProvider(NewStaticConfigLoader(map[string]any{
		"service_name":     "from-config",
		"integrations_url": "https://config.example.com/integrations",
		"state": map[string]any{
			"signing_secret": "config-secret",
		},
		"providers": map[string]any{
			"dropbox": map[string]any{
				"client_id": "dbx-client",
			},
		},
	}))

	f := newServiceFixture(t, WithConfigProvider(provider))
	cfg := f.service.Config()
	if cfg.IntegrationsURL != "https://app.example.com/settings/integrations" {
		t.Fatalf("expected runtime integrations url, got %q", cfg.IntegrationsURL)
	}
	if cfg.State.SigningSecret != testSigningSecret {
		t.Fatalf("expected runtime signing secret to win, got %q", cfg.State.SigningSecret)
	}
	creds, ok := cfg.ProviderCredentialsFor(ProviderDropbox)
	if !ok || creds.ClientID != "dbx-client" {
		t.Fatalf("expected config layer provider credentials, got %#v", cfg.Providers)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := testConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	invalid := testConfig()
	invalid.Providers = map[string]ProviderCredentials{"box": {ClientID: "x"}}
	if err := invalid.Validate(); !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected unknown provider key to be rejected, got %v", err)
	}

	unsigned := testConfig()
	unsigned.State.SigningSecret = ""
	unsigned.State.AllowUnsigned = true
	if err := unsigned.Validate(); err == nil {
		t.Fatalf("expected production config without secret to be rejected")
	}
	unsigned.Environment = EnvironmentDevelopment
	if err := unsigned.Validate(); err != nil {
		t.Fatalf("expected development unsigned config to validate, got %v", err)
	}
}

func TestConfigEffectiveProviderTimeout(t *testing.T) {
	cfg := Config{}
	if cfg.EffectiveProviderTimeout() != 10*time.Second {
		t.Fatalf("expected 10s default provider timeout")
	}
	cfg.ProviderTimeout = 3 * time.Second
	if cfg.EffectiveProviderTimeout() != 3*time.Second {
		t.Fatalf("expected configured provider timeout")
	}
}
