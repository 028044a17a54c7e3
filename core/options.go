package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig      Config
	logger             Logger
	loggerProvider     LoggerProvider
	metricsRecorder    MetricsRecorder
	errorMapper        ErrorMapper
	configProvider     ConfigProvider
	optionsResolver    OptionsResolver
	clock              Clock
	stateCodec         *StateTokenCodec
	registry           *ExchangeRegistry
	vault              *Vault
	credentialStore    CredentialStore
	secretProvider     SecretProvider
	credentialCodec    CredentialCodec
	auditSink          AuditSink
	identityVerifier   IdentityVerifier
	membershipResolver MembershipResolver
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

// WithClock drives state token issue/verify, exchange expiry and vault
// timestamps from one clock.
func WithClock(clock Clock) Option {
	return func(b *serviceBuilder) {
		b.clock = clock
	}
}

func WithStateCodec(codec *StateTokenCodec) Option {
	return func(b *serviceBuilder) {
		b.stateCodec = codec
	}
}

func WithExchangeRegistry(registry *ExchangeRegistry) Option {
	return func(b *serviceBuilder) {
		b.registry = registry
	}
}

func WithVault(vault *Vault) Option {
	return func(b *serviceBuilder) {
		b.vault = vault
	}
}

func WithCredentialStore(store CredentialStore) Option {
	return func(b *serviceBuilder) {
		b.credentialStore = store
	}
}

func WithSecretProvider(provider SecretProvider) Option {
	return func(b *serviceBuilder) {
		b.secretProvider = provider
	}
}

func WithCredentialCodec(codec CredentialCodec) Option {
	return func(b *serviceBuilder) {
		b.credentialCodec = codec
	}
}

func WithAuditSink(sink AuditSink) Option {
	return func(b *serviceBuilder) {
		b.auditSink = sink
	}
}

func WithIdentityVerifier(verifier IdentityVerifier) Option {
	return func(b *serviceBuilder) {
		b.identityVerifier = verifier
	}
}

func WithMembershipResolver(resolver MembershipResolver) Option {
	return func(b *serviceBuilder) {
		b.membershipResolver = resolver
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("connectors", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     MapError,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		clock:           systemClock,
		credentialCodec: JSONCredentialCodec{},
	}
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

func NewStaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

// Load decodes the raw layer over defaults. Validation waits until the
// runtime layer has been merged in by the OptionsResolver.
func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig layers defaults, the provider's configuration and runtime
// overrides, then validates the result.
func LoadConfig(ctx context.Context, provider ConfigProvider, resolver OptionsResolver, runtime Config) (Config, error) {
	if provider == nil {
		provider = NewCfgxConfigProvider(nil)
	}
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	defaults := DefaultConfig()
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return Config{}, err
	}
	return resolver.Resolve(defaults, loaded, runtime)
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	putString := func(target map[string]any, key string, value string) {
		if includeZero || strings.TrimSpace(value) != "" {
			target[key] = value
		}
	}

	putString(layer, "service_name", cfg.ServiceName)
	putString(layer, "environment", cfg.Environment)
	putString(layer, "listen_addr", cfg.ListenAddr)
	putString(layer, "integrations_url", cfg.IntegrationsURL)
	putString(layer, "callback_url", cfg.CallbackURL)
	if includeZero || len(cfg.AllowedOrigins) > 0 {
		layer["allowed_origins"] = append([]string(nil), cfg.AllowedOrigins...)
	}
	if includeZero || cfg.ProviderTimeout > 0 {
		layer["provider_timeout"] = cfg.ProviderTimeout
	}

	state := map[string]any{}
	putString(state, "signing_secret", cfg.State.SigningSecret)
	if includeZero || cfg.State.AllowUnsigned {
		state["allow_unsigned"] = cfg.State.AllowUnsigned
	}
	if len(state) > 0 {
		layer["state"] = state
	}

	vault := map[string]any{}
	putString(vault, "encryption_key", cfg.Vault.EncryptionKey)
	putString(vault, "key_id", cfg.Vault.KeyID)
	if includeZero || cfg.Vault.KeyVersion > 0 {
		vault["key_version"] = cfg.Vault.KeyVersion
	}
	if includeZero || cfg.Vault.WriteTimeout > 0 {
		vault["write_timeout"] = cfg.Vault.WriteTimeout
	}
	if len(vault) > 0 {
		layer["vault"] = vault
	}

	auth := map[string]any{}
	putString(auth, "jwt_secret", cfg.Auth.JWTSecret)
	putString(auth, "jwt_issuer", cfg.Auth.JWTIssuer)
	putString(auth, "jwt_audience", cfg.Auth.JWTAudience)
	if len(auth) > 0 {
		layer["auth"] = auth
	}

	database := map[string]any{}
	putString(database, "driver", cfg.Database.Driver)
	putString(database, "dsn", cfg.Database.DSN)
	if includeZero || cfg.Database.Debug {
		database["debug"] = cfg.Database.Debug
	}
	if len(database) > 0 {
		layer["database"] = database
	}

	if includeZero || len(cfg.Providers) > 0 {
		providers := make(map[string]any, len(cfg.Providers))
		for id, creds := range cfg.Providers {
			providers[id] = map[string]any{
				"client_id":     creds.ClientID,
				"client_secret": creds.ClientSecret,
				"auth_url":      creds.AuthURL,
				"token_url":     creds.TokenURL,
				"scopes":        append([]string(nil), creds.Scopes...),
			}
		}
		layer["providers"] = providers
	}
	return layer
}
