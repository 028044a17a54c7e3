package main

import (
	"context"
	"fmt"
	"io"
	"time"

	connectors "github.com/goliatone/go-connectors"
	"github.com/goliatone/go-connectors/adapters/gologger"
	connectorprometheus "github.com/goliatone/go-connectors/adapters/prometheus"
	"github.com/goliatone/go-connectors/auth"
	"github.com/goliatone/go-connectors/core"
	connectormigrations "github.com/goliatone/go-connectors/migrations"
	"github.com/goliatone/go-connectors/providers"
	"github.com/goliatone/go-connectors/security"
	sqlstore "github.com/goliatone/go-connectors/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
)

type app struct {
	config  core.Config
	logger  *gologger.Logger
	client  *persistence.Client
	factory *sqlstore.RepositoryFactory
	metrics *connectorprometheus.Recorder
	service *connectors.Service
	facade  *connectors.Facade
}

func loadConfig(ctx context.Context, runtime core.Config) (core.Config, error) {
	return core.LoadConfig(ctx, core.NewCfgxConfigProvider(newEnvLoader()), core.GoOptionsResolver{}, runtime)
}

func newLogger(w io.Writer, level string, cfg core.Config) *gologger.Logger {
	return gologger.NewJSON(w, gologger.ParseLevel(level)).Named(cfg.ServiceName)
}

func openDatabase(ctx context.Context, cfg core.Config, migrate bool) (*persistence.Client, error) {
	client, err := sqlstore.OpenClient(cfg.Database)
	if err != nil {
		return nil, err
	}
	if migrate {
		dialect := connectormigrations.DialectForDriver(cfg.Database.Driver)
		if err := connectormigrations.Apply(ctx, client, dialect); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	return client, nil
}

// newExchangeRegistry builds the provider adapters with the app logger so
// rejected exchanges keep their redacted provider response in the logs.
func newExchangeRegistry(cfg core.Config, logger *gologger.Logger) (*core.ExchangeRegistry, error) {
	return connectors.NewExchangeRegistry(cfg,
		providers.WithLogger(logger.Named("providers")),
		providers.WithClock(utcNow),
	)
}

func utcNow() time.Time {
	return time.Now().UTC()
}

// buildApp wires the full connector over the configured database.
func buildApp(ctx context.Context, cfg core.Config, logger *gologger.Logger, migrate bool) (*app, error) {
	client, err := openDatabase(ctx, cfg, migrate)
	if err != nil {
		return nil, err
	}
	a := &app{config: cfg, logger: logger, client: client}
	if err := a.wire(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire() error {
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(a.client)
	if err != nil {
		return err
	}
	cache, err := sqlstore.NewMembershipCache(sqlstore.DefaultMembershipCacheTTL)
	if err != nil {
		return fmt.Errorf("membership cache: %w", err)
	}
	membership, err := sqlstore.NewCachedMembershipResolver(factory.MembershipStore(), cache)
	if err != nil {
		return err
	}
	registry, err := newExchangeRegistry(a.config, a.logger)
	if err != nil {
		return err
	}
	secrets, err := security.NewSecretProviderFromConfig(a.config.Vault)
	if err != nil {
		return err
	}
	verifier, err := auth.NewJWTVerifierFromConfig(a.config.Auth)
	if err != nil {
		return err
	}
	metrics := connectorprometheus.New(connectorprometheus.WithProcessCollectors())

	service, err := connectors.NewService(a.config,
		connectors.WithLoggerProvider(gologger.NewProvider(a.logger)),
		connectors.WithLogger(a.logger),
		connectors.WithMetricsRecorder(metrics),
		connectors.WithExchangeRegistry(registry),
		connectors.WithCredentialStore(factory.CredentialStore()),
		connectors.WithSecretProvider(secrets),
		connectors.WithAuditSink(factory.AuditStore()),
		connectors.WithIdentityVerifier(verifier),
		connectors.WithMembershipResolver(membership),
	)
	if err != nil {
		return err
	}
	facade, err := connectors.NewFacade(service, connectors.WithAuditReader(factory.AuditStore()))
	if err != nil {
		return err
	}
	a.factory = factory
	a.metrics = metrics
	a.service = service
	a.facade = facade
	return nil
}

func (a *app) Close() error {
	if a == nil || a.client == nil {
		return nil
	}
	return a.client.Close()
}
