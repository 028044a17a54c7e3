package main

import (
	"context"
	"os"

	"github.com/goliatone/go-connectors/core"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	logLevel    string
	environment string
	databaseDSN string
}

// runtimeConfig holds flag overrides, which win over the environment.
func (o *rootOptions) runtimeConfig() core.Config {
	return core.Config{
		Environment: o.environment,
		Database:    core.DatabaseConfig{DSN: o.databaseDSN},
	}
}

func (o *rootOptions) load(ctx context.Context, runtime core.Config) (core.Config, error) {
	base := o.runtimeConfig()
	if runtime.ListenAddr != "" {
		base.ListenAddr = runtime.ListenAddr
	}
	return loadConfig(ctx, base)
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "connector",
		Short: "OAuth integration connector",
		Long: `connector completes OAuth flows for third-party storage and commerce
providers, stores the resulting credentials encrypted, and records a
tamper-evident audit log. Configuration is read from CONNECTOR_* variables.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", envOr("CONNECTOR_LOG_LEVEL", "info"), "log level (trace, debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.environment, "environment", "", "override CONNECTOR_ENVIRONMENT")
	cmd.PersistentFlags().StringVar(&opts.databaseDSN, "database-dsn", "", "override CONNECTOR_DATABASE__DSN")

	cmd.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newAuditCommand(opts),
		newMembersCommand(opts),
		newTokenCommand(opts),
	)
	return cmd
}

func envOr(name string, fallback string) string {
	if value, ok := os.LookupEnv(name); ok && value != "" {
		return value
	}
	return fallback
}
