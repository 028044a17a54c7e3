package main

import (
	"fmt"
	"os"

	"github.com/goliatone/go-connectors/core"
	"github.com/spf13/cobra"
)

func newMigrateCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := root.load(ctx, core.Config{})
			if err != nil {
				return err
			}
			logger := newLogger(os.Stderr, root.logLevel, cfg)
			client, err := openDatabase(ctx, cfg, true)
			if err != nil {
				logger.Error("migration failed", "error", err.Error())
				return err
			}
			defer client.Close()
			logger.Info("migrations applied", "driver", cfg.Database.Driver)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return err
		},
	}
}
