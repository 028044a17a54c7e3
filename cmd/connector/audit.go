package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/goliatone/go-connectors/adapters/gocommand"
	"github.com/goliatone/go-connectors/core"
	connectorquery "github.com/goliatone/go-connectors/query"
	"github.com/spf13/cobra"
)

func newAuditCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the security audit log",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Recompute the audit hash chain and report the first broken event",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := root.load(ctx, core.Config{})
			if err != nil {
				return err
			}
			a, err := buildApp(ctx, cfg, newLogger(os.Stderr, root.logLevel, cfg), false)
			if err != nil {
				return err
			}
			defer a.Close()

			adapter := gocommand.NewRegistryAdapter(nil)
			subs, err := gocommand.SubscribeFacade(adapter, a.facade)
			if err != nil {
				return err
			}
			defer subs.Unsubscribe()
			if err := adapter.Initialize(); err != nil {
				return err
			}

			report, err := gocommand.Query[connectorquery.VerifyAuditChainMessage, connectorquery.AuditChainReport](
				ctx,
				connectorquery.VerifyAuditChainMessage{},
			)
			if err != nil {
				return err
			}
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(report); err != nil {
				return err
			}
			if !report.Intact {
				return fmt.Errorf("audit chain broken at event %d", report.BrokenAt)
			}
			return nil
		},
	})
	return cmd
}
