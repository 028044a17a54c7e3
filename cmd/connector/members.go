package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-connectors/core"
	sqlstore "github.com/goliatone/go-connectors/store/sql"
	"github.com/spf13/cobra"
)

type memberOptions struct {
	userID         string
	organizationID string
	role           string
}

func newMembersCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "members",
		Short: "Manage organization memberships",
	}
	opts := &memberOptions{}
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a user to an organization",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(opts.userID) == "" || strings.TrimSpace(opts.organizationID) == "" {
				return fmt.Errorf("--user and --org are required")
			}
			ctx := cmd.Context()
			cfg, err := root.load(ctx, core.Config{})
			if err != nil {
				return err
			}
			logger := newLogger(os.Stderr, root.logLevel, cfg)
			client, err := openDatabase(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer client.Close()
			store, err := sqlstore.NewMembershipStore(client.DB())
			if err != nil {
				return err
			}
			err = store.Add(ctx, core.Membership{
				UserID:         opts.userID,
				OrganizationID: opts.organizationID,
				Role:           opts.role,
			}, time.Now().UTC())
			if err != nil {
				return err
			}
			logger.Info("membership added",
				"user_id", core.TruncateIdentifier(opts.userID),
				"organization_id", core.TruncateIdentifier(opts.organizationID),
			)
			return nil
		},
	}
	add.Flags().StringVar(&opts.userID, "user", "", "user id (JWT sub)")
	add.Flags().StringVar(&opts.organizationID, "org", "", "organization id")
	add.Flags().StringVar(&opts.role, "role", "", "membership role")
	cmd.AddCommand(add)
	return cmd
}
