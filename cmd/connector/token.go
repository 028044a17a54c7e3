package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-connectors/auth"
	"github.com/goliatone/go-connectors/core"
	"github.com/spf13/cobra"
)

type tokenOptions struct {
	userID string
	ttl    time.Duration
}

// newTokenCommand issues bearer tokens for local testing. It refuses to run
// outside the development environment.
func newTokenCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Development bearer tokens",
	}
	opts := &tokenOptions{}
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue an HS256 bearer token for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load(cmd.Context(), core.Config{})
			if err != nil {
				return err
			}
			if !strings.EqualFold(strings.TrimSpace(cfg.Environment), core.EnvironmentDevelopment) {
				return fmt.Errorf("token issue is only available in the %s environment", core.EnvironmentDevelopment)
			}
			issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)
			if err != nil {
				return err
			}
			token, err := issuer.Issue(opts.userID, opts.ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	issue.Flags().StringVar(&opts.userID, "user", "", "user id placed in the sub claim")
	issue.Flags().DurationVar(&opts.ttl, "ttl", time.Hour, "token lifetime")
	cmd.AddCommand(issue)
	return cmd
}
