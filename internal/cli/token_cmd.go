package cli

import (
	"fmt"
	"time"

	"github.com/soyeahso/agentdesk/internal/auth"
	"github.com/soyeahso/agentdesk/internal/config"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage dashboard bearer tokens",
	}

	cmd.AddCommand(newTokenIssueCmd())
	return cmd
}

func newTokenIssueCmd() *cobra.Command {
	var (
		name    string
		email   string
		orgID   string
		orgName string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "issue <user-id>",
		Short: "Sign a bearer token for the dashboard API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			id := auth.Identity{UserID: args[0], Name: name, Email: email}
			if orgID != "" || orgName != "" {
				id.Orgs = []auth.OrgClaim{{ID: orgID, Name: orgName}}
			}

			token, err := auth.NewVerifier(cfg.Auth).Issue(id, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name claim")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().StringVar(&orgID, "org-id", "", "organization id claim")
	cmd.Flags().StringVar(&orgName, "org", "", "organization name claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")

	return cmd
}
