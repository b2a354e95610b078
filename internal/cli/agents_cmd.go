package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/soyeahso/agentdesk/internal/agentid"
	"github.com/soyeahso/agentdesk/internal/backend"
	"github.com/soyeahso/agentdesk/internal/config"
	"github.com/spf13/cobra"
)

func newAgentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "agents",
		Aliases: []string{"agent"},
		Short:   "List and manage agents on the configuration backend",
	}

	cmd.AddCommand(newAgentsListCmd())
	cmd.AddCommand(newAgentsInfoCmd())
	cmd.AddCommand(newAgentsDeleteCmd())
	return cmd
}

// backendClient loads config and returns a backend client, failing when
// no backend URL is configured.
func backendClient() (*backend.Client, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return nil, err
	}
	be := backend.New(cfg.Backend, log)
	if !be.Configured() {
		return nil, fmt.Errorf("backend.url is not configured")
	}
	return be, nil
}

func newAgentsListCmd() *cobra.Command {
	var org string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List agents for an organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			be, err := backendClient()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			agents, err := be.ListAgents(ctx, org)
			if err != nil {
				return err
			}
			if len(agents) == 0 {
				fmt.Println("  (no agents)")
				return nil
			}
			for _, a := range agents {
				fmt.Printf("  %-28s %-20s %-8s model=%s/%s\n", a.ID, agentid.DisplayName(a.ID), a.Status, a.Provider, a.Model)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&org, "org", "", "organization name or id")
	return cmd
}

func newAgentsInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <agent-id>",
		Short: "Show details about an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			be, err := backendClient()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := be.GetAgent(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Agent: %s (%s)\n", a.ID, agentid.DisplayName(a.ID))
			fmt.Printf("  Status:    %s\n", a.Status)
			fmt.Printf("  Model:     %s/%s\n", a.Provider, a.Model)
			if a.OrganizationID != "" {
				fmt.Printf("  Org:       %s\n", a.OrganizationID)
			}
			if a.ChatbotAPI != "" {
				fmt.Printf("  Chatbot:   %s\n", a.ChatbotAPI)
			}
			if a.AppID != "" {
				fmt.Printf("  App:       %s\n", a.AppID)
			}
			return nil
		},
	}
}

func newAgentsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <agent-id>",
		Short: "Delete an agent from the backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			be, err := backendClient()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			msg, err := be.DeleteAgent(ctx, args[0])
			if err != nil {
				return err
			}
			if msg == "" {
				msg = "deleted " + args[0]
			}
			fmt.Println(msg)
			return nil
		},
	}
}
