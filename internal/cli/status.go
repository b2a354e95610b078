package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/soyeahso/agentdesk/internal/config"
	"github.com/soyeahso/agentdesk/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show agentdesk status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("agentdesk %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Printf("Config:   %s\n", paths.Config)
			fmt.Printf("Data:     %s\n", paths.Data)
			fmt.Printf("Logs:     %s\n", paths.Logs)
			fmt.Println()

			cfg, err := config.Load(paths.Config)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Println("Config:   not found (using defaults)")
				} else {
					fmt.Printf("Config:   error loading: %v\n", err)
				}
				return nil
			}

			fmt.Printf("Gateway:  port=%d bind=%s auth=%s tls=%v\n",
				cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.Auth.Mode, cfg.Gateway.TLS.Enabled)
			if origins := cfg.Gateway.ControlUI.AllowedOrigins; len(origins) > 0 {
				fmt.Printf("Origins:  %s\n", strings.Join(origins, ", "))
			}

			storage := "durable=" + cfg.Storage.Durable + " session=" + cfg.Storage.Session
			if cfg.Storage.Durable == "redis" {
				storage += " redis=" + cfg.Storage.Redis.Addr
			} else if cfg.Storage.Durable == "sqlite" {
				storage += " path=" + paths.DatabasePath()
			}
			fmt.Printf("Storage:  %s\n", storage)

			fmt.Printf("Backend:  %s\n", orNotSet(cfg.Backend.URL))
			fmt.Printf("Console:  %s workspace=%s\n", orNotSet(cfg.Dify.ConsoleOrigin), orNotSet(cfg.Dify.WorkspaceID))
			fmt.Printf("Autosave: enabled=%v debounce=%s switch=%s\n",
				cfg.Autosave.AutosaveEnabled(), cfg.Autosave.Debounce(), cfg.Autosave.SwitchPolicy)
			fmt.Printf("Auth:     jwt=%v\n", cfg.Auth.JWTSecret != "")
			fmt.Printf("Metrics:  enabled=%v path=%s\n", cfg.Metrics.Enabled, cfg.Metrics.Path)
			if cfg.Telemetry.Enabled {
				fmt.Printf("Tracing:  otlp=%s\n", cfg.Telemetry.OTLPEndpoint)
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Printf("\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Printf("  - %s: %s\n", issue.Path, issue.Message)
				}
			}

			return nil
		},
	}

	return cmd
}

func orNotSet(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}
