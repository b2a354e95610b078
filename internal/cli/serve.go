package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/soyeahso/agentdesk/internal/agentsync"
	"github.com/soyeahso/agentdesk/internal/appid"
	"github.com/soyeahso/agentdesk/internal/autosave"
	"github.com/soyeahso/agentdesk/internal/backend"
	"github.com/soyeahso/agentdesk/internal/call"
	"github.com/soyeahso/agentdesk/internal/config"
	"github.com/soyeahso/agentdesk/internal/dashboard"
	"github.com/soyeahso/agentdesk/internal/dify"
	"github.com/soyeahso/agentdesk/internal/gateway"
	"github.com/soyeahso/agentdesk/internal/hooks"
	"github.com/soyeahso/agentdesk/internal/knowledge"
	"github.com/soyeahso/agentdesk/internal/metrics"
	"github.com/soyeahso/agentdesk/internal/plugin"
	"github.com/soyeahso/agentdesk/internal/store"
	"github.com/soyeahso/agentdesk/internal/telemetry"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"gateway"},
		Short:   "Start the dashboard gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			// Load raw config for RPC access
			raw, err := config.LoadRaw(paths.Config)
			if err != nil {
				raw = make(map[string]any)
			}

			if err := paths.EnsureDirs(); err != nil {
				return err
			}

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry, log)
			if err != nil {
				return fmt.Errorf("initializing telemetry: %w", err)
			}
			defer func() {
				if err := shutdownTracing(context.Background()); err != nil {
					log.Warn().Err(err).Msg("telemetry shutdown")
				}
			}()

			var m *metrics.Metrics
			if cfg.Metrics.Enabled {
				m = metrics.New()
			}

			hookMgr := hooks.NewManager(log)

			plugins, err := plugin.FromConfig(cfg.Plugins, hookMgr, log)
			if err != nil {
				return err
			}
			if err := plugins.InitAll(ctx); err != nil {
				return fmt.Errorf("initializing plugins: %w", err)
			}
			defer plugins.CloseAll()

			tiers, err := store.OpenTiers(ctx, cfg.Storage, paths.DatabasePath(), log)
			if err != nil {
				return fmt.Errorf("opening storage: %w", err)
			}
			defer tiers.Close()

			be := backend.New(cfg.Backend, log)
			if !be.Configured() {
				log.Warn().Msg("backend url not configured, agent list will use sample agents")
			}
			console := dify.New(cfg.Dify, log)
			if !console.Configured() {
				log.Warn().Msg("console not configured, provisioning and chat are unavailable")
			}

			resolver := appid.New(tiers.AppIDs(), console, m, log)
			kb := knowledge.NewService(console, tiers.Selections(), log)

			agents := agentsync.NewPool(be, agentsync.Options{
				Fallback: cfg.Sync.UseFallback(),
				Metrics:  m,
				Hooks:    hookMgr,
			}, log)

			dash := dashboard.New(be, console, resolver, agents, kb, dashboard.Options{
				ChatbotAPI:       cfg.Backend.ChatbotAPIURL,
				CompanionTimeout: cfg.Cleanup.CompanionTimeout(),
				Hooks:            hookMgr,
			}, log)
			defer dash.Wait()

			editor := autosave.NewEditor(dash, tiers.Bundles(), autosave.Options{
				Enabled:  cfg.Autosave.AutosaveEnabled(),
				Debounce: cfg.Autosave.Debounce(),
				Cooldown: cfg.Autosave.Cooldown(),
				LeaseTTL: cfg.Lease.TTL(),
				Metrics:  m,
				Hooks:    hookMgr,
			}, autosave.ParsePolicy(cfg.Autosave.SwitchPolicy), log)

			calls := call.NewManager(be, call.Options{
				Connecting:  cfg.Call.Connecting(),
				MaxDuration: cfg.Call.MaxDuration(),
				Metrics:     m,
				Hooks:       hookMgr,
			}, log)

			srv := gateway.New(cfg, log,
				gateway.WithConfigRaw(raw),
				gateway.WithHooks(hookMgr),
				gateway.WithMetrics(m),
				gateway.WithAgents(agents),
				gateway.WithDashboard(dash),
				gateway.WithEditor(editor),
				gateway.WithCalls(calls),
			)

			log.Info().
				Str("durable", cfg.Storage.Durable).
				Bool("autosave", cfg.Autosave.AutosaveEnabled()).
				Bool("metrics", m != nil).
				Strs("plugins", plugins.List()).
				Msg("dashboard components ready")

			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (auto, lan, loopback, custom)")

	return cmd
}
