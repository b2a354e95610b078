package plugin

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/soyeahso/agentdesk/internal/config"
	"github.com/soyeahso/agentdesk/internal/hooks"
	"github.com/soyeahso/agentdesk/internal/logging"
	"github.com/soyeahso/agentdesk/internal/telemetry"
)

// Registry manages plugin lifecycle.
type Registry struct {
	mu      sync.Mutex
	plugins map[string]Plugin
	order   []string // registration order
	started []string
	hooks   *hooks.Manager
	http    *http.Client
	log     *logging.Logger
}

// NewRegistry creates a plugin registry over hm.
func NewRegistry(hm *hooks.Manager, log *logging.Logger) *Registry {
	return &Registry{
		plugins: make(map[string]Plugin),
		hooks:   hm,
		http:    telemetry.NewHTTPClient(0),
		log:     log.Sub("plugins"),
	}
}

// FromConfig builds a registry holding the built-in plugins cfg enables.
func FromConfig(cfg config.PluginsConfig, hm *hooks.Manager, log *logging.Logger) (*Registry, error) {
	r := NewRegistry(hm, log)
	if cfg.Audit {
		if err := r.Register(NewAudit()); err != nil {
			return nil, err
		}
	}
	for i, wh := range cfg.Webhooks {
		if err := r.Register(NewWebhook(fmt.Sprintf("webhook-%d", i), wh)); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds p without initializing it.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[p.ID()]; exists {
		return fmt.Errorf("plugin already registered: %s", p.ID())
	}
	r.plugins[p.ID()] = p
	r.order = append(r.order, p.ID())
	r.log.Debug().Str("id", p.ID()).Msg("plugin registered")
	return nil
}

// InitAll initializes plugins in registration order. On failure the
// plugins already started are closed again.
func (r *Registry) InitAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.order {
		api := API{Hooks: r.hooks, Log: r.log.Sub(id), HTTP: r.http}
		if err := r.plugins[id].Init(ctx, api); err != nil {
			r.closeLocked()
			return fmt.Errorf("init plugin %s: %w", id, err)
		}
		r.started = append(r.started, id)
		r.log.Info().Str("id", id).Msg("plugin initialized")
	}
	return nil
}

// CloseAll shuts down started plugins in reverse order.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
}

func (r *Registry) closeLocked() {
	for i := len(r.started) - 1; i >= 0; i-- {
		id := r.started[i]
		if err := r.plugins[id].Close(); err != nil {
			r.log.Error().Err(err).Str("id", id).Msg("plugin close error")
		}
	}
	r.started = nil
}

// List returns plugin IDs in registration order.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.plugins)
}
