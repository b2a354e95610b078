// Package plugin runs lifecycle extensions that subscribe to dashboard
// hook events.
package plugin

import (
	"context"
	"net/http"

	"github.com/soyeahso/agentdesk/internal/hooks"
	"github.com/soyeahso/agentdesk/internal/logging"
)

// Plugin is a lifecycle extension.
type Plugin interface {
	// ID returns a unique identifier, also used as the hook handler name.
	ID() string

	// Init registers the plugin's hook handlers.
	Init(ctx context.Context, api API) error

	// Close removes handlers and releases resources.
	Close() error
}

// API is what a plugin gets to work with.
type API struct {
	Hooks *hooks.Manager
	Log   *logging.Logger
	HTTP  *http.Client
}
