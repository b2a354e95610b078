// Package hooks dispatches dashboard lifecycle events to registered handlers.
package hooks

import (
	"context"
	"slices"
	"sync"

	"github.com/soyeahso/agentdesk/internal/logging"
)

// Event names.
const (
	EventAgentsSynced = "agents_synced"
	EventConfigSaved  = "config_saved"
	EventAgentDeleted = "agent_deleted"
	EventCallStarted  = "call_started"
	EventCallEnded    = "call_ended"
	EventGatewayStart = "gateway_start"
	EventGatewayStop  = "gateway_stop"
)

// AllEvents lists every event name.
var AllEvents = []string{
	EventAgentsSynced,
	EventConfigSaved,
	EventAgentDeleted,
	EventCallStarted,
	EventCallEnded,
	EventGatewayStart,
	EventGatewayStop,
}

// Payload carries event data to handlers.
type Payload struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler handles one event. A returned error is logged and does not stop
// the remaining handlers.
type Handler func(ctx context.Context, p Payload) error

// Manager holds handler registrations.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	log      *logging.Logger
}

type namedHandler struct {
	name    string
	handler Handler
}

// NewManager creates a hook manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		handlers: make(map[string][]namedHandler),
		log:      log.Sub("hooks"),
	}
}

// On registers handler for event under name.
func (m *Manager) On(event, name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], namedHandler{name: name, handler: handler})
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

// OnAll registers handler for every known event.
func (m *Manager) OnAll(name string, handler Handler) {
	for _, ev := range AllEvents {
		m.On(ev, name, handler)
	}
}

// Off removes the handlers registered under name for event.
func (m *Manager) Off(event, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = slices.DeleteFunc(m.handlers[event], func(h namedHandler) bool {
		return h.name == name
	})
}

func (m *Manager) snapshot(event string) []namedHandler {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.handlers[event])
}

// Emit runs event's handlers synchronously in registration order. A nil
// Manager drops the event.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	handlers := m.snapshot(event)
	if len(handlers) == 0 {
		return
	}
	payload := Payload{Event: event, Data: data}
	for _, h := range handlers {
		if err := h.handler(ctx, payload); err != nil {
			m.log.Warn().Err(err).Str("event", event).Str("handler", h.name).Msg("hook handler error")
		}
	}
}

// EmitAsync runs event's handlers concurrently and returns immediately.
func (m *Manager) EmitAsync(ctx context.Context, event string, data map[string]any) {
	handlers := m.snapshot(event)
	if len(handlers) == 0 {
		return
	}
	payload := Payload{Event: event, Data: data}
	for _, h := range handlers {
		go func() {
			if err := h.handler(ctx, payload); err != nil {
				m.log.Warn().Err(err).Str("event", event).Str("handler", h.name).Msg("async hook handler error")
			}
		}()
	}
}

// Count returns the number of handlers for event.
func (m *Manager) Count(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[event])
}

// Events returns the events with at least one handler, sorted.
func (m *Manager) Events() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := make([]string, 0, len(m.handlers))
	for event, handlers := range m.handlers {
		if len(handlers) > 0 {
			events = append(events, event)
		}
	}
	slices.Sort(events)
	return events
}
