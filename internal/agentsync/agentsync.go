// Package agentsync keeps the organization's agent list in step with the
// configuration backend.
package agentsync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/soyeahso/agentdesk/internal/backend"
	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/hooks"
	"github.com/soyeahso/agentdesk/internal/logging"
	"github.com/soyeahso/agentdesk/internal/metrics"
)

// Phase is the list's loading phase.
type Phase string

const (
	PhaseNotLoaded  Phase = "not_loaded"
	PhaseLoading    Phase = "loading"
	PhaseLoaded     Phase = "loaded"
	PhaseRefreshing Phase = "refreshing"
)

// ErrUnknownAgent is returned by Select for an id not in the list.
var ErrUnknownAgent = errors.New("agent not found")

// Lister fetches an organization's agents.
type Lister interface {
	ListAgents(ctx context.Context, org string) ([]domain.Agent, error)
}

// State is a snapshot of the manager.
type State struct {
	Phase    Phase          `json:"phase"`
	Agents   []domain.Agent `json:"agents"`
	Selected string         `json:"selected,omitempty"`
	Error    string         `json:"error,omitempty"`
	Org      string         `json:"org,omitempty"`
	Loaded   bool           `json:"loaded"`
}

// SelectedAgent returns the selected agent, if any.
func (s State) SelectedAgent() (domain.Agent, bool) {
	if s.Selected == "" {
		return domain.Agent{}, false
	}
	i := slices.IndexFunc(s.Agents, func(a domain.Agent) bool { return a.ID == s.Selected })
	if i < 0 {
		return domain.Agent{}, false
	}
	return s.Agents[i], true
}

// Options configures a Manager.
type Options struct {
	// Fallback fills the list with sample agents when a fetch fails.
	Fallback bool
	Metrics  *metrics.Metrics
	Hooks    *hooks.Manager
}

// Manager owns the agent list. At most one fetch is in flight; a newer
// refresh cancels the older one and results of superseded fetches are
// discarded.
type Manager struct {
	lister Lister
	opts   Options
	log    *logging.Logger

	mu        sync.Mutex
	state     State
	gen       uint64
	inflight  bool
	cancel    context.CancelFunc
	done      chan struct{}
	listeners []func(State)
	version   uint64

	notifyMu  sync.Mutex
	delivered uint64
}

type change struct {
	version   uint64
	state     State
	listeners []func(State)
}

// New creates a Manager in the not-loaded phase.
func New(lister Lister, opts Options, log *logging.Logger) *Manager {
	return &Manager{
		lister: lister,
		opts:   opts,
		log:    log.Sub("agentsync"),
		state:  State{Phase: PhaseNotLoaded},
	}
}

// OnChange registers fn to receive every state change in order. fn runs
// outside the manager's lock and may read it, but must not mutate it.
func (m *Manager) OnChange(fn func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() State {
	s := m.state
	s.Agents = slices.Clone(m.state.Agents)
	return s
}

// Fetch loads the list unless a fetch is already running, in which case
// it returns false without doing anything. It blocks until the result is
// applied or discarded.
func (m *Manager) Fetch(ctx context.Context) bool {
	m.mu.Lock()
	if m.inflight {
		m.mu.Unlock()
		m.log.Debug().Msg("fetch already in flight, dropping")
		return false
	}
	gen, fctx, org, c := m.beginLocked(ctx)
	m.mu.Unlock()
	m.deliver(c)

	m.run(fctx, gen, org)
	return true
}

// Load returns the list, fetching it first when it has never been loaded.
// A fetch already in flight is waited for rather than superseded.
func (m *Manager) Load(ctx context.Context) State {
	for ctx.Err() == nil {
		m.mu.Lock()
		if m.state.Loaded {
			s := m.snapshotLocked()
			m.mu.Unlock()
			return s
		}
		if m.inflight {
			done := m.done
			m.mu.Unlock()
			select {
			case <-done:
			case <-ctx.Done():
			}
			continue
		}
		gen, fctx, org, c := m.beginLocked(ctx)
		m.mu.Unlock()
		m.deliver(c)
		m.run(fctx, gen, org)
		break
	}
	return m.Snapshot()
}

// Refresh cancels any running fetch and loads the list again. The current
// list stays visible until the new one is applied.
func (m *Manager) Refresh(ctx context.Context) {
	m.mu.Lock()
	gen, fctx, org, c := m.beginLocked(ctx)
	m.mu.Unlock()
	m.deliver(c)

	m.run(fctx, gen, org)
}

// SetOrganization scopes the list to org. A different organization drops
// the loaded list and fetches again.
func (m *Manager) SetOrganization(ctx context.Context, org domain.Organization) {
	key := org.Key()
	m.mu.Lock()
	if key == m.state.Org && m.state.Loaded {
		m.mu.Unlock()
		return
	}
	m.state = State{Phase: PhaseNotLoaded, Org: key}
	// the new generation starts under the same lock, so a fetch for the
	// previous organization can no longer be applied
	gen, fctx, _, c := m.beginLocked(ctx)
	m.mu.Unlock()
	m.deliver(c)

	m.log.Info().Str("org", key).Msg("organization changed")
	m.run(fctx, gen, key)
}

// beginLocked supersedes any running fetch and starts a new generation.
func (m *Manager) beginLocked(ctx context.Context) (uint64, context.Context, string, *change) {
	if m.cancel != nil {
		m.cancel()
	}
	if m.done != nil {
		close(m.done)
	}
	m.gen++
	fctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.inflight = true
	if !m.state.Loaded && len(m.state.Agents) == 0 {
		m.state.Phase = PhaseLoading
	} else {
		m.state.Phase = PhaseRefreshing
	}
	return m.gen, fctx, m.state.Org, m.changedLocked()
}

func (m *Manager) run(ctx context.Context, gen uint64, org string) {
	agents, err := m.lister.ListAgents(ctx, org)

	result, c := m.finish(ctx, gen, agents, err)
	m.deliver(c)
	if result == metrics.ResultAborted {
		return
	}
	m.opts.Hooks.EmitAsync(context.WithoutCancel(ctx), hooks.EventAgentsSynced, map[string]any{
		"org":    org,
		"count":  len(m.Snapshot().Agents),
		"result": result,
	})
}

func (m *Manager) finish(ctx context.Context, gen uint64, agents []domain.Agent, err error) (string, *change) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		m.log.Debug().Uint64("gen", gen).Msg("discarding superseded fetch")
		m.opts.Metrics.RecordSync(metrics.ResultAborted, 0)
		return metrics.ResultAborted, nil
	}
	aborted := ctx.Err() != nil || errors.Is(err, context.Canceled)
	m.cancel()
	m.cancel = nil
	close(m.done)
	m.done = nil
	m.inflight = false

	if aborted {
		// keep whatever was shown, no error
		if m.state.Loaded {
			m.state.Phase = PhaseLoaded
		} else {
			m.state.Phase = PhaseNotLoaded
		}
		m.opts.Metrics.RecordSync(metrics.ResultAborted, 0)
		return metrics.ResultAborted, m.changedLocked()
	}

	result := metrics.ResultOK
	switch {
	case err == nil:
		m.state.Error = ""
		if len(agents) == 0 {
			result = metrics.ResultEmpty
		}
	case backend.IsNotAllowed(err):
		agents = nil
		m.state.Error = ""
		result = metrics.ResultEmpty
	default:
		m.log.Warn().Err(err).Str("org", m.state.Org).Msg("agent list fetch failed")
		m.state.Error = fmt.Sprintf("Failed to load agents: %v", err)
		agents = nil
		result = metrics.ResultError
		if m.opts.Fallback {
			agents = backend.FallbackAgents()
			result = metrics.ResultFallback
		}
	}

	m.state.Agents = agents
	m.state.Loaded = true
	m.state.Phase = PhaseLoaded
	m.reselectLocked()
	m.opts.Metrics.RecordSync(result, len(agents))
	m.log.Debug().Str("org", m.state.Org).Int("count", len(agents)).Str("result", result).Msg("agent list applied")
	return result, m.changedLocked()
}

// reselectLocked keeps the selection when the id is still listed, and
// otherwise selects the first agent. An empty list clears it.
func (m *Manager) reselectLocked() {
	if len(m.state.Agents) == 0 {
		m.state.Selected = ""
		return
	}
	if m.state.Selected != "" && m.indexLocked(m.state.Selected) >= 0 {
		return
	}
	m.state.Selected = m.state.Agents[0].ID
}

func (m *Manager) indexLocked(id string) int {
	return slices.IndexFunc(m.state.Agents, func(a domain.Agent) bool { return a.ID == id })
}

// Select makes id the selected agent.
func (m *Manager) Select(id string) error {
	m.mu.Lock()
	if m.indexLocked(id) < 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	var c *change
	if m.state.Selected != id {
		m.state.Selected = id
		c = m.changedLocked()
	}
	m.mu.Unlock()
	m.deliver(c)
	return nil
}

// Remove drops id from the list after a confirmed backend delete.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	i := m.indexLocked(id)
	if i < 0 {
		m.mu.Unlock()
		return false
	}
	m.state.Agents = slices.Delete(slices.Clone(m.state.Agents), i, i+1)
	m.reselectLocked()
	c := m.changedLocked()
	m.mu.Unlock()
	m.deliver(c)
	return true
}

// Upsert replaces the agent with the same id or appends it.
func (m *Manager) Upsert(a domain.Agent) {
	m.mu.Lock()
	agents := slices.Clone(m.state.Agents)
	if i := m.indexLocked(a.ID); i >= 0 {
		agents[i] = a
	} else {
		agents = append(agents, a)
	}
	m.state.Agents = agents
	if m.state.Selected == "" {
		m.state.Selected = a.ID
	}
	c := m.changedLocked()
	m.mu.Unlock()
	m.deliver(c)
}

// changedLocked records a state change for delivery once the lock is
// released.
func (m *Manager) changedLocked() *change {
	m.version++
	if len(m.listeners) == 0 {
		return nil
	}
	return &change{version: m.version, state: m.snapshotLocked(), listeners: slices.Clone(m.listeners)}
}

// deliver runs listeners outside m.mu. Changes overtaken by a newer
// delivered one are skipped so listeners never go back in time.
func (m *Manager) deliver(c *change) {
	if c == nil {
		return
	}
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	if c.version <= m.delivered {
		return
	}
	m.delivered = c.version
	for _, fn := range c.listeners {
		fn(c.state)
	}
}
