package agentsync

import (
	"slices"
	"sync"

	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/logging"
)

// Pool keeps one Manager per organization key. Each manager's list and
// selection belong to its organization alone.
type Pool struct {
	lister Lister
	opts   Options
	log    *logging.Logger

	mu        sync.Mutex
	managers  map[string]*Manager
	listeners []func(State)
}

// NewPool creates an empty pool.
func NewPool(lister Lister, opts Options, log *logging.Logger) *Pool {
	return &Pool{
		lister:   lister,
		opts:     opts,
		log:      log,
		managers: make(map[string]*Manager),
	}
}

// OnChange registers fn on every manager, current and future.
func (p *Pool) OnChange(fn func(State)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
	for _, m := range p.managers {
		m.OnChange(fn)
	}
}

// For returns org's manager, creating it unloaded on first use.
func (p *Pool) For(org domain.Organization) *Manager {
	key := org.Key()
	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := p.managers[key]; ok {
		return m
	}
	m := New(p.lister, p.opts, p.log.With("org", key))
	m.state.Org = key
	m.listeners = slices.Clone(p.listeners)
	p.managers[key] = m
	return m
}

// Orgs returns the keys of the organizations seen so far, sorted.
func (p *Pool) Orgs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.managers))
	for k := range p.managers {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// AgentCount sums the listed agents of every organization.
func (p *Pool) AgentCount() int {
	p.mu.Lock()
	managers := make([]*Manager, 0, len(p.managers))
	for _, m := range p.managers {
		managers = append(managers, m)
	}
	p.mu.Unlock()

	n := 0
	for _, m := range managers {
		n += len(m.Snapshot().Agents)
	}
	return n
}
