package autosave

import (
	"context"
	"errors"
	"sync"

	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/logging"
)

// ErrNoSession is returned when no agent is open for editing.
var ErrNoSession = errors.New("no agent is open for editing")

// StatusFunc receives save indicator changes of owner's session.
type StatusFunc func(owner, agentID string, st domain.AutoSaveStatus)

// Editor holds one editing session per owner, usually an organization
// key. Opening another agent closes the owner's previous session under
// the switch policy. Owners never see each other's sessions.
type Editor struct {
	saver  Saver
	tiers  Tiers
	opts   Options
	policy SwitchPolicy
	log    *logging.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	owners   map[string]*sync.Mutex
	onStatus []StatusFunc
}

// NewEditor creates an Editor with no open session.
func NewEditor(saver Saver, tiers Tiers, opts Options, policy SwitchPolicy, log *logging.Logger) *Editor {
	return &Editor{
		saver:    saver,
		tiers:    tiers,
		opts:     opts,
		policy:   policy,
		log:      log,
		sessions: make(map[string]*Session),
		owners:   make(map[string]*sync.Mutex),
	}
}

// OnStatus registers fn for save indicator changes of any session.
func (e *Editor) OnStatus(fn StatusFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onStatus = append(e.onStatus, fn)
}

// lockOwner serializes opening and closing for one owner.
func (e *Editor) lockOwner(owner string) func() {
	e.mu.Lock()
	l, ok := e.owners[owner]
	if !ok {
		l = &sync.Mutex{}
		e.owners[owner] = l
	}
	e.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Current returns owner's open session.
func (e *Editor) Current(owner string) (*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[owner]
	if !ok {
		return nil, ErrNoSession
	}
	return s, nil
}

// Open makes agent owner's edited agent. Reopening the same agent reloads
// it into the existing session, keeping leased fields. Otherwise the old
// session is closed first, then the new one is restored from the local
// tiers or loaded from agent.
func (e *Editor) Open(ctx context.Context, owner string, agent domain.Agent) (*Session, error) {
	unlock := e.lockOwner(owner)
	defer unlock()

	e.mu.Lock()
	cur := e.sessions[owner]
	if cur != nil && cur.AgentID() == agent.ID {
		e.mu.Unlock()
		return cur, cur.Load(agent)
	}
	delete(e.sessions, owner)
	listeners := e.onStatus
	e.mu.Unlock()

	if cur != nil {
		if err := cur.Close(ctx, e.policy); err != nil {
			e.log.Warn().Err(err).Str("owner", owner).Str("agent", cur.AgentID()).Msg("pending writes failed on switch")
		}
	}

	s := NewSession(agent, e.saver, e.tiers, e.opts, e.log)
	for _, fn := range listeners {
		s.OnStatus(func(st domain.AutoSaveStatus) { fn(owner, agent.ID, st) })
	}
	tier, err := s.Restore(ctx)
	if err != nil {
		e.log.Warn().Err(err).Str("agent", agent.ID).Msg("restoring local bundle failed")
	}
	if tier == "" {
		if err := s.Load(agent); err != nil {
			return nil, err
		}
	}

	e.mu.Lock()
	e.sessions[owner] = s
	e.mu.Unlock()
	return s, nil
}

// CloseCurrent closes owner's open session, if any.
func (e *Editor) CloseCurrent(ctx context.Context, owner string) error {
	unlock := e.lockOwner(owner)
	defer unlock()

	e.mu.Lock()
	cur := e.sessions[owner]
	delete(e.sessions, owner)
	e.mu.Unlock()
	if cur == nil {
		return nil
	}
	return cur.Close(ctx, e.policy)
}

// CloseAll closes every open session and joins their errors.
func (e *Editor) CloseAll(ctx context.Context) error {
	e.mu.Lock()
	owners := make([]string, 0, len(e.sessions))
	for o := range e.sessions {
		owners = append(owners, o)
	}
	e.mu.Unlock()

	var errs []error
	for _, o := range owners {
		if err := e.CloseCurrent(ctx, o); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Forget closes and clears any session of a deleted agent without
// writing. With no session open the local tiers are cleared directly.
func (e *Editor) Forget(ctx context.Context, agentID string) error {
	e.mu.Lock()
	var open []*Session
	for o, s := range e.sessions {
		if s.AgentID() == agentID {
			open = append(open, s)
			delete(e.sessions, o)
		}
	}
	e.mu.Unlock()

	if len(open) == 0 {
		return e.tiers.Delete(ctx, agentID)
	}
	var errs []error
	for _, s := range open {
		if err := s.Reset(ctx); err != nil {
			errs = append(errs, err)
		}
		errs = append(errs, s.Close(ctx, PolicyCancel))
	}
	return errors.Join(errs...)
}
