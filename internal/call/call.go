// Package call runs the dashboard's voice-call toggle for an agent:
// idle, connecting, active and back to idle.
package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/agentdesk/internal/backend"
	"github.com/soyeahso/agentdesk/internal/hooks"
	"github.com/soyeahso/agentdesk/internal/logging"
	"github.com/soyeahso/agentdesk/internal/metrics"
)

// State is a call's phase.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateActive     State = "active"
)

// DefaultConnecting is the time spent in the connecting state before the
// call token is requested.
const DefaultConnecting = 3 * time.Second

var (
	// ErrCallActive is returned by Start while a call is connecting or active.
	ErrCallActive = errors.New("a call is already in progress")
	// ErrNotActive is returned by End and ToggleMute when no call is running.
	ErrNotActive = errors.New("no call in progress")
	// ErrAborted is returned by Start when End ran while connecting.
	ErrAborted = errors.New("call was ended while connecting")
)

// TokenSource issues call tokens.
type TokenSource interface {
	GenerateCallToken(ctx context.Context, agentName string) (backend.CallToken, error)
}

// Snapshot is what the call widget renders.
type Snapshot struct {
	AgentID        string             `json:"agentId"`
	SessionID      string             `json:"sessionId,omitempty"`
	State          State              `json:"state"`
	Muted          bool               `json:"muted"`
	StartedAt      *time.Time         `json:"startedAt,omitempty"`
	ElapsedSeconds int                `json:"elapsedSeconds"`
	Token          *backend.CallToken `json:"token,omitempty"`
	Error          string             `json:"error,omitempty"`
}

// Options configures call sessions.
type Options struct {
	Connecting  time.Duration
	MaxDuration time.Duration
	Metrics     *metrics.Metrics
	Hooks       *hooks.Manager
}

// Session is one agent's call toggle.
type Session struct {
	agentID  string
	tokens   TokenSource
	opts     Options
	log      *logging.Logger
	now      func() time.Time
	onChange func(Snapshot)

	mu        sync.Mutex
	state     State
	sessionID string
	muted     bool
	started   time.Time
	token     *backend.CallToken
	lastErr   string
	stop      context.CancelFunc
}

func newSession(agentID string, tokens TokenSource, opts Options, log *logging.Logger, onChange func(Snapshot)) *Session {
	if opts.Connecting <= 0 {
		opts.Connecting = DefaultConnecting
	}
	return &Session{
		agentID:  agentID,
		tokens:   tokens,
		opts:     opts,
		log:      log.With("agent", agentID),
		now:      time.Now,
		onChange: onChange,
		state:    StateIdle,
	}
}

// Snapshot returns the current call state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		AgentID:   s.agentID,
		SessionID: s.sessionID,
		State:     s.state,
		Muted:     s.muted,
		Token:     s.token,
		Error:     s.lastErr,
	}
	if s.state == StateActive {
		started := s.started
		snap.StartedAt = &started
		snap.ElapsedSeconds = int(s.now().Sub(s.started) / time.Second)
	}
	return snap
}

func (s *Session) notify() {
	if s.onChange != nil {
		s.onChange(s.Snapshot())
	}
}

// Start connects a call. It blocks through the connecting delay and the
// token request, and returns the active snapshot. End during connecting
// aborts the attempt.
func (s *Session) Start(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return Snapshot{}, ErrCallActive
	}
	// the call outlives the request that started it
	attempt, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.state = StateConnecting
	s.sessionID = uuid.NewString()
	s.lastErr = ""
	s.token = nil
	s.stop = cancel
	id := s.sessionID
	s.mu.Unlock()
	s.notify()
	s.log.Info().Str("session", id).Msg("call connecting")

	connectCtx, stopConnect := context.WithCancel(ctx)
	stopAfter := context.AfterFunc(attempt, stopConnect)
	token, err := s.connect(connectCtx)
	stopAfter()
	stopConnect()

	s.mu.Lock()
	if s.sessionID != id || s.state != StateConnecting {
		s.mu.Unlock()
		cancel()
		return s.Snapshot(), ErrAborted
	}
	if err != nil {
		cancel()
		s.state = StateIdle
		s.stop = nil
		s.lastErr = err.Error()
		s.mu.Unlock()
		s.notify()
		s.log.Warn().Err(err).Msg("call failed to connect")
		return s.Snapshot(), err
	}
	s.state = StateActive
	s.token = &token
	s.started = s.now()
	s.mu.Unlock()

	s.opts.Metrics.CallStarted()
	s.opts.Hooks.EmitAsync(context.WithoutCancel(ctx), hooks.EventCallStarted, map[string]any{
		"agent":   s.agentID,
		"session": id,
		"room":    token.RoomName,
	})
	s.log.Info().Str("session", id).Str("room", token.RoomName).Msg("call active")
	go s.tick(attempt, id)
	s.notify()
	return s.Snapshot(), nil
}

func (s *Session) connect(ctx context.Context) (backend.CallToken, error) {
	t := time.NewTimer(s.opts.Connecting)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return backend.CallToken{}, ctx.Err()
	case <-t.C:
	}
	token, err := s.tokens.GenerateCallToken(ctx, s.agentID)
	if err != nil {
		return backend.CallToken{}, fmt.Errorf("failed to get call token: %w", err)
	}
	return token, nil
}

// tick pushes an elapsed-time update every second and ends the call at
// the max duration.
func (s *Session) tick(ctx context.Context, id string) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	var deadline <-chan time.Time
	if s.opts.MaxDuration > 0 {
		t := time.NewTimer(s.opts.MaxDuration)
		defer t.Stop()
		deadline = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			s.log.Info().Str("session", id).Dur("max", s.opts.MaxDuration).Msg("call reached max duration")
			_ = s.end(id)
			return
		case <-ticker.C:
			s.notify()
		}
	}
}

// End hangs up. It is valid while connecting or active.
func (s *Session) End() error {
	s.mu.Lock()
	id := s.sessionID
	s.mu.Unlock()
	return s.end(id)
}

func (s *Session) end(id string) error {
	s.mu.Lock()
	if s.state == StateIdle || s.sessionID != id {
		s.mu.Unlock()
		return ErrNotActive
	}
	wasActive := s.state == StateActive
	var d time.Duration
	if wasActive {
		d = s.now().Sub(s.started)
	}
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
	s.state = StateIdle
	s.muted = false
	s.token = nil
	s.started = time.Time{}
	s.mu.Unlock()

	if wasActive {
		s.opts.Metrics.CallEnded(d)
		s.opts.Hooks.EmitAsync(context.Background(), hooks.EventCallEnded, map[string]any{
			"agent":   s.agentID,
			"session": id,
			"seconds": int(d / time.Second),
		})
	}
	s.log.Info().Str("session", id).Dur("duration", d).Msg("call ended")
	s.notify()
	return nil
}

// ToggleMute flips the microphone mute flag and returns the new value.
// Mute is local to the dashboard.
func (s *Session) ToggleMute() (bool, error) {
	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return false, ErrNotActive
	}
	s.muted = !s.muted
	muted := s.muted
	s.mu.Unlock()
	s.notify()
	return muted, nil
}

// Manager holds one call session per agent.
type Manager struct {
	tokens TokenSource
	opts   Options
	log    *logging.Logger

	mu        sync.Mutex
	sessions  map[string]*Session
	listeners []func(Snapshot)
}

// NewManager creates a Manager.
func NewManager(tokens TokenSource, opts Options, log *logging.Logger) *Manager {
	return &Manager{
		tokens:   tokens,
		opts:     opts,
		log:      log.Sub("call"),
		sessions: make(map[string]*Session),
	}
}

// OnChange registers fn for every call state change.
func (m *Manager) OnChange(fn func(Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Session returns agentID's session, creating it idle.
func (m *Manager) Session(agentID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[agentID]
	if !ok {
		s = newSession(agentID, m.tokens, m.opts, m.log, m.broadcast)
		m.sessions[agentID] = s
	}
	return s
}

func (m *Manager) broadcast(snap Snapshot) {
	m.mu.Lock()
	fns := m.listeners
	m.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

// Active lists the snapshots of calls that are not idle.
func (m *Manager) Active() []Snapshot {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	var out []Snapshot
	for _, s := range sessions {
		if snap := s.Snapshot(); snap.State != StateIdle {
			out = append(out, snap)
		}
	}
	return out
}

// EndAll hangs up every running call.
func (m *Manager) EndAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()
	for _, s := range sessions {
		_ = s.End()
	}
}
