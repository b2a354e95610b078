package agentsync

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/agentdesk/internal/backend"
	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/hooks"
	"github.com/soyeahso/agentdesk/internal/logging"
)

func testLogger() *logging.Logger { return logging.New(nil, "silent") }

func agents(ids ...string) []domain.Agent {
	out := make([]domain.Agent, len(ids))
	for i, id := range ids {
		out[i] = domain.Agent{ID: id, Name: id}
	}
	return out
}

func ids(list []domain.Agent) []string {
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.ID
	}
	return out
}

type reply struct {
	agents []domain.Agent
	err    error
}

// scripted answers each ListAgents call with the next reply. A reply with
// a gate blocks until the gate is closed.
type scripted struct {
	mu      sync.Mutex
	replies []reply
	gates   map[int]chan struct{}
	calls   int
	orgs    []string
	started chan int
}

func newScripted(replies ...reply) *scripted {
	return &scripted{replies: replies, gates: map[int]chan struct{}{}, started: make(chan int, 16)}
}

func (s *scripted) gate(call int) chan struct{} {
	ch := make(chan struct{})
	s.gates[call] = ch
	return ch
}

func (s *scripted) ListAgents(ctx context.Context, org string) ([]domain.Agent, error) {
	s.mu.Lock()
	n := s.calls
	s.calls++
	s.orgs = append(s.orgs, org)
	r := s.replies[min(n, len(s.replies)-1)]
	gate := s.gates[n]
	s.mu.Unlock()

	s.started <- n
	if gate != nil {
		<-gate
	}
	return r.agents, r.err
}

func (s *scripted) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestFetch_InitialLoadSelectsFirst(t *testing.T) {
	m := New(newScripted(reply{agents: agents("a", "b")}), Options{}, testLogger())
	assert.Equal(t, PhaseNotLoaded, m.Snapshot().Phase)

	require.True(t, m.Fetch(context.Background()))

	s := m.Snapshot()
	assert.Equal(t, PhaseLoaded, s.Phase)
	assert.True(t, s.Loaded)
	assert.Equal(t, []string{"a", "b"}, ids(s.Agents))
	assert.Equal(t, "a", s.Selected)
	assert.Empty(t, s.Error)
}

func TestFetch_DroppedWhileInFlight(t *testing.T) {
	src := newScripted(reply{agents: agents("a")})
	release := src.gate(0)
	m := New(src, Options{}, testLogger())

	done := make(chan bool)
	go func() { done <- m.Fetch(context.Background()) }()
	<-src.started

	assert.Equal(t, PhaseLoading, m.Snapshot().Phase)
	assert.False(t, m.Fetch(context.Background()))

	close(release)
	assert.True(t, <-done)
	assert.Equal(t, 1, src.callCount())
}

func TestRefresh_SupersedesOlderFetch(t *testing.T) {
	src := newScripted(reply{agents: agents("a")}, reply{agents: agents("b")})
	releaseA := src.gate(0)
	m := New(src, Options{}, testLogger())

	doneA := make(chan struct{})
	go func() {
		m.Refresh(context.Background())
		close(doneA)
	}()
	<-src.started

	m.Refresh(context.Background())
	assert.Equal(t, []string{"b"}, ids(m.Snapshot().Agents))

	close(releaseA)
	<-doneA
	s := m.Snapshot()
	assert.Equal(t, []string{"b"}, ids(s.Agents))
	assert.Equal(t, PhaseLoaded, s.Phase)
}

func TestRefresh_KeepsListVisible(t *testing.T) {
	src := newScripted(reply{agents: agents("a")}, reply{agents: agents("a", "b")})
	m := New(src, Options{}, testLogger())
	m.Fetch(context.Background())

	release := src.gate(1)
	done := make(chan struct{})
	go func() {
		m.Refresh(context.Background())
		close(done)
	}()
	<-src.started
	<-src.started

	s := m.Snapshot()
	assert.Equal(t, PhaseRefreshing, s.Phase)
	assert.Equal(t, []string{"a"}, ids(s.Agents))

	close(release)
	<-done
	assert.Equal(t, []string{"a", "b"}, ids(m.Snapshot().Agents))
}

func TestFetch_SelectionPreservedByID(t *testing.T) {
	src := newScripted(reply{agents: agents("a", "b")}, reply{agents: agents("c", "b")})
	m := New(src, Options{}, testLogger())
	m.Fetch(context.Background())
	require.NoError(t, m.Select("b"))

	m.Refresh(context.Background())
	assert.Equal(t, "b", m.Snapshot().Selected)
}

func TestFetch_StaleSelectionFallsBackToFirst(t *testing.T) {
	src := newScripted(reply{agents: agents("a", "b")}, reply{agents: agents("c", "d")})
	m := New(src, Options{}, testLogger())
	m.Fetch(context.Background())
	require.NoError(t, m.Select("b"))

	m.Refresh(context.Background())
	assert.Equal(t, "c", m.Snapshot().Selected)
}

func TestFetch_EmptyListClearsSelection(t *testing.T) {
	src := newScripted(reply{agents: agents("a")}, reply{agents: nil})
	m := New(src, Options{}, testLogger())
	m.Fetch(context.Background())
	m.Refresh(context.Background())

	s := m.Snapshot()
	assert.Empty(t, s.Agents)
	assert.Empty(t, s.Selected)
	assert.True(t, s.Loaded)
}

func TestFetch_NotAllowedIsEmptyWithoutError(t *testing.T) {
	src := newScripted(reply{err: &backend.APIError{Status: http.StatusMethodNotAllowed, Message: "nope"}})
	m := New(src, Options{Fallback: true}, testLogger())
	m.Fetch(context.Background())

	s := m.Snapshot()
	assert.Empty(t, s.Agents)
	assert.Empty(t, s.Error)
	assert.Equal(t, PhaseLoaded, s.Phase)
}

func TestFetch_FailureUsesFallbackAgents(t *testing.T) {
	src := newScripted(reply{err: errors.New("connection refused")})
	m := New(src, Options{Fallback: true}, testLogger())
	m.Fetch(context.Background())

	s := m.Snapshot()
	assert.Contains(t, s.Error, "connection refused")
	assert.Equal(t, []string{"riley-001", "elliot-002"}, ids(s.Agents))
	assert.Equal(t, "riley-001", s.Selected)
}

func TestFetch_FailureWithoutFallback(t *testing.T) {
	src := newScripted(reply{err: errors.New("boom")})
	m := New(src, Options{}, testLogger())
	m.Fetch(context.Background())

	s := m.Snapshot()
	assert.NotEmpty(t, s.Error)
	assert.Empty(t, s.Agents)
}

func TestFetch_CancelledCallerIsNotAnError(t *testing.T) {
	src := newScripted(reply{err: context.Canceled})
	m := New(src, Options{Fallback: true}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.Fetch(ctx)

	s := m.Snapshot()
	assert.Empty(t, s.Error)
	assert.Empty(t, s.Agents)
	assert.Equal(t, PhaseNotLoaded, s.Phase)
	assert.False(t, s.Loaded)
}

func TestSetOrganization_RefetchesOnChange(t *testing.T) {
	src := newScripted(reply{agents: agents("a")}, reply{agents: agents("x")})
	m := New(src, Options{}, testLogger())

	m.SetOrganization(context.Background(), domain.Organization{ID: "org-1", Name: "Acme"})
	m.SetOrganization(context.Background(), domain.Organization{ID: "org-1", Name: "Acme"})
	assert.Equal(t, 1, src.callCount())

	m.SetOrganization(context.Background(), domain.Organization{ID: "user-7"})
	assert.Equal(t, 2, src.callCount())
	assert.Equal(t, []string{"Acme", "user-7"}, src.orgs)

	s := m.Snapshot()
	assert.Equal(t, "user-7", s.Org)
	assert.Equal(t, []string{"x"}, ids(s.Agents))
}

func TestSelectRemoveUpsert(t *testing.T) {
	m := New(newScripted(reply{agents: agents("a", "b", "c")}), Options{}, testLogger())
	m.Fetch(context.Background())

	assert.ErrorIs(t, m.Select("zzz"), ErrUnknownAgent)
	require.NoError(t, m.Select("b"))

	assert.True(t, m.Remove("b"))
	assert.False(t, m.Remove("b"))
	s := m.Snapshot()
	assert.Equal(t, []string{"a", "c"}, ids(s.Agents))
	assert.Equal(t, "a", s.Selected)

	m.Upsert(domain.Agent{ID: "c", Name: "Renamed"})
	m.Upsert(domain.Agent{ID: "d", Name: "d"})
	s = m.Snapshot()
	assert.Equal(t, []string{"a", "c", "d"}, ids(s.Agents))
	got, ok := s.SelectedAgent()
	require.True(t, ok)
	assert.Equal(t, "a", got.ID)
	assert.Equal(t, "Renamed", s.Agents[1].Name)
}

func TestOnChange_ReceivesStatesInOrder(t *testing.T) {
	m := New(newScripted(reply{agents: agents("a")}), Options{}, testLogger())

	var mu sync.Mutex
	var phases []Phase
	m.OnChange(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		phases = append(phases, s.Phase)
	})
	m.Fetch(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Phase{PhaseLoading, PhaseLoaded}, phases)
}

func TestFetch_EmitsSyncedHook(t *testing.T) {
	h := hooks.NewManager(testLogger())
	got := make(chan hooks.Payload, 1)
	h.On(hooks.EventAgentsSynced, "test", func(_ context.Context, p hooks.Payload) error {
		got <- p
		return nil
	})

	m := New(newScripted(reply{agents: agents("a", "b")}), Options{Hooks: h}, testLogger())
	m.SetOrganization(context.Background(), domain.Organization{Name: "Acme"})

	select {
	case p := <-got:
		assert.Equal(t, "Acme", p.Data["org"])
		assert.Equal(t, 2, p.Data["count"])
	case <-time.After(2 * time.Second):
		t.Fatal("agents_synced not emitted")
	}
}

func TestLoad_WaitsForFetchInFlight(t *testing.T) {
	src := newScripted(reply{agents: agents("a", "b")})
	release := src.gate(0)
	m := New(src, Options{}, testLogger())

	go m.Fetch(context.Background())
	<-src.started

	loaded := make(chan State)
	go func() { loaded <- m.Load(context.Background()) }()

	close(release)
	s := <-loaded
	assert.True(t, s.Loaded)
	assert.Equal(t, []string{"a", "b"}, ids(s.Agents))
	assert.Equal(t, 1, src.callCount())

	m.Load(context.Background())
	assert.Equal(t, 1, src.callCount())
}

func TestSetOrganization_DiscardsPreviousOrgFetch(t *testing.T) {
	src := newScripted(reply{agents: agents("acme_bot")}, reply{agents: agents("globex_bot")})
	releaseAcme := src.gate(0)
	m := New(src, Options{}, testLogger())

	done := make(chan struct{})
	go func() {
		m.SetOrganization(context.Background(), domain.Organization{Name: "acme"})
		close(done)
	}()
	<-src.started

	m.SetOrganization(context.Background(), domain.Organization{Name: "globex"})
	close(releaseAcme)
	<-done

	s := m.Snapshot()
	assert.Equal(t, "globex", s.Org)
	assert.Equal(t, []string{"globex_bot"}, ids(s.Agents))
	assert.Equal(t, []string{"acme", "globex"}, src.orgs)
}

type byOrg map[string][]domain.Agent

func (b byOrg) ListAgents(_ context.Context, org string) ([]domain.Agent, error) {
	return b[org], nil
}

func TestPool_KeepsOrganizationsApart(t *testing.T) {
	p := NewPool(byOrg{
		"acme":   agents("acme_bot", "acme_helper"),
		"globex": agents("globex_bot"),
	}, Options{}, testLogger())

	var mu sync.Mutex
	seen := map[string][]string{}
	p.OnChange(func(s State) {
		if s.Phase != PhaseLoaded {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		seen[s.Org] = ids(s.Agents)
	})

	ctx := context.Background()
	acme := p.For(domain.Organization{ID: "o-1", Name: "acme"})
	globex := p.For(domain.Organization{ID: "o-2", Name: "globex"})
	assert.Same(t, acme, p.For(domain.Organization{Name: "acme"}))

	assert.Equal(t, []string{"acme_bot", "acme_helper"}, ids(acme.Load(ctx).Agents))
	assert.Equal(t, []string{"globex_bot"}, ids(globex.Load(ctx).Agents))

	require.NoError(t, acme.Select("acme_helper"))
	assert.ErrorIs(t, globex.Select("acme_helper"), ErrUnknownAgent)
	assert.Equal(t, "globex_bot", globex.Snapshot().Selected)

	assert.Equal(t, []string{"acme", "globex"}, p.Orgs())
	assert.Equal(t, 3, p.AgentCount())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"acme_bot", "acme_helper"}, seen["acme"])
	assert.Equal(t, []string{"globex_bot"}, seen["globex"])
}
