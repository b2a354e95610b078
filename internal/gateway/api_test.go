package gateway

import (
	"bufio"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/agentdesk/internal/agentsync"
	"github.com/soyeahso/agentdesk/internal/auth"
	"github.com/soyeahso/agentdesk/internal/call"
	"github.com/soyeahso/agentdesk/internal/dify"
	"github.com/soyeahso/agentdesk/internal/domain"
)

type createdAgent struct {
	Result domain.Result `json:"result"`
	Agent  domain.Agent  `json:"agent"`
}

type patchedSession struct {
	Groups  []string    `json:"groups"`
	Session sessionView `json:"session"`
}

func TestAPI_RequiresBearer(t *testing.T) {
	e := newTestEnv(t)

	resp, err := http.Get(e.ts.URL + "/api/agents")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	body := decodeBody[apiError](t, resp)
	assert.Equal(t, "unauthorized", body.Error)
}

func TestAPI_ListAgents(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodGet, "/api/agents", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	st := decodeBody[agentsync.State](t, resp)
	assert.Equal(t, agentsync.PhaseLoaded, st.Phase)
	require.Len(t, st.Agents, 1)
	assert.Equal(t, "sales_bot_1a2b", st.Selected)
}

func TestAPI_CreateAgent(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodPost, "/api/agents", `{"name":"support"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decodeBody[createdAgent](t, resp)
	assert.True(t, body.Result.Success)
	assert.Equal(t, "support", body.Agent.Name)
	assert.True(t, strings.HasPrefix(body.Agent.ID, "support_"))
	assert.Equal(t, 1, e.backend.updateCount())

	st := decodeBody[agentsync.State](t, e.do(t, http.MethodGet, "/api/agents", ""))
	assert.Len(t, st.Agents, 2)
}

func TestAPI_CreateAgentInvalidName(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodPost, "/api/agents", `{"name":"   "}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	res := decodeBody[domain.Result](t, resp)
	assert.False(t, res.Success)
	assert.Zero(t, e.backend.updateCount())
}

func TestAPI_DeleteAgent(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodDelete, "/api/agents/sales_bot_1a2b", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decodeBody[domain.Result](t, resp)
	assert.True(t, res.Success)

	e.backend.mu.Lock()
	assert.Equal(t, []string{"sales_bot_1a2b"}, e.backend.deletes)
	e.backend.mu.Unlock()

	st := e.srv.agents.For(e.srv.verifier.ResolveOrg(auth.Identity{UserID: localUser})).Snapshot()
	assert.Empty(t, st.Agents)
}

func TestAPI_DeleteUnknownAgent(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodDelete, "/api/agents/ghost", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_SessionRequiresSelection(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodGet, "/api/session", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_SelectAndAutoSave(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodPost, "/api/agents/sales_bot_1a2b/select", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decodeBody[sessionView](t, resp)
	assert.Equal(t, "sales_bot_1a2b", view.AgentID)
	assert.True(t, view.AutoSave)

	resp = e.do(t, http.MethodPatch, "/api/session/tools", `{"initialMessage":"Hi there"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	patched := decodeBody[patchedSession](t, resp)
	assert.Equal(t, []string{"tools"}, patched.Groups)
	assert.NotEmpty(t, patched.Session.Leases)

	require.Eventually(t, func() bool { return e.backend.updateCount() > 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Hi there", e.backend.lastUpdate().InitialMessage)
}

func TestAPI_ManualSaveWithAutoSaveOff(t *testing.T) {
	e := newTestEnv(t)
	e.do(t, http.MethodPost, "/api/agents/sales_bot_1a2b/select", "")

	resp := e.do(t, http.MethodPost, "/api/session/autosave", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decodeBody[sessionView](t, resp).AutoSave)

	e.do(t, http.MethodPatch, "/api/session/tools", `{"maxNudges":3}`)
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, e.backend.updateCount())

	resp = e.do(t, http.MethodPost, "/api/session/save", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decodeBody[sessionView](t, resp)
	assert.False(t, view.Unsaved)
	require.Equal(t, 1, e.backend.updateCount())
	assert.Equal(t, 3, e.backend.lastUpdate().MaxNudges)
}

func TestAPI_PatchUnknownSection(t *testing.T) {
	e := newTestEnv(t)
	e.do(t, http.MethodPost, "/api/agents/sales_bot_1a2b/select", "")

	resp := e.do(t, http.MethodPatch, "/api/session/billing", `{"a":1}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_ModelSaveUnknownAgent(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodPost, "/api/prompt", `{"agentId":"ghost","systemPrompt":"x"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_AvailableAgents(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodGet, "/api/agents/available", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string][]domain.AvailableAgent](t, resp)
	require.Len(t, body["agents"], 1)
	assert.Equal(t, "Support", body["agents"][0].AppName)
}

func TestAPI_CallLifecycle(t *testing.T) {
	e := newTestEnv(t)
	const agent = `{"agentId":"sales_bot_1a2b"}`

	resp := e.do(t, http.MethodPost, "/api/call/start", agent)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decodeBody[call.Snapshot](t, resp)
	assert.Equal(t, call.StateActive, snap.State)
	require.NotNil(t, snap.Token)
	assert.Equal(t, "room-sales_bot_1a2b", snap.Token.RoomName)

	resp = e.do(t, http.MethodPost, "/api/call/start", agent)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/call/mute", agent)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decodeBody[map[string]any](t, resp)["muted"])

	resp = e.do(t, http.MethodGet, "/api/call", "")
	calls := decodeBody[map[string][]call.Snapshot](t, resp)
	assert.Len(t, calls["calls"], 1)

	resp = e.do(t, http.MethodPost, "/api/call/end", agent)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, call.StateIdle, decodeBody[call.Snapshot](t, resp).State)

	resp = e.do(t, http.MethodPost, "/api/call/end", agent)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_CallRequiresAgentID(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodPost, "/api/call/start", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_Chat(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodPost, "/api/chat", `{"agentId":"sales_bot_1a2b","query":"hello"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	reply := decodeBody[dify.ChatResponse](t, resp)
	assert.Equal(t, "echo: hello", reply.Answer)
}

func TestAPI_ChatStreaming(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodPost, "/api/chat", `{"agentId":"sales_bot_1a2b","query":"hello","stream":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var events []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if name, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
			events = append(events, name)
		}
	}
	assert.Equal(t, []string{"chunk", "chunk", "done"}, events)
}

func TestAPI_ChatRequiresQuery(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodPost, "/api/chat", `{"agentId":"sales_bot_1a2b","query":" "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_MetricsRoute(t *testing.T) {
	e := newTestEnv(t)

	resp, err := http.Get(e.ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	// no metrics collector configured
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
