package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/soyeahso/agentdesk/internal/agentsync"
	"github.com/soyeahso/agentdesk/internal/autosave"
	"github.com/soyeahso/agentdesk/internal/call"
	"github.com/soyeahso/agentdesk/internal/dashboard"
	"github.com/soyeahso/agentdesk/internal/dify"
	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/lease"
)

// registerAPIRoutes sets up the dashboard REST API. Every route requires
// an identity.
func (s *Server) registerAPIRoutes(mux *http.ServeMux) {
	api := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.withIdentity(h))
	}

	api("GET /api/agents", s.handleAgents)
	api("POST /api/agents/refresh", s.handleAgentsRefresh)
	api("POST /api/agents", s.handleCreateAgent)
	api("DELETE /api/agents/{id}", s.handleDeleteAgent)
	api("POST /api/agents/{id}/select", s.handleSelectAgent)
	api("GET /api/agents/available", s.handleAvailable)
	api("POST /api/agents/associate", s.handleAssociate)

	api("GET /api/session", s.handleSession)
	api("PATCH /api/session/{section}", s.handleSessionPatch)
	api("POST /api/session/save", s.handleSessionSave)
	api("POST /api/session/autosave", s.handleSessionAutosave)

	api("POST /api/model-config", s.handleModelSave(s.dashboard.SaveModelConfig))
	api("POST /api/prompt", s.handleModelSave(s.dashboard.SavePrompt))
	api("POST /api/knowledge", s.handleModelSave(s.dashboard.SaveKnowledgeBase))

	api("GET /api/call", s.handleCall)
	api("POST /api/call/start", s.handleCallStart)
	api("POST /api/call/end", s.handleCallEnd)
	api("POST /api/call/mute", s.handleCallMute)

	api("POST /api/chat", s.handleChat)
}

// listFor returns the agent list of the caller's organization.
func (s *Server) listFor(ctx context.Context) *agentsync.Manager {
	return s.agents.For(s.orgFrom(ctx))
}

// scoped returns the caller's agent list, loading it on first use.
func (s *Server) scoped(ctx context.Context) agentsync.State {
	return s.listFor(ctx).Load(ctx)
}

// agentByID looks id up in the caller's agent list.
func (s *Server) agentByID(ctx context.Context, id string) (domain.Agent, bool) {
	return findAgent(s.scoped(ctx), id)
}

func findAgent(st agentsync.State, id string) (domain.Agent, bool) {
	for _, a := range st.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return domain.Agent{}, false
}

// owner keys the caller's editing session.
func (s *Server) owner(ctx context.Context) string {
	return s.orgFrom(ctx).Key()
}

func writeResult(w http.ResponseWriter, okStatus int, v any, res domain.Result) {
	if !res.Success {
		writeJSON(w, http.StatusUnprocessableEntity, res)
		return
	}
	if v == nil {
		writeJSON(w, okStatus, res)
		return
	}
	writeJSON(w, okStatus, map[string]any{"result": res, "agent": v})
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scoped(r.Context()))
}

func (s *Server) handleAgentsRefresh(w http.ResponseWriter, r *http.Request) {
	list := s.listFor(r.Context())
	list.Refresh(r.Context())
	writeJSON(w, http.StatusOK, list.Snapshot())
}

type createAgentRequest struct {
	Name string `json:"name"`
	dashboard.CreateInput
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	ctx := r.Context()
	s.scoped(ctx)
	agent, res := s.dashboard.CreateAgent(ctx, s.orgFrom(ctx), req.Name, req.CreateInput)
	writeResult(w, http.StatusCreated, agent, res)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	agent, ok := s.agentByID(ctx, id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", agentsync.ErrUnknownAgent.Error())
		return
	}
	res := s.dashboard.DeleteAgent(ctx, s.orgFrom(ctx), agent)
	if res.Success {
		if err := s.editor.Forget(ctx, agent.ID); err != nil {
			s.log.Warn().Err(err).Str("agent", agent.ID).Msg("clearing local bundle failed")
		}
		if err := s.calls.Session(agent.ID).End(); err != nil && !errors.Is(err, call.ErrNotActive) {
			s.log.Warn().Err(err).Str("agent", agent.ID).Msg("ending call of deleted agent failed")
		}
	}
	writeResult(w, http.StatusOK, nil, res)
}

func (s *Server) handleSelectAgent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	list := s.listFor(ctx)
	list.Load(ctx)
	if err := list.Select(id); err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	agent, ok := list.Snapshot().SelectedAgent()
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", agentsync.ErrUnknownAgent.Error())
		return
	}
	// pending writes of the previous agent finish even if the caller leaves
	sess, err := s.editor.Open(context.WithoutCancel(ctx), s.owner(ctx), agent)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "open_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

func (s *Server) handleAvailable(w http.ResponseWriter, r *http.Request) {
	found, err := s.dashboard.ListAvailable(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "discovery_failed", err.Error())
		return
	}
	if found == nil {
		found = []domain.AvailableAgent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": found})
}

func (s *Server) handleAssociate(w http.ResponseWriter, r *http.Request) {
	var req domain.AvailableAgent
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	ctx := r.Context()
	s.scoped(ctx)
	agent, res := s.dashboard.AssociateAgent(ctx, s.orgFrom(ctx), req)
	writeResult(w, http.StatusCreated, agent, res)
}

// sessionView is what the editor renders for the open agent.
type sessionView struct {
	AgentID  string                `json:"agentId"`
	Agent    domain.Agent          `json:"agent"`
	Bundle   domain.Bundle         `json:"bundle"`
	Status   domain.AutoSaveStatus `json:"status"`
	Unsaved  bool                  `json:"hasUnsavedChanges"`
	AutoSave bool                  `json:"autoSave"`
	Leases   []lease.Lease         `json:"leases"`
}

func viewOf(sess *autosave.Session) sessionView {
	leases := sess.Leases()
	if leases == nil {
		leases = []lease.Lease{}
	}
	return sessionView{
		AgentID:  sess.AgentID(),
		Agent:    sess.Agent(),
		Bundle:   sess.Bundle(),
		Status:   sess.Status(),
		Unsaved:  sess.HasUnsavedChanges(),
		AutoSave: sess.AutoSaveEnabled(),
		Leases:   leases,
	}
}

func applyEdit(sess *autosave.Session, section domain.Section, patch json.RawMessage, replace bool) ([]string, error) {
	if replace {
		return sess.Replace(section, patch)
	}
	return sess.Update(section, patch)
}

// currentSession returns the caller's session and writes 409 when no
// agent is open.
func (s *Server) currentSession(w http.ResponseWriter, r *http.Request) (*autosave.Session, bool) {
	sess, err := s.editor.Current(s.owner(r.Context()))
	if err != nil {
		writeError(w, http.StatusConflict, "no_session", err.Error())
		return nil, false
	}
	return sess, true
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.currentSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

func (s *Server) handleSessionPatch(w http.ResponseWriter, r *http.Request) {
	section, err := domain.ParseSection(r.PathValue("section"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown_section", err.Error())
		return
	}
	patch, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil || len(strings.TrimSpace(string(patch))) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_body", "a JSON object is required")
		return
	}
	sess, ok := s.currentSession(w, r)
	if !ok {
		return
	}
	groups, err := applyEdit(sess, section, patch, r.URL.Query().Get("replace") == "true")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_patch", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups, "session": viewOf(sess)})
}

func (s *Server) handleSessionSave(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.currentSession(w, r)
	if !ok {
		return
	}
	if err := sess.Save(context.WithoutCancel(r.Context())); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":   "save_failed",
			"message": err.Error(),
			"session": viewOf(sess),
		})
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

type autosaveRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleSessionAutosave(w http.ResponseWriter, r *http.Request) {
	var req autosaveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	sess, ok := s.currentSession(w, r)
	if !ok {
		return
	}
	sess.SetAutoSave(req.Enabled)
	writeJSON(w, http.StatusOK, viewOf(sess))
}

type modelRequest struct {
	AgentID string `json:"agentId"`
	domain.ModelSection
}

type modelSaveFunc func(ctx context.Context, agent domain.Agent, m domain.ModelSection) domain.Result

// handleModelSave serves the explicit save buttons of the model tab.
func (s *Server) handleModelSave(save modelSaveFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req modelRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
			return
		}
		ctx := r.Context()
		agent, ok := s.agentByID(ctx, req.AgentID)
		if !ok {
			writeError(w, http.StatusNotFound, "not_found", agentsync.ErrUnknownAgent.Error())
			return
		}
		writeResult(w, http.StatusOK, nil, save(ctx, agent, req.ModelSection))
	}
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if id := r.URL.Query().Get("agentId"); id != "" {
		agent, ok := s.agentByID(ctx, id)
		if !ok {
			writeError(w, http.StatusNotFound, "not_found", agentsync.ErrUnknownAgent.Error())
			return
		}
		writeJSON(w, http.StatusOK, s.calls.Session(agent.ID).Snapshot())
		return
	}
	org := s.owner(ctx)
	active := []call.Snapshot{}
	for _, snap := range s.calls.Active() {
		if o, ok := s.callOrg(snap.AgentID); ok && o == org {
			active = append(active, snap)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"calls": active})
}

// callAgent decodes the agentId of a call request and resolves it in the
// caller's agent list.
func (s *Server) callAgent(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req agentParams
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return "", false
	}
	if req.AgentID == "" {
		writeError(w, http.StatusBadRequest, "invalid_body", "agentId is required")
		return "", false
	}
	agent, ok := s.agentByID(r.Context(), req.AgentID)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", agentsync.ErrUnknownAgent.Error())
		return "", false
	}
	return agent.ID, true
}

func (s *Server) handleCallStart(w http.ResponseWriter, r *http.Request) {
	id, ok := s.callAgent(w, r)
	if !ok {
		return
	}
	s.setCallOrg(id, s.owner(r.Context()))
	snap, err := s.calls.Session(id).Start(r.Context())
	switch {
	case errors.Is(err, call.ErrCallActive), errors.Is(err, call.ErrAborted):
		writeError(w, http.StatusConflict, "call_conflict", err.Error())
	case err != nil:
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":   "call_failed",
			"message": err.Error(),
			"call":    snap,
		})
	default:
		writeJSON(w, http.StatusOK, snap)
	}
}

func (s *Server) handleCallEnd(w http.ResponseWriter, r *http.Request) {
	id, ok := s.callAgent(w, r)
	if !ok {
		return
	}
	sess := s.calls.Session(id)
	if err := sess.End(); err != nil {
		writeError(w, http.StatusConflict, "not_active", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleCallMute(w http.ResponseWriter, r *http.Request) {
	id, ok := s.callAgent(w, r)
	if !ok {
		return
	}
	muted, err := s.calls.Session(id).ToggleMute()
	if err != nil {
		writeError(w, http.StatusConflict, "not_active", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agentId": id, "muted": muted})
}

type chatRequest struct {
	AgentID        string         `json:"agentId"`
	Query          string         `json:"query"`
	ConversationID string         `json:"conversationId,omitempty"`
	Inputs         map[string]any `json:"inputs,omitempty"`
	Stream         bool           `json:"stream,omitempty"`
}

// handleChat sends a test message to the agent's chatbot. Streaming
// requests get server-sent events: one "chunk" per answer fragment and a
// final "done" with the whole reply.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "invalid_body", "query is required")
		return
	}
	ctx := r.Context()
	agent, ok := s.agentByID(ctx, req.AgentID)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", agentsync.ErrUnknownAgent.Error())
		return
	}
	if !agent.HasChatbot() {
		writeError(w, http.StatusUnprocessableEntity, "no_chatbot", dashboard.ErrNoChatbot.Error())
		return
	}

	inputs := req.Inputs
	if inputs == nil {
		inputs = map[string]any{}
	}
	creq := dify.ChatRequest{
		Query:          req.Query,
		Inputs:         inputs,
		ResponseMode:   "blocking",
		ConversationID: req.ConversationID,
		User:           identityFrom(ctx).UserID,
	}

	flusher, canStream := w.(http.Flusher)
	if !req.Stream || !canStream {
		resp, err := s.dashboard.Chat(ctx, agent.ChatbotKey, creq, nil)
		if err != nil {
			writeError(w, http.StatusBadGateway, "chat_failed", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	creq.ResponseMode = "streaming"
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	resp, err := s.dashboard.Chat(ctx, agent.ChatbotKey, creq, func(chunk string) {
		writeSSE(w, "chunk", map[string]string{"answer": chunk})
		flusher.Flush()
	})
	if err != nil {
		writeSSE(w, "error", apiError{Error: "chat_failed", Message: err.Error()})
	} else {
		writeSSE(w, "done", resp)
	}
	flusher.Flush()
}

func writeSSE(w io.Writer, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}
