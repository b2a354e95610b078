package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/soyeahso/agentdesk/internal/agentsync"
	"github.com/soyeahso/agentdesk/internal/call"
	"github.com/soyeahso/agentdesk/internal/config"
	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/hooks"
	"github.com/soyeahso/agentdesk/internal/metrics"
)

// safeConfigPrefixes lists config path prefixes that can be read and
// written via RPC. All other paths are denied by default (allowlist).
var safeConfigPrefixes = []string{
	"gateway.port",
	"gateway.bind",
	"gateway.customBindHost",
	"gateway.controlUi",
	"logging",
	"autosave",
	"sync",
	"call",
	"lease",
	"cleanup",
}

func isAllowedConfigPath(key string) bool {
	for _, prefix := range safeConfigPrefixes {
		if key == prefix || strings.HasPrefix(key, prefix+".") {
			return true
		}
	}
	return false
}

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	if s.metrics != nil {
		path := s.cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, metrics.Handler())
	}

	if s.apiReady() {
		s.registerAPIRoutes(mux)
	}

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}

// registerRPCHandlers sets up all JSON-RPC method handlers.
func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("config.get", s.rpcConfigGet)
	s.Handle("config.set", s.rpcConfigSet)
	if !s.apiReady() {
		return
	}
	s.Handle("agents.list", s.rpcAgentsList)
	s.Handle("agents.refresh", s.rpcAgentsRefresh)
	s.Handle("session.update", s.rpcSessionUpdate)
	s.Handle("call.toggleMute", s.rpcCallToggleMute)
}

// Built-in RPC handlers

func (s *Server) rpcHealth(rc *RequestContext) {
	resp := HealthResponse{
		Status:  "ok",
		Version: s.version,
		Clients: s.clients.Count(),
	}
	if !s.startedAt.IsZero() {
		resp.UptimeMs = time.Since(s.startedAt).Milliseconds()
	}
	if s.agents != nil {
		resp.Agents = s.agents.AgentCount()
	}
	if s.calls != nil {
		resp.Calls = len(s.calls.Active())
	}
	rc.Respond(resp)
}

type configGetParams struct {
	Key string `json:"key"`
}

func (s *Server) rpcConfigGet(rc *RequestContext) {
	var p configGetParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if p.Key == "" {
		rc.RespondError("invalid_params", "key is required")
		return
	}
	if !isAllowedConfigPath(p.Key) {
		rc.RespondError("forbidden", "access denied for config path: "+p.Key)
		return
	}

	path, err := config.ParseConfigPath(p.Key)
	if err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}

	s.mu.RLock()
	val, ok := config.GetValueAtPath(s.configRaw, path)
	s.mu.RUnlock()
	if !ok {
		rc.RespondError("not_found", "key not found: "+p.Key)
		return
	}
	rc.Respond(map[string]any{"key": p.Key, "value": val})
}

type configSetParams struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

func (s *Server) rpcConfigSet(rc *RequestContext) {
	var p configSetParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if p.Key == "" {
		rc.RespondError("invalid_params", "key is required")
		return
	}
	if !isAllowedConfigPath(p.Key) {
		rc.RespondError("forbidden", "cannot modify config path: "+p.Key)
		return
	}

	path, err := config.ParseConfigPath(p.Key)
	if err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}

	s.mu.Lock()
	config.SetValueAtPath(s.configRaw, path, p.Value)
	s.mu.Unlock()

	s.hooks.EmitAsync(context.WithoutCancel(rc.Ctx), hooks.EventConfigSaved, map[string]any{"key": p.Key})
	rc.Respond(map[string]any{"key": p.Key, "value": p.Value})
}

func (s *Server) rpcAgentsList(rc *RequestContext) {
	rc.Respond(s.agents.For(rc.Client.Org).Load(rc.Ctx))
}

func (s *Server) rpcAgentsRefresh(rc *RequestContext) {
	list := s.agents.For(rc.Client.Org)
	list.Refresh(rc.Ctx)
	rc.Respond(list.Snapshot())
}

type sessionUpdateParams struct {
	Section string          `json:"section"`
	Patch   json.RawMessage `json:"patch"`
	Replace bool            `json:"replace,omitempty"`
}

func (s *Server) rpcSessionUpdate(rc *RequestContext) {
	var p sessionUpdateParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	section, err := domain.ParseSection(p.Section)
	if err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if len(p.Patch) == 0 {
		rc.RespondError("invalid_params", "patch is required")
		return
	}
	sess, err := s.editor.Current(rc.Client.Org.Key())
	if err != nil {
		rc.RespondError("no_session", err.Error())
		return
	}
	groups, err := applyEdit(sess, section, p.Patch, p.Replace)
	if err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	rc.Respond(map[string]any{"groups": groups, "session": viewOf(sess)})
}

type agentParams struct {
	AgentID string `json:"agentId"`
}

func (s *Server) rpcCallToggleMute(rc *RequestContext) {
	var p agentParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if p.AgentID == "" {
		rc.RespondError("invalid_params", "agentId is required")
		return
	}
	agent, ok := findAgent(s.agents.For(rc.Client.Org).Load(rc.Ctx), p.AgentID)
	if !ok {
		rc.RespondError("not_found", agentsync.ErrUnknownAgent.Error())
		return
	}
	muted, err := s.calls.Session(agent.ID).ToggleMute()
	if errors.Is(err, call.ErrNotActive) {
		rc.RespondError("not_active", err.Error())
		return
	}
	if err != nil {
		rc.RespondError("call_error", err.Error())
		return
	}
	rc.Respond(map[string]any{"agentId": p.AgentID, "muted": muted})
}
