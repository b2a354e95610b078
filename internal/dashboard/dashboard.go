// Package dashboard orchestrates the multi-step agent workflows across the
// configuration backend and the provisioning console. Operations report a
// domain.Result instead of failing, matching what the UI renders.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/soyeahso/agentdesk/internal/agentid"
	"github.com/soyeahso/agentdesk/internal/agentsync"
	"github.com/soyeahso/agentdesk/internal/appid"
	"github.com/soyeahso/agentdesk/internal/backend"
	"github.com/soyeahso/agentdesk/internal/dify"
	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/hooks"
	"github.com/soyeahso/agentdesk/internal/knowledge"
	"github.com/soyeahso/agentdesk/internal/logging"
)

// Defaults written when an existing console app is associated.
const (
	AssociatedInitialMessage = "Hello! How can I help you today?"
	AssociatedSystemPrompt   = "You are a helpful AI assistant."
)

// DefaultCompanionTimeout bounds the console cleanup after a delete.
const DefaultCompanionTimeout = 5 * time.Second

// AgentBackend is the configuration backend.
type AgentBackend interface {
	UpdateAgent(ctx context.Context, name string, req backend.UpdateRequest) (json.RawMessage, error)
	DeleteAgent(ctx context.Context, name string) (string, error)
	AddTransferNumber(ctx context.Context, agentID, phone string) error
}

// Console is the provisioning console.
type Console interface {
	SwitchWorkspace(ctx context.Context, id string) error
	App(ctx context.Context, appID, workspaceID string) (dify.AppDetails, error)
	FirstAPIKey(ctx context.Context, appID, workspaceID string) (string, error)
	Discover(ctx context.Context) ([]domain.AvailableAgent, error)
	UpdateModelConfig(ctx context.Context, appID string, cfg dify.ModelConfig) error
	DeleteApp(ctx context.Context, appID string) error
	Chat(ctx context.Context, appKey string, req dify.ChatRequest, onChunk func(string)) (dify.ChatResponse, error)
}

// Options configures a Service.
type Options struct {
	// ChatbotAPI is used for agents whose app names no API server.
	ChatbotAPI       string
	CompanionTimeout time.Duration
	Hooks            *hooks.Manager
	Now              func() time.Time
}

// Service runs the dashboard workflows.
type Service struct {
	backend   AgentBackend
	console   Console
	resolver  *appid.Resolver
	agents    *agentsync.Pool
	knowledge *knowledge.Service
	opts      Options
	log       *logging.Logger

	bg sync.WaitGroup
}

// New creates a Service. agents may be nil when no list is kept.
func New(be AgentBackend, console Console, resolver *appid.Resolver, agents *agentsync.Pool, kb *knowledge.Service, opts Options, log *logging.Logger) *Service {
	if opts.CompanionTimeout <= 0 {
		opts.CompanionTimeout = DefaultCompanionTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		backend:   be,
		console:   console,
		resolver:  resolver,
		agents:    agents,
		knowledge: kb,
		opts:      opts,
		log:       log.Sub("dashboard"),
	}
}

// Wait blocks until background cleanups have finished.
func (s *Service) Wait() { s.bg.Wait() }

// CreateInput is what the create form collects besides the name.
type CreateInput struct {
	ChatbotAPI   string `json:"chatbotApi,omitempty"`
	ChatbotKey   string `json:"chatbotKey,omitempty"`
	SystemPrompt string `json:"systemPrompt,omitempty"`
}

// CreateAgent registers a new agent named prefix under org with the
// default configuration.
func (s *Service) CreateAgent(ctx context.Context, org domain.Organization, prefix string, in CreateInput) (domain.Agent, domain.Result) {
	id, err := agentid.New(prefix)
	if err != nil {
		return domain.Agent{}, domain.Fail(err)
	}
	req := backend.UpdateRequest{
		OrganizationID: org.Key(),
		DisplayName:    id.DisplayName,
		ChatbotAPI:     in.ChatbotAPI,
		ChatbotKey:     in.ChatbotKey,
		SystemPrompt:   in.SystemPrompt,
	}
	req.ApplyDefaults(s.opts.ChatbotAPI, s.opts.Now())

	if _, err := s.backend.UpdateAgent(ctx, id.FullID, req); err != nil {
		s.log.Warn().Err(err).Str("agent", id.FullID).Msg("create agent failed")
		return domain.Agent{}, domain.Fail(fmt.Errorf("failed to create agent: %w", err))
	}

	agent := agentFromRequest(id.FullID, id.DisplayName, req)
	if s.agents != nil {
		s.agents.For(org).Upsert(agent)
	}
	s.log.Info().Str("agent", id.FullID).Str("org", org.Key()).Msg("agent created")
	return agent, domain.Ok(fmt.Sprintf("Agent %s created", id.DisplayName))
}

func agentFromRequest(fullID, name string, req backend.UpdateRequest) domain.Agent {
	a := domain.Agent{
		ID:              fullID,
		AgentPrefix:     fullID,
		Name:            name,
		Status:          domain.StatusDraft,
		Model:           backend.DefaultModel,
		Provider:        backend.DefaultProvider,
		Cost:            backend.DefaultCost,
		Latency:         backend.DefaultLatency,
		Description:     backend.DefaultBlurb,
		OrganizationID:  req.OrganizationID,
		ChatbotAPI:      req.ChatbotAPI,
		ChatbotKey:      req.ChatbotKey,
		AppID:           req.AppID,
		SystemPrompt:    req.SystemPrompt,
		InitialMessage:  req.InitialMessage,
		NudgeText:       req.NudgeText,
		NudgeInterval:   req.NudgeInterval,
		MaxNudges:       req.MaxNudges,
		TypingVolume:    req.TypingVolume,
		MaxCallDuration: req.MaxCallDuration,
		TTS:             req.TTS,
		STT:             req.STT,
		CreatedAt:       time.Unix(req.CreatedAt, 0),
		UpdatedAt:       time.Unix(req.UpdatedAt, 0),
	}
	if req.ModelName != "" {
		a.Model = req.ModelName
	}
	if req.ModelProvider != "" {
		a.Provider = req.ModelProvider
	}
	if req.Config != nil {
		a.WorkspaceID = req.Config.WorkspaceID
	}
	return a
}

// DeleteAgent deletes the agent from the backend. When the agent is linked
// to a console app, the app is removed in the background within the
// companion timeout; that cleanup only logs its failures.
func (s *Service) DeleteAgent(ctx context.Context, org domain.Organization, agent domain.Agent) domain.Result {
	msg, err := s.backend.DeleteAgent(ctx, agent.FullID())
	if err != nil {
		s.log.Warn().Err(err).Str("agent", agent.FullID()).Msg("delete agent failed")
		return domain.Fail(fmt.Errorf("failed to delete agent: %w", err))
	}

	if agent.HasChatbot() {
		s.bg.Add(1)
		go func() {
			defer s.bg.Done()
			s.cleanupCompanion(context.WithoutCancel(ctx), agent)
		}()
	}

	if s.agents != nil {
		s.agents.For(org).Remove(agent.ID)
	}
	s.opts.Hooks.EmitAsync(context.WithoutCancel(ctx), hooks.EventAgentDeleted, map[string]any{
		"agent":   agent.FullID(),
		"chatbot": agent.HasChatbot(),
	})
	s.log.Info().Str("agent", agent.FullID()).Msg("agent deleted")
	return domain.Ok(msg)
}

func (s *Service) cleanupCompanion(ctx context.Context, agent domain.Agent) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.CompanionTimeout)
	defer cancel()
	log := s.log.With("agent", agent.FullID())

	res, err := s.resolver.Resolve(ctx, agent.ChatbotKey, &agent)
	if err != nil {
		log.Warn().Err(err).Msg("companion cleanup: app id not resolved")
		return
	}
	if err := s.console.DeleteApp(ctx, res.AppID); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn().Dur("timeout", s.opts.CompanionTimeout).Msg("companion cleanup timed out")
		} else {
			log.Warn().Err(err).Msg("companion cleanup failed")
		}
		return
	}
	if err := s.resolver.Forget(ctx, agent.ChatbotKey); err != nil {
		log.Debug().Err(err).Msg("forgetting cached app id failed")
	}
	log.Info().Str("app", res.AppID).Msg("companion app deleted")
}

// ListAvailable lists the console apps across every workspace.
func (s *Service) ListAvailable(ctx context.Context) ([]domain.AvailableAgent, error) {
	return s.console.Discover(ctx)
}

// AssociateAgent registers an existing console app as an agent of org.
func (s *Service) AssociateAgent(ctx context.Context, org domain.Organization, candidate domain.AvailableAgent) (domain.Agent, domain.Result) {
	if candidate.AppID == "" {
		return domain.Agent{}, domain.Fail(errors.New("app id is required"))
	}
	log := s.log.With("app", candidate.AppID)

	if candidate.WorkspaceID != "" {
		if err := s.console.SwitchWorkspace(ctx, candidate.WorkspaceID); err != nil {
			log.Warn().Err(err).Str("workspace", candidate.WorkspaceID).Msg("workspace switch failed")
			return domain.Agent{}, domain.Fail(fmt.Errorf("failed to switch workspace: %w", err))
		}
	}
	details, err := s.console.App(ctx, candidate.AppID, candidate.WorkspaceID)
	if err != nil {
		return domain.Agent{}, domain.Fail(err)
	}
	key, err := s.console.FirstAPIKey(ctx, candidate.AppID, candidate.WorkspaceID)
	if err != nil {
		return domain.Agent{}, domain.Fail(err)
	}

	chatbotAPI := details.ServiceOrigin()
	if chatbotAPI == "" {
		chatbotAPI = s.opts.ChatbotAPI
	}
	name := candidate.AppName
	if name == "" {
		name = details.Name
	}
	if name == "" {
		name = candidate.AppID
	}
	prefix := agentid.Sanitize(name)

	req := backend.UpdateRequest{
		OrganizationID: org.Key(),
		ChatbotAPI:     chatbotAPI,
		ChatbotKey:     key,
		AppID:          candidate.AppID,
		InitialMessage: AssociatedInitialMessage,
		SystemPrompt:   AssociatedSystemPrompt,
	}
	if candidate.WorkspaceID != "" {
		req.Config = &backend.AgentSettings{WorkspaceID: candidate.WorkspaceID}
	}
	req.ApplyDefaults(s.opts.ChatbotAPI, s.opts.Now())

	if _, err := s.backend.UpdateAgent(ctx, prefix, req); err != nil {
		return domain.Agent{}, domain.Fail(fmt.Errorf("failed to associate agent: %w", err))
	}
	if err := s.resolver.Remember(ctx, key, candidate.AppID); err != nil {
		log.Debug().Err(err).Msg("app id not cached")
	}

	agent := agentFromRequest(prefix, prefix, req)
	if s.agents != nil {
		s.agents.For(org).Upsert(agent)
	}
	log.Info().Str("agent", prefix).Msg("agent associated")
	return agent, domain.Ok(fmt.Sprintf("Agent %s associated", prefix))
}

// Chat sends a test message to the app owning appKey.
func (s *Service) Chat(ctx context.Context, appKey string, req dify.ChatRequest, onChunk func(string)) (dify.ChatResponse, error) {
	return s.console.Chat(ctx, appKey, req, onChunk)
}
