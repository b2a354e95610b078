package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/provider"
)

// Defaults for the call behaviour fields of an update.
const (
	DefaultInitialMessage  = "Hello! I'm your AI assistant, how can I help you today?"
	DefaultNudgeText       = "Hello, Are you still there?"
	DefaultNudgeInterval   = 15
	DefaultMaxNudges       = 3
	DefaultTypingVolume    = 0.8
	DefaultMaxCallDuration = 300
	DefaultSystemPrompt    = "You are a helpful assistant."
)

// UpdateRequest is the body of POST /agents/update/{name}. The endpoint
// creates the agent when it does not exist.
type UpdateRequest struct {
	OrganizationID string            `json:"organization_id"`
	DisplayName    string            `json:"display_name,omitempty"`
	ChatbotAPI     string            `json:"chatbot_api"`
	ChatbotKey     string            `json:"chatbot_key"`
	AppID          string            `json:"dify_app_id,omitempty"`
	TTS            *domain.TTSConfig `json:"tts_config"`
	STT            *domain.STTConfig `json:"stt_config"`

	InitialMessage  string  `json:"initial_message"`
	NudgeText       string  `json:"nudge_text"`
	NudgeInterval   int     `json:"nudge_interval"`
	MaxNudges       int     `json:"max_nudges"`
	TypingVolume    float64 `json:"typing_volume"`
	MaxCallDuration int     `json:"max_call_duration"`

	SystemPrompt  string `json:"system_prompt,omitempty"`
	ModelProvider string `json:"model_provider,omitempty"`
	ModelName     string `json:"model_name,omitempty"`
	ModelAPIKey   string `json:"model_api_key,omitempty"`
	ModelLiveURL  string `json:"model_live_url,omitempty"`

	Config    *AgentSettings `json:"config,omitempty"`
	CreatedAt int64          `json:"created_at,omitempty"`
	UpdatedAt int64          `json:"updated_at,omitempty"`
}

// ApplyDefaults fills every unset field. chatbotAPI is used when the
// request names no chatbot endpoint.
func (r *UpdateRequest) ApplyDefaults(chatbotAPI string, now time.Time) {
	if r.ChatbotAPI == "" {
		r.ChatbotAPI = chatbotAPI
	}
	if r.TTS == nil {
		r.TTS = provider.DefaultTTS()
	}
	if r.STT == nil {
		r.STT = provider.DefaultSTT()
	}
	if r.InitialMessage == "" {
		r.InitialMessage = DefaultInitialMessage
	}
	if r.NudgeText == "" {
		r.NudgeText = DefaultNudgeText
	}
	if r.NudgeInterval == 0 {
		r.NudgeInterval = DefaultNudgeInterval
	}
	if r.MaxNudges == 0 {
		r.MaxNudges = DefaultMaxNudges
	}
	if r.TypingVolume == 0 {
		r.TypingVolume = DefaultTypingVolume
	}
	if r.MaxCallDuration == 0 {
		r.MaxCallDuration = DefaultMaxCallDuration
	}
	if r.SystemPrompt == "" {
		r.SystemPrompt = DefaultSystemPrompt
	}
	if r.CreatedAt == 0 {
		r.CreatedAt = now.Unix()
	}
	r.UpdatedAt = now.Unix()
}

// RequestFromAgent builds an update that rewrites the agent as it is.
func RequestFromAgent(a domain.Agent) UpdateRequest {
	req := UpdateRequest{
		OrganizationID:  a.OrganizationID,
		ChatbotAPI:      a.ChatbotAPI,
		ChatbotKey:      a.ChatbotKey,
		AppID:           a.AppID,
		TTS:             a.TTS,
		STT:             a.STT,
		InitialMessage:  a.InitialMessage,
		NudgeText:       a.NudgeText,
		NudgeInterval:   a.NudgeInterval,
		MaxNudges:       a.MaxNudges,
		TypingVolume:    a.TypingVolume,
		MaxCallDuration: a.MaxCallDuration,
		SystemPrompt:    a.SystemPrompt,
		ModelProvider:   a.Provider,
		ModelName:       a.Model,
		ModelAPIKey:     a.ModelAPIKey,
		ModelLiveURL:    a.ModelLiveURL,
	}
	if a.Name != "" && a.Name != a.FullID() {
		req.DisplayName = a.Name
	}
	if a.WorkspaceID != "" {
		req.Config = &AgentSettings{WorkspaceID: a.WorkspaceID}
	}
	if !a.CreatedAt.IsZero() {
		req.CreatedAt = a.CreatedAt.Unix()
	}
	return req
}

// ListAgents returns the agents of an organization. A 404 or 405 means the
// organization has none.
func (c *Client) ListAgents(ctx context.Context, org string) ([]domain.Agent, error) {
	data, err := c.do(ctx, http.MethodGet, "/agents/by-org/"+url.PathEscape(org), nil, nil)
	if err != nil {
		if IsNotFound(err) || IsNotAllowed(err) {
			return []domain.Agent{}, nil
		}
		return nil, err
	}

	recs, err := ParseList(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse agent list: %w", err)
	}
	agents := make([]domain.Agent, 0, len(recs))
	for _, rec := range recs {
		agents = append(agents, rec.ToAgent())
	}
	return agents, nil
}

// GetAgent fetches one agent's full configuration.
func (c *Client) GetAgent(ctx context.Context, name string) (domain.Agent, error) {
	data, err := c.do(ctx, http.MethodGet, "/agents/info/"+url.PathEscape(name), nil, nil)
	if err != nil {
		return domain.Agent{}, err
	}

	var wrapped struct {
		Data json.RawMessage `json:"data"`
	}
	if json.Unmarshal(data, &wrapped) == nil {
		if inner := bytes.TrimSpace(wrapped.Data); len(inner) > 0 && inner[0] == '{' {
			data = inner
		}
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.Agent{}, fmt.Errorf("failed to parse agent: %w", err)
	}
	if rec.AgentPrefix == "" && rec.Name == "" && rec.ID == "" {
		rec.AgentPrefix = name
	}
	return rec.ToAgent(), nil
}

// UpdateAgent creates or rewrites an agent and returns the backend's reply.
func (c *Client) UpdateAgent(ctx context.Context, name string, req UpdateRequest) (json.RawMessage, error) {
	if name == "" {
		return nil, errors.New("agent name is required")
	}
	data, err := c.do(ctx, http.MethodPost, "/agents/update/"+url.PathEscape(name), req, nil)
	if err != nil {
		return nil, err
	}
	c.log.Info().Str("agent", name).Msg("agent updated")
	return data, nil
}

// DeleteAgent removes an agent. It is bounded by the configured delete
// timeout on top of ctx.
func (c *Client) DeleteAgent(ctx context.Context, name string) (string, error) {
	if c.deleteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.deleteTimeout)
		defer cancel()
	}

	var reply struct {
		Message string `json:"message"`
	}
	if _, err := c.do(ctx, http.MethodDelete, "/agents/delete/"+url.PathEscape(name), nil, &reply); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("delete %s timed out: %w", name, err)
		}
		return "", err
	}
	if reply.Message == "" {
		reply.Message = "Agent deleted successfully"
	}
	c.log.Info().Str("agent", name).Msg("agent deleted")
	return reply.Message, nil
}

// AddTransferNumber sets the phone number a live call is handed to.
func (c *Client) AddTransferNumber(ctx context.Context, agentID, phone string) error {
	if phone == "" {
		return errors.New("transfer phone number is required")
	}
	body := map[string]string{"transfer_phonenumber": phone}
	_, err := c.do(ctx, http.MethodPost, "/agents/add_transfer_phonenumber/"+url.PathEscape(agentID), body, nil)
	return err
}
