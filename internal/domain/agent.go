// Package domain holds the types shared across the dashboard: agents, their
// configuration bundle, and the wire shapes exchanged with the backends.
package domain

import "time"

// AgentStatus is the lifecycle state shown for an agent.
type AgentStatus string

const (
	StatusActive   AgentStatus = "active"
	StatusInactive AgentStatus = "inactive"
	StatusDraft    AgentStatus = "draft"
)

// Agent is a configured conversational assistant as the dashboard sees it.
// ID is the agent prefix when present, otherwise the raw name; Name is the
// display name.
type Agent struct {
	ID          string      `json:"id"`
	AgentPrefix string      `json:"agent_prefix,omitempty"`
	Name        string      `json:"name"`
	Status      AgentStatus `json:"status"`
	Model       string      `json:"model"`
	Provider    string      `json:"provider"`
	Cost        string      `json:"cost"`
	Latency     string      `json:"latency"`
	Description string      `json:"description,omitempty"`

	OrganizationID string `json:"organization_id,omitempty"`
	WorkspaceID    string `json:"workspace_id,omitempty"`
	ChatbotAPI     string `json:"chatbot_api,omitempty"`
	ChatbotKey     string `json:"chatbot_key,omitempty"`
	AppID          string `json:"dify_app_id,omitempty"`

	SystemPrompt string `json:"system_prompt,omitempty"`
	ModelAPIKey  string `json:"model_api_key,omitempty"`
	ModelLiveURL string `json:"model_live_url,omitempty"`

	InitialMessage  string     `json:"initial_message,omitempty"`
	NudgeText       string     `json:"nudge_text,omitempty"`
	NudgeInterval   int        `json:"nudge_interval,omitempty"`
	MaxNudges       int        `json:"max_nudges,omitempty"`
	TypingVolume    float64    `json:"typing_volume,omitempty"`
	MaxCallDuration int        `json:"max_call_duration,omitempty"`
	TTS             *TTSConfig `json:"tts_config,omitempty"`
	STT             *STTConfig `json:"stt_config,omitempty"`

	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// FullID is the identifier the agent backend keys this agent by.
func (a Agent) FullID() string {
	if a.AgentPrefix != "" {
		return a.AgentPrefix
	}
	return a.ID
}

// HasChatbot reports whether the agent is linked to a provisioned chatbot app.
func (a Agent) HasChatbot() bool {
	return a.ChatbotKey != ""
}

// AvailableAgent is a chatbot app found in one of the provisioning
// workspaces that can be associated with the organization.
type AvailableAgent struct {
	AppID         string `json:"appId"`
	AppName       string `json:"appName"`
	WorkspaceID   string `json:"workspaceId"`
	WorkspaceName string `json:"workspaceName"`
	Mode          string `json:"mode,omitempty"`
}

// Organization scopes the agent list.
type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Key is the value used to scope agent listing: the name when known,
// otherwise the id.
func (o Organization) Key() string {
	if o.Name != "" {
		return o.Name
	}
	return o.ID
}

// Result is what orchestrating operations report to the UI instead of
// propagating errors.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Warning string `json:"warning,omitempty"`
}

// Ok builds a successful Result.
func Ok(msg string) Result { return Result{Success: true, Message: msg} }

// Fail builds a failed Result from an error.
func Fail(err error) Result {
	if err == nil {
		return Result{Success: false}
	}
	return Result{Success: false, Message: err.Error()}
}
