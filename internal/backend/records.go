package backend

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/soyeahso/agentdesk/internal/agentid"
	"github.com/soyeahso/agentdesk/internal/domain"
)

// Defaults applied to listed agents that omit display fields.
const (
	DefaultModel    = "GPT-4o"
	DefaultProvider = "OpenAI"
	DefaultCost     = "~$0.10/min"
	DefaultLatency  = "~1000ms"
	DefaultBlurb    = "AI Agent"

	unnamedAgent = "Unnamed Agent"
)

// Timestamp accepts unix seconds or an RFC 3339 string.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		if secs, err := strconv.ParseFloat(s, 64); err == nil {
			t.Time = time.Unix(int64(secs), 0).UTC()
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return err
		}
		t.Time = parsed
		return nil
	}
	secs, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	t.Time = time.Unix(int64(secs), 0).UTC()
	return nil
}

// AgentSettings is the nested config object the backend stores per agent.
type AgentSettings struct {
	WorkspaceID string `json:"workspace_id,omitempty"`
}

// Record is one agent as returned by the backend.
type Record struct {
	ID          string `json:"id"`
	AgentPrefix string `json:"agent_prefix"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Status      string `json:"status"`
	Model       string `json:"model"`
	Provider    string `json:"provider"`
	Cost        string `json:"cost"`
	Latency     string `json:"latency"`
	Description string `json:"description"`

	OrganizationID string         `json:"organization_id"`
	WorkspaceID    string         `json:"workspace_id"`
	Config         *AgentSettings `json:"config"`
	ChatbotAPI     string         `json:"chatbot_api"`
	ChatbotKey     string         `json:"chatbot_key"`
	DifyAppID      string         `json:"dify_app_id"`
	AppID          string         `json:"app_id"`
	ChatbotAppID   string         `json:"chatbot_app_id"`

	SystemPrompt  string `json:"system_prompt"`
	ModelProvider string `json:"model_provider"`
	ModelName     string `json:"model_name"`
	ModelAPIKey   string `json:"model_api_key"`
	ModelLiveURL  string `json:"model_live_url"`

	InitialMessage  string            `json:"initial_message"`
	NudgeText       string            `json:"nudge_text"`
	NudgeInterval   int               `json:"nudge_interval"`
	MaxNudges       int               `json:"max_nudges"`
	TypingVolume    float64           `json:"typing_volume"`
	MaxCallDuration int               `json:"max_call_duration"`
	TTS             *domain.TTSConfig `json:"tts_config"`
	STT             *domain.STTConfig `json:"stt_config"`

	CreatedAt Timestamp `json:"created_at"`
	UpdatedAt Timestamp `json:"updated_at"`
}

// ToAgent maps a record to the dashboard's agent, filling display defaults.
func (r Record) ToAgent() domain.Agent {
	prefix := firstNonEmpty(r.AgentPrefix, r.Name, r.ID)
	ident := agentid.Resolve(r.DisplayName, firstNonEmpty(r.Name, r.AgentPrefix, r.ID, unnamedAgent))

	workspace := r.WorkspaceID
	if workspace == "" && r.Config != nil {
		workspace = r.Config.WorkspaceID
	}

	return domain.Agent{
		ID:          prefix,
		AgentPrefix: prefix,
		Name:        ident.DisplayName,
		Status:      domain.AgentStatus(firstNonEmpty(r.Status, string(domain.StatusDraft))),
		Model:       firstNonEmpty(r.Model, r.ModelName, DefaultModel),
		Provider:    firstNonEmpty(r.Provider, r.ModelProvider, DefaultProvider),
		Cost:        firstNonEmpty(r.Cost, DefaultCost),
		Latency:     firstNonEmpty(r.Latency, DefaultLatency),
		Description: firstNonEmpty(r.Description, DefaultBlurb),

		OrganizationID: r.OrganizationID,
		WorkspaceID:    workspace,
		ChatbotAPI:     r.ChatbotAPI,
		ChatbotKey:     r.ChatbotKey,
		AppID:          firstNonEmpty(r.DifyAppID, r.AppID, r.ChatbotAppID),

		SystemPrompt: r.SystemPrompt,
		ModelAPIKey:  r.ModelAPIKey,
		ModelLiveURL: r.ModelLiveURL,

		InitialMessage:  r.InitialMessage,
		NudgeText:       r.NudgeText,
		NudgeInterval:   r.NudgeInterval,
		MaxNudges:       r.MaxNudges,
		TypingVolume:    r.TypingVolume,
		MaxCallDuration: r.MaxCallDuration,
		TTS:             r.TTS,
		STT:             r.STT,

		CreatedAt: r.CreatedAt.Time,
		UpdatedAt: r.UpdatedAt.Time,
	}
}

// ParseList accepts every list shape the backend has used: a bare array,
// {"agents": {name: record}}, {"agents": [...]} and {"data": [...]}.
// Anything else is an empty list.
func ParseList(data []byte) ([]Record, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	if data[0] == '[' {
		var recs []Record
		if err := json.Unmarshal(data, &recs); err != nil {
			return nil, err
		}
		return recs, nil
	}

	var envelope struct {
		Agents json.RawMessage `json:"agents"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}

	agents := bytes.TrimSpace(envelope.Agents)
	switch {
	case len(agents) > 0 && agents[0] == '{':
		var byName map[string]Record
		if err := json.Unmarshal(agents, &byName); err != nil {
			return nil, err
		}
		names := make([]string, 0, len(byName))
		for name := range byName {
			names = append(names, name)
		}
		sort.Strings(names)
		recs := make([]Record, 0, len(names))
		for _, name := range names {
			rec := byName[name]
			if rec.Name == "" {
				rec.Name = name
			}
			recs = append(recs, rec)
		}
		return recs, nil
	case len(agents) > 0 && agents[0] == '[':
		var recs []Record
		if err := json.Unmarshal(agents, &recs); err != nil {
			return nil, err
		}
		return recs, nil
	}

	items := bytes.TrimSpace(envelope.Data)
	if len(items) > 0 && items[0] == '[' {
		var recs []Record
		if err := json.Unmarshal(items, &recs); err != nil {
			return nil, err
		}
		return recs, nil
	}
	return nil, nil
}

// FallbackAgents are the sample agents shown when the list cannot be loaded.
func FallbackAgents() []domain.Agent {
	return []domain.Agent{
		{
			ID:          "riley-001",
			Name:        "Riley",
			Status:      domain.StatusActive,
			Model:       "GPT 4o Cluster",
			Provider:    "OpenAI",
			Cost:        "~$0.15/min",
			Latency:     "~1050ms",
			Description: "Your intelligent scheduling agent",
		},
		{
			ID:          "elliot-002",
			Name:        "Elliot",
			Status:      domain.StatusDraft,
			Model:       "Claude 3.5 Sonnet",
			Provider:    "Anthropic",
			Cost:        "~$0.12/min",
			Latency:     "~980ms",
			Description: "Advanced conversation specialist",
		},
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
