package domain

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"time"
)

// Section names one independently loaded part of the configuration bundle.
type Section string

const (
	SectionModel       Section = "model"
	SectionVoice       Section = "voice"
	SectionTranscriber Section = "transcriber"
	SectionTools       Section = "tools"
	SectionWidget      Section = "widget"
)

// Sections lists every bundle section in display order.
var Sections = []Section{SectionModel, SectionVoice, SectionTranscriber, SectionTools, SectionWidget}

// ParseSection validates a section name.
func ParseSection(s string) (Section, error) {
	sec := Section(s)
	if !slices.Contains(Sections, sec) {
		return "", fmt.Errorf("unknown section %q", s)
	}
	return sec, nil
}

// Bundle is the per-agent configuration aggregate. Each section stays nil
// until it is first loaded or edited.
type Bundle struct {
	Model       *ModelSection       `json:"model"`
	Voice       *VoiceSection       `json:"voice"`
	Transcriber *TranscriberSection `json:"transcriber"`
	Tools       *ToolsSection       `json:"tools"`
	Widget      map[string]any      `json:"widget"`
}

// ModelSection holds the chatbot model settings, prompt, transfer settings
// and knowledge-base selection.
type ModelSection struct {
	Provider       string           `json:"provider,omitempty"`
	Model          string           `json:"model,omitempty"`
	APIKey         string           `json:"api_key,omitempty"`
	ChatbotAPI     string           `json:"chatbot_api,omitempty"`
	ChatbotKey     string           `json:"chatbot_key,omitempty"`
	SystemPrompt   string           `json:"systemPrompt,omitempty"`
	KnowledgeBases []string         `json:"knowledgeBases,omitempty"`
	Transfer       *TransferSetting `json:"transfer,omitempty"`
}

// TransferSetting configures handing a live call to a human.
type TransferSetting struct {
	Enabled     bool   `json:"enabled"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Message     string `json:"message,omitempty"`
}

// VoiceSection is the UI-level voice settings. Which fields apply depends
// on the selected provider.
type VoiceSection struct {
	Provider        string  `json:"selectedVoiceProvider"`
	Language        string  `json:"selectedLanguage,omitempty"`
	Speed           float64 `json:"speedValue,omitempty"`
	APIKey          string  `json:"apiKey,omitempty"`
	VoiceID         string  `json:"voiceId,omitempty"`
	Voice           string  `json:"selectedVoice,omitempty"`
	Model           string  `json:"selectedModel,omitempty"`
	Stability       float64 `json:"stability,omitempty"`
	SimilarityBoost float64 `json:"similarityBoost,omitempty"`
	ResponseFormat  string  `json:"responseFormat,omitempty"`
	Gender          string  `json:"gender,omitempty"`
}

// TranscriberSection is the UI-level transcriber settings.
type TranscriberSection struct {
	Provider       string `json:"selectedTranscriberProvider"`
	Language       string `json:"selectedTranscriberLanguage,omitempty"`
	Model          string `json:"selectedTranscriberModel,omitempty"`
	APIKey         string `json:"transcriberApiKey,omitempty"`
	Punctuate      bool   `json:"punctuateEnabled"`
	SmartFormat    bool   `json:"smartFormatEnabled"`
	InterimResults bool   `json:"interimResultEnabled"`
}

// ToolsSection holds the call behaviour settings.
type ToolsSection struct {
	InitialMessage  string  `json:"initialMessage,omitempty"`
	NudgeText       string  `json:"nudgeText,omitempty"`
	NudgeInterval   int     `json:"nudgeInterval,omitempty"`
	MaxNudges       int     `json:"maxNudges,omitempty"`
	TypingVolume    float64 `json:"typingVolume,omitempty"`
	MaxCallDuration int     `json:"maxCallDuration,omitempty"`
}

// Clone returns a deep copy via JSON.
func (b Bundle) Clone() Bundle {
	data, err := json.Marshal(b)
	if err != nil {
		return Bundle{}
	}
	var out Bundle
	_ = json.Unmarshal(data, &out)
	return out
}

// Equal compares two bundles by their serialized form.
func (b Bundle) Equal(other Bundle) bool {
	x, err1 := json.Marshal(b)
	y, err2 := json.Marshal(other)
	return err1 == nil && err2 == nil && string(x) == string(y)
}

// IsEmpty reports whether no section has been loaded.
func (b Bundle) IsEmpty() bool {
	return b.Model == nil && b.Voice == nil && b.Transcriber == nil && b.Tools == nil && b.Widget == nil
}

// Apply merges a JSON object patch into one section and returns the names
// of the top-level keys it touched, sorted.
func (b *Bundle) Apply(section Section, patch json.RawMessage) ([]string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(patch, &fields); err != nil {
		return nil, fmt.Errorf("section %s: patch must be a JSON object: %w", section, err)
	}

	current, err := b.sectionJSON(section)
	if err != nil {
		return nil, err
	}
	merged := map[string]json.RawMessage{}
	if len(current) > 0 && string(current) != "null" {
		if err := json.Unmarshal(current, &merged); err != nil {
			return nil, fmt.Errorf("section %s: %w", section, err)
		}
	}
	keys := make([]string, 0, len(fields))
	for k, v := range fields {
		merged[k] = v
		keys = append(keys, k)
	}
	sort.Strings(keys)

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, err
	}
	if err := b.setSectionJSON(section, data); err != nil {
		return nil, err
	}
	return keys, nil
}

// Replace overwrites one section with the given JSON value. A JSON null
// clears the section.
func (b *Bundle) Replace(section Section, value json.RawMessage) error {
	return b.setSectionJSON(section, value)
}

// SectionJSON returns one section serialized.
func (b Bundle) SectionJSON(section Section) (json.RawMessage, error) {
	return b.sectionJSON(section)
}

func (b Bundle) sectionJSON(section Section) (json.RawMessage, error) {
	switch section {
	case SectionModel:
		return json.Marshal(b.Model)
	case SectionVoice:
		return json.Marshal(b.Voice)
	case SectionTranscriber:
		return json.Marshal(b.Transcriber)
	case SectionTools:
		return json.Marshal(b.Tools)
	case SectionWidget:
		return json.Marshal(b.Widget)
	}
	return nil, fmt.Errorf("unknown section %q", section)
}

func (b *Bundle) setSectionJSON(section Section, data json.RawMessage) error {
	isNull := len(data) == 0 || string(data) == "null"
	var err error
	switch section {
	case SectionModel:
		b.Model = nil
		if !isNull {
			b.Model = &ModelSection{}
			err = json.Unmarshal(data, b.Model)
		}
	case SectionVoice:
		b.Voice = nil
		if !isNull {
			b.Voice = &VoiceSection{}
			err = json.Unmarshal(data, b.Voice)
		}
	case SectionTranscriber:
		b.Transcriber = nil
		if !isNull {
			b.Transcriber = &TranscriberSection{}
			err = json.Unmarshal(data, b.Transcriber)
		}
	case SectionTools:
		b.Tools = nil
		if !isNull {
			b.Tools = &ToolsSection{}
			err = json.Unmarshal(data, b.Tools)
		}
	case SectionWidget:
		b.Widget = nil
		if !isNull {
			err = json.Unmarshal(data, &b.Widget)
		}
	default:
		return fmt.Errorf("unknown section %q", section)
	}
	if err != nil {
		return fmt.Errorf("section %s: %w", section, err)
	}
	return nil
}

// SaveState is the auto-save indicator state.
type SaveState string

const (
	SaveIdle   SaveState = "idle"
	SaveSaving SaveState = "saving"
	SaveSaved  SaveState = "saved"
	SaveError  SaveState = "error"
)

// AutoSaveStatus is what the auto-save indicator renders.
type AutoSaveStatus struct {
	State     SaveState  `json:"status"`
	LastSaved *time.Time `json:"lastSaved,omitempty"`
	Error     string     `json:"error,omitempty"`
}
