package provider

import (
	"fmt"
	"strings"

	"github.com/soyeahso/agentdesk/internal/domain"
)

// UI names for transcriber providers.
const (
	TranscriberDeepgram = "Deepgram"
	TranscriberOpenAI   = "OpenAI"
)

// TranscriberProviders lists the UI transcriber providers in display order.
var TranscriberProviders = []string{TranscriberDeepgram, TranscriberOpenAI}

// Transcriber is one provider's speech-to-text settings.
type Transcriber interface {
	backendProvider() string
}

// DeepgramTranscriber holds Deepgram settings.
type DeepgramTranscriber struct {
	APIKey         string
	Model          string
	Language       string
	Punctuate      bool
	SmartFormat    bool
	InterimResults bool
}

// OpenAITranscriber holds OpenAI transcription settings. A nil Language
// lets the model detect it.
type OpenAITranscriber struct {
	APIKey   string
	Model    string
	Language *string
}

func (DeepgramTranscriber) backendProvider() string { return domain.STTDeepgram }
func (OpenAITranscriber) backendProvider() string   { return domain.STTOpenAI }

func canonicalTranscriber(ui string) string {
	switch {
	case strings.EqualFold(ui, TranscriberDeepgram):
		return TranscriberDeepgram
	case ui == TranscriberOpenAI:
		return TranscriberOpenAI
	}
	return ui
}

// TranscriberBackendName maps a UI transcriber provider to its backend discriminator.
func TranscriberBackendName(ui string) (string, bool) {
	switch canonicalTranscriber(ui) {
	case TranscriberDeepgram:
		return domain.STTDeepgram, true
	case TranscriberOpenAI:
		return domain.STTOpenAI, true
	}
	return "", false
}

// ParseTranscriberSection reads form settings into a Transcriber.
func ParseTranscriberSection(ui domain.TranscriberSection) (Transcriber, error) {
	switch canonicalTranscriber(ui.Provider) {
	case TranscriberDeepgram:
		lang, err := languageCode(DeepgramLanguages, ui.Language)
		if err != nil {
			return nil, err
		}
		return DeepgramTranscriber{
			APIKey:         ui.APIKey,
			Model:          ui.Model,
			Language:       lang,
			Punctuate:      ui.Punctuate,
			SmartFormat:    ui.SmartFormat,
			InterimResults: ui.InterimResults,
		}, nil
	case TranscriberOpenAI:
		t := OpenAITranscriber{APIKey: ui.APIKey, Model: ui.Model}
		if ui.Language != "" {
			lang, err := languageCode(OpenAISTTLanguages, ui.Language)
			if err != nil {
				return nil, err
			}
			t.Language = &lang
		}
		return t, nil
	}
	return nil, fmt.Errorf("transcriber %q: %w", ui.Provider, ErrUnknownProvider)
}

// TranscriberFromBackend reads the populated branch named by the discriminator.
func TranscriberFromBackend(cfg domain.STTConfig) (Transcriber, error) {
	switch cfg.Provider {
	case domain.STTDeepgram:
		if b := cfg.Deepgram; b != nil {
			return DeepgramTranscriber{b.APIKey, b.Model, b.Language, b.Punctuate, b.SmartFormat, b.InterimResults}, nil
		}
	case domain.STTOpenAI:
		if b := cfg.OpenAI; b != nil {
			t := OpenAITranscriber{APIKey: b.APIKey, Model: b.Model}
			if b.Language != nil {
				lang := *b.Language
				t.Language = &lang
			}
			return t, nil
		}
	default:
		return nil, fmt.Errorf("stt %q: %w", cfg.Provider, ErrUnknownProvider)
	}
	return nil, fmt.Errorf("stt config: provider %q has no settings", cfg.Provider)
}

// TranscriberBackend renders t in the backend's shape with the other branch null.
func TranscriberBackend(t Transcriber) domain.STTConfig {
	cfg := domain.STTConfig{Provider: t.backendProvider()}
	switch t := t.(type) {
	case DeepgramTranscriber:
		cfg.Deepgram = &domain.DeepgramSTT{
			APIKey: t.APIKey, Model: t.Model, Language: t.Language,
			Punctuate: t.Punctuate, SmartFormat: t.SmartFormat, InterimResults: t.InterimResults,
		}
	case OpenAITranscriber:
		cfg.OpenAI = &domain.OpenAISTT{APIKey: t.APIKey, Model: t.Model, Language: t.Language}
	}
	return cfg
}

// TranscriberUI renders t in the form shape.
func TranscriberUI(t Transcriber) domain.TranscriberSection {
	switch t := t.(type) {
	case DeepgramTranscriber:
		lang, ok := DeepgramLanguages.Display(orString(t.Language, "en-US"))
		if !ok {
			lang = t.Language
		}
		return domain.TranscriberSection{
			Provider:       TranscriberDeepgram,
			Language:       lang,
			Model:          orString(t.Model, "nova-2"),
			APIKey:         t.APIKey,
			Punctuate:      t.Punctuate,
			SmartFormat:    t.SmartFormat,
			InterimResults: t.InterimResults,
		}
	case OpenAITranscriber:
		ui := domain.TranscriberSection{
			Provider: TranscriberOpenAI,
			Model:    orString(t.Model, "gpt-4o-mini-transcribe"),
			APIKey:   t.APIKey,
		}
		if t.Language != nil {
			ui.Language = languageDisplay(OpenAISTTLanguages, *t.Language)
		}
		return ui
	}
	return domain.TranscriberSection{}
}

// TranscriberToBackend converts form settings to the backend's transcriber config.
func TranscriberToBackend(ui domain.TranscriberSection) (domain.STTConfig, error) {
	t, err := ParseTranscriberSection(ui)
	if err != nil {
		return domain.STTConfig{}, err
	}
	return TranscriberBackend(t), nil
}

// TranscriberToUI converts the backend's transcriber config to form settings.
func TranscriberToUI(cfg domain.STTConfig) (domain.TranscriberSection, error) {
	t, err := TranscriberFromBackend(cfg)
	if err != nil {
		return domain.TranscriberSection{}, err
	}
	return TranscriberUI(t), nil
}
