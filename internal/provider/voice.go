// Package provider converts voice and transcriber settings between the
// dashboard's form shape and the agent backend's provider-tagged shape.
package provider

import (
	"errors"
	"fmt"

	"github.com/soyeahso/agentdesk/internal/domain"
)

// UI names for voice providers.
const (
	VoiceOpenAI     = "OpenAI"
	VoiceElevenLabs = "11Labs"
	VoiceCartesia   = "Cartesia"
)

// VoiceProviders lists the UI voice providers in display order.
var VoiceProviders = []string{VoiceOpenAI, VoiceElevenLabs, VoiceCartesia}

var (
	// ErrUnknownProvider is returned for a provider outside the supported set.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrUnsupportedLanguage is returned when a language is not offered by the selected provider or model.
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

// Voice is one provider's text-to-speech settings. The concrete type is
// the provider tag; language fields hold provider language codes.
type Voice interface {
	backendProvider() string
}

// OpenAIVoice holds OpenAI TTS settings.
type OpenAIVoice struct {
	APIKey         string
	Model          string
	ResponseFormat string
	Voice          string
	Language       string
	Speed          float64
}

// ElevenLabsVoice holds 11Labs settings.
type ElevenLabsVoice struct {
	APIKey          string
	VoiceID         string
	ModelID         string
	Language        string
	Stability       float64
	SimilarityBoost float64
	Speed           float64
}

// CartesiaVoice holds Cartesia settings.
type CartesiaVoice struct {
	APIKey   string
	VoiceID  string
	Model    string
	Language string
	Gender   string
	Speed    float64
}

func (OpenAIVoice) backendProvider() string     { return domain.TTSOpenAI }
func (ElevenLabsVoice) backendProvider() string { return domain.TTSElevenLabs }
func (CartesiaVoice) backendProvider() string   { return domain.TTSCartesia }

// VoiceBackendName maps a UI voice provider to its backend discriminator.
func VoiceBackendName(ui string) (string, bool) {
	switch ui {
	case VoiceOpenAI:
		return domain.TTSOpenAI, true
	case VoiceElevenLabs:
		return domain.TTSElevenLabs, true
	case VoiceCartesia:
		return domain.TTSCartesia, true
	}
	return "", false
}

// VoiceUIName maps a backend discriminator to its UI provider name.
func VoiceUIName(backend string) (string, bool) {
	switch backend {
	case domain.TTSOpenAI:
		return VoiceOpenAI, true
	case domain.TTSElevenLabs:
		return VoiceElevenLabs, true
	case domain.TTSCartesia:
		return VoiceCartesia, true
	}
	return "", false
}

// ParseVoiceSection reads form settings into a Voice, translating the
// display language through the provider's table.
func ParseVoiceSection(ui domain.VoiceSection) (Voice, error) {
	switch ui.Provider {
	case VoiceOpenAI:
		lang, err := languageCode(OpenAITTSLanguages, ui.Language)
		if err != nil {
			return nil, err
		}
		return OpenAIVoice{
			APIKey:         ui.APIKey,
			Model:          ui.Model,
			ResponseFormat: ui.ResponseFormat,
			Voice:          ui.Voice,
			Language:       lang,
			Speed:          ui.Speed,
		}, nil
	case VoiceElevenLabs:
		lang, err := languageCode(ElevenLabsLanguagesFor(ui.Model), ui.Language)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", ui.Model, err)
		}
		return ElevenLabsVoice{
			APIKey:          ui.APIKey,
			VoiceID:         ui.VoiceID,
			ModelID:         ui.Model,
			Language:        lang,
			Stability:       ui.Stability,
			SimilarityBoost: ui.SimilarityBoost,
			Speed:           ui.Speed,
		}, nil
	case VoiceCartesia:
		lang, err := languageCode(CartesiaLanguages, ui.Language)
		if err != nil {
			return nil, err
		}
		return CartesiaVoice{
			APIKey:   ui.APIKey,
			VoiceID:  ui.VoiceID,
			Model:    ui.Model,
			Language: lang,
			Gender:   ui.Gender,
			Speed:    ui.Speed,
		}, nil
	}
	return nil, fmt.Errorf("voice %q: %w", ui.Provider, ErrUnknownProvider)
}

// VoiceFromBackend reads the populated branch named by the discriminator.
func VoiceFromBackend(cfg domain.TTSConfig) (Voice, error) {
	switch cfg.Provider {
	case domain.TTSOpenAI:
		if b := cfg.OpenAI; b != nil {
			return OpenAIVoice{b.APIKey, b.Model, b.ResponseFormat, b.Voice, b.Language, b.Speed}, nil
		}
	case domain.TTSElevenLabs:
		if b := cfg.ElevenLabs; b != nil {
			return ElevenLabsVoice{b.APIKey, b.VoiceID, b.ModelID, b.Language, b.Stability, b.SimilarityBoost, b.Speed}, nil
		}
	case domain.TTSCartesia:
		if b := cfg.Cartesian; b != nil {
			return CartesiaVoice{b.TTSAPIKey, b.VoiceID, b.Model, b.Language, b.Gender, b.Speed}, nil
		}
	default:
		return nil, fmt.Errorf("tts %q: %w", cfg.Provider, ErrUnknownProvider)
	}
	return nil, fmt.Errorf("tts config: provider %q has no settings", cfg.Provider)
}

// VoiceBackend renders v in the backend's shape with every other branch null.
func VoiceBackend(v Voice) domain.TTSConfig {
	cfg := domain.TTSConfig{Provider: v.backendProvider()}
	switch v := v.(type) {
	case OpenAIVoice:
		cfg.OpenAI = &domain.OpenAITTS{
			APIKey: v.APIKey, Model: v.Model, ResponseFormat: v.ResponseFormat,
			Voice: v.Voice, Language: v.Language, Speed: v.Speed,
		}
	case ElevenLabsVoice:
		cfg.ElevenLabs = &domain.ElevenLabsTTS{
			APIKey: v.APIKey, VoiceID: v.VoiceID, ModelID: v.ModelID, Language: v.Language,
			Stability: v.Stability, SimilarityBoost: v.SimilarityBoost, Speed: v.Speed,
		}
	case CartesiaVoice:
		cfg.Cartesian = &domain.CartesiaTTS{
			TTSAPIKey: v.APIKey, VoiceID: v.VoiceID, Model: v.Model,
			Speed: v.Speed, Language: v.Language, Gender: v.Gender,
		}
	}
	return cfg
}

// VoiceUI renders v in the form shape. Missing values take the defaults
// older records were displayed with.
func VoiceUI(v Voice) domain.VoiceSection {
	switch v := v.(type) {
	case OpenAIVoice:
		return domain.VoiceSection{
			Provider:       VoiceOpenAI,
			Language:       languageDisplay(OpenAITTSLanguages, v.Language),
			Speed:          orFloat(v.Speed, 1.0),
			APIKey:         v.APIKey,
			Voice:          orString(v.Voice, "alloy"),
			Model:          orString(v.Model, "tts-1"),
			ResponseFormat: orString(v.ResponseFormat, "mp3"),
		}
	case ElevenLabsVoice:
		return domain.VoiceSection{
			Provider:        VoiceElevenLabs,
			Language:        languageDisplay(ElevenLabsLanguages, v.Language),
			Speed:           orFloat(v.Speed, 1.0),
			APIKey:          v.APIKey,
			VoiceID:         v.VoiceID,
			Model:           v.ModelID,
			Stability:       orFloat(v.Stability, 0.5),
			SimilarityBoost: orFloat(v.SimilarityBoost, 0.5),
		}
	case CartesiaVoice:
		return domain.VoiceSection{
			Provider: VoiceCartesia,
			Language: languageDisplay(CartesiaLanguages, v.Language),
			Speed:    orFloat(v.Speed, 1.0),
			APIKey:   v.APIKey,
			VoiceID:  v.VoiceID,
			Model:    v.Model,
			Gender:   v.Gender,
		}
	}
	return domain.VoiceSection{}
}

// VoiceToBackend converts form settings to the backend's voice config.
func VoiceToBackend(ui domain.VoiceSection) (domain.TTSConfig, error) {
	v, err := ParseVoiceSection(ui)
	if err != nil {
		return domain.TTSConfig{}, err
	}
	return VoiceBackend(v), nil
}

// VoiceToUI converts the backend's voice config to form settings.
func VoiceToUI(cfg domain.TTSConfig) (domain.VoiceSection, error) {
	v, err := VoiceFromBackend(cfg)
	if err != nil {
		return domain.VoiceSection{}, err
	}
	return VoiceUI(v), nil
}

func languageCode(table LanguageTable, display string) (string, error) {
	if display == "" {
		return "", nil
	}
	code, ok := table.Code(display)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedLanguage, display)
	}
	return code, nil
}

func languageDisplay(table LanguageTable, code string) string {
	if d, ok := table.Display(code); ok {
		return d
	}
	if d, ok := legacyDisplay(code); ok {
		return d
	}
	return "English"
}

func orString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orFloat(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}
