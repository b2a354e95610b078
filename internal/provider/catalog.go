package provider

import (
	"strings"

	"github.com/soyeahso/agentdesk/internal/domain"
)

// ModelProvider is one chatbot model vendor offered in the model form.
type ModelProvider struct {
	Name    string   `json:"name"`
	Console string   `json:"console"`
	Models  []string `json:"models"`
}

// ModelProviders is the model form catalog.
var ModelProviders = []ModelProvider{
	{"OpenAI", "langgenius/openai/openai", []string{"GPT-4o", "GPT-4o Mini", "GPT-4 Turbo", "GPT-4", "GPT-3.5 Turbo"}},
	{"Anthropic", "langgenius/anthropic/anthropic", []string{"Claude 3.5 Sonnet", "Claude 3.5 Haiku", "Claude 3 Opus", "Claude 3 Sonnet", "Claude 3 Haiku"}},
	{"DeepSeek", "langgenius/deepseek/deepseek", []string{"DeepSeek Coder", "DeepSeek Chat", "DeepSeek Math"}},
	{"Groq", "langgenius/groq/groq", []string{"Llama 3.1 8B", "Llama 3.1 70B", "Mixtral 8x7B", "Gemma 2 9B", "Gemma 2 27B"}},
	{"XAI", "langgenius/xai/xai", []string{"Grok-1", "Grok-1.5", "Grok-2"}},
	{"Google", "langgenius/google/google", []string{"Gemini 1.5 Pro", "Gemini 1.5 Flash", "Gemini 1.0 Pro", "PaLM 2"}},
}

var apiModelNames = map[string]string{
	"GPT-4o":            "gpt-4o",
	"GPT-4o Mini":       "gpt-4o-mini",
	"GPT-4 Turbo":       "gpt-4-turbo",
	"GPT-4":             "gpt-4",
	"GPT-3.5 Turbo":     "gpt-3.5-turbo",
	"Claude 3.5 Sonnet": "claude-3-5-sonnet",
	"Claude 3.5 Haiku":  "claude-3-5-haiku",
	"Claude 3 Opus":     "claude-3-opus",
	"Claude 3 Sonnet":   "claude-3-sonnet",
	"Claude 3 Haiku":    "claude-3-haiku",
	"DeepSeek Coder":    "deepseek-coder",
	"DeepSeek Chat":     "deepseek-chat",
	"DeepSeek Math":     "deepseek-math",
	"Llama 3.1 8B":      "llama-3.1-8b",
	"Llama 3.1 70B":     "llama-3.1-70b",
	"Mixtral 8x7B":      "mixtral-8x7b",
	"Gemma 2 9B":        "gemma-2-9b",
	"Gemma 2 27B":       "gemma-2-27b",
	"Grok-1":            "grok-1",
	"Grok-1.5":          "grok-1.5",
	"Grok-2":            "grok-2",
	"Gemini 1.5 Pro":    "gemini-1.5-pro",
	"Gemini 1.5 Flash":  "gemini-1.5-flash",
	"Gemini 1.0 Pro":    "gemini-1.0-pro",
	"PaLM 2":            "palm-2",
}

// ConsoleProvider maps a model provider name to the console's provider
// string. Console strings pass through unchanged.
func ConsoleProvider(name string) (string, bool) {
	for _, p := range ModelProviders {
		if strings.EqualFold(p.Name, name) || p.Console == name {
			return p.Console, true
		}
	}
	return "", false
}

// APIModelName maps a display model name to the name the console expects.
// Unknown names are lower-cased with spaces replaced by '-'.
func APIModelName(display string) string {
	if name, ok := apiModelNames[display]; ok {
		return name
	}
	return strings.Join(strings.Fields(strings.ToLower(display)), "-")
}

// VoiceModels lists the selectable models for a UI voice provider.
func VoiceModels(provider string) []string {
	switch provider {
	case VoiceOpenAI:
		return []string{"gpt-4o-mini-tts", "tts-1", "tts-1-hd"}
	case VoiceElevenLabs:
		return ElevenLabsModels()
	case VoiceCartesia:
		return []string{"sonic-2", "sonic-2.5"}
	}
	return nil
}

// OpenAIVoices lists the OpenAI TTS voice names.
func OpenAIVoices() []string {
	return []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"}
}

// TranscriberModels lists the selectable models for a UI transcriber provider.
func TranscriberModels(provider string) []string {
	switch canonicalTranscriber(provider) {
	case TranscriberDeepgram:
		return []string{
			"nova-3", "nova-2", "nova-2-general", "nova-2-meeting", "nova-2-phonecall", "nova-2-finance",
			"nova-2-conversationalai", "nova-2-video", "nova-2-medical", "nova-2-drivethru",
		}
	case TranscriberOpenAI:
		return []string{"gpt-4o-mini-transcribe", "gpt-4o-transcribe", "whisper-1"}
	}
	return nil
}

// DefaultTTS is the voice config new agents are created with.
func DefaultTTS() *domain.TTSConfig {
	return &domain.TTSConfig{
		Provider: domain.TTSOpenAI,
		OpenAI: &domain.OpenAITTS{
			Model: "gpt-4o-mini-tts", ResponseFormat: "mp3", Voice: "alloy", Language: "en", Speed: 1,
		},
	}
}

// DefaultSTT is the transcriber config new agents are created with.
func DefaultSTT() *domain.STTConfig {
	lang := "en"
	return &domain.STTConfig{
		Provider: domain.STTOpenAI,
		OpenAI:   &domain.OpenAISTT{Model: "gpt-4o-mini-transcribe", Language: &lang},
	}
}
