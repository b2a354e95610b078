package domain

import "fmt"

// Backend discriminators for text-to-speech providers.
const (
	TTSOpenAI     = "openai"
	TTSElevenLabs = "elevenlabs"
	TTSCartesia   = "cartesian"
)

// Backend discriminators for speech-to-text providers.
const (
	STTDeepgram = "deepgram"
	STTOpenAI   = "openai"
)

// TTSConfig is the agent backend's voice config: a provider discriminator
// plus exactly one populated provider branch.
type TTSConfig struct {
	Provider   string         `json:"provider"`
	OpenAI     *OpenAITTS     `json:"openai"`
	ElevenLabs *ElevenLabsTTS `json:"elevenlabs"`
	Cartesian  *CartesiaTTS   `json:"cartesian"`
}

// OpenAITTS is the openai branch of TTSConfig.
type OpenAITTS struct {
	APIKey         string  `json:"api_key"`
	Model          string  `json:"model"`
	ResponseFormat string  `json:"response_format"`
	Voice          string  `json:"voice"`
	Language       string  `json:"language"`
	Speed          float64 `json:"speed"`
}

// ElevenLabsTTS is the elevenlabs branch of TTSConfig.
type ElevenLabsTTS struct {
	APIKey          string  `json:"api_key"`
	VoiceID         string  `json:"voice_id"`
	ModelID         string  `json:"model_id"`
	Language        string  `json:"language,omitempty"`
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed"`
}

// CartesiaTTS is the cartesian branch of TTSConfig.
type CartesiaTTS struct {
	TTSAPIKey string  `json:"tts_api_key"`
	VoiceID   string  `json:"voice_id"`
	Model     string  `json:"model"`
	Speed     float64 `json:"speed"`
	Language  string  `json:"language"`
	Gender    string  `json:"gender,omitempty"`
}

// Validate checks that the discriminator and the populated branch agree.
func (c TTSConfig) Validate() error {
	populated := map[string]bool{
		TTSOpenAI:     c.OpenAI != nil,
		TTSElevenLabs: c.ElevenLabs != nil,
		TTSCartesia:   c.Cartesian != nil,
	}
	return checkBranches("tts", c.Provider, populated)
}

// STTConfig is the agent backend's transcriber config.
type STTConfig struct {
	Provider string       `json:"provider"`
	Deepgram *DeepgramSTT `json:"deepgram"`
	OpenAI   *OpenAISTT   `json:"openai"`
}

// DeepgramSTT is the deepgram branch of STTConfig.
type DeepgramSTT struct {
	APIKey         string `json:"api_key"`
	Model          string `json:"model"`
	Language       string `json:"language"`
	Punctuate      bool   `json:"punctuate"`
	SmartFormat    bool   `json:"smart_format"`
	InterimResults bool   `json:"interim_results"`
}

// OpenAISTT is the openai branch of STTConfig. Language may be null.
type OpenAISTT struct {
	APIKey   string  `json:"api_key"`
	Model    string  `json:"model"`
	Language *string `json:"language"`
}

// Validate checks that the discriminator and the populated branch agree.
func (c STTConfig) Validate() error {
	populated := map[string]bool{
		STTDeepgram: c.Deepgram != nil,
		STTOpenAI:   c.OpenAI != nil,
	}
	return checkBranches("stt", c.Provider, populated)
}

func checkBranches(kind, provider string, populated map[string]bool) error {
	if _, known := populated[provider]; !known {
		return fmt.Errorf("%s config: unknown provider %q", kind, provider)
	}
	for name, set := range populated {
		if name == provider && !set {
			return fmt.Errorf("%s config: provider %q has no settings", kind, provider)
		}
		if name != provider && set {
			return fmt.Errorf("%s config: provider is %q but %q settings are populated", kind, provider, name)
		}
	}
	return nil
}
