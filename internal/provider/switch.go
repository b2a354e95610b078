package provider

import (
	"fmt"

	"github.com/soyeahso/agentdesk/internal/domain"
)

// KeyRing remembers API keys per provider so switching providers never
// carries one provider's key into another. The zero value is ready to use.
type KeyRing struct {
	voice       map[string]string
	transcriber map[string]string
}

// KeysFromAgent collects the keys stored in every populated branch of the
// agent's backend voice and transcriber configs.
func KeysFromAgent(a domain.Agent) KeyRing {
	var k KeyRing
	if tts := a.TTS; tts != nil {
		if tts.OpenAI != nil {
			k.RememberVoice(VoiceOpenAI, tts.OpenAI.APIKey)
		}
		if tts.ElevenLabs != nil {
			k.RememberVoice(VoiceElevenLabs, tts.ElevenLabs.APIKey)
		}
		if tts.Cartesian != nil {
			k.RememberVoice(VoiceCartesia, tts.Cartesian.TTSAPIKey)
		}
	}
	if stt := a.STT; stt != nil {
		if stt.Deepgram != nil {
			k.RememberTranscriber(TranscriberDeepgram, stt.Deepgram.APIKey)
		}
		if stt.OpenAI != nil {
			k.RememberTranscriber(TranscriberOpenAI, stt.OpenAI.APIKey)
		}
	}
	return k
}

// RememberVoice stores key for a UI voice provider. Empty keys are ignored.
func (k *KeyRing) RememberVoice(provider, key string) {
	if key == "" {
		return
	}
	if k.voice == nil {
		k.voice = map[string]string{}
	}
	k.voice[provider] = key
}

// RememberTranscriber stores key for a UI transcriber provider.
func (k *KeyRing) RememberTranscriber(provider, key string) {
	if key == "" {
		return
	}
	if k.transcriber == nil {
		k.transcriber = map[string]string{}
	}
	k.transcriber[canonicalTranscriber(provider)] = key
}

// VoiceKey returns the stored key for a UI voice provider, or "".
func (k KeyRing) VoiceKey(provider string) string { return k.voice[provider] }

// TranscriberKey returns the stored key for a UI transcriber provider, or "".
func (k KeyRing) TranscriberKey(provider string) string {
	return k.transcriber[canonicalTranscriber(provider)]
}

// SwitchVoiceProvider moves the voice form to target: model, voice and
// language reset to target's defaults, speed carries over, and the API key
// is target's stored key or empty.
func SwitchVoiceProvider(current domain.VoiceSection, target string, keys KeyRing) (domain.VoiceSection, error) {
	if current.Provider == target {
		return current, nil
	}
	next, err := DefaultVoiceSection(target)
	if err != nil {
		return domain.VoiceSection{}, err
	}
	if current.Speed != 0 {
		next.Speed = current.Speed
	}
	next.APIKey = keys.VoiceKey(target)
	return next, nil
}

// SwitchTranscriberProvider is SwitchVoiceProvider for the transcriber form.
func SwitchTranscriberProvider(current domain.TranscriberSection, target string, keys KeyRing) (domain.TranscriberSection, error) {
	if canonicalTranscriber(current.Provider) == canonicalTranscriber(target) {
		return current, nil
	}
	next, err := DefaultTranscriberSection(target)
	if err != nil {
		return domain.TranscriberSection{}, err
	}
	next.APIKey = keys.TranscriberKey(target)
	return next, nil
}

// DefaultVoiceSection returns provider's default form settings without a key.
func DefaultVoiceSection(provider string) (domain.VoiceSection, error) {
	switch provider {
	case VoiceOpenAI:
		return domain.VoiceSection{
			Provider: VoiceOpenAI, Language: "English", Speed: 1,
			Voice: "alloy", Model: "gpt-4o-mini-tts", ResponseFormat: "mp3",
		}, nil
	case VoiceElevenLabs:
		return domain.VoiceSection{
			Provider: VoiceElevenLabs, Language: "English", Speed: 1,
			VoiceID: "21m00Tcm4TlvDq8ikWAM", Model: "eleven_multilingual_v2",
			Stability: 0.5, SimilarityBoost: 0.5,
		}, nil
	case VoiceCartesia:
		return domain.VoiceSection{
			Provider: VoiceCartesia, Language: "English", Speed: 1, Model: "sonic-2",
		}, nil
	}
	return domain.VoiceSection{}, fmt.Errorf("voice %q: %w", provider, ErrUnknownProvider)
}

// DefaultTranscriberSection returns provider's default form settings without a key.
func DefaultTranscriberSection(provider string) (domain.TranscriberSection, error) {
	switch canonicalTranscriber(provider) {
	case TranscriberDeepgram:
		return domain.TranscriberSection{
			Provider: TranscriberDeepgram, Language: "English (US)", Model: "nova-2",
			Punctuate: true, SmartFormat: true,
		}, nil
	case TranscriberOpenAI:
		return domain.TranscriberSection{
			Provider: TranscriberOpenAI, Language: "English", Model: "gpt-4o-mini-transcribe",
		}, nil
	}
	return domain.TranscriberSection{}, fmt.Errorf("transcriber %q: %w", provider, ErrUnknownProvider)
}
