package provider

import (
	"fmt"
	"slices"
	"strings"
)

// Language is one entry of a provider's language table.
type Language struct {
	Code    string `json:"code"`
	Display string `json:"display"`
}

// LanguageTable maps language codes to display names for one provider.
type LanguageTable []Language

// Display returns the display name for code.
func (t LanguageTable) Display(code string) (string, bool) {
	for _, l := range t {
		if strings.EqualFold(l.Code, code) {
			return l.Display, true
		}
	}
	return "", false
}

// Code returns the code for a display name. A value that is already a
// known code is accepted as-is.
func (t LanguageTable) Code(display string) (string, bool) {
	for _, l := range t {
		if strings.EqualFold(l.Display, display) {
			return l.Code, true
		}
	}
	for _, l := range t {
		if strings.EqualFold(l.Code, display) {
			return l.Code, true
		}
	}
	return "", false
}

// Displays lists the display names in table order.
func (t LanguageTable) Displays() []string {
	out := make([]string, len(t))
	for i, l := range t {
		out[i] = l.Display
	}
	return out
}

func (t LanguageTable) restrict(codes []string) LanguageTable {
	var out LanguageTable
	for _, l := range t {
		if slices.Contains(codes, l.Code) {
			out = append(out, l)
		}
	}
	return out
}

var (
	english    = Language{"en", "English"}
	spanish    = Language{"es", "Spanish"}
	french     = Language{"fr", "French"}
	german     = Language{"de", "German"}
	italian    = Language{"it", "Italian"}
	portuguese = Language{"pt", "Portuguese"}
	russian    = Language{"ru", "Russian"}
	japanese   = Language{"ja", "Japanese"}
	korean     = Language{"ko", "Korean"}
	chinese    = Language{"zh", "Chinese"}
	hindi      = Language{"hi", "Hindi"}
	arabic     = Language{"ar", "Arabic"}
	dutch      = Language{"nl", "Dutch"}
	swedish    = Language{"sv", "Swedish"}
	danish     = Language{"da", "Danish"}
	norwegian  = Language{"no", "Norwegian"}
	finnish    = Language{"fi", "Finnish"}
	polish     = Language{"pl", "Polish"}
	turkish    = Language{"tr", "Turkish"}
	thai       = Language{"th", "Thai"}
	vietnamese = Language{"vi", "Vietnamese"}
)

// Per-provider language tables.
var (
	OpenAITTSLanguages = LanguageTable{
		english, spanish, french, german, italian, portuguese, russian, japanese, korean, chinese, hindi,
		arabic, dutch, swedish, danish, norwegian, finnish, polish, turkish, thai, vietnamese,
	}

	ElevenLabsLanguages = LanguageTable{
		english, spanish, french, german, italian, portuguese, russian, japanese, korean, chinese, hindi,
		arabic, dutch, swedish, danish, norwegian, finnish, polish, turkish, vietnamese,
	}

	CartesiaLanguages = LanguageTable{english, hindi, spanish, french, german, chinese, japanese, korean, portuguese, italian}

	DeepgramLanguages = LanguageTable{
		{"en-US", "English (US)"}, {"en-GB", "English (UK)"}, hindi, spanish, french, german, japanese, portuguese, dutch,
	}

	OpenAISTTLanguages = LanguageTable{
		english, spanish, french, german, italian, portuguese, russian, japanese, korean, chinese, hindi,
		arabic, dutch, swedish, danish, norwegian, finnish, polish, turkish, thai, vietnamese,
	}
)

var elevenLabsModelLanguages = map[string][]string{
	"eleven_multilingual_v2": {"en", "es", "fr", "de", "it", "pt", "ru", "ja", "ko", "zh", "hi", "ar", "nl", "sv", "da", "fi", "pl", "tr"},
	"eleven_turbo_v2_5":      {"en", "es", "fr", "de", "it", "pt", "ru", "ja", "ko", "zh", "hi", "ar", "nl", "sv", "da", "no", "fi", "pl", "tr", "vi"},
	"eleven_flash_v2_5":      {"en", "es", "fr", "de", "it", "pt", "ru", "ja", "ko", "zh", "hi", "ar", "nl", "sv", "da", "no", "fi", "pl", "tr", "vi"},
	"eleven_turbo_v2":        {"en"},
	"eleven_flash_v2":        {"en"},
	"eleven_monolingual_v1":  {"en"},
}

// ElevenLabsModels lists the 11Labs models with verified language support.
func ElevenLabsModels() []string {
	return []string{
		"eleven_multilingual_v2", "eleven_turbo_v2_5", "eleven_flash_v2_5",
		"eleven_turbo_v2", "eleven_flash_v2", "eleven_monolingual_v1",
	}
}

// ElevenLabsLanguagesFor restricts the 11Labs table to the languages
// verified for model. Unknown models get the full table.
func ElevenLabsLanguagesFor(model string) LanguageTable {
	codes, ok := elevenLabsModelLanguages[model]
	if !ok {
		return ElevenLabsLanguages
	}
	return ElevenLabsLanguages.restrict(codes)
}

// VoiceLanguages returns the language table for a UI voice provider and model.
func VoiceLanguages(uiProvider, model string) (LanguageTable, error) {
	switch uiProvider {
	case VoiceOpenAI:
		return OpenAITTSLanguages, nil
	case VoiceElevenLabs:
		return ElevenLabsLanguagesFor(model), nil
	case VoiceCartesia:
		return CartesiaLanguages, nil
	}
	return nil, fmt.Errorf("unknown voice provider %q", uiProvider)
}

// TranscriberLanguages returns the language table for a UI transcriber provider.
func TranscriberLanguages(uiProvider string) (LanguageTable, error) {
	switch canonicalTranscriber(uiProvider) {
	case TranscriberDeepgram:
		return DeepgramLanguages, nil
	case TranscriberOpenAI:
		return OpenAISTTLanguages, nil
	}
	return nil, fmt.Errorf("unknown transcriber provider %q", uiProvider)
}

// legacyDisplay is the provider-independent mapping older records were
// decoded with.
func legacyDisplay(code string) (string, bool) {
	if strings.EqualFold(code, "en-US") {
		return "English", true
	}
	return OpenAITTSLanguages.Display(code)
}
