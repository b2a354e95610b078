package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Agent tests ---

func TestAgentFullID(t *testing.T) {
	assert.Equal(t, "sales_bot_1", Agent{ID: "sales", AgentPrefix: "sales_bot_1"}.FullID())
	assert.Equal(t, "riley-001", Agent{ID: "riley-001"}.FullID())
}

func TestAgentHasChatbot(t *testing.T) {
	assert.False(t, Agent{ID: "a"}.HasChatbot())
	assert.True(t, Agent{ID: "a", ChatbotKey: "app-123"}.HasChatbot())
}

func TestOrganizationKey(t *testing.T) {
	assert.Equal(t, "Acme", Organization{ID: "org_1", Name: "Acme"}.Key())
	assert.Equal(t, "org_1", Organization{ID: "org_1"}.Key())
}

func TestResultHelpers(t *testing.T) {
	assert.Equal(t, Result{Success: true, Message: "done"}, Ok("done"))
	assert.Equal(t, Result{Success: false, Message: "boom"}, Fail(errors.New("boom")))
	assert.Equal(t, Result{Success: false}, Fail(nil))
}

// --- Voice/transcriber wire shape tests ---

func TestTTSConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     TTSConfig
		wantErr bool
	}{
		{"openai ok", TTSConfig{Provider: TTSOpenAI, OpenAI: &OpenAITTS{}}, false},
		{"elevenlabs ok", TTSConfig{Provider: TTSElevenLabs, ElevenLabs: &ElevenLabsTTS{}}, false},
		{"cartesian ok", TTSConfig{Provider: TTSCartesia, Cartesian: &CartesiaTTS{}}, false},
		{"missing branch", TTSConfig{Provider: TTSOpenAI}, true},
		{"extra branch", TTSConfig{Provider: TTSOpenAI, OpenAI: &OpenAITTS{}, Cartesian: &CartesiaTTS{}}, true},
		{"unknown provider", TTSConfig{Provider: "azure"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSTTConfigValidate(t *testing.T) {
	assert.NoError(t, STTConfig{Provider: STTDeepgram, Deepgram: &DeepgramSTT{}}.Validate())
	assert.NoError(t, STTConfig{Provider: STTOpenAI, OpenAI: &OpenAISTT{}}.Validate())
	assert.Error(t, STTConfig{Provider: STTDeepgram, OpenAI: &OpenAISTT{}}.Validate())
}

func TestTTSConfigJSONKeepsNullBranches(t *testing.T) {
	data, err := json.Marshal(TTSConfig{Provider: TTSOpenAI, OpenAI: &OpenAITTS{Voice: "alloy"}})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"elevenlabs":null`)
	assert.Contains(t, string(data), `"cartesian":null`)
}

// --- Bundle tests ---

func TestParseSection(t *testing.T) {
	s, err := ParseSection("voice")
	require.NoError(t, err)
	assert.Equal(t, SectionVoice, s)

	_, err = ParseSection("billing")
	assert.Error(t, err)
}

func TestBundleApplyMergesIntoSection(t *testing.T) {
	var b Bundle
	assert.True(t, b.IsEmpty())

	keys, err := b.Apply(SectionModel, json.RawMessage(`{"provider":"OpenAI","model":"GPT-4o"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"model", "provider"}, keys)

	keys, err = b.Apply(SectionModel, json.RawMessage(`{"systemPrompt":"be brief"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"systemPrompt"}, keys)

	require.NotNil(t, b.Model)
	assert.Equal(t, "OpenAI", b.Model.Provider)
	assert.Equal(t, "GPT-4o", b.Model.Model)
	assert.Equal(t, "be brief", b.Model.SystemPrompt)
	assert.Nil(t, b.Voice)
}

func TestBundleApplyWidgetAndRejectsNonObject(t *testing.T) {
	var b Bundle
	_, err := b.Apply(SectionWidget, json.RawMessage(`{"theme":"dark"}`))
	require.NoError(t, err)
	assert.Equal(t, "dark", b.Widget["theme"])

	_, err = b.Apply(SectionTools, json.RawMessage(`[1,2]`))
	assert.Error(t, err)
}

func TestBundleReplaceNullClears(t *testing.T) {
	b := Bundle{Tools: &ToolsSection{MaxNudges: 3}}
	require.NoError(t, b.Replace(SectionTools, json.RawMessage(`null`)))
	assert.Nil(t, b.Tools)
}

func TestBundleCloneIsDeep(t *testing.T) {
	b := Bundle{Model: &ModelSection{KnowledgeBases: []string{"kb1"}}}
	c := b.Clone()
	c.Model.KnowledgeBases[0] = "changed"
	assert.Equal(t, "kb1", b.Model.KnowledgeBases[0])
	assert.False(t, b.Equal(c))
	assert.True(t, b.Equal(b.Clone()))
}
