package dify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// AppDetails is the subset of an app's console record the dashboard uses.
type AppDetails struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AppName   string `json:"app_name"`
	Mode      string `json:"mode"`
	APIServer string `json:"api_server"`
}

// ServiceOrigin is the app's API server without its /v1 suffix.
func (d AppDetails) ServiceOrigin() string {
	return strings.TrimSuffix(strings.TrimRight(d.APIServer, "/"), "/v1")
}

// App fetches one app's details in a workspace.
func (c *Client) App(ctx context.Context, appID, workspaceID string) (AppDetails, error) {
	data, err := c.console(ctx, http.MethodGet, "/console/api/apps/"+appID, workspaceID, nil, nil)
	if err != nil {
		return AppDetails{}, fmt.Errorf("fetch app %s: %w", shortID(appID), err)
	}

	var wrapped struct {
		Data *AppDetails `json:"data"`
	}
	if json.Unmarshal(data, &wrapped) == nil && wrapped.Data != nil {
		return *wrapped.Data, nil
	}
	var details AppDetails
	if err := json.Unmarshal(data, &details); err != nil {
		return AppDetails{}, fmt.Errorf("failed to parse app: %w", err)
	}
	return details, nil
}

// FirstAPIKey returns the first key of an app, read from api_key, key or
// token.
func (c *Client) FirstAPIKey(ctx context.Context, appID, workspaceID string) (string, error) {
	keys, err := c.APIKeys(ctx, appID, workspaceID)
	if err != nil {
		return "", fmt.Errorf("fetch api keys for %s: %w", shortID(appID), err)
	}
	for _, obj := range keys {
		for _, field := range []string{"api_key", "key", "token"} {
			if s, ok := obj[field].(string); ok && s != "" {
				return s, nil
			}
		}
	}
	return "", errors.New("app has no API key")
}

// DeleteApp removes an app from the console.
func (c *Client) DeleteApp(ctx context.Context, appID string) error {
	_, err := c.console(ctx, http.MethodDelete, "/console/api/apps/"+appID, "", nil, nil)
	return err
}

// ModelSettings names the model an app answers with.
type ModelSettings struct {
	Provider         string           `json:"provider"`
	Name             string           `json:"name"`
	Mode             string           `json:"mode"`
	CompletionParams CompletionParams `json:"completion_params"`
}

// CompletionParams are the sampling parameters of ModelSettings.
type CompletionParams struct {
	Temperature float64  `json:"temperature"`
	Stop        []string `json:"stop"`
}

// DatasetConfigs attaches knowledge bases to an app.
type DatasetConfigs struct {
	RetrievalModel  string      `json:"retrieval_model"`
	Datasets        DatasetList `json:"datasets"`
	TopK            int         `json:"top_k"`
	RerankingEnable bool        `json:"reranking_enable"`
}

// DatasetList wraps the attached datasets.
type DatasetList struct {
	Datasets []DatasetRef `json:"datasets"`
}

// DatasetRef is one attached dataset.
type DatasetRef struct {
	Dataset DatasetToggle `json:"dataset"`
}

// DatasetToggle enables one dataset by id.
type DatasetToggle struct {
	Enabled bool   `json:"enabled"`
	ID      string `json:"id"`
}

// ModelConfig is the body of POST /console/api/apps/{id}/model-config.
type ModelConfig struct {
	PrePrompt      string         `json:"pre_prompt"`
	PromptType     string         `json:"prompt_type"`
	Model          ModelSettings  `json:"model"`
	DatasetConfigs DatasetConfigs `json:"dataset_configs"`

	ChatPromptConfig       map[string]any `json:"chat_prompt_config"`
	CompletionPromptConfig map[string]any `json:"completion_prompt_config"`
	UserInputForm          []any          `json:"user_input_form"`
	DatasetQueryVariable   string         `json:"dataset_query_variable"`
	OpeningStatement       string         `json:"opening_statement"`
	SuggestedQuestions     []string       `json:"suggested_questions"`
	MoreLikeThis           toggle         `json:"more_like_this"`
	SensitiveWordAvoidance toggle         `json:"sensitive_word_avoidance"`
	SpeechToText           toggle         `json:"speech_to_text"`
	RetrieverResource      toggle         `json:"retriever_resource"`
	SuggestedAfterAnswer   toggle         `json:"suggested_questions_after_answer"`
	AgentMode              agentMode      `json:"agent_mode"`
}

type toggle struct {
	Enabled bool `json:"enabled"`
}

type agentMode struct {
	Enabled      bool   `json:"enabled"`
	MaxIteration int    `json:"max_iteration"`
	Strategy     string `json:"strategy"`
	Tools        []any  `json:"tools"`
}

// DefaultTemperature is the sampling temperature written with every model
// config.
const DefaultTemperature = 0.3

// EmptyDatasets is the dataset config of an app with no knowledge bases.
func EmptyDatasets() DatasetConfigs {
	return DatasetConfigs{
		RetrievalModel: "single",
		Datasets:       DatasetList{Datasets: []DatasetRef{}},
		TopK:           4,
	}
}

// NewModelConfig builds a complete chat-mode model config.
func NewModelConfig(provider, model, prompt string, datasets DatasetConfigs) ModelConfig {
	return ModelConfig{
		PrePrompt:  prompt,
		PromptType: "simple",
		Model: ModelSettings{
			Provider:         provider,
			Name:             model,
			Mode:             "chat",
			CompletionParams: CompletionParams{Temperature: DefaultTemperature, Stop: []string{}},
		},
		DatasetConfigs:         datasets,
		ChatPromptConfig:       map[string]any{},
		CompletionPromptConfig: map[string]any{},
		UserInputForm:          []any{},
		SuggestedQuestions:     []string{},
		AgentMode:              agentMode{MaxIteration: 10, Strategy: "function_call", Tools: []any{}},
	}
}

// UpdateModelConfig replaces an app's model configuration.
func (c *Client) UpdateModelConfig(ctx context.Context, appID string, cfg ModelConfig) error {
	if appID == "" {
		return errors.New("app id is required")
	}
	if _, err := c.console(ctx, http.MethodPost, "/console/api/apps/"+appID+"/model-config", "", cfg, nil); err != nil {
		return fmt.Errorf("failed to configure model: %w", err)
	}
	c.log.Info().Str("app", shortID(appID)).Str("model", cfg.Model.Name).Msg("model config updated")
	return nil
}
