package dify

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/soyeahso/agentdesk/internal/version"
)

// Chat response modes.
const (
	ModeBlocking  = "blocking"
	ModeStreaming = "streaming"
)

// ChatRequest is one message sent to an app's chat endpoint.
type ChatRequest struct {
	Query          string         `json:"query"`
	Inputs         map[string]any `json:"inputs"`
	ResponseMode   string         `json:"response_mode"`
	ConversationID string         `json:"conversation_id,omitempty"`
	User           string         `json:"user"`
}

// ChatResponse is the reply. In streaming mode Answer is the concatenation
// of every chunk.
type ChatResponse struct {
	Answer         string `json:"answer"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id,omitempty"`
}

// Chat sends a message to the app owning appKey and waits for the answer.
// In streaming mode onChunk, when non-nil, receives each answer chunk as it
// arrives.
func (c *Client) Chat(ctx context.Context, appKey string, req ChatRequest, onChunk func(string)) (ChatResponse, error) {
	if c.apiURL == "" {
		return ChatResponse{}, errors.New("app API URL is not configured")
	}
	if appKey == "" {
		return ChatResponse{}, errors.New("app key is required")
	}
	if req.Query == "" {
		return ChatResponse{}, errors.New("message is required")
	}
	if req.Inputs == nil {
		req.Inputs = map[string]any{}
	}
	if req.ResponseMode == "" {
		req.ResponseMode = ModeBlocking
	}
	if req.User == "" {
		req.User = "agentdesk"
	}

	if req.ResponseMode != ModeStreaming {
		var resp ChatResponse
		if _, err := c.send(ctx, http.MethodPost, c.apiURL+"/chat-messages", "Bearer "+appKey, "", req, &resp); err != nil {
			return ChatResponse{}, err
		}
		return resp, nil
	}
	return c.streamChat(ctx, appKey, req, onChunk)
}

type chatEvent struct {
	Event          string `json:"event"`
	Answer         string `json:"answer"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Message        string `json:"message"`
}

func (c *Client) streamChat(ctx context.Context, appKey string, req ChatRequest, onChunk func(string)) (ChatResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/chat-messages", bytes.NewReader(payload))
	if err != nil {
		return ChatResponse{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+appKey)
	httpReq.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return ChatResponse{}, &APIError{Status: resp.StatusCode, Message: errorMessage(resp.StatusCode, body), Path: httpReq.URL.Path}
	}

	var out ChatResponse
	var answer strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		var ev chatEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			continue
		}
		if ev.ConversationID != "" {
			out.ConversationID = ev.ConversationID
		}
		if ev.MessageID != "" {
			out.MessageID = ev.MessageID
		}

		switch ev.Event {
		case "message", "agent_message":
			answer.WriteString(ev.Answer)
			if onChunk != nil && ev.Answer != "" {
				onChunk(ev.Answer)
			}
		case "error":
			return ChatResponse{}, fmt.Errorf("chat stream error: %s", ev.Message)
		case "message_end":
			out.Answer = answer.String()
			return out, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return ChatResponse{}, fmt.Errorf("stream read error: %w", err)
	}
	out.Answer = answer.String()
	return out, nil
}
