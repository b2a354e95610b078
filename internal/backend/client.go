// Package backend is the client for the agent-configuration REST API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/soyeahso/agentdesk/internal/config"
	"github.com/soyeahso/agentdesk/internal/logging"
	"github.com/soyeahso/agentdesk/internal/provider"
	"github.com/soyeahso/agentdesk/internal/telemetry"
	"github.com/soyeahso/agentdesk/internal/version"
)

// APIError is a non-2xx response from the agent backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// IsNotAllowed reports whether err is a 405 from the backend.
func IsNotAllowed(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusMethodNotAllowed
}

// Client talks to the agent backend with an X-API-Key header.
type Client struct {
	baseURL       string
	apiKey        string
	deleteTimeout time.Duration
	http          *http.Client
	log           *logging.Logger
}

// New creates a client from config.
func New(cfg config.BackendConfig, log *logging.Logger) *Client {
	return &Client{
		baseURL:       strings.TrimRight(cfg.URL, "/"),
		apiKey:        cfg.APIKey,
		deleteTimeout: cfg.DeleteTimeout(),
		http:          telemetry.NewHTTPClient(cfg.Timeout()),
		log:           log.Sub("backend"),
	}
}

// Configured reports whether a backend URL is set.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

// do sends a JSON request and decodes a JSON response into out when out is
// non-nil. The raw body is returned for callers that pass through results.
func (c *Client) do(ctx context.Context, method, path string, body, out any) (json.RawMessage, error) {
	if c.baseURL == "" {
		return nil, errors.New("agent backend URL is not configured")
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("User-Agent", version.UserAgent())

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Str("apiKey", provider.MaskKey(c.apiKey)).
		Dur("elapsed", time.Since(start)).
		Msg("backend request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Status: resp.StatusCode, Message: errorMessage(resp, data)}
	}

	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return data, nil
}

// errorMessage prefers the body's error, message or detail field over the
// status line.
func errorMessage(resp *http.Response, body []byte) string {
	var payload struct {
		Error   any    `json:"error"`
		Message string `json:"message"`
		Detail  any    `json:"detail"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if s, ok := payload.Error.(string); ok && s != "" {
			return s
		}
		if payload.Message != "" {
			return payload.Message
		}
		if s, ok := payload.Detail.(string); ok && s != "" {
			return s
		}
	}
	return fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}
