// Package dify is the client for the chatbot-provisioning console: admin
// login, workspace switching, app listing and configuration, and the
// per-app chat API.
package dify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/soyeahso/agentdesk/internal/config"
	"github.com/soyeahso/agentdesk/internal/logging"
	"github.com/soyeahso/agentdesk/internal/telemetry"
	"github.com/soyeahso/agentdesk/internal/version"
)

// ErrNoToken is returned when login succeeds but yields no access token.
var ErrNoToken = errors.New("no access token received from login")

// ErrNotConfigured is returned when no console origin is set.
var ErrNotConfigured = errors.New("console origin is not configured")

// APIError is a non-2xx console or app API response.
type APIError struct {
	Status  int
	Message string
	Path    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %d %s", e.Path, e.Status, e.Message)
}

// IsNotFound reports whether err is a 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// IsUnauthorized reports whether err is a 401.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// Client talks to the console as the configured admin user. The access
// token is cached until the console rejects it.
type Client struct {
	origin      string
	apiURL      string
	email       string
	password    string
	workspaceID string

	pageLimit      int
	maxPages       int
	maxWorkspaces  int
	workspaceBatch int
	appBatch       int
	loginTimeout   time.Duration
	fetchTimeout   time.Duration

	http *http.Client
	log  *logging.Logger

	mu    sync.Mutex
	token string
}

// New creates a console client from config.
func New(cfg config.DifyConfig, log *logging.Logger) *Client {
	return &Client{
		origin:         strings.TrimRight(cfg.ConsoleOrigin, "/"),
		apiURL:         strings.TrimRight(cfg.APIURL, "/"),
		email:          cfg.AdminEmail,
		password:       cfg.AdminPassword,
		workspaceID:    cfg.WorkspaceID,
		pageLimit:      cfg.PageLimit,
		maxPages:       cfg.MaxPages,
		maxWorkspaces:  cfg.MaxWorkspaces,
		workspaceBatch: max(cfg.WorkspaceBatch, 1),
		appBatch:       max(cfg.AppBatch, 1),
		loginTimeout:   cfg.LoginTimeout(),
		fetchTimeout:   cfg.FetchTimeout(),
		http:           telemetry.NewHTTPClient(0),
		log:            log.Sub("dify"),
	}
}

// Configured reports whether a console origin is set.
func (c *Client) Configured() bool {
	return c.origin != ""
}

// DefaultWorkspace is the workspace searched first.
func (c *Client) DefaultWorkspace() string {
	return c.workspaceID
}

// Login authenticates as the admin user and caches the access token.
func (c *Client) Login(ctx context.Context) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	ctx, cancel := withTimeout(ctx, c.loginTimeout)
	defer cancel()

	body := map[string]string{"email": c.email, "password": c.password}
	var reply struct {
		AccessToken string `json:"access_token"`
		Data        struct {
			AccessToken string `json:"access_token"`
			Token       string `json:"token"`
		} `json:"data"`
	}
	if _, err := c.send(ctx, http.MethodPost, c.origin+"/console/api/login", "", "", body, &reply); err != nil {
		return "", fmt.Errorf("failed to authenticate: %w", err)
	}

	token := reply.Data.AccessToken
	if token == "" {
		token = reply.AccessToken
	}
	if token == "" {
		token = reply.Data.Token
	}
	if token == "" {
		return "", ErrNoToken
	}

	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	c.log.Debug().Msg("console login ok")
	return token, nil
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		return token, nil
	}
	return c.Login(ctx)
}

func (c *Client) dropToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// console sends an authenticated request to the console API. workspaceID,
// when set, scopes the request with X-Workspace-Id.
func (c *Client) console(ctx context.Context, method, path, workspaceID string, body, out any) (json.RawMessage, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withTimeout(ctx, c.fetchTimeout)
	defer cancel()

	data, err := c.send(ctx, method, c.origin+path, "Bearer "+token, workspaceID, body, out)
	if IsUnauthorized(err) {
		c.dropToken()
	}
	return data, err
}

func (c *Client) send(ctx context.Context, method, url, authorization, workspaceID string, body, out any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	if workspaceID != "" {
		req.Header.Set("X-Workspace-Id", workspaceID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Status: resp.StatusCode, Message: errorMessage(resp.StatusCode, data), Path: req.URL.Path}
	}

	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return data, nil
}

func errorMessage(status int, body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Code    string `json:"code"`
	}
	if json.Unmarshal(body, &payload) == nil {
		switch {
		case payload.Message != "":
			return payload.Message
		case payload.Error != "":
			return payload.Error
		case payload.Code != "":
			return payload.Code
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) <= 200 {
		return text
	}
	return http.StatusText(status)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
