package dify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrAppNotFound is returned when no workspace holds an app with the key.
var ErrAppNotFound = errors.New("no app found with the provided API key")

// keyFields are the API-key object fields that may carry the key value.
var keyFields = []string{"api_key", "key", "token", "token_value", "value", "id", "secret_key", "app_key"}

// AppMatch is the app an API key belongs to.
type AppMatch struct {
	AppID       string `json:"appId"`
	AppName     string `json:"appName"`
	AppMode     string `json:"appMode"`
	WorkspaceID string `json:"workspace"`
	Searched    int    `json:"searchedWorkspaces"`
}

// APIKeys lists the raw API-key objects of an app. The console returns
// either a list or a single object, wrapped in data or not.
func (c *Client) APIKeys(ctx context.Context, appID, workspaceID string) ([]map[string]any, error) {
	data, err := c.console(ctx, http.MethodGet, "/console/api/apps/"+appID+"/api-keys", workspaceID, nil, nil)
	if err != nil {
		return nil, err
	}
	return parseKeyObjects(data)
}

func parseKeyObjects(data json.RawMessage) ([]map[string]any, error) {
	var wrapped struct {
		Data json.RawMessage `json:"data"`
	}
	if json.Unmarshal(data, &wrapped) == nil && len(wrapped.Data) > 0 && string(wrapped.Data) != "null" {
		data = wrapped.Data
	}

	var list []map[string]any
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var single map[string]any
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("failed to parse api keys: %w", err)
	}
	return []map[string]any{single}, nil
}

// keyValues returns the distinct, trimmed string values of keyFields.
func keyValues(obj map[string]any) []string {
	var out []string
	for _, field := range keyFields {
		s, ok := obj[field].(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// FindAppByKey searches every workspace for the app owning apiKey. The
// configured workspace is searched first; the rest are searched a batch
// at a time, concurrently within a batch.
func (c *Client) FindAppByKey(ctx context.Context, apiKey string) (AppMatch, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return AppMatch{}, errors.New("API key is required")
	}
	if _, err := c.accessToken(ctx); err != nil {
		return AppMatch{}, err
	}

	searched := 0
	if c.workspaceID != "" {
		searched++
		match, err := c.searchWorkspace(ctx, Workspace{ID: c.workspaceID}, apiKey)
		if err != nil {
			return AppMatch{}, err
		}
		if match != nil {
			match.Searched = searched
			return *match, nil
		}
	}

	workspaces, err := c.Workspaces(ctx)
	if err != nil {
		return AppMatch{}, err
	}
	rest := slices.DeleteFunc(slices.Clone(workspaces), func(ws Workspace) bool {
		return ws.Key() == "" || ws.Key() == c.workspaceID
	})
	if c.maxWorkspaces > 0 && len(rest) > c.maxWorkspaces {
		rest = rest[:c.maxWorkspaces]
	}

	for batch := range slices.Chunk(rest, c.workspaceBatch) {
		results := make([]*AppMatch, len(batch))
		g, gctx := errgroup.WithContext(ctx)
		for i, ws := range batch {
			g.Go(func() error {
				match, err := c.searchWorkspace(gctx, ws, apiKey)
				results[i] = match
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return AppMatch{}, err
		}
		searched += len(batch)

		for _, match := range results {
			if match != nil {
				match.Searched = searched
				c.log.Info().Str("app", shortID(match.AppID)).Str("workspace", shortID(match.WorkspaceID)).Msg("app found by key")
				return *match, nil
			}
		}
	}

	c.log.Info().Int("searched", searched).Msg("app not found by key")
	return AppMatch{}, ErrAppNotFound
}

// searchWorkspace pages through one workspace looking for apiKey. Listing
// and key-fetch failures end or skip quietly; only cancellation is an error.
func (c *Client) searchWorkspace(ctx context.Context, ws Workspace, apiKey string) (*AppMatch, error) {
	for page, err := range c.Scan(ctx, []Workspace{ws}) {
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Warn().Err(err).Msg("apps listing failed")
			return nil, nil
		}

		for batch := range slices.Chunk(page.Apps, c.appBatch) {
			match, err := c.checkApps(ctx, ws, batch, apiKey)
			if err != nil || match != nil {
				return match, err
			}
		}
	}
	return nil, ctx.Err()
}

// checkApps fetches the keys of a batch of apps concurrently and returns
// the first app, in batch order, that owns apiKey.
func (c *Client) checkApps(ctx context.Context, ws Workspace, apps []App, apiKey string) (*AppMatch, error) {
	found := make([]bool, len(apps))
	var wg sync.WaitGroup
	for i, app := range apps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			keys, err := c.APIKeys(ctx, app.Key(), ws.Key())
			if err != nil {
				c.log.Debug().Err(err).Str("app", shortID(app.Key())).Msg("api keys fetch failed")
				return
			}
			for _, obj := range keys {
				if slices.Contains(keyValues(obj), apiKey) {
					found[i] = true
					return
				}
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i, ok := range found {
		if ok {
			return &AppMatch{
				AppID:       apps[i].Key(),
				AppName:     apps[i].DisplayName(),
				AppMode:     apps[i].Mode,
				WorkspaceID: ws.Key(),
			}, nil
		}
	}
	return nil, nil
}
