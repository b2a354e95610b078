package dify

import (
	"context"
	"fmt"
	"iter"
	"net/http"

	"github.com/soyeahso/agentdesk/internal/domain"
)

// Workspace is a console tenant.
type Workspace struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
}

// Key is the workspace id, whichever field carries it.
func (w Workspace) Key() string {
	if w.ID != "" {
		return w.ID
	}
	return w.TenantID
}

// App is one entry of the apps listing.
type App struct {
	ID      string `json:"id"`
	AppID   string `json:"app_id"`
	Name    string `json:"name"`
	AppName string `json:"app_name"`
	Mode    string `json:"mode"`
}

// Key is the app id, whichever field carries it.
func (a App) Key() string {
	if a.ID != "" {
		return a.ID
	}
	return a.AppID
}

// DisplayName is the app name or a placeholder.
func (a App) DisplayName() string {
	switch {
	case a.Name != "":
		return a.Name
	case a.AppName != "":
		return a.AppName
	}
	return "Unnamed Agent"
}

// Page is one page of apps from one workspace.
type Page struct {
	Workspace Workspace
	Number    int
	Apps      []App
	Total     int
	HasMore   bool
}

// Workspaces lists every workspace visible to the admin user.
func (c *Client) Workspaces(ctx context.Context) ([]Workspace, error) {
	var reply struct {
		Data       []Workspace `json:"data"`
		Workspaces []Workspace `json:"workspaces"`
	}
	if _, err := c.console(ctx, http.MethodGet, "/console/api/workspaces", "", nil, &reply); err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	if len(reply.Data) > 0 {
		return reply.Data, nil
	}
	return reply.Workspaces, nil
}

// SwitchWorkspace makes id the admin user's current workspace. The switch
// is stateful on the console side.
func (c *Client) SwitchWorkspace(ctx context.Context, id string) error {
	body := map[string]string{"tenant_id": id}
	if _, err := c.console(ctx, http.MethodPost, "/console/api/workspaces/switch", "", body, nil); err != nil {
		return fmt.Errorf("switch workspace %s: %w", shortID(id), err)
	}
	return nil
}

// ListApps fetches one page of apps in a workspace.
func (c *Client) ListApps(ctx context.Context, ws Workspace, page int) (Page, error) {
	limit := c.pageLimit
	if limit <= 0 {
		limit = 100
	}
	path := fmt.Sprintf("/console/api/apps?page=%d&limit=%d", page, limit)

	var reply struct {
		Data  []App `json:"data"`
		Total int   `json:"total"`
	}
	if _, err := c.console(ctx, http.MethodGet, path, ws.Key(), nil, &reply); err != nil {
		return Page{Workspace: ws, Number: page}, fmt.Errorf("list apps in workspace %s: %w", shortID(ws.Key()), err)
	}
	return Page{
		Workspace: ws,
		Number:    page,
		Apps:      reply.Data,
		Total:     reply.Total,
		HasMore:   len(reply.Data) == limit && page*limit < reply.Total,
	}, nil
}

// Scan walks workspaces in order: switch into each, then page through its
// apps up to the page cap. At most the workspace cap is visited. A failed
// page is yielded with its error and ends that workspace; the walk stops
// when the consumer breaks or ctx is done.
func (c *Client) Scan(ctx context.Context, workspaces []Workspace) iter.Seq2[Page, error] {
	maxPages := c.maxPages
	if maxPages <= 0 {
		maxPages = 10
	}
	if c.maxWorkspaces > 0 && len(workspaces) > c.maxWorkspaces {
		workspaces = workspaces[:c.maxWorkspaces]
	}

	return func(yield func(Page, error) bool) {
		for _, ws := range workspaces {
			if ws.Key() == "" {
				continue
			}
			if err := ctx.Err(); err != nil {
				yield(Page{Workspace: ws}, err)
				return
			}
			if err := c.SwitchWorkspace(ctx, ws.Key()); err != nil {
				c.log.Warn().Err(err).Msg("workspace switch failed")
			}

			for n := 1; n <= maxPages; n++ {
				if err := ctx.Err(); err != nil {
					yield(Page{Workspace: ws, Number: n}, err)
					return
				}
				page, err := c.ListApps(ctx, ws, n)
				if err != nil {
					if !yield(page, err) {
						return
					}
					break
				}
				if len(page.Apps) == 0 {
					break
				}
				if !yield(page, nil) {
					return
				}
				if !page.HasMore {
					break
				}
			}
		}
	}
}

// Discover lists every app across all workspaces as association candidates.
// Per-workspace failures are logged and skipped.
func (c *Client) Discover(ctx context.Context) ([]domain.AvailableAgent, error) {
	workspaces, err := c.Workspaces(ctx)
	if err != nil {
		return nil, err
	}

	var out []domain.AvailableAgent
	for page, err := range c.Scan(ctx, workspaces) {
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Warn().Err(err).Str("workspace", shortID(page.Workspace.Key())).Msg("skipping workspace")
			continue
		}
		for _, app := range page.Apps {
			out = append(out, domain.AvailableAgent{
				AppID:         app.Key(),
				AppName:       app.DisplayName(),
				WorkspaceID:   page.Workspace.Key(),
				WorkspaceName: page.Workspace.Name,
				Mode:          app.Mode,
			})
		}
	}
	c.log.Info().Int("apps", len(out)).Int("workspaces", len(workspaces)).Msg("discovered apps")
	return out, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8] + "..."
	}
	return id
}
