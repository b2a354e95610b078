package dify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/agentdesk/internal/config"
	"github.com/soyeahso/agentdesk/internal/logging"
)

// fakeConsole serves a small console: workspaces with apps, each app with
// one key object.
type fakeConsole struct {
	t          *testing.T
	workspaces []Workspace
	apps       map[string][]App     // workspace id -> apps
	keys       map[string]any       // app id -> key payload
	details    map[string]AppDetails // app id -> details

	mu       sync.Mutex
	switches []string
	logins   atomic.Int32
	posted   map[string]json.RawMessage
	deleted  []string
	failApps map[string]bool
}

func newFakeConsole(t *testing.T) *fakeConsole {
	return &fakeConsole{
		t:        t,
		apps:     map[string][]App{},
		keys:     map[string]any{},
		details:  map[string]AppDetails{},
		posted:   map[string]json.RawMessage{},
		failApps: map[string]bool{},
	}
}

func (f *fakeConsole) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if path == "/console/api/login" {
		f.logins.Add(1)
		w.Write([]byte(`{"data":{"access_token":"tok"}}`))
		return
	}
	if path == "/v1/chat-messages" {
		if r.Header.Get("Authorization") != "Bearer app-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.ResponseMode == ModeStreaming {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, "data: {\"event\":\"message\",\"answer\":\"he\",\"conversation_id\":\"c2\"}\n\n")
			fmt.Fprint(w, "event: ping\n\n")
			fmt.Fprint(w, "data: {\"event\":\"message\",\"answer\":\"llo\"}\n\n")
			fmt.Fprint(w, "data: {\"event\":\"message_end\",\"message_id\":\"m1\"}\n\n")
			return
		}
		fmt.Fprintf(w, `{"answer":"echo: %s","conversation_id":"c1"}`, req.Query)
		return
	}
	if r.Header.Get("Authorization") != "Bearer tok" {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"unauthorized"}`))
		return
	}

	switch {
	case path == "/console/api/workspaces":
		json.NewEncoder(w).Encode(map[string]any{"data": f.workspaces})
	case path == "/console/api/workspaces/switch":
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.switches = append(f.switches, body["tenant_id"])
		f.mu.Unlock()
		w.Write([]byte(`{"result":"success"}`))
	case path == "/console/api/apps":
		ws := r.Header.Get("X-Workspace-Id")
		if f.failApps[ws] {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		all := f.apps[ws]
		start := min((page-1)*limit, len(all))
		end := min(start+limit, len(all))
		json.NewEncoder(w).Encode(map[string]any{"data": all[start:end], "total": len(all)})
	case path == "/console/api/datasets":
		w.Write([]byte(`{"data":[{"id":"kb1","name":"Docs","embedding_available":true,"created_at":1700000000},{"id":"kb2","name":"Raw"}]}`))
	case strings.HasSuffix(path, "/api-keys"):
		id := strings.TrimSuffix(strings.TrimPrefix(path, "/console/api/apps/"), "/api-keys")
		payload, ok := f.keys[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(payload)
	case strings.HasSuffix(path, "/model-config"):
		id := strings.TrimSuffix(strings.TrimPrefix(path, "/console/api/apps/"), "/model-config")
		var raw json.RawMessage
		json.NewDecoder(r.Body).Decode(&raw)
		f.mu.Lock()
		f.posted[id] = raw
		f.mu.Unlock()
		w.Write([]byte(`{"result":"success"}`))
	case strings.HasPrefix(path, "/console/api/apps/"):
		id := strings.TrimPrefix(path, "/console/api/apps/")
		if r.Method == http.MethodDelete {
			f.mu.Lock()
			f.deleted = append(f.deleted, id)
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
			return
		}
		d, ok := f.details[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"data": d})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, f *fakeConsole, mutate func(*config.DifyConfig)) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	cfg := config.DifyConfig{
		ConsoleOrigin:  srv.URL,
		APIURL:         srv.URL + "/v1",
		AdminEmail:     "admin@test",
		AdminPassword:  "pw",
		PageLimit:      2,
		MaxPages:       10,
		WorkspaceBatch: 3,
		AppBatch:       5,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg, logging.New(nil, "silent"))
}

func appsNamed(prefix string, n int) []App {
	apps := make([]App, n)
	for i := range apps {
		apps[i] = App{ID: fmt.Sprintf("%s-%d", prefix, i), Name: fmt.Sprintf("%s app %d", prefix, i), Mode: "chat"}
	}
	return apps
}

func TestLogin_TokenFallbacks(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"data":{"access_token":"a"}}`, "a"},
		{`{"access_token":"b"}`, "b"},
		{`{"data":{"token":"c"}}`, "c"},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(tt.body))
		}))
		c := New(config.DifyConfig{ConsoleOrigin: srv.URL}, logging.New(nil, "silent"))
		tok, err := c.Login(context.Background())
		require.NoError(t, err)
		assert.Equal(t, tt.want, tok)
		srv.Close()
	}
}

func TestLogin_NoToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()
	c := New(config.DifyConfig{ConsoleOrigin: srv.URL}, logging.New(nil, "silent"))
	_, err := c.Login(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestLogin_NotConfigured(t *testing.T) {
	c := New(config.DifyConfig{}, logging.New(nil, "silent"))
	_, err := c.Login(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestTokenIsCached(t *testing.T) {
	f := newFakeConsole(t)
	c := newTestClient(t, f, nil)
	_, err := c.Workspaces(context.Background())
	require.NoError(t, err)
	_, err = c.Workspaces(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.logins.Load())
}

func TestScan_PagesAndCaps(t *testing.T) {
	f := newFakeConsole(t)
	f.apps["ws1"] = appsNamed("a", 5)
	f.apps["ws2"] = appsNamed("b", 1)
	c := newTestClient(t, f, nil)

	var pages []Page
	for page, err := range c.Scan(context.Background(), []Workspace{{ID: "ws1"}, {TenantID: "ws2"}}) {
		require.NoError(t, err)
		pages = append(pages, page)
	}
	require.Len(t, pages, 4)
	assert.Equal(t, []int{1, 2, 3, 1}, []int{pages[0].Number, pages[1].Number, pages[2].Number, pages[3].Number})
	assert.True(t, pages[0].HasMore)
	assert.False(t, pages[2].HasMore)
	assert.Equal(t, "ws2", pages[3].Workspace.Key())
	assert.Equal(t, []string{"ws1", "ws2"}, f.switches)
}

func TestScan_PageCap(t *testing.T) {
	f := newFakeConsole(t)
	f.apps["ws1"] = appsNamed("a", 20)
	c := newTestClient(t, f, func(cfg *config.DifyConfig) { cfg.MaxPages = 3 })

	n := 0
	for _, err := range c.Scan(context.Background(), []Workspace{{ID: "ws1"}}) {
		require.NoError(t, err)
		n++
	}
	assert.Equal(t, 3, n)
}

func TestScan_WorkspaceCap(t *testing.T) {
	f := newFakeConsole(t)
	for _, id := range []string{"w1", "w2", "w3"} {
		f.apps[id] = appsNamed(id, 1)
	}
	c := newTestClient(t, f, func(cfg *config.DifyConfig) { cfg.MaxWorkspaces = 2 })

	var seen []string
	for page, err := range c.Scan(context.Background(), []Workspace{{ID: "w1"}, {ID: "w2"}, {ID: "w3"}}) {
		require.NoError(t, err)
		seen = append(seen, page.Workspace.Key())
	}
	assert.Equal(t, []string{"w1", "w2"}, seen)
}

func TestScan_StopsOnBreak(t *testing.T) {
	f := newFakeConsole(t)
	f.apps["ws1"] = appsNamed("a", 10)
	c := newTestClient(t, f, nil)

	n := 0
	for range c.Scan(context.Background(), []Workspace{{ID: "ws1"}}) {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestScan_Cancelled(t *testing.T) {
	f := newFakeConsole(t)
	f.apps["ws1"] = appsNamed("a", 1)
	c := newTestClient(t, f, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var errs []error
	for _, err := range c.Scan(ctx, []Workspace{{ID: "ws1"}}) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], context.Canceled)
	assert.Empty(t, f.switches)
}

func TestScan_FailedListingEndsWorkspace(t *testing.T) {
	f := newFakeConsole(t)
	f.failApps["bad"] = true
	f.apps["good"] = appsNamed("g", 1)
	c := newTestClient(t, f, nil)

	var errCount, pageCount int
	for _, err := range c.Scan(context.Background(), []Workspace{{ID: "bad"}, {ID: "good"}}) {
		if err != nil {
			errCount++
			continue
		}
		pageCount++
	}
	assert.Equal(t, 1, errCount)
	assert.Equal(t, 1, pageCount)
}

func TestDiscover(t *testing.T) {
	f := newFakeConsole(t)
	f.workspaces = []Workspace{{ID: "ws1", Name: "One"}, {ID: "ws2", Name: "Two"}}
	f.apps["ws1"] = appsNamed("a", 3)
	f.apps["ws2"] = []App{{AppID: "x", AppName: "Legacy"}, {ID: "y"}}
	c := newTestClient(t, f, nil)

	agents, err := c.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, agents, 5)
	assert.Equal(t, "a-0", agents[0].AppID)
	assert.Equal(t, "One", agents[0].WorkspaceName)
	assert.Equal(t, "x", agents[3].AppID)
	assert.Equal(t, "Legacy", agents[3].AppName)
	assert.Equal(t, "Unnamed Agent", agents[4].AppName)
	assert.Equal(t, "ws2", agents[4].WorkspaceID)
}

func TestKeyValues(t *testing.T) {
	obj := map[string]any{"id": "k-id", "token": " app-123 ", "key": "app-123", "value": 7}
	assert.Equal(t, []string{"app-123", "k-id"}, keyValues(obj))
}

func TestParseKeyObjects(t *testing.T) {
	list, err := parseKeyObjects(json.RawMessage(`{"data":[{"token":"a"},{"token":"b"}]}`))
	require.NoError(t, err)
	assert.Len(t, list, 2)

	single, err := parseKeyObjects(json.RawMessage(`{"api_key":"z"}`))
	require.NoError(t, err)
	require.Len(t, single, 1)
	assert.Equal(t, "z", single[0]["api_key"])
}

func TestFindAppByKey_DefaultWorkspaceFirst(t *testing.T) {
	f := newFakeConsole(t)
	f.workspaces = []Workspace{{ID: "other"}, {ID: "home"}}
	f.apps["home"] = appsNamed("h", 3)
	f.keys["h-2"] = map[string]any{"data": []any{map[string]any{"token": "app-secret"}}}
	c := newTestClient(t, f, func(cfg *config.DifyConfig) { cfg.WorkspaceID = "home" })

	match, err := c.FindAppByKey(context.Background(), "  app-secret ")
	require.NoError(t, err)
	assert.Equal(t, "h-2", match.AppID)
	assert.Equal(t, "home", match.WorkspaceID)
	assert.Equal(t, 1, match.Searched)
	assert.Equal(t, []string{"home"}, f.switches)
}

func TestFindAppByKey_SearchesOtherWorkspaces(t *testing.T) {
	f := newFakeConsole(t)
	f.workspaces = []Workspace{{ID: "home"}, {ID: "w1"}, {ID: "w2"}, {ID: "w3"}, {ID: "w4"}}
	for _, ws := range []string{"home", "w1", "w2", "w3", "w4"} {
		f.apps[ws] = appsNamed(ws, 2)
	}
	f.keys["w4-1"] = []any{map[string]any{"secret_key": "needle"}}
	c := newTestClient(t, f, func(cfg *config.DifyConfig) { cfg.WorkspaceID = "home" })

	match, err := c.FindAppByKey(context.Background(), "needle")
	require.NoError(t, err)
	assert.Equal(t, "w4-1", match.AppID)
	assert.Equal(t, "w4", match.WorkspaceID)
	assert.Equal(t, 5, match.Searched)
}

func TestFindAppByKey_NotFound(t *testing.T) {
	f := newFakeConsole(t)
	f.workspaces = []Workspace{{ID: "w1"}}
	f.apps["w1"] = appsNamed("a", 2)
	f.keys["a-0"] = map[string]any{"token": "other"}
	c := newTestClient(t, f, nil)

	_, err := c.FindAppByKey(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrAppNotFound)
}

func TestFindAppByKey_EmptyKey(t *testing.T) {
	c := newTestClient(t, newFakeConsole(t), nil)
	_, err := c.FindAppByKey(context.Background(), " ")
	assert.Error(t, err)
}

func TestAppAndFirstKey(t *testing.T) {
	f := newFakeConsole(t)
	f.details["app1"] = AppDetails{ID: "app1", Name: "Support Bot", APIServer: "https://api.test/v1"}
	f.keys["app1"] = map[string]any{"data": []any{map[string]any{"id": "key-id", "token": "app-tok"}}}
	c := newTestClient(t, f, nil)

	d, err := c.App(context.Background(), "app1", "ws")
	require.NoError(t, err)
	assert.Equal(t, "Support Bot", d.Name)
	assert.Equal(t, "https://api.test", d.ServiceOrigin())

	key, err := c.FirstAPIKey(context.Background(), "app1", "ws")
	require.NoError(t, err)
	assert.Equal(t, "app-tok", key)

	_, err = c.App(context.Background(), "missing", "ws")
	assert.True(t, IsNotFound(err))
}

func TestUpdateModelConfig(t *testing.T) {
	f := newFakeConsole(t)
	c := newTestClient(t, f, nil)

	ds := EmptyDatasets()
	ds.Datasets.Datasets = append(ds.Datasets.Datasets, DatasetRef{Dataset: DatasetToggle{Enabled: true, ID: "kb1"}})
	cfg := NewModelConfig("langgenius/openai/openai", "gpt-4o", "Be brief.", ds)
	require.NoError(t, c.UpdateModelConfig(context.Background(), "app1", cfg))

	var posted map[string]any
	require.NoError(t, json.Unmarshal(f.posted["app1"], &posted))
	assert.Equal(t, "Be brief.", posted["pre_prompt"])
	model := posted["model"].(map[string]any)
	assert.Equal(t, "langgenius/openai/openai", model["provider"])
	assert.Equal(t, "chat", model["mode"])
	assert.Equal(t, 0.3, model["completion_params"].(map[string]any)["temperature"])
	dsc := posted["dataset_configs"].(map[string]any)
	assert.Equal(t, "single", dsc["retrieval_model"])
	assert.Equal(t, float64(4), dsc["top_k"])

	assert.Error(t, c.UpdateModelConfig(context.Background(), "", cfg))
}

func TestDatasets(t *testing.T) {
	c := newTestClient(t, newFakeConsole(t), nil)
	ds, err := c.Datasets(context.Background())
	require.NoError(t, err)
	require.Len(t, ds, 2)
	assert.Equal(t, "ready", ds[0].Status)
	assert.Equal(t, 2023, ds[0].CreatedAt.Year())
	assert.Equal(t, "processing", ds[1].Status)
	assert.Equal(t, "only_me", ds[1].Permission)
}

func TestDeleteApp(t *testing.T) {
	f := newFakeConsole(t)
	c := newTestClient(t, f, nil)
	require.NoError(t, c.DeleteApp(context.Background(), "app9"))
	assert.Equal(t, []string{"app9"}, f.deleted)
}

func TestChat(t *testing.T) {
	c := newTestClient(t, newFakeConsole(t), nil)
	resp, err := c.Chat(context.Background(), "app-key", ChatRequest{Query: "hi"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", resp.Answer)
	assert.Equal(t, "c1", resp.ConversationID)

	_, err = c.Chat(context.Background(), "wrong", ChatRequest{Query: "hi"}, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)

	_, err = c.Chat(context.Background(), "app-key", ChatRequest{}, nil)
	assert.Error(t, err)
}

func TestChat_Streaming(t *testing.T) {
	c := newTestClient(t, newFakeConsole(t), nil)
	var chunks []string
	resp, err := c.Chat(context.Background(), "app-key", ChatRequest{Query: "hi", ResponseMode: ModeStreaming}, func(s string) {
		chunks = append(chunks, s)
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Answer)
	assert.Equal(t, "c2", resp.ConversationID)
	assert.Equal(t, "m1", resp.MessageID)
	assert.Equal(t, []string{"he", "llo"}, chunks)
}

func TestUnauthorizedDropsToken(t *testing.T) {
	f := newFakeConsole(t)
	c := newTestClient(t, f, nil)
	c.token = "stale"

	_, err := c.Workspaces(context.Background())
	require.Error(t, err)
	assert.Empty(t, c.token)

	_, err = c.Workspaces(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.logins.Load())
}
