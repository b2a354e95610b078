package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePaths_HomeOverride(t *testing.T) {
	base := t.TempDir()
	t.Setenv("AGENTDESK_HOME", base)

	p, err := ResolvePaths()
	require.NoError(t, err)
	assert.Equal(t, base, p.Base)
	assert.Equal(t, filepath.Join(base, "config.yaml"), p.Config)
	assert.Equal(t, filepath.Join(base, "data", "agentdesk.db"), p.DatabasePath())
}

func TestResolvePaths_DefaultBase(t *testing.T) {
	t.Setenv("AGENTDESK_HOME", "")
	p, err := ResolvePaths()
	require.NoError(t, err)
	assert.Equal(t, defaultBaseDir, filepath.Base(p.Base))
}

func TestEnsureDirs(t *testing.T) {
	t.Setenv("AGENTDESK_HOME", filepath.Join(t.TempDir(), "nested"))
	p, err := ResolvePaths()
	require.NoError(t, err)
	require.NoError(t, p.EnsureDirs())

	for _, d := range []string{p.Base, p.Data, p.Logs} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestParseConfigPath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr bool
	}{
		{"single segment", "autosave", []string{"autosave"}, false},
		{"two segments", "autosave.debounceMs", []string{"autosave", "debounceMs"}, false},
		{"empty", "", nil, true},
		{"empty segment", "dify..pageLimit", nil, true},
		{"trailing dot", "dify.", nil, true},
		{"blocked __proto__", "foo.__proto__.bar", nil, true},
		{"blocked constructor", "constructor", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConfigPath(tt.input)
			if tt.wantErr {
				var ce *ConfigError
				assert.ErrorAs(t, err, &ce)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValueAtPath(t *testing.T) {
	root := map[string]any{
		"dify": map[string]any{"pageLimit": 100},
		"flat": "value",
	}

	v, ok := GetValueAtPath(root, []string{"dify", "pageLimit"})
	assert.True(t, ok)
	assert.Equal(t, 100, v)

	_, ok = GetValueAtPath(root, []string{"flat", "deeper"})
	assert.False(t, ok)

	SetValueAtPath(root, []string{"call", "connectingMs"}, 2500)
	v, ok = GetValueAtPath(root, []string{"call", "connectingMs"})
	assert.True(t, ok)
	assert.Equal(t, 2500, v)

	SetValueAtPath(root, []string{"flat", "nested"}, true)
	v, _ = GetValueAtPath(root, []string{"flat", "nested"})
	assert.Equal(t, true, v)

	assert.True(t, UnsetValueAtPath(root, []string{"dify", "pageLimit"}))
	assert.False(t, UnsetValueAtPath(root, []string{"dify", "pageLimit"}))
	assert.False(t, UnsetValueAtPath(root, []string{"missing", "x"}))
}

func TestValueAtPath_Lists(t *testing.T) {
	root := map[string]any{
		"plugins": map[string]any{
			"webhooks": []any{
				map[string]any{"url": "https://a.example.com"},
			},
		},
	}

	v, ok := GetValueAtPath(root, []string{"plugins", "webhooks", "0", "url"})
	require.True(t, ok)
	assert.Equal(t, "https://a.example.com", v)

	_, ok = GetValueAtPath(root, []string{"plugins", "webhooks", "1"})
	assert.False(t, ok)
	_, ok = GetValueAtPath(root, []string{"plugins", "webhooks", "first"})
	assert.False(t, ok)

	SetValueAtPath(root, []string{"plugins", "webhooks", "1", "url"}, "https://b.example.com")
	hooks, _ := GetValueAtPath(root, []string{"plugins", "webhooks"})
	require.Len(t, hooks, 2)

	SetValueAtPath(root, []string{"plugins", "webhooks", "0", "timeoutMs"}, 800)
	v, _ = GetValueAtPath(root, []string{"plugins", "webhooks", "0", "timeoutMs"})
	assert.Equal(t, 800, v)

	assert.True(t, UnsetValueAtPath(root, []string{"plugins", "webhooks", "0"}))
	v, _ = GetValueAtPath(root, []string{"plugins", "webhooks", "0", "url"})
	assert.Equal(t, "https://b.example.com", v)
	assert.False(t, UnsetValueAtPath(root, []string{"plugins", "webhooks", "5"}))
}
