package config

import (
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

const defaultBaseDir = ".agentdesk"

// Paths holds resolved filesystem paths for agentdesk data.
type Paths struct {
	Base   string // ~/.agentdesk
	Config string // ~/.agentdesk/config.yaml
	Data   string // ~/.agentdesk/data
	Logs   string // ~/.agentdesk/logs
}

// ResolvePaths computes all standard paths from the home directory.
// If AGENTDESK_HOME is set, it overrides the default base directory.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("AGENTDESK_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}

	return Paths{
		Base:   base,
		Config: filepath.Join(base, "config.yaml"),
		Data:   filepath.Join(base, "data"),
		Logs:   filepath.Join(base, "logs"),
	}, nil
}

// DatabasePath is where the sqlite durable tier lives.
func (p Paths) DatabasePath() string {
	return filepath.Join(p.Data, "agentdesk.db")
}

// EnsureDirs creates all standard directories if they don't exist.
func (p Paths) EnsureDirs() error {
	for _, d := range []string{p.Base, p.Data, p.Logs} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}

// blockedKeys are keys that must never appear in config paths.
var blockedKeys = map[string]bool{
	"__proto__":   true,
	"prototype":   true,
	"constructor": true,
}

// ParseConfigPath splits a dot-separated config path into segments.
// Returns an error if any segment is blocked or empty.
func ParseConfigPath(raw string) ([]string, error) {
	if raw == "" {
		return nil, &ConfigError{Message: "empty config path"}
	}
	parts := strings.Split(raw, ".")
	for _, p := range parts {
		if p == "" {
			return nil, &ConfigError{Message: "config path contains empty segment"}
		}
		if blockedKeys[p] {
			return nil, &ConfigError{Message: "config path contains blocked key: " + p}
		}
	}
	return parts, nil
}

// GetValueAtPath traverses nested maps and lists. A segment addressing a
// list must be a decimal index.
func GetValueAtPath(root map[string]any, path []string) (any, bool) {
	current := any(root)
	for _, key := range path {
		switch node := current.(type) {
		case map[string]any:
			v, ok := node[key]
			if !ok {
				return nil, false
			}
			current = v
		case []any:
			i, ok := listIndex(node, key)
			if !ok {
				return nil, false
			}
			current = node[i]
		default:
			return nil, false
		}
	}
	return current, true
}

// SetValueAtPath sets a value, creating intermediate maps as needed. An
// index equal to a list's length appends.
func SetValueAtPath(root map[string]any, path []string, value any) {
	setAt(root, path, value)
}

func setAt(node any, path []string, value any) any {
	if len(path) == 0 {
		return value
	}
	key, rest := path[0], path[1:]
	if list, ok := node.([]any); ok {
		if i, err := strconv.Atoi(key); err == nil && i >= 0 && i <= len(list) {
			if i == len(list) {
				list = append(list, nil)
			}
			list[i] = setAt(list[i], rest, value)
			return list
		}
	}
	m, ok := node.(map[string]any)
	if !ok {
		m = map[string]any{}
	}
	m[key] = setAt(m[key], rest, value)
	return m
}

// UnsetValueAtPath removes the value at path. Returns true if removed.
func UnsetValueAtPath(root map[string]any, path []string) bool {
	parent, ok := GetValueAtPath(root, path[:len(path)-1])
	if !ok {
		return false
	}
	last := path[len(path)-1]
	switch node := parent.(type) {
	case map[string]any:
		if _, ok := node[last]; !ok {
			return false
		}
		delete(node, last)
		return true
	case []any:
		i, ok := listIndex(node, last)
		if !ok {
			return false
		}
		// a slice cannot shrink in place, so the parent slot gets the copy
		SetValueAtPath(root, path[:len(path)-1], slices.Delete(slices.Clone(node), i, i+1))
		return true
	}
	return false
}

func listIndex(list []any, key string) (int, bool) {
	i, err := strconv.Atoi(key)
	if err != nil || i < 0 || i >= len(list) {
		return 0, false
	}
	return i, true
}
