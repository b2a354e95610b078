package config

import (
	"fmt"
	"net/url"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}
	oneOf := func(path, value string, valid []string) {
		if value != "" && !slices.Contains(valid, value) {
			add(path, "must be one of %v, got %q", valid, value)
		}
	}

	// Gateway
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		add("gateway.port", "port must be 0-65535, got %d", cfg.Gateway.Port)
	}
	oneOf("gateway.bind", cfg.Gateway.Bind, []string{"auto", "lan", "loopback", "custom"})
	oneOf("gateway.auth.mode", cfg.Gateway.Auth.Mode, []string{"token", "password", "jwt"})
	if cfg.Gateway.Auth.Mode == "jwt" && cfg.Auth.JWTSecret == "" {
		add("auth.jwtSecret", "required when gateway.auth.mode is jwt")
	}
	if cfg.Gateway.TLS.Enabled && (cfg.Gateway.TLS.CertPath == "" || cfg.Gateway.TLS.KeyPath == "") {
		add("gateway.tls", "certPath and keyPath are required when TLS is enabled")
	}

	// Logging
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	oneOf("logging.level", cfg.Logging.Level, validLogLevels)
	oneOf("logging.consoleStyle", cfg.Logging.ConsoleStyle, []string{"pretty", "compact", "json"})

	// Collaborator endpoints
	checkURL := func(path, raw string) {
		if raw == "" {
			return
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			add(path, "must be an absolute URL, got %q", raw)
		}
	}
	checkURL("backend.url", cfg.Backend.URL)
	checkURL("backend.chatbotApiUrl", cfg.Backend.ChatbotAPIURL)
	checkURL("dify.consoleOrigin", cfg.Dify.ConsoleOrigin)
	checkURL("dify.apiUrl", cfg.Dify.APIURL)
	if cfg.Backend.URL != "" && cfg.Backend.APIKey == "" {
		add("backend.apiKey", "required when backend.url is set")
	}
	if cfg.Dify.ConsoleOrigin != "" && (cfg.Dify.AdminEmail == "" || cfg.Dify.AdminPassword == "") {
		add("dify.adminEmail", "admin credentials are required when dify.consoleOrigin is set")
	}

	positive := map[string]int{
		"backend.timeoutSeconds":       cfg.Backend.TimeoutSeconds,
		"backend.deleteTimeoutSeconds": cfg.Backend.DeleteTimeoutSeconds,
		"dify.pageLimit":               cfg.Dify.PageLimit,
		"dify.maxPages":                cfg.Dify.MaxPages,
		"dify.maxWorkspaces":           cfg.Dify.MaxWorkspaces,
		"dify.workspaceBatch":          cfg.Dify.WorkspaceBatch,
		"dify.appBatch":                cfg.Dify.AppBatch,
		"dify.loginTimeoutSeconds":     cfg.Dify.LoginTimeoutSeconds,
		"dify.fetchTimeoutSeconds":     cfg.Dify.FetchTimeoutSeconds,
		"autosave.debounceMs":          cfg.Autosave.DebounceMs,
		"autosave.cooldownMs":          cfg.Autosave.CooldownMs,
		"call.connectingMs":            cfg.Call.ConnectingMs,
		"lease.ttlMs":                  cfg.Lease.TTLMs,
		"cleanup.companionTimeoutMs":   cfg.Cleanup.CompanionTimeoutMs,
	}
	keys := make([]string, 0, len(positive))
	for k := range positive {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if positive[k] < 0 {
			add(k, "must not be negative, got %d", positive[k])
		}
	}
	if cfg.Call.MaxDurationSeconds < 0 {
		add("call.maxDurationSeconds", "must not be negative, got %d", cfg.Call.MaxDurationSeconds)
	}

	// Auto-save
	oneOf("autosave.switchPolicy", cfg.Autosave.SwitchPolicy, []string{"flush", "cancel"})

	// Storage
	oneOf("storage.durable", cfg.Storage.Durable, []string{"sqlite", "redis", "memory"})
	oneOf("storage.session", cfg.Storage.Session, []string{"memory"})
	if cfg.Storage.Durable == "redis" && cfg.Storage.Redis.Addr == "" {
		add("storage.redis.addr", "required when storage.durable is redis")
	}

	// Plugins
	for i, wh := range cfg.Plugins.Webhooks {
		path := fmt.Sprintf("plugins.webhooks[%d]", i)
		if wh.URL == "" {
			add(path+".url", "is required")
		} else {
			checkURL(path+".url", wh.URL)
		}
		if wh.TimeoutMs < 0 {
			add(path+".timeoutMs", "must not be negative, got %d", wh.TimeoutMs)
		}
	}

	// Telemetry
	if cfg.Telemetry.Enabled && cfg.Telemetry.OTLPEndpoint == "" {
		add("telemetry.otlpEndpoint", "required when telemetry is enabled")
	}

	return issues
}
