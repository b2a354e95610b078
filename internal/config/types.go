package config

import "time"

// Config is the root configuration for agentdesk.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
	Backend  BackendConfig  `yaml:"backend,omitempty"`
	Dify     DifyConfig     `yaml:"dify,omitempty"`
	Autosave AutosaveConfig `yaml:"autosave,omitempty"`
	Sync     SyncConfig     `yaml:"sync,omitempty"`
	Call     CallConfig     `yaml:"call,omitempty"`
	Lease    LeaseConfig    `yaml:"lease,omitempty"`
	Storage  StorageConfig  `yaml:"storage,omitempty"`
	Auth     AuthConfig     `yaml:"auth,omitempty"`
	Metrics  MetricsConfig  `yaml:"metrics,omitempty"`
	Cleanup  CleanupConfig  `yaml:"cleanup,omitempty"`
	Plugins  PluginsConfig  `yaml:"plugins,omitempty"`

	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`
}

// GatewayConfig controls the dashboard HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int              `yaml:"port,omitempty"`
	Bind           string           `yaml:"bind,omitempty"` // "auto" | "lan" | "loopback" | "custom"
	CustomBindHost string           `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth      `yaml:"auth,omitempty"`
	TLS            GatewayTLS       `yaml:"tls,omitempty"`
	ControlUI      GatewayControlUI `yaml:"controlUi,omitempty"`
}

// GatewayAuth configures gateway authentication.
type GatewayAuth struct {
	Mode     string `yaml:"mode,omitempty"` // "token" | "password" | "jwt"
	Token    string `yaml:"token,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// GatewayTLS configures TLS for the gateway.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// GatewayControlUI configures which browser origins may call the gateway.
type GatewayControlUI struct {
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"`        // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "compact" | "json"
}

// BackendConfig points at the agent-configuration REST API.
type BackendConfig struct {
	URL                  string `yaml:"url,omitempty"`
	APIKey               string `yaml:"apiKey,omitempty"`
	ChatbotAPIURL        string `yaml:"chatbotApiUrl,omitempty"` // fallback chatbot_api for associated agents
	TimeoutSeconds       int    `yaml:"timeoutSeconds,omitempty"`
	DeleteTimeoutSeconds int    `yaml:"deleteTimeoutSeconds,omitempty"`
}

// DifyConfig points at the chatbot-provisioning console and its app API.
type DifyConfig struct {
	ConsoleOrigin       string `yaml:"consoleOrigin,omitempty"`
	APIURL              string `yaml:"apiUrl,omitempty"`
	AdminEmail          string `yaml:"adminEmail,omitempty"`
	AdminPassword       string `yaml:"adminPassword,omitempty"`
	WorkspaceID         string `yaml:"workspaceId,omitempty"`
	PageLimit           int    `yaml:"pageLimit,omitempty"`
	MaxPages            int    `yaml:"maxPages,omitempty"`
	MaxWorkspaces       int    `yaml:"maxWorkspaces,omitempty"`
	WorkspaceBatch      int    `yaml:"workspaceBatch,omitempty"`
	AppBatch            int    `yaml:"appBatch,omitempty"`
	LoginTimeoutSeconds int    `yaml:"loginTimeoutSeconds,omitempty"`
	FetchTimeoutSeconds int    `yaml:"fetchTimeoutSeconds,omitempty"`
}

// AutosaveConfig controls the editing session's debounced saves.
type AutosaveConfig struct {
	Enabled      *bool  `yaml:"enabled,omitempty"`
	DebounceMs   int    `yaml:"debounceMs,omitempty"`
	CooldownMs   int    `yaml:"cooldownMs,omitempty"`
	SwitchPolicy string `yaml:"switchPolicy,omitempty"` // "flush" | "cancel"
}

// SyncConfig controls the agent list synchronization.
type SyncConfig struct {
	FallbackAgents *bool `yaml:"fallbackAgents,omitempty"`
}

// CallConfig controls the voice call toggler.
type CallConfig struct {
	ConnectingMs       int `yaml:"connectingMs,omitempty"`
	MaxDurationSeconds int `yaml:"maxDurationSeconds,omitempty"` // 0 disables the limit
}

// LeaseConfig controls how long a local edit shields a field from remote loads.
type LeaseConfig struct {
	TTLMs int `yaml:"ttlMs,omitempty"`
}

// StorageConfig selects the persistence tiers.
type StorageConfig struct {
	Durable string      `yaml:"durable,omitempty"` // "sqlite" | "redis" | "memory"
	Session string      `yaml:"session,omitempty"` // "memory"
	Redis   RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig configures the redis durable tier.
type RedisConfig struct {
	Addr      string `yaml:"addr,omitempty"`
	Password  string `yaml:"password,omitempty"`
	DB        int    `yaml:"db,omitempty"`
	KeyPrefix string `yaml:"keyPrefix,omitempty"`
}

// AuthConfig configures bearer-token identity parsing.
type AuthConfig struct {
	JWTSecret         string `yaml:"jwtSecret,omitempty"`
	Issuer            string `yaml:"issuer,omitempty"`
	SingleUserOrgName string `yaml:"singleUserOrgName,omitempty"`
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// TelemetryConfig controls OTLP trace export.
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled,omitempty"`
	OTLPEndpoint string `yaml:"otlpEndpoint,omitempty"`
	Insecure     bool   `yaml:"insecure,omitempty"`
	ServiceName  string `yaml:"serviceName,omitempty"`
}

// CleanupConfig bounds best-effort companion cleanup calls.
type CleanupConfig struct {
	CompanionTimeoutMs int `yaml:"companionTimeoutMs,omitempty"`
}

// PluginsConfig enables built-in lifecycle extensions.
type PluginsConfig struct {
	Audit    bool            `yaml:"audit,omitempty"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`
}

// WebhookConfig forwards lifecycle events to an HTTP endpoint.
type WebhookConfig struct {
	URL       string   `yaml:"url"`
	Events    []string `yaml:"events,omitempty"` // empty means every event
	Secret    string   `yaml:"secret,omitempty"`
	TimeoutMs int      `yaml:"timeoutMs,omitempty"`
}

// Timeout returns the per-delivery timeout, 5s when unset.
func (c WebhookConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// AutosaveEnabled reports whether auto-save is on (default true).
func (c AutosaveConfig) AutosaveEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Debounce returns the quiet period as a duration.
func (c AutosaveConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// Cooldown returns the saved/error display decay as a duration.
func (c AutosaveConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownMs) * time.Millisecond
}

// UseFallback reports whether sample agents are shown on sync failure (default true).
func (c SyncConfig) UseFallback() bool {
	return c.FallbackAgents == nil || *c.FallbackAgents
}

// Connecting returns the fixed connecting phase duration.
func (c CallConfig) Connecting() time.Duration {
	return time.Duration(c.ConnectingMs) * time.Millisecond
}

// MaxDuration returns the call limit, or zero for no limit.
func (c CallConfig) MaxDuration() time.Duration {
	return time.Duration(c.MaxDurationSeconds) * time.Second
}

// TTL returns the edit lease lifetime.
func (c LeaseConfig) TTL() time.Duration {
	return time.Duration(c.TTLMs) * time.Millisecond
}

// Timeout returns the per-request timeout for the agent backend.
func (c BackendConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DeleteTimeout returns the timeout for agent deletion calls.
func (c BackendConfig) DeleteTimeout() time.Duration {
	return time.Duration(c.DeleteTimeoutSeconds) * time.Second
}

// LoginTimeout returns the console login timeout.
func (c DifyConfig) LoginTimeout() time.Duration {
	return time.Duration(c.LoginTimeoutSeconds) * time.Second
}

// FetchTimeout returns the console fetch timeout.
func (c DifyConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// CompanionTimeout returns the bound on best-effort cleanup calls.
func (c CleanupConfig) CompanionTimeout() time.Duration {
	return time.Duration(c.CompanionTimeoutMs) * time.Millisecond
}
