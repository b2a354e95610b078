package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so keys and passwords can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Gateway.Auth.Token = expandEnvVars(cfg.Gateway.Auth.Token)
	cfg.Gateway.Auth.Password = expandEnvVars(cfg.Gateway.Auth.Password)
	cfg.Backend.APIKey = expandEnvVars(cfg.Backend.APIKey)
	cfg.Dify.AdminEmail = expandEnvVars(cfg.Dify.AdminEmail)
	cfg.Dify.AdminPassword = expandEnvVars(cfg.Dify.AdminPassword)
	cfg.Storage.Redis.Password = expandEnvVars(cfg.Storage.Redis.Password)
	cfg.Auth.JWTSecret = expandEnvVars(cfg.Auth.JWTSecret)
	for i := range cfg.Plugins.Webhooks {
		cfg.Plugins.Webhooks[i].Secret = expandEnvVars(cfg.Plugins.Webhooks[i].Secret)
	}
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = DefaultPort
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = "loopback"
	}
	if cfg.Gateway.Auth.Mode == "" {
		cfg.Gateway.Auth.Mode = "token"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = "pretty"
	}
	if cfg.Backend.TimeoutSeconds == 0 {
		cfg.Backend.TimeoutSeconds = 30
	}
	if cfg.Backend.DeleteTimeoutSeconds == 0 {
		cfg.Backend.DeleteTimeoutSeconds = 30
	}
	if cfg.Dify.PageLimit == 0 {
		cfg.Dify.PageLimit = 100
	}
	if cfg.Dify.MaxPages == 0 {
		cfg.Dify.MaxPages = 10
	}
	if cfg.Dify.MaxWorkspaces == 0 {
		cfg.Dify.MaxWorkspaces = 50
	}
	if cfg.Dify.WorkspaceBatch == 0 {
		cfg.Dify.WorkspaceBatch = 3
	}
	if cfg.Dify.AppBatch == 0 {
		cfg.Dify.AppBatch = 5
	}
	if cfg.Dify.LoginTimeoutSeconds == 0 {
		cfg.Dify.LoginTimeoutSeconds = 10
	}
	if cfg.Dify.FetchTimeoutSeconds == 0 {
		cfg.Dify.FetchTimeoutSeconds = 8
	}
	if cfg.Autosave.DebounceMs == 0 {
		cfg.Autosave.DebounceMs = 1500
	}
	if cfg.Autosave.CooldownMs == 0 {
		cfg.Autosave.CooldownMs = 3000
	}
	if cfg.Autosave.SwitchPolicy == "" {
		cfg.Autosave.SwitchPolicy = "flush"
	}
	if cfg.Call.ConnectingMs == 0 {
		cfg.Call.ConnectingMs = 3000
	}
	if cfg.Lease.TTLMs == 0 {
		cfg.Lease.TTLMs = 2000
	}
	if cfg.Storage.Durable == "" {
		cfg.Storage.Durable = "sqlite"
	}
	if cfg.Storage.Session == "" {
		cfg.Storage.Session = "memory"
	}
	if cfg.Storage.Redis.KeyPrefix == "" {
		cfg.Storage.Redis.KeyPrefix = "agentdesk:"
	}
	if cfg.Auth.SingleUserOrgName == "" {
		cfg.Auth.SingleUserOrgName = DefaultSingleUserOrgName
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Cleanup.CompanionTimeoutMs == 0 {
		cfg.Cleanup.CompanionTimeoutMs = 5000
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "agentdesk"
	}
}

// applyEnvOverrides reads AGENTDESK_* environment variables and overrides config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AGENTDESK_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("AGENTDESK_GATEWAY_BIND"); v != "" {
		cfg.Gateway.Bind = v
	}
	if v := os.Getenv("AGENTDESK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("AGENTDESK_LIVE_API_URL"); v != "" {
		cfg.Backend.URL = v
	}
	if v := os.Getenv("AGENTDESK_LIVE_API_KEY"); v != "" {
		cfg.Backend.APIKey = v
	}
	if v := os.Getenv("AGENTDESK_DIFY_CONSOLE_ORIGIN"); v != "" {
		cfg.Dify.ConsoleOrigin = v
	}
	if v := os.Getenv("AGENTDESK_DIFY_API_URL"); v != "" {
		cfg.Dify.APIURL = v
	}
	if v := os.Getenv("AGENTDESK_DIFY_WORKSPACE_ID"); v != "" {
		cfg.Dify.WorkspaceID = v
	}
	if v := os.Getenv("AGENTDESK_STORAGE_DURABLE"); v != "" {
		cfg.Storage.Durable = v
	}
	if v := os.Getenv("AGENTDESK_REDIS_ADDR"); v != "" {
		cfg.Storage.Redis.Addr = v
	}
	if v := os.Getenv("AGENTDESK_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
		cfg.Telemetry.Enabled = true
	}
}
