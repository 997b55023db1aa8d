// Package config provides unified configuration for cadence.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (CADENCE_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for cadence.
type Config struct {
	Provider      ProviderConfig      `yaml:"provider"`
	Engine        EngineConfig        `yaml:"engine"`
	Settings      SettingsConfig      `yaml:"settings"`
	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	MCP           MCPConfig           `yaml:"mcp"`
	Tools         ToolsConfig         `yaml:"tools"`
	Observability ObservabilityConfig `yaml:"observability"`
	Debug         DebugConfig         `yaml:"debug"`
}

// ProviderConfig describes the OpenAI-compatible chat completions backend.
type ProviderConfig struct {
	BaseURL    string        `yaml:"base_url"`     // default: https://openrouter.ai/api/v1
	Referer    string        `yaml:"referer"`      // HTTP-Referer attribution header
	Title      string        `yaml:"title"`        // X-Title attribution header
	Timeout    time.Duration `yaml:"timeout"`      // default: 120s
	APIKey     string        `yaml:"api_key"`      // optional, overrides the stored key
	APIKeyFile string        `yaml:"api_key_file"` // _file variant for api_key
}

// EngineConfig holds conversation engine settings.
type EngineConfig struct {
	DefaultModel string   `yaml:"default_model"` // default: anthropic/claude-sonnet-4.5
	MaxRounds    int      `yaml:"max_rounds"`    // default: 10, negative disables the cap
	AllowedTools []string `yaml:"allowed_tools"` // empty means all registered tools
}

// SettingsConfig selects the persistent settings store.
type SettingsConfig struct {
	Type     string         `yaml:"type"` // "memory", "file" or "postgres", default: "file"
	Path     string         `yaml:"path"` // for the file store
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// ServerConfig holds HTTP bridge settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // default: 8080
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 0, the event stream is long-lived
}

// AuthConfig holds authentication settings of the HTTP bridge.
type AuthConfig struct {
	Type      string          `yaml:"type"`     // "none", "apikey" or "jwt", default: "none"
	APIKeys   []APIKeyConfig  `yaml:"api_keys"` // API key entries for type=apikey
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Scopes    []ScopeRule     `yaml:"scopes"` // route scope requirements, empty disables
}

// ScopeRule requires a scope for bridge requests matching method and path prefix.
type ScopeRule struct {
	Method string `yaml:"method"` // empty matches every method
	Path   string `yaml:"path"`
	Scope  string `yaml:"scope"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key         string `yaml:"key" json:"key"`
	KeyFile     string `yaml:"key_file" json:"key_file"` // _file variant for key
	Subject     string `yaml:"subject" json:"subject"`
	ServiceTier string   `yaml:"service_tier" json:"service_tier"`
	Scopes      []string `yaml:"scopes" json:"scopes"`
}

// JWTConfig holds HMAC bearer token settings.
type JWTConfig struct {
	Secret     string `yaml:"secret"`
	SecretFile string `yaml:"secret_file"` // _file variant for secret
	Issuer     string `yaml:"issuer"`
	Audience   string `yaml:"audience"`
}

// RateLimitConfig limits requests per subject. Zero disables limiting.
type RateLimitConfig struct {
	RequestsPerMinute int            `yaml:"requests_per_minute"`
	Tiers             map[string]int `yaml:"tiers"` // service tier -> requests per minute
}

// MCPConfig holds MCP (Model Context Protocol) server settings.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes a single MCP server connection.
type MCPServerConfig struct {
	Name      string            `yaml:"name" json:"name"`
	Transport string            `yaml:"transport" json:"transport"` // "sse" or "streamable-http"
	URL       string            `yaml:"url" json:"url"`
	Headers   map[string]string `yaml:"headers" json:"headers"`
	Auth      MCPAuthConfig     `yaml:"auth" json:"auth"`
}

// MCPAuthConfig selects dynamic authentication for an MCP server.
type MCPAuthConfig struct {
	Type             string   `yaml:"type" json:"type"` // "" or "oauth_client_credentials"
	TokenURL         string   `yaml:"token_url" json:"token_url"`
	ClientID         string   `yaml:"client_id" json:"client_id"`
	ClientIDFile     string   `yaml:"client_id_file" json:"client_id_file"`
	ClientSecret     string   `yaml:"client_secret" json:"client_secret"`
	ClientSecretFile string   `yaml:"client_secret_file" json:"client_secret_file"`
	Scopes           []string `yaml:"scopes" json:"scopes"`
}

// ToolsConfig configures the built-in project tool catalog.
type ToolsConfig struct {
	SamplesDir string `yaml:"samples_dir"` // directory scanned for audio samples
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// DebugConfig mirrors CADENCE_DEBUG and CADENCE_LOG_LEVEL.
type DebugConfig struct {
	Categories string `yaml:"categories"` // comma-separated, e.g. "providers,streaming"
	Level      string `yaml:"level"`      // TRACE, DEBUG, INFO, WARN or ERROR
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Provider: ProviderConfig{
			BaseURL: "https://openrouter.ai/api/v1",
			Referer: "https://github.com/rhuss/cadence",
			Title:   "Cadence",
			Timeout: 120 * time.Second,
		},
		Engine: EngineConfig{
			DefaultModel: "anthropic/claude-sonnet-4.5",
			MaxRounds:    10,
		},
		Settings: SettingsConfig{
			Type: "file",
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Server: ServerConfig{
			Port:        8080,
			ReadTimeout: 30 * time.Second,
		},
		Auth: AuthConfig{
			Type: "none",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
		Debug: DebugConfig{
			Level: "INFO",
		},
	}
}
