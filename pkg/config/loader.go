package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rhuss/cadence/pkg/debug"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, CADENCE_CONFIG env, ./config.yaml, /etc/cadence/config.yaml)
//  3. CADENCE_* environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
		debug.Log("config", "loaded config file", "path", filePath)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if cfg.Settings.Type == "file" && cfg.Settings.Path == "" {
		cfg.Settings.Path = DefaultSettingsPath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// DefaultSettingsPath is the settings file used when settings.path is unset:
// cadence/settings.yaml below the user config directory, or the working
// directory when that cannot be determined.
func DefaultSettingsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".cadence", "settings.yaml")
	}
	return filepath.Join(dir, "cadence", "settings.yaml")
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. CADENCE_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/cadence/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("CADENCE_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/cadence/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps CADENCE_* environment variables to config fields.
// Malformed numeric or JSON values are reported instead of being ignored.
func applyEnvOverrides(cfg *Config) error {
	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	str("CADENCE_BASE_URL", &cfg.Provider.BaseURL)
	str("CADENCE_API_KEY", &cfg.Provider.APIKey)
	str("CADENCE_API_KEY_FILE", &cfg.Provider.APIKeyFile)
	str("CADENCE_MODEL", &cfg.Engine.DefaultModel)
	str("CADENCE_SETTINGS", &cfg.Settings.Type)
	str("CADENCE_SETTINGS_PATH", &cfg.Settings.Path)
	str("CADENCE_POSTGRES_DSN", &cfg.Settings.Postgres.DSN)
	str("CADENCE_AUTH_TYPE", &cfg.Auth.Type)
	str("CADENCE_JWT_SECRET", &cfg.Auth.JWT.Secret)
	str("CADENCE_SAMPLES_DIR", &cfg.Tools.SamplesDir)
	str("CADENCE_DEBUG", &cfg.Debug.Categories)
	str("CADENCE_LOG_LEVEL", &cfg.Debug.Level)

	if v := os.Getenv("CADENCE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CADENCE_TIMEOUT: %w", err)
		}
		cfg.Provider.Timeout = d
	}
	if v := os.Getenv("CADENCE_MAX_ROUNDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CADENCE_MAX_ROUNDS: %w", err)
		}
		cfg.Engine.MaxRounds = n
	}
	if v := os.Getenv("CADENCE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CADENCE_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("CADENCE_ALLOWED_TOOLS"); v != "" {
		cfg.Engine.AllowedTools = splitList(v)
	}

	// CADENCE_API_KEYS: JSON array of API key configs.
	if v := os.Getenv("CADENCE_API_KEYS"); v != "" {
		keys, err := parseAPIKeysJSON(v)
		if err != nil {
			return err
		}
		cfg.Auth.APIKeys = keys
	}

	// CADENCE_MCP_SERVERS: JSON array of MCP server configs.
	if v := os.Getenv("CADENCE_MCP_SERVERS"); v != "" {
		servers, err := parseMCPServersJSON(v)
		if err != nil {
			return err
		}
		cfg.MCP.Servers = servers
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseAPIKeysJSON parses a JSON array of API key configurations.
func parseAPIKeysJSON(jsonStr string) ([]APIKeyConfig, error) {
	var keys []APIKeyConfig
	if err := json.Unmarshal([]byte(jsonStr), &keys); err != nil {
		return nil, fmt.Errorf("parsing API keys JSON: %w", err)
	}
	return keys, nil
}

// parseMCPServersJSON parses a JSON array of MCP server configurations.
func parseMCPServersJSON(jsonStr string) ([]MCPServerConfig, error) {
	var servers []MCPServerConfig
	if err := json.Unmarshal([]byte(jsonStr), &servers); err != nil {
		return nil, fmt.Errorf("parsing MCP servers JSON: %w", err)
	}
	return servers, nil
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	refs := []fileRef{
		{"provider.api_key_file", cfg.Provider.APIKeyFile, &cfg.Provider.APIKey},
		{"settings.postgres.dsn_file", cfg.Settings.Postgres.DSNFile, &cfg.Settings.Postgres.DSN},
		{"auth.jwt.secret_file", cfg.Auth.JWT.SecretFile, &cfg.Auth.JWT.Secret},
	}
	for i := range cfg.Auth.APIKeys {
		k := &cfg.Auth.APIKeys[i]
		refs = append(refs, fileRef{fmt.Sprintf("auth.api_keys[%d].key_file", i), k.KeyFile, &k.Key})
	}
	for i := range cfg.MCP.Servers {
		a := &cfg.MCP.Servers[i].Auth
		refs = append(refs,
			fileRef{fmt.Sprintf("mcp.servers[%d].auth.client_id_file", i), a.ClientIDFile, &a.ClientID},
			fileRef{fmt.Sprintf("mcp.servers[%d].auth.client_secret_file", i), a.ClientSecretFile, &a.ClientSecret},
		)
	}

	for _, ref := range refs {
		if ref.file == "" || *ref.dst != "" {
			continue
		}
		val, err := readSecretFile(ref.file)
		if err != nil {
			return fmt.Errorf("%s: %w", ref.field, err)
		}
		*ref.dst = val
	}
	return nil
}

// fileRef pairs a _file field with the value it fills.
type fileRef struct {
	field string
	file  string
	dst   *string
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
