package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if c.Provider.BaseURL == "" {
		errs = append(errs, fmt.Errorf("provider.base_url is required"))
	} else if u, err := url.Parse(c.Provider.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("provider.base_url must be an absolute URL, got %q", c.Provider.BaseURL))
	}
	if c.Provider.Timeout < 0 {
		errs = append(errs, fmt.Errorf("provider.timeout must not be negative, got %v", c.Provider.Timeout))
	}

	if c.Engine.DefaultModel == "" {
		errs = append(errs, fmt.Errorf("engine.default_model is required"))
	}

	switch c.Settings.Type {
	case "memory", "file":
		// valid
	case "postgres":
		if c.Settings.Postgres.DSN == "" && c.Settings.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("settings.postgres.dsn or settings.postgres.dsn_file is required when settings.type is \"postgres\""))
		}
	default:
		errs = append(errs, fmt.Errorf("settings.type must be \"memory\", \"file\", or \"postgres\", got %q", c.Settings.Type))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port))
	}

	switch c.Auth.Type {
	case "none":
		// valid
	case "apikey":
		if len(c.Auth.APIKeys) == 0 {
			errs = append(errs, fmt.Errorf("auth.api_keys must not be empty when auth.type is \"apikey\""))
		}
		for i, k := range c.Auth.APIKeys {
			if k.Key == "" && k.KeyFile == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d]: key or key_file is required", i))
			}
			if k.Subject == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d].subject is required", i))
			}
		}
	case "jwt":
		if c.Auth.JWT.Secret == "" && c.Auth.JWT.SecretFile == "" {
			errs = append(errs, fmt.Errorf("auth.jwt.secret or auth.jwt.secret_file is required when auth.type is \"jwt\""))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type))
	}

	if len(c.Auth.Scopes) > 0 && c.Auth.Type == "none" {
		errs = append(errs, fmt.Errorf("auth.scopes requires auth.type \"apikey\" or \"jwt\""))
	}
	for i, r := range c.Auth.Scopes {
		if !strings.HasPrefix(r.Path, "/") {
			errs = append(errs, fmt.Errorf("auth.scopes[%d].path must start with \"/\", got %q", i, r.Path))
		}
		if r.Scope == "" {
			errs = append(errs, fmt.Errorf("auth.scopes[%d].scope is required", i))
		}
	}

	seen := make(map[string]bool, len(c.MCP.Servers))
	for i, s := range c.MCP.Servers {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("mcp.servers[%d].name is required", i))
		} else if seen[s.Name] {
			errs = append(errs, fmt.Errorf("mcp.servers[%d].name %q is duplicated", i, s.Name))
		}
		seen[s.Name] = true
		if s.URL == "" {
			errs = append(errs, fmt.Errorf("mcp.servers[%d].url is required", i))
		}
		switch s.Transport {
		case "", "sse", "streamable-http":
			// valid
		default:
			errs = append(errs, fmt.Errorf("mcp.servers[%d].transport must be \"sse\" or \"streamable-http\", got %q", i, s.Transport))
		}
		if s.Auth.Type == "oauth_client_credentials" && s.Auth.TokenURL == "" {
			errs = append(errs, fmt.Errorf("mcp.servers[%d].auth.token_url is required for oauth_client_credentials", i))
		}
	}

	return errors.Join(errs...)
}
