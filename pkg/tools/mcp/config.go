package mcp

// ServerConfig describes one MCP server connection.
type ServerConfig struct {
	// Name identifies the server in logs and as the provider name.
	Name string `yaml:"name"`

	// Transport is "streamable-http" (default) or "sse".
	Transport string `yaml:"transport"`

	URL string `yaml:"url"`

	// Headers are sent with every request, typically an API key.
	Headers map[string]string `yaml:"headers,omitempty"`

	Auth AuthConfig `yaml:"auth,omitempty"`
}

// AuthConfig selects dynamic authentication for a server. Type is empty
// (static headers only) or "oauth_client_credentials".
type AuthConfig struct {
	Type         string   `yaml:"type"`
	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes,omitempty"`
}
