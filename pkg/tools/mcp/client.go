package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/cadence/pkg/debug"
	"github.com/rhuss/cadence/pkg/tools"
)

// Client is the connection to one MCP server.
type Client struct {
	cfg     ServerConfig
	session *mcp.ClientSession

	mu       sync.Mutex
	decls    []tools.Declaration
	resolved bool
}

// NewClient creates a Client. Call Connect before use.
func NewClient(cfg ServerConfig) *Client {
	return &Client{cfg: cfg}
}

// Name returns the configured server name.
func (c *Client) Name() string { return c.cfg.Name }

// Connect performs the MCP handshake over the configured transport.
func (c *Client) Connect(ctx context.Context) error {
	transport, err := c.transport()
	if err != nil {
		return fmt.Errorf("mcp server %q: %w", c.cfg.Name, err)
	}
	return c.ConnectWithTransport(ctx, transport)
}

// ConnectWithTransport performs the handshake over an explicit transport.
func (c *Client) ConnectWithTransport(ctx context.Context, transport mcp.Transport) error {
	client := mcp.NewClient(
		&mcp.Implementation{Name: "cadence", Version: "1.0.0"},
		&mcp.ClientOptions{Capabilities: &mcp.ClientCapabilities{}},
	)

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connect to mcp server %q: %w", c.cfg.Name, err)
	}
	c.session = session
	debug.Log("mcp", "connected", "server", c.cfg.Name)
	return nil
}

func (c *Client) transport() (mcp.Transport, error) {
	hc := httpClientFor(c.cfg)

	switch c.cfg.Transport {
	case "sse":
		t := &mcp.SSEClientTransport{Endpoint: c.cfg.URL}
		if hc != nil {
			t.HTTPClient = hc
		}
		return t, nil
	case "streamable-http", "":
		t := &mcp.StreamableClientTransport{Endpoint: c.cfg.URL}
		if hc != nil {
			t.HTTPClient = hc
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unsupported transport %q", c.cfg.Transport)
	}
}

// ListTools returns the server's tools. The list is fetched once and
// cached for the lifetime of the connection.
func (c *Client) ListTools(ctx context.Context) ([]tools.Declaration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resolved {
		return c.decls, nil
	}
	if c.session == nil {
		return nil, fmt.Errorf("mcp server %q not connected", c.cfg.Name)
	}

	var decls []tools.Declaration
	for tool, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("list tools from %q: %w", c.cfg.Name, err)
		}
		d, err := declarationFor(tool)
		if err != nil {
			return nil, fmt.Errorf("convert tool %q from %q: %w", tool.Name, c.cfg.Name, err)
		}
		decls = append(decls, d)
	}

	c.decls = decls
	c.resolved = true
	return decls, nil
}

// CallTool runs a tool on the server. A result flagged as an error is
// returned as an error carrying the result text.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if c.session == nil {
		return "", fmt.Errorf("mcp server %q not connected", c.cfg.Name)
	}

	res, err := c.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", fmt.Errorf("mcp tool call failed: %w", err)
	}

	text := resultText(res)
	if res.IsError {
		if text == "" {
			text = "mcp tool " + name + " reported an error"
		}
		return "", errors.New(text)
	}
	return text, nil
}

// Close ends the session.
func (c *Client) Close() error {
	if c.session == nil {
		return nil
	}
	return c.session.Close()
}

func declarationFor(t *mcp.Tool) (tools.Declaration, error) {
	d := tools.Declaration{Name: t.Name, Description: t.Description}
	if t.InputSchema == nil {
		return d, nil
	}

	data, err := json.Marshal(t.InputSchema)
	if err != nil {
		return d, fmt.Errorf("marshal input schema: %w", err)
	}
	if err := json.Unmarshal(data, &d.Parameters); err != nil {
		return d, fmt.Errorf("input schema is not an object: %w", err)
	}
	return d, nil
}

func resultText(res *mcp.CallToolResult) string {
	var parts []string
	for _, content := range res.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
