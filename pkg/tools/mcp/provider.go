package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rhuss/cadence/pkg/tools"
)

// Provider serves the tools of several MCP servers as one tools.Provider.
// When two servers declare the same tool, the first server keeps it.
type Provider struct {
	mu      sync.RWMutex
	clients []*Client
	owner   map[string]*Client
	decls   []tools.Declaration
}

var _ tools.Provider = (*Provider)(nil)

// NewProvider discovers the tools of every connected client. A client whose
// discovery fails is logged and left out.
func NewProvider(ctx context.Context, clients ...*Client) *Provider {
	p := &Provider{owner: make(map[string]*Client)}

	for _, c := range clients {
		decls, err := c.ListTools(ctx)
		if err != nil {
			slog.Warn("skipping mcp server, tool discovery failed", "server", c.Name(), "error", err)
			continue
		}
		p.clients = append(p.clients, c)

		for _, d := range decls {
			if existing, ok := p.owner[d.Name]; ok {
				slog.Warn("mcp tool name conflict, keeping first server",
					"tool", d.Name,
					"winner", existing.Name(),
					"loser", c.Name(),
				)
				continue
			}
			p.owner[d.Name] = c
			p.decls = append(p.decls, d)
		}

		slog.Info("discovered mcp tools", "server", c.Name(), "count", len(decls))
	}
	return p
}

// Dial connects to every configured server and builds a Provider. Servers
// that cannot be reached are logged and skipped.
func Dial(ctx context.Context, cfgs []ServerConfig) *Provider {
	var clients []*Client
	for _, cfg := range cfgs {
		c := NewClient(cfg)
		if err := c.Connect(ctx); err != nil {
			slog.Warn("mcp server unavailable", "server", cfg.Name, "error", err)
			continue
		}
		clients = append(clients, c)
	}
	return NewProvider(ctx, clients...)
}

// Name returns "mcp".
func (p *Provider) Name() string { return "mcp" }

// Declarations lists every routable MCP tool.
func (p *Provider) Declarations() []tools.Declaration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]tools.Declaration(nil), p.decls...)
}

// Execute routes the call to the server that owns the tool.
func (p *Provider) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	p.mu.RLock()
	c, ok := p.owner[name]
	p.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("no mcp server provides tool %s", name)
	}
	return c.CallTool(ctx, name, args)
}

// Close closes every server session.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for _, c := range p.clients {
		if err := c.Close(); err != nil {
			slog.Warn("failed to close mcp client", "server", c.Name(), "error", err)
			lastErr = err
		}
	}
	return lastErr
}
