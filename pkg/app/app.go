// Package app assembles a conversation engine from process configuration.
// Both the CLI and the HTTP bridge are built on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/rhuss/cadence/pkg/config"
	"github.com/rhuss/cadence/pkg/engine"
	"github.com/rhuss/cadence/pkg/provider/openaicompat"
	"github.com/rhuss/cadence/pkg/storage"
	"github.com/rhuss/cadence/pkg/storage/file"
	"github.com/rhuss/cadence/pkg/storage/memory"
	"github.com/rhuss/cadence/pkg/storage/postgres"
	"github.com/rhuss/cadence/pkg/tools/builtins/project"
	"github.com/rhuss/cadence/pkg/tools/mcp"
	"github.com/rhuss/cadence/pkg/tools/registry"
	"github.com/rhuss/cadence/pkg/transport"
)

// App holds the wired components. Close releases them in reverse order.
type App struct {
	Engine   *engine.Engine
	Project  *project.Project
	Registry *registry.Registry
	Store    storage.Store

	// Health is non-nil when the store can report its health.
	Health transport.HealthChecker

	closers []io.Closer
}

// New builds the store, transport client, tool registry and engine
// described by cfg. Unreachable MCP servers are skipped.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}

	store, err := NewStore(ctx, cfg.Settings)
	if err != nil {
		return nil, err
	}
	a.Store = store
	if hc, ok := store.(transport.HealthChecker); ok {
		a.Health = hc
	}
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	client := openaicompat.NewClient(cfg.Provider.BaseURL, cfg.Provider.Timeout,
		openaicompat.WithAttribution(cfg.Provider.Referer, cfg.Provider.Title))
	a.closers = append(a.closers, client)

	a.Project = project.New()
	lib, err := loadLibrary(cfg.Tools.SamplesDir)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Registry = registry.New()
	a.Registry.Register(project.Tools(a.Project, lib))
	if len(cfg.MCP.Servers) > 0 {
		a.Registry.Register(mcp.Dial(ctx, MCPServers(cfg.MCP.Servers)))
	}
	a.closers = append(a.closers, a.Registry)

	eng, err := engine.New(client, a.Registry, store, engine.Config{
		DefaultModel: cfg.Engine.DefaultModel,
		APIKey:       cfg.Provider.APIKey,
		MaxRounds:    cfg.Engine.MaxRounds,
		AllowedTools: cfg.Engine.AllowedTools,
		SystemPrompt: func() string { return engine.SystemPrompt(a.Project.Tempo()) },
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	a.Engine = eng
	a.closers = append(a.closers, eng)

	return a, nil
}

// Close shuts the engine down and releases the registry, client and store.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// NewStore opens the settings store selected by cfg.Type.
func NewStore(ctx context.Context, cfg config.SettingsConfig) (storage.Store, error) {
	switch cfg.Type {
	case "memory":
		slog.Info("settings store", "type", "memory")
		return memory.New(), nil
	case "file", "":
		path := cfg.Path
		if path == "" {
			path = config.DefaultSettingsPath()
		}
		s, err := file.New(path)
		if err != nil {
			return nil, fmt.Errorf("opening settings file: %w", err)
		}
		slog.Info("settings store", "type", "file", "path", s.Path())
		return s, nil
	case "postgres":
		s, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		slog.Info("settings store", "type", "postgres", "max_conns", cfg.Postgres.MaxConns)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown settings type %q", cfg.Type)
	}
}

// MCPServers converts configured servers to client configs. _file secrets
// are already resolved by the config loader.
func MCPServers(servers []config.MCPServerConfig) []mcp.ServerConfig {
	out := make([]mcp.ServerConfig, 0, len(servers))
	for _, s := range servers {
		out = append(out, mcp.ServerConfig{
			Name:      s.Name,
			Transport: s.Transport,
			URL:       s.URL,
			Headers:   s.Headers,
			Auth: mcp.AuthConfig{
				Type:         s.Auth.Type,
				TokenURL:     s.Auth.TokenURL,
				ClientID:     s.Auth.ClientID,
				ClientSecret: s.Auth.ClientSecret,
				Scopes:       s.Auth.Scopes,
			},
		})
	}
	return out
}

func loadLibrary(dir string) (*project.Library, error) {
	if dir == "" {
		return project.NewLibrary(), nil
	}
	lib, err := project.ScanLibrary(os.DirFS(dir), ".")
	if err != nil {
		return nil, fmt.Errorf("scanning samples in %s: %w", dir, err)
	}
	slog.Info("sample library loaded", "dir", dir, "categories", len(lib.Categories()))
	return lib, nil
}
