// Command server runs the cadence HTTP bridge: a conversation engine
// remote-controlled over HTTP with engine events relayed as server-sent
// events.
//
// Configuration is loaded from a YAML file and CADENCE_* environment
// variables (see pkg/config). A .env file in the working directory is
// loaded first when present. Common variables:
//
//	CADENCE_CONFIG    - Config file path
//	CADENCE_BASE_URL  - Chat completions backend (default: OpenRouter)
//	CADENCE_API_KEY   - Backend API key (overrides the stored key)
//	CADENCE_PORT      - Listen port (default: 8080)
//	CADENCE_SETTINGS  - Settings store: memory, file or postgres
//	CADENCE_AUTH_TYPE - Bridge authentication: none, apikey or jwt
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/rhuss/cadence/pkg/app"
	"github.com/rhuss/cadence/pkg/config"
	"github.com/rhuss/cadence/pkg/debug"
	transporthttp "github.com/rhuss/cadence/pkg/transport/http"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	debug.Init(cfg.Debug.Categories, cfg.Debug.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	metricsPath := ""
	if cfg.Observability.Metrics.Enabled {
		metricsPath = cfg.Observability.Metrics.Path
	}
	authMW, err := app.NewAuthMiddleware(cfg.Auth, metricsPath)
	if err != nil {
		return err
	}

	adapterCfg := transporthttp.DefaultConfig()
	adapterCfg.MetricsPath = metricsPath

	opts := []transporthttp.ServerOption{
		transporthttp.WithAddr(":" + strconv.Itoa(cfg.Server.Port)),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		transporthttp.WithAdapterConfig(adapterCfg),
		transporthttp.WithAuth(authMW),
		transporthttp.WithLogger(slog.Default().With("component", "bridge")),
	}
	if a.Health != nil {
		opts = append(opts, transporthttp.WithHealthChecker(a.Health))
	}
	srv := transporthttp.NewServer(a.Engine, opts...)

	slog.Info("cadence bridge ready",
		"port", cfg.Server.Port,
		"backend", cfg.Provider.BaseURL,
		"model", a.Engine.Model(),
		"configured", a.Engine.IsConfigured(),
		"tools", len(a.Engine.Tools()),
	)
	return srv.Run(ctx)
}
