// Command cadence is an interactive music production assistant in the
// terminal. It talks to an OpenAI-compatible backend (OpenRouter by
// default) and edits an in-memory project through tool calls.
//
// The api key and model are read from the settings store; set them once
// with /key and /model. CADENCE_API_KEY overrides the stored key. A .env
// file in the working directory is loaded before configuration.
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
	"syscall"

	"github.com/joho/godotenv"

	"github.com/rhuss/cadence/pkg/app"
	"github.com/rhuss/cadence/pkg/config"
	"github.com/rhuss/cadence/pkg/debug"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "cadence:", err)
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
	// Logs go to stderr so they do not interleave with streamed answers.
	if cfg.Debug.Level == "INFO" && cfg.Debug.Categories == "" {
		cfg.Debug.Level = "WARN"
	}
	debug.InitWriter(os.Stderr, cfg.Debug.Categories, cfg.Debug.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	r := newREPL(a.Engine, a.Project, os.Stdin, os.Stdout)

	// Ctrl-C cancels the running exchange instead of quitting.
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)
	go func() {
		for range interrupts {
			r.interrupt()
		}
	}()

	slog.Debug("starting repl", "model", a.Engine.Model())
	return r.run(ctx)
}
