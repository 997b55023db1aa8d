// Command mock-backend runs a deterministic OpenAI-compatible chat
// completions server for demos and manual testing. Point cadence at it
// with CADENCE_BASE_URL=http://localhost:9090/v1.
//
// Configuration:
//
//	MOCK_PORT        - Listen port (default: 9090)
//	MOCK_CHUNK_DELAY - Delay between stream chunks, e.g. 50ms (default: 0)
//	MOCK_REQUIRE_KEY - Reject requests without a bearer token when "true"
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rhuss/cadence/pkg/debug"
	"github.com/rhuss/cadence/pkg/provider/mockbackend"
)

func main() {
	if err := run(); err != nil {
		slog.Error("mock backend failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	debug.Init(os.Getenv("CADENCE_DEBUG"), os.Getenv("CADENCE_LOG_LEVEL"))

	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}

	var delay time.Duration
	if v := os.Getenv("MOCK_CHUNK_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid MOCK_CHUNK_DELAY: %w", err)
		}
		delay = d
	}

	srv := &http.Server{
		Addr: ":" + port,
		Handler: mockbackend.NewHandler(mockbackend.Options{
			Prefix:     "/v1",
			ChunkDelay: delay,
			RequireKey: os.Getenv("MOCK_REQUIRE_KEY") == "true",
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("mock backend starting", "port", port, "chunk_delay", delay)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("mock backend shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
