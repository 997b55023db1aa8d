package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rhuss/cadence/pkg/app"
	"github.com/rhuss/cadence/pkg/config"
	"github.com/rhuss/cadence/pkg/provider/mockbackend"
)

func newTestApp(t *testing.T, apiKey string) *app.App {
	t.Helper()
	srv := httptest.NewServer(mockbackend.NewHandler(mockbackend.Options{Prefix: "/v1", RequireKey: true}))
	t.Cleanup(srv.Close)

	cfg := config.Defaults()
	cfg.Provider.BaseURL = srv.URL + "/v1"
	cfg.Provider.APIKey = apiKey
	cfg.Settings.Type = "memory"

	a, err := app.New(context.Background(), &cfg)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func runREPL(t *testing.T, a *app.App, input string) string {
	t.Helper()
	var out bytes.Buffer
	r := newREPL(a.Engine, a.Project, strings.NewReader(input), &out)
	if err := r.run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	return out.String()
}

func TestREPLConversation(t *testing.T) {
	a := newTestApp(t, "sk-test")

	out := runREPL(t, a, "hello\nset the tempo to 128\n/status\n/quit\n")

	for _, want := range []string{
		"You said: hello",
		`[tool] set_tempo {"bpm":128}`,
		"[tool] set_tempo ok:",
		"Done. The tool returned:",
		"tempo: 128 BPM",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
	if a.Project.Tempo() != 128 {
		t.Errorf("tempo = %d, want 128", a.Project.Tempo())
	}
}

func TestREPLNotConfigured(t *testing.T) {
	a := newTestApp(t, "")

	out := runREPL(t, a, "hello\n/key sk-test\nhello again\n")

	if !strings.Contains(out, "No api key set") {
		t.Errorf("missing configuration hint:\n%s", out)
	}
	if !strings.Contains(out, "error: api key not set") {
		t.Errorf("missing not-configured error:\n%s", out)
	}
	if !strings.Contains(out, "You said: hello again") {
		t.Errorf("message after /key not answered:\n%s", out)
	}
}

func TestREPLBackendError(t *testing.T) {
	a := newTestApp(t, "sk-test")

	out := runREPL(t, a, "please fail\n/history\n")

	if !strings.Contains(out, "error: API error: mock failure requested") {
		t.Errorf("missing error event:\n%s", out)
	}
	if !strings.Contains(out, "user: please fail") {
		t.Errorf("user turn not kept after failure:\n%s", out)
	}
}

func TestREPLCommands(t *testing.T) {
	a := newTestApp(t, "sk-test")

	out := runREPL(t, a, "/model mock/tools\n/models mock\n/tools\n/reset\n/bogus\n")

	if a.Engine.Model() != "mock/tools" || !a.Engine.IsConfigured() {
		t.Errorf("model = %q configured = %v", a.Engine.Model(), a.Engine.IsConfigured())
	}
	for _, want := range []string{
		"model set to mock/tools",
		"  mock/echo",
		"* mock/tools",
		"get_tempo",
		"conversation cleared",
		"unknown command /bogus",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
}
