package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/cadence/pkg/auth"
	"github.com/rhuss/cadence/pkg/config"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(auth.SubjectFromContext(r.Context())))
})

func serve(t *testing.T, h http.Handler, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthNone(t *testing.T) {
	mw, err := NewAuthMiddleware(config.AuthConfig{Type: "none"}, "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	rec := serve(t, mw(okHandler), "/v1/status", "")
	if rec.Code != http.StatusOK || drain(rec.Body) != "local" {
		t.Errorf("status = %d, body = %q", rec.Code, rec.Body.String())
	}
}

func TestAuthAPIKey(t *testing.T) {
	mw, err := NewAuthMiddleware(config.AuthConfig{
		Type:    "apikey",
		APIKeys: []config.APIKeyConfig{{Key: "sk-alice", Subject: "alice"}},
	}, "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	h := mw(okHandler)

	tests := []struct {
		name       string
		path       string
		token      string
		wantStatus int
		wantBody   string
	}{
		{"valid", "/v1/status", "sk-alice", http.StatusOK, "alice"},
		{"invalid", "/v1/status", "sk-bob", http.StatusUnauthorized, ""},
		{"missing", "/v1/status", "", http.StatusUnauthorized, ""},
		{"health bypass", "/healthz", "", http.StatusOK, ""},
		{"metrics bypass", "/metrics", "", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, h, tt.path, tt.token)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestAuthJWT(t *testing.T) {
	secret := "0123456789abcdef0123456789abcdef"
	mw, err := NewAuthMiddleware(config.AuthConfig{
		Type: "jwt",
		JWT:  config.JWTConfig{Secret: secret, Issuer: "cadence-test"},
	}, "/metrics")
	if err != nil {
		t.Fatal(err)
	}

	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub": "bob",
		"iss": "cadence-test",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}

	rec := serve(t, mw(okHandler), "/v1/status", token)
	if rec.Code != http.StatusOK || rec.Body.String() != "bob" {
		t.Errorf("status = %d, body = %q", rec.Code, rec.Body.String())
	}

	if _, err := NewAuthMiddleware(config.AuthConfig{Type: "jwt"}, ""); err == nil {
		t.Error("expected error for jwt without secret")
	}
}

func TestAuthRateLimit(t *testing.T) {
	mw, err := NewAuthMiddleware(config.AuthConfig{
		Type:      "none",
		RateLimit: config.RateLimitConfig{RequestsPerMinute: 2},
	}, "")
	if err != nil {
		t.Fatal(err)
	}
	h := mw(okHandler)

	for i := 0; i < 2; i++ {
		if rec := serve(t, h, "/v1/status", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, rec.Code)
		}
	}
	rec := serve(t, h, "/v1/status", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "rate_limit_error") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestAuthUnknownType(t *testing.T) {
	if _, err := NewAuthMiddleware(config.AuthConfig{Type: "oidc"}, ""); err == nil {
		t.Error("expected error for unknown auth type")
	}
}

func TestAuthScopes(t *testing.T) {
	mw, err := NewAuthMiddleware(config.AuthConfig{
		Type: "apikey",
		APIKeys: []config.APIKeyConfig{
			{Key: "sk-player", Subject: "player", Scopes: []string{"chat"}},
			{Key: "sk-admin", Subject: "admin", Scopes: []string{"chat", "config"}},
		},
		Scopes: []config.ScopeRule{
			{Method: "PUT", Path: "/v1/config", Scope: "config"},
			{Method: "POST", Path: "/v1/", Scope: "chat"},
		},
	}, "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	h := mw(okHandler)

	tests := []struct {
		token  string
		method string
		path   string
		want   int
	}{
		{"sk-player", "POST", "/v1/messages", http.StatusOK},
		{"sk-player", "PUT", "/v1/config", http.StatusForbidden},
		{"sk-player", "GET", "/v1/status", http.StatusOK},
		{"sk-admin", "PUT", "/v1/config", http.StatusOK},
		{"", "PUT", "/v1/config", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		if tt.token != "" {
			req.Header.Set("Authorization", "Bearer "+tt.token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("%s %s as %q: status = %d, want %d", tt.method, tt.path, tt.token, rec.Code, tt.want)
		}
	}
}
