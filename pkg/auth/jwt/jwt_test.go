package jwt

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/cadence/pkg/auth"
)

const testSecret = "studio-shared-secret"

func newTestAuthenticator(t *testing.T, override func(*Config)) *Authenticator {
	t.Helper()
	cfg := Config{
		Secret:   testSecret,
		Issuer:   "https://auth.example.com",
		Audience: "cadence",
	}
	if override != nil {
		override(&cfg)
	}
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func sign(t *testing.T, method jwtlib.SigningMethod, secret string, claims jwtlib.MapClaims) string {
	t.Helper()
	s, err := jwtlib.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return s
}

func validClaims() jwtlib.MapClaims {
	return jwtlib.MapClaims{
		"sub": "user-123",
		"iss": "https://auth.example.com",
		"aud": "cadence",
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}
}

func authenticate(a *Authenticator, token string) auth.Result {
	r := httptest.NewRequest("GET", "/", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return a.Authenticate(context.Background(), r)
}

func TestNew_RequiresSecret(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestJWT_ValidToken(t *testing.T) {
	a := newTestAuthenticator(t, nil)

	claims := validClaims()
	claims["tier"] = "premium"
	claims["scope"] = "chat config"

	result := authenticate(a, sign(t, jwtlib.SigningMethodHS256, testSecret, claims))

	if result.Decision != auth.Yes {
		t.Fatalf("Decision = %d, want Yes; err=%v", result.Decision, result.Err)
	}
	id := result.Identity
	if id.Subject != "user-123" {
		t.Errorf("Subject = %q, want user-123", id.Subject)
	}
	if id.ServiceTier != "premium" {
		t.Errorf("ServiceTier = %q, want premium", id.ServiceTier)
	}
	if !id.HasScope("chat") || !id.HasScope("config") {
		t.Errorf("Scopes = %v, want chat and config", id.Scopes)
	}
	if id.Metadata["issuer"] != "https://auth.example.com" {
		t.Errorf("issuer metadata = %q", id.Metadata["issuer"])
	}
}

func TestJWT_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		token   func(t *testing.T) string
		wantErr string
	}{
		{
			name: "expired",
			token: func(t *testing.T) string {
				c := validClaims()
				c["exp"] = time.Now().Add(-time.Hour).Unix()
				return sign(t, jwtlib.SigningMethodHS256, testSecret, c)
			},
			wantErr: "expired",
		},
		{
			name: "missing exp",
			token: func(t *testing.T) string {
				c := validClaims()
				delete(c, "exp")
				return sign(t, jwtlib.SigningMethodHS256, testSecret, c)
			},
			wantErr: "exp",
		},
		{
			name: "wrong secret",
			token: func(t *testing.T) string {
				return sign(t, jwtlib.SigningMethodHS256, "other-secret", validClaims())
			},
			wantErr: "signature",
		},
		{
			name: "wrong issuer",
			token: func(t *testing.T) string {
				c := validClaims()
				c["iss"] = "https://evil.example.com"
				return sign(t, jwtlib.SigningMethodHS256, testSecret, c)
			},
			wantErr: "iss",
		},
		{
			name: "wrong audience",
			token: func(t *testing.T) string {
				c := validClaims()
				c["aud"] = "someone-else"
				return sign(t, jwtlib.SigningMethodHS256, testSecret, c)
			},
			wantErr: "aud",
		},
		{
			name: "unsigned",
			token: func(t *testing.T) string {
				s, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, validClaims()).
					SignedString(jwtlib.UnsafeAllowNoneSignatureType)
				if err != nil {
					t.Fatalf("signing: %v", err)
				}
				return s
			},
			wantErr: "invalid JWT",
		},
		{
			name: "missing subject",
			token: func(t *testing.T) string {
				c := validClaims()
				delete(c, "sub")
				return sign(t, jwtlib.SigningMethodHS256, testSecret, c)
			},
			wantErr: `missing "sub" claim`,
		},
	}

	a := newTestAuthenticator(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := authenticate(a, tt.token(t))
			if result.Decision != auth.No {
				t.Fatalf("Decision = %d, want No", result.Decision)
			}
			if result.Err == nil || !strings.Contains(result.Err.Error(), tt.wantErr) {
				t.Errorf("Err = %v, want it to contain %q", result.Err, tt.wantErr)
			}
		})
	}
}

func TestJWT_HS512Accepted(t *testing.T) {
	a := newTestAuthenticator(t, nil)
	result := authenticate(a, sign(t, jwtlib.SigningMethodHS512, testSecret, validClaims()))
	if result.Decision != auth.Yes {
		t.Fatalf("Decision = %d, want Yes; err=%v", result.Decision, result.Err)
	}
}

func TestJWT_NoIssuerOrAudienceCheck(t *testing.T) {
	a := newTestAuthenticator(t, func(c *Config) {
		c.Issuer = ""
		c.Audience = ""
	})
	claims := validClaims()
	claims["iss"] = "anyone"
	claims["aud"] = "anything"

	result := authenticate(a, sign(t, jwtlib.SigningMethodHS256, testSecret, claims))
	if result.Decision != auth.Yes {
		t.Fatalf("Decision = %d, want Yes; err=%v", result.Decision, result.Err)
	}
}

func TestJWT_CustomClaims(t *testing.T) {
	a := newTestAuthenticator(t, func(c *Config) {
		c.UserClaim = "email"
		c.TierClaim = "plan"
		c.ScopesClaim = "permissions"
	})
	claims := validClaims()
	claims["email"] = "alice@example.com"
	claims["plan"] = "studio"
	claims["permissions"] = []any{"chat", 42, "config"}

	result := authenticate(a, sign(t, jwtlib.SigningMethodHS256, testSecret, claims))
	if result.Decision != auth.Yes {
		t.Fatalf("Decision = %d, want Yes; err=%v", result.Decision, result.Err)
	}
	if result.Identity.Subject != "alice@example.com" {
		t.Errorf("Subject = %q", result.Identity.Subject)
	}
	if result.Identity.ServiceTier != "studio" {
		t.Errorf("ServiceTier = %q", result.Identity.ServiceTier)
	}
	if strings.Join(result.Identity.Scopes, ",") != "chat,config" {
		t.Errorf("Scopes = %v, want [chat config]", result.Identity.Scopes)
	}
}

func TestJWT_Abstains(t *testing.T) {
	a := newTestAuthenticator(t, nil)

	if got := authenticate(a, "").Decision; got != auth.Abstain {
		t.Errorf("no header: Decision = %d, want Abstain", got)
	}
	// Opaque API keys are left to the next authenticator in the chain.
	if got := authenticate(a, "sk-plain-api-key").Decision; got != auth.Abstain {
		t.Errorf("api key: Decision = %d, want Abstain", got)
	}

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	if got := a.Authenticate(context.Background(), r).Decision; got != auth.Abstain {
		t.Errorf("basic: Decision = %d, want Abstain", got)
	}
}

func TestJWT_ChainWithAPIKeys(t *testing.T) {
	a := newTestAuthenticator(t, nil)
	chain := &auth.Chain{
		Authenticators:  []auth.Authenticator{a},
		DefaultDecision: auth.No,
	}

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer "+sign(t, jwtlib.SigningMethodHS256, testSecret, validClaims()))
	if got := chain.Authenticate(context.Background(), r); got.Decision != auth.Yes {
		t.Errorf("chain Decision = %d, want Yes", got.Decision)
	}

	r = httptest.NewRequest("GET", "/", nil)
	if got := chain.Authenticate(context.Background(), r); got.Decision != auth.No {
		t.Errorf("chain without credentials: Decision = %d, want No", got.Decision)
	}
}
