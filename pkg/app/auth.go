package app

import (
	"fmt"
	"log/slog"

	"github.com/rhuss/cadence/pkg/auth"
	"github.com/rhuss/cadence/pkg/auth/apikey"
	"github.com/rhuss/cadence/pkg/auth/jwt"
	"github.com/rhuss/cadence/pkg/auth/noop"
	"github.com/rhuss/cadence/pkg/config"
	"github.com/rhuss/cadence/pkg/transport"
)

// NewAuthMiddleware builds the bridge authentication middleware for
// cfg.Type, followed by the route scope rules. /healthz and the metrics
// path are never authenticated.
func NewAuthMiddleware(cfg config.AuthConfig, metricsPath string) (transport.Middleware, error) {
	var authn auth.Authenticator
	switch cfg.Type {
	case "none", "":
		authn = &noop.Authenticator{}
	case "apikey":
		entries := make([]apikey.Entry, 0, len(cfg.APIKeys))
		for _, k := range cfg.APIKeys {
			tier := k.ServiceTier
			if tier == "" {
				tier = "default"
			}
			entries = append(entries, apikey.Entry{
				Key:      k.Key,
				Identity: auth.Identity{Subject: k.Subject, ServiceTier: tier, Scopes: k.Scopes},
			})
		}
		authn = apikey.New(entries)
	case "jwt":
		a, err := jwt.New(jwt.Config{
			Secret:   cfg.JWT.Secret,
			Issuer:   cfg.JWT.Issuer,
			Audience: cfg.JWT.Audience,
		})
		if err != nil {
			return nil, fmt.Errorf("creating jwt authenticator: %w", err)
		}
		authn = a
	default:
		return nil, fmt.Errorf("unknown auth type %q", cfg.Type)
	}

	chain := &auth.Chain{
		Authenticators:  []auth.Authenticator{authn},
		DefaultDecision: auth.No,
	}

	// A nil *InProcessLimiter must not become a non-nil interface.
	var limiter auth.RateLimiter
	if cfg.RateLimit.RequestsPerMinute > 0 || len(cfg.RateLimit.Tiers) > 0 {
		limiter = auth.NewInProcessLimiter(cfg.RateLimit.Tiers, cfg.RateLimit.RequestsPerMinute)
	}

	bypass := []string{"/healthz"}
	if metricsPath != "" {
		bypass = append(bypass, metricsPath)
	}

	rules := make([]auth.Rule, 0, len(cfg.Scopes))
	for _, r := range cfg.Scopes {
		rules = append(rules, auth.Rule{Method: r.Method, Path: r.Path, Scope: r.Scope})
	}

	slog.Info("bridge authentication", "type", cfg.Type, "rate_limited", limiter != nil, "scope_rules", len(rules))
	return transport.Chain(
		auth.Middleware(chain, limiter, bypass),
		auth.RequireScopes(rules),
	), nil
}
