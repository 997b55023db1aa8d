package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
)

// Decision is the vote of one authenticator.
type Decision int

const (
	// Yes accepts the request with the returned identity and ends the chain.
	Yes Decision = iota

	// No rejects the request and ends the chain.
	No

	// Abstain passes the request on to the next authenticator.
	Abstain
)

// Result is the outcome of one authentication attempt. Identity is set only
// for Yes, Err only for No.
type Result struct {
	Decision Decision
	Identity *Identity
	Err      error
}

// Identity is the caller controlling the conversation through the bridge.
type Identity struct {
	Subject     string
	ServiceTier string // selects the rate limit
	Scopes      []string

	// Metadata carries authenticator-specific data, e.g. the JWT issuer.
	Metadata map[string]string
}

// HasScope reports whether the identity was granted scope.
func (id *Identity) HasScope(scope string) bool {
	return id != nil && slices.Contains(id.Scopes, scope)
}

// BearerToken extracts the credential of a request. It reads the
// "Authorization: Bearer" header and falls back to "X-API-Key". ok is false
// when neither header is present or Authorization uses another scheme.
func BearerToken(r *http.Request) (token string, ok bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		rest, found := strings.CutPrefix(header, "Bearer ")
		if !found {
			return "", false
		}
		return strings.TrimSpace(rest), true
	}
	if key, present := r.Header["X-Api-Key"]; present && len(key) > 0 {
		return strings.TrimSpace(key[0]), true
	}
	return "", false
}

// Authenticator votes on the credentials of a request.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) Result
}

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("access denied")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// Chain asks its authenticators in order until one votes Yes or No.
type Chain struct {
	Authenticators []Authenticator

	// DefaultDecision applies when every authenticator abstains. Yes admits
	// the caller as "anonymous".
	DefaultDecision Decision
}

// Authenticate runs the chain.
func (c *Chain) Authenticate(ctx context.Context, r *http.Request) Result {
	for _, authn := range c.Authenticators {
		if result := authn.Authenticate(ctx, r); result.Decision != Abstain {
			return result
		}
	}

	if c.DefaultDecision == Yes {
		return Result{
			Decision: Yes,
			Identity: &Identity{Subject: "anonymous", ServiceTier: "default"},
		}
	}
	return Result{Decision: No, Err: ErrUnauthenticated}
}
