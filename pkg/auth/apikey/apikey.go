// Package apikey provides an authenticator that validates bridge API keys
// against a static set using SHA-256 hashing and constant-time comparison.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/rhuss/cadence/pkg/auth"
)

// Entry is one configured key and the identity it grants.
type Entry struct {
	Key      string
	Identity auth.Identity
}

type hashedKey struct {
	hash     [32]byte
	identity auth.Identity
}

// Authenticator validates bearer tokens or X-API-Key headers.
type Authenticator struct {
	keys []hashedKey
}

// New creates an API key authenticator. Keys are hashed immediately;
// plaintext keys are not retained. Empty keys are ignored.
func New(entries []Entry) *Authenticator {
	a := &Authenticator{}
	for _, e := range entries {
		if e.Key == "" {
			continue
		}
		a.keys = append(a.keys, hashedKey{
			hash:     sha256.Sum256([]byte(e.Key)),
			identity: e.Identity,
		})
	}
	return a
}

// Authenticate returns Yes for a known key, No for an unknown or empty key,
// and Abstain when the request carries no key at all.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.Result {
	token, ok := auth.BearerToken(r)
	if !ok {
		return auth.Result{Decision: auth.Abstain}
	}
	if token == "" {
		return auth.Result{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	tokenHash := sha256.Sum256([]byte(token))

	// Compare against every entry so timing does not reveal the position.
	var match *auth.Identity
	for i := range a.keys {
		if subtle.ConstantTimeCompare(tokenHash[:], a.keys[i].hash[:]) == 1 && match == nil {
			id := a.keys[i].identity
			match = &id
		}
	}
	if match == nil {
		return auth.Result{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}
	return auth.Result{Decision: auth.Yes, Identity: match}
}
