// Package noop provides an authenticator that accepts every request as the
// local user. The bridge uses it when auth.type is "none".
package noop

import (
	"context"
	"net/http"

	"github.com/rhuss/cadence/pkg/auth"
)

// Authenticator always returns Yes with the local identity.
type Authenticator struct{}

func (a *Authenticator) Authenticate(_ context.Context, _ *http.Request) auth.Result {
	return auth.Result{
		Decision: auth.Yes,
		Identity: &auth.Identity{
			Subject:     "local",
			ServiceTier: "default",
		},
	}
}
