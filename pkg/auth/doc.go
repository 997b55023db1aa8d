// Package auth guards the cadence HTTP bridge.
//
// Authenticators vote Yes, No or Abstain on a request's credentials and a
// Chain asks them in order. Middleware runs the chain, stores the accepted
// Identity in the request context and applies per-subject rate limits.
// RequireScopes then restricts routes such as PUT /v1/config to identities
// holding a scope.
package auth
