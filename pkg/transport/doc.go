// Package transport defines the contract between the cadence HTTP bridge
// and the conversation engine, together with the HTTP middleware chain the
// bridge runs every request through.
//
// # Conversation
//
// Conversation is the engine surface the bridge drives: sending messages,
// cancelling, resetting history, configuring credentials and subscribing to
// engine events. *engine.Engine implements it.
//
// # Middleware
//
// Built-in middleware provides panic recovery, request ID assignment
// (X-Request-ID), and structured logging via log/slog. Chain composes them
// with the metrics and authentication middleware of the observability and
// auth packages.
//
// # Streams
//
// StreamRegistry tracks long-lived event streams so a graceful shutdown can
// end them instead of waiting for clients to disconnect.
package transport
