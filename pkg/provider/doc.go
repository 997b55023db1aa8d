// Package provider defines the transport boundary between the engine and a
// chat-completion backend.
//
// The engine builds the request body itself and hands it to a [Transport]
// together with the bearer credential. The transport returns the raw
// streaming body; the engine decodes it with the stream package. Aborting
// is context cancellation plus Close, after which no further bytes are
// delivered.
package provider
