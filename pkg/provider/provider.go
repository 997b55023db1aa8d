package provider

import (
	"context"
	"io"
)

// Transport opens streaming chat-completion requests.
type Transport interface {
	// Stream sends body with apiKey as the bearer credential and returns
	// the response body. Successive reads deliver the stream fragments;
	// io.EOF is successful completion and any other read error is a
	// transport failure. A non-2xx response or a connection failure is
	// returned as an *api.Error before any body is handed out.
	Stream(ctx context.Context, apiKey string, body []byte) (io.ReadCloser, error)
}

// ModelLister is implemented by transports that can enumerate the models
// the backend serves.
type ModelLister interface {
	ListModels(ctx context.Context, apiKey string) ([]ModelInfo, error)
}

// ModelInfo describes one model offered by the backend.
type ModelInfo struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	OwnedBy       string `json:"owned_by,omitempty"`
	ContextLength int    `json:"context_length,omitempty"`
}
