package transport

import (
	"context"

	"github.com/rhuss/cadence/pkg/api"
	"github.com/rhuss/cadence/pkg/engine"
	"github.com/rhuss/cadence/pkg/provider"
	"github.com/rhuss/cadence/pkg/tools"
)

// Conversation is the engine surface exposed over HTTP.
type Conversation interface {
	// SendMessage starts an exchange. It returns api.ErrNotConfigured or
	// api.ErrAlreadyProcessing synchronously.
	SendMessage(text string) error

	// Cancel aborts the active exchange, if any.
	Cancel()

	// ResetHistory cancels and clears the conversation.
	ResetHistory()

	// Configure stores the api key and model. An empty model keeps the
	// current one.
	Configure(apiKey, model string) error

	// Subscribe registers an event handler until unsubscribe is called.
	Subscribe(h engine.Handler) (unsubscribe func())

	State() engine.State
	Phase() engine.Phase
	ExchangeID() string
	IsConfigured() bool
	Model() string
	History() []api.Turn
	Tools() []tools.Declaration

	// ListModels fetches the models offered by the backend.
	ListModels(ctx context.Context) ([]provider.ModelInfo, error)
}

// HealthChecker is implemented by settings stores that can report their
// connection health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

var _ Conversation = (*engine.Engine)(nil)
