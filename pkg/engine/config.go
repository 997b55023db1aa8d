package engine

import "context"

// DefaultMaxRounds caps the streaming requests of one exchange.
const DefaultMaxRounds = 10

// DefaultModel is used when neither the settings store nor Config names a
// model.
const DefaultModel = "anthropic/claude-sonnet-4.5"

// Settings keys in the configuration store.
const (
	SettingsNamespace = "agent"
	KeyAPIKey         = "apikey"
	KeyModel          = "model"
)

// Config holds configuration for the engine.
type Config struct {
	// DefaultModel is the model used until one is configured. Empty means
	// DefaultModel.
	DefaultModel string

	// APIKey, when set, takes precedence over the stored key. It is not
	// persisted.
	APIKey string

	// MaxRounds is the maximum number of streaming requests per exchange.
	// Zero means DefaultMaxRounds; a negative value disables the cap.
	MaxRounds int

	// AllowedTools restricts the tools offered to the model. Empty allows
	// every tool of the registry.
	AllowedTools []string

	// SystemPrompt returns the system message of each request. It is
	// called once per round so it can reflect current state.
	SystemPrompt func() string

	// BaseContext is the parent of every exchange context. Defaults to
	// context.Background().
	BaseContext context.Context
}

func (c Config) maxRounds() int {
	if c.MaxRounds == 0 {
		return DefaultMaxRounds
	}
	return c.MaxRounds
}

func (c Config) defaultModel() string {
	if c.DefaultModel == "" {
		return DefaultModel
	}
	return c.DefaultModel
}

func (c Config) systemPrompt() string {
	if c.SystemPrompt == nil {
		return SystemPrompt(0)
	}
	return c.SystemPrompt()
}

func (c Config) baseContext() context.Context {
	if c.BaseContext == nil {
		return context.Background()
	}
	return c.BaseContext
}
