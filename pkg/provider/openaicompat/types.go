package openaicompat

// ChatErrorResponse is the error body returned with non-2xx statuses.
type ChatErrorResponse struct {
	Error ChatErrorDetail `json:"error"`
}

// ChatErrorDetail carries the error message.
type ChatErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Code    any    `json:"code,omitempty"`
}

// ChatModelsResponse is the body of GET /models. OpenRouter adds name and
// context_length to the OpenAI shape.
type ChatModelsResponse struct {
	Data []ChatModel `json:"data"`
}

// ChatModel is one entry of ChatModelsResponse.
type ChatModel struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	OwnedBy       string `json:"owned_by,omitempty"`
	ContextLength int    `json:"context_length,omitempty"`
}
