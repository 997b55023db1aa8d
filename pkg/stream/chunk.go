package stream

import "encoding/json"

// chunk is one streamed Chat Completions event. Only the fields the
// accumulator folds are decoded.
type chunk struct {
	Error   json.RawMessage `json:"error,omitempty"`
	Choices []choice        `json:"choices"`
}

type choice struct {
	Index        int     `json:"index"`
	Delta        delta   `json:"delta"`
	FinishReason *string `json:"finish_reason,omitempty"`
}

// delta carries the incremental fields. Backends label reasoning text
// differently; any of the three keys is accepted.
type delta struct {
	Role             string          `json:"role,omitempty"`
	Content          *string         `json:"content,omitempty"`
	Reasoning        *string         `json:"reasoning,omitempty"`
	Thinking         *string         `json:"thinking,omitempty"`
	ReasoningContent *string         `json:"reasoning_content,omitempty"`
	ToolCalls        []toolCallDelta `json:"tool_calls,omitempty"`
}

func (d *delta) reasoning() string {
	for _, p := range []*string{d.Reasoning, d.Thinking, d.ReasoningContent} {
		if p != nil && *p != "" {
			return *p
		}
	}
	return ""
}

type toolCallDelta struct {
	Index    int           `json:"index"`
	ID       string        `json:"id,omitempty"`
	Type     string        `json:"type,omitempty"`
	Function functionDelta `json:"function"`
}

type functionDelta struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// errorMessage extracts the message of an error field. The field is
// usually {"message": "..."} but some backends send a bare string.
func errorMessage(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", false
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Message == "" {
			return "unknown error", true
		}
		return obj.Message, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s, true
	}
	return "unknown error", true
}
