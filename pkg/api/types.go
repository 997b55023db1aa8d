package api

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// Turn is one entry in conversation history.
type Turn struct {
	// Role is the author of the turn.
	Role Role `json:"role"`

	// Content is the turn text. It may be empty for an assistant turn
	// that only requested tool calls.
	Content string `json:"content"`

	// ToolCallID is set only on tool turns and names the tool call of
	// the preceding assistant turn that this turn answers.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// Name is the tool name on tool turns. It is informational and is
	// not sent back to the backend.
	Name string `json:"name,omitempty"`

	// ToolCalls is set only on assistant turns that requested tools, in
	// the order the model declared them.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall holds the function name and the raw JSON argument text.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// NewUserTurn returns a user turn with the given content.
func NewUserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// NewAssistantTurn returns an assistant turn. calls may be nil for a
// plain text answer.
func NewAssistantTurn(content string, calls []ToolCall) Turn {
	return Turn{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// NewToolTurn returns a tool turn answering the call with the given ID.
func NewToolTurn(callID, name, content string) Turn {
	return Turn{Role: RoleTool, ToolCallID: callID, Name: name, Content: content}
}

// HasToolCalls reports whether the turn is an assistant turn that
// requested tools.
func (t Turn) HasToolCalls() bool {
	return t.Role == RoleAssistant && len(t.ToolCalls) > 0
}

// CloneTurns returns a deep copy of turns so callers can read history
// without sharing the engine's backing arrays.
func CloneTurns(turns []Turn) []Turn {
	if turns == nil {
		return nil
	}
	out := make([]Turn, len(turns))
	for i, t := range turns {
		out[i] = t
		if t.ToolCalls != nil {
			out[i].ToolCalls = append([]ToolCall(nil), t.ToolCalls...)
		}
	}
	return out
}
