package stream

import (
	"encoding/json"
	"fmt"

	"github.com/rhuss/cadence/pkg/api"
	"github.com/rhuss/cadence/pkg/tools"
)

// BuildRequest serializes a streaming request. The system prompt becomes
// the first message, followed by history in order.
func BuildRequest(model, systemPrompt string, history []api.Turn, decls []tools.Declaration) ([]byte, error) {
	req := ChatCompletionRequest{
		Model:    model,
		Stream:   true,
		Messages: make([]ChatMessage, 0, len(history)+1),
		Tools:    TranslateTools(decls),
	}

	req.Messages = append(req.Messages, ChatMessage{
		Role:    string(api.RoleSystem),
		Content: systemPrompt,
	})
	for _, turn := range history {
		req.Messages = append(req.Messages, TranslateTurn(turn))
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}
	return body, nil
}

// TranslateTurn converts one history turn into its wire message. Tool turns
// carry tool_call_id, assistant turns with calls carry tool_calls, all
// others only role and content. The tool name on tool turns is not sent.
func TranslateTurn(turn api.Turn) ChatMessage {
	msg := ChatMessage{
		Role:    string(turn.Role),
		Content: turn.Content,
	}

	switch {
	case turn.Role == api.RoleTool:
		msg.ToolCallID = turn.ToolCallID
	case turn.HasToolCalls():
		msg.ToolCalls = make([]ChatToolCall, len(turn.ToolCalls))
		for i, tc := range turn.ToolCalls {
			msg.ToolCalls[i] = ChatToolCall{
				ID:   tc.ID,
				Type: tc.Type,
				Function: ChatFunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			}
		}
	}
	return msg
}

// TranslateTools converts tool declarations into function tools. The
// result is never nil.
func TranslateTools(decls []tools.Declaration) []ChatTool {
	out := make([]ChatTool, 0, len(decls))
	for _, d := range decls {
		params := d.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, ChatTool{
			Type: "function",
			Function: ChatFunctionDef{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

// ChatCompletionRequest is the streaming request body for
// /chat/completions.
type ChatCompletionRequest struct {
	Model    string        `json:"model"`
	Stream   bool          `json:"stream"`
	Messages []ChatMessage `json:"messages"`

	// Tools is always serialized, as an empty array when no tool is
	// declared.
	Tools []ChatTool `json:"tools"`
}

// ChatMessage is one entry of the messages array.
type ChatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []ChatToolCall `json:"tool_calls,omitempty"`
}

// ChatToolCall is a tool call echoed back on an assistant message.
type ChatToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ChatFunctionCall `json:"function"`
}

// ChatFunctionCall holds the function name and its argument text.
type ChatFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatTool is a tool declaration.
type ChatTool struct {
	Type     string          `json:"type"`
	Function ChatFunctionDef `json:"function"`
}

// ChatFunctionDef describes a function tool.
type ChatFunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}
