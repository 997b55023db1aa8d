// Package mockbackend is a deterministic OpenAI-compatible chat completions
// server for demos and end-to-end tests. Replies depend only on the request:
//
//   - a last user message containing "fail" is rejected with HTTP 500
//   - "broken stream" yields an in-stream error event
//   - "think" streams reasoning before the answer
//   - "tempo" requests set_tempo (with the first number in the message) or
//     get_tempo when the request offers those tools
//   - after a tool turn the reply summarizes the tool output
//   - anything else is echoed back word by word
package mockbackend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/rhuss/cadence/pkg/debug"
	"github.com/rhuss/cadence/pkg/provider/openaicompat"
	"github.com/rhuss/cadence/pkg/stream"
)

// Models are served on GET /models.
var Models = []openaicompat.ChatModel{
	{ID: "mock/echo", Name: "Mock Echo", OwnedBy: "cadence", ContextLength: 8192},
	{ID: "mock/tools", Name: "Mock Tools", OwnedBy: "cadence", ContextLength: 32768},
}

// Options tune the handler.
type Options struct {
	// Prefix is prepended to the routes, e.g. "/v1".
	Prefix string

	// ChunkDelay is slept between stream chunks. Zero streams at once.
	ChunkDelay time.Duration

	// RequireKey rejects requests without a bearer token.
	RequireKey bool
}

// NewHandler returns the mock backend routes.
func NewHandler(opts Options) http.Handler {
	b := &backend{opts: opts}
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+opts.Prefix+"/chat/completions", b.handleChatCompletions)
	mux.HandleFunc("GET "+opts.Prefix+"/models", b.handleModels)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	return mux
}

type backend struct {
	opts Options
}

// chunk is one streamed completion event.
type chunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Model   string        `json:"model"`
	Choices []chunkChoice `json:"choices"`
}

type chunkChoice struct {
	Index        int        `json:"index"`
	Delta        chunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

type chunkDelta struct {
	Role      string          `json:"role,omitempty"`
	Content   string          `json:"content,omitempty"`
	Reasoning string          `json:"reasoning,omitempty"`
	ToolCalls []toolCallDelta `json:"tool_calls,omitempty"`
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

var numberPattern = regexp.MustCompile(`\d+`)

func (b *backend) authorized(w http.ResponseWriter, r *http.Request) bool {
	if !b.opts.RequireKey || strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		return true
	}
	writeError(w, http.StatusUnauthorized, "No auth credentials found")
	return false
}

func (b *backend) handleModels(w http.ResponseWriter, r *http.Request) {
	if !b.authorized(w, r) {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(openaicompat.ChatModelsResponse{Data: Models})
}

func (b *backend) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if !b.authorized(w, r) {
		return
	}

	var req stream.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages must not be empty")
		return
	}

	last := req.Messages[len(req.Messages)-1]
	text := strings.ToLower(last.Content)
	debug.Log("providers", "mock backend request", "model", req.Model, "last_role", last.Role, "messages", len(req.Messages))

	if last.Role == "user" && strings.Contains(text, "fail") {
		writeError(w, http.StatusInternalServerError, "mock failure requested")
		return
	}

	s := &streamer{w: w, rc: http.NewResponseController(w), model: req.Model, delay: b.opts.ChunkDelay}
	s.start()

	reason := "stop"
	switch {
	case last.Role == "tool":
		s.words(summarize(last.Content))
	case strings.Contains(text, "broken stream"):
		s.content("Partial ")
		s.raw(`{"error":{"message":"upstream stream interrupted"}}`)
		return
	case strings.Contains(text, "tempo") && offers(req.Tools, "set_tempo", "get_tempo"):
		if n := numberPattern.FindString(text); n != "" && offers(req.Tools, "set_tempo") {
			s.content("Setting the tempo. ")
			s.toolCall("call_tempo_1", "set_tempo", fmt.Sprintf(`{"bpm":%s}`, n))
		} else {
			s.toolCall("call_tempo_1", "get_tempo", `{}`)
		}
		reason = "tool_calls"
	default:
		if strings.Contains(text, "think") {
			s.reasoning("Considering the request. ")
		}
		s.words("You said: " + last.Content)
	}
	s.finish(reason)
}

func summarize(toolOutput string) string {
	return "Done. The tool returned: " + toolOutput
}

func offers(decls []stream.ChatTool, names ...string) bool {
	return lo.SomeBy(decls, func(t stream.ChatTool) bool {
		return lo.Contains(names, t.Function.Name)
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(openaicompat.ChatErrorResponse{
		Error: openaicompat.ChatErrorDetail{Message: message, Type: "mock_error", Code: status},
	})
}

type streamer struct {
	w     http.ResponseWriter
	rc    *http.ResponseController
	model string
	delay time.Duration
}

func (s *streamer) start() {
	s.w.Header().Set("Content-Type", "text/event-stream")
	s.w.Header().Set("Cache-Control", "no-cache")
	s.w.WriteHeader(http.StatusOK)
	// OpenRouter sends processing comments before the first chunk.
	s.write(": OPENROUTER PROCESSING\n\n")
	s.send(chunkDelta{Role: "assistant"}, nil)
}

func (s *streamer) content(text string) {
	s.send(chunkDelta{Content: text}, nil)
}

func (s *streamer) reasoning(text string) {
	s.send(chunkDelta{Reasoning: text}, nil)
}

// words streams text one word per chunk.
func (s *streamer) words(text string) {
	fields := strings.SplitAfter(text, " ")
	for _, f := range fields {
		if f != "" {
			s.content(f)
		}
	}
}

// toolCall streams a call with its arguments split over several chunks.
func (s *streamer) toolCall(id, name, args string) {
	s.send(chunkDelta{ToolCalls: []toolCallDelta{{
		Index: 0, ID: id, Type: "function", Function: functionDelta{Name: name},
	}}}, nil)
	for len(args) > 0 {
		n := min(4, len(args))
		s.send(chunkDelta{ToolCalls: []toolCallDelta{{
			Index: 0, Function: functionDelta{Arguments: args[:n]},
		}}}, nil)
		args = args[n:]
	}
}

func (s *streamer) finish(reason string) {
	s.send(chunkDelta{}, &reason)
	s.write("data: [DONE]\n\n")
}

func (s *streamer) send(d chunkDelta, finish *string) {
	data, _ := json.Marshal(chunk{
		ID:      "chatcmpl-mock",
		Object:  "chat.completion.chunk",
		Model:   s.model,
		Choices: []chunkChoice{{Delta: d, FinishReason: finish}},
	})
	s.raw(string(data))
}

func (s *streamer) raw(payload string) {
	s.write("data: " + payload + "\n\n")
}

func (s *streamer) write(text string) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	fmt.Fprint(s.w, text)
	s.rc.Flush()
}
