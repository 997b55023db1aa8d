// Package api defines the conversation data model shared by the cadence
// engine, the stream assembler, and the transport adapters.
//
// Core types:
//   - [Turn]: one entry in conversation history (user, assistant, tool, system)
//   - [ToolCall]: the raw tool invocation structure carried by assistant turns
//   - [Error]: structured error with a [Kind] from the engine's error taxonomy
//
// The package has no external dependencies and performs no I/O. The JSON
// tags on [ToolCall] match the Chat Completions wire format so assistant
// turns can be echoed back to the backend unchanged.
package api
