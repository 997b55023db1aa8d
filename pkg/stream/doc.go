// Package stream owns the wire format of streaming chat completions: it
// builds the request body and assembles the streamed response.
//
// [BuildRequest] serializes the system prompt, history and tool
// declarations into the request the transport sends.
//
// The transport delivers the response as arbitrary byte fragments. A
// [LineDecoder] turns them into complete SSE lines, [ParseLine] extracts
// data payloads and the [DONE] sentinel, and an [Accumulator] folds each
// payload into the round's content, reasoning, and tool calls.
//
// Tool-call fragments are addressed by index. Indices may arrive out of
// order or with gaps; ids, types, and names are overwritten when a
// fragment carries a non-empty value, and argument text is concatenated.
// Malformed payloads are skipped without error.
package stream
