// Package openaicompat implements the provider transport for
// OpenAI-compatible Chat Completions backends such as OpenRouter.
//
// [Client] posts a request body built by stream.BuildRequest to
// {base}/chat/completions and hands the raw SSE body back to the caller.
// Non-2xx responses are mapped to API errors using the backend's
// error.message when present.
package openaicompat
