// Package engine implements the conversation engine: it turns user
// messages into streaming chat-completion requests, folds the streamed
// fragments into content, reasoning and tool calls, runs requested tools
// strictly one after another, and loops until the model answers without
// calling tools.
//
// An Engine runs at most one exchange at a time. All progress is reported
// through events delivered asynchronously to subscribers in emission
// order; the engine never waits for a subscriber.
package engine
