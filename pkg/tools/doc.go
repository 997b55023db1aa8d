// Package tools defines the tool boundary of the cadence engine: the
// declarations the model sees, the invocations it requests, and the
// results fed back into the conversation.
//
// A [Registry] is the engine's only view of the tool catalog. It lists
// declarations for the request payload and executes tools by name. The
// registry subpackage aggregates [Provider] implementations (typed Go
// functions, MCP servers, the project catalog) into one Registry.
package tools
