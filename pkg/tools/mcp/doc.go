// Package mcp exposes tools hosted on Model Context Protocol servers to the
// cadence tool registry.
//
// Each configured server is reached through the official MCP Go SDK over
// streamable HTTP or SSE. Tools are discovered once per connection and
// served by a [Provider] that routes calls to the owning server.
package mcp
