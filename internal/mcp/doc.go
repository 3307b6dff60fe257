// Package mcp implements MCP (Model Context Protocol) client support:
// a unified router that connects Bursar to external MCP tool servers,
// discovers their tools, and dispatches tool calls to whichever server
// owns the requested name.
//
// MCP uses JSON-RPC 2.0 over two transports: stdio (subprocess) and
// streamable HTTP. Each configured server gets its own session with a
// simple lifecycle (disconnected, connecting, connected, failed); a
// failed handshake takes that server's tools out of play without
// affecting the others. A small local fallback executor serves an
// allow-listed set of filesystem tools when their owning server is
// unreachable, so callers see the same result shape either way.
//
// This package covers the client/host side only; the server side of
// the protocol lives in internal/mcpserver.
package mcp
