package mcp

import "context"

// Transport delivers JSON-RPC messages to one MCP server. The two
// implementations frame messages over a child process's stdio or POST
// them to a remote HTTP endpoint; either way Send returns the response
// correlated to the request's ID.
type Transport interface {
	// Send issues a request and blocks for the matching response.
	Send(ctx context.Context, req *Request) (*Response, error)

	// Notify sends a notification; nothing comes back.
	Notify(ctx context.Context, notif *Notification) error

	// Close releases the transport. For stdio that terminates the
	// subprocess.
	Close() error
}
