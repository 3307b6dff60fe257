package mcp

// SessionState tracks where a server session is in its lifecycle.
// Transitions only move forward: Disconnected → Connecting →
// (Connected | Failed). There is no automatic reconnection; a Failed
// session stays failed until the router is rebuilt.
type SessionState int

const (
	// StateDisconnected means no connection attempt has been made.
	StateDisconnected SessionState = iota
	// StateConnecting means the subprocess is starting and the
	// initialize handshake is in flight.
	StateConnecting
	// StateConnected means the handshake completed and the session
	// can serve tool calls.
	StateConnected
	// StateFailed means the spawn or handshake failed. Terminal.
	StateFailed
)

// String returns the lowercase state name for logs and status output.
func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
