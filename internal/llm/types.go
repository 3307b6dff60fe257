package llm

import (
	"log/slog"
	"time"
)

// LevelTrace is the wire-payload log level, below slog.LevelDebug. It
// matches the "trace" level the logging config accepts.
const LevelTrace = slog.Level(-8)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"` // "system", "user", or "assistant"
	Content string `json:"content"`
}

// ChatResponse is a provider-neutral chat result. Each provider
// converts its own wire format into this in its own file; nothing
// outside the package sees backend-specific shapes.
type ChatResponse struct {
	Model     string
	CreatedAt time.Time
	Message   Message
	Done      bool

	// Token counts, when the provider reports them.
	InputTokens  int
	OutputTokens int

	// Timing, when the provider reports it.
	TotalDuration time.Duration
	LoadDuration  time.Duration
	EvalDuration  time.Duration
}
