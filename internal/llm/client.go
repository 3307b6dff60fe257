// Package llm holds the chat clients behind bursar's agents: a local
// Ollama provider, the Anthropic API, and a router that picks the
// provider by model name.
package llm

import "context"

// Client is a chat provider. Implementations wrap one backend and
// normalize its responses into ChatResponse.
type Client interface {
	// Chat sends a conversation and returns the assistant turn.
	Chat(ctx context.Context, model string, messages []Message) (*ChatResponse, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}
