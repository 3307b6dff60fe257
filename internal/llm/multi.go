package llm

import (
	"context"
	"fmt"
)

// MultiClient fans Chat requests out to named providers by model name.
// The model table comes from the llm.models config block; any model not
// listed there is served by the fallback, which in a stock deployment
// is the local Ollama instance.
type MultiClient struct {
	providers map[string]Client
	byModel   map[string]string
	fallback  Client
}

// NewMultiClient returns a router that sends unmapped models to
// fallback. A nil fallback makes unmapped models an error.
func NewMultiClient(fallback Client) *MultiClient {
	return &MultiClient{
		providers: make(map[string]Client),
		byModel:   make(map[string]string),
		fallback:  fallback,
	}
}

// AddProvider registers a client under a provider name.
func (m *MultiClient) AddProvider(name string, client Client) {
	m.providers[name] = client
}

// AddModel routes a model name to a registered provider. A mapping to
// a provider that was never registered falls back like an unmapped
// model.
func (m *MultiClient) AddModel(modelName, providerName string) {
	m.byModel[modelName] = providerName
}

// Chat forwards the request to the provider serving model.
func (m *MultiClient) Chat(ctx context.Context, model string, messages []Message) (*ChatResponse, error) {
	client := m.fallback
	if name, ok := m.byModel[model]; ok {
		if c, ok := m.providers[name]; ok {
			client = c
		}
	}
	if client == nil {
		return nil, fmt.Errorf("no provider serves model %q and no fallback is configured", model)
	}
	return client.Chat(ctx, model, messages)
}

// Ping probes the fallback provider, the one every unmapped request
// depends on.
func (m *MultiClient) Ping(ctx context.Context) error {
	if m.fallback == nil {
		return fmt.Errorf("no fallback provider configured")
	}
	return m.fallback.Ping(ctx)
}
