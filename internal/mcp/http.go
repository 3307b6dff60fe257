package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/brindle/bursar-ai-agent/internal/httpkit"
)

// sessionHeader carries the server-assigned session ID on streamable
// HTTP transports.
const sessionHeader = "Mcp-Session-Id"

// maxResponseBytes caps how much of an HTTP response body is read.
const maxResponseBytes = 10 << 20

// HTTPTransport speaks JSON-RPC to a remote MCP server over streamable
// HTTP: every request and notification is an HTTP POST, and the reply
// rides in the response body.
type HTTPTransport struct {
	name       string
	url        string
	headers    map[string]string
	httpClient *http.Client

	mu        sync.RWMutex
	sessionID string
}

// NewHTTPTransport builds the transport for one configured server. Only
// the URL and Headers fields of the config apply here; command-related
// fields belong to the stdio transport.
func NewHTTPTransport(cfg ServerConfig, logger *slog.Logger) *HTTPTransport {
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPTransport{
		name:    cfg.Name,
		url:     cfg.URL,
		headers: cfg.Headers,
		httpClient: httpkit.NewClient(
			httpkit.WithLogger(logger.With("mcp_server", cfg.Name)),
		),
	}
}

// post sends one JSON-RPC payload and returns the raw HTTP response.
// The caller owns the response body. The server-assigned session ID is
// captured from the reply and echoed on every later request.
func (t *HTTPTransport) post(ctx context.Context, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	t.mu.RLock()
	if t.sessionID != "" {
		req.Header.Set(sessionHeader, t.sessionID)
	}
	t.mu.RUnlock()

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST to %s: %w", t.url, err)
	}

	if sid := resp.Header.Get(sessionHeader); sid != "" {
		t.mu.Lock()
		t.sessionID = sid
		t.mu.Unlock()
	}
	return resp, nil
}

// Send posts a JSON-RPC request and decodes the JSON-RPC response.
func (t *HTTPTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	httpResp, err := t.post(ctx, req)
	if err != nil {
		return nil, err
	}
	defer httpkit.DrainAndClose(httpResp.Body, 1<<20)

	if httpResp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(httpResp.Body, 1<<20)
		return nil, fmt.Errorf("MCP server %s returned %d: %s", t.name, httpResp.StatusCode, errBody)
	}

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &resp, nil
}

// Notify posts a JSON-RPC notification. Servers answer notifications
// with 200 or 202 and no JSON-RPC body.
func (t *HTTPTransport) Notify(ctx context.Context, notif *Notification) error {
	httpResp, err := t.post(ctx, notif)
	if err != nil {
		return err
	}
	defer httpkit.DrainAndClose(httpResp.Body, 1<<20)

	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusAccepted {
		errBody := httpkit.ReadErrorBody(httpResp.Body, 1<<20)
		return fmt.Errorf("MCP server %s returned %d for notification: %s", t.name, httpResp.StatusCode, errBody)
	}
	return nil
}

// Close is a no-op; the pooled HTTP client has nothing per-server to
// tear down.
func (t *HTTPTransport) Close() error {
	return nil
}
