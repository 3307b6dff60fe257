package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func httpServerConfig(url string) ServerConfig {
	return ServerConfig{
		Name:      "remote-tools",
		Transport: "http",
		URL:       url,
	}
}

func TestHTTPTransportSend(t *testing.T) {
	var gotSession []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSession = append(gotSession, r.Header.Get("Mcp-Session-Id"))

		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.JSONRPC != "2.0" || req.Method != "tools/list" {
			t.Errorf("unexpected request: %+v", req)
		}

		w.Header().Set("Mcp-Session-Id", "sess-42")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  json.RawMessage(`{"tools":[]}`),
		})
	}))
	defer srv.Close()

	tr := NewHTTPTransport(httpServerConfig(srv.URL), nil)
	defer tr.Close()

	resp, err := tr.Send(context.Background(), NewRequest(1, "tools/list", nil))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.ID != 1 || resp.Error != nil {
		t.Fatalf("response = %+v", resp)
	}

	// The session ID assigned on the first reply rides on the second
	// request.
	if _, err := tr.Send(context.Background(), NewRequest(2, "tools/list", nil)); err != nil {
		t.Fatalf("second Send: %v", err)
	}
	if len(gotSession) != 2 || gotSession[0] != "" || gotSession[1] != "sess-42" {
		t.Errorf("session headers = %q, want [\"\" \"sess-42\"]", gotSession)
	}
}

func TestHTTPTransportSendErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(httpServerConfig(srv.URL), nil)
	_, err := tr.Send(context.Background(), NewRequest(1, "tools/list", nil))
	if err == nil {
		t.Fatal("expected error for 502")
	}
	if !strings.Contains(err.Error(), "502") || !strings.Contains(err.Error(), "upstream exploded") {
		t.Errorf("error = %v, want status and body", err)
	}
}

func TestHTTPTransportSendsConfiguredHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode(Response{JSONRPC: "2.0", ID: 1, Result: json.RawMessage(`{}`)})
	}))
	defer srv.Close()

	cfg := httpServerConfig(srv.URL)
	cfg.Headers = map[string]string{"Authorization": "Bearer tok-123"}

	tr := NewHTTPTransport(cfg, nil)
	if _, err := tr.Send(context.Background(), NewRequest(1, "initialize", nil)); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestHTTPTransportNotify(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var notif Notification
		json.NewDecoder(r.Body).Decode(&notif)
		gotMethod = notif.Method
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(httpServerConfig(srv.URL), nil)
	if err := tr.Notify(context.Background(), NewNotification("notifications/initialized", nil)); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if gotMethod != "notifications/initialized" {
		t.Errorf("method = %q", gotMethod)
	}
}

func TestHTTPTransportNotifyRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no session", http.StatusBadRequest)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(httpServerConfig(srv.URL), nil)
	err := tr.Notify(context.Background(), NewNotification("notifications/initialized", nil))
	if err == nil {
		t.Fatal("expected error for 400")
	}
	if !strings.Contains(err.Error(), "400") {
		t.Errorf("error = %v, want status code", err)
	}
}
