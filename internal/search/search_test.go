package search

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// mockProvider is a simple test provider.
type mockProvider struct {
	name    string
	results []Result
	err     error
}

func (m *mockProvider) Name() string { return m.name }
func (m *mockProvider) Search(_ context.Context, _ string, _ Options) ([]Result, error) {
	return m.results, m.err
}

func TestManagerSearch(t *testing.T) {
	mgr := NewManager("mock")
	mgr.Register(&mockProvider{
		name: "mock",
		results: []Result{
			{Title: "Test", URL: "https://example.com", Snippet: "A test result"},
		},
	})

	results, err := mgr.Search(context.Background(), "test", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Title != "Test" {
		t.Errorf("expected title 'Test', got %q", results[0].Title)
	}
}

func TestManagerSearchProviderError(t *testing.T) {
	mgr := NewManager("mock")
	mgr.Register(&mockProvider{name: "mock", err: errors.New("rate limited")})

	_, err := mgr.Search(context.Background(), "test", Options{})
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestManagerUnconfigured(t *testing.T) {
	mgr := NewManager("missing")
	_, err := mgr.Search(context.Background(), "test", Options{})
	if err == nil {
		t.Fatal("expected error for missing provider")
	}
	if !strings.Contains(err.Error(), `"missing"`) {
		t.Errorf("error should name the missing provider, got %v", err)
	}
}

func TestManagerProviders(t *testing.T) {
	mgr := NewManager("a")
	if got := mgr.Providers(); len(got) != 0 {
		t.Fatalf("expected no providers, got %v", got)
	}
	mgr.Register(&mockProvider{name: "a"})
	mgr.Register(&mockProvider{name: "b"})
	if got := mgr.Providers(); len(got) != 2 {
		t.Errorf("expected 2 providers, got %v", got)
	}
}

func TestSearXNGSearch(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQuery = map[string]string{
			"q":        q.Get("q"),
			"format":   q.Get("format"),
			"language": q.Get("language"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[
			{"title":"Acme Corp","url":"https://acme.example","content":"Compliance automation"},
			{"title":"Acme funding","url":"https://news.example/acme","content":"Series B"},
			{"title":"Acme careers","url":"https://acme.example/jobs","content":""}
		]}`))
	}))
	defer srv.Close()

	p := NewSearXNG(srv.URL)
	results, err := p.Search(context.Background(), "Acme Corp", Options{Count: 2, Language: "en"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if gotQuery["q"] != "Acme Corp" || gotQuery["format"] != "json" || gotQuery["language"] != "en" {
		t.Errorf("query params = %v", gotQuery)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (client-side cap)", len(results))
	}
	want := Result{Title: "Acme Corp", URL: "https://acme.example", Snippet: "Compliance automation"}
	if results[0] != want {
		t.Errorf("results[0] = %+v, want %+v", results[0], want)
	}
}

func TestSearXNGSearchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "search disabled", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewSearXNG(srv.URL).Search(context.Background(), "x", Options{})
	if err == nil {
		t.Fatal("expected error for HTTP 403")
	}
	for _, want := range []string{"searxng", "403", "search disabled"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestBraveSearch(t *testing.T) {
	var gotToken, gotCount string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Subscription-Token")
		gotCount = r.URL.Query().Get("count")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"web":{"results":[
			{"title":"Acme Corp","url":"https://acme.example","description":"Official site"}
		]}}`))
	}))
	defer srv.Close()

	p := NewBrave("tok-99")
	p.endpoint = srv.URL

	results, err := p.Search(context.Background(), "Acme", Options{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if gotToken != "tok-99" {
		t.Errorf("X-Subscription-Token = %q, want %q", gotToken, "tok-99")
	}
	if gotCount != "5" {
		t.Errorf("count param = %q, want default %q", gotCount, "5")
	}
	if len(results) != 1 || results[0].Snippet != "Official site" {
		t.Errorf("results = %+v", results)
	}
}

func TestFormatResults(t *testing.T) {
	results := []Result{
		{Title: "First", URL: "https://a.com", Snippet: "Snippet A"},
		{Title: "Second", URL: "https://b.com"},
	}
	out := FormatResults(results)

	if !strings.HasPrefix(out, "1. First") {
		t.Errorf("expected numbered first entry, got %q", out)
	}
	for _, want := range []string{"https://a.com", "Snippet A", "2. Second", "https://b.com"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "\n\n") != 1 {
		t.Errorf("entries should be separated by a blank line:\n%s", out)
	}
}

func TestFormatResultsEmpty(t *testing.T) {
	if out := FormatResults(nil); out != "No results found." {
		t.Errorf("expected 'No results found.', got %q", out)
	}
}
