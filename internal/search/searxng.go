package search

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/brindle/bursar-ai-agent/internal/httpkit"
)

// SearXNG queries a self-hosted SearXNG instance. The instance must
// have the JSON output format enabled in its settings.
type SearXNG struct {
	baseURL    string
	httpClient *http.Client
}

// NewSearXNG creates a SearXNG provider. The baseURL is the root of
// the instance (e.g., "http://localhost:8080").
func NewSearXNG(baseURL string) *SearXNG {
	return &SearXNG{
		baseURL:    baseURL,
		httpClient: httpkit.NewClient(httpkit.WithTimeout(15 * time.Second)),
	}
}

func (s *SearXNG) Name() string { return "searxng" }

// Search implements Provider. SearXNG has no count parameter, so the
// result list is capped client side.
func (s *SearXNG) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	params := url.Values{
		"q":      {query},
		"format": {"json"},
	}
	if opts.Language != "" {
		params.Set("language", opts.Language)
	}

	var reply struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := queryJSON(ctx, s.httpClient, "searxng", s.baseURL+"/search", params, nil, &reply); err != nil {
		return nil, err
	}

	limit := opts.Count
	if limit == 0 {
		limit = defaultResultCount
	}
	if len(reply.Results) < limit {
		limit = len(reply.Results)
	}

	out := make([]Result, 0, limit)
	for _, r := range reply.Results[:limit] {
		out = append(out, Result{Title: r.Title, URL: r.URL, Snippet: r.Content})
	}
	return out, nil
}

// SearXNGConfig holds configuration for the SearXNG provider.
type SearXNGConfig struct {
	URL string `yaml:"url"`
}

// Configured reports whether a SearXNG URL is set.
func (c SearXNGConfig) Configured() bool {
	return c.URL != ""
}
