package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/brindle/bursar-ai-agent/internal/llm"
	"github.com/brindle/bursar-ai-agent/internal/prompts"
	"github.com/brindle/bursar-ai-agent/internal/search"
	"github.com/brindle/bursar-ai-agent/internal/tools"
)

// researchMaxChars caps how much scraped or searched content is
// carried into the research prompt.
const researchMaxChars = 8000

// searchResultLimit is passed to the routed search tool.
const searchResultLimit = 5

// ResearchCompany gathers public information about a company: its
// website, scraped through the routed scrape tool or fetched directly
// when that tool is unavailable, plus web search results, summarized
// by the LLM. Each source is optional; research fails only when no
// source produced anything.
func (a *Agent) ResearchCompany(ctx context.Context, companyName, website string) *tools.Response {
	a.logger.Info("researching company", "company", companyName, "website", website)

	websiteData := a.scrapeWebsite(ctx, website)
	searchResults := a.searchWeb(ctx, companyName)

	if websiteData == "" && searchResults == "" {
		return errorResponse(fmt.Sprintf("Failed to research company online: no sources available for %s", companyName))
	}

	data := map[string]any{
		"company_name": companyName,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	}
	if websiteData != "" {
		data["website_data"] = websiteData
	}
	if searchResults != "" {
		data["search_results"] = searchResults
	}

	prompt := prompts.ResearchSummaryPrompt(companyName, websiteData, searchResults)
	resp, err := a.llmClient.Chat(ctx, a.model, []llm.Message{{Role: "user", Content: prompt}})
	if err != nil {
		// The raw findings are still worth returning without a summary.
		a.logger.Warn("research summary failed", "company", companyName, "error", err)
	} else if analysis := llm.CleanText(resp.Message.Content); analysis != "" {
		data["analysis"] = analysis
	}

	return &tools.Response{
		Success: true,
		Message: "Web research completed",
		Data:    data,
	}
}

// scrapeWebsite returns page content for url, preferring the routed
// scrape tool and falling back to a direct fetch. Returns "" when url
// is empty or both paths fail.
func (a *Agent) scrapeWebsite(ctx context.Context, url string) string {
	if url == "" {
		return ""
	}

	text, err := a.router.Call(ctx, a.research.ScrapeTool, map[string]any{
		"url":     url,
		"formats": []string{"markdown"},
	})
	if err == nil {
		return truncate(text, researchMaxChars)
	}
	a.logger.Warn("scrape tool unavailable, fetching directly",
		"tool", a.research.ScrapeTool,
		"url", url,
		"error", err,
	)

	if a.fetcher == nil {
		return ""
	}
	result, err := a.fetcher.Fetch(ctx, url, researchMaxChars)
	if err != nil {
		a.logger.Warn("direct fetch failed", "url", url, "error", err)
		return ""
	}
	return result.Content
}

// searchWeb returns search results for companyName, preferring the
// routed search tool and falling back to the direct provider. Returns
// "" when both paths fail.
func (a *Agent) searchWeb(ctx context.Context, companyName string) string {
	query := fmt.Sprintf("%s company information", companyName)

	text, err := a.router.Call(ctx, a.research.SearchTool, map[string]any{
		"query": query,
		"limit": searchResultLimit,
	})
	if err == nil {
		return truncate(text, researchMaxChars)
	}
	a.logger.Warn("search tool unavailable", "tool", a.research.SearchTool, "error", err)

	if a.searcher == nil {
		return ""
	}
	results, err := a.searcher.Search(ctx, query, search.Options{Count: searchResultLimit})
	if err != nil {
		a.logger.Warn("direct search failed", "error", err)
		return ""
	}
	if len(results) == 0 {
		return ""
	}
	return truncate(search.FormatResults(results), researchMaxChars)
}

// truncate caps s at max characters without splitting a multi-byte
// character.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	count := 0
	for i := range s {
		if count >= max {
			return s[:i]
		}
		count++
	}
	return s
}
