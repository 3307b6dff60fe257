package extract

import (
	"context"
	"fmt"

	"github.com/brindle/bursar-ai-agent/internal/tools"
)

// Tools returns the extraction agent's tool catalog.
func (a *Agent) Tools() []*tools.Tool {
	return []*tools.Tool{
		{
			Name:        "process_excel_file",
			Description: "Process an Excel file and extract company data into the database",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"file_path": map[string]any{
						"type":        "string",
						"description": "Path to the Excel file to process",
					},
					"sheet_name": map[string]any{
						"type":        "string",
						"description": "Worksheet to read (default: Sheet1)",
					},
				},
				"required": []string{"file_path"},
			},
			Handler: a.handleProcessExcelFile,
		},
		{
			Name:        "analyze_company_health",
			Description: "Analyze a company's financial health and provide insights",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"company_id": map[string]any{
						"type":        "string",
						"description": "ID of the company to analyze",
					},
				},
				"required": []string{"company_id"},
			},
			Handler: a.handleAnalyzeCompanyHealth,
		},
		{
			Name:        "search_excel_files",
			Description: "Search for Excel files on the filesystem",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"search_path": map[string]any{
						"type":        "string",
						"description": "Directory to search in (default: ~)",
						"default":     "~",
					},
					"filename_pattern": map[string]any{
						"type":        "string",
						"description": "Pattern to match (default: *.xlsx)",
						"default":     "*.xlsx",
					},
					"include_subdirs": map[string]any{
						"type":        "boolean",
						"description": "Whether to search subdirectories recursively",
						"default":     true,
					},
				},
				"required": []string{},
			},
			Handler: a.handleSearchExcelFiles,
		},
		{
			Name:        "research_company_online",
			Description: "Research a company online using web scraping and search tools",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"company_name": map[string]any{
						"type":        "string",
						"description": "Name of the company to research",
					},
					"company_website": map[string]any{
						"type":        "string",
						"description": "Optional company website URL to scrape directly",
					},
				},
				"required": []string{"company_name"},
			},
			Handler: a.handleResearchCompany,
		},
	}
}

func (a *Agent) handleProcessExcelFile(ctx context.Context, args map[string]any) (string, error) {
	path, _ := args["file_path"].(string)
	if path == "" {
		return "", fmt.Errorf("file_path is required")
	}
	sheet, _ := args["sheet_name"].(string)
	return a.ProcessExcelFile(ctx, path, sheet).Format(), nil
}

func (a *Agent) handleAnalyzeCompanyHealth(ctx context.Context, args map[string]any) (string, error) {
	id, _ := args["company_id"].(string)
	if id == "" {
		return "", fmt.Errorf("company_id is required")
	}
	return a.AnalyzeCompanyHealth(ctx, id).Format(), nil
}

func (a *Agent) handleSearchExcelFiles(ctx context.Context, args map[string]any) (string, error) {
	return a.SearchExcelFiles(ctx, args).Format(), nil
}

func (a *Agent) handleResearchCompany(ctx context.Context, args map[string]any) (string, error) {
	name, _ := args["company_name"].(string)
	if name == "" {
		return "", fmt.Errorf("company_name is required")
	}
	website, _ := args["company_website"].(string)
	return a.ResearchCompany(ctx, name, website).Format(), nil
}
