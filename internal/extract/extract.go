// Package extract implements the data extraction agent: it reads
// portfolio company rows out of spreadsheets, has the LLM structure
// each row into a company record, and persists the results for the
// follow-up and monitoring agents to work from.
package extract

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/brindle/bursar-ai-agent/internal/company"
	"github.com/brindle/bursar-ai-agent/internal/config"
	"github.com/brindle/bursar-ai-agent/internal/events"
	"github.com/brindle/bursar-ai-agent/internal/fetch"
	"github.com/brindle/bursar-ai-agent/internal/llm"
	"github.com/brindle/bursar-ai-agent/internal/prompts"
	"github.com/brindle/bursar-ai-agent/internal/search"
	"github.com/brindle/bursar-ai-agent/internal/tools"
)

// Routed tool names the agent depends on.
const (
	toolReadExcel   = "read_data_from_excel"
	toolSearchExcel = "search_excel_files"
)

// defaultSheet is read when the caller does not name a worksheet.
const defaultSheet = "Sheet1"

// ToolCaller dispatches a routed tool call. *mcp.Router implements it;
// tests inject fakes.
type ToolCaller interface {
	Call(ctx context.Context, name string, args map[string]any) (string, error)
}

// Searcher runs a direct web search when the routed search tool is
// unavailable. *search.Manager implements it.
type Searcher interface {
	Search(ctx context.Context, query string, opts search.Options) ([]search.Result, error)
}

// Config bundles the extraction agent's dependencies.
type Config struct {
	// Store persists extracted company records.
	Store *company.Store

	// LLM structures raw rows and writes analysis narratives.
	LLM llm.Client

	// Model is the model name passed on every LLM call.
	Model string

	// Router dispatches spreadsheet and web tool calls.
	Router ToolCaller

	// Fetcher fetches a company website directly when the routed
	// scrape tool is unavailable.
	Fetcher *fetch.Fetcher

	// Search is the direct web-search fallback. May be nil when no
	// provider is configured.
	Search Searcher

	// Research selects the routed tools company research uses.
	Research config.ResearchConfig

	// Bus optionally receives processing events. May be nil.
	Bus *events.Bus

	// Logger receives agent diagnostics.
	Logger *slog.Logger
}

// Agent extracts company data from spreadsheets and the web.
type Agent struct {
	store     *company.Store
	llmClient llm.Client
	model     string
	router    ToolCaller
	fetcher   *fetch.Fetcher
	searcher  Searcher
	research  config.ResearchConfig
	bus       *events.Bus
	logger    *slog.Logger
}

// New creates the extraction agent.
func New(cfg Config) *Agent {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		store:     cfg.Store,
		llmClient: cfg.LLM,
		model:     cfg.Model,
		router:    cfg.Router,
		fetcher:   cfg.Fetcher,
		searcher:  cfg.Search,
		research:  cfg.Research,
		bus:       cfg.Bus,
		logger:    logger,
	}
}

// ProcessExcelFile reads a spreadsheet, structures each data row into a
// company record via the LLM, validates it, and upserts it into the
// store. CSV files are parsed locally; anything else is read through
// the routed read_data_from_excel tool. Rows that fail validation are
// reported as errors, rows the model could not structure as warnings;
// the run succeeds when no row errored.
func (a *Agent) ProcessExcelFile(ctx context.Context, filePath, sheetName string) *tools.Response {
	a.logger.Info("processing spreadsheet", "file", filePath)

	rows, err := a.readRows(ctx, filePath, sheetName)
	if err != nil {
		msg := fmt.Sprintf("Failed to process Excel file: %v", err)
		a.logger.Error("spreadsheet processing failed", "file", filePath, "error", err)
		return &tools.Response{Success: false, Message: msg, Errors: []string{msg}}
	}

	var (
		processed int
		errs      []string
		warnings  []string
		first     *company.Company
	)

	for i, raw := range rows {
		rowNum := i + 1

		cleaned := cleanRow(raw)
		if len(cleaned) == 0 {
			a.logger.Debug("skipping empty row", "file", filePath, "row", rowNum)
			continue
		}

		ext, err := a.extractStructured(ctx, cleaned)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("Row %d: Could not extract structured data", rowNum))
			a.logger.Warn("structured extraction failed", "row", rowNum, "error", err)
			continue
		}

		c := ext.company()
		if verrs := c.Validate(); len(verrs) > 0 {
			for _, ve := range verrs {
				errs = append(errs, fmt.Sprintf("Row %d: %s", rowNum, ve))
			}
			continue
		}

		if err := a.store.UpsertCompany(c); err != nil {
			errs = append(errs, fmt.Sprintf("Row %d: %v", rowNum, err))
			a.logger.Error("company upsert failed", "row", rowNum, "company", c.Name, "error", err)
			continue
		}

		if first == nil {
			first = c
		}
		processed++
	}

	a.logger.Info("spreadsheet processed",
		"file", filePath,
		"rows", len(rows),
		"processed", processed,
		"errors", len(errs),
		"warnings", len(warnings),
	)
	a.publish(events.KindCycleComplete, map[string]any{
		"file":      filePath,
		"processed": processed,
		"errors":    len(errs),
	})

	data := map[string]any{"processed_rows": processed}
	if first != nil {
		data["company_data"] = first
	}
	if len(warnings) > 0 {
		data["warnings"] = warnings
	}

	if len(errs) > 0 {
		return &tools.Response{
			Success: false,
			Message: fmt.Sprintf("Processing failed with %d errors", len(errs)),
			Data:    data,
			Errors:  errs,
		}
	}
	return &tools.Response{
		Success: true,
		Message: fmt.Sprintf("Successfully processed %d rows", processed),
		Data:    data,
	}
}

// readRows loads a spreadsheet as one map per data row, keyed by the
// header row's column names.
func (a *Agent) readRows(ctx context.Context, filePath, sheetName string) ([]map[string]any, error) {
	if strings.EqualFold(filepath.Ext(filePath), ".csv") {
		return readCSVRows(filePath)
	}

	if sheetName == "" {
		sheetName = defaultSheet
	}
	text, err := a.router.Call(ctx, toolReadExcel, map[string]any{
		"filepath":   filePath,
		"sheet_name": sheetName,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", toolReadExcel, err)
	}
	return cellRows(text)
}

// readCSVRows parses a local CSV file. The first record is the header
// row; short records leave their trailing columns unset.
func readCSVRows(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) < 2 {
		return nil, nil
	}

	headers := records[0]
	rows := make([]map[string]any, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]any, len(headers))
		for i, h := range headers {
			if i >= len(rec) {
				break
			}
			row[strings.TrimSpace(h)] = rec[i]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// excelCell mirrors one entry in a read_data_from_excel payload.
type excelCell struct {
	Address string `json:"address"`
	Value   any    `json:"value"`
	Row     int    `json:"row"`
	Column  int    `json:"column"`
}

// cellRows pivots the cell list a read_data_from_excel call returns
// into row maps. The lowest-numbered row supplies the headers; cells
// in columns with no header are dropped.
func cellRows(text string) ([]map[string]any, error) {
	var payload struct {
		Cells []excelCell `json:"cells"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("unexpected excel payload: %.120s", text)
	}
	if len(payload.Cells) == 0 {
		return nil, fmt.Errorf("no cells in excel payload")
	}

	byRow := make(map[int][]excelCell)
	rowNums := make([]int, 0)
	for _, c := range payload.Cells {
		if _, seen := byRow[c.Row]; !seen {
			rowNums = append(rowNums, c.Row)
		}
		byRow[c.Row] = append(byRow[c.Row], c)
	}
	sort.Ints(rowNums)

	headers := make(map[int]string)
	for _, c := range byRow[rowNums[0]] {
		if c.Value == nil {
			continue
		}
		if h := strings.TrimSpace(fmt.Sprint(c.Value)); h != "" {
			headers[c.Column] = h
		}
	}

	rows := make([]map[string]any, 0, len(rowNums)-1)
	for _, rn := range rowNums[1:] {
		row := make(map[string]any, len(headers))
		for _, c := range byRow[rn] {
			h, ok := headers[c.Column]
			if !ok {
				continue
			}
			row[h] = c.Value
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// cleanRow normalizes a raw row: column names are lowercased with
// spaces and hyphens folded to underscores, and cells that are nil or
// blank are dropped.
func cleanRow(row map[string]any) map[string]any {
	cleaned := make(map[string]any, len(row))
	for key, value := range row {
		if value == nil {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(value)) == "" {
			continue
		}
		k := strings.ToLower(key)
		k = strings.ReplaceAll(k, " ", "_")
		k = strings.ReplaceAll(k, "-", "_")
		cleaned[k] = value
	}
	return cleaned
}

// extraction is the JSON shape the model is asked to return for a row.
type extraction struct {
	CompanyID    string             `json:"company_id"`
	Name         string             `json:"name"`
	ContactEmail string             `json:"contact_email"`
	Status       string             `json:"status"`
	Financial    map[string]any     `json:"financial_data"`
	Metrics      map[string]float64 `json:"metrics"`
}

// company builds the record to persist, generating an ID and assuming
// active status when the model omitted them.
func (e *extraction) company() *company.Company {
	id := e.CompanyID
	if id == "" {
		id = company.NewID()
	}
	status := e.Status
	if status == "" {
		status = string(company.StatusActive)
	}
	return &company.Company{
		ID:           id,
		Name:         e.Name,
		ContactEmail: e.ContactEmail,
		Status:       company.Status(status),
		Financial:    e.Financial,
		Metrics:      e.Metrics,
	}
}

// extractStructured asks the model to structure one cleaned row.
func (a *Agent) extractStructured(ctx context.Context, row map[string]any) (*extraction, error) {
	raw, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("marshal row: %w", err)
	}

	resp, err := a.llmClient.Chat(ctx, a.model, []llm.Message{
		{Role: "user", Content: prompts.CompanyExtractionPrompt(string(raw))},
	})
	if err != nil {
		return nil, fmt.Errorf("model call: %w", err)
	}

	var ext extraction
	if err := llm.DecodeJSON(resp.Message.Content, &ext); err != nil {
		return nil, err
	}
	return &ext, nil
}

// AnalyzeCompanyHealth scores a company's metrics, asks the LLM for a
// narrative assessment, and records the score sample in the health
// history the monitoring agent's trend checks read.
func (a *Agent) AnalyzeCompanyHealth(ctx context.Context, companyID string) *tools.Response {
	c, err := a.store.GetCompany(companyID)
	if err != nil {
		return errorResponse(fmt.Sprintf("Failed to analyze company health: %v", err))
	}
	if c == nil {
		return errorResponse(fmt.Sprintf("Company not found: %s", companyID))
	}

	score := company.HealthScore(c.Metrics)

	prompt := prompts.HealthAnalysisPrompt(c.Name, string(c.Status), score,
		jsonString(c.Financial), jsonString(c.Metrics))
	resp, err := a.llmClient.Chat(ctx, a.model, []llm.Message{{Role: "user", Content: prompt}})
	if err != nil {
		a.logger.Error("health analysis failed", "company_id", companyID, "error", err)
		return errorResponse(fmt.Sprintf("Failed to analyze company health: %v", err))
	}

	now := time.Now().UTC()
	if err := a.store.RecordHealth(c.ID, score, now); err != nil {
		a.logger.Warn("failed to record health score", "company_id", c.ID, "error", err)
	}

	return &tools.Response{
		Success: true,
		Message: "Company health analysis completed",
		Data: map[string]any{
			"company_id":   c.ID,
			"health_score": score,
			"analysis":     llm.CleanText(resp.Message.Content),
			"timestamp":    now.Format(time.RFC3339),
		},
	}
}

// SearchExcelFiles locates spreadsheets through the routed
// search_excel_files tool. When the Excel server is down the router's
// local fallback serves the same payload, so this keeps working.
func (a *Agent) SearchExcelFiles(ctx context.Context, args map[string]any) *tools.Response {
	text, err := a.router.Call(ctx, toolSearchExcel, args)
	if err != nil {
		return errorResponse(fmt.Sprintf("Failed to search Excel files: %v", err))
	}

	var results any
	if err := json.Unmarshal([]byte(text), &results); err != nil {
		// Not every server returns JSON; pass the text through as is.
		results = text
	}
	return &tools.Response{
		Success: true,
		Message: "Excel file search completed",
		Data:    map[string]any{"search_results": results},
	}
}

// ProcessingStatus reports company record counts from the store.
func (a *Agent) ProcessingStatus() *tools.Response {
	stats, err := a.store.ProcessingStats()
	if err != nil {
		return errorResponse(fmt.Sprintf("Failed to get processing status: %v", err))
	}

	data := map[string]any{
		"status_counts":   stats.StatusCounts,
		"total_companies": stats.TotalCompanies,
	}
	if stats.LastUpdate != nil {
		data["last_update"] = stats.LastUpdate.Format(time.RFC3339)
	}
	return &tools.Response{
		Success: true,
		Message: "Processing status retrieved",
		Data:    data,
	}
}

// publish emits an agent event onto the bus, if one is attached.
func (a *Agent) publish(kind string, data map[string]any) {
	a.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceExtract,
		Kind:      kind,
		Data:      data,
	})
}

func errorResponse(msg string) *tools.Response {
	return &tools.Response{Success: false, Message: msg}
}

// jsonString renders a value compactly for prompt interpolation.
func jsonString(v any) string {
	out, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(out)
}
