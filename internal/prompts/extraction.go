package prompts

import "fmt"

// companyExtractionTemplate is the prompt sent to an LLM to structure one
// raw spreadsheet row into a company record. The single format verb is the
// raw row rendered as key: value lines.
const companyExtractionTemplate = `Extract and structure the following company data from a spreadsheet row.
Return a JSON object with exactly these fields:
- company_id: unique identifier; reuse an existing id from the row if present
- name: company name
- contact_email: primary contact email
- status: one of "active", "failing", "suspended", "closed"
- financial_data: object with financial figures (revenue, cash_flow, ...)
- metrics: object with numerical performance metrics (normalized 0-1 where given)

Omit fields the row has no data for rather than inventing values.

Raw data:
%s

Return only valid JSON, no additional text.

JSON:`

// CompanyExtractionPrompt returns the fully interpolated prompt for
// structuring one raw spreadsheet row. The caller passes the row rendered
// as key: value lines.
func CompanyExtractionPrompt(rawData string) string {
	return fmt.Sprintf(companyExtractionTemplate, rawData)
}

// healthAnalysisTemplate is the prompt for a narrative health assessment of
// one portfolio company. The format verbs are company name, status, computed
// health score, financial data JSON, and metrics JSON.
const healthAnalysisTemplate = `Analyze the following portfolio company data and provide insights.

Company: %s
Status: %s
Health Score: %.1f/100
Financial Data: %s
Metrics: %s

Provide a concise analysis covering:
1. Current health assessment
2. Key risk factors
3. Recommendations for improvement
4. Predicted trend for next quarter`

// HealthAnalysisPrompt returns the fully interpolated prompt for the
// narrative analysis accompanying a computed health score. financialData
// and metrics are pre-marshaled JSON.
func HealthAnalysisPrompt(name, status string, healthScore float64, financialData, metrics string) string {
	return fmt.Sprintf(healthAnalysisTemplate, name, status, healthScore, financialData, metrics)
}
