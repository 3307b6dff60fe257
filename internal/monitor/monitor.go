// Package monitor implements the health monitoring agent: it sweeps
// the portfolio for companies in trouble, raises severity-ranked
// alerts, and emails grouped notifications to the configured
// recipients.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brindle/bursar-ai-agent/internal/company"
	"github.com/brindle/bursar-ai-agent/internal/config"
	"github.com/brindle/bursar-ai-agent/internal/email"
	"github.com/brindle/bursar-ai-agent/internal/events"
	"github.com/brindle/bursar-ai-agent/internal/llm"
	"github.com/brindle/bursar-ai-agent/internal/prompts"
	"github.com/brindle/bursar-ai-agent/internal/tools"
)

// Mailer sends alert notification emails. *email.Manager implements
// it; tests inject fakes.
type Mailer interface {
	Send(ctx context.Context, opts email.SendOptions) (*email.SentEmail, error)
}

// Config bundles the monitoring agent's dependencies.
type Config struct {
	// Store reads companies and persists alerts and health samples.
	Store *company.Store

	// LLM drafts alert notification emails.
	LLM llm.Client

	// Model is the model name passed on every LLM call.
	Model string

	// Email delivers alert notifications.
	Email Mailer

	// Rules holds the monitoring thresholds and recipients.
	Rules config.MonitorConfig

	// Bus optionally receives alert events. May be nil.
	Bus *events.Bus

	// Logger receives agent diagnostics.
	Logger *slog.Logger
}

// Agent monitors portfolio health and dispatches alerts.
type Agent struct {
	store     *company.Store
	llmClient llm.Client
	model     string
	email     Mailer
	rules     config.MonitorConfig
	bus       *events.Bus
	logger    *slog.Logger
}

// New creates the monitoring agent.
func New(cfg Config) *Agent {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		store:     cfg.Store,
		llmClient: cfg.LLM,
		model:     cfg.Model,
		email:     cfg.Email,
		rules:     cfg.Rules,
		bus:       cfg.Bus,
		logger:    logger,
	}
}

// MonitorHealth sweeps every company, raises alerts for the problems
// found, and records each company's current score into the health
// history the trend check reads. Alerts are returned, not yet
// persisted; ProcessAlerts stores them as it sends notifications.
func (a *Agent) MonitorHealth() ([]*company.Alert, error) {
	companies, err := a.store.ListCompanies()
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}

	now := time.Now().UTC()
	var alerts []*company.Alert
	for _, c := range companies {
		alerts = append(alerts, a.evaluateCompany(c, now)...)
	}

	a.logger.Info("health monitored",
		"companies", len(companies),
		"alerts", len(alerts),
	)
	return alerts, nil
}

// evaluateCompany applies the alert thresholds to one company. now is
// passed in so a whole sweep shares one clock.
func (a *Agent) evaluateCompany(c *company.Company, now time.Time) []*company.Alert {
	var alerts []*company.Alert

	add := func(severity company.Severity, message string) {
		alert := &company.Alert{
			ID:          company.NewID(),
			CompanyID:   c.ID,
			CompanyName: c.Name,
			Severity:    severity,
			Message:     message,
			CreatedAt:   now,
		}
		alerts = append(alerts, alert)
		a.publish(events.KindAlertRaised, map[string]any{
			"alert_id":     alert.ID,
			"company_id":   alert.CompanyID,
			"company_name": alert.CompanyName,
			"severity":     string(alert.Severity),
			"message":      alert.Message,
		})
	}

	score := company.HealthScore(c.Metrics)
	if err := a.store.RecordHealth(c.ID, score, now); err != nil {
		a.logger.Warn("failed to record health score", "company_id", c.ID, "error", err)
	}

	switch {
	case score <= a.rules.CriticalBelow:
		add(company.SeverityCritical, fmt.Sprintf("Company health score critical: %.1f%%", score))
	case score <= a.rules.HighBelow:
		add(company.SeverityHigh, fmt.Sprintf("Company health score concerning: %.1f%%", score))
	case score <= a.rules.MediumBelow:
		add(company.SeverityMedium, fmt.Sprintf("Company health score declining: %.1f%%", score))
	}

	switch c.Status {
	case company.StatusFailing:
		add(company.SeverityCritical, "Company status changed to FAILING")
	case company.StatusSuspended:
		add(company.SeverityHigh, "Company status changed to SUSPENDED")
	}

	if days := daysSince(c.LastUpdated, now); days >= a.rules.MissingDataDays {
		add(company.SeverityMedium, fmt.Sprintf("No data update for %d days", days))
	}

	if cash, ok := c.Metrics["cash_flow"]; ok && cash < a.rules.CashFlowFloor {
		add(company.SeverityHigh, "Negative cash flow: "+company.FormatCurrency(cash))
	}

	if streak := a.decliningStreak(c.ID); streak >= a.rules.DecliningDays && a.rules.DecliningDays > 0 {
		add(company.SeverityHigh, fmt.Sprintf("Consecutive declining performance for %d days", streak))
	}

	return alerts
}

// decliningStreak counts how many consecutive history samples, newest
// backwards, each dropped below the one before it. Fewer than two
// samples is no trend.
func (a *Agent) decliningStreak(companyID string) int {
	days := a.rules.DecliningDays
	if days <= 0 {
		return 0
	}
	history, err := a.store.HealthHistory(companyID, days)
	if err != nil {
		a.logger.Warn("health history unavailable", "company_id", companyID, "error", err)
		return 0
	}
	if len(history) < 2 {
		return 0
	}

	streak := 0
	for i := 0; i+1 < len(history); i++ {
		if history[i] >= history[i+1] {
			break
		}
		streak++
	}
	return streak
}

// daysSince counts whole days between then and now.
func daysSince(then, now time.Time) int {
	return int(now.Sub(then).Hours() / 24)
}

// ProcessAlerts emails the alerts to the configured recipients, one
// notification per severity group, then persists every alert. An
// alert counts as processed when its group's notification reached at
// least one recipient.
func (a *Agent) ProcessAlerts(ctx context.Context, alerts []*company.Alert) *tools.Response {
	var (
		processed int
		errs      []string
	)

	if len(a.rules.Recipients) == 0 {
		a.logger.Warn("no alert recipients configured")
	}

	grouped := groupBySeverity(alerts)
	for _, severity := range company.SeverityOrder {
		group := grouped[severity]
		if len(group) == 0 {
			continue
		}

		subject, body := a.draftNotification(ctx, severity, group)

		delivered := 0
		for _, recipient := range a.rules.Recipients {
			_, err := a.email.Send(ctx, email.SendOptions{
				To:      []string{recipient},
				Subject: subject,
				Body:    body,
			})
			if err != nil {
				errs = append(errs, fmt.Sprintf("Failed to send %s alert to %s", severity, recipient))
				a.logger.Error("alert notification failed",
					"severity", severity, "to", recipient, "error", err)
				continue
			}
			delivered++
		}
		if delivered > 0 {
			processed += len(group)
		}
	}

	for _, alert := range alerts {
		if err := a.store.InsertAlert(alert); err != nil {
			a.logger.Error("alert insert failed", "alert_id", alert.ID, "error", err)
			return errorResponse(fmt.Sprintf("Failed to process alerts: %v", err))
		}
	}

	a.logger.Info("alerts processed",
		"alerts", len(alerts),
		"notified", processed,
		"errors", len(errs),
	)
	a.publish(events.KindCycleComplete, map[string]any{
		"processed": processed,
		"errors":    len(errs),
	})

	return &tools.Response{
		Success: true,
		Message: fmt.Sprintf("Processed %d alerts", processed),
		Data:    map[string]any{"processed": processed, "errors": errs},
	}
}

func groupBySeverity(alerts []*company.Alert) map[company.Severity][]*company.Alert {
	grouped := make(map[company.Severity][]*company.Alert)
	for _, alert := range alerts {
		grouped[alert.Severity] = append(grouped[alert.Severity], alert)
	}
	return grouped
}

// draftNotification produces the subject and body for one severity
// group's email. The LLM draft is preferred; when the model is down or
// returns unusable JSON the static template goes out instead.
func (a *Agent) draftNotification(ctx context.Context, severity company.Severity, alerts []*company.Alert) (subject, body string) {
	subject, body, err := a.llmDraft(ctx, severity, alerts)
	if err != nil {
		a.logger.Warn("falling back to template notification",
			"severity", severity, "error", err)
		return prompts.AlertNotificationTemplate(
			strings.ToUpper(string(severity)), len(alerts), alertLines(alerts))
	}
	return subject, body
}

func alertLines(alerts []*company.Alert) []string {
	lines := make([]string, 0, len(alerts))
	for _, alert := range alerts {
		lines = append(lines, alert.CompanyName+": "+alert.Message)
	}
	return lines
}

// llmDraft asks the model for a subject and body covering the group.
func (a *Agent) llmDraft(ctx context.Context, severity company.Severity, alerts []*company.Alert) (subject, body string, err error) {
	details := make([]map[string]any, 0, len(alerts))
	for _, alert := range alerts {
		details = append(details, map[string]any{
			"company":   alert.CompanyName,
			"message":   alert.Message,
			"timestamp": alert.CreatedAt.Format(time.RFC3339),
		})
	}
	raw, err := json.MarshalIndent(details, "", "  ")
	if err != nil {
		return "", "", err
	}

	prompt := prompts.AlertNotificationPrompt(
		strings.ToUpper(string(severity)), len(alerts), string(raw))
	resp, err := a.llmClient.Chat(ctx, a.model, []llm.Message{{Role: "user", Content: prompt}})
	if err != nil {
		return "", "", err
	}

	var draft struct {
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := llm.DecodeJSON(resp.Message.Content, &draft); err != nil {
		return "", "", err
	}
	if draft.Subject == "" || draft.Body == "" {
		return "", "", fmt.Errorf("draft missing subject or body")
	}
	return draft.Subject, draft.Body, nil
}

// Dashboard reports recent alerts, aggregate statistics, and every
// company bucketed by the severity band of its current score.
func (a *Agent) Dashboard() *tools.Response {
	recent, err := a.store.RecentAlerts(7)
	if err != nil {
		return errorResponse(fmt.Sprintf("Failed to get alert dashboard: %v", err))
	}
	stats, err := a.store.AlertStats()
	if err != nil {
		return errorResponse(fmt.Sprintf("Failed to get alert dashboard: %v", err))
	}
	risk, err := a.riskLevels()
	if err != nil {
		return errorResponse(fmt.Sprintf("Failed to get alert dashboard: %v", err))
	}

	return &tools.Response{
		Success: true,
		Message: "Alert dashboard retrieved",
		Data: map[string]any{
			"recent_alerts":  recent,
			"statistics":     stats,
			"risk_companies": risk,
			"last_updated":   time.Now().UTC().Format(time.RFC3339),
		},
	}
}

// riskLevels buckets every company by the severity band of its current
// health score. All four buckets are always present.
func (a *Agent) riskLevels() (map[string][]map[string]any, error) {
	companies, err := a.store.ListCompanies()
	if err != nil {
		return nil, err
	}

	risk := map[string][]map[string]any{
		"critical": {},
		"high":     {},
		"medium":   {},
		"low":      {},
	}
	for _, c := range companies {
		score := company.HealthScore(c.Metrics)
		severity := string(company.ScoreSeverity(score))
		risk[severity] = append(risk[severity], map[string]any{
			"company_id":   c.ID,
			"name":         c.Name,
			"health_score": score,
			"status":       string(c.Status),
			"last_updated": c.LastUpdated.Format(time.RFC3339),
		})
	}
	return risk, nil
}

// RunCycle is the full monitoring sweep: evaluate every company, then
// notify and persist whatever alerts came out of it.
func (a *Agent) RunCycle(ctx context.Context) *tools.Response {
	a.logger.Info("starting monitoring cycle")

	alerts, err := a.MonitorHealth()
	if err != nil {
		return errorResponse(fmt.Sprintf("Failed to run monitoring cycle: %v", err))
	}
	if len(alerts) == 0 {
		return &tools.Response{Success: true, Message: "No alerts generated during monitoring cycle"}
	}
	return a.ProcessAlerts(ctx, alerts)
}

// publish emits an agent event onto the bus, if one is attached.
func (a *Agent) publish(kind string, data map[string]any) {
	a.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceMonitor,
		Kind:      kind,
		Data:      data,
	})
}

func errorResponse(msg string) *tools.Response {
	return &tools.Response{Success: false, Message: msg}
}
