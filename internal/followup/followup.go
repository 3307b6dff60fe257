// Package followup implements the follow-up agent: it scans the
// portfolio for companies that have gone quiet or slipped, drafts and
// sends chase emails, and completes actions when replies arrive.
package followup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brindle/bursar-ai-agent/internal/company"
	"github.com/brindle/bursar-ai-agent/internal/config"
	"github.com/brindle/bursar-ai-agent/internal/email"
	"github.com/brindle/bursar-ai-agent/internal/events"
	"github.com/brindle/bursar-ai-agent/internal/llm"
	"github.com/brindle/bursar-ai-agent/internal/prompts"
	"github.com/brindle/bursar-ai-agent/internal/tools"
)

// Mailer is the email surface the agent needs. *email.Manager
// implements it; tests inject fakes.
type Mailer interface {
	Send(ctx context.Context, opts email.SendOptions) (*email.SentEmail, error)
	CheckForResponse(ctx context.Context, sent email.SentEmail) (bool, error)
}

// Config bundles the follow-up agent's dependencies.
type Config struct {
	// Store persists companies and follow-up actions.
	Store *company.Store

	// LLM drafts follow-up emails.
	LLM llm.Client

	// Model is the model name passed on every LLM call.
	Model string

	// Email sends follow-ups and checks for replies.
	Email Mailer

	// Rules holds the thresholds that trigger follow-up actions.
	Rules config.FollowupConfig

	// Bus optionally receives follow-up events. May be nil.
	Bus *events.Bus

	// Logger receives agent diagnostics.
	Logger *slog.Logger
}

// Agent generates, sends, and tracks follow-up actions.
type Agent struct {
	store     *company.Store
	llmClient llm.Client
	model     string
	email     Mailer
	rules     config.FollowupConfig
	bus       *events.Bus
	logger    *slog.Logger
}

// New creates the follow-up agent.
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

// CheckConditions evaluates every company against the follow-up rules
// and returns the actions that should be taken. Nothing is persisted
// here; Process saves each action as it works through the list. A
// company with an open action of the same type is skipped rather than
// chased twice for the same problem.
func (a *Agent) CheckConditions() ([]*company.FollowUpAction, error) {
	companies, err := a.store.ListCompanies()
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}

	now := time.Now().UTC()
	var actions []*company.FollowUpAction
	for _, c := range companies {
		acts, err := a.evaluateCompany(c, now)
		if err != nil {
			a.logger.Error("condition check failed", "company_id", c.ID, "error", err)
			continue
		}
		actions = append(actions, acts...)
	}

	a.logger.Info("follow-up conditions checked",
		"companies", len(companies),
		"actions", len(actions),
	)
	return actions, nil
}

// evaluateCompany applies the follow-up rules to one company. now is
// passed in so a whole sweep shares one clock.
func (a *Agent) evaluateCompany(c *company.Company, now time.Time) ([]*company.FollowUpAction, error) {
	var actions []*company.FollowUpAction

	add := func(t company.ActionType, reason string) error {
		open, err := a.store.OpenActionExists(c.ID, t)
		if err != nil {
			return err
		}
		if open {
			a.logger.Debug("open action exists, skipping",
				"company_id", c.ID, "action_type", t)
			return nil
		}
		actions = append(actions, a.newAction(c, t, reason, now))
		return nil
	}

	last, err := a.store.LastContact(c.ID)
	if err != nil {
		return nil, err
	}
	if last != nil {
		if days := daysSince(*last, now); days >= a.rules.OverdueDays {
			err := add(company.ActionOverdueResponse,
				fmt.Sprintf("No response for %d days", days))
			if err != nil {
				return nil, err
			}
		}
	}

	if score := company.HealthScore(c.Metrics); score < a.rules.DecliningHealthBelow {
		err := add(company.ActionDecliningMetrics,
			fmt.Sprintf("Health score declined to %.1f%%", score))
		if err != nil {
			return nil, err
		}
	}

	if days := daysSince(c.LastUpdated, now); days >= a.rules.MissingDataDays {
		err := add(company.ActionMissingData,
			fmt.Sprintf("No data update for %d days", days))
		if err != nil {
			return nil, err
		}
	}

	if c.Status == company.StatusFailing || c.Status == company.StatusSuspended {
		err := add(company.ActionStatusChange,
			fmt.Sprintf("Company status changed to %s", c.Status))
		if err != nil {
			return nil, err
		}
	}

	return actions, nil
}

// newAction builds a pending action due in 24 hours.
func (a *Agent) newAction(c *company.Company, t company.ActionType, reason string, now time.Time) *company.FollowUpAction {
	return &company.FollowUpAction{
		ID:        company.NewID(),
		CompanyID: c.ID,
		Type:      t,
		Reason:    reason,
		DueDate:   now.Add(24 * time.Hour),
		Status:    company.ActionPending,
		CreatedAt: now,
	}
}

// daysSince counts whole days between then and now.
func daysSince(then, now time.Time) int {
	return int(now.Sub(then).Hours() / 24)
}

// Process drafts and sends the email for each action, saving every
// action whether or not its send succeeded. Failed sends leave the
// action pending so the next sweep retries it.
func (a *Agent) Process(ctx context.Context, actions []*company.FollowUpAction) *tools.Response {
	var (
		processed int
		errs      []string
	)

	for _, action := range actions {
		if msg := a.processAction(ctx, action); msg == "" {
			processed++
		} else {
			errs = append(errs, msg)
		}
		if err := a.store.SaveAction(action); err != nil {
			errs = append(errs, fmt.Sprintf("Error processing action %s: %v", action.ID, err))
			a.logger.Error("action save failed", "action_id", action.ID, "error", err)
		}
	}

	a.logger.Info("follow-up actions processed",
		"actions", len(actions),
		"sent", processed,
		"errors", len(errs),
	)
	a.publish(events.KindCycleComplete, map[string]any{
		"processed": processed,
		"errors":    len(errs),
	})

	return &tools.Response{
		Success: true,
		Message: fmt.Sprintf("Processed %d follow-up actions", processed),
		Data:    map[string]any{"processed": processed, "errors": errs},
	}
}

// processAction drafts and sends one follow-up email and fills the
// action's delivery fields in place. It returns a report line when the
// email could not go out, empty on success; the caller persists the
// action either way.
func (a *Agent) processAction(ctx context.Context, action *company.FollowUpAction) string {
	c, err := a.store.GetCompany(action.CompanyID)
	if err != nil {
		a.logger.Error("company lookup failed", "action_id", action.ID, "error", err)
		return fmt.Sprintf("Error processing action %s: %v", action.ID, err)
	}
	if c == nil {
		return fmt.Sprintf("Failed to generate email content for action %s", action.ID)
	}

	subject, body := a.draftEmail(ctx, c, action)

	sent, err := a.email.Send(ctx, email.SendOptions{
		To:       []string{c.ContactEmail},
		Subject:  subject,
		Body:     body,
		ActionID: action.ID,
	})
	if err != nil {
		a.logger.Error("follow-up send failed",
			"action_id", action.ID, "to", c.ContactEmail, "error", err)
		return fmt.Sprintf("Failed to send email for action %s", action.ID)
	}

	action.EmailSent = true
	action.Status = company.ActionSent
	action.SentTo = sent.To
	action.SentSubject = sent.Subject
	action.SentMessageID = sent.MessageID
	sentAt := sent.SentAt
	action.SentAt = &sentAt

	a.logger.Info("follow-up sent",
		"action_id", action.ID,
		"company", c.Name,
		"action_type", action.Type,
		"to", sent.To,
	)
	a.publish(events.KindFollowupSent, map[string]any{
		"action_id":   action.ID,
		"company_id":  action.CompanyID,
		"action_type": string(action.Type),
	})
	return ""
}

// draftEmail produces the subject and body for an action's email. The
// LLM draft is preferred; when the model is down or returns unusable
// JSON the static template for the action type goes out instead.
func (a *Agent) draftEmail(ctx context.Context, c *company.Company, action *company.FollowUpAction) (subject, body string) {
	subject, body, err := a.llmDraft(ctx, c, action)
	if err != nil {
		a.logger.Warn("falling back to template email",
			"action_id", action.ID, "error", err)
		return prompts.FollowUpTemplate(c.Name, string(action.Type))
	}
	return subject, body
}

// llmDraft asks the model for a subject and body.
func (a *Agent) llmDraft(ctx context.Context, c *company.Company, action *company.FollowUpAction) (subject, body string, err error) {
	prompt := prompts.FollowUpEmailPrompt(c.Name, c.ContactEmail,
		string(action.Type), string(c.Status), action.Reason)
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

// CheckResponses sweeps the inbox for replies to sent follow-ups and
// completes the matching actions. A failed check on one action is
// logged and skipped; the reply may still be found next sweep.
func (a *Agent) CheckResponses(ctx context.Context) *tools.Response {
	actions, err := a.store.AwaitingResponse()
	if err != nil {
		return errorResponse(fmt.Sprintf("Failed to check email responses: %v", err))
	}

	updated := 0
	for _, action := range actions {
		if action.SentAt == nil {
			continue
		}
		got, err := a.email.CheckForResponse(ctx, email.SentEmail{
			To:        action.SentTo,
			Subject:   action.SentSubject,
			MessageID: action.SentMessageID,
			SentAt:    *action.SentAt,
		})
		if err != nil {
			a.logger.Warn("response check failed", "action_id", action.ID, "error", err)
			continue
		}
		if !got {
			continue
		}

		action.ResponseReceived = true
		action.Status = company.ActionCompleted
		if err := a.store.SaveAction(action); err != nil {
			a.logger.Error("action save failed", "action_id", action.ID, "error", err)
			continue
		}
		a.logger.Info("follow-up response received",
			"action_id", action.ID, "company_id", action.CompanyID)
		updated++
	}

	return &tools.Response{
		Success: true,
		Message: fmt.Sprintf("Updated %d follow-up actions with responses", updated),
		Data:    map[string]any{"updated_count": updated},
	}
}

// Stats reports follow-up action counts.
func (a *Agent) Stats() *tools.Response {
	stats, err := a.store.FollowUpStats()
	if err != nil {
		return errorResponse(fmt.Sprintf("Failed to get follow-up statistics: %v", err))
	}
	return &tools.Response{
		Success: true,
		Message: "Follow-up statistics retrieved",
		Data: map[string]any{
			"total_actions":      stats.TotalActions,
			"pending":            stats.Pending,
			"sent":               stats.Sent,
			"completed":          stats.Completed,
			"emails_sent":        stats.EmailsSent,
			"responses_received": stats.ResponsesReceived,
		},
	}
}

// RunAutomated is the full follow-up sweep: evaluate conditions, send
// the emails, then sweep the inbox for replies to earlier sends.
func (a *Agent) RunAutomated(ctx context.Context) *tools.Response {
	a.logger.Info("starting automated follow-up")

	actions, err := a.CheckConditions()
	if err != nil {
		return errorResponse(fmt.Sprintf("Failed to run automated follow-up: %v", err))
	}
	if len(actions) == 0 {
		return &tools.Response{Success: true, Message: "No follow-up actions required"}
	}

	result := a.Process(ctx, actions)

	if resp := a.CheckResponses(ctx); !resp.Success {
		a.logger.Warn("response sweep failed", "message", resp.Message)
	}

	return result
}

// publish emits an agent event onto the bus, if one is attached.
func (a *Agent) publish(kind string, data map[string]any) {
	a.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceFollowup,
		Kind:      kind,
		Data:      data,
	})
}

func errorResponse(msg string) *tools.Response {
	return &tools.Response{Success: false, Message: msg}
}
