// Package company holds the portfolio data model: companies, follow-up
// actions, health alerts, and their SQLite persistence.
package company

import (
	"time"
)

// Status is the lifecycle state of a portfolio company.
type Status string

const (
	StatusActive    Status = "active"
	StatusFailing   Status = "failing"
	StatusSuspended Status = "suspended"
	StatusClosed    Status = "closed"
)

// ValidStatus reports whether s is a recognized company status.
func ValidStatus(s string) bool {
	switch Status(s) {
	case StatusActive, StatusFailing, StatusSuspended, StatusClosed:
		return true
	}
	return false
}

// Severity ranks notification alerts.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SeverityOrder lists severities worst-first, for grouped reporting.
var SeverityOrder = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// Company is one portfolio company and its latest reported numbers.
// Financial holds raw reported figures; Metrics holds normalized
// performance ratios used for health scoring.
type Company struct {
	ID           string             `json:"company_id"`
	Name         string             `json:"name"`
	ContactEmail string             `json:"contact_email"`
	Status       Status             `json:"status"`
	LastUpdated  time.Time          `json:"last_updated"`
	Financial    map[string]any     `json:"financial_data,omitempty"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
}

// ActionType classifies why a follow-up was generated.
type ActionType string

const (
	ActionOverdueResponse  ActionType = "overdue_response"
	ActionDecliningMetrics ActionType = "declining_metrics"
	ActionMissingData      ActionType = "missing_data"
	ActionStatusChange     ActionType = "status_change"
)

// ActionStatus tracks a follow-up action through its lifecycle.
type ActionStatus string

const (
	ActionPending   ActionStatus = "pending"   // Created, email not yet sent
	ActionSent      ActionStatus = "sent"      // Email sent, awaiting response
	ActionCompleted ActionStatus = "completed" // Response received
)

// FollowUpAction is one outreach item generated for a company. The
// Sent* fields record the outbound email so replies can be matched
// back to the action.
type FollowUpAction struct {
	ID               string       `json:"action_id"`
	CompanyID        string       `json:"company_id"`
	Type             ActionType   `json:"action_type"`
	Reason           string       `json:"reason,omitempty"`
	DueDate          time.Time    `json:"due_date"`
	Status           ActionStatus `json:"status"`
	EmailSent        bool         `json:"email_sent"`
	ResponseReceived bool         `json:"response_received"`
	SentTo           string       `json:"sent_to,omitempty"`
	SentSubject      string       `json:"sent_subject,omitempty"`
	SentMessageID    string       `json:"sent_message_id,omitempty"`
	SentAt           *time.Time   `json:"sent_at,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}

// Alert is a health notification raised during a monitoring cycle.
type Alert struct {
	ID          string    `json:"alert_id"`
	CompanyID   string    `json:"company_id"`
	CompanyName string    `json:"company_name"`
	Severity    Severity  `json:"severity"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"timestamp"`
	Resolved    bool      `json:"resolved"`
}

// HealthRecord is one historical health score sample.
type HealthRecord struct {
	CompanyID  string    `json:"company_id"`
	Score      float64   `json:"health_score"`
	RecordedAt time.Time `json:"recorded_date"`
}

// FollowUpStats summarizes follow-up action state across the portfolio.
type FollowUpStats struct {
	TotalActions      int `json:"total_actions"`
	Pending           int `json:"pending"`
	Sent              int `json:"sent"`
	Completed         int `json:"completed"`
	EmailsSent        int `json:"emails_sent"`
	ResponsesReceived int `json:"responses_received"`
}

// AlertStats summarizes raised alerts by severity.
type AlertStats struct {
	TotalAlerts int `json:"total_alerts"`
	Critical    int `json:"critical"`
	High        int `json:"high"`
	Medium      int `json:"medium"`
	Low         int `json:"low"`
	Resolved    int `json:"resolved"`
}

// ProcessingStats summarizes company records in the store.
type ProcessingStats struct {
	StatusCounts   map[string]int `json:"status_counts"`
	TotalCompanies int            `json:"total_companies"`
	LastUpdate     *time.Time     `json:"last_update,omitempty"`
}
