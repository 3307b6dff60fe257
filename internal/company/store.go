package company

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store persists companies, follow-up actions, alerts, and health
// history in SQLite. All agents share one store so follow-up state and
// monitoring history stay consistent.
type Store struct {
	db *sql.DB
}

// NewStore creates a company store on db, running migrations on first
// use. The caller owns the database handle.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate company store: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS companies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		contact_email TEXT NOT NULL,
		status TEXT NOT NULL,
		last_updated TEXT NOT NULL,
		financial_json TEXT NOT NULL,
		metrics_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS follow_up_actions (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		action_type TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		due_date TEXT NOT NULL,
		status TEXT NOT NULL,
		email_sent INTEGER NOT NULL DEFAULT 0,
		response_received INTEGER NOT NULL DEFAULT 0,
		sent_to TEXT NOT NULL DEFAULT '',
		sent_subject TEXT NOT NULL DEFAULT '',
		sent_message_id TEXT NOT NULL DEFAULT '',
		sent_at TEXT,
		created_at TEXT NOT NULL,
		FOREIGN KEY (company_id) REFERENCES companies(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS notification_alerts (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		company_name TEXT NOT NULL,
		severity TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at TEXT NOT NULL,
		resolved INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS health_scores (
		company_id TEXT NOT NULL,
		score REAL NOT NULL,
		recorded_at TEXT NOT NULL,
		PRIMARY KEY (company_id, recorded_at)
	);

	CREATE INDEX IF NOT EXISTS idx_actions_company ON follow_up_actions(company_id);
	CREATE INDEX IF NOT EXISTS idx_actions_status ON follow_up_actions(status);
	CREATE INDEX IF NOT EXISTS idx_alerts_created ON notification_alerts(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// NewID generates a new UUIDv7.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails
		return uuid.New().String()
	}
	return id.String()
}

// Timestamps are stored as UTC RFC3339Nano strings so cutoff queries
// can compare them lexicographically.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

type scanner interface {
	Scan(dest ...any) error
}

// UpsertCompany inserts a company or replaces the record with the same
// ID, keeping follow-up history attached.
func (s *Store) UpsertCompany(c *Company) error {
	if c.LastUpdated.IsZero() {
		c.LastUpdated = time.Now()
	}

	financialJSON, err := json.Marshal(c.Financial)
	if err != nil {
		return fmt.Errorf("marshal financial data: %w", err)
	}
	metricsJSON, err := json.Marshal(c.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO companies (id, name, contact_email, status, last_updated, financial_json, metrics_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			contact_email = excluded.contact_email,
			status = excluded.status,
			last_updated = excluded.last_updated,
			financial_json = excluded.financial_json,
			metrics_json = excluded.metrics_json
	`, c.ID, c.Name, c.ContactEmail, string(c.Status), formatTime(c.LastUpdated),
		string(financialJSON), string(metricsJSON))

	return err
}

// GetCompany retrieves a company by ID.
// Returns nil, nil when no company with the given ID exists.
func (s *Store) GetCompany(id string) (*Company, error) {
	row := s.db.QueryRow(`
		SELECT id, name, contact_email, status, last_updated, financial_json, metrics_json
		FROM companies WHERE id = ?
	`, id)

	c, err := scanCompany(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// ListCompanies returns all companies ordered by name.
func (s *Store) ListCompanies() ([]*Company, error) {
	rows, err := s.db.Query(`
		SELECT id, name, contact_email, status, last_updated, financial_json, metrics_json
		FROM companies ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var companies []*Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		companies = append(companies, c)
	}

	return companies, rows.Err()
}

func scanCompany(row scanner) (*Company, error) {
	var c Company
	var status, lastUpdated, financialJSON, metricsJSON string

	err := row.Scan(&c.ID, &c.Name, &c.ContactEmail, &status, &lastUpdated, &financialJSON, &metricsJSON)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(financialJSON), &c.Financial); err != nil {
		return nil, fmt.Errorf("unmarshal financial data: %w", err)
	}
	if err := json.Unmarshal([]byte(metricsJSON), &c.Metrics); err != nil {
		return nil, fmt.Errorf("unmarshal metrics: %w", err)
	}

	c.Status = Status(status)
	c.LastUpdated = parseTime(lastUpdated)

	return &c, nil
}

// SaveAction inserts a follow-up action or updates the mutable fields
// of the record with the same ID.
func (s *Store) SaveAction(a *FollowUpAction) error {
	if a.ID == "" {
		a.ID = NewID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	if a.Status == "" {
		a.Status = ActionPending
	}

	emailSent := 0
	if a.EmailSent {
		emailSent = 1
	}
	responseReceived := 0
	if a.ResponseReceived {
		responseReceived = 1
	}

	var sentAt *string
	if a.SentAt != nil {
		v := formatTime(*a.SentAt)
		sentAt = &v
	}

	_, err := s.db.Exec(`
		INSERT INTO follow_up_actions (
			id, company_id, action_type, reason, due_date, status,
			email_sent, response_received, sent_to, sent_subject, sent_message_id, sent_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			email_sent = excluded.email_sent,
			response_received = excluded.response_received,
			sent_to = excluded.sent_to,
			sent_subject = excluded.sent_subject,
			sent_message_id = excluded.sent_message_id,
			sent_at = excluded.sent_at
	`, a.ID, a.CompanyID, string(a.Type), a.Reason, formatTime(a.DueDate), string(a.Status),
		emailSent, responseReceived, a.SentTo, a.SentSubject, a.SentMessageID, sentAt,
		formatTime(a.CreatedAt))

	return err
}

// PendingActions returns actions that are still open (pending or sent).
func (s *Store) PendingActions() ([]*FollowUpAction, error) {
	return s.queryActions(`
		SELECT id, company_id, action_type, reason, due_date, status,
		       email_sent, response_received, sent_to, sent_subject, sent_message_id, sent_at, created_at
		FROM follow_up_actions
		WHERE status IN (?, ?)
		ORDER BY created_at
	`, string(ActionPending), string(ActionSent))
}

// AwaitingResponse returns open actions whose email went out but whose
// response has not been recorded.
func (s *Store) AwaitingResponse() ([]*FollowUpAction, error) {
	return s.queryActions(`
		SELECT id, company_id, action_type, reason, due_date, status,
		       email_sent, response_received, sent_to, sent_subject, sent_message_id, sent_at, created_at
		FROM follow_up_actions
		WHERE status IN (?, ?) AND email_sent = 1 AND response_received = 0
		ORDER BY created_at
	`, string(ActionPending), string(ActionSent))
}

// OpenActionExists reports whether the company already has an open
// action of the given type. Used to keep repeated condition checks
// from piling up duplicate follow-ups.
func (s *Store) OpenActionExists(companyID string, actionType ActionType) (bool, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM follow_up_actions
		WHERE company_id = ? AND action_type = ? AND status IN (?, ?)
	`, companyID, string(actionType), string(ActionPending), string(ActionSent)).Scan(&n)
	return n > 0, err
}

func (s *Store) queryActions(query string, args ...any) ([]*FollowUpAction, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []*FollowUpAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}

	return actions, rows.Err()
}

func scanAction(row scanner) (*FollowUpAction, error) {
	var a FollowUpAction
	var actionType, status, dueDate, createdAt string
	var emailSent, responseReceived int
	var sentAt sql.NullString

	err := row.Scan(&a.ID, &a.CompanyID, &actionType, &a.Reason, &dueDate, &status,
		&emailSent, &responseReceived, &a.SentTo, &a.SentSubject, &a.SentMessageID, &sentAt, &createdAt)
	if err != nil {
		return nil, err
	}

	a.Type = ActionType(actionType)
	a.Status = ActionStatus(status)
	a.DueDate = parseTime(dueDate)
	a.CreatedAt = parseTime(createdAt)
	a.EmailSent = emailSent == 1
	a.ResponseReceived = responseReceived == 1
	if sentAt.Valid {
		t := parseTime(sentAt.String)
		a.SentAt = &t
	}

	return &a, nil
}

// LastContact returns when the company was last emailed, based on the
// sent_at of its emailed follow-up actions. Returns nil when the
// company has never been contacted.
func (s *Store) LastContact(companyID string) (*time.Time, error) {
	var last sql.NullString
	err := s.db.QueryRow(`
		SELECT MAX(sent_at) FROM follow_up_actions
		WHERE company_id = ? AND email_sent = 1
	`, companyID).Scan(&last)
	if err != nil {
		return nil, err
	}
	if !last.Valid || last.String == "" {
		return nil, nil
	}

	t := parseTime(last.String)
	return &t, nil
}

// FollowUpStats aggregates follow-up action counts.
func (s *Store) FollowUpStats() (*FollowUpStats, error) {
	var st FollowUpStats
	err := s.db.QueryRow(`
		SELECT
			COUNT(*),
			COUNT(CASE WHEN status = 'pending' THEN 1 END),
			COUNT(CASE WHEN status = 'sent' THEN 1 END),
			COUNT(CASE WHEN status = 'completed' THEN 1 END),
			COUNT(CASE WHEN email_sent = 1 THEN 1 END),
			COUNT(CASE WHEN response_received = 1 THEN 1 END)
		FROM follow_up_actions
	`).Scan(&st.TotalActions, &st.Pending, &st.Sent, &st.Completed, &st.EmailsSent, &st.ResponsesReceived)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// InsertAlert persists a notification alert.
func (s *Store) InsertAlert(a *Alert) error {
	if a.ID == "" {
		a.ID = NewID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	resolved := 0
	if a.Resolved {
		resolved = 1
	}

	_, err := s.db.Exec(`
		INSERT INTO notification_alerts (id, company_id, company_name, severity, message, created_at, resolved)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.CompanyID, a.CompanyName, string(a.Severity), a.Message, formatTime(a.CreatedAt), resolved)

	return err
}

// RecentAlerts returns alerts raised within the last days, newest
// first.
func (s *Store) RecentAlerts(days int) ([]*Alert, error) {
	if days <= 0 {
		days = 7
	}
	cutoff := formatTime(time.Now().AddDate(0, 0, -days))

	rows, err := s.db.Query(`
		SELECT id, company_id, company_name, severity, message, created_at, resolved
		FROM notification_alerts
		WHERE created_at >= ?
		ORDER BY created_at DESC
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*Alert
	for rows.Next() {
		var a Alert
		var severity, createdAt string
		var resolved int
		if err := rows.Scan(&a.ID, &a.CompanyID, &a.CompanyName, &severity, &a.Message, &createdAt, &resolved); err != nil {
			return nil, err
		}
		a.Severity = Severity(severity)
		a.CreatedAt = parseTime(createdAt)
		a.Resolved = resolved == 1
		alerts = append(alerts, &a)
	}

	return alerts, rows.Err()
}

// AlertStats aggregates alert counts by severity.
func (s *Store) AlertStats() (*AlertStats, error) {
	var st AlertStats
	err := s.db.QueryRow(`
		SELECT
			COUNT(*),
			COUNT(CASE WHEN severity = 'critical' THEN 1 END),
			COUNT(CASE WHEN severity = 'high' THEN 1 END),
			COUNT(CASE WHEN severity = 'medium' THEN 1 END),
			COUNT(CASE WHEN severity = 'low' THEN 1 END),
			COUNT(CASE WHEN resolved = 1 THEN 1 END)
		FROM notification_alerts
	`).Scan(&st.TotalAlerts, &st.Critical, &st.High, &st.Medium, &st.Low, &st.Resolved)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// ProcessingStats aggregates company record counts by status.
func (s *Store) ProcessingStats() (*ProcessingStats, error) {
	st := &ProcessingStats{StatusCounts: map[string]int{}}

	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM companies GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		st.StatusCounts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var lastUpdate sql.NullString
	err = s.db.QueryRow(`SELECT COUNT(*), MAX(last_updated) FROM companies`).Scan(&st.TotalCompanies, &lastUpdate)
	if err != nil {
		return nil, err
	}
	if lastUpdate.Valid && lastUpdate.String != "" {
		t := parseTime(lastUpdate.String)
		st.LastUpdate = &t
	}

	return st, nil
}

// RecordHealth stores one health score sample for a company.
func (s *Store) RecordHealth(companyID string, score float64, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO health_scores (company_id, score, recorded_at)
		VALUES (?, ?, ?)
	`, companyID, score, formatTime(at))
	return err
}

// HealthHistory returns the company's health scores from the last
// days, newest first.
func (s *Store) HealthHistory(companyID string, days int) ([]float64, error) {
	cutoff := formatTime(time.Now().AddDate(0, 0, -days))

	rows, err := s.db.Query(`
		SELECT score FROM health_scores
		WHERE company_id = ? AND recorded_at >= ?
		ORDER BY recorded_at DESC
	`, companyID, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scores []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		scores = append(scores, v)
	}

	return scores, rows.Err()
}
