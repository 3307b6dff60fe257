package email

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Manager is the agent's email identity. It ties together markdown
// message composition, SMTP delivery, and IMAP reply checking behind
// one goroutine-safe facade.
type Manager struct {
	cfg    Config
	client *Client
	logger *slog.Logger
}

// NewManager creates a manager for the configured account. The IMAP
// connection is established lazily on first use.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		client: NewClient(cfg.IMAP, logger),
		logger: logger,
	}
}

// CanSend reports whether outbound delivery is configured.
func (m *Manager) CanSend() bool {
	return m.cfg.SMTPConfigured() && m.cfg.DefaultFrom != ""
}

// Send composes and delivers a message, blind-copying the owner when
// configured. The returned SentEmail carries everything needed to
// recognize a reply later: the generated Message-ID, the subject, and
// the send time.
func (m *Manager) Send(ctx context.Context, opts SendOptions) (*SentEmail, error) {
	if !m.CanSend() {
		return nil, fmt.Errorf("smtp not configured")
	}
	if len(opts.To) == 0 {
		return nil, fmt.Errorf("no recipients")
	}

	bcc := m.bccList(opts.To, opts.Cc)

	msgID, raw, err := ComposeMessage(ComposeOptions{
		From:     m.cfg.DefaultFrom,
		To:       opts.To,
		Cc:       opts.Cc,
		Bcc:      bcc,
		Subject:  opts.Subject,
		Body:     opts.Body,
		ActionID: opts.ActionID,
	})
	if err != nil {
		return nil, fmt.Errorf("compose message: %w", err)
	}

	recipients := collectRecipients(opts.To, opts.Cc, bcc)
	if err := SendMail(ctx, m.cfg.SMTP, extractAddress(m.cfg.DefaultFrom), recipients, raw); err != nil {
		return nil, err
	}

	m.logger.Info("email sent", "to", opts.To, "subject", opts.Subject, "message_id", msgID)

	return &SentEmail{
		To:        opts.To[0],
		Subject:   opts.Subject,
		MessageID: msgID,
		SentAt:    time.Now().UTC(),
	}, nil
}

// bccList returns the owner BCC unless the owner is already a visible
// recipient.
func (m *Manager) bccList(to, cc []string) []string {
	owner := extractAddress(m.cfg.BccOwner)
	if owner == "" {
		return nil
	}
	for _, addr := range to {
		if extractAddress(addr) == owner {
			return nil
		}
	}
	for _, addr := range cc {
		if extractAddress(addr) == owner {
			return nil
		}
	}
	return []string{m.cfg.BccOwner}
}

// CheckForResponse reports whether the recipient of a previously sent
// message has replied.
func (m *Manager) CheckForResponse(ctx context.Context, sent SentEmail) (bool, error) {
	return m.client.CheckForResponse(ctx, sent)
}

// InboxSummary returns unread, total, and recent message counts for
// the account's INBOX.
func (m *Manager) InboxSummary(ctx context.Context) (*InboxSummary, error) {
	return m.client.Summary(ctx)
}

// Ping verifies the IMAP connection.
func (m *Manager) Ping(ctx context.Context) error {
	return m.client.Ping(ctx)
}

// Close shuts down the IMAP connection.
func (m *Manager) Close() {
	if err := m.client.Close(); err != nil {
		m.logger.Warn("error closing email client", "error", err)
	}
}
