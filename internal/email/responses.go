package email

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
)

// maxReplyCandidates caps how many inbox messages are fetched and
// inspected per reply check. The UID search already narrows to mail
// from the recipient, so in practice a sweep sees a handful at most.
const maxReplyCandidates = 10

// responseKeywords mark a message as an acknowledgment even when the
// sender's client dropped the threading headers.
var responseKeywords = []string{"thank", "received", "confirm", "update"}

// SentEmail identifies a previously sent follow-up for reply matching.
type SentEmail struct {
	// To is the recipient the follow-up was sent to.
	To string

	// Subject is the subject line the follow-up was sent with.
	Subject string

	// MessageID is the Message-ID the follow-up was composed with,
	// without angle brackets.
	MessageID string

	// SentAt is when the follow-up was sent.
	SentAt time.Time
}

// CheckForResponse reports whether the recipient of a sent follow-up
// has replied since it went out. It searches INBOX for mail from the
// recipient dated after the send, then matches candidates by threading
// headers, by a "Re:" subject, or by acknowledgment keywords in the
// body.
func (c *Client) CheckForResponse(ctx context.Context, sent SentEmail) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(ctx); err != nil {
		return false, err
	}

	if _, err := c.selectFolder("INBOX"); err != nil {
		return false, err
	}

	criteria := &imap.SearchCriteria{
		Header: []imap.SearchCriteriaHeaderField{
			{Key: "From", Value: extractAddress(sent.To)},
		},
	}
	if !sent.SentAt.IsZero() {
		// SINCE is date-granular, so same-day replies are still caught.
		criteria.Since = sent.SentAt
	}

	searchCmd := c.client.UIDSearch(criteria, nil)
	searchData, err := searchCmd.Wait()
	if err != nil {
		return false, fmt.Errorf("search INBOX: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return false, nil
	}

	// Inspect newest candidates first.
	start := 0
	if len(uids) > maxReplyCandidates {
		start = len(uids) - maxReplyCandidates
	}
	candidates := uids[start:]

	for i := len(candidates) - 1; i >= 0; i-- {
		msg, err := c.fetchMessage(candidates[i])
		if err != nil {
			c.logger.Debug("skipping reply candidate", "uid", candidates[i], "error", err)
			continue
		}
		if isResponseTo(msg, sent) {
			c.logger.Info("reply detected", "from", msg.From, "subject", msg.Subject, "uid", msg.UID)
			return true, nil
		}
	}

	return false, nil
}

// isResponseTo reports whether msg answers the sent follow-up. A match
// is any of: threading headers referencing the sent Message-ID, the
// sent subject quoted under a "Re:" prefix, or an acknowledgment
// keyword in the body.
func isResponseTo(msg *Message, sent SentEmail) bool {
	if sent.Subject != "" && strings.Contains(msg.Subject, "Re: "+sent.Subject) {
		return true
	}
	if sent.MessageID != "" {
		for _, id := range msg.InReplyTo {
			if id == sent.MessageID {
				return true
			}
		}
		for _, id := range msg.References {
			if id == sent.MessageID {
				return true
			}
		}
	}
	body := strings.ToLower(msg.TextBody)
	if body == "" {
		body = strings.ToLower(msg.HTMLBody)
	}
	for _, kw := range responseKeywords {
		if strings.Contains(body, kw) {
			return true
		}
	}
	return false
}

// InboxSummary holds inbox counters for status reporting.
type InboxSummary struct {
	// UnreadCount is the number of messages without the \Seen flag.
	UnreadCount int `json:"unread_count"`

	// TotalCount is the number of messages in INBOX.
	TotalCount int `json:"total_count"`

	// RecentCount is the number of messages received in the last 24 hours.
	RecentCount int `json:"recent_count"`

	// LastChecked is when the summary was taken.
	LastChecked time.Time `json:"last_checked"`
}

// Summary returns unread, total, and last-24-hour message counts for
// INBOX.
func (c *Client) Summary(ctx context.Context) (*InboxSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}

	selectData, err := c.selectFolder("INBOX")
	if err != nil {
		return nil, err
	}

	summary := &InboxSummary{
		TotalCount:  int(selectData.NumMessages),
		LastChecked: time.Now().UTC(),
	}

	unseen := &imap.SearchCriteria{NotFlag: []imap.Flag{imap.FlagSeen}}
	if data, err := c.client.UIDSearch(unseen, nil).Wait(); err != nil {
		c.logger.Debug("unseen search failed", "error", err)
	} else {
		summary.UnreadCount = len(data.AllUIDs())
	}

	recent := &imap.SearchCriteria{Since: time.Now().Add(-24 * time.Hour)}
	if data, err := c.client.UIDSearch(recent, nil).Wait(); err != nil {
		c.logger.Debug("recent search failed", "error", err)
	} else {
		summary.RecentCount = len(data.AllUIDs())
	}

	return summary, nil
}
