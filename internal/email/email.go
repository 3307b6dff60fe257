// Package email provides native IMAP and SMTP support for the bursar
// agent. Follow-up messages are composed from markdown into
// multipart/alternative MIME and delivered over SMTP, and each one is
// tracked by its Message-ID so later inbox sweeps can tell whether the
// portfolio company ever wrote back.
package email

import "time"

// Message is a fully-fetched email with body content extracted from
// the MIME structure.
type Message struct {
	// UID is the IMAP unique identifier for this message within its folder.
	UID uint32

	// Date is the message date from the envelope.
	Date time.Time

	// From is the sender, formatted as "Name <addr>" or just the address.
	From string

	// Subject is the decoded subject line.
	Subject string

	// MessageID is the message's own Message-ID header, without angle
	// brackets.
	MessageID string

	// InReplyTo lists the Message-IDs this message replies to.
	InReplyTo []string

	// References is the threading chain from the References header.
	References []string

	// TextBody is the text/plain body, if present. Preferred over
	// HTMLBody when matching reply content.
	TextBody string

	// HTMLBody is the text/html body, if present.
	HTMLBody string
}

// SendOptions describes an outbound email message. The Body field
// contains markdown that the compose layer converts to both text/plain
// and text/html MIME parts.
type SendOptions struct {
	// To is the list of recipient addresses (required).
	To []string

	// Cc is the list of CC addresses.
	Cc []string

	// Subject is the email subject line (required).
	Subject string

	// Body is the message body in markdown format (required).
	Body string

	// ActionID tags the message with an X-Action-ID header so a reply
	// can be traced back to the follow-up action that produced it.
	ActionID string
}
