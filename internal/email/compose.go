package email

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/yuin/goldmark"
)

// ComposeOptions holds everything needed to build a complete RFC 5322
// message. The Body field is expected to be markdown.
type ComposeOptions struct {
	// From is the sender address (e.g., "Name <addr@host>").
	From string

	// To is the list of recipient addresses.
	To []string

	// Cc is the list of CC addresses.
	Cc []string

	// Bcc is the list of BCC addresses.
	Bcc []string

	// Subject is the message subject line.
	Subject string

	// Body is the message body in markdown format.
	Body string

	// InReplyTo is the Message-ID of the parent message (for replies).
	InReplyTo string

	// References is the full References chain (for threading).
	References []string

	// ActionID, when set, is written as an X-Action-ID header so the
	// message can be traced back to the follow-up action it serves.
	ActionID string
}

// ComposeMessage builds a complete RFC 5322 MIME message from the given
// options. The markdown body becomes a multipart/alternative pair of
// text/plain and text/html parts. The returned string is the generated
// Message-ID without angle brackets, which callers persist for later
// reply matching.
func ComposeMessage(opts ComposeOptions) (string, []byte, error) {
	var h mail.Header

	h.SetDate(time.Now())
	if err := h.GenerateMessageID(); err != nil {
		return "", nil, fmt.Errorf("generate message-id: %w", err)
	}
	msgID, err := h.MessageID()
	if err != nil {
		return "", nil, fmt.Errorf("read generated message-id: %w", err)
	}
	h.SetSubject(opts.Subject)

	from, err := mail.ParseAddress(opts.From)
	if err != nil {
		return "", nil, fmt.Errorf("parse from address %q: %w", opts.From, err)
	}
	h.SetAddressList("From", []*mail.Address{from})

	if err := setAddresses(&h, "To", opts.To); err != nil {
		return "", nil, err
	}
	if len(opts.Cc) > 0 {
		if err := setAddresses(&h, "Cc", opts.Cc); err != nil {
			return "", nil, err
		}
	}
	if len(opts.Bcc) > 0 {
		if err := setAddresses(&h, "Bcc", opts.Bcc); err != nil {
			return "", nil, err
		}
	}

	// Threading headers for replies.
	if opts.InReplyTo != "" {
		h.SetMsgIDList("In-Reply-To", []string{opts.InReplyTo})
	}
	if len(opts.References) > 0 {
		h.SetMsgIDList("References", opts.References)
	}

	if opts.ActionID != "" {
		h.Set("X-Action-ID", opts.ActionID)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return "", nil, fmt.Errorf("create mail writer: %w", err)
	}
	tw, err := mw.CreateInline()
	if err != nil {
		return "", nil, fmt.Errorf("create inline writer: %w", err)
	}

	if err := writeInlinePart(tw, "text/plain; charset=utf-8", markdownToPlain(opts.Body)); err != nil {
		return "", nil, fmt.Errorf("write plain part: %w", err)
	}

	htmlBody, err := markdownToHTML(opts.Body)
	if err != nil {
		return "", nil, fmt.Errorf("render markdown to HTML: %w", err)
	}
	if err := writeInlinePart(tw, "text/html; charset=utf-8", htmlBody); err != nil {
		return "", nil, fmt.Errorf("write html part: %w", err)
	}

	if err := tw.Close(); err != nil {
		return "", nil, fmt.Errorf("close inline writer: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", nil, fmt.Errorf("close mail writer: %w", err)
	}

	return msgID, buf.Bytes(), nil
}

// setAddresses parses "Name <addr>" or bare-address strings and sets
// them as one address header field.
func setAddresses(h *mail.Header, field string, addrs []string) error {
	parsed := make([]*mail.Address, 0, len(addrs))
	for _, a := range addrs {
		p, err := mail.ParseAddress(a)
		if err != nil {
			return fmt.Errorf("parse %s address %q: %w", strings.ToLower(field), a, err)
		}
		parsed = append(parsed, p)
	}
	h.SetAddressList(field, parsed)
	return nil
}

// writeInlinePart adds one body part to the multipart/alternative
// section.
func writeInlinePart(tw *mail.InlineWriter, contentType, body string) error {
	var h mail.InlineHeader
	h.Set("Content-Type", contentType)
	pw, err := tw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(pw, body); err != nil {
		pw.Close()
		return err
	}
	return pw.Close()
}

// markdownToHTML renders the markdown body into a self-contained HTML
// document with inline styling and no external resources.
func markdownToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", err
	}

	html := fmt.Sprintf(`<!DOCTYPE html>
<html><head><meta charset="utf-8"></head>
<body style="font-family: sans-serif; font-size: 14px; line-height: 1.5;">
%s
</body></html>`, buf.String())

	return html, nil
}

// Patterns for stripping markdown formatting.
var (
	mdBold       = regexp.MustCompile(`\*\*(.+?)\*\*`)
	mdItalic     = regexp.MustCompile(`\*(.+?)\*`)
	mdLink       = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	mdImage      = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	mdHeading    = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdCodeBlock  = regexp.MustCompile("(?s)```[a-zA-Z]*\n?(.*?)```")
	mdInlineCode = regexp.MustCompile("`([^`]+)`")
)

// markdownToPlain strips markdown formatting for the text/plain part.
// Link targets survive in parentheses; list markers read fine as-is
// and stay.
func markdownToPlain(md string) string {
	s := md
	s = mdCodeBlock.ReplaceAllString(s, "$1")
	s = mdImage.ReplaceAllString(s, "$1")
	s = mdLink.ReplaceAllString(s, "$1 ($2)")
	s = mdBold.ReplaceAllString(s, "$1")
	s = mdItalic.ReplaceAllString(s, "$1")
	s = mdInlineCode.ReplaceAllString(s, "$1")
	s = mdHeading.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
