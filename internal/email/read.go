package email

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
)

// maxBodySize is the maximum body size to keep per message part.
// Reply matching needs the opening lines, not the attachment chain a
// CFO forwards back; larger parts are truncated with a marker.
const maxBodySize = 32 * 1024

// maxRawMessageSize is the maximum raw RFC 822 message size to buffer
// when reading from the IMAP literal. Messages larger than this are
// truncated; the remainder of the literal is drained to keep the IMAP
// stream in sync. The parsed text body is further truncated at
// maxBodySize by parseBody.
const maxRawMessageSize = 5 * 1024 * 1024

// fetchMessage fetches and parses a single message by UID from the
// currently selected folder. The MIME structure is walked to extract
// text/plain and text/html bodies. Caller must hold c.mu and have a
// folder selected.
func (c *Client) fetchMessage(uid imap.UID) (*Message, error) {
	uidSet := imap.UIDSet{}
	uidSet.AddNum(uid)

	cmd := c.client.Fetch(uidSet, &imap.FetchOptions{
		UID:      true,
		Envelope: true,
		BodySection: []*imap.FetchItemBodySection{
			// Peek: a background reply sweep must not mark the
			// owner's mail as read.
			{Peek: true},
		},
	})

	msg := cmd.Next()
	if msg == nil {
		_ = cmd.Close()
		return nil, fmt.Errorf("message UID %d not found", uid)
	}

	out := &Message{}
	var rawBody []byte

	for {
		item := msg.Next()
		if item == nil {
			break
		}

		switch data := item.(type) {
		case imapclient.FetchItemDataUID:
			out.UID = uint32(data.UID)
		case imapclient.FetchItemDataEnvelope:
			if data.Envelope != nil {
				out.Date = data.Envelope.Date
				out.Subject = data.Envelope.Subject
				out.MessageID = data.Envelope.MessageID
				out.InReplyTo = data.Envelope.InReplyTo
				if len(data.Envelope.From) > 0 {
					out.From = formatAddress(data.Envelope.From[0])
				}
			}
		case imapclient.FetchItemDataBodySection:
			// Consume the literal immediately. go-imap/v2 streams
			// data from the IMAP connection; msg.Next() advances
			// past unread literals, so deferring the read would
			// lose the body data.
			if data.Literal == nil {
				c.logger.Debug("nil body literal", "uid", uid)
				continue
			}
			var readErr error
			rawBody, readErr = io.ReadAll(io.LimitReader(data.Literal, maxRawMessageSize))
			// Drain whatever remains so the IMAP stream stays in sync.
			_, _ = io.Copy(io.Discard, data.Literal)
			if readErr != nil {
				c.logger.Debug("error reading body literal", "uid", uid, "error", readErr)
				rawBody = nil
			}
		}
	}

	if rawBody != nil {
		if err := c.parseBody(out, bytes.NewReader(rawBody)); err != nil {
			c.logger.Debug("body parse error", "uid", uid, "error", err)
		}
	}

	if err := cmd.Close(); err != nil {
		return nil, fmt.Errorf("fetch message UID %d: %w", uid, err)
	}

	return out, nil
}

// parseBody walks the MIME structure and extracts text content and
// the References header (not available from the IMAP Envelope).
//
// go-message's mail.CreateReader and NextPart may return both a valid
// reader/part AND an error when the message uses an unknown charset or
// transfer encoding. Those are treated as non-fatal; the content may
// be slightly garbled but is still good enough for reply matching.
func (c *Client) parseBody(msg *Message, r io.Reader) error {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return fmt.Errorf("create mail reader: %w", err)
	}
	if mr == nil {
		if err != nil {
			return fmt.Errorf("create mail reader returned nil: %w", err)
		}
		return fmt.Errorf("create mail reader returned nil")
	}
	if err != nil {
		c.logger.Debug("mail reader created with charset warning", "error", err)
	}

	// References must come from the raw header; the IMAP ENVELOPE
	// carries only In-Reply-To.
	if refs, err := mr.Header.MsgIDList("References"); err == nil && len(refs) > 0 {
		msg.References = refs
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return fmt.Errorf("next part: %w", err)
		}
		if part == nil {
			continue
		}
		if err != nil {
			c.logger.Debug("part has charset warning", "error", err)
		}

		inline, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			// Attachment bodies are skipped; only inline text matters
			// for reply matching.
			continue
		}
		contentType, _, _ := inline.ContentType()

		switch {
		case contentType == "text/plain" && msg.TextBody == "":
			if text, err := readPartText(part.Body); err != nil {
				c.logger.Debug("error reading text/plain part", "error", err)
			} else {
				msg.TextBody = text
			}
		case contentType == "text/html" && msg.HTMLBody == "":
			if text, err := readPartText(part.Body); err != nil {
				c.logger.Debug("error reading text/html part", "error", err)
			} else {
				msg.HTMLBody = text
			}
		}
	}

	return nil
}

// readPartText reads one MIME part's body, truncating at maxBodySize.
func readPartText(r io.Reader) (string, error) {
	body, err := io.ReadAll(io.LimitReader(r, maxBodySize+1))
	if err != nil {
		return "", err
	}
	text := string(body)
	if len(body) > maxBodySize {
		text = text[:maxBodySize] + "\n\n[truncated, message exceeds 32KB]"
	}
	return strings.TrimSpace(text), nil
}

// formatAddress renders an IMAP address as "Name <mailbox@host>" or
// just the bare address when no display name is set.
func formatAddress(addr imap.Address) string {
	email := addr.Addr()
	if addr.Name != "" {
		return fmt.Sprintf("%s <%s>", addr.Name, email)
	}
	return email
}
