package email

import (
	"testing"
	"time"
)

func sentFixture() SentEmail {
	return SentEmail{
		To:        "cfo@acme.example",
		Subject:   "Data Update Required: Acme Corp",
		MessageID: "bursar-1234@example.com",
		SentAt:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestIsResponseTo(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want bool
	}{
		{
			name: "subject reply prefix",
			msg: Message{
				Subject:  "Re: Data Update Required: Acme Corp",
				TextBody: "See attached.",
			},
			want: true,
		},
		{
			name: "forwarded reply still matches subject",
			msg: Message{
				Subject:  "Fwd: Re: Data Update Required: Acme Corp",
				TextBody: "See attached.",
			},
			want: true,
		},
		{
			name: "in-reply-to header",
			msg: Message{
				Subject:   "Quarterly numbers",
				InReplyTo: []string{"bursar-1234@example.com"},
				TextBody:  "Numbers attached.",
			},
			want: true,
		},
		{
			name: "references chain",
			msg: Message{
				Subject:    "Quarterly numbers",
				References: []string{"root@example.com", "bursar-1234@example.com"},
				TextBody:   "Numbers attached.",
			},
			want: true,
		},
		{
			name: "acknowledgment keyword in body",
			msg: Message{
				Subject:  "Quarterly numbers",
				TextBody: "Thanks, we received your request and will send the data.",
			},
			want: true,
		},
		{
			name: "keyword case insensitive",
			msg: Message{
				Subject:  "Quarterly numbers",
				TextBody: "CONFIRMED. Will follow shortly.",
			},
			want: true,
		},
		{
			name: "keyword in html body only",
			msg: Message{
				Subject:  "Quarterly numbers",
				HTMLBody: "<p>Thank you for the reminder.</p>",
			},
			want: true,
		},
		{
			name: "unrelated message",
			msg: Message{
				Subject:  "Office party Friday",
				TextBody: "Pizza at noon.",
			},
			want: false,
		},
		{
			name: "different thread",
			msg: Message{
				Subject:   "Re: Something else entirely",
				InReplyTo: []string{"other-999@example.com"},
				TextBody:  "Not about the data request.",
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isResponseTo(&tt.msg, sentFixture()); got != tt.want {
				t.Errorf("isResponseTo() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsResponseTo_EmptySentFields(t *testing.T) {
	// A zero-valued SentEmail must not match everything: empty subject
	// and Message-ID are skipped, leaving only the keyword check.
	sent := SentEmail{To: "cfo@acme.example"}

	msg := &Message{Subject: "Random", TextBody: "Nothing relevant here."}
	if isResponseTo(msg, sent) {
		t.Error("message without keywords should not match empty sent fields")
	}

	ack := &Message{Subject: "Random", TextBody: "Received, thanks."}
	if !isResponseTo(ack, sent) {
		t.Error("keyword match should still work with empty sent fields")
	}
}
