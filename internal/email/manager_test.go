package email

import (
	"context"
	"log/slog"
	"testing"
)

func testConfig() Config {
	return Config{
		IMAP: IMAPConfig{
			Host:     "imap.example.com",
			Port:     993,
			Username: "agent@example.com",
			Password: "secret",
			TLS:      true,
		},
		SMTP: SMTPConfig{
			Host:     "smtp.example.com",
			Port:     587,
			Username: "agent@example.com",
			Password: "secret",
			StartTLS: true,
		},
		DefaultFrom: "Bursar <agent@example.com>",
		BccOwner:    "owner@example.com",
	}
}

func TestNewManager(t *testing.T) {
	m := NewManager(testConfig(), slog.Default())
	if m.client == nil {
		t.Fatal("manager should create an IMAP client")
	}
	if !m.CanSend() {
		t.Error("manager with SMTP config should be able to send")
	}
}

func TestManagerCanSend_NoSMTP(t *testing.T) {
	cfg := testConfig()
	cfg.SMTP = SMTPConfig{}

	m := NewManager(cfg, slog.Default())
	if m.CanSend() {
		t.Error("manager without SMTP config should not claim send capability")
	}
}

func TestManagerCanSend_NoFrom(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultFrom = ""

	m := NewManager(cfg, slog.Default())
	if m.CanSend() {
		t.Error("manager without a From address should not claim send capability")
	}
}

func TestManagerBccList(t *testing.T) {
	m := NewManager(testConfig(), slog.Default())

	bcc := m.bccList([]string{"cfo@acme.example"}, nil)
	if len(bcc) != 1 || bcc[0] != "owner@example.com" {
		t.Errorf("bccList = %v, want owner BCC", bcc)
	}
}

func TestManagerBccList_OwnerAlreadyRecipient(t *testing.T) {
	m := NewManager(testConfig(), slog.Default())

	if bcc := m.bccList([]string{"owner@example.com"}, nil); len(bcc) != 0 {
		t.Errorf("owner in To should suppress BCC, got %v", bcc)
	}
	if bcc := m.bccList([]string{"cfo@acme.example"}, []string{"Owner <owner@example.com>"}); len(bcc) != 0 {
		t.Errorf("owner in Cc should suppress BCC, got %v", bcc)
	}
}

func TestManagerBccList_NoOwner(t *testing.T) {
	cfg := testConfig()
	cfg.BccOwner = ""

	m := NewManager(cfg, slog.Default())
	if bcc := m.bccList([]string{"cfo@acme.example"}, nil); len(bcc) != 0 {
		t.Errorf("no owner configured should mean no BCC, got %v", bcc)
	}
}

func TestManagerSend_NotConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.SMTP = SMTPConfig{}

	m := NewManager(cfg, slog.Default())
	if _, err := m.Send(context.Background(), SendOptions{
		To:      []string{"cfo@acme.example"},
		Subject: "Follow-up",
		Body:    "Body",
	}); err == nil {
		t.Error("Send without SMTP config should fail")
	}
}

func TestManagerSend_NoRecipients(t *testing.T) {
	m := NewManager(testConfig(), slog.Default())
	if _, err := m.Send(context.Background(), SendOptions{
		Subject: "Follow-up",
		Body:    "Body",
	}); err == nil {
		t.Error("Send without recipients should fail")
	}
}
