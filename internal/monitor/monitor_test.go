package monitor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/brindle/bursar-ai-agent/internal/company"
	"github.com/brindle/bursar-ai-agent/internal/config"
	"github.com/brindle/bursar-ai-agent/internal/email"
	"github.com/brindle/bursar-ai-agent/internal/events"
	"github.com/brindle/bursar-ai-agent/internal/llm"
)

// fakeMailer records sends and can fail globally or per recipient.
type fakeMailer struct {
	sendErr error
	errFor  map[string]error
	sent    []email.SendOptions
}

func (f *fakeMailer) Send(_ context.Context, opts email.SendOptions) (*email.SentEmail, error) {
	f.sent = append(f.sent, opts)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	if len(opts.To) > 0 {
		if err, ok := f.errFor[opts.To[0]]; ok {
			return nil, err
		}
	}
	return &email.SentEmail{
		To:        opts.To[0],
		Subject:   opts.Subject,
		MessageID: fmt.Sprintf("test-%d@brindle.example", len(f.sent)),
		SentAt:    time.Now().UTC(),
	}, nil
}

// fakeLLM pops scripted replies in call order.
type fakeLLM struct {
	replies []string
	err     error
	prompts []string
}

func (f *fakeLLM) Chat(_ context.Context, model string, messages []llm.Message) (*llm.ChatResponse, error) {
	if len(messages) > 0 {
		f.prompts = append(f.prompts, messages[len(messages)-1].Content)
	}
	if f.err != nil {
		return nil, f.err
	}
	var reply string
	if len(f.replies) > 0 {
		reply = f.replies[0]
		f.replies = f.replies[1:]
	}
	return &llm.ChatResponse{
		Model:   model,
		Message: llm.Message{Role: "assistant", Content: reply},
		Done:    true,
	}, nil
}

func (f *fakeLLM) Ping(context.Context) error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestAgent(t *testing.T, mailer Mailer, llmc llm.Client) (*Agent, *company.Store) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := company.NewStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	agent := New(Config{
		Store: store,
		LLM:   llmc,
		Model: "test-model",
		Email: mailer,
		Rules: config.MonitorConfig{
			CriticalBelow:   30,
			HighBelow:       50,
			MediumBelow:     70,
			MissingDataDays: 14,
			CashFlowFloor:   -10000,
			DecliningDays:   7,
			Recipients:      []string{"mgmt@brindle.example", "alerts@brindle.example"},
		},
		Logger: testLogger(),
	})
	return agent, store
}

// levelMetrics scores exactly v on the weighted health scale.
func levelMetrics(v float64) map[string]float64 {
	return map[string]float64{"revenue": v, "profit_margin": v, "cash_flow": v}
}

func seedCompany(t *testing.T, store *company.Store, c *company.Company) {
	t.Helper()
	if err := store.UpsertCompany(c); err != nil {
		t.Fatalf("seed company: %v", err)
	}
}

func TestMonitorHealth_HealthyPortfolio(t *testing.T) {
	agent, store := newTestAgent(t, &fakeMailer{}, &fakeLLM{})
	seedCompany(t, store, &company.Company{
		ID:           "good-co",
		Name:         "Good Co",
		ContactEmail: "cfo@good.example",
		Status:       company.StatusActive,
		Metrics:      levelMetrics(95),
	})

	alerts, err := agent.MonitorHealth()
	if err != nil {
		t.Fatalf("MonitorHealth: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("alerts = %d, want 0", len(alerts))
	}

	// The sweep still records the score sample for trend tracking.
	history, err := store.HealthHistory("good-co", 7)
	if err != nil {
		t.Fatalf("HealthHistory: %v", err)
	}
	if len(history) != 1 || history[0] != 95 {
		t.Errorf("history = %v, want [95]", history)
	}
}

func TestMonitorHealth_ScoreBands(t *testing.T) {
	agent, store := newTestAgent(t, &fakeMailer{}, &fakeLLM{})
	for id, score := range map[string]float64{"crit-co": 25, "high-co": 45, "med-co": 65} {
		seedCompany(t, store, &company.Company{
			ID:           id,
			Name:         id,
			ContactEmail: id + "@brindle.example",
			Status:       company.StatusActive,
			Metrics:      levelMetrics(score),
		})
	}

	alerts, err := agent.MonitorHealth()
	if err != nil {
		t.Fatalf("MonitorHealth: %v", err)
	}
	if len(alerts) != 3 {
		t.Fatalf("alerts = %d, want 3", len(alerts))
	}

	byCompany := make(map[string]*company.Alert)
	for _, a := range alerts {
		byCompany[a.CompanyID] = a
	}

	tests := []struct {
		id       string
		severity company.Severity
		message  string
	}{
		{"crit-co", company.SeverityCritical, "Company health score critical: 25.0%"},
		{"high-co", company.SeverityHigh, "Company health score concerning: 45.0%"},
		{"med-co", company.SeverityMedium, "Company health score declining: 65.0%"},
	}
	for _, tt := range tests {
		a := byCompany[tt.id]
		if a == nil {
			t.Errorf("no alert for %s", tt.id)
			continue
		}
		if a.Severity != tt.severity {
			t.Errorf("%s severity = %s, want %s", tt.id, a.Severity, tt.severity)
		}
		if a.Message != tt.message {
			t.Errorf("%s message = %q, want %q", tt.id, a.Message, tt.message)
		}
		if a.ID == "" || a.CompanyName != tt.id {
			t.Errorf("%s alert fields = %q %q", tt.id, a.ID, a.CompanyName)
		}
	}
}

func TestMonitorHealth_StatusAlerts(t *testing.T) {
	agent, store := newTestAgent(t, &fakeMailer{}, &fakeLLM{})
	seedCompany(t, store, &company.Company{
		ID:           "fail-co",
		Name:         "Fail Co",
		ContactEmail: "cfo@fail.example",
		Status:       company.StatusFailing,
		Metrics:      levelMetrics(95),
	})
	seedCompany(t, store, &company.Company{
		ID:           "susp-co",
		Name:         "Susp Co",
		ContactEmail: "cfo@susp.example",
		Status:       company.StatusSuspended,
		Metrics:      levelMetrics(95),
	})

	alerts, err := agent.MonitorHealth()
	if err != nil {
		t.Fatalf("MonitorHealth: %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("alerts = %d, want 2", len(alerts))
	}

	byCompany := make(map[string]*company.Alert)
	for _, a := range alerts {
		byCompany[a.CompanyID] = a
	}
	if a := byCompany["fail-co"]; a == nil || a.Severity != company.SeverityCritical ||
		a.Message != "Company status changed to FAILING" {
		t.Errorf("fail-co alert = %+v", a)
	}
	if a := byCompany["susp-co"]; a == nil || a.Severity != company.SeverityHigh ||
		a.Message != "Company status changed to SUSPENDED" {
		t.Errorf("susp-co alert = %+v", a)
	}
}

func TestMonitorHealth_MissingData(t *testing.T) {
	agent, store := newTestAgent(t, &fakeMailer{}, &fakeLLM{})
	seedCompany(t, store, &company.Company{
		ID:           "stale-co",
		Name:         "Stale Co",
		ContactEmail: "cfo@stale.example",
		Status:       company.StatusActive,
		LastUpdated:  time.Now().UTC().Add(-20 * 24 * time.Hour),
		Metrics:      levelMetrics(95),
	})

	alerts, err := agent.MonitorHealth()
	if err != nil {
		t.Fatalf("MonitorHealth: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}
	if alerts[0].Severity != company.SeverityMedium || alerts[0].Message != "No data update for 20 days" {
		t.Errorf("alert = %s %q", alerts[0].Severity, alerts[0].Message)
	}
}

func TestMonitorHealth_NegativeCashFlow(t *testing.T) {
	agent, store := newTestAgent(t, &fakeMailer{}, &fakeLLM{})
	seedCompany(t, store, &company.Company{
		ID:           "burn-co",
		Name:         "Burn Co",
		ContactEmail: "cfo@burn.example",
		Status:       company.StatusActive,
		Metrics: map[string]float64{
			"revenue":       95,
			"profit_margin": 95,
			"cash_flow":     -12345.6,
		},
	})

	alerts, err := agent.MonitorHealth()
	if err != nil {
		t.Fatalf("MonitorHealth: %v", err)
	}

	var found bool
	for _, a := range alerts {
		if a.Message == "Negative cash flow: $-12,345.60" {
			found = true
			if a.Severity != company.SeverityHigh {
				t.Errorf("cash flow severity = %s, want high", a.Severity)
			}
		}
	}
	if !found {
		t.Errorf("no cash flow alert in %d alerts", len(alerts))
	}
}

func TestDecliningStreak(t *testing.T) {
	agent, store := newTestAgent(t, &fakeMailer{}, &fakeLLM{})
	now := time.Now().UTC()

	if got := agent.decliningStreak("trend-co"); got != 0 {
		t.Errorf("streak with no history = %d, want 0", got)
	}

	// Three samples, strictly declining: two declining steps.
	for i, score := range []float64{70, 65, 60} {
		at := now.Add(time.Duration(i-3) * time.Hour)
		if err := store.RecordHealth("trend-co", score, at); err != nil {
			t.Fatalf("RecordHealth: %v", err)
		}
	}
	if got := agent.decliningStreak("trend-co"); got != 2 {
		t.Errorf("streak = %d, want 2", got)
	}

	// A recovery breaks the streak at the newest end.
	if err := store.RecordHealth("trend-co", 62, now); err != nil {
		t.Fatalf("RecordHealth: %v", err)
	}
	if got := agent.decliningStreak("trend-co"); got != 0 {
		t.Errorf("streak after recovery = %d, want 0", got)
	}
}

func TestMonitorHealth_DecliningTrend(t *testing.T) {
	agent, store := newTestAgent(t, &fakeMailer{}, &fakeLLM{})
	seedCompany(t, store, &company.Company{
		ID:           "trend-co",
		Name:         "Trend Co",
		ContactEmail: "cfo@trend.example",
		Status:       company.StatusActive,
		Metrics:      levelMetrics(60),
	})

	// Eight declining samples; the sweep's own sample (60) extends the
	// run to eight declining steps, past the seven-day threshold.
	now := time.Now().UTC()
	for i, score := range []float64{80, 78, 76, 74, 72, 70, 68, 66} {
		at := now.Add(time.Duration(i-9) * time.Hour)
		if err := store.RecordHealth("trend-co", score, at); err != nil {
			t.Fatalf("RecordHealth: %v", err)
		}
	}

	alerts, err := agent.MonitorHealth()
	if err != nil {
		t.Fatalf("MonitorHealth: %v", err)
	}

	var found bool
	for _, a := range alerts {
		if a.Message == "Consecutive declining performance for 8 days" {
			found = true
			if a.Severity != company.SeverityHigh {
				t.Errorf("trend severity = %s, want high", a.Severity)
			}
		}
	}
	if !found {
		var msgs []string
		for _, a := range alerts {
			msgs = append(msgs, a.Message)
		}
		t.Errorf("no trend alert; got %v", msgs)
	}
}

func TestProcessAlerts_GroupsAndCounts(t *testing.T) {
	mailer := &fakeMailer{}
	llmc := &fakeLLM{replies: []string{
		`{"subject": "Critical portfolio alerts", "body": "Two companies are in trouble."}`,
		`{"subject": "Medium portfolio alerts", "body": "One company is slipping."}`,
	}}
	agent, store := newTestAgent(t, mailer, llmc)

	now := time.Now().UTC()
	alerts := []*company.Alert{
		{ID: "al-1", CompanyID: "a", CompanyName: "A", Severity: company.SeverityCritical, Message: "m1", CreatedAt: now},
		{ID: "al-2", CompanyID: "b", CompanyName: "B", Severity: company.SeverityCritical, Message: "m2", CreatedAt: now},
		{ID: "al-3", CompanyID: "c", CompanyName: "C", Severity: company.SeverityMedium, Message: "m3", CreatedAt: now},
	}

	resp := agent.ProcessAlerts(context.Background(), alerts)
	if !resp.Success {
		t.Fatalf("ProcessAlerts failed: %s", resp.Message)
	}
	if resp.Message != "Processed 3 alerts" {
		t.Errorf("message = %q", resp.Message)
	}
	if errs := resp.Data["errors"].([]string); len(errs) != 0 {
		t.Errorf("errors = %v", errs)
	}

	// Two severity groups, two recipients each, critical first.
	if len(mailer.sent) != 4 {
		t.Fatalf("sent %d emails, want 4", len(mailer.sent))
	}
	if mailer.sent[0].Subject != "Critical portfolio alerts" || mailer.sent[0].To[0] != "mgmt@brindle.example" {
		t.Errorf("first send = %q to %v", mailer.sent[0].Subject, mailer.sent[0].To)
	}
	if mailer.sent[2].Subject != "Medium portfolio alerts" {
		t.Errorf("third send = %q", mailer.sent[2].Subject)
	}

	stored, err := store.RecentAlerts(7)
	if err != nil {
		t.Fatalf("RecentAlerts: %v", err)
	}
	if len(stored) != 3 {
		t.Errorf("stored alerts = %d, want 3", len(stored))
	}
}

func TestProcessAlerts_PartialDelivery(t *testing.T) {
	mailer := &fakeMailer{errFor: map[string]error{
		"alerts@brindle.example": errors.New("mailbox full"),
	}}
	llmc := &fakeLLM{replies: []string{`{"subject": "s", "body": "b"}`}}
	agent, _ := newTestAgent(t, mailer, llmc)

	alerts := []*company.Alert{
		{ID: "al-1", CompanyID: "a", CompanyName: "A", Severity: company.SeverityCritical, Message: "m1", CreatedAt: time.Now().UTC()},
	}
	resp := agent.ProcessAlerts(context.Background(), alerts)

	// One recipient got it, so the alert still counts as processed.
	if resp.Message != "Processed 1 alerts" {
		t.Errorf("message = %q", resp.Message)
	}
	errs := resp.Data["errors"].([]string)
	if len(errs) != 1 || errs[0] != "Failed to send critical alert to alerts@brindle.example" {
		t.Errorf("errors = %v", errs)
	}
}

func TestProcessAlerts_AllSendsFail(t *testing.T) {
	mailer := &fakeMailer{sendErr: errors.New("smtp down")}
	llmc := &fakeLLM{replies: []string{`{"subject": "s", "body": "b"}`}}
	agent, store := newTestAgent(t, mailer, llmc)

	alerts := []*company.Alert{
		{ID: "al-1", CompanyID: "a", CompanyName: "A", Severity: company.SeverityHigh, Message: "m1", CreatedAt: time.Now().UTC()},
	}
	resp := agent.ProcessAlerts(context.Background(), alerts)

	if resp.Message != "Processed 0 alerts" {
		t.Errorf("message = %q", resp.Message)
	}
	if errs := resp.Data["errors"].([]string); len(errs) != 2 {
		t.Errorf("errors = %v, want one per recipient", errs)
	}

	// Alerts are recorded even when no notification got out.
	stored, err := store.RecentAlerts(7)
	if err != nil {
		t.Fatalf("RecentAlerts: %v", err)
	}
	if len(stored) != 1 {
		t.Errorf("stored alerts = %d, want 1", len(stored))
	}
}

func TestProcessAlerts_TemplateFallback(t *testing.T) {
	mailer := &fakeMailer{}
	agent, _ := newTestAgent(t, mailer, &fakeLLM{err: errors.New("model offline")})

	alerts := []*company.Alert{
		{
			ID: "al-1", CompanyID: "fail-co", CompanyName: "Fail Co",
			Severity:  company.SeverityCritical,
			Message:   "Company status changed to FAILING",
			CreatedAt: time.Now().UTC(),
		},
	}
	agent.ProcessAlerts(context.Background(), alerts)

	if len(mailer.sent) != 2 {
		t.Fatalf("sent %d emails, want 2", len(mailer.sent))
	}
	if mailer.sent[0].Subject != "[CRITICAL] Portfolio Alert: 1 issue(s) require attention" {
		t.Errorf("subject = %q", mailer.sent[0].Subject)
	}
	if !strings.Contains(mailer.sent[0].Body, "Fail Co: Company status changed to FAILING") {
		t.Errorf("body missing alert line: %q", mailer.sent[0].Body)
	}
}

func TestRunCycle_NoAlerts(t *testing.T) {
	mailer := &fakeMailer{}
	agent, store := newTestAgent(t, mailer, &fakeLLM{})
	seedCompany(t, store, &company.Company{
		ID:           "good-co",
		Name:         "Good Co",
		ContactEmail: "cfo@good.example",
		Status:       company.StatusActive,
		Metrics:      levelMetrics(95),
	})

	resp := agent.RunCycle(context.Background())
	if !resp.Success {
		t.Fatalf("RunCycle failed: %s", resp.Message)
	}
	if resp.Message != "No alerts generated during monitoring cycle" {
		t.Errorf("message = %q", resp.Message)
	}
	if len(mailer.sent) != 0 {
		t.Errorf("sent %d emails, want 0", len(mailer.sent))
	}
}

func TestRunCycle_EndToEnd(t *testing.T) {
	mailer := &fakeMailer{}
	llmc := &fakeLLM{replies: []string{`{"subject": "Critical alert", "body": "Fail Co has failed."}`}}
	agent, store := newTestAgent(t, mailer, llmc)
	seedCompany(t, store, &company.Company{
		ID:           "fail-co",
		Name:         "Fail Co",
		ContactEmail: "cfo@fail.example",
		Status:       company.StatusFailing,
		Metrics:      levelMetrics(95),
	})

	resp := agent.RunCycle(context.Background())
	if resp.Message != "Processed 1 alerts" {
		t.Errorf("message = %q", resp.Message)
	}
	if len(mailer.sent) != 2 {
		t.Errorf("sent %d emails, want one per recipient", len(mailer.sent))
	}

	stored, err := store.RecentAlerts(7)
	if err != nil {
		t.Fatalf("RecentAlerts: %v", err)
	}
	if len(stored) != 1 || stored[0].Message != "Company status changed to FAILING" {
		t.Errorf("stored = %+v", stored)
	}
}

func TestRunCycle_PublishesEvents(t *testing.T) {
	mailer := &fakeMailer{}
	llmc := &fakeLLM{replies: []string{`{"subject": "s", "body": "b"}`}}
	agent, store := newTestAgent(t, mailer, llmc)
	seedCompany(t, store, &company.Company{
		ID:           "fail-co",
		Name:         "Fail Co",
		ContactEmail: "cfo@fail.example",
		Status:       company.StatusFailing,
		Metrics:      levelMetrics(95),
	})

	bus := events.New()
	ch := bus.Subscribe(4)
	agent.bus = bus

	agent.RunCycle(context.Background())

	ev := <-ch
	if ev.Source != events.SourceMonitor || ev.Kind != events.KindAlertRaised {
		t.Fatalf("first event = %s/%s", ev.Source, ev.Kind)
	}
	if ev.Data["severity"] != "critical" || ev.Data["company_id"] != "fail-co" {
		t.Errorf("alert event data = %v", ev.Data)
	}

	ev = <-ch
	if ev.Kind != events.KindCycleComplete {
		t.Fatalf("second event = %s", ev.Kind)
	}
	if ev.Data["processed"] != 1 {
		t.Errorf("processed = %v, want 1", ev.Data["processed"])
	}
}

func TestDashboard(t *testing.T) {
	agent, store := newTestAgent(t, &fakeMailer{}, &fakeLLM{})
	seedCompany(t, store, &company.Company{
		ID:           "good-co",
		Name:         "Good Co",
		ContactEmail: "cfo@good.example",
		Status:       company.StatusActive,
		Metrics:      levelMetrics(95),
	})
	seedCompany(t, store, &company.Company{
		ID:           "bad-co",
		Name:         "Bad Co",
		ContactEmail: "cfo@bad.example",
		Status:       company.StatusFailing,
		Metrics:      levelMetrics(25),
	})
	if err := store.InsertAlert(&company.Alert{
		CompanyID:   "bad-co",
		CompanyName: "Bad Co",
		Severity:    company.SeverityCritical,
		Message:     "Company health score critical: 25.0%",
	}); err != nil {
		t.Fatalf("seed alert: %v", err)
	}

	resp := agent.Dashboard()
	if !resp.Success || resp.Message != "Alert dashboard retrieved" {
		t.Fatalf("Dashboard = %v %q", resp.Success, resp.Message)
	}

	recent := resp.Data["recent_alerts"].([]*company.Alert)
	if len(recent) != 1 || recent[0].CompanyID != "bad-co" {
		t.Errorf("recent_alerts = %+v", recent)
	}

	stats := resp.Data["statistics"].(*company.AlertStats)
	if stats.TotalAlerts != 1 || stats.Critical != 1 {
		t.Errorf("statistics = %+v", stats)
	}

	risk := resp.Data["risk_companies"].(map[string][]map[string]any)
	for _, level := range []string{"critical", "high", "medium", "low"} {
		if _, ok := risk[level]; !ok {
			t.Errorf("risk level %s missing", level)
		}
	}
	if len(risk["low"]) != 1 || risk["low"][0]["company_id"] != "good-co" {
		t.Errorf("low risk = %v", risk["low"])
	}
	if len(risk["critical"]) != 1 || risk["critical"][0]["name"] != "Bad Co" {
		t.Errorf("critical risk = %v", risk["critical"])
	}

	if ts, _ := resp.Data["last_updated"].(string); ts == "" {
		t.Error("last_updated missing")
	}
}
