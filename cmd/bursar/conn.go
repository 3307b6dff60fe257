package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/brindle/bursar-ai-agent/internal/tools"
)

// connectionTool builds the test_connection tool: a live status report
// covering the portfolio database, the LLM backend, the email account,
// and the downstream tool servers. The tool servers connect on the
// first call, so the report reflects real handshakes rather than a
// canned greeting.
func (ts *toolset) connectionTool() *tools.Tool {
	return &tools.Tool{
		Name:        "test_connection",
		Description: "Test the connection to Brindle Capital agents",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
			"required":   []string{},
		},
		Handler: ts.handleTestConnection,
	}
}

func (ts *toolset) handleTestConnection(ctx context.Context, args map[string]any) (string, error) {
	var b strings.Builder
	b.WriteString("✅ Brindle Capital Agents Connected Successfully!\n\n")

	b.WriteString("**System Status:**\n")

	if stats, err := ts.store.ProcessingStats(); err != nil {
		fmt.Fprintf(&b, "- Portfolio database: unavailable (%v)\n", err)
	} else {
		fmt.Fprintf(&b, "- Portfolio database: %d companies\n", stats.TotalCompanies)
	}

	if err := ts.llm.Ping(ctx); err != nil {
		fmt.Fprintf(&b, "- LLM backend (%s): unreachable (%v)\n", ts.cfg.LLM.DefaultModel, err)
	} else {
		fmt.Fprintf(&b, "- LLM backend (%s): OK\n", ts.cfg.LLM.DefaultModel)
	}

	if !ts.cfg.Email.Configured() {
		b.WriteString("- Email account: not configured\n")
	} else if err := ts.email.Ping(ctx); err != nil {
		fmt.Fprintf(&b, "- Email account: unreachable (%v)\n", err)
	} else {
		b.WriteString("- Email account: OK\n")
	}

	// Connect is memoized; after the first call this just reads
	// session state.
	if err := ts.router.Connect(ctx); err != nil {
		fmt.Fprintf(&b, "- Tool servers: connect interrupted (%v)\n", err)
	}
	status := ts.router.Status()
	if len(status) == 0 {
		b.WriteString("- Tool servers: none configured\n")
	}
	for _, st := range status {
		if st.Error != "" {
			fmt.Fprintf(&b, "- Tool server %s: %s (%s)\n", st.Name, st.State, st.Error)
		} else {
			fmt.Fprintf(&b, "- Tool server %s: %s (%d tools)\n", st.Name, st.State, st.Tools)
		}
	}

	b.WriteString("\n**Available Tools:**\n")
	for _, t := range ts.registry.List() {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
	}

	return b.String(), nil
}
