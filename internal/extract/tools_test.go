package extract

import (
	"context"
	"strings"
	"testing"

	"github.com/brindle/bursar-ai-agent/internal/tools"
)

func TestTools_Catalog(t *testing.T) {
	agent, _ := newTestAgent(t, &fakeRouter{}, &fakeLLM{})

	ts := agent.Tools()

	want := []string{
		"process_excel_file",
		"analyze_company_health",
		"search_excel_files",
		"research_company_online",
	}
	if len(ts) != len(want) {
		t.Fatalf("len = %d, want %d", len(ts), len(want))
	}
	for i, name := range want {
		if ts[i].Name != name {
			t.Errorf("tool[%d] = %q, want %q", i, ts[i].Name, name)
		}
		if ts[i].Handler == nil {
			t.Errorf("tool %q has no handler", name)
		}
		if ts[i].Description == "" {
			t.Errorf("tool %q has no description", name)
		}
	}
}

func TestHandlers_RequiredArgs(t *testing.T) {
	agent, _ := newTestAgent(t, &fakeRouter{}, &fakeLLM{})

	reg := tools.NewRegistry()
	reg.RegisterAll(agent.Tools())

	tests := []struct {
		tool    string
		wantErr string
	}{
		{"process_excel_file", "file_path is required"},
		{"analyze_company_health", "company_id is required"},
		{"research_company_online", "company_name is required"},
	}
	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			_, err := reg.Execute(context.Background(), tt.tool, map[string]any{})
			if err == nil || err.Error() != tt.wantErr {
				t.Errorf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestHandlers_FormatThroughRegistry(t *testing.T) {
	agent, _ := newTestAgent(t, &fakeRouter{}, &fakeLLM{})

	reg := tools.NewRegistry()
	reg.RegisterAll(agent.Tools())

	out, err := reg.Execute(context.Background(), "analyze_company_health",
		map[string]any{"company_id": "ghost-9"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.HasPrefix(out, "❌ Company not found: ghost-9") {
		t.Errorf("out = %q", out)
	}
}
