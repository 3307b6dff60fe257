package llm

import (
	"testing"
)

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantKey string
		wantVal string
		wantErr bool
	}{
		{
			name:    "bare object",
			content: `{"status": "active"}`,
			wantKey: "status",
			wantVal: "active",
		},
		{
			name:    "leading prose",
			content: `Here is the extracted data: {"status": "active"}`,
			wantKey: "status",
			wantVal: "active",
		},
		{
			name:    "trailing prose",
			content: `{"status": "active"} Let me know if you need anything else.`,
			wantKey: "status",
			wantVal: "active",
		},
		{
			name:    "markdown fence with language",
			content: "```json\n{\"status\": \"active\"}\n```",
			wantKey: "status",
			wantVal: "active",
		},
		{
			name:    "markdown fence without language",
			content: "```\n{\"status\": \"active\"}\n```",
			wantKey: "status",
			wantVal: "active",
		},
		{
			name:    "fenced with surrounding prose",
			content: "Sure, here you go:\n```json\n{\"status\": \"active\"}\n```\nAnything else?",
			wantKey: "status",
			wantVal: "active",
		},
		{
			name:    "think block before payload",
			content: `<think>The company is active because revenue is up.</think>{"status": "active"}`,
			wantKey: "status",
			wantVal: "active",
		},
		{
			name:    "think block containing braces",
			content: `<think>If I return {"status": "failing"} that would be wrong.</think>{"status": "active"}`,
			wantKey: "status",
			wantVal: "active",
		},
		{
			name:    "unclosed think block",
			content: `<think>reasoning {"status": "active"}`,
			wantKey: "status",
			wantVal: "active",
		},
		{
			name:    "no JSON at all",
			content: "The company looks healthy overall.",
			wantErr: true,
		},
		{
			name:    "empty content",
			content: "",
			wantErr: true,
		},
		{
			name:    "truncated JSON",
			content: `{"status": `,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string]any
			err := DecodeJSON(tt.content, &got)

			if tt.wantErr {
				if err == nil {
					t.Fatalf("DecodeJSON() = %v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeJSON() error: %v", err)
			}
			if got[tt.wantKey] != tt.wantVal {
				t.Errorf("got[%q] = %v, want %q", tt.wantKey, got[tt.wantKey], tt.wantVal)
			}
		})
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "plain prose",
			content: "The company is in good health.",
			want:    "The company is in good health.",
		},
		{
			name:    "think block stripped",
			content: "<think>Revenue is up, so the outlook is positive.</think>\nThe company is in good health.",
			want:    "The company is in good health.",
		},
		{
			name:    "surrounding whitespace trimmed",
			content: "\n\n  Follow up next quarter.  \n",
			want:    "Follow up next quarter.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanText(tt.content); got != tt.want {
				t.Errorf("CleanText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeJSON_Array(t *testing.T) {
	content := `Found these companies: [{"name": "Acme"}, {"name": "Zeta"}]`

	var got []map[string]any
	if err := DecodeJSON(content, &got); err != nil {
		t.Fatalf("DecodeJSON() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0]["name"] != "Acme" || got[1]["name"] != "Zeta" {
		t.Errorf("got = %v", got)
	}
}

func TestDecodeJSON_TypedStruct(t *testing.T) {
	content := "```json\n" + `{
		"company_id": "acme-001",
		"health_score": 72.5,
		"risks": ["cash flow", "missing data"]
	}` + "\n```"

	var got struct {
		CompanyID   string   `json:"company_id"`
		HealthScore float64  `json:"health_score"`
		Risks       []string `json:"risks"`
	}
	if err := DecodeJSON(content, &got); err != nil {
		t.Fatalf("DecodeJSON() error: %v", err)
	}
	if got.CompanyID != "acme-001" {
		t.Errorf("CompanyID = %q", got.CompanyID)
	}
	if got.HealthScore != 72.5 {
		t.Errorf("HealthScore = %v", got.HealthScore)
	}
	if len(got.Risks) != 2 {
		t.Errorf("Risks = %v", got.Risks)
	}
}
