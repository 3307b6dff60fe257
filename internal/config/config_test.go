package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brindle/bursar-ai-agent/internal/search"
)

func TestFindConfig_Explicit(t *testing.T) {
	// Create a temp config file
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	os.WriteFile(path, []byte("log_level: debug\n"), 0600)

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_SearchPath(t *testing.T) {
	// When no config exists anywhere, should error
	// (Save and restore CWD to avoid finding the repo's config.yaml)
	dir := t.TempDir()
	orig, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(orig)

	_, err := FindConfig("")
	if err == nil {
		t.Fatal("FindConfig(\"\") with no config files should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("log_level: info\n"), 0600)

	orig, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(orig)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "config.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "config.yaml")
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("email:\n  imap:\n    host: imap.example.com\n    username: bursar@example.com\n    password: ${BURSAR_TEST_SECRET}\n"), 0600)
	os.Setenv("BURSAR_TEST_SECRET", "secret123")
	defer os.Unsetenv("BURSAR_TEST_SECRET")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Email.IMAP.Password != "secret123" {
		t.Errorf("password = %q, want %q", cfg.Email.IMAP.Password, "secret123")
	}
}

func TestLoad_InlineSecrets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("llm:\n  anthropic:\n    api_key: sk-ant-test-key\n"), 0600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.LLM.Anthropic.APIKey != "sk-ant-test-key" {
		t.Errorf("api_key = %q, want %q", cfg.LLM.Anthropic.APIKey, "sk-ant-test-key")
	}
	if !cfg.LLM.Anthropic.Configured() {
		t.Error("Anthropic.Configured() = false with api_key set")
	}
}

const fullConfig = `
log_level: debug
data_dir: /var/lib/bursar

servers:
  - name: excel
    description: Excel file operations
    command: uvx
    args: ["excel-mcp-server", "stdio"]
    env:
      EXCEL_FILES_PATH: /srv/excel
    exclude_tools: [format_range]
  - name: firecrawl
    transport: http
    url: https://mcp.example.com/v1
    headers:
      Authorization: Bearer abc123
    include_tools: [firecrawl_scrape, firecrawl_search]

llm:
  default_model: qwen3:8b

email:
  imap:
    host: imap.example.com
    username: bursar@example.com
    password: hunter2
  smtp:
    host: smtp.example.com
    username: bursar@example.com
    password: hunter2
  default_from: Bursar <bursar@example.com>

monitor:
  interval_minutes: 15
  recipients: [ops@example.com]

mqtt:
  enabled: true
  broker: mqtt://broker.local:1883
`

func TestLoad_FullFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte(fullConfig), 0600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if len(cfg.Servers) != 2 {
		t.Fatalf("got %d servers, want 2", len(cfg.Servers))
	}
	excel := cfg.Servers[0]
	if excel.Name != "excel" || excel.Command != "uvx" {
		t.Errorf("servers[0] = %+v, want name=excel command=uvx", excel)
	}
	if len(excel.Args) != 2 || excel.Args[1] != "stdio" {
		t.Errorf("servers[0].args = %v", excel.Args)
	}
	if excel.Env["EXCEL_FILES_PATH"] != "/srv/excel" {
		t.Errorf("servers[0].env = %v", excel.Env)
	}
	if len(excel.ExcludeTools) != 1 || excel.ExcludeTools[0] != "format_range" {
		t.Errorf("servers[0].exclude_tools = %v", excel.ExcludeTools)
	}

	fc := cfg.Servers[1]
	if fc.Transport != "http" || fc.URL != "https://mcp.example.com/v1" {
		t.Errorf("servers[1] = %+v, want http transport with url", fc)
	}
	if fc.Headers["Authorization"] != "Bearer abc123" {
		t.Errorf("servers[1].headers = %v", fc.Headers)
	}
	if len(fc.IncludeTools) != 2 {
		t.Errorf("servers[1].include_tools = %v", fc.IncludeTools)
	}

	if cfg.LLM.DefaultModel != "qwen3:8b" {
		t.Errorf("default_model = %q, want qwen3:8b", cfg.LLM.DefaultModel)
	}
	if cfg.Monitor.IntervalMinutes != 15 {
		t.Errorf("monitor.interval_minutes = %d, want 15", cfg.Monitor.IntervalMinutes)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate error on full config: %v", err)
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte(fullConfig), 0600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	// data_dir was set, so the database path derives from it.
	if cfg.Database.Path != filepath.Join("/var/lib/bursar", "bursar.db") {
		t.Errorf("database.path = %q", cfg.Database.Path)
	}
	if cfg.LLM.OllamaURL != "http://localhost:11434" {
		t.Errorf("ollama_url = %q", cfg.LLM.OllamaURL)
	}
	if cfg.LLM.Anthropic.MaxTokens != 4096 {
		t.Errorf("anthropic.max_tokens = %d, want 4096", cfg.LLM.Anthropic.MaxTokens)
	}

	// Email defaults: IMAPS port with TLS, SMTP submission with STARTTLS.
	if cfg.Email.IMAP.Port != 993 || !cfg.Email.IMAP.TLS {
		t.Errorf("imap defaults = port %d tls %v", cfg.Email.IMAP.Port, cfg.Email.IMAP.TLS)
	}
	if cfg.Email.SMTP.Port != 587 || !cfg.Email.SMTP.StartTLS {
		t.Errorf("smtp defaults = port %d starttls %v", cfg.Email.SMTP.Port, cfg.Email.SMTP.StartTLS)
	}

	// Monitor: interval was overridden, thresholds fall back.
	if cfg.Monitor.CriticalBelow != 30 || cfg.Monitor.HighBelow != 50 || cfg.Monitor.MediumBelow != 70 {
		t.Errorf("monitor thresholds = %v/%v/%v", cfg.Monitor.CriticalBelow, cfg.Monitor.HighBelow, cfg.Monitor.MediumBelow)
	}
	if cfg.Monitor.CashFlowFloor != -10000 {
		t.Errorf("cash_flow_floor = %v, want -10000", cfg.Monitor.CashFlowFloor)
	}

	if cfg.MQTT.ClientID != "bursar" || cfg.MQTT.TopicPrefix != "bursar" {
		t.Errorf("mqtt defaults = client_id %q topic_prefix %q", cfg.MQTT.ClientID, cfg.MQTT.TopicPrefix)
	}
	if cfg.Research.ScrapeTool != "firecrawl_scrape" {
		t.Errorf("research.scrape_tool = %q", cfg.Research.ScrapeTool)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.DataDir != "data" {
		t.Errorf("data_dir = %q, want data", cfg.DataDir)
	}
	if cfg.Database.Path != filepath.Join("data", "bursar.db") {
		t.Errorf("database.path = %q", cfg.Database.Path)
	}
	if cfg.LLM.DefaultModel != "qwen3:4b" {
		t.Errorf("default_model = %q, want qwen3:4b", cfg.LLM.DefaultModel)
	}
	if cfg.Followup.OverdueDays != 7 || cfg.Followup.MissingDataDays != 30 {
		t.Errorf("followup defaults = %+v", cfg.Followup)
	}
	if cfg.Monitor.IntervalMinutes != 60 {
		t.Errorf("monitor.interval_minutes = %d, want 60", cfg.Monitor.IntervalMinutes)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate error on default config: %v", err)
	}
}

func TestValidate_ServerErrors(t *testing.T) {
	tests := []struct {
		name    string
		servers []ServerConfig
		wantErr string
	}{
		{
			"missing name",
			[]ServerConfig{{Command: "uvx"}},
			"name must not be empty",
		},
		{
			"duplicate name",
			[]ServerConfig{
				{Name: "excel", Command: "uvx"},
				{Name: "excel", Command: "npx"},
			},
			"duplicate",
		},
		{
			"no command or url",
			[]ServerConfig{{Name: "excel"}},
			"either command or url is required",
		},
		{
			"bad transport",
			[]ServerConfig{{Name: "excel", Command: "uvx", Transport: "websocket"}},
			"unknown transport",
		},
		{
			"http without url",
			[]ServerConfig{{Name: "api", Command: "uvx", Transport: "http"}},
			"url is required for http transport",
		},
		{
			"stdio without command",
			[]ServerConfig{{Name: "api", URL: "https://x", Transport: "stdio"}},
			"command is required for stdio transport",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Servers = tt.servers
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate should error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_MQTTNeedsBroker(t *testing.T) {
	cfg := Default()
	cfg.MQTT.Enabled = true
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "mqtt.broker") {
		t.Errorf("Validate = %v, want mqtt.broker error", err)
	}
}

func TestValidate_EmailChecked(t *testing.T) {
	cfg := Default()
	cfg.Email.IMAP.Host = "imap.example.com"
	cfg.Email.IMAP.Username = "bursar@example.com"
	cfg.Email.IMAP.Port = 993
	cfg.Email.SMTP.Host = "smtp.example.com"
	cfg.Email.SMTP.Username = "bursar@example.com"
	cfg.Email.SMTP.Port = 587
	// default_from missing for a configured SMTP
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "default_from") {
		t.Errorf("Validate = %v, want default_from error", err)
	}
}

func TestResearchSearchConfigured(t *testing.T) {
	tests := []struct {
		name string
		cfg  ResearchConfig
		want bool
	}{
		{"none", ResearchConfig{}, false},
		{"searxng", ResearchConfig{SearXNG: search.SearXNGConfig{URL: "http://localhost:8080"}}, true},
		{"brave", ResearchConfig{Brave: search.BraveConfig{APIKey: "k"}}, true},
	}

	for _, tt := range tests {
		if got := tt.cfg.SearchConfigured(); got != tt.want {
			t.Errorf("%s: SearchConfigured() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{"trace", LevelTrace, false},
		{"debug", slog.LevelDebug, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"  debug  ", slog.LevelDebug, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
