// Package config handles bursar configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/brindle/bursar-ai-agent/internal/email"
	"github.com/brindle/bursar-ai-agent/internal/search"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first. Then:
// $BURSAR_CONFIG, ./config.yaml, ~/.config/bursar/config.yaml,
// /etc/bursar/config.yaml.
func DefaultSearchPaths() []string {
	var paths []string
	if env := os.Getenv("BURSAR_CONFIG"); env != "" {
		paths = append(paths, env)
	}
	paths = append(paths, "config.yaml")

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "bursar", "config.yaml"))
	}

	paths = append(paths, "/etc/bursar/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all bursar configuration.
type Config struct {
	Servers  []ServerConfig `yaml:"servers"`
	LLM      LLMConfig      `yaml:"llm"`
	Email    email.Config   `yaml:"email"`
	Database DatabaseConfig `yaml:"database"`
	Followup FollowupConfig `yaml:"followup"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Research ResearchConfig `yaml:"research"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	DataDir  string         `yaml:"data_dir"`
	LogLevel string         `yaml:"log_level"`
}

// ServerConfig describes one downstream MCP tool server. List order in
// the config file is dispatch precedence: when two servers export the
// same tool name, the one listed first serves it.
type ServerConfig struct {
	// Name identifies the server in logs and status output. Required.
	Name string `yaml:"name"`

	// Description summarizes what the server's tools do.
	Description string `yaml:"description"`

	// Transport selects "stdio" or "http". Defaults to stdio when
	// command is set, http when url is set.
	Transport string `yaml:"transport"`

	// Command, args, dir, and env configure a stdio subprocess server.
	// Env entries are appended to the inherited environment.
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Dir     string            `yaml:"dir"`
	Env     map[string]string `yaml:"env"`

	// URL and headers configure an HTTP server.
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`

	// IncludeTools and ExcludeTools filter which of the server's tools
	// are dispatched. A non-empty include list registers only those
	// names; otherwise any name on the exclude list is skipped.
	IncludeTools []string `yaml:"include_tools"`
	ExcludeTools []string `yaml:"exclude_tools"`
}

// LLMConfig defines language model providers and routing.
type LLMConfig struct {
	// DefaultModel is used by agents that do not request a specific
	// model. Default: qwen3:4b.
	DefaultModel string `yaml:"default_model"`

	// OllamaURL is the base URL of the Ollama server
	// (default http://localhost:11434). Models without an explicit
	// provider mapping route to Ollama.
	OllamaURL string `yaml:"ollama_url"`

	// Anthropic configures the Anthropic provider. Optional.
	Anthropic AnthropicConfig `yaml:"anthropic"`

	// Models maps model names to providers.
	Models []ModelConfig `yaml:"models"`
}

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	// APIKey authenticates against the Anthropic API. Environment
	// variables in the config file are expanded, so
	// api_key: ${ANTHROPIC_API_KEY} works.
	APIKey string `yaml:"api_key"`

	// MaxTokens caps generation length per request. Default: 4096.
	MaxTokens int `yaml:"max_tokens"`
}

// Configured reports whether the Anthropic provider can be used.
func (a AnthropicConfig) Configured() bool {
	return a.APIKey != ""
}

// ModelConfig maps a single model name to its provider.
type ModelConfig struct {
	Name     string `yaml:"name"`
	Provider string `yaml:"provider"` // ollama, anthropic
}

// DatabaseConfig defines the SQLite database location.
type DatabaseConfig struct {
	// Path to the database file. Default: {data_dir}/bursar.db.
	Path string `yaml:"path"`
}

// FollowupConfig tunes when follow-up actions are generated.
type FollowupConfig struct {
	// OverdueDays is how long after an unanswered outbound email a
	// company counts as overdue. Default: 7.
	OverdueDays int `yaml:"overdue_days"`

	// DecliningHealthBelow triggers a metrics follow-up when a
	// company's health score drops under this value. Default: 80.
	DecliningHealthBelow float64 `yaml:"declining_health_below"`

	// MissingDataDays is how long without a data update before a
	// company is asked for fresh numbers. Default: 30.
	MissingDataDays int `yaml:"missing_data_days"`
}

// MonitorConfig tunes health monitoring thresholds and the cycle.
type MonitorConfig struct {
	// IntervalMinutes is the monitoring cycle period in serve mode.
	// Default: 60.
	IntervalMinutes int `yaml:"interval_minutes"`

	// Severity thresholds on the 0-100 health score. A score at or
	// below critical_below raises a CRITICAL alert, at or below
	// high_below a HIGH alert, at or below medium_below a MEDIUM alert.
	CriticalBelow float64 `yaml:"critical_below"` // default 30
	HighBelow     float64 `yaml:"high_below"`     // default 50
	MediumBelow   float64 `yaml:"medium_below"`   // default 70

	// MissingDataDays raises a MEDIUM alert when a company has not
	// updated its data for this many days. Default: 14.
	MissingDataDays int `yaml:"missing_data_days"`

	// CashFlowFloor raises a HIGH alert when reported cash flow drops
	// below this value. Default: -10000.
	CashFlowFloor float64 `yaml:"cash_flow_floor"`

	// DecliningDays raises a HIGH alert after this many consecutive
	// days of declining health scores. Default: 7.
	DecliningDays int `yaml:"declining_days"`

	// Recipients receive alert notification emails.
	Recipients []string `yaml:"recipients"`
}

// ResearchConfig selects which routed tools company research uses.
type ResearchConfig struct {
	// ScrapeTool fetches a company website. Default: firecrawl_scrape.
	// When the tool is unavailable the researcher falls back to a
	// direct HTTP fetch.
	ScrapeTool string `yaml:"scrape_tool"`

	// SearchTool performs web search. Default: firecrawl_search.
	SearchTool string `yaml:"search_tool"`

	// SearchProvider names the direct provider used when the search
	// tool is unavailable ("searxng" or "brave"). Empty picks the
	// first configured one.
	SearchProvider string `yaml:"search_provider"`

	SearXNG search.SearXNGConfig `yaml:"searxng"`
	Brave   search.BraveConfig   `yaml:"brave"`
}

// SearchConfigured reports whether any direct search provider is set up.
func (r ResearchConfig) SearchConfigured() bool {
	return r.SearXNG.Configured() || r.Brave.Configured()
}

// MQTTConfig defines optional alert publishing over MQTT.
type MQTTConfig struct {
	Enabled bool `yaml:"enabled"`

	// Broker is the broker URL (e.g. mqtt://host:1883 or
	// mqtts://host:8883).
	Broker string `yaml:"broker"`

	// ClientID identifies this process to the broker. Default: bursar.
	ClientID string `yaml:"client_id"`

	// TopicPrefix is the root of the published topic tree.
	// Default: bursar. Alerts publish to {prefix}/alerts/{severity},
	// availability to {prefix}/status.
	TopicPrefix string `yaml:"topic_prefix"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Configured reports whether the MQTT sink should be started.
func (m MQTTConfig) Configured() bool {
	return m.Enabled && m.Broker != ""
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills zero-value fields with their documented defaults.
func (c *Config) ApplyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.Database.Path == "" {
		c.Database.Path = filepath.Join(c.DataDir, "bursar.db")
	}

	if c.LLM.DefaultModel == "" {
		c.LLM.DefaultModel = "qwen3:4b"
	}
	if c.LLM.OllamaURL == "" {
		c.LLM.OllamaURL = "http://localhost:11434"
	}
	if c.LLM.Anthropic.MaxTokens == 0 {
		c.LLM.Anthropic.MaxTokens = 4096
	}
	for i := range c.LLM.Models {
		if c.LLM.Models[i].Provider == "" {
			c.LLM.Models[i].Provider = "ollama"
		}
	}

	if c.Followup.OverdueDays == 0 {
		c.Followup.OverdueDays = 7
	}
	if c.Followup.DecliningHealthBelow == 0 {
		c.Followup.DecliningHealthBelow = 80
	}
	if c.Followup.MissingDataDays == 0 {
		c.Followup.MissingDataDays = 30
	}

	if c.Monitor.IntervalMinutes == 0 {
		c.Monitor.IntervalMinutes = 60
	}
	if c.Monitor.CriticalBelow == 0 {
		c.Monitor.CriticalBelow = 30
	}
	if c.Monitor.HighBelow == 0 {
		c.Monitor.HighBelow = 50
	}
	if c.Monitor.MediumBelow == 0 {
		c.Monitor.MediumBelow = 70
	}
	if c.Monitor.MissingDataDays == 0 {
		c.Monitor.MissingDataDays = 14
	}
	if c.Monitor.CashFlowFloor == 0 {
		c.Monitor.CashFlowFloor = -10000
	}
	if c.Monitor.DecliningDays == 0 {
		c.Monitor.DecliningDays = 7
	}

	if c.Research.ScrapeTool == "" {
		c.Research.ScrapeTool = "firecrawl_scrape"
	}
	if c.Research.SearchTool == "" {
		c.Research.SearchTool = "firecrawl_search"
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "bursar"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "bursar"
	}

	c.Email.ApplyDefaults()
}

// Validate checks the configuration for internal consistency and
// returns an error describing the first problem found.
func (c *Config) Validate() error {
	names := make(map[string]bool, len(c.Servers))
	for i, s := range c.Servers {
		if s.Name == "" {
			return fmt.Errorf("servers[%d].name must not be empty", i)
		}
		if names[s.Name] {
			return fmt.Errorf("servers[%d].name %q is a duplicate", i, s.Name)
		}
		names[s.Name] = true

		if s.Command == "" && s.URL == "" {
			return fmt.Errorf("servers[%d] (%s): either command or url is required", i, s.Name)
		}
		switch s.Transport {
		case "", "stdio", "http":
		default:
			return fmt.Errorf("servers[%d] (%s): unknown transport %q (valid: stdio, http)", i, s.Name, s.Transport)
		}
		if s.Transport == "http" && s.URL == "" {
			return fmt.Errorf("servers[%d] (%s): url is required for http transport", i, s.Name)
		}
		if s.Transport == "stdio" && s.Command == "" {
			return fmt.Errorf("servers[%d] (%s): command is required for stdio transport", i, s.Name)
		}
	}

	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}

	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}

	if c.Email.Configured() {
		if err := c.Email.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// Default returns a default configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}
