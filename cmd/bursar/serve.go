package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brindle/bursar-ai-agent/internal/buildinfo"
	"github.com/brindle/bursar-ai-agent/internal/company"
	"github.com/brindle/bursar-ai-agent/internal/config"
	"github.com/brindle/bursar-ai-agent/internal/email"
	"github.com/brindle/bursar-ai-agent/internal/events"
	"github.com/brindle/bursar-ai-agent/internal/extract"
	"github.com/brindle/bursar-ai-agent/internal/fetch"
	"github.com/brindle/bursar-ai-agent/internal/followup"
	"github.com/brindle/bursar-ai-agent/internal/llm"
	"github.com/brindle/bursar-ai-agent/internal/mcp"
	"github.com/brindle/bursar-ai-agent/internal/mcpserver"
	"github.com/brindle/bursar-ai-agent/internal/monitor"
	"github.com/brindle/bursar-ai-agent/internal/mqtt"
	"github.com/brindle/bursar-ai-agent/internal/search"
	"github.com/brindle/bursar-ai-agent/internal/tools"
)

// toolset is the assembled agent runtime: database, event bus, tool
// server router, email, LLM, and the registry of tools bursar serves.
// Every subcommand that dispatches tools builds one of these.
type toolset struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *sql.DB
	store    *company.Store
	bus      *events.Bus
	router   *mcp.Router
	email    *email.Manager
	llm      llm.Client
	monitor  *monitor.Agent
	registry *tools.Registry
}

// buildToolset wires the full agent runtime from configuration. The
// downstream tool servers are not contacted here; the router connects
// them on first use. The returned toolset must be closed to release
// the database, IMAP, and tool server connections.
func buildToolset(cfg *config.Config, logger *slog.Logger) (*toolset, error) {
	// --- Data directory and database ---
	// The SQLite database holds companies, follow-up actions, alerts,
	// and health history. All agents share the one store.
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	db, err := sql.Open("sqlite3", cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.Database.Path, err)
	}
	store, err := company.NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("database opened", "path", cfg.Database.Path)

	// --- Event bus ---
	// Agents publish lifecycle events (alerts raised, cycles complete,
	// fallbacks used) here; the MQTT sink subscribes in serve mode.
	bus := events.New()

	// --- Tool server router ---
	// Dispatches spreadsheet and web research calls to the configured
	// downstream MCP servers. The Excel fallback answers file-search
	// tools locally when the excel server is down.
	servers := make([]mcp.ServerConfig, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		servers = append(servers, mcp.ServerConfig{
			Name:         s.Name,
			Description:  s.Description,
			Transport:    s.Transport,
			Command:      s.Command,
			Args:         s.Args,
			Dir:          s.Dir,
			Env:          s.Env,
			URL:          s.URL,
			Headers:      s.Headers,
			IncludeTools: s.IncludeTools,
			ExcludeTools: s.ExcludeTools,
		})
	}
	router := mcp.NewRouter(mcp.RouterConfig{
		Servers:  servers,
		Logger:   logger,
		Fallback: mcp.NewExcelFallback(logger),
		Bus:      bus,
	})

	// --- Email ---
	// The manager is always constructed; sends fail with a clear error
	// when SMTP is missing, so agents need no special casing.
	mailer := email.NewManager(cfg.Email, logger)
	if mailer.CanSend() {
		logger.Info("email configured", "from", cfg.Email.DefaultFrom)
	} else {
		logger.Warn("email not configured - follow-ups and alert notifications cannot be sent")
	}

	// --- LLM client ---
	llmClient := createLLMClient(cfg, logger)

	// --- Web search fallback ---
	// Research prefers the routed search tool; a configured provider
	// answers directly when that server is down. Left nil when no
	// provider is configured so the agent skips the fallback.
	var webSearch extract.Searcher
	if cfg.Research.SearchConfigured() {
		primary := cfg.Research.SearchProvider
		if primary == "" {
			if cfg.Research.SearXNG.Configured() {
				primary = "searxng"
			} else {
				primary = "brave"
			}
		}
		mgr := search.NewManager(primary)
		if cfg.Research.SearXNG.Configured() {
			mgr.Register(search.NewSearXNG(cfg.Research.SearXNG.URL))
		}
		if cfg.Research.Brave.Configured() {
			mgr.Register(search.NewBrave(cfg.Research.Brave.APIKey))
		}
		webSearch = mgr
		logger.Info("web search fallback enabled", "primary", primary, "providers", mgr.Providers())
	}

	// --- Agents ---
	extractAgent := extract.New(extract.Config{
		Store:    store,
		LLM:      llmClient,
		Model:    cfg.LLM.DefaultModel,
		Router:   router,
		Fetcher:  fetch.New(),
		Search:   webSearch,
		Research: cfg.Research,
		Bus:      bus,
		Logger:   logger,
	})
	followupAgent := followup.New(followup.Config{
		Store:  store,
		LLM:    llmClient,
		Model:  cfg.LLM.DefaultModel,
		Email:  mailer,
		Rules:  cfg.Followup,
		Bus:    bus,
		Logger: logger,
	})
	monitorAgent := monitor.New(monitor.Config{
		Store:  store,
		LLM:    llmClient,
		Model:  cfg.LLM.DefaultModel,
		Email:  mailer,
		Rules:  cfg.Monitor,
		Bus:    bus,
		Logger: logger,
	})

	ts := &toolset{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		store:    store,
		bus:      bus,
		router:   router,
		email:    mailer,
		llm:      llmClient,
		monitor:  monitorAgent,
		registry: tools.NewRegistry(),
	}

	// --- Tool catalog ---
	// test_connection registers first so it heads the catalog clients
	// see; the agents follow in extraction, follow-up, monitoring order.
	ts.registry.Register(ts.connectionTool())
	ts.registry.RegisterAll(extractAgent.Tools())
	ts.registry.RegisterAll(followupAgent.Tools())
	ts.registry.RegisterAll(monitorAgent.Tools())
	logger.Info("tool catalog assembled", "tools", len(ts.registry.List()))

	return ts, nil
}

// Close releases the database, IMAP, and tool server connections.
func (ts *toolset) Close() {
	ts.email.Close()
	if err := ts.router.Close(); err != nil {
		ts.logger.Warn("error closing tool servers", "error", err)
	}
	if err := ts.db.Close(); err != nil {
		ts.logger.Warn("error closing database", "error", err)
	}
}

// runServe handles the "bursar serve" subcommand. It is the primary
// operating mode: loads config, opens the database, assembles the
// agents and their tool catalog, and serves MCP over stdio until the
// upstream client closes the pipe or a shutdown signal arrives.
//
// The shutdown sequence is:
//  1. stdin EOF or SIGINT/SIGTERM ends the serve loop
//  2. The MQTT sink publishes its retained offline status
//  3. Database, IMAP, and tool server connections close via defers
func runServe(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string) error {
	// stdout carries the MCP protocol stream, so every log line goes to
	// stderr. An upstream client parsing stdout must see only JSON-RPC
	// frames.
	logger := newLogger(stderr, slog.LevelInfo)
	logger.Info("starting Bursar", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "branch", buildinfo.GitBranch, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure the logger now that the desired level is known. The
	// initial Info-level logger covers only the startup banner.
	if cfg.LogLevel != "" {
		// ParseLogLevel is already validated by config.Validate(), so
		// this error path should be unreachable in practice.
		level, _ := config.ParseLogLevel(cfg.LogLevel)
		logger = newLogger(stderr, level)
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"servers", len(cfg.Servers),
		"model", cfg.LLM.DefaultModel,
		"ollama_url", cfg.LLM.OllamaURL,
	)

	// --- Agent runtime ---
	ts, err := buildToolset(cfg, logger)
	if err != nil {
		return err
	}
	defer ts.Close()

	// --- MQTT event sink ---
	// Optional: bridges alert and cycle events onto an MQTT broker for
	// external dashboards. Bursar runs identically without it.
	var sink *mqtt.Sink
	if cfg.MQTT.Configured() {
		sink = mqtt.NewSink(cfg.MQTT, ts.bus, logger)
		go func() {
			if err := sink.Start(ctx); err != nil {
				logger.Error("mqtt sink failed", "error", err)
			}
		}()
		logger.Info("mqtt sink enabled", "broker", cfg.MQTT.Broker, "topic_prefix", cfg.MQTT.TopicPrefix)
	} else {
		logger.Info("mqtt sink disabled (not configured)")
	}

	// --- Signal handling ---
	// NotifyContext wraps the parent context so that SIGINT/SIGTERM
	// cancellation flows through the same ctx used by the serve loop
	// and the monitoring ticker.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// --- Monitoring cycles ---
	// Health sweeps run on a plain ticker; each cycle scores every
	// company, sends grouped alert notifications, and publishes events.
	if cfg.Monitor.IntervalMinutes > 0 {
		interval := time.Duration(cfg.Monitor.IntervalMinutes) * time.Minute
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					resp := ts.monitor.RunCycle(ctx)
					if resp.Success {
						logger.Info("monitoring cycle complete", "result", resp.Message)
					} else {
						logger.Error("monitoring cycle failed", "result", resp.Message)
					}
				}
			}
		}()
		logger.Info("health monitoring scheduled", "interval_minutes", cfg.Monitor.IntervalMinutes)
	}

	// --- MCP server ---
	srv := mcpserver.New(mcpserver.Config{
		Registry: ts.registry,
		Logger:   logger,
		Version:  buildinfo.Version,
		Out:      stdout,
	})

	// The serve loop blocks on stdin reads, which context cancellation
	// cannot interrupt. Running it in a goroutine lets a signal end the
	// process promptly; the abandoned read dies with the process.
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	// Publish the retained offline status before disconnecting.
	if sink != nil {
		offCtx, offCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer offCancel()
		if err := sink.Stop(offCtx); err != nil {
			logger.Error("mqtt shutdown failed", "error", err)
		}
	}

	if runErr != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp server: %w", runErr)
	}

	logger.Info("Bursar stopped")
	return nil
}
