package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/brindle/bursar-ai-agent/internal/mcp"
	"github.com/brindle/bursar-ai-agent/internal/tools"
)

// runCall handles the "bursar call <tool> [args-json]" subcommand. It
// assembles the full agent runtime, dispatches a single tool call, and
// prints the result to stdout. Useful for exercising the agents without
// an MCP client attached. Logs go to stderr so the result pipes clean.
func runCall(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string, args []string) error {
	logger := newLogger(stderr, slog.LevelInfo)

	toolName := args[0]
	toolArgs := map[string]any{}
	if len(args) > 1 {
		if err := json.Unmarshal([]byte(args[1]), &toolArgs); err != nil {
			return fmt.Errorf("parse tool arguments (want a JSON object): %w", err)
		}
	}

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger.Info("config loaded", "path", cfgPath)

	ts, err := buildToolset(cfg, logger)
	if err != nil {
		return err
	}
	defer ts.Close()

	out, err := ts.registry.Execute(ctx, toolName, toolArgs)
	if err != nil {
		return fmt.Errorf("call %s: %w", toolName, err)
	}

	fmt.Fprintln(stdout, out)
	return nil
}

// serverListing is one downstream server's status and discovered tools,
// merged for the tools subcommand.
type serverListing struct {
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	State       string               `json:"state"`
	Error       string               `json:"error,omitempty"`
	Tools       []mcp.ToolDefinition `json:"tools"`
}

// runTools handles the "bursar tools" subcommand: it lists the agent
// tool catalog and everything the downstream servers export. The
// servers are connected first so the listing shows real discovery
// results, including failures.
func runTools(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string, outputFmt string) error {
	// Warn-level logger keeps connect noise out of the listing.
	logger := newLogger(stderr, slog.LevelWarn)

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	ts, err := buildToolset(cfg, logger)
	if err != nil {
		return err
	}
	defer ts.Close()

	if err := ts.router.Connect(ctx); err != nil {
		return fmt.Errorf("connect tool servers: %w", err)
	}

	servers := mergeServerListings(ts.router.Status(), ts.router.ToolsByServer())

	if outputFmt == "json" {
		out := struct {
			AgentTools []*tools.Tool   `json:"agent_tools"`
			Servers    []serverListing `json:"servers"`
		}{ts.registry.List(), servers}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Fprintln(stdout, "Agent tools:")
	for _, t := range ts.registry.List() {
		fmt.Fprintf(stdout, "  %-26s %s\n", t.Name, t.Description)
	}

	for _, srv := range servers {
		fmt.Fprintln(stdout)
		fmt.Fprintf(stdout, "%s (%s, %d tools)", srv.Name, srv.State, len(srv.Tools))
		if srv.Description != "" {
			fmt.Fprintf(stdout, ": %s", srv.Description)
		}
		fmt.Fprintln(stdout)
		if srv.Error != "" {
			fmt.Fprintf(stdout, "  error: %s\n", srv.Error)
		}
		for _, t := range srv.Tools {
			fmt.Fprintf(stdout, "  %-26s %s\n", t.Name, t.Description)
		}
	}
	return nil
}

// mergeServerListings zips router status and discovery output, which
// are both in configuration order.
func mergeServerListings(status []mcp.ServerStatus, byServer []mcp.ServerTools) []serverListing {
	out := make([]serverListing, 0, len(status))
	for i, st := range status {
		listing := serverListing{
			Name:        st.Name,
			Description: st.Description,
			State:       st.State,
			Error:       st.Error,
		}
		if i < len(byServer) {
			listing.Tools = byServer[i].Tools
		}
		out = append(out, listing)
	}
	return out
}
