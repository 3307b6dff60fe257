// Package mcpserver implements the serving side of the MCP protocol:
// a line-delimited JSON-RPC 2.0 loop over stdin/stdout that exposes a
// tool registry to an upstream client. This is what `bursar serve`
// runs. All logging goes to stderr; stdout carries only protocol
// frames.
package mcpserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/brindle/bursar-ai-agent/internal/mcp"
	"github.com/brindle/bursar-ai-agent/internal/tools"
)

// Config bundles the server's dependencies. In and Out default to the
// process's stdin and stdout; tests inject buffers.
type Config struct {
	Registry *tools.Registry
	Logger   *slog.Logger
	Name     string
	Version  string
	In       io.Reader
	Out      io.Writer
}

// Server reads one JSON-RPC request per line, dispatches it against
// the tool registry, and writes one response line. Requests are
// handled sequentially in arrival order.
type Server struct {
	registry *tools.Registry
	logger   *slog.Logger
	name     string
	version  string
	reader   *bufio.Reader
	out      io.Writer
}

// New creates an MCP server over the given registry.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Name == "" {
		cfg.Name = "bursar"
	}
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	return &Server{
		registry: cfg.Registry,
		logger:   cfg.Logger.With("component", "mcpserver"),
		name:     cfg.Name,
		version:  cfg.Version,
		reader:   bufio.NewReaderSize(cfg.In, 1024*1024),
		out:      cfg.Out,
	}
}

// request is an incoming JSON-RPC message. ID stays untyped so number
// and string ids round-trip verbatim; a nil ID marks a notification.
type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// response is an outgoing JSON-RPC message. ID has no omitempty: a
// parse-error response carries an explicit null id.
type response struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      any           `json:"id"`
	Result  any           `json:"result,omitempty"`
	Error   *mcp.RPCError `json:"error,omitempty"`
}

type initializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
	ClientInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"clientInfo"`
}

type initializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    capabilities   `json:"capabilities"`
	ServerInfo      serverIdentity `json:"serverInfo"`
}

type capabilities struct {
	Tools map[string]any `json:"tools"`
}

type serverIdentity struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type toolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

type toolsListResult struct {
	Tools []toolDefinition `json:"tools"`
}

type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type callResult struct {
	Content []contentBlock `json:"content"`
}

// Run processes requests until stdin closes. EOF is the shutdown
// signal (the upstream client closing the pipe ends the session), so
// a clean EOF returns nil. The context bounds individual tool
// executions and is checked between requests, but cannot interrupt a
// blocked read.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("MCP server listening on stdio",
		"name", s.name,
		"version", s.version,
		"tools", len(s.registry.List()),
	)

	for {
		line, err := s.reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			s.handleLine(ctx, line)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Info("stdin closed, shutting down")
				return nil
			}
			return fmt.Errorf("read request: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (s *Server) handleLine(ctx context.Context, line []byte) {
	var req request
	if err := json.Unmarshal(bytes.TrimSpace(line), &req); err != nil {
		s.logger.Warn("malformed request line", "error", err)
		s.writeError(nil, mcp.CodeParseError, "parse error: "+err.Error())
		return
	}

	s.logger.Debug("request received", "method", req.Method, "id", req.ID)

	switch req.Method {
	case "initialize":
		s.handleInitialize(&req)
	case "notifications/initialized":
		// Client acknowledgment; notifications get no response.
	case "tools/list":
		s.handleToolsList(&req)
	case "tools/call":
		s.handleToolsCall(ctx, &req)
	default:
		if req.ID == nil {
			return
		}
		s.writeError(req.ID, mcp.CodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

func (s *Server) handleInitialize(req *request) {
	var params initializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.writeError(req.ID, mcp.CodeInvalidParams, "invalid initialize params: "+err.Error())
			return
		}
	}
	if params.ClientInfo.Name != "" {
		s.logger.Info("client connected",
			"client", params.ClientInfo.Name,
			"client_version", params.ClientInfo.Version,
		)
	}

	s.writeResult(req.ID, initializeResult{
		ProtocolVersion: mcp.ProtocolVersion,
		Capabilities:    capabilities{Tools: map[string]any{}},
		ServerInfo:      serverIdentity{Name: s.name, Version: s.version},
	})
}

func (s *Server) handleToolsList(req *request) {
	list := s.registry.List()
	defs := make([]toolDefinition, 0, len(list))
	for _, t := range list {
		defs = append(defs, toolDefinition{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}
	s.writeResult(req.ID, toolsListResult{Tools: defs})
}

func (s *Server) handleToolsCall(ctx context.Context, req *request) {
	var params callParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writeError(req.ID, mcp.CodeInvalidParams, "invalid tools/call params: "+err.Error())
		return
	}

	s.logger.Info("tool call", "tool", params.Name)

	text, err := s.registry.Execute(ctx, params.Name, params.Arguments)
	if err != nil {
		s.logger.Warn("tool call failed", "tool", params.Name, "error", err)
		s.writeError(req.ID, mcp.CodeInternalError, err.Error())
		return
	}

	s.writeResult(req.ID, callResult{
		Content: []contentBlock{{Type: "text", Text: text}},
	})
}

func (s *Server) writeResult(id, result any) {
	s.write(&response{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) writeError(id any, code int, message string) {
	s.write(&response{JSONRPC: "2.0", ID: id, Error: &mcp.RPCError{Code: code, Message: message}})
}

func (s *Server) write(resp *response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("marshal response", "error", err)
		return
	}
	data = append(data, '\n')
	if _, err := s.out.Write(data); err != nil {
		s.logger.Error("write response", "error", err)
	}
}
