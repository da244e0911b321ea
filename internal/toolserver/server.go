// Package toolserver exposes the planner tools to a local MCP client
// over stdio. Every call loads the user's document, runs one tool and
// saves the result, so the server holds no state between calls.
package toolserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nugget/axis/internal/buildinfo"
	"github.com/nugget/axis/internal/planner"
	"github.com/nugget/axis/internal/tools"
	"github.com/nugget/axis/internal/usage"
)

const instructions = `Tools for one user's study planner. Call get_planner first to see task and habit ids; prefer ids over name queries. Every tool call is saved immediately.`

// DocumentStore loads and saves a user's planning document.
type DocumentStore interface {
	LoadDocument(ctx context.Context, userID string) (*planner.Document, error)
	SaveDocument(ctx context.Context, userID string, doc *planner.Document) error
}

// Server serves the registry's tools for a single user.
type Server struct {
	store  DocumentStore
	tools  *tools.Registry
	userID string
	logger *slog.Logger
	mcp    *server.MCPServer

	// mu serializes load-execute-save so concurrent requests from one
	// client cannot interleave.
	mu sync.Mutex
}

// New builds the MCP server with every registry tool plus the
// read-only get_planner.
func New(store DocumentStore, registry *tools.Registry, userID string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:  store,
		tools:  registry,
		userID: userID,
		logger: logger.With("component", "toolserver", "user_id", userID),
	}

	s.mcp = server.NewMCPServer(
		"axis",
		buildinfo.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	s.mcp.AddTool(mcp.NewTool("get_planner",
		mcp.WithDescription("Return the user's current planner: profile, tasks, daily habits, schedule and fixed blocks."),
	), s.handleGetPlanner)

	for _, t := range registry.List() {
		schema, err := json.Marshal(t.Parameters)
		if err != nil {
			return nil, fmt.Errorf("encode schema for %s: %w", t.Name, err)
		}
		s.mcp.AddTool(mcp.NewToolWithRawSchema(t.Name, t.Description, schema), s.handler(t.Name))
	}
	return s, nil
}

// Listen serves JSON-RPC on r and w until ctx is cancelled or r
// reaches EOF.
func (s *Server) Listen(ctx context.Context, r io.Reader, w io.Writer) error {
	s.logger.Info("tool server listening on stdio", "tools", len(s.tools.List())+1)
	return server.NewStdioServer(s.mcp).Listen(ctx, r, w)
}

// Call runs one tool against the stored document. The document is
// saved only when the tool succeeds. The returned Result is non-nil
// whenever the error comes from the tool rather than the store.
func (s *Server) Call(ctx context.Context, name string, args map[string]any) (*tools.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.store.LoadDocument(ctx, s.userID)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}

	toolCtx := usage.WithAttribution(ctx, s.userID, usage.PurposeReschedule)
	res, err := s.tools.Execute(toolCtx, doc, name, args)
	if err != nil {
		s.logger.Info("tool call failed", "tool", name, "error", err)
		return res, err
	}

	if err := s.store.SaveDocument(ctx, s.userID, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}
	s.logger.Info("tool call completed", "tool", name, "action", res.Action)
	return res, nil
}

func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := s.Call(ctx, name, req.GetArguments())
		if err != nil {
			if res == nil {
				return nil, err
			}
			return mcp.NewToolResultError(res.Error), nil
		}
		return jsonResult(res)
	}
}

func (s *Server) handleGetPlanner(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, err := s.store.LoadDocument(ctx, s.userID)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	return jsonResult(doc)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
