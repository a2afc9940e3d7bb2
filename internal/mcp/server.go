package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/releasy/internal/models"
	"github.com/joescharf/releasy/internal/output"
	"github.com/joescharf/releasy/internal/release"
	"github.com/joescharf/releasy/internal/store"
)

// Opener loads the project in dir. Output must go to ui: stdout carries the
// MCP transport.
type Opener func(dir string, ui *output.UI) (*release.Session, error)

// Server exposes releasy builds and history as MCP tools.
type Server struct {
	store   store.Store
	open    Opener
	version string
}

// NewServer creates the MCP server wrapper. s may be nil, in which case
// builds are not recorded and history is unavailable.
func NewServer(s store.Store, open Opener, version string) *Server {
	return &Server{store: s, open: open, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("releasy", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.listTasksTool())
	srv.AddTool(s.buildTool())
	srv.AddTool(s.historyTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	stdioServer := server.NewStdioServer(s.MCPServer())
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// releasy_list_tasks
func (s *Server) listTasksTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("releasy_list_tasks",
		mcp.WithDescription("List the build tasks of a project in execution order, with their variant, target folder and whether they are out of date."),
		mcp.WithString("dir", mcp.Required(), mcp.Description("Project directory containing releasy.yaml or releasy.toml")),
	)
	return tool, s.handleListTasks
}

func (s *Server) handleListTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir, err := request.RequireString("dir")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: dir"), nil
	}

	var log bytes.Buffer
	sess, err := s.open(dir, &output.UI{Out: &log, ErrOut: &log})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load project: %v", err)), nil
	}
	infos, err := sess.Plan()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to plan tasks: %v", err)), nil
	}
	return jsonResult(infos)
}

// releasy_build
func (s *Server) buildTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("releasy_build",
		mcp.WithDescription("Build release artifacts for a project. Only out-of-date tasks run. Returns the status of every task and the build log."),
		mcp.WithString("dir", mcp.Required(), mcp.Description("Project directory containing releasy.yaml or releasy.toml")),
		mcp.WithArray("targets", mcp.Description("Task names, target folders or variant names to build (default: all)"), mcp.WithStringItems()),
		mcp.WithBoolean("dry_run", mcp.Description("Only report what would be built")),
	)
	return tool, s.handleBuild
}

type buildResult struct {
	Name       string `json:"name"`
	Variant    string `json:"variant"`
	Target     string `json:"target"`
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

type buildOut struct {
	Project string             `json:"project"`
	Version string             `json:"version,omitempty"`
	DryRun  bool               `json:"dry_run"`
	Planned []release.TaskInfo `json:"planned,omitempty"`
	Results []buildResult      `json:"results,omitempty"`
	Error   string             `json:"error,omitempty"`
	Log     string             `json:"log"`
}

func (s *Server) handleBuild(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir, err := request.RequireString("dir")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: dir"), nil
	}
	targets := request.GetStringSlice("targets", nil)
	dryRun := request.GetBool("dry_run", false)

	var log bytes.Buffer
	ui := &output.UI{Out: &log, ErrOut: &log, DryRun: dryRun}
	sess, err := s.open(dir, ui)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load project: %v", err)), nil
	}

	out := buildOut{Project: sess.Project.Name, Version: sess.Project.Version, DryRun: dryRun}
	if dryRun {
		out.Planned, err = sess.Plan(targets...)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to plan tasks: %v", err)), nil
		}
		out.Log = log.String()
		return jsonResult(out)
	}

	results, err := sess.Build(ctx, targets, s.store)
	for _, r := range results {
		br := buildResult{
			Name:       r.Task.Label(),
			Variant:    string(sess.Variant(r.Task)),
			Target:     r.Task.Target,
			Status:     string(r.Status),
			DurationMS: r.Duration.Milliseconds(),
		}
		if r.Err != nil {
			br.Error = r.Err.Error()
		}
		out.Results = append(out.Results, br)
	}
	if err != nil {
		out.Error = err.Error()
	}
	out.Log = log.String()

	if err != nil {
		data, _ := json.Marshal(out)
		return mcp.NewToolResultError(string(data)), nil
	}
	return jsonResult(out)
}

// releasy_history
func (s *Server) historyTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("releasy_history",
		mcp.WithDescription("List recorded builds, newest first."),
		mcp.WithString("project", mcp.Description("Filter by project name")),
		mcp.WithString("variant", mcp.Description("Filter by variant (osx_app, win32_installer, win32_folder, win32_standalone)")),
		mcp.WithString("status", mcp.Description("Filter by status (built, skipped, failed)")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of records (default 20)")),
	)
	return tool, s.handleHistory
}

type historyOut struct {
	ID         string    `json:"id"`
	Project    string    `json:"project"`
	Version    string    `json:"version,omitempty"`
	Variant    string    `json:"variant"`
	Target     string    `json:"target"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	StartedAt  time.Time `json:"started_at"`
}

func (s *Server) handleHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("build history is not available"), nil
	}

	filter := store.BuildListFilter{
		Project: request.GetString("project", ""),
		Variant: request.GetString("variant", ""),
		Status:  models.BuildStatus(request.GetString("status", "")),
		Limit:   request.GetInt("limit", 20),
	}
	builds, err := s.store.ListBuilds(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list builds: %v", err)), nil
	}

	out := make([]historyOut, len(builds))
	for i, b := range builds {
		out[i] = historyOut{
			ID:         b.ID,
			Project:    b.Project,
			Version:    b.Version,
			Variant:    b.Variant,
			Target:     b.Target,
			Status:     string(b.Status),
			Error:      b.Error,
			DurationMS: b.Duration.Milliseconds(),
			StartedAt:  b.StartedAt,
		}
	}
	return jsonResult(out)
}
