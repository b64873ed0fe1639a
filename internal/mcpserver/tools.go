package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teabranch/agentic-developer-mcp/internal/db"
	"github.com/teabranch/agentic-developer-mcp/internal/pipeline"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// --- Tool Definitions ---

func echoTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"echo_tool",
		"Echo the input text",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"text": {
					"type": "string",
					"description": "Text to echo back"
				}
			},
			"required": ["text"]
		}`),
	)
}

func instructDeveloperTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"instruct-developer",
		"Clone a Git repository (optionally only one folder and its descendants), read its .agent/system.md "+
			"instructions and .agent/agent.json model, run the Codex CLI with the request, then commit the "+
			"changes to a new branch and push it.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"repository": {
					"type": "string",
					"description": "Git clone URL of the repository"
				},
				"request": {
					"type": "string",
					"description": "What the developer agent should do"
				},
				"folder": {
					"type": "string",
					"description": "Folder to sparse-checkout and work in (default: repository root)"
				}
			},
			"required": ["repository", "request"]
		}`),
	)
}

func listRunsTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"list_runs",
		"List recent instruct-developer runs, newest first.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"limit": {
					"type": "integer",
					"description": "Maximum number of runs to return (default 20, max 100)"
				}
			}
		}`),
	)
}

func getRunTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"get_run",
		"Get one instruct-developer run, including its full output and summary.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"id": {
					"type": "integer",
					"description": "Run ID from list_runs"
				}
			},
			"required": ["id"]
		}`),
	)
}

// --- Tool Handlers ---

type echoArgs struct {
	Text string `json:"text"`
}

func (s *Server) handleEcho(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args echoArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	return mcp.NewToolResultText(args.Text), nil
}

// handleInstructDeveloper answers every outcome, failures included, as
// plain text.
func (s *Server) handleInstructDeveloper(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args pipeline.Request
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if strings.TrimSpace(args.Repository) == "" {
		return mcp.NewToolResultText("repository is required"), nil
	}
	if strings.TrimSpace(args.Request) == "" {
		return mcp.NewToolResultText("request is required"), nil
	}

	start := time.Now()
	slog.Info("instruct-developer called", "folder", args.Folder, "request_chars", len(args.Request))
	text := s.developer.Run(ctx, args)
	slog.Info("instruct-developer finished", "elapsed_ms", elapsed(start), "result_chars", len(text))
	return mcp.NewToolResultText(text), nil
}

type listRunsArgs struct {
	Limit int `json:"limit"`
}

// runSummary is one list_runs entry.
type runSummary struct {
	ID         int64   `json:"id"`
	UUID       string  `json:"uuid"`
	Repository string  `json:"repository"`
	Folder     string  `json:"folder,omitempty"`
	Status     string  `json:"status"`
	Branch     *string `json:"branch,omitempty"`
	Pushed     bool    `json:"pushed"`
	ErrorKind  *string `json:"error_kind,omitempty"`
	StartedAt  string  `json:"started_at"`
	DurationMs *int64  `json:"duration_ms,omitempty"`
}

// runDetail is the get_run response.
type runDetail struct {
	runSummary
	Request        string  `json:"request"`
	Mode           string  `json:"mode,omitempty"`
	ModelID        *string `json:"model_id,omitempty"`
	PullRequestURL *string `json:"pull_request_url,omitempty"`
	Output         *string `json:"output,omitempty"`
	Summary        *string `json:"summary,omitempty"`
	EndedAt        *string `json:"ended_at,omitempty"`
}

func summarize(r db.Run) runSummary {
	return runSummary{
		ID:         r.ID,
		UUID:       r.UUID,
		Repository: r.Repository,
		Folder:     r.Folder,
		Status:     r.Status,
		Branch:     r.Branch,
		Pushed:     r.Pushed,
		ErrorKind:  r.ErrorKind,
		StartedAt:  r.StartedAt,
		DurationMs: r.DurationMs,
	}
}

func (s *Server) handleListRuns(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args listRunsArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	limit := args.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	runs, err := s.history.ListRuns(limit, 0)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list runs: %v", err)), nil
	}
	out := make([]runSummary, len(runs))
	for i, r := range runs {
		out[i] = summarize(r)
	}
	return resultJSON(out)
}

type getRunArgs struct {
	ID int64 `json:"id"`
}

func (s *Server) handleGetRun(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args getRunArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.ID <= 0 {
		return mcp.NewToolResultError("id is required"), nil
	}

	r, err := s.history.GetRun(args.ID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get run: %v", err)), nil
	}
	if r == nil {
		return mcp.NewToolResultError(fmt.Sprintf("run %d not found", args.ID)), nil
	}
	return resultJSON(runDetail{
		runSummary:     summarize(*r),
		Request:        r.Request,
		Mode:           r.Mode,
		ModelID:        r.ModelID,
		PullRequestURL: r.PullRequestURL,
		Output:         r.Output,
		Summary:        r.Summary,
		EndedAt:        r.EndedAt,
	})
}

// resultJSON marshals v to JSON and returns it as a tool result.
func resultJSON(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// elapsed formats a duration in milliseconds for log lines.
func elapsed(start time.Time) int64 { return time.Since(start).Milliseconds() }
