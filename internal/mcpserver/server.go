// Package mcpserver exposes the study pipeline as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mohammad-safakhou/studybuddy/internal/pipeline"
	"github.com/mohammad-safakhou/studybuddy/internal/retrieval"
	"github.com/mohammad-safakhou/studybuddy/models"
)

// Service is the slice of the pipeline the tools call.
type Service interface {
	CreatePlan(ctx context.Context, goal string) (pipeline.CreatedPlan, error)
	ExecuteStep(ctx context.Context, stepID string) (pipeline.StepOutcome, error)
	GetPlan(ctx context.Context, id int64) (models.PlanView, error)
}

// Server holds the shared dependencies of the tools.
type Server struct {
	mcpServer *server.MCPServer
	service   Service
	search    retrieval.Searcher
	topK      int
	logger    *log.Logger
}

func New(svc Service, search retrieval.Searcher, topK int, version string) *Server {
	if topK <= 0 {
		topK = 3
	}
	if version == "" {
		version = "dev"
	}
	s := &Server{
		mcpServer: server.NewMCPServer("StudyBuddy", version, server.WithToolCapabilities(true)),
		service:   svc,
		search:    search,
		topK:      topK,
		logger:    log.New(log.Writer(), "[MCP] ", log.LstdFlags),
	}
	s.registerTools()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio blocks serving JSON-RPC on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"create_plan",
			mcp.WithDescription("Create a study plan for a learning goal"),
			mcp.WithString("goal", mcp.Required(), mcp.Description("What the learner wants to achieve")),
		),
		s.handleCreatePlan,
	)
	s.mcpServer.AddTool(
		mcp.NewTool(
			"execute_step",
			mcp.WithDescription("Run one step of a plan and return its deliverable"),
			mcp.WithString("step_id", mcp.Required(), mcp.Description("Identifier of the step")),
		),
		s.handleExecuteStep,
	)
	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_plan",
			mcp.WithDescription("Fetch a plan with the live status of every step"),
			mcp.WithNumber("plan_id", mcp.Required(), mcp.Description("Numeric plan id")),
		),
		s.handleGetPlan,
	)
	if s.search != nil {
		s.mcpServer.AddTool(
			mcp.NewTool(
				"search_documents",
				mcp.WithDescription("Search the study corpus"),
				mcp.WithString("query", mcp.Required(), mcp.Description("Free text query")),
				mcp.WithNumber("top_k", mcp.Description("Maximum number of snippets")),
			),
			s.handleSearch,
		)
	}
}

func arguments(request mcp.CallToolRequest) (map[string]interface{}, bool) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	return args, ok
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

func (s *Server) handleCreatePlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := arguments(request)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	goal, ok := args["goal"].(string)
	if !ok || goal == "" {
		return mcp.NewToolResultError("Missing required parameter: goal"), nil
	}
	out, err := s.service.CreatePlan(ctx, goal)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to create plan: %v", err)), nil
	}
	return jsonResult(out)
}

func (s *Server) handleExecuteStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := arguments(request)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	stepID, ok := args["step_id"].(string)
	if !ok || stepID == "" {
		return mcp.NewToolResultError("Missing required parameter: step_id"), nil
	}
	out, err := s.service.ExecuteStep(ctx, stepID)
	if err != nil {
		var failed *pipeline.StepFailedError
		if !errors.As(err, &failed) {
			s.logger.Printf("execute_step %s: %v", stepID, err)
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(out)
}

func (s *Server) handleGetPlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := arguments(request)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	id, ok := planID(args["plan_id"])
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: plan_id"), nil
	}
	view, err := s.service.GetPlan(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(view)
}

// planID accepts the number JSON decodes to or a numeric string.
func planID(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case float64:
		if t <= 0 || t != float64(int64(t)) {
			return 0, false
		}
		return int64(t), true
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		return n, err == nil && n > 0
	}
	return 0, false
}

func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := arguments(request)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return mcp.NewToolResultError("Missing required parameter: query"), nil
	}
	topK := s.topK
	if k, ok := args["top_k"].(float64); ok && k >= 1 {
		topK = int(k)
	}
	results, err := s.search.Search(ctx, query, topK)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to search: %v", err)), nil
	}
	return jsonResult(results)
}
