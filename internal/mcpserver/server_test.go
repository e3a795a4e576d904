package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mohammad-safakhou/studybuddy/internal/pipeline"
	"github.com/mohammad-safakhou/studybuddy/internal/retrieval"
	"github.com/mohammad-safakhou/studybuddy/models"
)

type stubService struct {
	goal    string
	stepErr error
	planID  int64
}

func (s *stubService) CreatePlan(ctx context.Context, goal string) (pipeline.CreatedPlan, error) {
	s.goal = goal
	return pipeline.CreatedPlan{PlanID: 1, Goal: goal, Status: "created"}, nil
}

func (s *stubService) ExecuteStep(ctx context.Context, stepID string) (pipeline.StepOutcome, error) {
	if s.stepErr != nil {
		return pipeline.StepOutcome{}, s.stepErr
	}
	return pipeline.StepOutcome{StepID: stepID, Status: models.StepCompleted, Result: models.GuidanceResult{Content: "ok"}}, nil
}

func (s *stubService) GetPlan(ctx context.Context, id int64) (models.PlanView, error) {
	s.planID = id
	if id != 1 {
		return models.PlanView{}, pipeline.ErrPlanNotFound
	}
	return models.PlanView{ID: 1, Goal: "g"}, nil
}

func newTestServer(svc Service) *Server {
	s := New(svc, retrieval.NewOverlapIndex(retrieval.DefaultDocuments()), 2, "test")
	s.logger = log.New(io.Discard, "", 0)
	return s
}

func call(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatalf("empty tool result")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content type %T", res.Content[0])
	}
	return tc.Text
}

func TestCreatePlanTool(t *testing.T) {
	svc := &stubService{}
	s := newTestServer(svc)

	res, err := s.handleCreatePlan(context.Background(), call(map[string]interface{}{"goal": "learn sql"}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", text(t, res))
	}
	var out pipeline.CreatedPlan
	if err := json.Unmarshal([]byte(text(t, res)), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Goal != "learn sql" || svc.goal != "learn sql" {
		t.Fatalf("unexpected plan: %+v", out)
	}

	res, _ = s.handleCreatePlan(context.Background(), call(map[string]interface{}{}))
	if !res.IsError {
		t.Fatalf("expected error for missing goal")
	}
}

func TestExecuteStepToolReportsFailure(t *testing.T) {
	s := newTestServer(&stubService{stepErr: &pipeline.StepFailedError{StepID: "x", Err: errors.New("boom")}})
	res, err := s.handleExecuteStep(context.Background(), call(map[string]interface{}{"step_id": "x"}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !res.IsError || !strings.Contains(text(t, res), "Step execution failed: boom") {
		t.Fatalf("expected failure result, got %+v", res)
	}
}

func TestGetPlanToolAcceptsNumbers(t *testing.T) {
	svc := &stubService{}
	s := newTestServer(svc)
	res, _ := s.handleGetPlan(context.Background(), call(map[string]interface{}{"plan_id": float64(1)}))
	if res.IsError || svc.planID != 1 {
		t.Fatalf("expected plan 1, got %+v", res)
	}
	res, _ = s.handleGetPlan(context.Background(), call(map[string]interface{}{"plan_id": "1"}))
	if res.IsError {
		t.Fatalf("numeric string should be accepted")
	}
	res, _ = s.handleGetPlan(context.Background(), call(map[string]interface{}{"plan_id": 1.5}))
	if !res.IsError {
		t.Fatalf("fractional id should be rejected")
	}
	res, _ = s.handleGetPlan(context.Background(), call(map[string]interface{}{"plan_id": float64(2)}))
	if !res.IsError || !strings.Contains(text(t, res), "not found") {
		t.Fatalf("expected not found, got %+v", res)
	}
}

func TestSearchDocumentsTool(t *testing.T) {
	s := newTestServer(&stubService{})
	res, _ := s.handleSearch(context.Background(), call(map[string]interface{}{"query": "python programming", "top_k": float64(1)}))
	if res.IsError {
		t.Fatalf("unexpected error: %s", text(t, res))
	}
	var snippets []models.Snippet
	if err := json.Unmarshal([]byte(text(t, res)), &snippets); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(snippets) != 1 || !strings.Contains(snippets[0].Content, "Python") {
		t.Fatalf("unexpected snippets: %+v", snippets)
	}
}
