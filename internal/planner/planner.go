package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/studybuddy/internal/agent"
	"github.com/mohammad-safakhou/studybuddy/internal/llm"
	"github.com/mohammad-safakhou/studybuddy/models"
)

// Planner turns a learning goal into a plan payload.
type Planner struct {
	gen    llm.TextGenerator
	sink   agent.InteractionLogger
	logger *log.Logger
}

func New(gen llm.TextGenerator, sink agent.InteractionLogger) *Planner {
	if sink == nil {
		sink = agent.Discard
	}
	return &Planner{gen: gen, sink: sink, logger: log.New(log.Writer(), "[PLANNER] ", log.LstdFlags)}
}

// NewToken returns the 8 character scope token prefixed to step ids.
func NewToken() string {
	return uuid.NewString()[:8]
}

func systemPrompt(token string) string {
	return fmt.Sprintf(`You are an expert study planner. Create a detailed study plan with 4-6 steps.
Each step should have:
- id: unique identifier (use format: %[1]s_step_1, %[1]s_step_2, etc.)
- title: clear, actionable title
- description: detailed description of what to do
- tool: one of [RAG, LLM, FLASHCARDS, QUIZ]
- expected_output: what the student should produce

Return valid JSON with this structure:
{
  "title": "Study Plan Title",
  "description": "Overall plan description",
  "steps": [
    {
      "id": "%[1]s_step_1",
      "title": "Step Title",
      "description": "Detailed step description",
      "tool": "RAG",
      "expected_output": "What to produce"
    }
  ]
}`, token)
}

func userPrompt(goal string) string {
	return fmt.Sprintf(`Create a comprehensive study plan for this goal: %q

The plan should be practical, achievable, and include a mix of research, practice, and assessment.
Make sure each step builds upon the previous one.`, goal)
}

// CreatePlan asks the model for a plan and falls back to a canned plan when
// the model is unavailable or its answer is unusable. It does not fail on
// model grounds.
func (p *Planner) CreatePlan(ctx context.Context, goal string) (models.PlanPayload, error) {
	token := NewToken()
	prompt := userPrompt(goal)

	payload, ok := p.generate(ctx, prompt, token)
	if !ok {
		payload = FallbackPlan(goal, token)
	}
	Normalize(&payload, token)

	raw, err := json.Marshal(payload)
	if err != nil {
		return models.PlanPayload{}, err
	}
	agent.Record(ctx, p.sink, p.logger, models.AgentPlanner, prompt, string(raw))
	return payload, nil
}

func (p *Planner) generate(ctx context.Context, prompt, token string) (models.PlanPayload, bool) {
	out, err := p.gen.GenerateStructured(ctx, prompt, systemPrompt(token))
	if err != nil {
		p.logger.Printf("plan generation unavailable, using fallback: %v", err)
		return models.PlanPayload{}, false
	}
	if out.Failed() {
		p.logger.Printf("plan generation returned no usable JSON: %s", out.Reason())
		return models.PlanPayload{}, false
	}
	if err := ValidatePlanDocument(out.Raw()); err != nil {
		p.logger.Printf("generated plan rejected: %v", err)
		return models.PlanPayload{}, false
	}
	var payload models.PlanPayload
	if err := out.Decode(&payload); err != nil {
		p.logger.Printf("generated plan undecodable: %v", err)
		return models.PlanPayload{}, false
	}
	return payload, true
}

// Normalize scopes step ids to token, makes them unique and maps tools
// onto the known set. Missing, foreign or repeated ids become
// {token}_step_{n}, with n starting at the step's position and skipping
// ids already taken.
func Normalize(payload *models.PlanPayload, token string) {
	seen := make(map[string]bool, len(payload.Steps))
	for i := range payload.Steps {
		s := &payload.Steps[i]
		if s.ID == "" || !strings.HasPrefix(s.ID, token) || seen[s.ID] {
			n := i + 1
			s.ID = fmt.Sprintf("%s_step_%d", token, n)
			for seen[s.ID] {
				n++
				s.ID = fmt.Sprintf("%s_step_%d", token, n)
			}
		}
		seen[s.ID] = true
		s.Tool = models.ParseTool(string(s.Tool))
	}
}

// FallbackPlan is the four step plan used when generation fails.
func FallbackPlan(goal, token string) models.PlanPayload {
	id := func(n int) string { return fmt.Sprintf("%s_step_%d", token, n) }
	return models.PlanPayload{
		Title:       "Study Plan: " + goal,
		Description: "A comprehensive study plan to achieve: " + goal,
		Steps: []models.Step{
			{
				ID:             id(1),
				Title:          "Research and Gather Information",
				Description:    "Research key concepts and gather relevant information about " + goal,
				Tool:           models.ToolRAG,
				ExpectedOutput: "Summary of key concepts and resources",
			},
			{
				ID:             id(2),
				Title:          "Create Study Materials",
				Description:    "Create flashcards and study notes based on research",
				Tool:           models.ToolFlashcards,
				ExpectedOutput: "Set of flashcards and study notes",
			},
			{
				ID:             id(3),
				Title:          "Practice and Apply",
				Description:    "Practice applying the concepts through exercises",
				Tool:           models.ToolLLM,
				ExpectedOutput: "Completed practice exercises",
			},
			{
				ID:             id(4),
				Title:          "Self-Assessment",
				Description:    "Take a quiz to test understanding",
				Tool:           models.ToolQuiz,
				ExpectedOutput: "Quiz results and areas for improvement",
			},
		},
	}
}
