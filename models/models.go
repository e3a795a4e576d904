package models

import (
	"strings"
	"time"
)

// Tool selects how a step is researched and executed.
type Tool string

const (
	ToolLLM        Tool = "LLM"
	ToolRAG        Tool = "RAG"
	ToolFlashcards Tool = "FLASHCARDS"
	ToolQuiz       Tool = "QUIZ"
)

// ParseTool maps free text to a Tool. Unknown or empty values become ToolLLM.
func ParseTool(s string) Tool {
	switch Tool(strings.ToUpper(strings.TrimSpace(s))) {
	case ToolRAG:
		return ToolRAG
	case ToolFlashcards:
		return ToolFlashcards
	case ToolQuiz:
		return ToolQuiz
	default:
		return ToolLLM
	}
}

// Valid reports whether t is one of the known tools.
func (t Tool) Valid() bool {
	switch t {
	case ToolLLM, ToolRAG, ToolFlashcards, ToolQuiz:
		return true
	}
	return false
}

// NeedsResearch reports whether the researcher runs before the executor.
func (t Tool) NeedsResearch() bool {
	switch t {
	case ToolRAG, ToolFlashcards, ToolQuiz:
		return true
	}
	return false
}

// StepStatus is the lifecycle state of a step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// IsTerminal returns true for completed and failed.
func (s StepStatus) IsTerminal() bool {
	return s == StepCompleted || s == StepFailed
}

// Agent roles recorded in the interaction log.
const (
	AgentPlanner    = "planner"
	AgentResearcher = "researcher"
	AgentExecutor   = "executor"
)

// Step is a step definition embedded in a plan payload.
type Step struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Tool           Tool   `json:"tool"`
	ExpectedOutput string `json:"expected_output"`
}

// PlanPayload is the structured body of a plan. Step order is significant.
type PlanPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Steps       []Step `json:"steps"`
}

// FindStep returns the step definition with the given id.
func (p PlanPayload) FindStep(id string) (Step, bool) {
	for _, s := range p.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}

// Plan is a persisted plan record.
type Plan struct {
	ID        int64       `json:"id"`
	Goal      string      `json:"goal"`
	Payload   PlanPayload `json:"plan_json"`
	CreatedAt time.Time   `json:"created_at"`
}

// StepState is the mutable lifecycle record of a step definition.
type StepState struct {
	StepID    string     `json:"step_id"`
	PlanID    int64      `json:"plan_id"`
	Status    StepStatus `json:"status"`
	Result    []byte     `json:"result_json,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// InteractionLog is one prompt/response exchange of an agent.
type InteractionLog struct {
	ID        int64     `json:"id,omitempty"`
	Agent     string    `json:"agent"`
	Timestamp time.Time `json:"timestamp"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
}

// StepView is a step definition annotated with its live status.
type StepView struct {
	Step
	Status StepStatus `json:"status"`
	Result StepResult `json:"result"`
}

// PlanView is a plan whose steps carry their live status and result.
type PlanView struct {
	ID          int64      `json:"id"`
	Goal        string     `json:"goal"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Steps       []StepView `json:"steps"`
	CreatedAt   time.Time  `json:"created_at"`
}
