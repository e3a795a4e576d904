package executor_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/studybuddy/internal/agent"
	"github.com/mohammad-safakhou/studybuddy/internal/executor"
	"github.com/mohammad-safakhou/studybuddy/internal/llm"
	"github.com/mohammad-safakhou/studybuddy/internal/llm/llmtest"
	"github.com/mohammad-safakhou/studybuddy/models"
)

func newExecutor(p llm.Provider, sink agent.InteractionLogger, opts ...executor.Option) *executor.Executor {
	gen := llm.NewGenerator(p, llm.WithLogger(log.New(io.Discard, "", 0)))
	return executor.New(gen, sink, opts...)
}

func TestExecuteFlashcardsFallback(t *testing.T) {
	gen := llmtest.New()
	gen.Fallback = llmtest.Reply{Text: "sorry, no cards today"}
	var logged []string
	sink := agent.LoggerFunc(func(_ context.Context, a, prompt, resp string) error {
		logged = append(logged, a)
		return nil
	})
	ex := newExecutor(gen, sink)

	step := models.Step{ID: "s1", Title: "Photosynthesis", Tool: models.ToolFlashcards}
	res, err := ex.Execute(context.Background(), step, models.GuidanceContext{Guidance: "light"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	cards, ok := res.(models.FlashcardsResult)
	if !ok {
		t.Fatalf("expected flashcards, got %T", res)
	}
	if cards.TotalCards != 1 || cards.Flashcards[0].Question != "What is the main concept in Photosynthesis?" {
		t.Fatalf("unexpected fallback: %#v", cards)
	}
	if len(logged) != 1 || logged[0] != models.AgentExecutor {
		t.Fatalf("expected executor log, got %v", logged)
	}
	raw, _ := json.Marshal(res)
	if !strings.Contains(string(raw), `"type":"flashcards"`) {
		t.Fatalf("missing type tag: %s", raw)
	}
}

func TestExecuteQuizUsesModelOutput(t *testing.T) {
	gen := llmtest.New(`{"quiz":[{"id":"q1","question":"2+2?","options":["3","4"],"correct_answer":"4","explanation":"math"},{"id":"q2","question":"1+1?","options":["2"],"correct_answer":"2","explanation":"math"}]}`)
	ex := newExecutor(gen, nil)

	res, err := ex.Execute(context.Background(), models.Step{ID: "s2", Title: "Arithmetic", Tool: models.ToolQuiz}, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	quiz := res.(models.QuizResult)
	if quiz.TotalQuestions != 2 || quiz.Quiz[1].CorrectAnswer != "2" {
		t.Fatalf("unexpected quiz: %#v", quiz)
	}
}

func TestExecuteQuizFallback(t *testing.T) {
	gen := llmtest.New()
	gen.Fallback = llmtest.Reply{Text: `{"error":"model refused"}`}
	ex := newExecutor(gen, nil)

	res, err := ex.Execute(context.Background(), models.Step{ID: "s2", Title: "Sets", Tool: models.ToolQuiz}, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	quiz := res.(models.QuizResult)
	if quiz.TotalQuestions != 1 || quiz.Quiz[0].CorrectAnswer != "Option A" || len(quiz.Quiz[0].Options) != 4 {
		t.Fatalf("unexpected fallback quiz: %#v", quiz)
	}
}

func TestExecuteStudyGuidePassesResearch(t *testing.T) {
	gen := llmtest.New("Summary\n\nKey Takeaways\n- one\n- two\n\nAction Items\n1. do it\n")
	var observed time.Duration = -1
	ex := newExecutor(gen, nil, executor.WithMetrics(executor.Metrics{
		Duration: func(_ context.Context, tool models.Tool, d time.Duration) { observed = d },
	}))

	research := models.RetrievalContext{Context: "CONTEXT-TEXT", SummaryText: "SUMMARY-TEXT"}
	res, err := ex.Execute(context.Background(), models.Step{ID: "s3", Title: "Graphs", Tool: models.ToolRAG}, research)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	guide := res.(models.StudyGuideResult)
	if len(guide.KeyTakeaways) != 2 || len(guide.ActionItems) != 1 || guide.ActionItems[0] != "do it" {
		t.Fatalf("unexpected guide: %#v", guide)
	}
	prompt := gen.Calls[0].Prompt
	if !strings.Contains(prompt, "CONTEXT-TEXT") || !strings.Contains(prompt, "SUMMARY-TEXT") {
		t.Fatalf("research not forwarded: %q", prompt)
	}
	if observed < 0 {
		t.Fatalf("duration metric not reported")
	}
}

func TestExecuteDefaultsToGuidance(t *testing.T) {
	gen := llmtest.New("Do the thing.\nChecklist: verify outputs\n")
	ex := newExecutor(gen, nil)

	res, err := ex.Execute(context.Background(), models.Step{ID: "s4", Title: "Practice", Tool: models.ToolLLM, ExpectedOutput: "notes"}, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	g := res.(models.GuidanceResult)
	if len(g.CompletionChecklist) != 1 || g.CompletionChecklist[0] != "Checklist: verify outputs" {
		t.Fatalf("unexpected checklist: %#v", g)
	}
}

func TestExecuteInfrastructureErrorPropagates(t *testing.T) {
	gen := llmtest.New()
	gen.Fallback = llmtest.Reply{Err: llmtest.ErrUnavailable}
	var logged int
	ex := newExecutor(gen, agent.LoggerFunc(func(context.Context, string, string, string) error {
		logged++
		return nil
	}))

	_, err := ex.Execute(context.Background(), models.Step{ID: "s5", Title: "x", Tool: models.ToolFlashcards}, nil)
	var llmErr *llm.Error
	if !errors.As(err, &llmErr) || !errors.Is(err, llmtest.ErrUnavailable) {
		t.Fatalf("expected *llm.Error wrapping unavailable, got %v", err)
	}
	if logged != 0 {
		t.Fatalf("failed executions should not be logged as interactions")
	}
}

func TestExecuteEmptyListsEncodeAsArrays(t *testing.T) {
	gen := llmtest.New("Only prose here.", "Just do it.")
	ex := newExecutor(gen, nil)

	res, err := ex.Execute(context.Background(), models.Step{ID: "s5", Title: "Read", Tool: models.ToolRAG}, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	raw, _ := json.Marshal(res)
	if !strings.Contains(string(raw), `"key_takeaways":[]`) || !strings.Contains(string(raw), `"action_items":[]`) {
		t.Fatalf("empty lists must encode as arrays: %s", raw)
	}

	res, err = ex.Execute(context.Background(), models.Step{ID: "s6", Title: "Practice", Tool: models.ToolLLM}, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	raw, _ = json.Marshal(res)
	if !strings.Contains(string(raw), `"completion_checklist":[]`) {
		t.Fatalf("empty checklist must encode as an array: %s", raw)
	}
}
