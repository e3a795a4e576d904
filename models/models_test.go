package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseToolDefaultsToLLM(t *testing.T) {
	cases := map[string]Tool{
		"rag":        ToolRAG,
		" Quiz ":     ToolQuiz,
		"FLASHCARDS": ToolFlashcards,
		"LLM":        ToolLLM,
		"":           ToolLLM,
		"web_search": ToolLLM,
	}
	for in, want := range cases {
		if got := ParseTool(in); got != want {
			t.Fatalf("ParseTool(%q) = %s, want %s", in, got, want)
		}
	}
	if ToolLLM.NeedsResearch() || !ToolRAG.NeedsResearch() || !ToolQuiz.NeedsResearch() {
		t.Fatalf("unexpected research requirements")
	}
	if Tool("WEB").Valid() {
		t.Fatalf("unknown tool should be invalid")
	}
}

func TestStepStatusTerminal(t *testing.T) {
	if StepPending.IsTerminal() || StepRunning.IsTerminal() {
		t.Fatalf("pending and running are not terminal")
	}
	if !StepCompleted.IsTerminal() || !StepFailed.IsTerminal() {
		t.Fatalf("completed and failed are terminal")
	}
}

func TestFindStep(t *testing.T) {
	p := PlanPayload{Steps: []Step{{ID: "a", Title: "A"}, {ID: "b", Title: "B"}}}
	if s, ok := p.FindStep("b"); !ok || s.Title != "B" {
		t.Fatalf("expected step b, got %+v %v", s, ok)
	}
	if _, ok := p.FindStep("c"); ok {
		t.Fatalf("did not expect step c")
	}
}

func TestResultsCarryTypeTag(t *testing.T) {
	results := []StepResult{
		StudyGuideResult{Content: "c", KeyTakeaways: []string{"k"}, ActionItems: []string{"a"}},
		FlashcardsResult{Flashcards: []Flashcard{{ID: "card_1", Question: "q", Answer: "a", Category: "x"}}, TotalCards: 1},
		QuizResult{Quiz: []QuizQuestion{{ID: "q_1", Question: "q", Options: []string{"A) a"}, CorrectAnswer: "A"}}, TotalQuestions: 1},
		GuidanceResult{Content: "g", CompletionChecklist: []string{"done"}},
	}
	for _, r := range results {
		raw, err := json.Marshal(r)
		if err != nil {
			t.Fatalf("marshal %s: %v", r.Kind(), err)
		}
		if !strings.Contains(string(raw), `"type":"`+r.Kind()+`"`) {
			t.Fatalf("missing type tag in %s", raw)
		}
		back, err := DecodeStepResult(raw)
		if err != nil {
			t.Fatalf("decode %s: %v", r.Kind(), err)
		}
		if back.Kind() != r.Kind() {
			t.Fatalf("decoded kind %s, want %s", back.Kind(), r.Kind())
		}
	}
}

func TestDecodeStepResultFailureAndEmpty(t *testing.T) {
	res, err := DecodeStepResult([]byte(`{"error":"llm down"}`))
	if err != nil {
		t.Fatalf("decode failure: %v", err)
	}
	f, ok := res.(FailureResult)
	if !ok || f.Error != "llm down" {
		t.Fatalf("unexpected failure result: %#v", res)
	}
	raw, _ := json.Marshal(f)
	if strings.Contains(string(raw), "type") {
		t.Fatalf("failure result must not carry a type tag: %s", raw)
	}
	if res, err := DecodeStepResult(nil); res != nil || err != nil {
		t.Fatalf("empty input should decode to nil, got %v %v", res, err)
	}
	if _, err := DecodeStepResult([]byte(`{"type":"essay"}`)); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}

func TestGuidanceContextMarshalsResearchType(t *testing.T) {
	raw, err := json.Marshal(GuidanceContext{Guidance: "g", KeyConcepts: []string{"k"}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"research_type":"llm_guidance"`) {
		t.Fatalf("unexpected guidance context json: %s", raw)
	}
	var rc ResearchContext = RetrievalContext{Context: "ctx", SummaryText: "sum"}
	if rc.ContextText() != "ctx" || rc.Summary() != "sum" {
		t.Fatalf("unexpected retrieval context accessors")
	}
}
