package models

import (
	"encoding/json"
	"fmt"
)

// Result kinds, used as the "type" discriminator of stored results.
const (
	KindStudyGuide = "study_guide"
	KindFlashcards = "flashcards"
	KindQuiz       = "quiz"
	KindGuidance   = "guidance"
	KindFailure    = "failure"
)

// StepResult is the deliverable produced for a step.
type StepResult interface {
	Kind() string
}

// StudyGuideResult is produced by RAG steps.
type StudyGuideResult struct {
	Content      string   `json:"content"`
	KeyTakeaways []string `json:"key_takeaways"`
	ActionItems  []string `json:"action_items"`
}

func (StudyGuideResult) Kind() string { return KindStudyGuide }

func (r StudyGuideResult) MarshalJSON() ([]byte, error) {
	type alias StudyGuideResult
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{KindStudyGuide, alias(r)})
}

// Flashcard is a single question/answer card.
type Flashcard struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Category string `json:"category"`
}

// FlashcardsResult is produced by FLASHCARDS steps.
type FlashcardsResult struct {
	Flashcards []Flashcard `json:"flashcards"`
	TotalCards int         `json:"total_cards"`
}

func (FlashcardsResult) Kind() string { return KindFlashcards }

func (r FlashcardsResult) MarshalJSON() ([]byte, error) {
	type alias FlashcardsResult
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{KindFlashcards, alias(r)})
}

// QuizQuestion is a multiple-choice question.
type QuizQuestion struct {
	ID            string   `json:"id"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
}

// QuizResult is produced by QUIZ steps.
type QuizResult struct {
	Quiz           []QuizQuestion `json:"quiz"`
	TotalQuestions int            `json:"total_questions"`
}

func (QuizResult) Kind() string { return KindQuiz }

func (r QuizResult) MarshalJSON() ([]byte, error) {
	type alias QuizResult
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{KindQuiz, alias(r)})
}

// GuidanceResult is produced by LLM steps.
type GuidanceResult struct {
	Content             string   `json:"content"`
	CompletionChecklist []string `json:"completion_checklist"`
}

func (GuidanceResult) Kind() string { return KindGuidance }

func (r GuidanceResult) MarshalJSON() ([]byte, error) {
	type alias GuidanceResult
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{KindGuidance, alias(r)})
}

// FailureResult is stored on steps that failed. It has no "type" field.
type FailureResult struct {
	Error string `json:"error"`
}

func (FailureResult) Kind() string { return KindFailure }

// DecodeStepResult restores a stored result. Empty input yields nil.
func DecodeStepResult(raw []byte) (StepResult, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var head struct {
		Type  string  `json:"type"`
		Error *string `json:"error"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("decode step result: %w", err)
	}
	var (
		res StepResult
		err error
	)
	switch head.Type {
	case KindStudyGuide:
		var r StudyGuideResult
		err = json.Unmarshal(raw, &r)
		res = r
	case KindFlashcards:
		var r FlashcardsResult
		err = json.Unmarshal(raw, &r)
		res = r
	case KindQuiz:
		var r QuizResult
		err = json.Unmarshal(raw, &r)
		res = r
	case KindGuidance:
		var r GuidanceResult
		err = json.Unmarshal(raw, &r)
		res = r
	default:
		if head.Error == nil {
			return nil, fmt.Errorf("decode step result: unknown type %q", head.Type)
		}
		res = FailureResult{Error: *head.Error}
	}
	if err != nil {
		return nil, fmt.Errorf("decode step result: %w", err)
	}
	return res, nil
}
