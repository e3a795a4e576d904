package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/mohammad-safakhou/studybuddy/internal/agent"
	"github.com/mohammad-safakhou/studybuddy/internal/llm"
	"github.com/mohammad-safakhou/studybuddy/models"
)

// Executor turns a step and its research context into a deliverable.
type Executor struct {
	gen     llm.TextGenerator
	sink    agent.InteractionLogger
	metrics Metrics
	logger  *log.Logger
}

// Metrics aggregates optional telemetry callbacks.
type Metrics struct {
	Duration func(ctx context.Context, tool models.Tool, d time.Duration)
}

// Option configures executor behaviour.
type Option func(*Executor)

// WithMetrics sets executor metrics callbacks.
func WithMetrics(m Metrics) Option {
	return func(ex *Executor) { ex.metrics = m }
}

func New(gen llm.TextGenerator, sink agent.InteractionLogger, opts ...Option) *Executor {
	if sink == nil {
		sink = agent.Discard
	}
	ex := &Executor{gen: gen, sink: sink, logger: log.New(log.Writer(), "[EXECUTOR] ", log.LstdFlags)}
	for _, opt := range opts {
		opt(ex)
	}
	return ex
}

// Execute dispatches on the step's tool. research may be nil. Unusable
// model output is replaced by a fallback deliverable; only infrastructure
// failures are returned.
func (ex *Executor) Execute(ctx context.Context, step models.Step, research models.ResearchContext) (models.StepResult, error) {
	ctx, span := otel.Tracer("studybuddy/executor").Start(ctx, "executor.execute")
	defer span.End()
	span.SetAttributes(attribute.String("step_id", step.ID), attribute.String("tool", string(step.Tool)))

	start := time.Now()
	var (
		res models.StepResult
		err error
	)
	switch step.Tool {
	case models.ToolRAG:
		res, err = ex.studyGuide(ctx, step, research)
	case models.ToolFlashcards:
		res, err = ex.flashcards(ctx, step, research)
	case models.ToolQuiz:
		res, err = ex.quiz(ctx, step, research)
	default:
		res, err = ex.guidance(ctx, step, research)
	}
	if ex.metrics.Duration != nil {
		ex.metrics.Duration(ctx, step.Tool, time.Since(start))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "execute")
		return nil, err
	}
	ex.record(ctx, step, res)
	return res, nil
}

func contextText(research models.ResearchContext) string {
	if research == nil {
		return ""
	}
	return research.ContextText()
}

func summaryText(research models.ResearchContext) string {
	if research == nil {
		return ""
	}
	return research.Summary()
}

func (ex *Executor) studyGuide(ctx context.Context, step models.Step, research models.ResearchContext) (models.StepResult, error) {
	system := `You are a study assistant. Create a comprehensive summary and study guide
based on the research context provided. Make it actionable and well-structured.`
	prompt := fmt.Sprintf(`Create a study guide for this step: %q

Step description: %s

Research context:
%s

Research summary:
%s

Create:
1. A comprehensive summary
2. Key takeaways
3. Action items
4. Additional resources

Format as structured content.`, step.Title, step.Description, contextText(research), summaryText(research))

	text, err := ex.gen.GenerateText(ctx, prompt, system)
	if err != nil {
		return nil, err
	}
	return models.StudyGuideResult{
		Content:      text,
		KeyTakeaways: ExtractTakeaways(text),
		ActionItems:  ExtractActionItems(text),
	}, nil
}

func (ex *Executor) flashcards(ctx context.Context, step models.Step, research models.ResearchContext) (models.StepResult, error) {
	system := `You are a flashcard creation expert. Create educational flashcards
in JSON format with question-answer pairs.`
	prompt := fmt.Sprintf(`Create flashcards for this study step: %q

Step description: %s

Context: %s

Create 5-8 flashcards in this JSON format:
{
  "flashcards": [
    {
      "id": "card_1",
      "question": "Question text",
      "answer": "Answer text",
      "category": "Category name"
    }
  ]
}`, step.Title, step.Description, contextText(research))

	out, err := ex.gen.GenerateStructured(ctx, prompt, system)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Flashcards []models.Flashcard `json:"flashcards"`
	}
	if decodeErr := out.Decode(&doc); decodeErr != nil {
		ex.logger.Printf("flashcards for %s: using fallback: %v", step.ID, decodeErr)
		doc.Flashcards = []models.Flashcard{FallbackFlashcard(step.Title)}
	}
	if doc.Flashcards == nil {
		doc.Flashcards = []models.Flashcard{}
	}
	return models.FlashcardsResult{Flashcards: doc.Flashcards, TotalCards: len(doc.Flashcards)}, nil
}

func (ex *Executor) quiz(ctx context.Context, step models.Step, research models.ResearchContext) (models.StepResult, error) {
	system := `You are a quiz creation expert. Create educational quiz questions
in JSON format with multiple choice options.`
	prompt := fmt.Sprintf(`Create a quiz for this study step: %q

Step description: %s

Context: %s

Create 5-7 quiz questions in this JSON format:
{
  "quiz": [
    {
      "id": "q1",
      "question": "Question text",
      "options": ["A", "B", "C", "D"],
      "correct_answer": "A",
      "explanation": "Why this answer is correct"
    }
  ]
}`, step.Title, step.Description, contextText(research))

	out, err := ex.gen.GenerateStructured(ctx, prompt, system)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Quiz []models.QuizQuestion `json:"quiz"`
	}
	if decodeErr := out.Decode(&doc); decodeErr != nil {
		ex.logger.Printf("quiz for %s: using fallback: %v", step.ID, decodeErr)
		doc.Quiz = []models.QuizQuestion{FallbackQuestion(step.Title)}
	}
	if doc.Quiz == nil {
		doc.Quiz = []models.QuizQuestion{}
	}
	return models.QuizResult{Quiz: doc.Quiz, TotalQuestions: len(doc.Quiz)}, nil
}

func (ex *Executor) guidance(ctx context.Context, step models.Step, research models.ResearchContext) (models.StepResult, error) {
	system := `You are a study assistant. Help the student complete their study step
by providing guidance, examples, and actionable content.`
	prompt := fmt.Sprintf(`Help complete this study step: %q

Step description: %s

Expected output: %s

Context: %s

Provide:
1. Step-by-step guidance
2. Examples or templates
3. Tips for success
4. How to verify completion`, step.Title, step.Description, step.ExpectedOutput, contextText(research))

	text, err := ex.gen.GenerateText(ctx, prompt, system)
	if err != nil {
		return nil, err
	}
	return models.GuidanceResult{Content: text, CompletionChecklist: ExtractChecklist(text)}, nil
}

func (ex *Executor) record(ctx context.Context, step models.Step, res models.StepResult) {
	stepJSON, err := json.Marshal(step)
	if err != nil {
		ex.logger.Printf("marshal step %s: %v", step.ID, err)
		return
	}
	resJSON, err := json.Marshal(res)
	if err != nil {
		ex.logger.Printf("marshal result %s: %v", step.ID, err)
		return
	}
	agent.Record(ctx, ex.sink, ex.logger, models.AgentExecutor, string(stepJSON), string(resJSON))
}

// FallbackFlashcard is used when the model returns no usable flashcards.
func FallbackFlashcard(title string) models.Flashcard {
	return models.Flashcard{
		ID:       "card_1",
		Question: fmt.Sprintf("What is the main concept in %s?", title),
		Answer:   "Main concept explanation",
		Category: "General",
	}
}

// FallbackQuestion is used when the model returns no usable quiz.
func FallbackQuestion(title string) models.QuizQuestion {
	return models.QuizQuestion{
		ID:            "q1",
		Question:      fmt.Sprintf("Which of the following is most important for %s?", title),
		Options:       []string{"Option A", "Option B", "Option C", "Option D"},
		CorrectAnswer: "Option A",
		Explanation:   "Explanation for the correct answer",
	}
}
