package researcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mohammad-safakhou/studybuddy/internal/agent"
	"github.com/mohammad-safakhou/studybuddy/internal/executor"
	"github.com/mohammad-safakhou/studybuddy/internal/llm"
	"github.com/mohammad-safakhou/studybuddy/internal/retrieval"
	"github.com/mohammad-safakhou/studybuddy/models"
)

const (
	maxQueries  = 3
	maxSnippets = 5
)

const querySystemPrompt = `You are a research assistant. Generate 2-3 specific search queries
to find relevant information for the given study step. Return as JSON array of strings.`

const guidanceSystemPrompt = `You are a study research assistant. Provide helpful context and guidance
for the given study step. Include key concepts, tips, and resources.`

// Researcher gathers context for a step before it is executed.
type Researcher struct {
	gen           llm.TextGenerator
	search        retrieval.Searcher
	sink          agent.InteractionLogger
	topK          int
	searchTimeout time.Duration
	logger        *log.Logger
}

// Option configures a Researcher.
type Option func(*Researcher)

// WithTopK sets how many snippets each query retrieves.
func WithTopK(k int) Option {
	return func(r *Researcher) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithSearchTimeout bounds every retrieval call.
func WithSearchTimeout(d time.Duration) Option {
	return func(r *Researcher) {
		if d > 0 {
			r.searchTimeout = d
		}
	}
}

func New(gen llm.TextGenerator, search retrieval.Searcher, sink agent.InteractionLogger, opts ...Option) *Researcher {
	if sink == nil {
		sink = agent.Discard
	}
	r := &Researcher{
		gen:           gen,
		search:        search,
		sink:          sink,
		topK:          3,
		searchTimeout: 10 * time.Second,
		logger:        log.New(log.Writer(), "[RESEARCHER] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Research builds the context for a step. RAG steps search the corpus;
// every other tool gets free-text guidance from the model.
func (r *Researcher) Research(ctx context.Context, description string, tool models.Tool) (models.ResearchContext, error) {
	ctx, span := otel.Tracer("studybuddy/researcher").Start(ctx, "researcher.research")
	defer span.End()
	span.SetAttributes(attribute.String("tool", string(tool)))

	if tool == models.ToolRAG {
		return r.researchWithRetrieval(ctx, description)
	}
	return r.researchWithGuidance(ctx, description)
}

func (r *Researcher) researchWithRetrieval(ctx context.Context, description string) (models.ResearchContext, error) {
	prompt := fmt.Sprintf(`Generate search queries for this study step: %q

Return as JSON array: ["query1", "query2", "query3"]`, description)
	out, err := r.gen.GenerateStructured(ctx, prompt, querySystemPrompt)
	if err != nil {
		return nil, err
	}
	queries := ParseQueries(out, description)

	hits := []models.Snippet{}
	for i, q := range queries {
		if i == maxQueries {
			break
		}
		found, err := r.searchOne(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("search %q: %w", q, err)
		}
		hits = append(hits, found...)
	}
	if len(hits) > maxSnippets {
		hits = hits[:maxSnippets]
	}
	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		parts = append(parts, h.Content)
	}
	contextText := strings.Join(parts, "\n\n")

	summaryPrompt := fmt.Sprintf(`Summarize the following research findings for this study step: %q

Research findings:
%s

Provide a concise summary focusing on key concepts and actionable insights.`, description, contextText)
	summary, err := r.gen.GenerateText(ctx, summaryPrompt, "")
	if err != nil {
		return nil, err
	}

	res := models.RetrievalContext{
		SearchQueries: queries,
		SearchResults: hits,
		SummaryText:   summary,
		Context:       contextText,
	}
	r.record(ctx, description, res)
	return res, nil
}

func (r *Researcher) searchOne(ctx context.Context, query string) ([]models.Snippet, error) {
	ctx, cancel := context.WithTimeout(ctx, r.searchTimeout)
	defer cancel()
	return r.search.Search(ctx, query, r.topK)
}

func (r *Researcher) researchWithGuidance(ctx context.Context, description string) (models.ResearchContext, error) {
	prompt := fmt.Sprintf(`Provide research context and guidance for this study step: %q

Include:
- Key concepts to focus on
- Study tips and strategies
- Recommended resources
- Common pitfalls to avoid`, description)
	guidance, err := r.gen.GenerateText(ctx, prompt, guidanceSystemPrompt)
	if err != nil {
		return nil, err
	}
	res := models.GuidanceContext{
		Guidance:    guidance,
		KeyConcepts: executor.ExtractKeyConcepts(guidance),
	}
	r.record(ctx, description, res)
	return res, nil
}

func (r *Researcher) record(ctx context.Context, description string, res models.ResearchContext) {
	raw, err := json.Marshal(res)
	if err != nil {
		r.logger.Printf("marshal research context: %v", err)
		return
	}
	agent.Record(ctx, r.sink, r.logger, models.AgentResearcher, description, string(raw))
}

// ParseQueries accepts a JSON array of strings or {"queries": [...]}.
// Anything else, including an empty list, yields [fallback].
func ParseQueries(out llm.Structured, fallback string) []string {
	var queries []string
	if out.IsArray() {
		_ = out.Decode(&queries)
	} else if !out.Failed() {
		var wrapped struct {
			Queries []string `json:"queries"`
		}
		if err := out.Decode(&wrapped); err == nil {
			queries = wrapped.Queries
		}
	}
	cleaned := queries[:0]
	for _, q := range queries {
		if q = strings.TrimSpace(q); q != "" {
			cleaned = append(cleaned, q)
		}
	}
	if len(cleaned) == 0 {
		return []string{fallback}
	}
	return cleaned
}
