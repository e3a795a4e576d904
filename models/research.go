package models

import "encoding/json"

// Snippet is a retrieval hit.
type Snippet struct {
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// ResearchContext is the material handed from the researcher to the executor.
type ResearchContext interface {
	// ContextText is the raw material gathered for the step.
	ContextText() string
	// Summary is a condensed form of ContextText, empty when not produced.
	Summary() string
}

// RetrievalContext is produced for RAG steps.
type RetrievalContext struct {
	SearchQueries []string  `json:"search_queries"`
	SearchResults []Snippet `json:"search_results"`
	SummaryText   string    `json:"summary"`
	Context       string    `json:"context"`
}

func (c RetrievalContext) ContextText() string { return c.Context }
func (c RetrievalContext) Summary() string     { return c.SummaryText }

// GuidanceContext is produced for every non-RAG step that is researched.
type GuidanceContext struct {
	Guidance    string   `json:"guidance"`
	KeyConcepts []string `json:"key_concepts"`
}

func (c GuidanceContext) ContextText() string { return c.Guidance }
func (c GuidanceContext) Summary() string     { return "" }

func (c GuidanceContext) MarshalJSON() ([]byte, error) {
	type alias GuidanceContext
	return json.Marshal(struct {
		ResearchType string `json:"research_type"`
		alias
	}{"llm_guidance", alias(c)})
}
