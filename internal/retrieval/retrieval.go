// Package retrieval implements the lexical search helper used by the
// researcher. Scoring is term overlap, never embeddings.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mohammad-safakhou/studybuddy/config"
	"github.com/mohammad-safakhou/studybuddy/models"
)

// EmptyCorpusMessage is returned as the only snippet when nothing is indexed.
const EmptyCorpusMessage = "No documents available for search."

// Searcher ranks documents for a query.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]models.Snippet, error)
}

// Score computes |query words ∩ doc words| / |query words|, plus 0.5 when
// the whole query occurs in the document. Comparison is case-insensitive
// and words are whitespace separated.
func Score(query, doc string) float64 {
	q := strings.ToLower(query)
	d := strings.ToLower(doc)

	qWords := wordSet(q)
	var score float64
	if len(qWords) > 0 {
		dWords := wordSet(d)
		common := 0
		for w := range qWords {
			if _, ok := dWords[w]; ok {
				common++
			}
		}
		score = float64(common) / float64(len(qWords))
	}
	if strings.Contains(d, q) {
		score += 0.5
	}
	return score
}

func wordSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// rank scores docs, drops non-positive scores and keeps the best topK in
// descending order. Ties keep corpus order.
func rank(query string, docs []string, topK int) []models.Snippet {
	out := make([]models.Snippet, 0, len(docs))
	for _, doc := range docs {
		if s := Score(query, doc); s > 0 {
			out = append(out, models.Snippet{Content: doc, Score: s})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

func emptyCorpus() []models.Snippet {
	return []models.Snippet{{Content: EmptyCorpusMessage, Score: 0}}
}

// New builds the engine selected by cfg over docs.
func New(cfg config.RetrievalConfig, docs []string) (Searcher, error) {
	switch cfg.Engine {
	case "", "overlap":
		return NewOverlapIndex(docs), nil
	case "bleve":
		return NewBleveIndex(docs)
	default:
		return nil, fmt.Errorf("unknown retrieval engine: %s", cfg.Engine)
	}
}

// OverlapIndex scans every document for each query.
type OverlapIndex struct {
	docs []string
}

func NewOverlapIndex(docs []string) *OverlapIndex {
	return &OverlapIndex{docs: append([]string(nil), docs...)}
}

func (o *OverlapIndex) Search(ctx context.Context, query string, topK int) ([]models.Snippet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(o.docs) == 0 {
		return emptyCorpus(), nil
	}
	return rank(query, o.docs, topK), nil
}
