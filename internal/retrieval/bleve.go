package retrieval

import (
	"context"
	"fmt"
	"strconv"

	"github.com/blevesearch/bleve"

	"github.com/mohammad-safakhou/studybuddy/models"
)

type bleveDoc struct {
	Content string `json:"content"`
}

// BleveIndex keeps the corpus in an in-memory bleve index and ranks with
// bleve's tf-idf relevance instead of raw term overlap. Scores are bleve's
// and are not comparable with OverlapIndex scores.
type BleveIndex struct {
	index bleve.Index
	docs  []string
}

func NewBleveIndex(docs []string) (*BleveIndex, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("bleve index: %w", err)
	}
	b := &BleveIndex{index: idx}
	batch := idx.NewBatch()
	for i, d := range docs {
		if err := batch.Index(strconv.Itoa(i), bleveDoc{Content: d}); err != nil {
			return nil, fmt.Errorf("index document %d: %w", i, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		return nil, fmt.Errorf("index batch: %w", err)
	}
	b.docs = append(b.docs, docs...)
	return b, nil
}

func (b *BleveIndex) Search(ctx context.Context, query string, topK int) ([]models.Snippet, error) {
	if len(b.docs) == 0 {
		return emptyCorpus(), nil
	}
	if topK <= 0 {
		topK = len(b.docs)
	}
	q := bleve.NewMatchQuery(query)
	q.SetField("content")
	req := bleve.NewSearchRequestOptions(q, topK, 0, false)
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve search: %w", err)
	}

	out := make([]models.Snippet, 0, len(res.Hits))
	for _, hit := range res.Hits {
		i, err := strconv.Atoi(hit.ID)
		if err != nil || i < 0 || i >= len(b.docs) || hit.Score <= 0 {
			continue
		}
		out = append(out, models.Snippet{Content: b.docs[i], Score: hit.Score})
	}
	return out, nil
}

// Close releases the index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
