// Package ingest turns local files and web pages into corpus chunks.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/mohammad-safakhou/studybuddy/config"
	"github.com/mohammad-safakhou/studybuddy/internal/helpers"
	"github.com/mohammad-safakhou/studybuddy/internal/retrieval"
)

// ChunkText splits text into windows of size runes, each starting
// size-overlap runes after the previous one. Chunks are trimmed and empty
// chunks dropped.
func ChunkText(text string, size, overlap int) ([]string, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be > 0")
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be within [0, %d)", size)
	}
	runes := []rune(text)
	var chunks []string
	for start := 0; start < len(runes); start += size - overlap {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		if c := strings.TrimSpace(string(runes[start:end])); c != "" {
			chunks = append(chunks, c)
		}
	}
	return chunks, nil
}

// Ingestor collects documents for the retrieval corpus.
type Ingestor struct {
	chunkSize int
	overlap   int
	client    *http.Client
	logger    *log.Logger
}

func New(cfg config.IngestConfig) *Ingestor {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Ingestor{
		chunkSize: cfg.ChunkSize,
		overlap:   cfg.ChunkOverlap,
		client:    &http.Client{Timeout: timeout},
		logger:    log.New(log.Writer(), "[INGEST] ", log.LstdFlags),
	}
}

// IngestDir builds a corpus from the sample documents followed by every
// supported file directly inside dir. A missing dir is created.
func (in *Ingestor) IngestDir(ctx context.Context, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create documents dir: %w", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read documents dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	docs := retrieval.DefaultDocuments()
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		chunks, err := in.ingestFile(path)
		if err != nil {
			in.logger.Printf("skip %s: %v", e.Name(), err)
			continue
		}
		if len(chunks) > 0 {
			in.logger.Printf("extracted %d chunks from %s", len(chunks), e.Name())
		}
		docs = append(docs, chunks...)
	}
	return helpers.Dedupe(docs), nil
}

func (in *Ingestor) ingestFile(path string) ([]string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".txt", ".md":
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return ChunkText(string(b), in.chunkSize, in.overlap)
	case ".html", ".htm":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		abs, _ := filepath.Abs(path)
		text, err := in.extractArticle(f, &url.URL{Scheme: "file", Path: abs})
		if err != nil {
			return nil, err
		}
		return ChunkText(text, in.chunkSize, in.overlap)
	case ".json", ".yaml", ".yml":
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return retrieval.DecodeCorpus(path, b)
	default:
		return nil, nil
	}
}

// IngestURL fetches a web page and returns its readable text as chunks.
func (in *Ingestor) IngestURL(ctx context.Context, rawURL string) ([]string, error) {
	canonical, err := helpers.CanonicalURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	u, err := url.Parse(canonical)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	rawURL = canonical
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := in.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}
	text, err := in.extractArticle(resp.Body, u)
	if err != nil {
		return nil, err
	}
	chunks, err := ChunkText(text, in.chunkSize, in.overlap)
	if err != nil {
		return nil, err
	}
	return helpers.Dedupe(chunks), nil
}

func (in *Ingestor) extractArticle(r io.Reader, pageURL *url.URL) (string, error) {
	article, err := readability.FromReader(r, pageURL)
	if err != nil {
		return "", fmt.Errorf("parse article: %w", err)
	}
	text := helpers.PlainText(article.TextContent)
	if title := strings.TrimSpace(article.Title); title != "" {
		text = title + "\n\n" + text
	}
	return strings.TrimSpace(text), nil
}
