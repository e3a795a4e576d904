package ingest

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/studybuddy/config"
	"github.com/mohammad-safakhou/studybuddy/internal/retrieval"
)

func newTestIngestor(size, overlap int) *Ingestor {
	in := New(config.IngestConfig{ChunkSize: size, ChunkOverlap: overlap})
	in.logger = log.New(io.Discard, "", 0)
	return in
}

func TestChunkTextOverlaps(t *testing.T) {
	chunks, err := ChunkText("abcdefghij", 4, 2)
	if err != nil {
		t.Fatalf("chunk: %v", err)
	}
	want := []string{"abcd", "cdef", "efgh", "ghij", "ij"}
	if strings.Join(chunks, ",") != strings.Join(want, ",") {
		t.Fatalf("got %v, want %v", chunks, want)
	}
}

func TestChunkTextRejectsBadOverlap(t *testing.T) {
	if _, err := ChunkText("abc", 2, 2); err == nil {
		t.Fatalf("expected error when overlap >= size")
	}
	chunks, err := ChunkText("", 10, 2)
	if err != nil || len(chunks) != 0 {
		t.Fatalf("expected no chunks for empty text, got %v %v", chunks, err)
	}
}

func TestIngestDirCollectsSupportedFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("Graphs have vertices and edges."), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "extra.yaml"), []byte("- Recursion calls itself.\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "image.png"), []byte{0x89, 0x50}, 0o644); err != nil {
		t.Fatal(err)
	}

	docs, err := newTestIngestor(1000, 200).IngestDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	base := len(retrieval.DefaultDocuments())
	if len(docs) != base+2 {
		t.Fatalf("expected %d docs, got %d: %v", base+2, len(docs), docs[base:])
	}
	if docs[base] != "Recursion calls itself." || docs[base+1] != "Graphs have vertices and edges." {
		t.Fatalf("unexpected ingested docs: %v", docs[base:])
	}
}

func TestIngestURLExtractsReadableText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, `<html><head><title>Sorting</title><script>alert(1)</script></head>
<body><article><h1>Sorting</h1><p>Merge sort divides the input in halves and merges the sorted halves back together.
It runs in n log n time and is stable, which makes it a common choice for linked lists.</p>
<p>Quick sort partitions around a pivot and sorts each partition recursively.</p></article></body></html>`)
	}))
	defer srv.Close()

	chunks, err := newTestIngestor(1000, 200).IngestURL(context.Background(), srv.URL+"/sorting")
	if err != nil {
		t.Fatalf("ingest url: %v", err)
	}
	joined := strings.Join(chunks, " ")
	if !strings.Contains(joined, "Merge sort") {
		t.Fatalf("expected article text, got %q", joined)
	}
	if strings.Contains(joined, "<p>") || strings.Contains(joined, "alert(1)") {
		t.Fatalf("markup leaked into chunks: %q", joined)
	}
}

func TestIngestDirDropsDuplicateDocuments(t *testing.T) {
	dir := t.TempDir()
	dup := strings.ToUpper(retrieval.DefaultDocuments()[0])
	if err := os.WriteFile(filepath.Join(dir, "dup.txt"), []byte("  "+dup+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	docs, err := newTestIngestor(1000, 200).IngestDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(docs) != len(retrieval.DefaultDocuments()) {
		t.Fatalf("duplicate document should be dropped, got %d docs", len(docs))
	}
}
