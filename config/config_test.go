package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{}`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":8000" || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("unexpected defaults: %+v %+v", cfg.Server, cfg.Storage)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.Timeout != 60*time.Second {
		t.Fatalf("unexpected llm defaults: %+v", cfg.LLM)
	}
	if cfg.Retrieval.Engine != "overlap" || cfg.Retrieval.TopK != 3 {
		t.Fatalf("unexpected retrieval defaults: %+v", cfg.Retrieval)
	}
	if cfg.Ingest.ChunkSize != 1000 || cfg.Ingest.ChunkOverlap != 200 {
		t.Fatalf("unexpected ingest defaults: %+v", cfg.Ingest)
	}
	if cfg.Storage.Redis.Enabled() {
		t.Fatalf("redis must be disabled without a host")
	}
}

func TestLoadReadsFileAndEnv(t *testing.T) {
	t.Setenv("STUDYBUDDY_RETRIEVAL_TOP_K", "5")
	path := writeConfig(t, `{
  "llm": {"provider": "LangChain", "model": "gpt-4o", "base_url": "http://llm.local/v1/"},
  "storage": {"driver": "postgres", "postgres": {"host": "db", "dbname": "study", "user": "u", "password": "p"}},
  "retrieval": {"engine": "bleve"}
}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLM.Provider != "langchain" || cfg.LLM.BaseURL != "http://llm.local/v1" {
		t.Fatalf("llm not normalised: %+v", cfg.LLM)
	}
	if cfg.Retrieval.TopK != 5 || cfg.Retrieval.Engine != "bleve" {
		t.Fatalf("unexpected retrieval: %+v", cfg.Retrieval)
	}
	want := "postgres://u:p@db:5432/study?sslmode=disable"
	if got := cfg.Storage.DSN(); got != want {
		t.Fatalf("dsn = %q, want %q", got, want)
	}
}

func TestValidateRejectsBadSections(t *testing.T) {
	cases := map[string]string{
		"provider":      `{"llm": {"provider": "cohere"}}`,
		"driver":        `{"storage": {"driver": "mysql"}}`,
		"postgres host": `{"storage": {"driver": "postgres", "postgres": {"dbname": "x"}}}`,
		"engine":        `{"retrieval": {"engine": "vector"}}`,
		"overlap":       `{"ingest": {"chunk_size": 100, "chunk_overlap": 100}}`,
		"redis stream":  `{"storage": {"redis": {"host": "r", "stream": " "}}}`,
	}
	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadConfigPanicsOnMissingFile(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
}
