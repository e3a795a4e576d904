package llm_test

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/mohammad-safakhou/studybuddy/config"
	"github.com/mohammad-safakhou/studybuddy/internal/llm"
	"github.com/mohammad-safakhou/studybuddy/internal/llm/llmtest"
)

func quietGenerator(p llm.Provider, opts ...llm.Option) *llm.Generator {
	opts = append(opts, llm.WithLogger(log.New(io.Discard, "", 0)))
	return llm.NewGenerator(p, opts...)
}

func TestGenerateStructuredStripsJSONFence(t *testing.T) {
	p := llmtest.New("```json\n{\"a\":1}\n```")
	g := quietGenerator(p)

	out, err := g.GenerateStructured(context.Background(), "prompt", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Failed() {
		t.Fatalf("expected parsed value, got sentinel %q", out.Reason())
	}
	var got map[string]int
	if err := out.Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["a"] != 1 || len(got) != 1 {
		t.Fatalf("unexpected value: %#v", got)
	}
	if p.CallCount() != 1 {
		t.Fatalf("expected a single call, got %d", p.CallCount())
	}
	if p.Calls[0].System != llm.DefaultJSONSystemPrompt {
		t.Fatalf("expected default JSON system prompt, got %q", p.Calls[0].System)
	}
}

func TestGenerateStructuredRetriesThenSucceeds(t *testing.T) {
	p := llmtest.New("not json", "```\n[\"q1\", \"q2\"]\n```")
	g := quietGenerator(p)

	out, err := g.GenerateStructured(context.Background(), "prompt", "system")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.IsArray() {
		t.Fatalf("expected array, got %s", out.Raw())
	}
	if p.CallCount() != 2 {
		t.Fatalf("expected 2 calls, got %d", p.CallCount())
	}
}

func TestGenerateStructuredRepairsBraces(t *testing.T) {
	p := llmtest.New("junk", "junk", `"title": "Plan"`)
	g := quietGenerator(p)

	out, err := g.GenerateStructured(context.Background(), "prompt", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got map[string]string
	if err := out.Decode(&got); err != nil {
		t.Fatalf("decode repaired value: %v", err)
	}
	if got["title"] != "Plan" {
		t.Fatalf("unexpected repaired value: %#v", got)
	}
	if p.CallCount() != 3 {
		t.Fatalf("expected 3 calls, got %d", p.CallCount())
	}
}

func TestGenerateStructuredReturnsSentinel(t *testing.T) {
	p := &llmtest.Scripted{Fallback: llmtest.Reply{Text: "I cannot answer that"}}
	g := quietGenerator(p)

	out, err := g.GenerateStructured(context.Background(), "prompt", "")
	if err != nil {
		t.Fatalf("sentinel must not be an error: %v", err)
	}
	if !out.Failed() {
		t.Fatalf("expected sentinel, got %s", out.Raw())
	}
	if string(out.Raw()) != `{"error":"Failed to generate valid JSON"}` {
		t.Fatalf("unexpected sentinel payload: %s", out.Raw())
	}
	if p.CallCount() != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", p.CallCount())
	}
}

func TestGenerateStructuredPropagatesInfrastructureError(t *testing.T) {
	p := llmtest.New().Push(llmtest.Reply{Err: llmtest.ErrUnavailable})
	g := quietGenerator(p)

	_, err := g.GenerateStructured(context.Background(), "prompt", "")
	if err == nil {
		t.Fatalf("expected error")
	}
	var le *llm.Error
	if !errors.As(err, &le) {
		t.Fatalf("expected *llm.Error, got %T", err)
	}
	if !errors.Is(err, llmtest.ErrUnavailable) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	if p.CallCount() != 1 {
		t.Fatalf("infrastructure errors must not be retried here, got %d calls", p.CallCount())
	}
}

func TestGenerateTextTimesOut(t *testing.T) {
	g := quietGenerator(llmtest.Blocking{}, llm.WithTimeout(20*time.Millisecond))

	_, err := g.GenerateText(context.Background(), "prompt", "")
	var le *llm.Error
	if !errors.As(err, &le) {
		t.Fatalf("expected *llm.Error, got %v", err)
	}
	if !le.Timeout() {
		t.Fatalf("expected timeout, got %v", le)
	}
}

func TestRateLimiterBoundsCalls(t *testing.T) {
	provider := llmtest.New("first", "second")
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	g := quietGenerator(provider, llm.WithTimeout(50*time.Millisecond), llm.WithRateLimiter(limiter))

	if _, err := g.GenerateText(context.Background(), "prompt", ""); err != nil {
		t.Fatalf("first call: %v", err)
	}
	_, err := g.GenerateText(context.Background(), "prompt", "")
	var le *llm.Error
	if !errors.As(err, &le) || le.Op != "rate_limit" {
		t.Fatalf("expected rate_limit error, got %v", err)
	}
	if provider.CallCount() != 1 {
		t.Fatalf("throttled call reached the provider")
	}
}

func TestModelTextContainingErrorIsNotAFailure(t *testing.T) {
	g := quietGenerator(llmtest.New("Error: handling is covered in chapter 3"))

	text, err := g.GenerateText(context.Background(), "prompt", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(text, "Error:") {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestStripCodeFence(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n[1,2]\n```":         `[1,2]`,
		"  {\"a\":1}  ":           `{"a":1}`,
	}
	for in, want := range cases {
		if got := llm.StripCodeFence(in); got != want {
			t.Fatalf("StripCodeFence(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOpenAIProviderRetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token")
		}
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"hello"}}]}`)
	}))
	defer srv.Close()

	p := llm.NewOpenAIProvider(config.LLMConfig{
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		Model:      "test-model",
		MaxRetries: 2,
		Timeout:    time.Second,
	})
	text, err := p.Complete(context.Background(), "system", "prompt")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != "hello" {
		t.Fatalf("unexpected text %q", text)
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Fatalf("expected 2 requests, got %d", hits)
	}
}

func TestOpenAIProviderDoesNotRetryClientErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := llm.NewOpenAIProvider(config.LLMConfig{APIKey: "k", BaseURL: srv.URL, MaxRetries: 3, Timeout: time.Second})
	_, err := p.Complete(context.Background(), "", "prompt")
	var se *llm.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 status error, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected 1 request, got %d", hits)
	}
}
