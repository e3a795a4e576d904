package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/mohammad-safakhou/studybuddy/config"
)

const (
	// DefaultJSONSystemPrompt is used by GenerateStructured when the caller passes none.
	DefaultJSONSystemPrompt = "You are a helpful AI assistant. Always respond with valid JSON format."

	structuredAttempts = 3
	failedJSONReason   = "Failed to generate valid JSON"
)

// TextGenerator is the contract the agents depend on.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt, system string) (string, error)
	GenerateStructured(ctx context.Context, prompt, system string) (Structured, error)
}

// Generator applies timeouts, throttling and JSON coercion on top of a Provider.
type Generator struct {
	provider Provider
	timeout  time.Duration
	limiter  *rate.Limiter
	logger   *log.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithTimeout bounds every provider call.
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithRateLimiter throttles provider calls.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(g *Generator) { g.limiter = l }
}

// WithLogger overrides the default logger.
func WithLogger(l *log.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

func NewGenerator(p Provider, opts ...Option) *Generator {
	g := &Generator{
		provider: p,
		timeout:  60 * time.Second,
		logger:   log.New(log.Writer(), "[LLM] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewGeneratorFromConfig wires provider, timeout and rate limit from cfg.
func NewGeneratorFromConfig(cfg config.LLMConfig) (*Generator, error) {
	p, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	opts := []Option{WithTimeout(cfg.Timeout)}
	if cfg.RequestsPerSec > 0 {
		opts = append(opts, WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst)))
	}
	return NewGenerator(p, opts...), nil
}

// GenerateText returns the model's free-text answer. Failures are *Error.
func (g *Generator) GenerateText(ctx context.Context, prompt, system string) (string, error) {
	ctx, span := otel.Tracer("studybuddy/llm").Start(ctx, "llm.generate_text")
	defer span.End()
	span.SetAttributes(attribute.Int("llm.prompt_chars", len(prompt)))

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "rate limit wait")
			return "", &Error{Op: "rate_limit", Err: err}
		}
	}

	start := time.Now()
	text, err := g.provider.Complete(ctx, system, prompt)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		g.logger.Printf("generate failed after %s: %v", time.Since(start), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate")
		return "", &Error{Op: "generate", Err: err}
	}
	span.SetAttributes(attribute.Int("llm.response_chars", len(text)))
	return text, nil
}

// GenerateStructured coerces the model's answer into JSON. It makes up to
// three attempts, strips Markdown code fences, then tries one brace repair
// on the last answer. When everything fails it returns the sentinel
// {"error": ...} with a nil error. Only infrastructure failures are returned
// as errors.
func (g *Generator) GenerateStructured(ctx context.Context, prompt, system string) (Structured, error) {
	if system == "" {
		system = DefaultJSONSystemPrompt
	}
	var last string
	for attempt := 0; attempt < structuredAttempts; attempt++ {
		text, err := g.GenerateText(ctx, prompt, system)
		if err != nil {
			return Structured{}, err
		}
		last = StripCodeFence(text)
		if s, ok := parseStructured(last); ok {
			return s, nil
		}
		g.logger.Printf("structured attempt %d: response is not valid JSON", attempt+1)
	}
	if s, ok := parseStructured(RepairJSON(last)); ok {
		return s, nil
	}
	return Failure(failedJSONReason), nil
}

// StripCodeFence removes a Markdown ```json or ``` wrapper.
func StripCodeFence(text string) string {
	t := strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(t, "```json"):
		t = strings.ReplaceAll(t, "```json", "")
		t = strings.ReplaceAll(t, "```", "")
	case strings.HasPrefix(t, "```"):
		t = strings.ReplaceAll(t, "```", "")
	}
	return strings.TrimSpace(t)
}

// RepairJSON forces a leading '{' and a trailing '}' onto the trimmed text.
func RepairJSON(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "{") {
		t = "{" + t
	}
	if !strings.HasSuffix(t, "}") {
		t = t + "}"
	}
	return t
}

// Structured is a parsed JSON value or the sentinel failure.
type Structured struct {
	raw    json.RawMessage
	reason string
}

// Failure builds the sentinel value.
func Failure(reason string) Structured {
	if reason == "" {
		reason = failedJSONReason
	}
	return Structured{reason: reason}
}

// Value wraps already-valid JSON.
func Value(raw []byte) Structured {
	s, ok := parseStructured(string(raw))
	if !ok {
		return Failure("")
	}
	return s
}

func parseStructured(text string) (Structured, bool) {
	b := []byte(strings.TrimSpace(text))
	if len(b) == 0 || !json.Valid(b) {
		return Structured{}, false
	}
	// a model answering {"error": ...} is treated like the sentinel
	if b[0] == '{' {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(b, &envelope); err == nil {
			if reason, ok := envelope["error"]; ok {
				var msg string
				if json.Unmarshal(reason, &msg) != nil || msg == "" {
					msg = string(reason)
				}
				return Structured{raw: b, reason: msg}, true
			}
		}
	}
	return Structured{raw: b}, true
}

// Failed reports whether this is an error sentinel.
func (s Structured) Failed() bool { return s.reason != "" }

// Reason is the sentinel's error text.
func (s Structured) Reason() string { return s.reason }

// Raw returns the JSON bytes; the sentinel object for failures.
func (s Structured) Raw() json.RawMessage {
	if s.Failed() && len(s.raw) == 0 {
		b, _ := json.Marshal(map[string]string{"error": s.reason})
		return b
	}
	if len(s.raw) == 0 {
		return json.RawMessage("null")
	}
	return s.raw
}

// IsArray reports whether the value is a JSON array.
func (s Structured) IsArray() bool {
	return !s.Failed() && bytes.HasPrefix(s.raw, []byte("["))
}

// Decode unmarshals the value into v. Decoding a sentinel is an error.
func (s Structured) Decode(v any) error {
	if s.Failed() {
		return fmt.Errorf("structured output unavailable: %s", s.reason)
	}
	return json.Unmarshal(s.raw, v)
}

func (s Structured) MarshalJSON() ([]byte, error) {
	return s.Raw(), nil
}
