// Package llmtest provides deterministic providers for tests.
package llmtest

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// Call records one provider invocation.
type Call struct {
	System string
	Prompt string
}

// Reply is a canned provider answer.
type Reply struct {
	Text string
	Err  error
}

// Scripted replays queued replies in order. When the queue is empty it
// answers with Fallback, or with Route when a rule matches the prompt.
type Scripted struct {
	mu       sync.Mutex
	queue    []Reply
	routes   []route
	Fallback Reply
	Calls    []Call
}

type route struct {
	contains string
	reply    Reply
}

func New(replies ...string) *Scripted {
	s := &Scripted{}
	for _, r := range replies {
		s.queue = append(s.queue, Reply{Text: r})
	}
	return s
}

// Push appends a reply to the queue.
func (s *Scripted) Push(r Reply) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, r)
	return s
}

// When answers prompts (or system prompts) containing substr with r,
// once the queue is drained.
func (s *Scripted) When(substr string, r Reply) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes = append(s.routes, route{contains: substr, reply: r})
	return s
}

func (s *Scripted) Complete(ctx context.Context, system, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, Call{System: system, Prompt: prompt})
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(s.queue) > 0 {
		r := s.queue[0]
		s.queue = s.queue[1:]
		return r.Text, r.Err
	}
	for _, rt := range s.routes {
		if strings.Contains(prompt, rt.contains) || strings.Contains(system, rt.contains) {
			return rt.reply.Text, rt.reply.Err
		}
	}
	return s.Fallback.Text, s.Fallback.Err
}

// CallCount returns the number of Complete invocations.
func (s *Scripted) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Calls)
}

// ErrUnavailable simulates a transport failure.
var ErrUnavailable = errors.New("upstream unavailable")

// Blocking never answers until the context ends.
type Blocking struct{}

func (Blocking) Complete(ctx context.Context, system, prompt string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

// Func adapts a function to a provider, for replies that depend on the prompt.
type Func func(ctx context.Context, system, prompt string) (string, error)

func (f Func) Complete(ctx context.Context, system, prompt string) (string, error) {
	return f(ctx, system, prompt)
}

// PlanToken returns the step id scope token a planner system prompt asks for.
func PlanToken(system string) string {
	const marker = "use format: "
	i := strings.Index(system, marker)
	if i < 0 {
		return ""
	}
	rest := system[i+len(marker):]
	if j := strings.Index(rest, "_step_"); j > 0 {
		return rest[:j]
	}
	return ""
}
