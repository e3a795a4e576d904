// Package agent holds the pieces shared by the planner, researcher and executor.
package agent

import (
	"context"
	"errors"
	"log"
)

// InteractionLogger records one prompt/response exchange of an agent.
type InteractionLogger interface {
	LogInteraction(ctx context.Context, agent, prompt, response string) error
}

// LoggerFunc adapts a function to InteractionLogger.
type LoggerFunc func(ctx context.Context, agent, prompt, response string) error

func (f LoggerFunc) LogInteraction(ctx context.Context, agent, prompt, response string) error {
	return f(ctx, agent, prompt, response)
}

// Discard drops every interaction.
var Discard InteractionLogger = LoggerFunc(func(context.Context, string, string, string) error { return nil })

// Fanout writes each interaction to every logger and joins their errors.
type Fanout []InteractionLogger

func (f Fanout) LogInteraction(ctx context.Context, agent, prompt, response string) error {
	var errs []error
	for _, l := range f {
		if l == nil {
			continue
		}
		if err := l.LogInteraction(ctx, agent, prompt, response); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Record logs the interaction and reports failures on logger without
// returning them; a lost log line never fails the agent's work.
func Record(ctx context.Context, sink InteractionLogger, logger *log.Logger, agent, prompt, response string) {
	if sink == nil {
		return
	}
	if err := sink.LogInteraction(ctx, agent, prompt, response); err != nil && logger != nil {
		logger.Printf("log interaction (%s): %v", agent, err)
	}
}
