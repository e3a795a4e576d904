package streams

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// Client is the subset of the redis client used by this package.
type Client interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XRead(ctx context.Context, a *redis.XReadArgs) *redis.XStreamSliceCmd
}

// PublishOption allows configuring Redis XADD behaviour.
type PublishOption func(*redis.XAddArgs)

// WithMaxLenApprox caps the stream at roughly maxLen entries.
func WithMaxLenApprox(maxLen int64) PublishOption {
	return func(args *redis.XAddArgs) {
		if maxLen > 0 {
			args.MaxLen = maxLen
			args.Approx = true
		}
	}
}

// Publisher appends validated envelopes to a single Redis stream.
type Publisher struct {
	client   Client
	registry *SchemaRegistry
	stream   string
	opts     []PublishOption
}

func NewPublisher(client Client, registry *SchemaRegistry, stream string, opts ...PublishOption) *Publisher {
	return &Publisher{client: client, registry: registry, stream: stream, opts: opts}
}

// Publish validates the envelope and appends it to the stream.
func (p *Publisher) Publish(ctx context.Context, envelope Envelope) (string, error) {
	if p.stream == "" {
		return "", fmt.Errorf("stream name is required")
	}
	if envelope.EventID == "" {
		envelope.EventID = uuid.NewString()
	}
	if envelope.OccurredAt.IsZero() {
		envelope.OccurredAt = time.Now().UTC()
	}
	if err := envelope.ValidateBasic(); err != nil {
		return "", err
	}
	if p.registry != nil {
		if err := p.registry.Validate(envelope.EventType, envelope.PayloadVersion, envelope.Data); err != nil {
			return "", err
		}
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return "", err
	}
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{"envelope": raw},
	}
	for _, opt := range p.opts {
		opt(args)
	}
	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}
	recordPublished(ctx, envelope.EventType)
	return id, nil
}

func (p *Publisher) publishV1(ctx context.Context, eventType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = p.Publish(ctx, Envelope{EventType: eventType, PayloadVersion: payloadV1, Data: data})
	return err
}

// PublishInteraction emits an interaction.logged event.
func (p *Publisher) PublishInteraction(ctx context.Context, agent, prompt, response string) error {
	return p.publishV1(ctx, EventInteractionLogged, InteractionEvent{Agent: agent, Prompt: prompt, Response: response})
}

// PublishStepTransition emits a step.transitioned event.
func (p *Publisher) PublishStepTransition(ctx context.Context, stepID string, planID int64, status string) error {
	return p.publishV1(ctx, EventStepTransitioned, StepEvent{StepID: stepID, PlanID: planID, Status: status})
}

var (
	publishMetricsOnce sync.Once
	eventsPublished    otelmetric.Int64Counter
)

func recordPublished(ctx context.Context, eventType string) {
	publishMetricsOnce.Do(func() {
		var err error
		eventsPublished, err = otel.Meter("studybuddy/queue/streams").Int64Counter(
			"stream_events_published_total",
			otelmetric.WithDescription("Events appended to the interaction stream"),
		)
		if err != nil {
			log.Printf("queue streams metrics init: stream_events_published_total: %v", err)
		}
	})
	if eventsPublished != nil {
		eventsPublished.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("event_type", eventType)))
	}
}
