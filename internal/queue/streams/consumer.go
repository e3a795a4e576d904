package streams

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Message is a decoded stream entry.
type Message struct {
	ID       string
	Envelope Envelope
}

// Tailer follows the stream from a cursor without a consumer group.
type Tailer struct {
	client   Client
	registry *SchemaRegistry
	stream   string
	cursor   string
	block    time.Duration
	count    int64
}

// NewTailer starts after from; "$" follows only new entries and "0" replays the stream.
func NewTailer(client Client, registry *SchemaRegistry, stream, from string) *Tailer {
	if from == "" {
		from = "$"
	}
	return &Tailer{client: client, registry: registry, stream: stream, cursor: from, block: 5 * time.Second, count: 100}
}

// Next blocks until entries arrive or the block window lapses. Entries that
// fail to decode or validate are skipped but still advance the cursor.
func (t *Tailer) Next(ctx context.Context) ([]Message, error) {
	if t.stream == "" {
		return nil, fmt.Errorf("stream name is required")
	}
	res, err := t.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{t.stream, t.cursor},
		Count:   t.count,
		Block:   t.block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xread: %w", err)
	}
	var out []Message
	for _, st := range res {
		for _, msg := range st.Messages {
			t.cursor = msg.ID
			if decoded, ok := t.decode(msg); ok {
				out = append(out, decoded)
			}
		}
	}
	return out, nil
}

func (t *Tailer) decode(msg redis.XMessage) (Message, bool) {
	var raw []byte
	switch v := msg.Values["envelope"].(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return Message{}, false
	}
	env, err := UnmarshalEnvelope(raw)
	if err != nil {
		return Message{}, false
	}
	if t.registry != nil {
		if err := t.registry.Validate(env.EventType, env.PayloadVersion, env.Data); err != nil {
			return Message{}, false
		}
	}
	return Message{ID: msg.ID, Envelope: env}, true
}

// DecodeInteraction returns the interaction payload of an interaction.logged envelope.
func DecodeInteraction(env Envelope) (InteractionEvent, error) {
	var ev InteractionEvent
	if env.EventType != EventInteractionLogged {
		return ev, fmt.Errorf("unexpected event type %q", env.EventType)
	}
	err := json.Unmarshal(env.Data, &ev)
	return ev, err
}
