package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/habitloop/habitloop-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVENT STREAM SINK
// ══════════════════════════════════════════════════════════════════════════════

// EventStreamSink delivers outbound events into a capped Redis list that
// external consumers (notification senders, exports) drain at their own
// pace. It implements messaging.Sink.
type EventStreamSink struct {
	client  *redis.Client
	key     string
	maxSize int64
	accepts map[shared.EventType]bool
}

// NewEventStreamSink creates the sink. With an empty eventTypes list the
// sink accepts every event.
func NewEventStreamSink(client *redis.Client, stream string, maxSize int64, eventTypes ...shared.EventType) *EventStreamSink {
	if stream == "" {
		stream = PrefixEvents + "outbound"
	}
	if maxSize <= 0 {
		maxSize = 10000
	}
	var accepts map[shared.EventType]bool
	if len(eventTypes) > 0 {
		accepts = make(map[shared.EventType]bool, len(eventTypes))
		for _, t := range eventTypes {
			accepts[t] = true
		}
	}
	return &EventStreamSink{
		client:  client,
		key:     stream,
		maxSize: maxSize,
		accepts: accepts,
	}
}

// Name implements messaging.Sink.
func (s *EventStreamSink) Name() string { return "redis_event_stream" }

// Accepts implements messaging.Sink.
func (s *EventStreamSink) Accepts(t shared.EventType) bool {
	if s.accepts == nil {
		return true
	}
	return s.accepts[t]
}

// Deliver implements messaging.Sink.
func (s *EventStreamSink) Deliver(ctx context.Context, event shared.Event) error {
	entry := struct {
		Type       string                 `json:"type"`
		Aggregate  string                 `json:"aggregate_id"`
		OccurredAt time.Time              `json:"occurred_at"`
		Payload    map[string]interface{} `json:"payload"`
	}{
		Type:       string(event.EventType()),
		Aggregate:  event.AggregateID(),
		OccurredAt: event.OccurredAt(),
		Payload:    event.Payload(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.key, data)
	pipe.LTrim(ctx, s.key, 0, s.maxSize-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheConnection, err)
	}
	return nil
}
