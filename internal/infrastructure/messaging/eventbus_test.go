package messaging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habitloop/habitloop-core/internal/domain/shared"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func syncBus() *InMemoryEventBus {
	return NewInMemoryEventBus(InMemoryEventBusConfig{
		AsyncMode: false,
		Logger:    quietLogger(),
	})
}

func TestInMemoryEventBus_SubscribeByType(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	var extended, broken int
	require.NoError(t, bus.Subscribe(shared.EventStreakExtended, func(shared.Event) error {
		extended++
		return nil
	}))
	require.NoError(t, bus.Subscribe(shared.EventStreakBroken, func(shared.Event) error {
		broken++
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewStreakExtendedEvent("habit-1", "user-1", 3, 5)))

	assert.Equal(t, 1, extended)
	assert.Equal(t, 0, broken)
}

func TestInMemoryEventBus_SubscribeAll(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	var seen []shared.EventType
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		seen = append(seen, e.EventType())
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewStreakExtendedEvent("habit-1", "user-1", 3, 5)))
	require.NoError(t, bus.Publish(shared.NewStreakBrokenEvent("habit-1", "user-1", 3, 5)))

	assert.Equal(t, []shared.EventType{shared.EventStreakExtended, shared.EventStreakBroken}, seen)
}

func TestInMemoryEventBus_HandlerErrorDoesNotPropagate(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		return errors.New("handler exploded")
	}))

	assert.NoError(t, bus.Publish(shared.NewStreakExtendedEvent("habit-1", "user-1", 1, 1)))

	_, executions, failures := bus.Metrics().Snapshot()
	assert.Equal(t, int64(1), executions)
	assert.Equal(t, int64(1), failures)
}

func TestInMemoryEventBus_AsyncDelivery(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 2,
		Logger:         quietLogger(),
	})

	var (
		mu    sync.Mutex
		count int
	)
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}))

	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(shared.NewStreakExtendedEvent("habit-1", "user-1", i, i)))
	}

	// Close waits for in-flight handlers.
	require.NoError(t, bus.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 10, count)
}

func TestInMemoryEventBus_ClosedRejectsOperations(t *testing.T) {
	bus := syncBus()
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(shared.NewStreakExtendedEvent("h", "u", 1, 1)), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventStreakExtended, func(shared.Event) error { return nil }), ErrEventBusClosed)

	// Double close is a no-op.
	assert.NoError(t, bus.Close())
}

// fakePubSub is an in-process stand-in for Redis Pub/Sub.
type fakePubSub struct {
	mu       sync.Mutex
	messages chan PubSubMessage
	sent     []string
}

func newFakePubSub() *fakePubSub {
	return &fakePubSub{messages: make(chan PubSubMessage, 16)}
}

func (f *fakePubSub) Publish(_ context.Context, _ string, message interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, message.(string))
	return nil
}

func (f *fakePubSub) Subscribe(context.Context, string) (<-chan PubSubMessage, error) {
	return f.messages, nil
}

func TestRedisEventBus_PublishesEnvelopeAndDeliversLocally(t *testing.T) {
	ps := newFakePubSub()
	bus, err := NewRedisEventBus(RedisEventBusConfig{
		Client:     ps,
		InstanceID: "node-a",
		LocalBus:   InMemoryEventBusConfig{AsyncMode: false, Logger: quietLogger()},
		Logger:     quietLogger(),
	})
	require.NoError(t, err)
	defer bus.Close()

	var local int
	require.NoError(t, bus.Subscribe(shared.EventStreakExtended, func(shared.Event) error {
		local++
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewStreakExtendedEvent("habit-1", "user-1", 3, 5)))

	assert.Equal(t, 1, local)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	require.Len(t, ps.sent, 1)
	assert.Contains(t, ps.sent[0], `"instance_id":"node-a"`)
	assert.Contains(t, ps.sent[0], string(shared.EventStreakExtended))
}

func TestRedisEventBus_IgnoresOwnMessages(t *testing.T) {
	ps := newFakePubSub()
	bus, err := NewRedisEventBus(RedisEventBusConfig{
		Client:     ps,
		InstanceID: "node-a",
		LocalBus:   InMemoryEventBusConfig{AsyncMode: false, Logger: quietLogger()},
		Logger:     quietLogger(),
	})
	require.NoError(t, err)
	defer bus.Close()

	var (
		mu    sync.Mutex
		count int
	)
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}))

	// Own message first: it must be skipped. The channel is FIFO, so once
	// the remote one lands the own one has already been through the loop.
	ps.messages <- PubSubMessage{Payload: `{"instance_id":"node-a","event_type":"streak.extended","aggregate_id":"habit-1","payload":{}}`}
	ps.messages <- PubSubMessage{Payload: `{"instance_id":"node-b","event_type":"streak.extended","aggregate_id":"habit-1","payload":{}}`}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	}, time.Second, 5*time.Millisecond)
}
