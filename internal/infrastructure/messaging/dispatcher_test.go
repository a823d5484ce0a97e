package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habitloop/habitloop-core/internal/domain/shared"
	"github.com/habitloop/habitloop-core/pkg/retry"
)

type fakeSink struct {
	name    string
	accepts map[shared.EventType]bool

	mu        sync.Mutex
	delivered []shared.Event
	failures  int // fail this many deliveries before succeeding
	calls     int
}

func (s *fakeSink) Name() string { return s.name }

func (s *fakeSink) Accepts(eventType shared.EventType) bool {
	if s.accepts == nil {
		return true
	}
	return s.accepts[eventType]
}

func (s *fakeSink) Deliver(_ context.Context, event shared.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return errors.New("delivery failed")
	}
	s.delivered = append(s.delivered, event)
	return nil
}

func (s *fakeSink) deliveredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delivered)
}

func fastDispatcherConfig() DispatcherConfig {
	cfg := DefaultDispatcherConfig()
	cfg.Retry = retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		JitterFactor: 0,
	}
	cfg.Logger = quietLogger()
	return cfg
}

func TestDispatcher_DeliversToAcceptingSinks(t *testing.T) {
	webhooks := &fakeSink{name: "webhooks"}
	pushOnly := &fakeSink{
		name:    "push",
		accepts: map[shared.EventType]bool{shared.EventAchievementUnlocked: true},
	}

	d := NewDispatcher(fastDispatcherConfig(), webhooks, pushOnly)
	defer d.Close()

	require.NoError(t, d.HandleEvent(shared.NewStreakExtendedEvent("habit-1", "user-1", 3, 5)))
	require.NoError(t, d.HandleEvent(shared.NewAchievementUnlockedEvent("user-1", "habit-1", "streak_3", 25)))

	require.Eventually(t, func() bool {
		return webhooks.deliveredCount() == 2 && pushOnly.deliveredCount() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestDispatcher_RetriesTransientFailures(t *testing.T) {
	sink := &fakeSink{name: "flaky", failures: 2}

	d := NewDispatcher(fastDispatcherConfig(), sink)
	defer d.Close()

	require.NoError(t, d.HandleEvent(shared.NewStreakExtendedEvent("habit-1", "user-1", 3, 5)))

	require.Eventually(t, func() bool {
		return sink.deliveredCount() == 1
	}, time.Second, 5*time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, 3, sink.calls)
}

func TestDispatcher_DeadLetterAfterExhaustedRetries(t *testing.T) {
	sink := &fakeSink{name: "down", failures: 100}

	d := NewDispatcher(fastDispatcherConfig(), sink)
	defer d.Close()

	require.NoError(t, d.HandleEvent(shared.NewStreakExtendedEvent("habit-1", "user-1", 3, 5)))

	require.Eventually(t, func() bool {
		return len(d.DeadLetters()) == 1
	}, time.Second, 5*time.Millisecond)

	dl := d.DeadLetters()[0]
	assert.Equal(t, "down", dl.Sink)
	assert.Equal(t, shared.EventStreakExtended, dl.Event.EventType())
	assert.Error(t, dl.Err)
}

func TestDispatcher_BreakerIsolatesFailingSink(t *testing.T) {
	cfg := fastDispatcherConfig()
	cfg.Workers = 1
	cfg.BreakerFailureThreshold = 3
	down := &fakeSink{name: "down", failures: 1000}
	healthy := &fakeSink{name: "healthy"}

	d := NewDispatcher(cfg, down, healthy)
	defer d.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, d.HandleEvent(shared.NewStreakExtendedEvent("habit-1", "user-1", i, i)))
	}

	// The healthy sink keeps receiving everything while the broken one trips.
	require.Eventually(t, func() bool {
		return healthy.deliveredCount() == 5
	}, time.Second, 5*time.Millisecond)

	// Once the breaker opens, deliveries stop reaching the failing sink:
	// 3 attempts for the first event opens it, later events are rejected
	// without a call.
	down.mu.Lock()
	calls := down.calls
	down.mu.Unlock()
	assert.Less(t, calls, 15, "open breaker must short-circuit deliveries")

	assert.NotEmpty(t, d.DeadLetters())
}

func TestDispatcher_QueueFullDropsEvent(t *testing.T) {
	cfg := fastDispatcherConfig()
	cfg.QueueSize = 1
	cfg.Workers = 1

	block := make(chan struct{})
	slow := &blockingSink{release: block}
	d := NewDispatcher(cfg, slow)
	defer d.Close()
	defer close(block)

	// First event occupies the worker, second fills the queue, third drops.
	require.NoError(t, d.HandleEvent(shared.NewStreakExtendedEvent("h", "u", 1, 1)))
	require.Eventually(t, func() bool { return slow.started() }, time.Second, time.Millisecond)
	require.NoError(t, d.HandleEvent(shared.NewStreakExtendedEvent("h", "u", 2, 2)))

	err := d.HandleEvent(shared.NewStreakExtendedEvent("h", "u", 3, 3))
	assert.Error(t, err)
}

type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	active  bool
}

func (s *blockingSink) Name() string                  { return "blocking" }
func (s *blockingSink) Accepts(shared.EventType) bool { return true }

func (s *blockingSink) Deliver(context.Context, shared.Event) error {
	s.mu.Lock()
	s.active = true
	s.mu.Unlock()
	<-s.release
	return nil
}

func (s *blockingSink) started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}
