package eventhandler

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habitloop/habitloop-core/internal/application/query"
	"github.com/habitloop/habitloop-core/internal/domain/shared"
	"github.com/habitloop/habitloop-core/pkg/logger"
)

type fakeCache struct {
	invalidated []string
	err         error
}

func (c *fakeCache) Get(context.Context, string) (*query.ProgressView, error) { return nil, nil }

func (c *fakeCache) Set(context.Context, string, *query.ProgressView, time.Duration) error {
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, habitID string) error {
	if c.err != nil {
		return c.err
	}
	c.invalidated = append(c.invalidated, habitID)
	return nil
}

func TestStreakChangedHandler_InvalidatesOnActivity(t *testing.T) {
	cache := &fakeCache{}
	h := NewStreakChangedHandler(cache, logger.New(io.Discard, logger.LevelError))

	require.NoError(t, h.Handle(shared.NewStreakExtendedEvent("habit-1", "user-1", 3, 5)))
	require.NoError(t, h.Handle(shared.NewStreakBrokenEvent("habit-2", "user-1", 3, 5)))

	assert.Equal(t, []string{"habit-1", "habit-2"}, cache.invalidated)
}

func TestStreakChangedHandler_IgnoresUnrelatedEvents(t *testing.T) {
	cache := &fakeCache{}
	h := NewStreakChangedHandler(cache, logger.New(io.Discard, logger.LevelError))

	require.NoError(t, h.Handle(shared.NewHabitLifecycleEvent(shared.EventHabitPaused, "habit-1", "user-1", nil)))
	require.NoError(t, h.Handle(shared.NewAchievementUnlockedEvent("user-1", "habit-1", "streak_3", 25)))

	assert.Empty(t, cache.invalidated)
}

func TestStreakChangedHandler_NilCache(t *testing.T) {
	h := NewStreakChangedHandler(nil, logger.New(io.Discard, logger.LevelError))

	assert.NoError(t, h.Handle(shared.NewStreakExtendedEvent("habit-1", "user-1", 3, 5)))
}

func TestStreakChangedHandler_PropagatesCacheError(t *testing.T) {
	boom := errors.New("redis down")
	h := NewStreakChangedHandler(&fakeCache{err: boom}, logger.New(io.Discard, logger.LevelError))

	assert.ErrorIs(t, h.Handle(shared.NewStreakExtendedEvent("habit-1", "user-1", 3, 5)), boom)
}
