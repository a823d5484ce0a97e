package saga

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habitloop/habitloop-core/internal/domain/achievement"
	"github.com/habitloop/habitloop-core/internal/domain/habit"
	"github.com/habitloop/habitloop-core/internal/domain/shared"
	"github.com/habitloop/habitloop-core/pkg/logger"
)

type fakeHabits struct {
	habit *habit.UserHabit
}

func (r *fakeHabits) Create(context.Context, *habit.UserHabit) error { return nil }

func (r *fakeHabits) FindByID(_ context.Context, id string) (*habit.UserHabit, error) {
	if r.habit == nil || r.habit.ID != id {
		return nil, shared.ErrHabitNotFound
	}
	return r.habit, nil
}

func (r *fakeHabits) FindByUser(context.Context, string) ([]*habit.UserHabit, error) {
	return []*habit.UserHabit{r.habit}, nil
}

func (r *fakeHabits) Update(context.Context, *habit.UserHabit) error { return nil }

func (r *fakeHabits) FindActive(context.Context) ([]*habit.UserHabit, error) {
	return []*habit.UserHabit{r.habit}, nil
}

type fakeLogs struct {
	logs []habit.HabitLog
}

func (r *fakeLogs) ListByHabit(context.Context, string) ([]habit.HabitLog, error) {
	return r.logs, nil
}

func (r *fakeLogs) ListByHabitSince(_ context.Context, _ string, since time.Time) ([]habit.HabitLog, error) {
	var out []habit.HabitLog
	for _, l := range r.logs {
		if !l.OccurredAt.Before(since) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *fakeLogs) FindByID(context.Context, string) (*habit.HabitLog, error) {
	return nil, shared.ErrLogNotFound
}

type fakeUnlocks struct {
	unlocked map[achievement.Type]bool
}

func (f *fakeUnlocks) TryUnlock(_ context.Context, u *achievement.Unlock) (bool, error) {
	if f.unlocked[u.Type] {
		return false, nil
	}
	f.unlocked[u.Type] = true
	return true, nil
}

func (f *fakeUnlocks) ListByUser(context.Context, string) ([]achievement.Unlock, error) {
	return nil, nil
}

type fakePublisher struct {
	events []shared.Event
}

func (f *fakePublisher) Publish(e shared.Event) error {
	f.events = append(f.events, e)
	return nil
}

var flowNow = time.Date(2026, 3, 8, 21, 0, 0, 0, time.UTC)

func newFlowFixture(t *testing.T, days int) (*AchievementFlow, *fakeUnlocks, *fakePublisher) {
	t.Helper()
	hb, err := habit.NewUserHabit(habit.NewUserHabitParams{
		ID:        "habit-1",
		UserID:    "user-1",
		Name:      "Morning run",
		Frequency: habit.TargetFrequency{Type: habit.FrequencyDaily, Count: 1},
		Timezone:  "UTC",
	})
	require.NoError(t, err)

	logs := &fakeLogs{}
	for i := 0; i < days; i++ {
		at := flowNow.AddDate(0, 0, i-days+1)
		logs.logs = append(logs.logs, habit.HabitLog{
			ID:                   at.Format("log-2006-01-02"),
			UserHabitID:          "habit-1",
			OccurredAt:           at,
			Timezone:             "UTC",
			PeriodKey:            at.Format("2006-01-02"),
			CompletionPercentage: 100,
			PointsEarned:         10,
		})
	}

	unlocks := &fakeUnlocks{unlocked: make(map[achievement.Type]bool)}
	publisher := &fakePublisher{}

	engine := habit.NewStreakEngine(habit.DefaultEngineConfig())
	flow := NewAchievementFlow(
		&fakeHabits{habit: hb},
		logs,
		engine,
		achievement.NewEvaluator(),
		unlocks,
		publisher,
		logger.New(io.Discard, logger.LevelError),
	)
	flow.clock = func() time.Time { return flowNow }

	return flow, unlocks, publisher
}

func TestAchievementFlow_UnlocksEarnedAchievements(t *testing.T) {
	flow, unlocks, publisher := newFlowFixture(t, 3)

	require.NoError(t, flow.Run(context.Background(), "habit-1"))

	assert.True(t, unlocks.unlocked[achievement.FirstCheckin])
	assert.True(t, unlocks.unlocked[achievement.Streak3])
	assert.Len(t, publisher.events, 2)
}

func TestAchievementFlow_IdempotentRerun(t *testing.T) {
	flow, _, publisher := newFlowFixture(t, 3)

	require.NoError(t, flow.Run(context.Background(), "habit-1"))
	require.NoError(t, flow.Run(context.Background(), "habit-1"))

	// The second run finds everything already unlocked and stays silent.
	assert.Len(t, publisher.events, 2)
}

func TestAchievementFlow_NothingEarned(t *testing.T) {
	flow, unlocks, publisher := newFlowFixture(t, 0)

	require.NoError(t, flow.Run(context.Background(), "habit-1"))

	assert.Empty(t, unlocks.unlocked)
	assert.Empty(t, publisher.events)
}

func TestAchievementFlow_UnknownHabit(t *testing.T) {
	flow, _, _ := newFlowFixture(t, 1)

	err := flow.Run(context.Background(), "missing")
	assert.True(t, shared.IsNotFound(err))
}

func TestAchievementFlow_HandleEventFilters(t *testing.T) {
	flow, unlocks, _ := newFlowFixture(t, 3)

	// Lifecycle events are not check-in activity; nothing should run.
	require.NoError(t, flow.HandleEvent(shared.NewHabitLifecycleEvent(shared.EventHabitPaused, "habit-1", "user-1", nil)))
	assert.Empty(t, unlocks.unlocked)

	require.NoError(t, flow.HandleEvent(shared.NewStreakExtendedEvent("habit-1", "user-1", 3, 3)))
	assert.True(t, unlocks.unlocked[achievement.Streak3])
}
