package command

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habitloop/habitloop-core/internal/domain/habit"
	"github.com/habitloop/habitloop-core/internal/domain/shared"
	"github.com/habitloop/habitloop-core/pkg/logger"
)

type fakeHabitRepo struct {
	habits map[string]*habit.UserHabit
}

func newFakeHabitRepo() *fakeHabitRepo {
	return &fakeHabitRepo{habits: make(map[string]*habit.UserHabit)}
}

func (r *fakeHabitRepo) Create(_ context.Context, h *habit.UserHabit) error {
	if _, ok := r.habits[h.ID]; ok {
		return shared.ErrAlreadyExists
	}
	cp := *h
	r.habits[h.ID] = &cp
	return nil
}

func (r *fakeHabitRepo) FindByID(_ context.Context, id string) (*habit.UserHabit, error) {
	h, ok := r.habits[id]
	if !ok {
		return nil, shared.ErrHabitNotFound
	}
	cp := *h
	return &cp, nil
}

func (r *fakeHabitRepo) FindByUser(_ context.Context, userID string) ([]*habit.UserHabit, error) {
	var out []*habit.UserHabit
	for _, h := range r.habits {
		if h.UserID == userID {
			cp := *h
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeHabitRepo) Update(_ context.Context, h *habit.UserHabit) error {
	current, ok := r.habits[h.ID]
	if !ok {
		return shared.ErrHabitNotFound
	}
	if current.Version != h.Version {
		return shared.ErrOptimisticLock
	}
	cp := *h
	cp.Version++
	r.habits[h.ID] = &cp
	return nil
}

func (r *fakeHabitRepo) FindActive(context.Context) ([]*habit.UserHabit, error) {
	var out []*habit.UserHabit
	for _, h := range r.habits {
		if h.IsActive {
			cp := *h
			out = append(out, &cp)
		}
	}
	return out, nil
}

type manageFixture struct {
	handler   *ManageHabitHandler
	repo      *fakeHabitRepo
	store     *fakeStore
	publisher *fakePublisher
}

func newManageFixture(t *testing.T) *manageFixture {
	t.Helper()
	repo := newFakeHabitRepo()
	store := &fakeStore{}
	publisher := &fakePublisher{}

	h := NewManageHabitHandler(
		repo,
		&fakeUOW{store: store},
		habit.NewStreakEngine(habit.DefaultEngineConfig()),
		publisher,
		logger.New(io.Discard, logger.LevelError),
	)
	h.clock = func() time.Time { return testNow }

	return &manageFixture{handler: h, repo: repo, store: store, publisher: publisher}
}

func TestManageHabit_Create(t *testing.T) {
	f := newManageFixture(t)

	result, err := f.handler.Create(context.Background(), CreateHabitCommand{
		UserID:    "user-1",
		Name:      "Meditate",
		Frequency: habit.TargetFrequency{Type: habit.FrequencyDaily, Count: 1},
		Timezone:  "Europe/Berlin",
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.HabitID)

	stored, err := f.repo.FindByID(context.Background(), result.HabitID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive)
	assert.Equal(t, "Meditate", stored.Name)

	assert.Contains(t, f.publisher.typesSeen(), shared.EventHabitCreated)
}

func TestManageHabit_CreateValidation(t *testing.T) {
	f := newManageFixture(t)

	_, err := f.handler.Create(context.Background(), CreateHabitCommand{
		UserID:    "user-1",
		Name:      "Meditate",
		Frequency: habit.TargetFrequency{Type: habit.FrequencyDaily, Count: 1},
		Timezone:  "Mars/Olympus",
	})

	assert.ErrorIs(t, err, shared.ErrInvalidFormat)
	assert.Empty(t, f.repo.habits)
}

func TestManageHabit_PauseResume(t *testing.T) {
	f := newManageFixture(t)
	created, err := f.handler.Create(context.Background(), CreateHabitCommand{
		UserID:    "user-1",
		Name:      "Meditate",
		Frequency: habit.TargetFrequency{Type: habit.FrequencyDaily, Count: 1},
		Timezone:  "UTC",
	})
	require.NoError(t, err)

	err = f.handler.SetActive(context.Background(), SetActiveCommand{
		UserHabitID: created.HabitID, UserID: "user-1", Active: false,
	})
	require.NoError(t, err)

	stored, err := f.repo.FindByID(context.Background(), created.HabitID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
	assert.Contains(t, f.publisher.typesSeen(), shared.EventHabitPaused)

	// Pausing twice is a state error.
	err = f.handler.SetActive(context.Background(), SetActiveCommand{
		UserHabitID: created.HabitID, UserID: "user-1", Active: false,
	})
	assert.ErrorIs(t, err, shared.ErrStateTransition)

	err = f.handler.SetActive(context.Background(), SetActiveCommand{
		UserHabitID: created.HabitID, UserID: "user-1", Active: true,
	})
	require.NoError(t, err)
	assert.Contains(t, f.publisher.typesSeen(), shared.EventHabitResumed)
}

func TestManageHabit_SetActiveForeignUser(t *testing.T) {
	f := newManageFixture(t)
	created, err := f.handler.Create(context.Background(), CreateHabitCommand{
		UserID:    "user-1",
		Name:      "Meditate",
		Frequency: habit.TargetFrequency{Type: habit.FrequencyDaily, Count: 1},
		Timezone:  "UTC",
	})
	require.NoError(t, err)

	err = f.handler.SetActive(context.Background(), SetActiveCommand{
		UserHabitID: created.HabitID, UserID: "intruder", Active: false,
	})

	assert.True(t, shared.IsNotFound(err))
}

func TestManageHabit_ChangeTargetRecomputes(t *testing.T) {
	f := newManageFixture(t)
	f.store.habit = testHabit(t, habit.TargetFrequency{Type: habit.FrequencyDaily, Count: 1})

	// Three daily check-ins, then a switch to weekly: the same logs now
	// fall into one satisfied week instead of three satisfied days.
	for _, day := range []int{-2, -1, 0} {
		at := testNow.AddDate(0, 0, day)
		f.store.logs = append(f.store.logs, habit.HabitLog{
			ID:                   at.Format("log-2006-01-02"),
			UserHabitID:          "habit-1",
			OccurredAt:           at,
			Timezone:             "UTC",
			PeriodKey:            at.Format("2006-01-02"),
			CompletionPercentage: 100,
			PointsEarned:         10,
		})
	}

	err := f.handler.ChangeTarget(context.Background(), ChangeTargetCommand{
		UserHabitID: "habit-1",
		UserID:      "user-1",
		Frequency:   habit.TargetFrequency{Type: habit.FrequencyWeekly, Count: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, habit.FrequencyWeekly, f.store.habit.Frequency.Type)
	assert.Equal(t, 1, f.store.habit.Snapshot.CurrentStreak)
	assert.Contains(t, f.publisher.typesSeen(), shared.EventTargetChanged)
}

func TestManageHabit_ChangeTargetValidation(t *testing.T) {
	f := newManageFixture(t)

	err := f.handler.ChangeTarget(context.Background(), ChangeTargetCommand{
		UserHabitID: "habit-1",
		UserID:      "user-1",
		Frequency:   habit.TargetFrequency{Type: "monthly", Count: 1},
	})

	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}
