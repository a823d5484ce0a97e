package command

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/habitloop/habitloop-core/internal/domain/habit"
	"github.com/habitloop/habitloop-core/internal/domain/shared"
	"github.com/habitloop/habitloop-core/pkg/logger"
)

// CreateHabitCommand represents a request to subscribe a user to a habit.
type CreateHabitCommand struct {
	UserID    string
	Name      string
	Frequency habit.TargetFrequency
	Timezone  string
}

// CreateHabitResult is returned after a habit is created.
type CreateHabitResult struct {
	HabitID string
}

// ChangeTargetCommand represents a request to change a habit's target
// frequency. Period boundaries shift, so the snapshot is fully recomputed
// inside the same transaction.
type ChangeTargetCommand struct {
	UserHabitID string
	UserID      string
	Frequency   habit.TargetFrequency
}

// SetActiveCommand pauses or resumes a habit.
type SetActiveCommand struct {
	UserHabitID string
	UserID      string
	Active      bool
}

// ManageHabitHandler processes habit lifecycle commands.
type ManageHabitHandler struct {
	habits    habit.Repository
	uow       habit.UnitOfWork
	engine    *habit.StreakEngine
	publisher shared.EventPublisher
	log       *logger.Logger
	newID     func() string
	clock     func() time.Time
}

// NewManageHabitHandler creates a new ManageHabitHandler.
func NewManageHabitHandler(
	habits habit.Repository,
	uow habit.UnitOfWork,
	engine *habit.StreakEngine,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *ManageHabitHandler {
	return &ManageHabitHandler{
		habits:    habits,
		uow:       uow,
		engine:    engine,
		publisher: publisher,
		log:       log,
		newID:     uuid.NewString,
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// Create subscribes a user to a new habit.
func (h *ManageHabitHandler) Create(ctx context.Context, cmd CreateHabitCommand) (*CreateHabitResult, error) {
	hb, err := habit.NewUserHabit(habit.NewUserHabitParams{
		ID:        h.newID(),
		UserID:    cmd.UserID,
		Name:      cmd.Name,
		Frequency: cmd.Frequency,
		Timezone:  cmd.Timezone,
	})
	if err != nil {
		return nil, err
	}

	if err := h.habits.Create(ctx, hb); err != nil {
		return nil, err
	}

	h.log.Info("habit created",
		logger.String("habit_id", hb.ID),
		logger.String("user_id", hb.UserID),
		logger.String("frequency", string(hb.Frequency.Type)))

	if err := h.publisher.Publish(shared.NewHabitLifecycleEvent(shared.EventHabitCreated, hb.ID, hb.UserID, map[string]interface{}{
		"name": hb.Name,
	})); err != nil {
		h.log.Error("failed to publish habit created event", logger.Err(err))
	}

	return &CreateHabitResult{HabitID: hb.ID}, nil
}

// SetActive pauses or resumes a habit. Pausing does not touch the snapshot;
// missed periods simply stop accruing because check-ins are rejected.
func (h *ManageHabitHandler) SetActive(ctx context.Context, cmd SetActiveCommand) error {
	hb, err := h.habits.FindByID(ctx, cmd.UserHabitID)
	if err != nil {
		return err
	}
	if hb.UserID != cmd.UserID {
		return shared.ErrHabitNotFound
	}

	eventType := shared.EventHabitPaused
	if cmd.Active {
		if err := hb.Resume(); err != nil {
			return err
		}
		eventType = shared.EventHabitResumed
	} else {
		if err := hb.Pause(); err != nil {
			return err
		}
	}

	if err := h.habits.Update(ctx, hb); err != nil {
		return err
	}

	if err := h.publisher.Publish(shared.NewHabitLifecycleEvent(eventType, hb.ID, hb.UserID, nil)); err != nil {
		h.log.Error("failed to publish habit lifecycle event", logger.Err(err))
	}
	return nil
}

// ChangeTarget updates the target frequency and recomputes the snapshot
// against the new period boundaries under the habit row lock.
func (h *ManageHabitHandler) ChangeTarget(ctx context.Context, cmd ChangeTargetCommand) error {
	if err := cmd.Frequency.Validate(); err != nil {
		return err
	}

	now := h.clock()
	err := h.uow.WithHabitLock(ctx, cmd.UserHabitID, func(ctx context.Context, tx habit.TxStore) error {
		hb := tx.Habit()
		if hb == nil || hb.UserID != cmd.UserID {
			return shared.ErrHabitNotFound
		}
		if err := hb.ChangeTarget(cmd.Frequency); err != nil {
			return err
		}

		loc, err := hb.Location()
		if err != nil {
			return err
		}
		logs, err := tx.Logs(ctx)
		if err != nil {
			return err
		}
		d := h.engine.Derive(logs, hb.Frequency, loc, now)
		hb.ApplySnapshot(d, d.TotalPoints, now)
		return tx.SaveSnapshot(ctx, hb)
	})
	if err != nil {
		return err
	}

	if err := h.publisher.Publish(shared.NewHabitLifecycleEvent(shared.EventTargetChanged, cmd.UserHabitID, cmd.UserID, map[string]interface{}{
		"type":  string(cmd.Frequency.Type),
		"count": cmd.Frequency.Count,
	})); err != nil {
		h.log.Error("failed to publish target changed event", logger.Err(err))
	}
	return nil
}
