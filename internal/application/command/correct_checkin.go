package command

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/habitloop/habitloop-core/internal/domain/habit"
	"github.com/habitloop/habitloop-core/internal/domain/shared"
	"github.com/habitloop/habitloop-core/pkg/logger"
)

// CorrectCheckinCommand represents an audited edit of an existing log.
// Logs are immutable facts; every change leaves an audit row and triggers
// a full streak recompute because past periods may flip state.
type CorrectCheckinCommand struct {
	UserHabitID          string
	LogID                string
	ActorID              string
	Reason               string
	CompletionPercentage int
	Notes                string
}

// DeleteCheckinCommand represents an audited removal of a log.
type DeleteCheckinCommand struct {
	UserHabitID string
	LogID       string
	ActorID     string
	Reason      string
}

// CorrectionResult reports the snapshot after the recompute.
type CorrectionResult struct {
	CurrentStreak  int
	LongestStreak  int
	PreviousStreak int
	StreakBroken   bool

	userID string
}

// CorrectCheckinHandler processes audited corrections and deletions.
type CorrectCheckinHandler struct {
	uow       habit.UnitOfWork
	engine    *habit.StreakEngine
	publisher shared.EventPublisher
	log       *logger.Logger
	newID     func() string
	clock     func() time.Time
}

// NewCorrectCheckinHandler creates a new CorrectCheckinHandler.
func NewCorrectCheckinHandler(
	uow habit.UnitOfWork,
	engine *habit.StreakEngine,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *CorrectCheckinHandler {
	return &CorrectCheckinHandler{
		uow:       uow,
		engine:    engine,
		publisher: publisher,
		log:       log,
		newID:     uuid.NewString,
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// Correct updates a log's completion percentage, writes the audit row, and
// recomputes the snapshot in the same transaction.
func (h *CorrectCheckinHandler) Correct(ctx context.Context, cmd CorrectCheckinCommand) (*CorrectionResult, error) {
	if err := habit.ValidatePercentage(cmd.CompletionPercentage); err != nil {
		return nil, err
	}
	if cmd.Reason == "" {
		return nil, shared.NewDomainError("checkin", "Correct", shared.ErrEmptyValue, "correction reason is required")
	}

	now := h.clock()
	var result CorrectionResult

	err := h.uow.WithHabitLock(ctx, cmd.UserHabitID, func(ctx context.Context, tx habit.TxStore) error {
		hb := tx.Habit()
		if hb == nil || hb.UserID != cmd.ActorID {
			return shared.ErrHabitNotFound
		}

		logs, err := tx.Logs(ctx)
		if err != nil {
			return err
		}
		target := findLog(logs, cmd.LogID)
		if target == nil {
			return shared.ErrLogNotFound
		}

		audit := &habit.LogAudit{
			ID:            h.newID(),
			LogID:         target.ID,
			UserHabitID:   hb.ID,
			Action:        habit.AuditCorrected,
			Reason:        cmd.Reason,
			ActorID:       cmd.ActorID,
			OldPercentage: target.CompletionPercentage,
			NewPercentage: cmd.CompletionPercentage,
			CreatedAt:     now,
		}
		if err := audit.Validate(); err != nil {
			return err
		}

		target.CompletionPercentage = cmd.CompletionPercentage
		target.PointsEarned = habit.PointsFor(cmd.CompletionPercentage, h.engine.Config().SatisfactionThreshold)
		if cmd.Notes != "" {
			target.Notes = cmd.Notes
		}
		target.UpdatedAt = now

		if err := tx.UpdateLog(ctx, target); err != nil {
			return err
		}
		if err := tx.RecordAudit(ctx, audit); err != nil {
			return err
		}
		return h.recompute(ctx, tx, hb, logs, now, &result)
	})
	if err != nil {
		return nil, err
	}

	h.publishAfter(cmd.UserHabitID, cmd.LogID, string(habit.AuditCorrected), cmd.Reason, cmd.ActorID, result)
	return &result, nil
}

// Delete removes a log, writes the audit row, and recomputes.
func (h *CorrectCheckinHandler) Delete(ctx context.Context, cmd DeleteCheckinCommand) (*CorrectionResult, error) {
	if cmd.Reason == "" {
		return nil, shared.NewDomainError("checkin", "Delete", shared.ErrEmptyValue, "deletion reason is required")
	}

	now := h.clock()
	var result CorrectionResult

	err := h.uow.WithHabitLock(ctx, cmd.UserHabitID, func(ctx context.Context, tx habit.TxStore) error {
		hb := tx.Habit()
		if hb == nil || hb.UserID != cmd.ActorID {
			return shared.ErrHabitNotFound
		}

		logs, err := tx.Logs(ctx)
		if err != nil {
			return err
		}
		target := findLog(logs, cmd.LogID)
		if target == nil {
			return shared.ErrLogNotFound
		}

		audit := &habit.LogAudit{
			ID:            h.newID(),
			LogID:         target.ID,
			UserHabitID:   hb.ID,
			Action:        habit.AuditDeleted,
			Reason:        cmd.Reason,
			ActorID:       cmd.ActorID,
			OldPercentage: target.CompletionPercentage,
			CreatedAt:     now,
		}
		if err := audit.Validate(); err != nil {
			return err
		}

		if err := tx.DeleteLog(ctx, target.ID); err != nil {
			return err
		}
		if err := tx.RecordAudit(ctx, audit); err != nil {
			return err
		}

		remaining := logs[:0:0]
		for _, l := range logs {
			if l.ID != target.ID {
				remaining = append(remaining, l)
			}
		}
		return h.recompute(ctx, tx, hb, remaining, now, &result)
	})
	if err != nil {
		return nil, err
	}

	h.publishAfter(cmd.UserHabitID, cmd.LogID, string(habit.AuditDeleted), cmd.Reason, cmd.ActorID, result)
	return &result, nil
}

// recompute derives the snapshot from the given log set and persists it.
func (h *CorrectCheckinHandler) recompute(ctx context.Context, tx habit.TxStore, hb *habit.UserHabit, logs []habit.HabitLog, now time.Time, out *CorrectionResult) error {
	loc, err := hb.Location()
	if err != nil {
		return err
	}

	previous := hb.Snapshot.CurrentStreak
	d := h.engine.Derive(logs, hb.Frequency, loc, now)
	hb.ApplySnapshot(d, d.TotalPoints, now)

	out.CurrentStreak = d.CurrentStreak
	out.LongestStreak = d.LongestStreak
	out.PreviousStreak = previous
	out.StreakBroken = d.CurrentStreak < previous
	out.userID = hb.UserID

	return tx.SaveSnapshot(ctx, hb)
}

func (h *CorrectCheckinHandler) publishAfter(habitID, logID, action, reason, actorID string, r CorrectionResult) {
	if err := h.publisher.Publish(shared.NewCheckinCorrectedEvent(habitID, logID, action, reason, actorID)); err != nil {
		h.log.Error("failed to publish correction event", logger.Err(err))
	}
	if r.StreakBroken {
		_ = h.publisher.Publish(shared.NewStreakBrokenEvent(habitID, r.userID, r.PreviousStreak, r.LongestStreak))
	}
}

func findLog(logs []habit.HabitLog, id string) *habit.HabitLog {
	for i := range logs {
		if logs[i].ID == id {
			return &logs[i]
		}
	}
	return nil
}
