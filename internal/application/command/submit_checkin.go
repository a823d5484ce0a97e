// Package command contains application-level write operations (CQRS commands).
// Each command is a struct with validation, a result type, and a handler that
// orchestrates domain objects, repositories, and events.
package command

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/habitloop/habitloop-core/internal/domain/achievement"
	"github.com/habitloop/habitloop-core/internal/domain/habit"
	"github.com/habitloop/habitloop-core/internal/domain/shared"
	"github.com/habitloop/habitloop-core/pkg/logger"
	"github.com/habitloop/habitloop-core/pkg/retry"
)

// MaxClockSkew is how far into the future occurred_at may point before the
// check-in is rejected. Covers ordinary client clock drift.
const MaxClockSkew = 5 * time.Minute

// SubmitCheckinCommand represents a request to record a habit check-in.
type SubmitCheckinCommand struct {
	UserHabitID          string
	UserID               string
	OccurredAt           time.Time
	CompletionPercentage int
	DurationMinutes      int
	MoodBefore           int
	MoodAfter            int
	Notes                string
	Location             string
	Evidence             *habit.Evidence
	CorrelationID        string
}

// Validate checks the command invariants before any storage work happens.
func (c SubmitCheckinCommand) Validate(now time.Time) error {
	if c.UserHabitID == "" || c.UserID == "" {
		return shared.NewDomainError("checkin", "Validate", shared.ErrInvalidID, "habit_id and user_id are required")
	}
	if c.OccurredAt.IsZero() {
		return shared.NewDomainError("checkin", "Validate", shared.ErrEmptyValue, "occurred_at is required")
	}
	if c.OccurredAt.After(now.Add(MaxClockSkew)) {
		return shared.ErrCheckinInFuture
	}
	if err := habit.ValidatePercentage(c.CompletionPercentage); err != nil {
		return err
	}
	if c.MoodBefore < 0 || c.MoodBefore > 10 || c.MoodAfter < 0 || c.MoodAfter > 10 {
		return shared.NewDomainError("checkin", "Validate", shared.ErrValueOutOfRange, "mood must be between 1 and 10")
	}
	return c.Evidence.Validate()
}

// SubmitCheckinResult is returned after a successful check-in.
type SubmitCheckinResult struct {
	LogID                 string
	PeriodKey             string
	NewStreak             int
	LongestStreak         int
	PointsEarned          int
	TotalPoints           int
	PeriodBecameSatisfied bool
	Backfill              bool
	AchievementsUnlocked  []achievement.Type
}

// SubmitCheckinHandler processes check-in submissions.
//
// The write path is the only place a habit snapshot is updated:
// lock the habit row, write the log, fully recompute the streak from all
// logs, persist the new snapshot, commit. Achievements and events are
// handled after the commit so a publish failure never rolls back a
// recorded check-in.
type SubmitCheckinHandler struct {
	uow       habit.UnitOfWork
	engine    *habit.StreakEngine
	evaluator *achievement.Evaluator
	unlocks   achievement.UnlockStore
	publisher shared.EventPublisher
	log       *logger.Logger
	newID     func() string
	clock     func() time.Time
}

// NewSubmitCheckinHandler creates a new SubmitCheckinHandler.
func NewSubmitCheckinHandler(
	uow habit.UnitOfWork,
	engine *habit.StreakEngine,
	evaluator *achievement.Evaluator,
	unlocks achievement.UnlockStore,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *SubmitCheckinHandler {
	return &SubmitCheckinHandler{
		uow:       uow,
		engine:    engine,
		evaluator: evaluator,
		unlocks:   unlocks,
		publisher: publisher,
		log:       log,
		newID:     uuid.NewString,
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// Handle executes the command. Write conflicts are retried with bounded
// backoff; all other errors surface to the caller unchanged.
func (h *SubmitCheckinHandler) Handle(ctx context.Context, cmd SubmitCheckinCommand) (*SubmitCheckinResult, error) {
	now := h.clock()
	if err := cmd.Validate(now); err != nil {
		return nil, err
	}

	var (
		result     SubmitCheckinResult
		derivation habit.Derivation
	)

	retryCfg := retry.DefaultConfig()
	retryCfg.RetryIf = shared.IsConflict
	retryCfg.OnRetry = func(attempt int, err error, _ time.Duration) {
		h.log.Warn("check-in write conflict, retrying",
			logger.String("habit_id", cmd.UserHabitID),
			logger.Int("attempt", attempt),
			logger.Err(err))
	}

	err := retry.Do(ctx, retryCfg, func(ctx context.Context) error {
		return h.uow.WithHabitLock(ctx, cmd.UserHabitID, func(ctx context.Context, tx habit.TxStore) error {
			r, after, err := h.submit(ctx, tx, cmd, now)
			if err != nil {
				return err
			}
			result = *r
			derivation = after
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	// Post-commit: achievement unlocks and event fan-out.
	// At-least-once; the unique constraint keeps unlocks exactly-once.
	result.AchievementsUnlocked = h.unlockAchievements(ctx, cmd, derivation)
	h.publishEvents(cmd, result)

	return &result, nil
}

// submit is the critical section body, executed under the habit row lock.
func (h *SubmitCheckinHandler) submit(ctx context.Context, tx habit.TxStore, cmd SubmitCheckinCommand, now time.Time) (*SubmitCheckinResult, habit.Derivation, error) {
	var none habit.Derivation

	hb := tx.Habit()
	if hb == nil || hb.UserID != cmd.UserID {
		return nil, none, shared.ErrHabitNotFound
	}
	if !hb.IsActive {
		return nil, none, shared.ErrHabitNotActive
	}

	loc, err := hb.Location()
	if err != nil {
		return nil, none, err
	}

	cfg := h.engine.Config()
	part := habit.NewPartitioner(hb.Frequency, loc, cfg.Grace)
	period := part.PeriodFor(cmd.OccurredAt)

	logs, err := tx.Logs(ctx)
	if err != nil {
		return nil, none, err
	}
	before := h.engine.Derive(logs, hb.Frequency, loc, now)

	// Logs past the period target are kept for history but earn nothing.
	// Target 1 replaces the existing log instead, so the cap only applies
	// to higher targets.
	points := habit.PointsFor(cmd.CompletionPercentage, cfg.SatisfactionThreshold)
	if hb.Frequency.Count > 1 {
		if st, ok := before.StatusFor(period.Key); ok && st.Counted >= hb.Frequency.Count {
			points = 0
		}
	}

	entry := &habit.HabitLog{
		ID:                   h.newID(),
		UserHabitID:          hb.ID,
		OccurredAt:           cmd.OccurredAt,
		Timezone:             hb.Timezone,
		PeriodKey:            period.Key,
		CompletionPercentage: cmd.CompletionPercentage,
		DurationMinutes:      cmd.DurationMinutes,
		MoodBefore:           cmd.MoodBefore,
		MoodAfter:            cmd.MoodAfter,
		Notes:                cmd.Notes,
		Location:             cmd.Location,
		Evidence:             cmd.Evidence,
		PointsEarned:         points,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	// Target "once per period": repeated submissions for the same period
	// collapse into one log (idempotent upsert keyed by period_key).
	// Higher targets insert every log; the engine caps the counted ones.
	if hb.Frequency.Count == 1 {
		existing, err := tx.FindLogByPeriodKey(ctx, period.Key)
		if err != nil {
			return nil, none, err
		}
		if existing != nil {
			entry.ID = existing.ID
			entry.CreatedAt = existing.CreatedAt
			if err := tx.UpdateLog(ctx, entry); err != nil {
				return nil, none, err
			}
			logs = replaceLog(logs, *entry)
		} else {
			if err := tx.InsertLog(ctx, entry); err != nil {
				return nil, none, err
			}
			logs = append(logs, *entry)
		}
	} else {
		if err := tx.InsertLog(ctx, entry); err != nil {
			return nil, none, err
		}
		logs = append(logs, *entry)
	}

	after := h.engine.Derive(logs, hb.Frequency, loc, now)
	hb.ApplySnapshot(after, after.TotalPoints, now)
	if err := tx.SaveSnapshot(ctx, hb); err != nil {
		return nil, none, err
	}

	return &SubmitCheckinResult{
		LogID:                 entry.ID,
		PeriodKey:             period.Key,
		NewStreak:             after.CurrentStreak,
		LongestStreak:         after.LongestStreak,
		PointsEarned:          points,
		TotalPoints:           after.TotalPoints,
		PeriodBecameSatisfied: after.IsSatisfied(period.Key) && !before.IsSatisfied(period.Key),
		Backfill:              part.IsBackfill(cmd.OccurredAt, now),
	}, after, nil
}

// unlockAchievements persists newly earned achievements and returns the ones
// unlocked for the first time.
func (h *SubmitCheckinHandler) unlockAchievements(ctx context.Context, cmd SubmitCheckinCommand, d habit.Derivation) []achievement.Type {
	earned := h.evaluator.Evaluate(d)

	var unlocked []achievement.Type
	for _, t := range earned {
		fresh, err := h.unlocks.TryUnlock(ctx, &achievement.Unlock{
			ID:          h.newID(),
			UserID:      cmd.UserID,
			UserHabitID: cmd.UserHabitID,
			Type:        t,
			UnlockedAt:  h.clock(),
		})
		if err != nil {
			h.log.Error("achievement unlock failed",
				logger.String("user_id", cmd.UserID),
				logger.String("type", string(t)),
				logger.Err(err))
			continue
		}
		if fresh {
			unlocked = append(unlocked, t)
			if def, ok := achievement.DefinitionFor(t); ok {
				_ = h.publisher.Publish(shared.NewAchievementUnlockedEvent(cmd.UserID, cmd.UserHabitID, string(t), def.Points))
			}
		}
	}
	return unlocked
}

func (h *SubmitCheckinHandler) publishEvents(cmd SubmitCheckinCommand, r SubmitCheckinResult) {
	ev := shared.NewCheckinRecordedEvent(
		cmd.UserHabitID, cmd.UserID, r.LogID, r.PeriodKey,
		cmd.CompletionPercentage, r.PointsEarned,
		r.PeriodBecameSatisfied, r.Backfill, cmd.OccurredAt)
	ev.BaseEvent = ev.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	if err := h.publisher.Publish(ev); err != nil {
		h.log.Error("failed to publish checkin event", logger.Err(err))
	}

	if r.PeriodBecameSatisfied {
		_ = h.publisher.Publish(shared.NewStreakExtendedEvent(cmd.UserHabitID, cmd.UserID, r.NewStreak, r.LongestStreak))
	}
}

func replaceLog(logs []habit.HabitLog, l habit.HabitLog) []habit.HabitLog {
	for i := range logs {
		if logs[i].ID == l.ID {
			logs[i] = l
			return logs
		}
	}
	return append(logs, l)
}
