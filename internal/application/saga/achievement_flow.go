// Package saga contains multi-step application workflows that react to
// domain events. Each saga executes its steps sequentially and logs every
// transition; a failed step aborts the flow without compensation because
// all steps here are idempotent.
package saga

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/habitloop/habitloop-core/internal/domain/achievement"
	"github.com/habitloop/habitloop-core/internal/domain/habit"
	"github.com/habitloop/habitloop-core/internal/domain/shared"
	"github.com/habitloop/habitloop-core/pkg/logger"
)

// AchievementFlow re-evaluates the full achievement table for a habit after
// a check-in commits. The inline unlock path in the submit handler covers
// the common criteria; this flow is the safety net that also sees period
// history (comeback) and repairs unlocks missed due to transient failures.
//
// Steps:
//  1. load the habit and its log history
//  2. derive the full period timeline
//  3. evaluate all criteria
//  4. try-unlock each earned achievement (idempotent)
//  5. publish an event per first-time unlock
type AchievementFlow struct {
	habits    habit.Repository
	logs      habit.LogRepository
	engine    *habit.StreakEngine
	evaluator *achievement.Evaluator
	unlocks   achievement.UnlockStore
	publisher shared.EventPublisher
	log       *logger.Logger
	newID     func() string
	clock     func() time.Time
}

// NewAchievementFlow creates the flow.
func NewAchievementFlow(
	habits habit.Repository,
	logs habit.LogRepository,
	engine *habit.StreakEngine,
	evaluator *achievement.Evaluator,
	unlocks achievement.UnlockStore,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *AchievementFlow {
	return &AchievementFlow{
		habits:    habits,
		logs:      logs,
		engine:    engine,
		evaluator: evaluator,
		unlocks:   unlocks,
		publisher: publisher,
		log:       log,
		newID:     uuid.NewString,
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// Run executes the flow for one habit.
func (f *AchievementFlow) Run(ctx context.Context, habitID string) error {
	// Step 1: load state.
	hb, err := f.habits.FindByID(ctx, habitID)
	if err != nil {
		return err
	}
	loc, err := hb.Location()
	if err != nil {
		return err
	}
	logs, err := f.logs.ListByHabit(ctx, habitID)
	if err != nil {
		return err
	}

	// Step 2: derive.
	d := f.engine.Derive(logs, hb.Frequency, loc, f.clock())

	// Step 3: evaluate.
	earned := f.evaluator.Evaluate(d)
	if len(earned) == 0 {
		return nil
	}

	// Steps 4-5: unlock and announce.
	for _, t := range earned {
		fresh, err := f.unlocks.TryUnlock(ctx, &achievement.Unlock{
			ID:          f.newID(),
			UserID:      hb.UserID,
			UserHabitID: hb.ID,
			Type:        t,
			UnlockedAt:  f.clock(),
		})
		if err != nil {
			f.log.Error("achievement flow: unlock failed",
				logger.String("habit_id", hb.ID),
				logger.String("type", string(t)),
				logger.Err(err))
			return err
		}
		if !fresh {
			continue
		}

		f.log.Info("achievement unlocked",
			logger.String("user_id", hb.UserID),
			logger.String("habit_id", hb.ID),
			logger.String("type", string(t)))

		bonus := 0
		if def, ok := achievement.DefinitionFor(t); ok {
			bonus = def.Points
		}
		if err := f.publisher.Publish(shared.NewAchievementUnlockedEvent(hb.UserID, hb.ID, string(t), bonus)); err != nil {
			f.log.Error("achievement flow: publish failed", logger.Err(err))
		}
	}
	return nil
}

// HandleEvent adapts the flow to the event bus: it reacts to committed
// check-ins and streak changes.
func (f *AchievementFlow) HandleEvent(event shared.Event) error {
	switch event.EventType() {
	case shared.EventCheckinRecorded, shared.EventStreakExtended, shared.EventCheckinCorrected, shared.EventCheckinDeleted:
		return f.Run(context.Background(), event.AggregateID())
	default:
		return nil
	}
}
