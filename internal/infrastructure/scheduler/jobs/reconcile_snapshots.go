// Package jobs contains the scheduled background jobs of HabitLoop Core.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/habitloop/habitloop-core/internal/domain/habit"
	"github.com/habitloop/habitloop-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE SNAPSHOTS JOB
// ══════════════════════════════════════════════════════════════════════════════

// ReconcileSnapshotsJob re-derives every active habit's snapshot from its
// logs and repairs drift. Drift appears when a period closes by the clock
// alone (no write happened to refresh the cache) or after a partial
// failure. Logs stay the source of truth; this job keeps the cache honest.
type ReconcileSnapshotsJob struct {
	habits    habit.Repository
	logs      habit.LogRepository
	engine    *habit.StreakEngine
	publisher shared.EventPublisher
	logger    *slog.Logger
}

// NewReconcileSnapshotsJob creates the job.
func NewReconcileSnapshotsJob(
	habits habit.Repository,
	logs habit.LogRepository,
	engine *habit.StreakEngine,
	publisher shared.EventPublisher,
	logger *slog.Logger,
) *ReconcileSnapshotsJob {
	return &ReconcileSnapshotsJob{
		habits:    habits,
		logs:      logs,
		engine:    engine,
		publisher: publisher,
		logger:    logger,
	}
}

// Name implements scheduler.Job.
func (j *ReconcileSnapshotsJob) Name() string { return "reconcile_snapshots" }

// Description implements scheduler.Job.
func (j *ReconcileSnapshotsJob) Description() string {
	return "re-derives streak snapshots from habit logs and repairs drift"
}

// Run implements scheduler.Job.
func (j *ReconcileSnapshotsJob) Run(ctx context.Context) error {
	habits, err := j.habits.FindActive(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: load active habits: %w", err)
	}

	var checked, repaired, failed int
	now := time.Now().UTC()

	for _, hb := range habits {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		checked++
		drifted, err := j.reconcileOne(ctx, hb, now)
		if err != nil {
			failed++
			j.logger.Error("reconcile failed for habit",
				"habit_id", hb.ID, "error", err)
			continue
		}
		if drifted {
			repaired++
		}
	}

	j.logger.Info("reconcile_snapshots completed",
		"checked", checked, "repaired", repaired, "failed", failed)
	return nil
}

func (j *ReconcileSnapshotsJob) reconcileOne(ctx context.Context, hb *habit.UserHabit, now time.Time) (bool, error) {
	loc, err := hb.Location()
	if err != nil {
		return false, err
	}
	logs, err := j.logs.ListByHabit(ctx, hb.ID)
	if err != nil {
		return false, err
	}

	d := j.engine.Derive(logs, hb.Frequency, loc, now)
	if d.CurrentStreak == hb.Snapshot.CurrentStreak &&
		d.LongestStreak == hb.Snapshot.LongestStreak &&
		d.TotalCompletions == hb.Snapshot.TotalCompletions &&
		d.TotalPoints == hb.Snapshot.RewardPoints {
		return false, nil
	}

	oldCurrent := hb.Snapshot.CurrentStreak
	oldLongest := hb.Snapshot.LongestStreak

	hb.ApplySnapshot(d, d.TotalPoints, now)
	if err := j.habits.Update(ctx, hb); err != nil {
		// A concurrent check-in already refreshed the snapshot; the
		// next pass will verify it.
		if shared.IsConflict(err) {
			return false, nil
		}
		return false, err
	}

	j.logger.Warn("snapshot drift repaired",
		"habit_id", hb.ID,
		"old_current", oldCurrent, "new_current", d.CurrentStreak,
		"old_longest", oldLongest, "new_longest", d.LongestStreak)

	if err := j.publisher.Publish(shared.NewSnapshotReconciledEvent(
		hb.ID, hb.UserID, oldCurrent, d.CurrentStreak, oldLongest, d.LongestStreak)); err != nil {
		j.logger.Error("failed to publish reconcile event", "error", err)
	}
	return true, nil
}
