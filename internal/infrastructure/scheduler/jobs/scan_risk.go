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
// SCAN RISK JOB
// ══════════════════════════════════════════════════════════════════════════════

// ScanRiskJob scores every active habit's streak-break risk and emits a
// risk.high event for habits above the alert threshold. Downstream sinks
// (push notifications, coaching) decide what to do with it; the job itself
// never mutates habit state.
type ScanRiskJob struct {
	habits    habit.Repository
	logs      habit.LogRepository
	engine    *habit.StreakEngine
	analyzer  *habit.Analyzer
	publisher shared.EventPublisher
	logger    *slog.Logger

	// threshold is the minimum risk score that triggers an alert.
	threshold float64
}

// NewScanRiskJob creates the job. A threshold outside (0, 1] falls back
// to 0.7.
func NewScanRiskJob(
	habits habit.Repository,
	logs habit.LogRepository,
	engine *habit.StreakEngine,
	analyzer *habit.Analyzer,
	publisher shared.EventPublisher,
	logger *slog.Logger,
	threshold float64,
) *ScanRiskJob {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.7
	}
	return &ScanRiskJob{
		habits:    habits,
		logs:      logs,
		engine:    engine,
		analyzer:  analyzer,
		publisher: publisher,
		logger:    logger,
		threshold: threshold,
	}
}

// Name implements scheduler.Job.
func (j *ScanRiskJob) Name() string { return "scan_risk" }

// Description implements scheduler.Job.
func (j *ScanRiskJob) Description() string {
	return "scores streak-break risk and alerts on habits above the threshold"
}

// Run implements scheduler.Job.
func (j *ScanRiskJob) Run(ctx context.Context) error {
	habits, err := j.habits.FindActive(ctx)
	if err != nil {
		return fmt.Errorf("scan_risk: load active habits: %w", err)
	}

	var scanned, alerted int
	now := time.Now().UTC()

	for _, hb := range habits {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		scanned++
		score, deadline, err := j.scoreOne(ctx, hb, now)
		if err != nil {
			j.logger.Error("risk scoring failed", "habit_id", hb.ID, "error", err)
			continue
		}
		if score < j.threshold {
			continue
		}

		alerted++
		if err := j.publisher.Publish(shared.NewRiskHighEvent(
			hb.ID, hb.UserID, score, hb.Snapshot.CurrentStreak, deadline)); err != nil {
			j.logger.Error("failed to publish risk event", "habit_id", hb.ID, "error", err)
		}
	}

	j.logger.Info("scan_risk completed", "scanned", scanned, "alerted", alerted)
	return nil
}

func (j *ScanRiskJob) scoreOne(ctx context.Context, hb *habit.UserHabit, now time.Time) (float64, time.Time, error) {
	loc, err := hb.Location()
	if err != nil {
		return 0, time.Time{}, err
	}
	logs, err := j.logs.ListByHabit(ctx, hb.ID)
	if err != nil {
		return 0, time.Time{}, err
	}

	d := j.engine.Derive(logs, hb.Frequency, loc, now)
	score := j.analyzer.RiskScore(d, hb.Frequency, loc, now)

	part := habit.NewPartitioner(hb.Frequency, loc, j.engine.Config().Grace)
	deadline := part.GraceDeadline(part.Current(now))

	return score, deadline, nil
}
