package habit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dailyFreq() TargetFrequency {
	return TargetFrequency{Type: FrequencyDaily, Count: 1}
}

func logAt(t time.Time, pct int) HabitLog {
	points := PointsFor(pct, 100)
	return HabitLog{
		ID:                   "log-" + t.Format("2006-01-02T15:04"),
		UserHabitID:          "habit-1",
		OccurredAt:           t,
		CompletionPercentage: pct,
		PointsEarned:         points,
	}
}

func TestDerive_EmptyHistory(t *testing.T) {
	engine := NewStreakEngine(DefaultEngineConfig())

	d := engine.Derive(nil, dailyFreq(), time.UTC, time.Now())

	assert.Equal(t, 0, d.CurrentStreak)
	assert.Equal(t, 0, d.LongestStreak)
	assert.Empty(t, d.Periods)
}

func TestDerive_ConsecutiveDays(t *testing.T) {
	engine := NewStreakEngine(DefaultEngineConfig())

	logs := []HabitLog{
		logAt(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), 100),
		logAt(time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC), 100),
		logAt(time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC), 100),
	}
	now := time.Date(2026, 3, 4, 21, 0, 0, 0, time.UTC)

	d := engine.Derive(logs, dailyFreq(), time.UTC, now)

	assert.Equal(t, 3, d.CurrentStreak)
	assert.Equal(t, 3, d.LongestStreak)
	assert.Equal(t, 3, d.TotalCompletions)
	assert.Equal(t, 30, d.TotalPoints)
	assert.Equal(t, logs[2].OccurredAt, d.LastSatisfiedAt)
}

func TestDerive_MissedDayBreaksStreak(t *testing.T) {
	engine := NewStreakEngine(DefaultEngineConfig())

	logs := []HabitLog{
		logAt(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), 100),
		logAt(time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC), 100),
		// March 4th missed.
		logAt(time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC), 100),
	}
	now := time.Date(2026, 3, 6, 12, 0, 0, 0, time.UTC)

	d := engine.Derive(logs, dailyFreq(), time.UTC, now)

	assert.Equal(t, 1, d.CurrentStreak)
	assert.Equal(t, 2, d.LongestStreak)

	status, ok := d.StatusFor("2026-03-04")
	require.True(t, ok)
	assert.Equal(t, PeriodMissed, status.State)
}

func TestDerive_PendingPeriodDoesNotBreakStreak(t *testing.T) {
	engine := NewStreakEngine(DefaultEngineConfig())

	logs := []HabitLog{
		logAt(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), 100),
		logAt(time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC), 100),
		logAt(time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC), 100),
	}
	// March 5th has no log yet but its grace window is still open.
	now := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)

	d := engine.Derive(logs, dailyFreq(), time.UTC, now)

	assert.Equal(t, 3, d.CurrentStreak)
	assert.Equal(t, 3, d.LongestStreak)

	status, ok := d.StatusFor("2026-03-05")
	require.True(t, ok)
	assert.Equal(t, PeriodPending, status.State)
}

func TestDerive_PendingPeriodDoesNotExtendLongest(t *testing.T) {
	engine := NewStreakEngine(DefaultEngineConfig())

	logs := []HabitLog{
		logAt(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), 100),
	}
	now := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)

	d := engine.Derive(logs, dailyFreq(), time.UTC, now)

	assert.Equal(t, 1, d.CurrentStreak)
	assert.Equal(t, 1, d.LongestStreak)
}

func TestDerive_GraceAttributesToPreviousDay(t *testing.T) {
	engine := NewStreakEngine(DefaultEngineConfig())

	// 00:03 on March 3rd, inside the 6h grace window: counts for March 2nd.
	logs := []HabitLog{
		logAt(time.Date(2026, 3, 3, 0, 3, 0, 0, time.UTC), 100),
	}
	now := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)

	d := engine.Derive(logs, dailyFreq(), time.UTC, now)

	status, ok := d.StatusFor("2026-03-02")
	require.True(t, ok)
	assert.Equal(t, PeriodSatisfied, status.State)
	assert.Equal(t, 1, status.Counted)
}

func TestDerive_GraceDoesNotRelaxSatisfaction(t *testing.T) {
	engine := NewStreakEngine(DefaultEngineConfig())

	// A partial check-in inside the grace window still attributes to the
	// previous day, but a 60% log does not satisfy a 100% threshold.
	logs := []HabitLog{
		logAt(time.Date(2026, 3, 3, 0, 3, 0, 0, time.UTC), 60),
	}
	now := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)

	d := engine.Derive(logs, dailyFreq(), time.UTC, now)

	status, ok := d.StatusFor("2026-03-02")
	require.True(t, ok)
	assert.Equal(t, PeriodMissed, status.State)
	assert.Equal(t, 0, status.Counted)
	assert.Equal(t, 1, status.Logged)
	// Partial points are still earned.
	assert.Equal(t, 5, d.TotalPoints)
}

func TestDerive_BackfillRepairsStreak(t *testing.T) {
	engine := NewStreakEngine(DefaultEngineConfig())
	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)

	logs := []HabitLog{
		logAt(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), 100),
		logAt(time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC), 100),
	}
	before := engine.Derive(logs, dailyFreq(), time.UTC, now)
	assert.Equal(t, 1, before.CurrentStreak)

	// Backfilling the gap day heals the run.
	logs = append(logs, logAt(time.Date(2026, 3, 3, 20, 0, 0, 0, time.UTC), 100))
	after := engine.Derive(logs, dailyFreq(), time.UTC, now)

	assert.Equal(t, 3, after.CurrentStreak)
	assert.Equal(t, 3, after.LongestStreak)
}

func TestDerive_CountCappedPerPeriod(t *testing.T) {
	engine := NewStreakEngine(DefaultEngineConfig())

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	logs := []HabitLog{
		logAt(day.Add(9*time.Hour), 100),
		logAt(day.Add(14*time.Hour), 100),
		logAt(day.Add(20*time.Hour), 100),
	}
	now := day.Add(22 * time.Hour)

	d := engine.Derive(logs, dailyFreq(), time.UTC, now)

	// Only one completion counts toward a count=1 target; every log earns points.
	assert.Equal(t, 1, d.TotalCompletions)
	assert.Equal(t, 30, d.TotalPoints)

	status, ok := d.StatusFor("2026-03-02")
	require.True(t, ok)
	assert.Equal(t, 1, status.Counted)
	assert.Equal(t, 3, status.Logged)
}

func TestDerive_WeeklyTargetCountThree(t *testing.T) {
	engine := NewStreakEngine(DefaultEngineConfig())
	freq := TargetFrequency{Type: FrequencyWeekly, Count: 3}

	// Week of 2026-03-02 (Monday): three check-ins satisfy the target.
	logs := []HabitLog{
		logAt(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), 100),
		logAt(time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC), 100),
		logAt(time.Date(2026, 3, 6, 9, 0, 0, 0, time.UTC), 100),
		// Next week: only two so far, week still open.
		logAt(time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC), 100),
		logAt(time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC), 100),
	}
	now := time.Date(2026, 3, 12, 12, 0, 0, 0, time.UTC)

	d := engine.Derive(logs, freq, time.UTC, now)

	first, ok := d.StatusFor("2026-W10")
	require.True(t, ok)
	assert.Equal(t, PeriodSatisfied, first.State)

	second, ok := d.StatusFor("2026-W11")
	require.True(t, ok)
	assert.Equal(t, PeriodPending, second.State)
	assert.Equal(t, 2, second.Counted)

	assert.Equal(t, 1, d.CurrentStreak)
	assert.Equal(t, 5, d.TotalCompletions)
}

func TestDerive_CustomScheduleSkipsOffDays(t *testing.T) {
	engine := NewStreakEngine(DefaultEngineConfig())
	freq := TargetFrequency{
		Type:         FrequencyCustom,
		Count:        1,
		SpecificDays: []int{1, 3, 5}, // Mon, Wed, Fri
	}

	// 2026-03-02 is a Monday.
	logs := []HabitLog{
		logAt(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), 100), // Mon
		logAt(time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC), 100), // Wed
		logAt(time.Date(2026, 3, 6, 9, 0, 0, 0, time.UTC), 100), // Fri
	}
	now := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC) // Saturday

	d := engine.Derive(logs, freq, time.UTC, now)

	// Tuesday and Thursday are not scheduled, so they never appear.
	require.Len(t, d.Periods, 3)
	assert.Equal(t, 3, d.CurrentStreak)
	assert.Equal(t, 3, d.LongestStreak)
}

func TestDerive_CustomOffDayLogAttachesToRecentScheduledDay(t *testing.T) {
	engine := NewStreakEngine(DefaultEngineConfig())
	freq := TargetFrequency{
		Type:         FrequencyCustom,
		Count:        1,
		SpecificDays: []int{1}, // Monday only
	}

	// A Wednesday check-in counts toward the most recent Monday.
	logs := []HabitLog{
		logAt(time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC), 100),
	}
	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)

	d := engine.Derive(logs, freq, time.UTC, now)

	status, ok := d.StatusFor("2026-03-02")
	require.True(t, ok)
	assert.Equal(t, PeriodSatisfied, status.State)
}

func TestDerive_IgnoresStaleStoredPeriodKeys(t *testing.T) {
	engine := NewStreakEngine(DefaultEngineConfig())

	// The stored key points at a week (stale after a target change from
	// weekly to daily); derivation recomputes keys from occurred_at.
	l := logAt(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), 100)
	l.PeriodKey = "2026-W10"
	now := time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC)

	d := engine.Derive([]HabitLog{l}, dailyFreq(), time.UTC, now)

	_, stale := d.StatusFor("2026-W10")
	assert.False(t, stale)
	status, ok := d.StatusFor("2026-03-02")
	require.True(t, ok)
	assert.Equal(t, PeriodSatisfied, status.State)
}

func TestDerive_Deterministic(t *testing.T) {
	engine := NewStreakEngine(DefaultEngineConfig())
	now := time.Date(2026, 3, 6, 12, 0, 0, 0, time.UTC)

	logs := []HabitLog{
		logAt(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), 100),
		logAt(time.Date(2026, 3, 3, 22, 0, 0, 0, time.UTC), 100),
		logAt(time.Date(2026, 3, 4, 6, 30, 0, 0, time.UTC), 80),
		logAt(time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC), 100),
	}
	reversed := []HabitLog{logs[3], logs[2], logs[1], logs[0]}

	a := engine.Derive(logs, dailyFreq(), time.UTC, now)
	b := engine.Derive(reversed, dailyFreq(), time.UTC, now)

	assert.Equal(t, a, b)
}

func TestDerive_CustomThreshold(t *testing.T) {
	engine := NewStreakEngine(EngineConfig{Grace: 6 * time.Hour, SatisfactionThreshold: 80})

	logs := []HabitLog{
		logAt(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), 85),
		logAt(time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC), 79),
	}
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	d := engine.Derive(logs, dailyFreq(), time.UTC, now)

	assert.True(t, d.IsSatisfied("2026-03-02"))
	assert.False(t, d.IsSatisfied("2026-03-03"))
}

func TestNewStreakEngine_ClampsConfig(t *testing.T) {
	engine := NewStreakEngine(EngineConfig{Grace: -time.Hour, SatisfactionThreshold: 150})

	cfg := engine.Config()
	assert.Equal(t, time.Duration(0), cfg.Grace)
	assert.Equal(t, 100, cfg.SatisfactionThreshold)
}
