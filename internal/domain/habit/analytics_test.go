package habit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deriveDaily(t *testing.T, engine *StreakEngine, pcts []int, now time.Time) Derivation {
	t.Helper()
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	logs := make([]HabitLog, 0, len(pcts))
	for i, pct := range pcts {
		if pct < 0 {
			continue // skipped day
		}
		logs = append(logs, logAt(start.AddDate(0, 0, i), pct))
	}
	return engine.Derive(logs, dailyFreq(), time.UTC, now)
}

func TestCompletionRate_ResolvedPeriodsOnly(t *testing.T) {
	engine := NewStreakEngine(DefaultEngineConfig())
	analyzer := NewAnalyzer(engine)

	// Four resolved days: satisfied, missed, satisfied, satisfied.
	// The fifth day is still pending and must not dilute the rate.
	now := time.Date(2026, 3, 6, 10, 0, 0, 0, time.UTC)
	d := deriveDaily(t, engine, []int{100, 50, 100, 100}, now)

	require.Len(t, d.Periods, 5)
	assert.Equal(t, PeriodPending, d.Periods[4].State)

	assert.InDelta(t, 0.75, analyzer.CompletionRate(d, 0), 1e-9)
	assert.InDelta(t, 1.0, analyzer.CompletionRate(d, 2), 1e-9)
}

func TestCompletionRate_Empty(t *testing.T) {
	engine := NewStreakEngine(DefaultEngineConfig())
	analyzer := NewAnalyzer(engine)

	assert.Equal(t, 0.0, analyzer.CompletionRate(Derivation{}, 0))
}

func TestCompletionRateBetween(t *testing.T) {
	engine := NewStreakEngine(DefaultEngineConfig())
	analyzer := NewAnalyzer(engine)

	// Days from 2026-03-02: satisfied, missed, satisfied, satisfied;
	// 2026-03-06 is still pending.
	now := time.Date(2026, 3, 6, 10, 0, 0, 0, time.UTC)
	d := deriveDaily(t, engine, []int{100, 50, 100, 100}, now)

	day := func(dom int) time.Time {
		return time.Date(2026, 3, dom, 0, 0, 0, 0, time.UTC)
	}

	// Window over the missed day and one satisfied day.
	assert.InDelta(t, 0.5, analyzer.CompletionRateBetween(d, day(3), day(5)), 1e-9)

	// Full history window matches the lifetime rate.
	assert.InDelta(t, 0.75, analyzer.CompletionRateBetween(d, day(2), day(6)), 1e-9)

	// A window over the pending day alone has no verdicts yet.
	assert.Equal(t, 0.0, analyzer.CompletionRateBetween(d, day(6), day(7)))

	// A window before any history is empty.
	assert.Equal(t, 0.0, analyzer.CompletionRateBetween(d, day(1).AddDate(0, -1, 0), day(1)))
}

func TestRiskScore_NoHistory(t *testing.T) {
	engine := NewStreakEngine(DefaultEngineConfig())
	analyzer := NewAnalyzer(engine)

	score := analyzer.RiskScore(Derivation{}, dailyFreq(), time.UTC, time.Now())
	assert.InDelta(t, 0.8, score, 1e-9)
}

func TestRiskScore_GrowsAsDeadlineApproaches(t *testing.T) {
	engine := NewStreakEngine(DefaultEngineConfig())
	analyzer := NewAnalyzer(engine)

	morning := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 3, 5, 23, 0, 0, 0, time.UTC)

	dMorning := deriveDaily(t, engine, []int{100, 100, 100}, morning)
	dEvening := deriveDaily(t, engine, []int{100, 100, 100}, evening)

	early := analyzer.RiskScore(dMorning, dailyFreq(), time.UTC, morning)
	late := analyzer.RiskScore(dEvening, dailyFreq(), time.UTC, evening)

	assert.Less(t, early, late)
}

func TestRiskScore_LowWhenCurrentPeriodSatisfied(t *testing.T) {
	engine := NewStreakEngine(DefaultEngineConfig())
	analyzer := NewAnalyzer(engine)

	now := time.Date(2026, 3, 5, 21, 0, 0, 0, time.UTC)
	d := deriveDaily(t, engine, []int{100, 100, 100, 100}, now)

	score := analyzer.RiskScore(d, dailyFreq(), time.UTC, now)
	assert.Less(t, score, 0.2)
}

func TestRiskScore_Bounded(t *testing.T) {
	engine := NewStreakEngine(DefaultEngineConfig())
	analyzer := NewAnalyzer(engine)

	// Lifetime rate high, recent collapsed, deadline nearly past.
	now := time.Date(2026, 3, 13, 5, 0, 0, 0, time.UTC)
	d := deriveDaily(t, engine, []int{100, 100, 100, 100, 100, 100, 100, 0, 0, 0, 0}, now)

	score := analyzer.RiskScore(d, dailyFreq(), time.UTC, now)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
	assert.Greater(t, score, 0.7)
}

func TestDifficultyAdjustment(t *testing.T) {
	engine := NewStreakEngine(DefaultEngineConfig())
	analyzer := NewAnalyzer(engine)
	// All four logged days are resolved; the current day is still pending.
	now := time.Date(2026, 3, 6, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		pcts []int
		want int
	}{
		{"perfect run", []int{100, 100, 100, 100}, 2},
		{"three of four", []int{100, 100, 0, 100}, 1},
		{"half", []int{100, 0, 100, 0}, 0},
		{"one of four", []int{100, 0, 0, 0}, -1},
		{"total failure", []int{0, 0, 0, 0}, -2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := deriveDaily(t, engine, tt.pcts, now)
			assert.Equal(t, tt.want, analyzer.DifficultyAdjustment(d))
		})
	}
}

func TestDifficultyAdjustment_TooFewPeriods(t *testing.T) {
	engine := NewStreakEngine(DefaultEngineConfig())
	analyzer := NewAnalyzer(engine)

	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	d := deriveDaily(t, engine, []int{0, 0}, now)

	assert.Equal(t, 0, analyzer.DifficultyAdjustment(d))
}

func TestConsistency_Empty(t *testing.T) {
	analyzer := NewAnalyzer(NewStreakEngine(DefaultEngineConfig()))

	r := analyzer.Consistency(nil, time.UTC)

	assert.Equal(t, VeryInconsistent, r.Label)
	assert.Equal(t, 0, r.BestWeekday)
	assert.Equal(t, -1, r.BestHour)
}

func TestConsistency_SteadyDailyRhythm(t *testing.T) {
	analyzer := NewAnalyzer(NewStreakEngine(DefaultEngineConfig()))

	var logs []HabitLog
	start := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC) // Monday 07:00
	for i := 0; i < 14; i++ {
		logs = append(logs, logAt(start.AddDate(0, 0, i), 100))
	}

	r := analyzer.Consistency(logs, time.UTC)

	assert.Equal(t, VeryConsistent, r.Label)
	assert.InDelta(t, 0.0, r.IntervalCV, 1e-9)
	assert.Equal(t, 7, r.BestHour)
	assert.Equal(t, 2, r.ByWeekday[0]) // two Mondays
	assert.Equal(t, 14, r.ByHour[7])
}

func TestConsistency_ErraticPattern(t *testing.T) {
	analyzer := NewAnalyzer(NewStreakEngine(DefaultEngineConfig()))

	logs := []HabitLog{
		logAt(time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC), 100),
		logAt(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), 100),
		logAt(time.Date(2026, 3, 9, 22, 0, 0, 0, time.UTC), 100),
		logAt(time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC), 100),
	}

	r := analyzer.Consistency(logs, time.UTC)

	assert.Equal(t, VeryInconsistent, r.Label)
	assert.Greater(t, r.IntervalCV, 1.0)
}

func TestConsistency_FewLogsAlwaysInconsistent(t *testing.T) {
	analyzer := NewAnalyzer(NewStreakEngine(DefaultEngineConfig()))

	logs := []HabitLog{
		logAt(time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC), 100),
		logAt(time.Date(2026, 3, 3, 7, 0, 0, 0, time.UTC), 100),
	}

	r := analyzer.Consistency(logs, time.UTC)

	assert.Equal(t, VeryInconsistent, r.Label)
	assert.Equal(t, 1.0, r.IntervalCV)
}
