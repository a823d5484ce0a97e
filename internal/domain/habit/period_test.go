package habit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriod_ContainsHalfOpen(t *testing.T) {
	p := Period{
		Key:   "2026-03-02",
		Start: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC),
	}

	assert.True(t, p.Contains(p.Start))
	assert.True(t, p.Contains(p.End.Add(-time.Nanosecond)))
	assert.False(t, p.Contains(p.End))
	assert.False(t, p.Contains(p.Start.Add(-time.Nanosecond)))
}

func TestPartitioner_DailyPeriodFor(t *testing.T) {
	part := NewPartitioner(dailyFreq(), time.UTC, 6*time.Hour)

	per := part.PeriodFor(time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC))

	assert.Equal(t, "2026-03-02", per.Key)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), per.Start)
	assert.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), per.End)
}

func TestPartitioner_GraceWindowAttribution(t *testing.T) {
	part := NewPartitioner(dailyFreq(), time.UTC, 6*time.Hour)

	// Inside the window: previous day.
	per := part.PeriodFor(time.Date(2026, 3, 3, 0, 3, 0, 0, time.UTC))
	assert.Equal(t, "2026-03-02", per.Key)

	// Exactly at the window edge: the new day.
	per = part.PeriodFor(time.Date(2026, 3, 3, 6, 0, 0, 0, time.UTC))
	assert.Equal(t, "2026-03-03", per.Key)

	// Zero grace: attribution never shifts.
	noGrace := NewPartitioner(dailyFreq(), time.UTC, 0)
	per = noGrace.PeriodFor(time.Date(2026, 3, 3, 0, 3, 0, 0, time.UTC))
	assert.Equal(t, "2026-03-03", per.Key)
}

func TestPartitioner_WeeklyGraceAttribution(t *testing.T) {
	freq := TargetFrequency{Type: FrequencyWeekly, Count: 1}
	part := NewPartitioner(freq, time.UTC, 6*time.Hour)

	// Monday 02:00 still belongs to the previous ISO week.
	per := part.PeriodFor(time.Date(2026, 3, 9, 2, 0, 0, 0, time.UTC))
	assert.Equal(t, "2026-W10", per.Key)

	per = part.PeriodFor(time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC))
	assert.Equal(t, "2026-W11", per.Key)
}

func TestPartitioner_CustomGraceRequiresAdjacency(t *testing.T) {
	// Mon+Tue schedule: Tuesday 00:30 reattributes to Monday.
	adjacent := NewPartitioner(TargetFrequency{
		Type: FrequencyCustom, Count: 1, SpecificDays: []int{1, 2},
	}, time.UTC, 6*time.Hour)

	per := adjacent.PeriodFor(time.Date(2026, 3, 3, 0, 30, 0, 0, time.UTC))
	assert.Equal(t, "2026-03-02", per.Key)

	// Mon+Fri schedule: Friday 00:30 stays on Friday because the prior
	// scheduled day is not adjacent.
	gapped := NewPartitioner(TargetFrequency{
		Type: FrequencyCustom, Count: 1, SpecificDays: []int{1, 5},
	}, time.UTC, 6*time.Hour)

	per = gapped.PeriodFor(time.Date(2026, 3, 6, 0, 30, 0, 0, time.UTC))
	assert.Equal(t, "2026-03-06", per.Key)
}

func TestPartitioner_CustomOffDayWalksBack(t *testing.T) {
	part := NewPartitioner(TargetFrequency{
		Type: FrequencyCustom, Count: 1, SpecificDays: []int{1},
	}, time.UTC, 6*time.Hour)

	// Sunday log attaches to the previous Monday.
	per := part.PeriodFor(time.Date(2026, 3, 8, 15, 0, 0, 0, time.UTC))
	assert.Equal(t, "2026-03-02", per.Key)
}

func TestPartitioner_NextPrevious(t *testing.T) {
	daily := NewPartitioner(dailyFreq(), time.UTC, 0)
	day := daily.PeriodFor(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))

	assert.Equal(t, "2026-03-03", daily.Next(day).Key)
	assert.Equal(t, "2026-03-01", daily.Previous(day).Key)

	weekly := NewPartitioner(TargetFrequency{Type: FrequencyWeekly, Count: 1}, time.UTC, 0)
	week := weekly.PeriodFor(time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC))

	require.Equal(t, "2026-W10", week.Key)
	assert.Equal(t, "2026-W11", weekly.Next(week).Key)
	assert.Equal(t, "2026-W09", weekly.Previous(week).Key)

	custom := NewPartitioner(TargetFrequency{
		Type: FrequencyCustom, Count: 1, SpecificDays: []int{1, 5},
	}, time.UTC, 0)
	mon := custom.PeriodFor(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))

	assert.Equal(t, "2026-03-06", custom.Next(mon).Key)
	assert.Equal(t, "2026-02-27", custom.Previous(mon).Key)
}

func TestPartitioner_IsResolved(t *testing.T) {
	part := NewPartitioner(dailyFreq(), time.UTC, 6*time.Hour)
	per := part.PeriodFor(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))

	deadline := time.Date(2026, 3, 3, 6, 0, 0, 0, time.UTC)
	assert.Equal(t, deadline, part.GraceDeadline(per))

	assert.False(t, part.IsResolved(per, deadline.Add(-time.Minute)))
	assert.True(t, part.IsResolved(per, deadline))
}

func TestPartitioner_IsBackfill(t *testing.T) {
	part := NewPartitioner(dailyFreq(), time.UTC, 6*time.Hour)
	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)

	assert.True(t, part.IsBackfill(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), now))
	assert.False(t, part.IsBackfill(time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC), now))
}

func TestPartitioner_TimezoneBoundaries(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	part := NewPartitioner(dailyFreq(), loc, 0)

	// 03:00 UTC on March 3rd is 22:00 on March 2nd in New York.
	per := part.PeriodFor(time.Date(2026, 3, 3, 3, 0, 0, 0, time.UTC))
	assert.Equal(t, "2026-03-02", per.Key)
}
