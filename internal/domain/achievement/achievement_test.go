package achievement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habitloop/habitloop-core/internal/domain/habit"
)

func periods(states ...habit.PeriodState) []habit.PeriodStatus {
	out := make([]habit.PeriodStatus, 0, len(states))
	for _, s := range states {
		out = append(out, habit.PeriodStatus{State: s})
	}
	return out
}

func repeat(s habit.PeriodState, n int) []habit.PeriodState {
	out := make([]habit.PeriodState, n)
	for i := range out {
		out[i] = s
	}
	return out
}

func TestCatalog_Complete(t *testing.T) {
	require.Len(t, Catalog, 8)
	seen := make(map[Type]bool)
	for _, d := range Catalog {
		assert.NotEmpty(t, d.Title)
		assert.Greater(t, d.Points, 0)
		assert.False(t, seen[d.Type], "duplicate type %s", d.Type)
		seen[d.Type] = true
	}

	def, ok := DefinitionFor(Streak7)
	require.True(t, ok)
	assert.Equal(t, 50, def.Points)

	_, ok = DefinitionFor("unknown")
	assert.False(t, ok)
}

func TestEvaluate_FirstCheckin(t *testing.T) {
	e := NewEvaluator()

	assert.Empty(t, e.Evaluate(habit.Derivation{}))

	earned := e.Evaluate(habit.Derivation{TotalCompletions: 1})
	assert.Equal(t, []Type{FirstCheckin}, earned)
}

func TestEvaluate_StreakThresholds(t *testing.T) {
	e := NewEvaluator()

	tests := []struct {
		longest int
		want    []Type
	}{
		{2, nil},
		{3, []Type{Streak3}},
		{7, []Type{Streak3, Streak7}},
		{30, []Type{Streak3, Streak7, Streak30}},
		{100, []Type{Streak3, Streak7, Streak30, Streak100}},
	}
	for _, tt := range tests {
		earned := e.Evaluate(habit.Derivation{LongestStreak: tt.longest})
		assert.Equal(t, tt.want, earned, "longest streak %d", tt.longest)
	}
}

func TestEvaluate_CompletionMilestones(t *testing.T) {
	e := NewEvaluator()

	earned := e.Evaluate(habit.Derivation{TotalCompletions: 50})
	assert.Contains(t, earned, Completions50)
	assert.NotContains(t, earned, Completions250)

	earned = e.Evaluate(habit.Derivation{TotalCompletions: 250})
	assert.Contains(t, earned, Completions250)
}

func TestEvaluate_Comeback(t *testing.T) {
	e := NewEvaluator()

	// 7 missed periods, then 3 satisfied in a row.
	states := append(repeat(habit.PeriodMissed, 7), repeat(habit.PeriodSatisfied, 3)...)
	d := habit.Derivation{Periods: periods(states...)}
	assert.Contains(t, e.Evaluate(d), Comeback)

	// Only 6 missed: not a comeback.
	states = append(repeat(habit.PeriodMissed, 6), repeat(habit.PeriodSatisfied, 3)...)
	d = habit.Derivation{Periods: periods(states...)}
	assert.NotContains(t, e.Evaluate(d), Comeback)

	// Gap split by a satisfied period never reaches 7 in a row.
	states = append(repeat(habit.PeriodMissed, 4), habit.PeriodSatisfied)
	states = append(states, repeat(habit.PeriodMissed, 4)...)
	states = append(states, repeat(habit.PeriodSatisfied, 3)...)
	d = habit.Derivation{Periods: periods(states...)}
	assert.NotContains(t, e.Evaluate(d), Comeback)

	// Only 2 satisfied after the gap: not yet.
	states = append(repeat(habit.PeriodMissed, 9), repeat(habit.PeriodSatisfied, 2)...)
	d = habit.Derivation{Periods: periods(states...)}
	assert.NotContains(t, e.Evaluate(d), Comeback)
}

func TestEvaluate_ComebackIgnoresPending(t *testing.T) {
	e := NewEvaluator()

	// A pending period inside the recovery run neither breaks nor counts.
	states := append(repeat(habit.PeriodMissed, 7), habit.PeriodSatisfied, habit.PeriodSatisfied,
		habit.PeriodPending, habit.PeriodSatisfied)
	d := habit.Derivation{Periods: periods(states...)}

	assert.Contains(t, e.Evaluate(d), Comeback)
}
