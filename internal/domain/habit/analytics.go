package habit

import (
	"math"
	"sort"
	"time"

	"github.com/habitloop/habitloop-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ANALYZER
// Чистая аналитика поверх Derivation и истории логов. Читает, никогда
// не пишет: оценки риска и рекомендации не трогают снапшот.
// ══════════════════════════════════════════════════════════════════════════════

// ConsistencyLabel - словесная оценка регулярности выполнения.
type ConsistencyLabel string

const (
	VeryConsistent     ConsistencyLabel = "very_consistent"
	Consistent         ConsistencyLabel = "consistent"
	SomewhatConsistent ConsistencyLabel = "somewhat_consistent"
	Inconsistent       ConsistencyLabel = "inconsistent"
	VeryInconsistent   ConsistencyLabel = "very_inconsistent"
)

// ConsistencyReport - паттерн выполнения привычки.
type ConsistencyReport struct {
	// ByWeekday - число логов по дням недели (индекс 0 = понедельник).
	ByWeekday [7]int

	// ByHour - число логов по часам суток в поясе пользователя.
	ByHour [24]int

	// BestWeekday - самый продуктивный день (ISO, 1 = понедельник; 0 если логов нет).
	BestWeekday int

	// BestHour - самый продуктивный час (-1 если логов нет).
	BestHour int

	// IntervalCV - коэффициент вариации интервалов между чек-инами.
	// Чем меньше, тем ровнее ритм.
	IntervalCV float64

	// Label - итоговая оценка по IntervalCV.
	Label ConsistencyLabel
}

// Analyzer вычисляет производную аналитику привычки.
type Analyzer struct {
	engine *StreakEngine
}

// NewAnalyzer создаёт Analyzer поверх движка серий.
func NewAnalyzer(engine *StreakEngine) *Analyzer {
	return &Analyzer{engine: engine}
}

// CompletionRate - доля зачтённых периодов среди закрытых.
// lastN > 0 ограничивает расчёт последними N закрытыми периодами.
// Pending-периоды в расчёт не входят: по ним ещё нет вердикта.
func (a *Analyzer) CompletionRate(d Derivation, lastN int) float64 {
	resolved := make([]PeriodStatus, 0, len(d.Periods))
	for _, ps := range d.Periods {
		if ps.State != PeriodPending {
			resolved = append(resolved, ps)
		}
	}
	if lastN > 0 && len(resolved) > lastN {
		resolved = resolved[len(resolved)-lastN:]
	}
	if len(resolved) == 0 {
		return 0
	}
	satisfied := 0
	for _, ps := range resolved {
		if ps.State == PeriodSatisfied {
			satisfied++
		}
	}
	return float64(satisfied) / float64(len(resolved))
}

// CompletionRateBetween - доля зачтённых периодов среди закрытых,
// пересекающихся с окном [start, end). Pending-периоды, как и в
// CompletionRate, в расчёт не входят.
func (a *Analyzer) CompletionRateBetween(d Derivation, start, end time.Time) float64 {
	resolved, satisfied := 0, 0
	for _, ps := range d.Periods {
		if ps.State == PeriodPending {
			continue
		}
		if !ps.Period.Start.Before(end) || !start.Before(ps.Period.End) {
			continue
		}
		resolved++
		if ps.State == PeriodSatisfied {
			satisfied++
		}
	}
	if resolved == 0 {
		return 0
	}
	return float64(satisfied) / float64(resolved)
}

// Consistency строит отчёт о регулярности по истории логов.
func (a *Analyzer) Consistency(logs []HabitLog, loc *time.Location) ConsistencyReport {
	r := ConsistencyReport{BestHour: -1}
	if len(logs) == 0 {
		r.Label = VeryInconsistent
		return r
	}
	if loc == nil {
		loc = time.UTC
	}

	sorted := make([]HabitLog, len(logs))
	copy(sorted, logs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].OccurredAt.Before(sorted[j].OccurredAt)
	})

	for _, l := range sorted {
		local := l.OccurredAt.In(loc)
		r.ByWeekday[timeutil.Weekday(local, loc)-1]++
		r.ByHour[local.Hour()]++
	}
	best := 0
	for i, n := range r.ByWeekday {
		if n > r.ByWeekday[best] {
			best = i
		}
	}
	r.BestWeekday = best + 1
	bestHour := 0
	for i, n := range r.ByHour {
		if n > r.ByHour[bestHour] {
			bestHour = i
		}
	}
	r.BestHour = bestHour

	r.IntervalCV = intervalCV(sorted)
	r.Label = labelFor(r.IntervalCV, len(sorted))
	return r
}

// intervalCV - коэффициент вариации интервалов между соседними логами.
func intervalCV(sorted []HabitLog) float64 {
	if len(sorted) < 3 {
		return 1.0
	}
	gaps := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		gaps = append(gaps, sorted[i].OccurredAt.Sub(sorted[i-1].OccurredAt).Hours())
	}
	mean := 0.0
	for _, g := range gaps {
		mean += g
	}
	mean /= float64(len(gaps))
	if mean == 0 {
		return 0
	}
	variance := 0.0
	for _, g := range gaps {
		variance += (g - mean) * (g - mean)
	}
	variance /= float64(len(gaps))
	return math.Sqrt(variance) / mean
}

func labelFor(cv float64, n int) ConsistencyLabel {
	if n < 3 {
		return VeryInconsistent
	}
	switch {
	case cv < 0.25:
		return VeryConsistent
	case cv < 0.50:
		return Consistent
	case cv < 0.75:
		return SomewhatConsistent
	case cv < 1.00:
		return Inconsistent
	default:
		return VeryInconsistent
	}
}

// RiskScore оценивает риск разрыва серии, [0, 1].
//
// Составляющие:
//   - 0.5 * доля истёкшего grace-окна текущего периода
//     (монотонно растёт по мере приближения дедлайна);
//   - 0.3 * просадка недавнего completion rate против пожизненного;
//   - 0.2 * если текущий период всё ещё не зачтён.
//
// Для привычки без единого лога возвращается 0.8.
func (a *Analyzer) RiskScore(d Derivation, freq TargetFrequency, loc *time.Location, now time.Time) float64 {
	if len(d.Periods) == 0 {
		return 0.8
	}

	part := NewPartitioner(freq, loc, a.engine.Config().Grace)
	cur := part.Current(now)

	unsatisfied := 1.0
	if d.IsSatisfied(cur.Key) {
		unsatisfied = 0
	}
	elapsed := timeutil.FractionElapsed(now, cur.Start, part.GraceDeadline(cur))

	lifetime := a.CompletionRate(d, 0)
	recent := a.CompletionRate(d, 7)
	decline := lifetime - recent
	if decline < 0 {
		decline = 0
	}

	score := 0.5*elapsed*unsatisfied + 0.3*decline + 0.2*unsatisfied
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

// DifficultyAdjustment - рекомендация по сложности в диапазоне [-2, +2]
// по последним закрытым периодам: стабильный успех - усложнить,
// стабильный провал - упростить. Одни рекомендации, цель не меняется.
func (a *Analyzer) DifficultyAdjustment(d Derivation) int {
	const window = 4

	resolved := 0
	for _, ps := range d.Periods {
		if ps.State != PeriodPending {
			resolved++
		}
	}
	if resolved < window {
		return 0
	}

	rate := a.CompletionRate(d, window)
	switch {
	case rate >= 1.0:
		return 2
	case rate >= 0.75:
		return 1
	case rate >= 0.50:
		return 0
	case rate >= 0.25:
		return -1
	default:
		return -2
	}
}
