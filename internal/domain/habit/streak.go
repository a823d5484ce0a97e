package habit

import (
	"sort"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK ENGINE
// Чистая функция над неизменяемой историей логов. Движок не знает про
// хранилище и транзакции: на вход логи и частота, на выходе Derivation.
// Пересчёт всегда полный - корректность важнее экономии на инкрементах.
// ══════════════════════════════════════════════════════════════════════════════

// EngineConfig - параметры движка серий.
type EngineConfig struct {
	// Grace - окно после границы периода, в котором чек-ин ещё
	// относится к предыдущему периоду. Только атрибуция, не зачёт.
	Grace time.Duration

	// SatisfactionThreshold - минимальный процент выполнения,
	// при котором лог считается зачётным.
	SatisfactionThreshold int
}

// DefaultEngineConfig возвращает параметры по умолчанию:
// grace 6 часов, зачёт только при 100% выполнения.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Grace:                 6 * time.Hour,
		SatisfactionThreshold: 100,
	}
}

// PeriodStatus - состояние одного периода в выведенной истории.
type PeriodStatus struct {
	Period Period

	// State - satisfied / missed / pending.
	State PeriodState

	// Counted - сколько зачётных логов учтено (не больше цели).
	Counted int

	// Logged - сколько всего логов попало в период.
	Logged int
}

// Derivation - полный результат пересчёта серий из истории логов.
type Derivation struct {
	// CurrentStreak - текущая серия зачтённых периодов.
	CurrentStreak int

	// LongestStreak - максимальная серия за всю историю.
	LongestStreak int

	// TotalCompletions - всего учтённых зачётных логов.
	TotalCompletions int

	// TotalPoints - сумма очков по всем логам.
	TotalPoints int

	// LastSatisfiedAt - момент последнего зачётного лога
	// в последнем зачтённом периоде.
	LastSatisfiedAt time.Time

	// Periods - хронология периодов от первого лога до текущего момента.
	Periods []PeriodStatus
}

// StatusFor возвращает состояние периода по его ключу.
func (d Derivation) StatusFor(key string) (PeriodStatus, bool) {
	for _, ps := range d.Periods {
		if ps.Period.Key == key {
			return ps, true
		}
	}
	return PeriodStatus{}, false
}

// IsSatisfied возвращает true, если период с данным ключом зачтён.
func (d Derivation) IsSatisfied(key string) bool {
	ps, ok := d.StatusFor(key)
	return ok && ps.State == PeriodSatisfied
}

// StreakEngine пересчитывает серии.
type StreakEngine struct {
	cfg EngineConfig
}

// NewStreakEngine создаёт движок.
func NewStreakEngine(cfg EngineConfig) *StreakEngine {
	if cfg.Grace < 0 {
		cfg.Grace = 0
	}
	if cfg.SatisfactionThreshold <= 0 || cfg.SatisfactionThreshold > 100 {
		cfg.SatisfactionThreshold = 100
	}
	return &StreakEngine{cfg: cfg}
}

// Config возвращает действующие параметры движка.
func (e *StreakEngine) Config() EngineConfig {
	return e.cfg
}

// Derive выполняет полный пересчёт: разбивает историю на периоды,
// оценивает каждый и выводит серии. Ключи периодов пересчитываются
// из occurred_at заново - сохранённые в логах ключи могли устареть
// после смены целевой частоты.
//
// Гарантии:
//   - детерминированность: одинаковые входы дают одинаковый результат;
//   - grace влияет только на атрибуцию, не на критерий зачёта;
//   - незакрытый (pending) период не рвёт текущую серию.
func (e *StreakEngine) Derive(logs []HabitLog, freq TargetFrequency, loc *time.Location, now time.Time) Derivation {
	if len(logs) == 0 {
		return Derivation{}
	}

	part := NewPartitioner(freq, loc, e.cfg.Grace)

	sorted := make([]HabitLog, len(logs))
	copy(sorted, logs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].OccurredAt.Before(sorted[j].OccurredAt)
	})

	type bucket struct {
		period  Period
		logged  int
		counted int
		points  int
		lastHit time.Time
	}
	buckets := make(map[string]*bucket)

	totalPoints := 0
	for _, l := range sorted {
		per := part.PeriodFor(l.OccurredAt)
		b, ok := buckets[per.Key]
		if !ok {
			b = &bucket{period: per}
			buckets[per.Key] = b
		}
		b.logged++
		totalPoints += l.PointsEarned
		if l.CompletionPercentage >= e.cfg.SatisfactionThreshold && b.counted < freq.Count {
			b.counted++
			b.lastHit = l.OccurredAt
		}
	}

	// Хронология от периода первого лога до текущего периода.
	first := part.PeriodFor(sorted[0].OccurredAt)
	last := part.Current(now)
	for _, b := range buckets {
		if b.period.Start.Before(first.Start) {
			first = b.period
		}
		if b.period.Start.After(last.Start) {
			last = b.period
		}
	}

	d := Derivation{TotalPoints: totalPoints}
	for per := first; !per.Start.After(last.Start); per = part.Next(per) {
		ps := PeriodStatus{Period: per, State: PeriodMissed}
		if b, ok := buckets[per.Key]; ok {
			ps.Counted = b.counted
			ps.Logged = b.logged
			d.TotalCompletions += b.counted
		}
		switch {
		case ps.Counted >= freq.Count:
			ps.State = PeriodSatisfied
		case !part.IsResolved(per, now):
			ps.State = PeriodPending
		}
		d.Periods = append(d.Periods, ps)
	}

	// Longest: pending-период не рвёт серию и не продлевает её.
	run := 0
	for _, ps := range d.Periods {
		switch ps.State {
		case PeriodSatisfied:
			run++
			if run > d.LongestStreak {
				d.LongestStreak = run
			}
		case PeriodMissed:
			run = 0
		}
	}

	// Current: с конца, пропуская незакрытые незачтённые периоды.
	for i := len(d.Periods) - 1; i >= 0; i-- {
		ps := d.Periods[i]
		if ps.State == PeriodPending {
			continue
		}
		if ps.State != PeriodSatisfied {
			break
		}
		d.CurrentStreak++
	}

	for i := len(d.Periods) - 1; i >= 0; i-- {
		if d.Periods[i].State != PeriodSatisfied {
			continue
		}
		if b, ok := buckets[d.Periods[i].Period.Key]; ok {
			d.LastSatisfiedAt = b.lastHit
		}
		break
	}

	return d
}
