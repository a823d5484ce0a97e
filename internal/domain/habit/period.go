package habit

import (
	"time"

	"github.com/habitloop/habitloop-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PERIOD
// Период - производное понятие, никогда не персистится. Полуоткрытый
// интервал [Start, End) в часовом поясе пользователя.
// ══════════════════════════════════════════════════════════════════════════════

// Period - интервал, по которому оценивается цель привычки.
type Period struct {
	// Key - стабильный ключ периода ("2026-08-27" или "2026-W35").
	Key string

	// Start - начало периода (включительно).
	Start time.Time

	// End - конец периода (исключительно).
	End time.Time
}

// Contains возвращает true, если t попадает в [Start, End).
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// IsZero возвращает true для нулевого периода.
func (p Period) IsZero() bool {
	return p.Start.IsZero()
}

// PeriodState - состояние периода для движка серий.
type PeriodState string

const (
	// PeriodSatisfied - цель периода достигнута.
	PeriodSatisfied PeriodState = "satisfied"
	// PeriodMissed - период прошёл, цель не достигнута.
	PeriodMissed PeriodState = "missed"
	// PeriodPending - период ещё не закрыт (grace-окно не истекло).
	PeriodPending PeriodState = "pending"
)

// ══════════════════════════════════════════════════════════════════════════════
// PARTITIONER
// Разбивает ось времени на периоды привычки и относит чек-ины к периодам.
// Grace-окно применяется ТОЛЬКО здесь, при атрибуции occurred_at,
// и никогда при оценке зачёта.
// ══════════════════════════════════════════════════════════════════════════════

// Partitioner вычисляет границы периодов для конкретной привычки.
type Partitioner struct {
	freq  TargetFrequency
	loc   *time.Location
	grace time.Duration
}

// NewPartitioner создаёт Partitioner.
func NewPartitioner(freq TargetFrequency, loc *time.Location, grace time.Duration) *Partitioner {
	if loc == nil {
		loc = time.UTC
	}
	if grace < 0 {
		grace = 0
	}
	return &Partitioner{freq: freq, loc: loc, grace: grace}
}

// periodAt возвращает "сырой" период, содержащий t: для daily - день t,
// для weekly - ISO-неделю t, для custom - последний запланированный день
// с началом не позже t (лог во внеплановый день относится к нему).
func (p *Partitioner) periodAt(t time.Time) Period {
	switch p.freq.Type {
	case FrequencyWeekly:
		start := timeutil.StartOfWeek(t, p.loc)
		return Period{
			Key:   timeutil.WeekKey(start, p.loc),
			Start: start,
			End:   timeutil.NextWeek(start, p.loc),
		}
	case FrequencyCustom:
		day := timeutil.StartOfDay(t, p.loc)
		for i := 0; i < 7; i++ {
			if p.freq.ScheduledOn(timeutil.Weekday(day, p.loc)) {
				return p.dayPeriod(day)
			}
			day = day.AddDate(0, 0, -1)
		}
		// Расписание валидируется непустым; сюда не доходим.
		return p.dayPeriod(timeutil.StartOfDay(t, p.loc))
	default:
		return p.dayPeriod(timeutil.StartOfDay(t, p.loc))
	}
}

func (p *Partitioner) dayPeriod(dayStart time.Time) Period {
	return Period{
		Key:   timeutil.DayKey(dayStart, p.loc),
		Start: dayStart,
		End:   dayStart.AddDate(0, 0, 1),
	}
}

// PeriodFor относит момент чек-ина к периоду с учётом grace-окна:
// чек-ин в пределах grace после границы относится к предыдущему периоду,
// если тот примыкает вплотную.
func (p *Partitioner) PeriodFor(occurredAt time.Time) Period {
	raw := p.periodAt(occurredAt)
	if p.grace > 0 && occurredAt.Sub(raw.Start) < p.grace {
		prev := p.Previous(raw)
		if !prev.IsZero() && prev.End.Equal(raw.Start) {
			return prev
		}
	}
	return raw
}

// Next возвращает следующий запланированный период.
func (p *Partitioner) Next(per Period) Period {
	switch p.freq.Type {
	case FrequencyWeekly:
		return p.periodAt(per.End)
	case FrequencyCustom:
		day := per.Start
		for i := 0; i < 7; i++ {
			day = day.AddDate(0, 0, 1)
			if p.freq.ScheduledOn(timeutil.Weekday(day, p.loc)) {
				return p.dayPeriod(day)
			}
		}
		return p.dayPeriod(per.Start.AddDate(0, 0, 7))
	default:
		return p.dayPeriod(per.End)
	}
}

// Previous возвращает предыдущий запланированный период.
func (p *Partitioner) Previous(per Period) Period {
	switch p.freq.Type {
	case FrequencyWeekly:
		return p.periodAt(per.Start.AddDate(0, 0, -1))
	case FrequencyCustom:
		day := per.Start
		for i := 0; i < 7; i++ {
			day = day.AddDate(0, 0, -1)
			if p.freq.ScheduledOn(timeutil.Weekday(day, p.loc)) {
				return p.dayPeriod(day)
			}
		}
		return p.dayPeriod(per.Start.AddDate(0, 0, -7))
	default:
		return p.dayPeriod(per.Start.AddDate(0, 0, -1))
	}
}

// GraceDeadline - момент, после которого период окончательно закрывается.
func (p *Partitioner) GraceDeadline(per Period) time.Time {
	return per.End.Add(p.grace)
}

// IsResolved возвращает true, если период окончательно закрыт:
// его grace-окно полностью истекло.
func (p *Partitioner) IsResolved(per Period, now time.Time) bool {
	return !now.Before(p.GraceDeadline(per))
}

// Current возвращает период, к которому сейчас относятся новые чек-ины
// (с учётом grace: сразу после полуночи это ещё вчерашний период).
func (p *Partitioner) Current(now time.Time) Period {
	return p.PeriodFor(now)
}

// IsBackfill возвращает true, если чек-ин попадает в уже закрытый период.
// Такой лог может перекроить прошлые серии и требует полного пересчёта.
func (p *Partitioner) IsBackfill(occurredAt, now time.Time) bool {
	return p.IsResolved(p.PeriodFor(occurredAt), now)
}
