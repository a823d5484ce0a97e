// Package achievement содержит доменную модель достижений: таблицу
// критериев, запись разблокировки и чистый Evaluator.
//
// Достижения вычисляются из Derivation движка серий. Сам Evaluator
// без состояния; идемпотентность разблокировки обеспечивает хранилище
// (уникальность пары пользователь + тип достижения).
package achievement

import (
	"time"

	"github.com/habitloop/habitloop-core/internal/domain/habit"
)

// Type - тип достижения.
type Type string

const (
	FirstCheckin   Type = "first_checkin"
	Streak3        Type = "streak_3"
	Streak7        Type = "streak_7"
	Streak30       Type = "streak_30"
	Streak100      Type = "streak_100"
	Completions50  Type = "completions_50"
	Completions250 Type = "completions_250"
	Comeback       Type = "comeback"
)

// Definition - описание достижения для витрины.
type Definition struct {
	Type        Type
	Title       string
	Description string
	Points      int
}

// Catalog - полная таблица достижений.
// Порядок фиксирован: от простых к редким.
var Catalog = []Definition{
	{FirstCheckin, "Первый шаг", "Первый зачтённый чек-ин", 10},
	{Streak3, "Разгон", "Серия из 3 периодов", 25},
	{Streak7, "Неделя силы", "Серия из 7 периодов", 50},
	{Streak30, "Месяц дисциплины", "Серия из 30 периодов", 200},
	{Streak100, "Сотня", "Серия из 100 периодов", 1000},
	{Completions50, "Полсотни", "50 зачтённых выполнений", 100},
	{Completions250, "Марафонец", "250 зачтённых выполнений", 500},
	{Comeback, "Возвращение", "Серия из 3 периодов после недельного перерыва", 75},
}

// DefinitionFor возвращает описание по типу.
func DefinitionFor(t Type) (Definition, bool) {
	for _, d := range Catalog {
		if d.Type == t {
			return d, true
		}
	}
	return Definition{}, false
}

// Unlock - факт разблокировки достижения пользователем.
type Unlock struct {
	ID          string
	UserID      string
	UserHabitID string
	Type        Type
	UnlockedAt  time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATOR
// ══════════════════════════════════════════════════════════════════════════════

// Evaluator вычисляет, какие достижения заслужены текущим состоянием
// привычки. Без состояния: на вход Derivation, на выход типы.
// Повторная выдача отсекается хранилищем, не здесь.
type Evaluator struct{}

// NewEvaluator создаёт Evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate возвращает все типы достижений, критерии которых выполнены.
func (e *Evaluator) Evaluate(d habit.Derivation) []Type {
	var earned []Type

	if d.TotalCompletions >= 1 {
		earned = append(earned, FirstCheckin)
	}
	if d.LongestStreak >= 3 {
		earned = append(earned, Streak3)
	}
	if d.LongestStreak >= 7 {
		earned = append(earned, Streak7)
	}
	if d.LongestStreak >= 30 {
		earned = append(earned, Streak30)
	}
	if d.LongestStreak >= 100 {
		earned = append(earned, Streak100)
	}
	if d.TotalCompletions >= 50 {
		earned = append(earned, Completions50)
	}
	if d.TotalCompletions >= 250 {
		earned = append(earned, Completions250)
	}
	if e.isComeback(d) {
		earned = append(earned, Comeback)
	}

	return earned
}

// isComeback: после непрерывного провала в 7+ периодов пользователь
// собрал серию из 3 зачтённых.
func (e *Evaluator) isComeback(d habit.Derivation) bool {
	gap := 0     // непрерывные провалы перед текущей серией
	run := 0     // текущая серия зачтённых
	prevGap := 0 // перерыв, предшествовавший серии
	for _, ps := range d.Periods {
		switch ps.State {
		case habit.PeriodMissed:
			gap++
			run = 0
		case habit.PeriodSatisfied:
			if run == 0 {
				prevGap = gap
				gap = 0
			}
			run++
			if run >= 3 && prevGap >= 7 {
				return true
			}
		}
	}
	return false
}
