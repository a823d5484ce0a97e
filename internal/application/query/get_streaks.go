// Package query содержит операции чтения (CQRS queries).
// Чтения не берут блокировок и не трогают снапшоты: допустима
// слегка устаревшая картина (eventual consistency).
package query

import (
	"context"
	"time"

	"github.com/habitloop/habitloop-core/internal/domain/habit"
)

// StreakView - сводка серий одной привычки для выдачи наружу.
type StreakView struct {
	HabitID               string    `json:"habit_id"`
	Name                  string    `json:"name"`
	IsActive              bool      `json:"is_active"`
	CurrentStreak         int       `json:"current_streak"`
	LongestStreak         int       `json:"longest_streak"`
	TotalCompletions      int       `json:"total_completions"`
	RewardPoints          int       `json:"reward_points"`
	LastPeriodSatisfiedAt time.Time `json:"last_period_satisfied_at,omitempty"`
	ComputedAt            time.Time `json:"computed_at"`
}

// GetStreaksQuery - запрос серий пользователя.
// UserHabitID опционально сужает выдачу до одной привычки.
type GetStreaksQuery struct {
	UserID      string
	UserHabitID string
}

// GetStreaksHandler отдаёт серии из кешированных снапшотов.
// Снапшот может отставать от только что записанного чек-ина;
// точное значение несёт ответ самой записи.
type GetStreaksHandler struct {
	habits habit.Repository
}

// NewGetStreaksHandler создаёт обработчик.
func NewGetStreaksHandler(habits habit.Repository) *GetStreaksHandler {
	return &GetStreaksHandler{habits: habits}
}

// Handle возвращает сводки по всем привычкам пользователя.
func (h *GetStreaksHandler) Handle(ctx context.Context, q GetStreaksQuery) ([]StreakView, error) {
	habits, err := h.habits.FindByUser(ctx, q.UserID)
	if err != nil {
		return nil, err
	}

	views := make([]StreakView, 0, len(habits))
	for _, hb := range habits {
		if q.UserHabitID != "" && hb.ID != q.UserHabitID {
			continue
		}
		views = append(views, StreakView{
			HabitID:               hb.ID,
			Name:                  hb.Name,
			IsActive:              hb.IsActive,
			CurrentStreak:         hb.Snapshot.CurrentStreak,
			LongestStreak:         hb.Snapshot.LongestStreak,
			TotalCompletions:      hb.Snapshot.TotalCompletions,
			RewardPoints:          hb.Snapshot.RewardPoints,
			LastPeriodSatisfiedAt: hb.Snapshot.LastPeriodSatisfiedAt,
			ComputedAt:            hb.Snapshot.ComputedAt,
		})
	}
	return views, nil
}
