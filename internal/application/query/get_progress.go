package query

import (
	"context"
	"time"

	"github.com/habitloop/habitloop-core/internal/domain/habit"
	"github.com/habitloop/habitloop-core/internal/domain/shared"
	"github.com/habitloop/habitloop-core/pkg/logger"
)

// ProgressView - агрегированная аналитика одной привычки.
type ProgressView struct {
	HabitID              string                  `json:"habit_id"`
	CurrentStreak        int                     `json:"current_streak"`
	LongestStreak        int                     `json:"longest_streak"`
	TotalCompletions     int                     `json:"total_completions"`
	TotalPoints          int                     `json:"total_points"`
	CompletionRate       float64                 `json:"completion_rate"`
	RecentCompletionRate float64                 `json:"recent_completion_rate"`
	Consistency          habit.ConsistencyReport `json:"consistency"`
	RiskScore            float64                 `json:"risk_score"`
	DifficultyAdjustment int                     `json:"difficulty_adjustment"`
	Window               *ProgressWindow         `json:"window,omitempty"`
	ComputedAt           time.Time               `json:"computed_at"`
}

// ProgressWindow - completion rate по заданному окну отчёта.
type ProgressWindow struct {
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	CompletionRate float64   `json:"completion_rate"`
}

// ProgressCache - кеш готовых ProgressView (реализация - Redis).
// Промах и ошибка кеша равнозначны: считаем заново.
type ProgressCache interface {
	Get(ctx context.Context, habitID string) (*ProgressView, error)
	Set(ctx context.Context, habitID string, view *ProgressView, ttl time.Duration) error
	Invalidate(ctx context.Context, habitID string) error
}

// GetProgressQuery - запрос аналитики привычки.
// Start/End задают необязательное окно отчёта [Start, End);
// указываются либо оба, либо ни одного.
type GetProgressQuery struct {
	UserHabitID string
	UserID      string
	Start       time.Time
	End         time.Time
}

// Windowed возвращает true, если запрошено окно отчёта.
func (q GetProgressQuery) Windowed() bool {
	return !q.Start.IsZero() || !q.End.IsZero()
}

// GetProgressHandler строит аналитику из истории логов.
// Чтение идёт без блокировки строки привычки: параллельная запись
// может дать слегка устаревший снимок, это допустимо.
type GetProgressHandler struct {
	habits   habit.Repository
	logs     habit.LogRepository
	engine   *habit.StreakEngine
	analyzer *habit.Analyzer
	cache    ProgressCache
	cacheTTL time.Duration
	log      *logger.Logger
	clock    func() time.Time
}

// NewGetProgressHandler создаёт обработчик.
func NewGetProgressHandler(
	habits habit.Repository,
	logs habit.LogRepository,
	engine *habit.StreakEngine,
	analyzer *habit.Analyzer,
	cache ProgressCache,
	cacheTTL time.Duration,
	log *logger.Logger,
) *GetProgressHandler {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &GetProgressHandler{
		habits:   habits,
		logs:     logs,
		engine:   engine,
		analyzer: analyzer,
		cache:    cache,
		cacheTTL: cacheTTL,
		log:      log,
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// Handle возвращает аналитику, при возможности из кеша.
// Кеш ключуется только по привычке, поэтому оконные запросы идут мимо него.
func (h *GetProgressHandler) Handle(ctx context.Context, q GetProgressQuery) (*ProgressView, error) {
	if q.Windowed() {
		if q.Start.IsZero() || q.End.IsZero() || !q.Start.Before(q.End) {
			return nil, shared.NewDomainError("progress", "Handle", shared.ErrInvalidInput, "report window requires start before end")
		}
	}

	if h.cache != nil && !q.Windowed() {
		if view, err := h.cache.Get(ctx, q.UserHabitID); err == nil && view != nil {
			return view, nil
		}
	}

	hb, err := h.habits.FindByID(ctx, q.UserHabitID)
	if err != nil {
		return nil, err
	}
	if hb.UserID != q.UserID {
		return nil, shared.ErrHabitNotFound
	}

	loc, err := hb.Location()
	if err != nil {
		return nil, err
	}
	logs, err := h.logs.ListByHabit(ctx, hb.ID)
	if err != nil {
		return nil, err
	}

	now := h.clock()
	d := h.engine.Derive(logs, hb.Frequency, loc, now)

	view := &ProgressView{
		HabitID:              hb.ID,
		CurrentStreak:        d.CurrentStreak,
		LongestStreak:        d.LongestStreak,
		TotalCompletions:     d.TotalCompletions,
		TotalPoints:          d.TotalPoints,
		CompletionRate:       h.analyzer.CompletionRate(d, 0),
		RecentCompletionRate: h.analyzer.CompletionRate(d, 7),
		Consistency:          h.analyzer.Consistency(logs, loc),
		RiskScore:            h.analyzer.RiskScore(d, hb.Frequency, loc, now),
		DifficultyAdjustment: h.analyzer.DifficultyAdjustment(d),
		ComputedAt:           now,
	}
	if q.Windowed() {
		view.Window = &ProgressWindow{
			Start:          q.Start,
			End:            q.End,
			CompletionRate: h.analyzer.CompletionRateBetween(d, q.Start, q.End),
		}
	}

	if h.cache != nil && !q.Windowed() {
		if err := h.cache.Set(ctx, hb.ID, view, h.cacheTTL); err != nil {
			h.log.Warn("progress cache write failed",
				logger.String("habit_id", hb.ID),
				logger.Err(err))
		}
	}
	return view, nil
}
