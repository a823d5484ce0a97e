// Package eventhandler содержит подписчиков на доменные события.
// Подписчики работают по принципу at-least-once: событие может прийти
// повторно, поэтому каждый обработчик идемпотентен.
package eventhandler

import (
	"context"

	"github.com/habitloop/habitloop-core/internal/application/query"
	"github.com/habitloop/habitloop-core/internal/domain/shared"
	"github.com/habitloop/habitloop-core/pkg/logger"
)

// StreakChangedHandler инвалидирует кеш аналитики при любом изменении
// истории логов или снапшота привычки. Следующий запрос прогресса
// пересчитает свежую картину.
type StreakChangedHandler struct {
	cache query.ProgressCache
	log   *logger.Logger
}

// NewStreakChangedHandler создаёт обработчик.
func NewStreakChangedHandler(cache query.ProgressCache, log *logger.Logger) *StreakChangedHandler {
	return &StreakChangedHandler{cache: cache, log: log}
}

// Handle обрабатывает событие.
func (h *StreakChangedHandler) Handle(event shared.Event) error {
	switch event.EventType() {
	case shared.EventCheckinRecorded,
		shared.EventCheckinCorrected,
		shared.EventCheckinDeleted,
		shared.EventStreakExtended,
		shared.EventStreakBroken,
		shared.EventTargetChanged,
		shared.EventSnapshotReconciled:
	default:
		return nil
	}

	if h.cache == nil {
		return nil
	}
	if err := h.cache.Invalidate(context.Background(), event.AggregateID()); err != nil {
		h.log.Warn("failed to invalidate progress cache",
			logger.String("habit_id", event.AggregateID()),
			logger.Err(err))
		return err
	}
	return nil
}
