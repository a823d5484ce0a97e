package habit

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Реализуются в infrastructure/persistence. Домен знает только контракты.
// ══════════════════════════════════════════════════════════════════════════════

// Repository - доступ к привычкам вне критической секции записи.
type Repository interface {
	// Create сохраняет новую привычку.
	Create(ctx context.Context, h *UserHabit) error

	// FindByID возвращает привычку по идентификатору.
	FindByID(ctx context.Context, id string) (*UserHabit, error)

	// FindByUser возвращает привычки пользователя.
	FindByUser(ctx context.Context, userID string) ([]*UserHabit, error)

	// Update сохраняет привычку с проверкой версии.
	// Возвращает shared.ErrOptimisticLock при несовпадении версии.
	Update(ctx context.Context, h *UserHabit) error

	// FindActive возвращает все активные привычки (для фоновых задач).
	FindActive(ctx context.Context) ([]*UserHabit, error)
}

// LogRepository - доступ к истории логов на чтение.
// Аналитика читает без блокировок: слегка устаревший снимок допустим.
type LogRepository interface {
	// ListByHabit возвращает всю историю логов привычки.
	ListByHabit(ctx context.Context, habitID string) ([]HabitLog, error)

	// ListByHabitSince возвращает логи с occurred_at не раньше since.
	ListByHabitSince(ctx context.Context, habitID string, since time.Time) ([]HabitLog, error)

	// FindByID возвращает лог по идентификатору.
	FindByID(ctx context.Context, id string) (*HabitLog, error)
}

// TxStore - операции, доступные внутри критической секции записи.
// Все вызовы идут в одной транзакции под блокировкой строки привычки.
type TxStore interface {
	// Habit возвращает заблокированную привычку.
	Habit() *UserHabit

	// Logs возвращает полную историю логов привычки.
	Logs(ctx context.Context) ([]HabitLog, error)

	// FindLogByPeriodKey возвращает лог по ключу периода (для upsert
	// при цели "один раз за период"). nil, nil - если лога нет.
	FindLogByPeriodKey(ctx context.Context, periodKey string) (*HabitLog, error)

	// InsertLog вставляет новый лог.
	InsertLog(ctx context.Context, l *HabitLog) error

	// UpdateLog перезаписывает существующий лог.
	UpdateLog(ctx context.Context, l *HabitLog) error

	// DeleteLog удаляет лог.
	DeleteLog(ctx context.Context, id string) error

	// RecordAudit пишет запись аудита правки/удаления.
	RecordAudit(ctx context.Context, a *LogAudit) error

	// SaveSnapshot сохраняет привычку с новым снапшотом,
	// инкрементируя версию.
	SaveSnapshot(ctx context.Context, h *UserHabit) error
}

// UnitOfWork открывает критическую секцию записи по одной привычке.
// Реализация обязана сериализовать секции по habitID: конкурентные
// чек-ины одной привычки выполняются по очереди.
type UnitOfWork interface {
	// WithHabitLock выполняет fn в транзакции, удерживая блокировку
	// строки привычки. Ошибка fn откатывает транзакцию целиком.
	WithHabitLock(ctx context.Context, habitID string, fn func(ctx context.Context, tx TxStore) error) error
}
