// Package habit содержит доменную модель привычки HabitLoop Core.
//
// Это ядро бизнес-логики системы. Пакет определяет:
//
//   - Сущности (Entities): UserHabit, HabitLog, LogAudit
//   - Value Objects: TargetFrequency, Evidence, StreakSnapshot, Period
//   - Движок серий (StreakEngine): чистый пересчёт серий из истории логов
//   - Аналитику (Analyzer): completion rate, паттерн консистентности, риск
//   - Интерфейсы репозиториев: Repository, LogRepository, UnitOfWork
//
// # Архитектурные принципы
//
// Пакет следует принципам Clean Architecture и DDD:
//
//  1. Нулевые внешние зависимости - только стандартная библиотека Go
//  2. Dependency Inversion - интерфейсы реализуются в infrastructure
//  3. Логи - единственный источник истины; снапшот на UserHabit - это
//     инвалидируемый кеш, который всегда можно восстановить полным
//     пересчётом (никаких инкрементов "на месте")
//
// # Ключевая модель
//
// Период (Period) - полуоткрытый интервал [Start, End) в часовом поясе
// пользователя: календарный день, ISO-неделя или выбранные дни недели.
// Grace-окно (по умолчанию 6 часов после границы периода) влияет только
// на то, К КАКОМУ периоду относится чек-ин, но никогда на критерий
// зачёта периода.
//
// # Пример использования
//
//	engine := NewStreakEngine(DefaultEngineConfig())
//	derivation := engine.Derive(logs, h.Frequency, loc, time.Now())
//	h.ApplySnapshot(derivation, time.Now())
//
// Снапшот обязан совпадать с результатом полного пересчёта: это
// проверяет фоновая сверка (reconcile job) и тесты консистентности.
package habit
