// Package habit содержит доменную модель привычки HabitLoop Core.
// Это ядро бизнес-логики - здесь нет внешних зависимостей.
package habit

import (
	"fmt"
	"time"

	"github.com/habitloop/habitloop-core/internal/domain/shared"
	"github.com/habitloop/habitloop-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// FrequencyType определяет тип целевой частоты привычки.
type FrequencyType string

const (
	// FrequencyDaily - каждый календарный день.
	FrequencyDaily FrequencyType = "daily"
	// FrequencyWeekly - ISO-неделя (понедельник - воскресенье).
	FrequencyWeekly FrequencyType = "weekly"
	// FrequencyCustom - выбранные дни недели.
	FrequencyCustom FrequencyType = "custom"
)

// IsValid проверяет, что тип частоты корректен.
func (f FrequencyType) IsValid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyCustom:
		return true
	default:
		return false
	}
}

// TargetFrequency описывает цель привычки: сколько зачётных чек-инов
// нужно за один период.
type TargetFrequency struct {
	// Type - тип периода (день / неделя / выбранные дни).
	Type FrequencyType

	// Count - сколько зачётных логов нужно для зачёта периода.
	Count int

	// SpecificDays - дни недели для custom-частоты (1 = понедельник ... 7 = воскресенье).
	SpecificDays []int

	// TimeWindows - желаемые окна выполнения ("07:00-09:00").
	// Подсказка для напоминаний; на зачёт периода не влияет.
	TimeWindows []string
}

// Validate проверяет корректность целевой частоты.
func (f TargetFrequency) Validate() error {
	if !f.Type.IsValid() {
		return shared.ErrInvalidFrequency
	}
	if f.Count < 1 {
		return shared.ErrInvalidFrequency
	}
	if f.Type == FrequencyCustom {
		if len(f.SpecificDays) == 0 {
			return shared.ErrInvalidFrequency
		}
		seen := make(map[int]bool, len(f.SpecificDays))
		for _, d := range f.SpecificDays {
			if d < 1 || d > 7 || seen[d] {
				return shared.ErrInvalidFrequency
			}
			seen[d] = true
		}
	}
	return nil
}

// ScheduledOn возвращает true, если день недели (ISO, 1=Пн) входит в расписание.
func (f TargetFrequency) ScheduledOn(isoWeekday int) bool {
	if f.Type != FrequencyCustom {
		return true
	}
	for _, d := range f.SpecificDays {
		if d == isoWeekday {
			return true
		}
	}
	return false
}

// StreakSnapshot - кешируемая сводка на UserHabit.
// Кеш, а не источник истины: всегда выводится полным пересчётом из логов.
type StreakSnapshot struct {
	// CurrentStreak - текущая серия зачтённых периодов.
	CurrentStreak int

	// LongestStreak - максимальная серия за всю историю.
	LongestStreak int

	// TotalCompletions - всего зачтённых логов (с учётом лимита периода).
	TotalCompletions int

	// RewardPoints - накопленные очки.
	RewardPoints int

	// LastPeriodSatisfiedAt - когда период последний раз стал зачтённым.
	LastPeriodSatisfiedAt time.Time

	// ComputedAt - когда снапшот был выведен из логов.
	ComputedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// USER HABIT
// ══════════════════════════════════════════════════════════════════════════════

// UserHabit - подписка пользователя на привычку.
type UserHabit struct {
	// ID - внутренний идентификатор (uuid).
	ID string

	// UserID - владелец привычки.
	UserID string

	// Name - имя привычки (из каталога или заданное пользователем).
	Name string

	// Frequency - целевая частота, разрешённая из каталога привычек.
	Frequency TargetFrequency

	// Timezone - IANA-имя часового пояса пользователя.
	// Поставляется провайдером идентичности при создании привычки.
	Timezone string

	// IsActive - привычка активна (чек-ины принимаются).
	IsActive bool

	// Snapshot - кешированная сводка серий.
	Snapshot StreakSnapshot

	// Version - счётчик версий для защиты от потерянных обновлений.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewUserHabitParams - параметры создания привычки.
type NewUserHabitParams struct {
	ID        string
	UserID    string
	Name      string
	Frequency TargetFrequency
	Timezone  string
}

// NewUserHabit создаёт привычку, валидируя параметры.
func NewUserHabit(p NewUserHabitParams) (*UserHabit, error) {
	if p.ID == "" || p.UserID == "" {
		return nil, shared.NewDomainError("habit", "Create", shared.ErrInvalidID, "id and user_id are required")
	}
	if p.Name == "" {
		return nil, shared.NewDomainError("habit", "Create", shared.ErrEmptyValue, "habit name is required")
	}
	if err := p.Frequency.Validate(); err != nil {
		return nil, err
	}
	if _, err := timeutil.LoadLocation(p.Timezone); err != nil {
		return nil, shared.ErrInvalidTimezone
	}

	now := time.Now().UTC()
	return &UserHabit{
		ID:        p.ID,
		UserID:    p.UserID,
		Name:      p.Name,
		Frequency: p.Frequency,
		Timezone:  p.Timezone,
		IsActive:  true,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Location возвращает часовой пояс привычки.
func (h *UserHabit) Location() (*time.Location, error) {
	return timeutil.LoadLocation(h.Timezone)
}

// Pause ставит привычку на паузу. Чек-ины по ней отклоняются.
func (h *UserHabit) Pause() error {
	if !h.IsActive {
		return shared.NewDomainError("habit", "Pause", shared.ErrStateTransition, "habit is already paused")
	}
	h.IsActive = false
	h.UpdatedAt = time.Now().UTC()
	return nil
}

// Resume снимает привычку с паузы.
func (h *UserHabit) Resume() error {
	if h.IsActive {
		return shared.NewDomainError("habit", "Resume", shared.ErrStateTransition, "habit is already active")
	}
	h.IsActive = true
	h.UpdatedAt = time.Now().UTC()
	return nil
}

// ChangeTarget меняет целевую частоту. Границы периодов при этом
// сдвигаются, поэтому вызывающая сторона обязана выполнить полный
// пересчёт снапшота.
func (h *UserHabit) ChangeTarget(f TargetFrequency) error {
	if err := f.Validate(); err != nil {
		return err
	}
	h.Frequency = f
	h.UpdatedAt = time.Now().UTC()
	return nil
}

// ApplySnapshot записывает результат пересчёта в кешируемую сводку.
func (h *UserHabit) ApplySnapshot(d Derivation, points int, now time.Time) {
	h.Snapshot.CurrentStreak = d.CurrentStreak
	h.Snapshot.LongestStreak = d.LongestStreak
	h.Snapshot.TotalCompletions = d.TotalCompletions
	h.Snapshot.RewardPoints = points
	if !d.LastSatisfiedAt.IsZero() {
		h.Snapshot.LastPeriodSatisfiedAt = d.LastSatisfiedAt
	}
	h.Snapshot.ComputedAt = now
	h.UpdatedAt = now
}

// ══════════════════════════════════════════════════════════════════════════════
// HABIT LOG
// ══════════════════════════════════════════════════════════════════════════════

// HabitLog - неизменяемое событие выполнения привычки.
// Правки и удаления идут только через явные аудируемые операции.
type HabitLog struct {
	// ID - идентификатор лога (uuid).
	ID string

	// UserHabitID - привычка, к которой относится чек-ин.
	UserHabitID string

	// OccurredAt - момент выполнения (instant).
	OccurredAt time.Time

	// Timezone - часовой пояс пользователя на момент чек-ина.
	Timezone string

	// PeriodKey - ключ периода, к которому отнесён чек-ин
	// (с учётом grace-окна); стабилен для идемпотентного upsert.
	PeriodKey string

	// CompletionPercentage - степень выполнения, 0-100.
	CompletionPercentage int

	// DurationMinutes - фактическая длительность (опционально).
	DurationMinutes int

	// MoodBefore / MoodAfter - настроение до/после, 1-10 (0 = не указано).
	MoodBefore int
	MoodAfter  int

	// Notes - заметка пользователя.
	Notes string

	// Location - место выполнения.
	Location string

	// Evidence - приложенное доказательство (tagged variant).
	Evidence *Evidence

	// PointsEarned - очки, начисленные за этот лог.
	PointsEarned int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidatePercentage проверяет диапазон процента выполнения.
func ValidatePercentage(pct int) error {
	if pct < 0 || pct > 100 {
		return shared.ErrInvalidPercentage
	}
	return nil
}

// PointsFor вычисляет очки за чек-ин.
// Полный зачёт: 10-100 очков пропорционально проценту;
// частичный: 5-50; нулевой процент очков не даёт.
func PointsFor(percentage int, threshold int) int {
	switch {
	case percentage >= threshold:
		if p := percentage / 10; p > 10 {
			return p
		}
		return 10
	case percentage > 0:
		if p := percentage / 20; p > 5 {
			return p
		}
		return 5
	default:
		return 0
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// EVIDENCE (tagged variant)
// ══════════════════════════════════════════════════════════════════════════════

// EvidenceKind - тип доказательства выполнения.
type EvidenceKind string

const (
	EvidencePhoto  EvidenceKind = "photo"
	EvidenceVideo  EvidenceKind = "video"
	EvidenceAudio  EvidenceKind = "audio"
	EvidenceTimer  EvidenceKind = "timer"
	EvidenceGPS    EvidenceKind = "gps"
	EvidenceSensor EvidenceKind = "sensor"
)

// Evidence - размеченный вариант: Kind + ровно один заполненный payload.
// Нетипизированная карта здесь сознательно не используется.
type Evidence struct {
	Kind EvidenceKind

	Media  *MediaEvidence
	Timer  *TimerEvidence
	GPS    *GPSEvidence
	Sensor *SensorEvidence
}

// MediaEvidence - фото/видео/аудио файл.
type MediaEvidence struct {
	// URL - ссылка на файл в хранилище (загрузка файлов вне ядра).
	URL string

	// SizeBytes - размер файла.
	SizeBytes int64
}

// TimerEvidence - замер таймером.
type TimerEvidence struct {
	StartedAt time.Time
	Duration  time.Duration
}

// GPSEvidence - геопозиция выполнения.
type GPSEvidence struct {
	Latitude  float64
	Longitude float64
	AccuracyM float64
}

// SensorEvidence - показание носимого устройства.
type SensorEvidence struct {
	Source string // "apple_health", "google_fit"
	Metric string // "steps", "sleep_hours"
	Value  float64
}

// Validate проверяет, что payload соответствует Kind.
func (e *Evidence) Validate() error {
	if e == nil {
		return nil
	}
	switch e.Kind {
	case EvidencePhoto, EvidenceVideo, EvidenceAudio:
		if e.Media == nil || e.Media.URL == "" {
			return shared.ErrInvalidEvidence
		}
	case EvidenceTimer:
		if e.Timer == nil || e.Timer.Duration <= 0 {
			return shared.ErrInvalidEvidence
		}
	case EvidenceGPS:
		if e.GPS == nil || e.GPS.Latitude < -90 || e.GPS.Latitude > 90 ||
			e.GPS.Longitude < -180 || e.GPS.Longitude > 180 {
			return shared.ErrInvalidEvidence
		}
	case EvidenceSensor:
		if e.Sensor == nil || e.Sensor.Metric == "" {
			return shared.ErrInvalidEvidence
		}
	default:
		return shared.ErrInvalidEvidence
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LOG AUDIT
// ══════════════════════════════════════════════════════════════════════════════

// AuditAction - тип аудируемой операции над логом.
type AuditAction string

const (
	AuditCorrected AuditAction = "corrected"
	AuditDeleted   AuditAction = "deleted"
)

// LogAudit - запись аудита правки/удаления лога.
type LogAudit struct {
	ID          string
	LogID       string
	UserHabitID string
	Action      AuditAction
	Reason      string
	ActorID     string

	// OldPercentage / NewPercentage - что менялось (для corrected).
	OldPercentage int
	NewPercentage int

	CreatedAt time.Time
}

// Validate проверяет запись аудита.
func (a *LogAudit) Validate() error {
	if a.LogID == "" || a.UserHabitID == "" {
		return shared.NewDomainError("checkin", "Audit", shared.ErrInvalidID, "log_id and habit_id are required")
	}
	if a.Action != AuditCorrected && a.Action != AuditDeleted {
		return shared.NewDomainError("checkin", "Audit", shared.ErrInvalidInput, fmt.Sprintf("unknown audit action %q", a.Action))
	}
	if a.Reason == "" {
		return shared.NewDomainError("checkin", "Audit", shared.ErrEmptyValue, "audit reason is required")
	}
	return nil
}
