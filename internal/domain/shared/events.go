// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types - these drive the event-driven architecture.
// Each event represents something significant that happened in the domain.
const (
	// Check-in events
	EventCheckinRecorded  EventType = "checkin.recorded"
	EventCheckinCorrected EventType = "checkin.corrected"
	EventCheckinDeleted   EventType = "checkin.deleted"

	// Streak events
	EventStreakExtended  EventType = "streak.extended"
	EventStreakBroken    EventType = "streak.broken"
	EventPeriodSatisfied EventType = "streak.period_satisfied"

	// Risk events
	EventRiskHigh EventType = "risk.high"

	// Achievement events
	EventAchievementUnlocked EventType = "achievement.unlocked"

	// Habit lifecycle events
	EventHabitCreated  EventType = "habit.created"
	EventHabitPaused   EventType = "habit.paused"
	EventHabitResumed  EventType = "habit.resumed"
	EventTargetChanged EventType = "habit.target_changed"

	// System events
	EventSnapshotReconciled EventType = "system.snapshot_reconciled"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// EventHandler processes a single event.
type EventHandler func(event Event) error

// EventPublisher publishes domain events to interested handlers.
type EventPublisher interface {
	Publish(event Event) error
}

// EventBus is the full pub/sub contract implemented in infrastructure.
type EventBus interface {
	EventPublisher

	// Subscribe registers a handler for a specific event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for every event.
	SubscribeAll(handler EventHandler) error

	// Close shuts the bus down, waiting for in-flight handlers.
	Close() error
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Check-in Events
// ═══════════════════════════════════════════════════════════════════════════

// CheckinRecordedEvent is emitted after a check-in write commits.
type CheckinRecordedEvent struct {
	BaseEvent
	UserID          string    `json:"user_id"`
	LogID           string    `json:"log_id"`
	PeriodKey       string    `json:"period_key"`
	Percentage      int       `json:"completion_percentage"`
	PointsEarned    int       `json:"points_earned"`
	PeriodSatisfied bool      `json:"period_satisfied"`
	Backfill        bool      `json:"backfill"`
	CheckinAt       time.Time `json:"occurred_at"`
}

// Payload implements Event interface.
func (e CheckinRecordedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":               e.UserID,
		"log_id":                e.LogID,
		"period_key":            e.PeriodKey,
		"completion_percentage": e.Percentage,
		"points_earned":         e.PointsEarned,
		"period_satisfied":      e.PeriodSatisfied,
		"backfill":              e.Backfill,
		"occurred_at":           e.CheckinAt,
	}
}

// NewCheckinRecordedEvent creates a new CheckinRecordedEvent.
func NewCheckinRecordedEvent(habitID, userID, logID, periodKey string, percentage, points int, satisfied, backfill bool, occurredAt time.Time) CheckinRecordedEvent {
	return CheckinRecordedEvent{
		BaseEvent:       NewBaseEvent(EventCheckinRecorded, habitID),
		UserID:          userID,
		LogID:           logID,
		PeriodKey:       periodKey,
		Percentage:      percentage,
		PointsEarned:    points,
		PeriodSatisfied: satisfied,
		Backfill:        backfill,
		CheckinAt:       occurredAt,
	}
}

// CheckinCorrectedEvent is emitted when a log is corrected or deleted through
// the audited operations.
type CheckinCorrectedEvent struct {
	BaseEvent
	LogID   string `json:"log_id"`
	Action  string `json:"action"` // "corrected" or "deleted"
	Reason  string `json:"reason"`
	ActorID string `json:"actor_id"`
}

// Payload implements Event interface.
func (e CheckinCorrectedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"log_id":   e.LogID,
		"action":   e.Action,
		"reason":   e.Reason,
		"actor_id": e.ActorID,
	}
}

// NewCheckinCorrectedEvent creates a new CheckinCorrectedEvent.
func NewCheckinCorrectedEvent(habitID, logID, action, reason, actorID string) CheckinCorrectedEvent {
	eventType := EventCheckinCorrected
	if action == "deleted" {
		eventType = EventCheckinDeleted
	}
	return CheckinCorrectedEvent{
		BaseEvent: NewBaseEvent(eventType, habitID),
		LogID:     logID,
		Action:    action,
		Reason:    reason,
		ActorID:   actorID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Streak Events
// ═══════════════════════════════════════════════════════════════════════════

// StreakExtendedEvent is emitted when the current streak grows.
type StreakExtendedEvent struct {
	BaseEvent
	UserID        string `json:"user_id"`
	CurrentStreak int    `json:"current_streak"`
	LongestStreak int    `json:"longest_streak"`
	IsNewRecord   bool   `json:"is_new_record"`
}

// Payload implements Event interface.
func (e StreakExtendedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"current_streak": e.CurrentStreak,
		"longest_streak": e.LongestStreak,
		"is_new_record":  e.IsNewRecord,
	}
}

// NewStreakExtendedEvent creates a new StreakExtendedEvent.
func NewStreakExtendedEvent(habitID, userID string, current, longest int) StreakExtendedEvent {
	return StreakExtendedEvent{
		BaseEvent:     NewBaseEvent(EventStreakExtended, habitID),
		UserID:        userID,
		CurrentStreak: current,
		LongestStreak: longest,
		IsNewRecord:   current == longest && current > 0,
	}
}

// StreakBrokenEvent is emitted when a recompute shows the streak was lost.
type StreakBrokenEvent struct {
	BaseEvent
	UserID         string `json:"user_id"`
	PreviousStreak int    `json:"previous_streak"`
	LongestStreak  int    `json:"longest_streak"`
}

// Payload implements Event interface.
func (e StreakBrokenEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":         e.UserID,
		"previous_streak": e.PreviousStreak,
		"longest_streak":  e.LongestStreak,
	}
}

// NewStreakBrokenEvent creates a new StreakBrokenEvent.
func NewStreakBrokenEvent(habitID, userID string, previous, longest int) StreakBrokenEvent {
	return StreakBrokenEvent{
		BaseEvent:      NewBaseEvent(EventStreakBroken, habitID),
		UserID:         userID,
		PreviousStreak: previous,
		LongestStreak:  longest,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Risk Events
// ═══════════════════════════════════════════════════════════════════════════

// RiskHighEvent is emitted when the streak-risk heuristic crosses the alert
// threshold for a habit. Consumed by notification/AI-coaching collaborators.
type RiskHighEvent struct {
	BaseEvent
	UserID        string    `json:"user_id"`
	RiskScore     float64   `json:"risk_score"`
	CurrentStreak int       `json:"current_streak"`
	GraceDeadline time.Time `json:"grace_deadline"`
}

// Payload implements Event interface.
func (e RiskHighEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"risk_score":     e.RiskScore,
		"current_streak": e.CurrentStreak,
		"grace_deadline": e.GraceDeadline,
	}
}

// NewRiskHighEvent creates a new RiskHighEvent.
func NewRiskHighEvent(habitID, userID string, score float64, streak int, deadline time.Time) RiskHighEvent {
	return RiskHighEvent{
		BaseEvent:     NewBaseEvent(EventRiskHigh, habitID),
		UserID:        userID,
		RiskScore:     score,
		CurrentStreak: streak,
		GraceDeadline: deadline,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Achievement Events
// ═══════════════════════════════════════════════════════════════════════════

// AchievementUnlockedEvent is emitted exactly once per (user, achievement).
type AchievementUnlockedEvent struct {
	BaseEvent
	UserID          string `json:"user_id"`
	HabitID         string `json:"habit_id"`
	AchievementType string `json:"achievement_type"`
	BonusPoints     int    `json:"bonus_points"`
}

// Payload implements Event interface.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":          e.UserID,
		"habit_id":         e.HabitID,
		"achievement_type": e.AchievementType,
		"bonus_points":     e.BonusPoints,
	}
}

// NewAchievementUnlockedEvent creates a new AchievementUnlockedEvent.
func NewAchievementUnlockedEvent(userID, habitID, achievementType string, bonus int) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		BaseEvent:       NewBaseEvent(EventAchievementUnlocked, userID),
		UserID:          userID,
		HabitID:         habitID,
		AchievementType: achievementType,
		BonusPoints:     bonus,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Habit Lifecycle Events
// ═══════════════════════════════════════════════════════════════════════════

// HabitLifecycleEvent covers created/paused/resumed/target-changed.
type HabitLifecycleEvent struct {
	BaseEvent
	UserID string                 `json:"user_id"`
	Detail map[string]interface{} `json:"detail,omitempty"`
}

// Payload implements Event interface.
func (e HabitLifecycleEvent) Payload() map[string]interface{} {
	payload := map[string]interface{}{"user_id": e.UserID}
	for k, v := range e.Detail {
		payload[k] = v
	}
	return payload
}

// NewHabitLifecycleEvent creates a lifecycle event of the given type.
func NewHabitLifecycleEvent(eventType EventType, habitID, userID string, detail map[string]interface{}) HabitLifecycleEvent {
	return HabitLifecycleEvent{
		BaseEvent: NewBaseEvent(eventType, habitID),
		UserID:    userID,
		Detail:    detail,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// System Events
// ═══════════════════════════════════════════════════════════════════════════

// SnapshotReconciledEvent is emitted by the reconciliation job when a cached
// snapshot had drifted from the log-derived value and was regenerated.
type SnapshotReconciledEvent struct {
	BaseEvent
	UserID     string `json:"user_id"`
	OldCurrent int    `json:"old_current_streak"`
	NewCurrent int    `json:"new_current_streak"`
	OldLongest int    `json:"old_longest_streak"`
	NewLongest int    `json:"new_longest_streak"`
}

// Payload implements Event interface.
func (e SnapshotReconciledEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":            e.UserID,
		"old_current_streak": e.OldCurrent,
		"new_current_streak": e.NewCurrent,
		"old_longest_streak": e.OldLongest,
		"new_longest_streak": e.NewLongest,
	}
}

// NewSnapshotReconciledEvent creates a new SnapshotReconciledEvent.
func NewSnapshotReconciledEvent(habitID, userID string, oldCur, newCur, oldLong, newLong int) SnapshotReconciledEvent {
	return SnapshotReconciledEvent{
		BaseEvent:  NewBaseEvent(EventSnapshotReconciled, habitID),
		UserID:     userID,
		OldCurrent: oldCur,
		NewCurrent: newCur,
		OldLongest: oldLong,
		NewLongest: newLong,
	}
}
