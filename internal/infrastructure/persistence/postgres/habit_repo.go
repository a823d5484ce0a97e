package postgres

import (
	"context"
	"time"

	"github.com/habitloop/habitloop-core/internal/domain/habit"
	"github.com/habitloop/habitloop-core/internal/domain/shared"
)

// HabitRepository implements habit.Repository on PostgreSQL.
type HabitRepository struct {
	conn *Connection
}

// NewHabitRepository creates a new HabitRepository.
func NewHabitRepository(conn *Connection) *HabitRepository {
	return &HabitRepository{conn: conn}
}

const habitColumns = `
	id, user_id, name, frequency_type, frequency_count, specific_days,
	time_windows, timezone, is_active, current_streak, longest_streak,
	total_completions, reward_points, last_period_satisfied_at,
	snapshot_computed_at, version, created_at, updated_at`

// Create inserts a new habit.
func (r *HabitRepository) Create(ctx context.Context, h *habit.UserHabit) error {
	query := `
		INSERT INTO user_habits (
			id, user_id, name, frequency_type, frequency_count, specific_days,
			time_windows, timezone, is_active, current_streak, longest_streak,
			total_completions, reward_points, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`

	_, err := r.conn.Pool().Exec(ctx, query,
		h.ID, h.UserID, h.Name,
		string(h.Frequency.Type), h.Frequency.Count, h.Frequency.SpecificDays,
		h.Frequency.TimeWindows, h.Timezone, h.IsActive,
		h.Snapshot.CurrentStreak, h.Snapshot.LongestStreak,
		h.Snapshot.TotalCompletions, h.Snapshot.RewardPoints,
		h.Version, h.CreatedAt, h.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrHabitAlreadyExists
		}
		return shared.WrapError("habit", "Create", shared.ErrExternalService, "insert failed", err)
	}
	return nil
}

// FindByID returns a habit by its identifier.
func (r *HabitRepository) FindByID(ctx context.Context, id string) (*habit.UserHabit, error) {
	row := r.conn.Pool().QueryRow(ctx,
		`SELECT `+habitColumns+` FROM user_habits WHERE id = $1`, id)
	return scanHabit(row)
}

// FindByUser returns all habits of one user, newest first.
func (r *HabitRepository) FindByUser(ctx context.Context, userID string) ([]*habit.UserHabit, error) {
	rows, err := r.conn.Pool().Query(ctx,
		`SELECT `+habitColumns+` FROM user_habits WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, shared.WrapError("habit", "FindByUser", shared.ErrExternalService, "query failed", err)
	}
	defer rows.Close()

	var habits []*habit.UserHabit
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, err
		}
		habits = append(habits, h)
	}
	return habits, rows.Err()
}

// FindActive returns every active habit. Used by background jobs.
func (r *HabitRepository) FindActive(ctx context.Context) ([]*habit.UserHabit, error) {
	rows, err := r.conn.Pool().Query(ctx,
		`SELECT `+habitColumns+` FROM user_habits WHERE is_active ORDER BY created_at`)
	if err != nil {
		return nil, shared.WrapError("habit", "FindActive", shared.ErrExternalService, "query failed", err)
	}
	defer rows.Close()

	var habits []*habit.UserHabit
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, err
		}
		habits = append(habits, h)
	}
	return habits, rows.Err()
}

// Update saves a habit guarded by its version. A concurrent writer bumps
// the version and this update affects zero rows.
func (r *HabitRepository) Update(ctx context.Context, h *habit.UserHabit) error {
	return updateHabit(ctx, r.conn.Pool(), h)
}

func updateHabit(ctx context.Context, q Querier, h *habit.UserHabit) error {
	query := `
		UPDATE user_habits SET
			name = $2, frequency_type = $3, frequency_count = $4,
			specific_days = $5, time_windows = $6, timezone = $7,
			is_active = $8, current_streak = $9, longest_streak = $10,
			total_completions = $11, reward_points = $12,
			last_period_satisfied_at = $13, snapshot_computed_at = $14,
			version = version + 1, updated_at = $15
		WHERE id = $1 AND version = $16`

	tag, err := q.Exec(ctx, query,
		h.ID, h.Name,
		string(h.Frequency.Type), h.Frequency.Count,
		h.Frequency.SpecificDays, h.Frequency.TimeWindows, h.Timezone,
		h.IsActive, h.Snapshot.CurrentStreak, h.Snapshot.LongestStreak,
		h.Snapshot.TotalCompletions, h.Snapshot.RewardPoints,
		nullableTime(h.Snapshot.LastPeriodSatisfiedAt),
		nullableTime(h.Snapshot.ComputedAt),
		h.UpdatedAt, h.Version)
	if err != nil {
		return shared.WrapError("habit", "Update", shared.ErrExternalService, "update failed", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrOptimisticLock
	}
	h.Version++
	return nil
}

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanHabit(row rowScanner) (*habit.UserHabit, error) {
	var (
		h                habit.UserHabit
		freqType         string
		lastSatisfied    *time.Time
		snapshotComputed *time.Time
	)
	err := row.Scan(
		&h.ID, &h.UserID, &h.Name,
		&freqType, &h.Frequency.Count, &h.Frequency.SpecificDays,
		&h.Frequency.TimeWindows, &h.Timezone, &h.IsActive,
		&h.Snapshot.CurrentStreak, &h.Snapshot.LongestStreak,
		&h.Snapshot.TotalCompletions, &h.Snapshot.RewardPoints,
		&lastSatisfied, &snapshotComputed,
		&h.Version, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrHabitNotFound
		}
		return nil, shared.WrapError("habit", "Scan", shared.ErrExternalService, "scan failed", err)
	}
	h.Frequency.Type = habit.FrequencyType(freqType)
	if lastSatisfied != nil {
		h.Snapshot.LastPeriodSatisfiedAt = *lastSatisfied
	}
	if snapshotComputed != nil {
		h.Snapshot.ComputedAt = *snapshotComputed
	}
	return &h, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
