package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/habitloop/habitloop-core/internal/domain/habit"
	"github.com/habitloop/habitloop-core/internal/domain/shared"
)

// LogRepository implements habit.LogRepository on PostgreSQL.
// Reads go through the pool without locks; writes happen only inside the
// unit of work's transaction.
type LogRepository struct {
	conn *Connection
}

// NewLogRepository creates a new LogRepository.
func NewLogRepository(conn *Connection) *LogRepository {
	return &LogRepository{conn: conn}
}

const logColumns = `
	id, user_habit_id, occurred_at, timezone, period_key,
	completion_percentage, duration_minutes, mood_before, mood_after,
	notes, location, evidence, points_earned, created_at, updated_at`

// ListByHabit returns the full log history of a habit, oldest first.
func (r *LogRepository) ListByHabit(ctx context.Context, habitID string) ([]habit.HabitLog, error) {
	return queryLogs(ctx, r.conn.Pool(),
		`SELECT `+logColumns+` FROM habit_logs WHERE user_habit_id = $1 ORDER BY occurred_at`,
		habitID)
}

// ListByHabitSince returns logs with occurred_at at or after since.
func (r *LogRepository) ListByHabitSince(ctx context.Context, habitID string, since time.Time) ([]habit.HabitLog, error) {
	return queryLogs(ctx, r.conn.Pool(),
		`SELECT `+logColumns+` FROM habit_logs WHERE user_habit_id = $1 AND occurred_at >= $2 ORDER BY occurred_at`,
		habitID, since)
}

// FindByID returns one log.
func (r *LogRepository) FindByID(ctx context.Context, id string) (*habit.HabitLog, error) {
	row := r.conn.Pool().QueryRow(ctx,
		`SELECT `+logColumns+` FROM habit_logs WHERE id = $1`, id)
	l, err := scanLog(row)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Shared query helpers, reused by the unit of work inside transactions.
// ─────────────────────────────────────────────────────────────────────────────

func queryLogs(ctx context.Context, q Querier, query string, args ...interface{}) ([]habit.HabitLog, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.WrapError("checkin", "List", shared.ErrExternalService, "query failed", err)
	}
	defer rows.Close()

	var logs []habit.HabitLog
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, *l)
	}
	return logs, rows.Err()
}

func scanLog(row rowScanner) (*habit.HabitLog, error) {
	var (
		l        habit.HabitLog
		evidence []byte
	)
	err := row.Scan(
		&l.ID, &l.UserHabitID, &l.OccurredAt, &l.Timezone, &l.PeriodKey,
		&l.CompletionPercentage, &l.DurationMinutes, &l.MoodBefore, &l.MoodAfter,
		&l.Notes, &l.Location, &evidence, &l.PointsEarned,
		&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrLogNotFound
		}
		return nil, shared.WrapError("checkin", "Scan", shared.ErrExternalService, "scan failed", err)
	}
	if len(evidence) > 0 {
		var ev habit.Evidence
		if err := json.Unmarshal(evidence, &ev); err != nil {
			return nil, shared.WrapError("checkin", "Scan", shared.ErrInvalidFormat, "corrupt evidence payload", err)
		}
		l.Evidence = &ev
	}
	return &l, nil
}

func insertLog(ctx context.Context, q Querier, l *habit.HabitLog) error {
	evidence, err := marshalEvidence(l.Evidence)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO habit_logs (
			id, user_habit_id, occurred_at, timezone, period_key,
			completion_percentage, duration_minutes, mood_before, mood_after,
			notes, location, evidence, points_earned, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		l.ID, l.UserHabitID, l.OccurredAt, l.Timezone, l.PeriodKey,
		l.CompletionPercentage, l.DurationMinutes, l.MoodBefore, l.MoodAfter,
		l.Notes, l.Location, evidence, l.PointsEarned, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrCheckinConflict
		}
		return shared.WrapError("checkin", "Insert", shared.ErrExternalService, "insert failed", err)
	}
	return nil
}

func updateLog(ctx context.Context, q Querier, l *habit.HabitLog) error {
	evidence, err := marshalEvidence(l.Evidence)
	if err != nil {
		return err
	}
	tag, err := q.Exec(ctx, `
		UPDATE habit_logs SET
			occurred_at = $2, timezone = $3, period_key = $4,
			completion_percentage = $5, duration_minutes = $6,
			mood_before = $7, mood_after = $8, notes = $9, location = $10,
			evidence = $11, points_earned = $12, updated_at = $13
		WHERE id = $1`,
		l.ID, l.OccurredAt, l.Timezone, l.PeriodKey,
		l.CompletionPercentage, l.DurationMinutes,
		l.MoodBefore, l.MoodAfter, l.Notes, l.Location,
		evidence, l.PointsEarned, l.UpdatedAt)
	if err != nil {
		return shared.WrapError("checkin", "Update", shared.ErrExternalService, "update failed", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrLogNotFound
	}
	return nil
}

func deleteLog(ctx context.Context, q Querier, id string) error {
	tag, err := q.Exec(ctx, `DELETE FROM habit_logs WHERE id = $1`, id)
	if err != nil {
		return shared.WrapError("checkin", "Delete", shared.ErrExternalService, "delete failed", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrLogNotFound
	}
	return nil
}

func insertAudit(ctx context.Context, q Querier, a *habit.LogAudit) error {
	_, err := q.Exec(ctx, `
		INSERT INTO habit_log_audit (
			id, log_id, user_habit_id, action, reason, actor_id,
			old_percentage, new_percentage, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.LogID, a.UserHabitID, string(a.Action), a.Reason, a.ActorID,
		a.OldPercentage, a.NewPercentage, a.CreatedAt)
	if err != nil {
		return shared.WrapError("checkin", "Audit", shared.ErrExternalService, "audit insert failed", err)
	}
	return nil
}

func marshalEvidence(e *habit.Evidence) ([]byte, error) {
	if e == nil {
		return nil, nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, shared.WrapError("checkin", "Marshal", shared.ErrInvalidFormat, "evidence marshal failed", err)
	}
	return data, nil
}
