package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/habitloop/habitloop-core/internal/domain/habit"
	"github.com/habitloop/habitloop-core/internal/domain/shared"
)

// UnitOfWork implements habit.UnitOfWork on PostgreSQL.
//
// The critical section is serialized per habit with SELECT ... FOR UPDATE
// on the user_habits row. Concurrent submitters for the same habit queue
// on the lock; the second one re-reads logs that already include the
// first write, so full recompute stays correct. The version column guards
// against lost updates from writers that bypass the lock.
type UnitOfWork struct {
	conn *Connection
}

// NewUnitOfWork creates a new UnitOfWork.
func NewUnitOfWork(conn *Connection) *UnitOfWork {
	return &UnitOfWork{conn: conn}
}

// WithHabitLock runs fn in a transaction holding the habit row lock.
func (u *UnitOfWork) WithHabitLock(ctx context.Context, habitID string, fn func(ctx context.Context, tx habit.TxStore) error) error {
	return u.conn.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`SELECT `+habitColumns+` FROM user_habits WHERE id = $1 FOR UPDATE`, habitID)
		h, err := scanHabit(row)
		if err != nil {
			return err
		}
		return fn(ctx, &txStore{tx: tx, habit: h})
	})
}

// txStore implements habit.TxStore over one open transaction.
type txStore struct {
	tx    pgx.Tx
	habit *habit.UserHabit
}

func (s *txStore) Habit() *habit.UserHabit {
	return s.habit
}

func (s *txStore) Logs(ctx context.Context) ([]habit.HabitLog, error) {
	return queryLogs(ctx, s.tx,
		`SELECT `+logColumns+` FROM habit_logs WHERE user_habit_id = $1 ORDER BY occurred_at`,
		s.habit.ID)
}

func (s *txStore) FindLogByPeriodKey(ctx context.Context, periodKey string) (*habit.HabitLog, error) {
	row := s.tx.QueryRow(ctx,
		`SELECT `+logColumns+` FROM habit_logs WHERE user_habit_id = $1 AND period_key = $2 ORDER BY occurred_at DESC LIMIT 1`,
		s.habit.ID, periodKey)
	l, err := scanLog(row)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return l, nil
}

func (s *txStore) InsertLog(ctx context.Context, l *habit.HabitLog) error {
	return insertLog(ctx, s.tx, l)
}

func (s *txStore) UpdateLog(ctx context.Context, l *habit.HabitLog) error {
	return updateLog(ctx, s.tx, l)
}

func (s *txStore) DeleteLog(ctx context.Context, id string) error {
	return deleteLog(ctx, s.tx, id)
}

func (s *txStore) RecordAudit(ctx context.Context, a *habit.LogAudit) error {
	return insertAudit(ctx, s.tx, a)
}

func (s *txStore) SaveSnapshot(ctx context.Context, h *habit.UserHabit) error {
	return updateHabit(ctx, s.tx, h)
}
