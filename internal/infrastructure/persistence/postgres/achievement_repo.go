package postgres

import (
	"context"

	"github.com/habitloop/habitloop-core/internal/domain/achievement"
	"github.com/habitloop/habitloop-core/internal/domain/shared"
)

// AchievementRepository implements achievement.UnlockStore on PostgreSQL.
// The UNIQUE (user_id, achievement_type) constraint makes TryUnlock
// idempotent without any read-modify-write cycle.
type AchievementRepository struct {
	conn *Connection
}

// NewAchievementRepository creates a new AchievementRepository.
func NewAchievementRepository(conn *Connection) *AchievementRepository {
	return &AchievementRepository{conn: conn}
}

// TryUnlock inserts the unlock; ON CONFLICT DO NOTHING absorbs repeats.
// Returns true only for the first successful insert.
func (r *AchievementRepository) TryUnlock(ctx context.Context, u *achievement.Unlock) (bool, error) {
	tag, err := r.conn.Pool().Exec(ctx, `
		INSERT INTO achievement_unlocks (id, user_id, user_habit_id, achievement_type, unlocked_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, achievement_type) DO NOTHING`,
		u.ID, u.UserID, nullableString(u.UserHabitID), string(u.Type), u.UnlockedAt)
	if err != nil {
		return false, shared.WrapError("achievement", "Unlock", shared.ErrExternalService, "insert failed", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListByUser returns all unlocks of a user, newest first.
func (r *AchievementRepository) ListByUser(ctx context.Context, userID string) ([]achievement.Unlock, error) {
	rows, err := r.conn.Pool().Query(ctx, `
		SELECT id, user_id, COALESCE(user_habit_id::text, ''), achievement_type, unlocked_at
		FROM achievement_unlocks
		WHERE user_id = $1
		ORDER BY unlocked_at DESC`, userID)
	if err != nil {
		return nil, shared.WrapError("achievement", "List", shared.ErrExternalService, "query failed", err)
	}
	defer rows.Close()

	var unlocks []achievement.Unlock
	for rows.Next() {
		var (
			u   achievement.Unlock
			typ string
		)
		if err := rows.Scan(&u.ID, &u.UserID, &u.UserHabitID, &typ, &u.UnlockedAt); err != nil {
			return nil, shared.WrapError("achievement", "List", shared.ErrExternalService, "scan failed", err)
		}
		u.Type = achievement.Type(typ)
		unlocks = append(unlocks, u)
	}
	return unlocks, rows.Err()
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
