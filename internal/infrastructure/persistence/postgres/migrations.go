package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATIONS
// Embedded in the binary: the service migrates itself on startup, so a
// deployment is a single artifact with no external migration tooling.
// ══════════════════════════════════════════════════════════════════════════════

// Migration represents one schema migration.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator applies embedded migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a migrator with the embedded migration set.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{
		conn:       conn,
		migrations: GetMigrations(),
		tableName:  "schema_migrations",
	}
}

// Migrate applies all pending migrations in order, each in its own
// transaction.
func (m *Migrator) Migrate(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`, m.tableName)
	if _, err := m.conn.Pool().Exec(ctx, query); err != nil {
		return fmt.Errorf("%w: create migrations table: %v", ErrMigrationFailed, err)
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if applied[mig.Version] {
			continue
		}
		err := m.conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx,
				fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName),
				mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: version %d (%s): %v", ErrMigrationFailed, mig.Version, mig.Name, err)
		}
	}
	return nil
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := m.conn.Pool().Query(ctx,
		fmt.Sprintf("SELECT version FROM %s ORDER BY version", m.tableName))
	if err != nil {
		return nil, fmt.Errorf("%w: query applied versions: %v", ErrMigrationFailed, err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// GetMigrations returns the embedded migration set.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_user_habits", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_habit_logs", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_achievements", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}

const migration001Up = `
CREATE TABLE IF NOT EXISTS user_habits (
	id UUID PRIMARY KEY,
	user_id TEXT NOT NULL,
	name TEXT NOT NULL,
	frequency_type TEXT NOT NULL,
	frequency_count INTEGER NOT NULL DEFAULT 1,
	specific_days SMALLINT[] NOT NULL DEFAULT '{}',
	time_windows TEXT[] NOT NULL DEFAULT '{}',
	timezone TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,

	-- Cached streak snapshot; authoritative values derive from habit_logs.
	current_streak INTEGER NOT NULL DEFAULT 0,
	longest_streak INTEGER NOT NULL DEFAULT 0,
	total_completions INTEGER NOT NULL DEFAULT 0,
	reward_points INTEGER NOT NULL DEFAULT 0,
	last_period_satisfied_at TIMESTAMPTZ,
	snapshot_computed_at TIMESTAMPTZ,

	version BIGINT NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_user_habits_user ON user_habits(user_id);
CREATE INDEX IF NOT EXISTS idx_user_habits_active ON user_habits(is_active) WHERE is_active;
`

const migration001Down = `DROP TABLE IF EXISTS user_habits;`

const migration002Up = `
CREATE TABLE IF NOT EXISTS habit_logs (
	id UUID PRIMARY KEY,
	user_habit_id UUID NOT NULL REFERENCES user_habits(id) ON DELETE CASCADE,
	occurred_at TIMESTAMPTZ NOT NULL,
	timezone TEXT NOT NULL,
	period_key TEXT NOT NULL,
	completion_percentage INTEGER NOT NULL CHECK (completion_percentage BETWEEN 0 AND 100),
	duration_minutes INTEGER NOT NULL DEFAULT 0,
	mood_before SMALLINT NOT NULL DEFAULT 0,
	mood_after SMALLINT NOT NULL DEFAULT 0,
	notes TEXT NOT NULL DEFAULT '',
	location TEXT NOT NULL DEFAULT '',
	evidence JSONB,
	points_earned INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_habit_logs_habit_occurred ON habit_logs(user_habit_id, occurred_at);
CREATE INDEX IF NOT EXISTS idx_habit_logs_habit_period ON habit_logs(user_habit_id, period_key);

CREATE TABLE IF NOT EXISTS habit_log_audit (
	id UUID PRIMARY KEY,
	log_id UUID NOT NULL,
	user_habit_id UUID NOT NULL REFERENCES user_habits(id) ON DELETE CASCADE,
	action TEXT NOT NULL,
	reason TEXT NOT NULL,
	actor_id TEXT NOT NULL DEFAULT '',
	old_percentage INTEGER NOT NULL DEFAULT 0,
	new_percentage INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_habit_log_audit_habit ON habit_log_audit(user_habit_id, created_at);
`

const migration002Down = `
DROP TABLE IF EXISTS habit_log_audit;
DROP TABLE IF EXISTS habit_logs;
`

const migration003Up = `
CREATE TABLE IF NOT EXISTS achievement_unlocks (
	id UUID PRIMARY KEY,
	user_id TEXT NOT NULL,
	user_habit_id UUID,
	achievement_type TEXT NOT NULL,
	unlocked_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

	-- Unlock idempotency: a retried evaluation cannot double-award.
	CONSTRAINT uq_achievement_once UNIQUE (user_id, achievement_type)
);

CREATE INDEX IF NOT EXISTS idx_achievement_unlocks_user ON achievement_unlocks(user_id);
`

const migration003Down = `DROP TABLE IF EXISTS achievement_unlocks;`
