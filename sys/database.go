package sys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// --- Connection & Lifecycle ---

var DB *sqlx.DB

func InitDatabase(ctx context.Context, dataSourceName string) error {
	db, err := sqlx.Open("sqlite3", dataSourceName)
	if err != nil {
		return err
	}
	db.SetMaxOpenConns(5)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA cache_size=-2000;",
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, p := range pragmas {
		if _, err := db.ExecContext(initCtx, p); err != nil {
			_ = db.Close()
			return fmt.Errorf(MsgDatabasePragmaError, p, err)
		}
	}

	tx, err := db.BeginTxx(initCtx, nil)
	if err != nil {
		_ = db.Close()
		return err
	}
	defer tx.Rollback()

	tableQueries := []string{
		`CREATE TABLE IF NOT EXISTS bot_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS play_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			guild_id TEXT NOT NULL,
			title TEXT NOT NULL,
			url TEXT NOT NULL,
			requested_by TEXT NOT NULL DEFAULT '',
			duration_seconds INTEGER NOT NULL DEFAULT 0,
			played_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_play_history_guild ON play_history (guild_id, played_at DESC)`,
	}

	for _, q := range tableQueries {
		if _, err := tx.ExecContext(initCtx, q); err != nil {
			_ = db.Close()
			return fmt.Errorf(MsgDatabaseTableError, err)
		}
	}

	if err := tx.Commit(); err != nil {
		_ = db.Close()
		return err
	}

	DB = db
	LogDatabase(MsgDatabaseInitSuccess)
	return nil
}

func CloseDatabase() {
	if DB != nil {
		_ = DB.Close()
		DB = nil
	}
}

// --- Bot Persistence ---

// BotConfig helpers are used by the loader for mode tracking and state.
func GetBotConfig(ctx context.Context, key string) (string, error) {
	if DB == nil {
		return "", nil
	}
	var value string
	err := DB.GetContext(ctx, &value, "SELECT value FROM bot_config WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func SetBotConfig(ctx context.Context, key, value string) error {
	if DB == nil {
		return nil
	}
	_, err := DB.ExecContext(ctx, `
		INSERT INTO bot_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// --- Play History ---

type PlayRecord struct {
	ID              int64     `db:"id"`
	GuildID         string    `db:"guild_id"`
	Title           string    `db:"title"`
	URL             string    `db:"url"`
	RequestedBy     string    `db:"requested_by"`
	DurationSeconds int64     `db:"duration_seconds"`
	PlayedAt        time.Time `db:"played_at"`
}

func (r PlayRecord) Duration() time.Duration {
	return time.Duration(r.DurationSeconds) * time.Second
}

func RecordPlay(ctx context.Context, r PlayRecord) error {
	if DB == nil {
		return nil
	}
	if r.PlayedAt.IsZero() {
		r.PlayedAt = time.Now().UTC()
	}
	_, err := DB.NamedExecContext(ctx, `
		INSERT INTO play_history (guild_id, title, url, requested_by, duration_seconds, played_at)
		VALUES (:guild_id, :title, :url, :requested_by, :duration_seconds, :played_at)
	`, r)
	return err
}

// RecentPlays returns the newest plays for a guild, newest first.
func RecentPlays(ctx context.Context, guildID string, limit int) ([]PlayRecord, error) {
	if DB == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	var records []PlayRecord
	err := DB.SelectContext(ctx, &records, `
		SELECT id, guild_id, title, url, requested_by, duration_seconds, played_at
		FROM play_history WHERE guild_id = ? ORDER BY played_at DESC, id DESC LIMIT ?
	`, guildID, limit)
	return records, err
}

func CountPlays(ctx context.Context) (int, error) {
	if DB == nil {
		return 0, nil
	}
	var n int
	err := DB.GetContext(ctx, &n, "SELECT COUNT(*) FROM play_history")
	return n, err
}
