package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/wapcast-server/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS presence_sessions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id     TEXT    NOT NULL,
	conn_id     TEXT    NOT NULL,
	online_at   INTEGER NOT NULL,
	offline_at  INTEGER
);
CREATE INDEX IF NOT EXISTS idx_presence_sessions_user ON presence_sessions (user_id);
CREATE INDEX IF NOT EXISTS idx_presence_sessions_open ON presence_sessions (conn_id, user_id) WHERE offline_at IS NULL;
`

// SQLiteStore implements store.PresenceStore for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ store.PresenceStore = (*SQLiteStore)(nil)

// New opens the database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, ApplySchema)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; ":memory:" requires it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// ApplySchema creates the presence tables if they are missing.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordOnline opens a session row.
func (s *SQLiteStore) RecordOnline(ctx context.Context, userID, connID string, at time.Time) error {
	query := `
		INSERT INTO presence_sessions (user_id, conn_id, online_at)
		VALUES (?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, userID, connID, at.UnixMilli()); err != nil {
		return fmt.Errorf("insert presence session: %w", err)
	}
	return nil
}

// RecordOffline stamps the open session rows of userID on connID.
func (s *SQLiteStore) RecordOffline(ctx context.Context, userID, connID string, at time.Time) error {
	query := `
		UPDATE presence_sessions
		SET offline_at = ?
		WHERE user_id = ? AND conn_id = ? AND offline_at IS NULL
	`
	if _, err := s.db.ExecContext(ctx, query, at.UnixMilli(), userID, connID); err != nil {
		return fmt.Errorf("close presence session: %w", err)
	}
	return nil
}

// LastSeen aggregates the sessions of userID.
func (s *SQLiteStore) LastSeen(ctx context.Context, userID string) (*store.Presence, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN offline_at IS NULL THEN 1 ELSE 0 END), 0),
			MAX(online_at),
			MAX(offline_at)
		FROM presence_sessions
		WHERE user_id = ?
	`
	var (
		total, open int
		onlineAt    sql.NullInt64
		offlineAt   sql.NullInt64
	)
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&total, &open, &onlineAt, &offlineAt); err != nil {
		return nil, fmt.Errorf("query presence: %w", err)
	}
	if total == 0 {
		return nil, fmt.Errorf("presence for %q: %w", userID, store.ErrNotFound)
	}

	p := &store.Presence{
		UserID:   userID,
		Online:   open > 0,
		Sessions: open,
	}
	if onlineAt.Valid {
		p.LastOnlineAt = time.UnixMilli(onlineAt.Int64).UTC()
	}
	if offlineAt.Valid {
		t := time.UnixMilli(offlineAt.Int64).UTC()
		p.LastOfflineAt = &t
	}
	return p, nil
}

// CloseOpenSessions stamps every open session with at.
func (s *SQLiteStore) CloseOpenSessions(ctx context.Context, at time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE presence_sessions SET offline_at = ? WHERE offline_at IS NULL`, at.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("close open sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
