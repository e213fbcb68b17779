// Package journal records processed updates in SQLite. Telegram
// redelivers a webhook update until it is acknowledged, so the journal
// is what keeps a redelivered update from being enriched and saved
// twice. It doubles as an audit trail of pipeline outcomes.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"notebot/internal/domain"
)

// SQLite implements domain.Journal on a local SQLite database.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLite opens (and if needed creates) the journal database.
func NewSQLite(dbPath string, logger *slog.Logger) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create journal directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open journal database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	j := &SQLite{db: db, logger: logger}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal migration failed: %w", err)
	}
	return j, nil
}

func (j *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS processed_updates (
		update_id   INTEGER PRIMARY KEY,
		request_id  TEXT,
		kind        TEXT NOT NULL,
		outcome     TEXT NOT NULL,
		category    TEXT,
		stage       TEXT,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_processed_time ON processed_updates(created_at);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Seen reports whether the update ID has already been recorded.
func (j *SQLite) Seen(ctx context.Context, updateID int) (bool, error) {
	var one int
	err := j.db.QueryRowContext(ctx,
		`SELECT 1 FROM processed_updates WHERE update_id = ?`, updateID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("journal lookup: %w", err)
	}
	return true, nil
}

// Record stores the outcome for an update ID. Recording the same
// update again overwrites the previous row.
func (j *SQLite) Record(ctx context.Context, e domain.JournalEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO processed_updates (update_id, request_id, kind, outcome, category, stage, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.UpdateID, e.RequestID, string(e.Kind), e.Outcome, e.Category, e.Stage, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("journal record: %w", err)
	}
	return nil
}

// Prune deletes entries older than the retention window.
func (j *SQLite) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	res, err := j.db.ExecContext(ctx,
		`DELETE FROM processed_updates WHERE created_at < ?`, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("journal prune: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		j.logger.Info("journal pruned", "removed", n)
	}
	return n, nil
}

// Close closes the underlying database.
func (j *SQLite) Close() error {
	return j.db.Close()
}
