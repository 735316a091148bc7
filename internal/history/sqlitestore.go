package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the optional alternative to the plain JSON file, for
// deployments that want history queryable and stored alongside other
// SQLite-backed state rather than a flat append-only file. The database
// file is not encrypted.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) a SQLite database at path and runs
// migrations, grounded on the teacher's store.Open/migrate idiom.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("history: create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open sqlite database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("history sqlite store opened", "path", path)
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		return fmt.Errorf("history: enable foreign keys: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS call_history (
	call_id TEXT PRIMARY KEY,
	remote_id TEXT NOT NULL,
	display_name TEXT NOT NULL,
	direction TEXT NOT NULL,
	outcome TEXT NOT NULL,
	duration_s INTEGER NOT NULL,
	start_ts_unix_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_call_history_start ON call_history(start_ts_unix_ms);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("history: run sqlite migrations: %w", err)
	}
	return nil
}

// Append inserts one call-history row.
func (s *SQLiteStore) Append(r Record) error {
	const q = `
INSERT INTO call_history (
	call_id, remote_id, display_name, direction, outcome, duration_s, start_ts_unix_ms
) VALUES (?, ?, ?, ?, ?, ?, ?)
`
	_, err := s.db.ExecContext(context.Background(), q,
		r.CallID, r.RemoteID, r.DisplayName, string(r.Direction), r.Outcome, r.DurationS, r.StartTS.UnixMilli())
	if err != nil {
		return fmt.Errorf("history: insert record: %w", err)
	}
	return nil
}

// List returns every stored record, most recent first.
func (s *SQLiteStore) List() ([]Record, error) {
	rows, err := s.db.QueryContext(context.Background(), `
SELECT call_id, remote_id, display_name, direction, outcome, duration_s, start_ts_unix_ms
FROM call_history ORDER BY start_ts_unix_ms DESC
`)
	if err != nil {
		return nil, fmt.Errorf("history: query records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var direction string
		var startMS int64
		if err := rows.Scan(&r.CallID, &r.RemoteID, &r.DisplayName, &direction, &r.Outcome, &r.DurationS, &startMS); err != nil {
			return nil, fmt.Errorf("history: scan record: %w", err)
		}
		r.Direction = Direction(direction)
		r.StartTS = time.UnixMilli(startMS).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
