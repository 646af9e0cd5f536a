package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/footprint/internal/model"
)

// CompletedTasks returns the (site, mode) pairs with a success checkpoint.
func (s *Store) CompletedTasks(ctx context.Context) (map[model.TaskKey]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT domain, mode FROM checkpoints WHERE status = 'success'`)
	if err != nil {
		return nil, fmt.Errorf("%w: query checkpoints: %w", ErrPersistence, err)
	}
	defer rows.Close()

	done := make(map[model.TaskKey]bool)
	for rows.Next() {
		var domain, mode string
		if err := rows.Scan(&domain, &mode); err != nil {
			return nil, fmt.Errorf("%w: scan checkpoint: %w", ErrPersistence, err)
		}
		done[model.TaskKey{Domain: domain, Mode: model.ConsentMode(mode)}] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read checkpoints: %w", ErrPersistence, err)
	}
	return done, nil
}

// Checkpoint returns the checkpoint of key, or nil if the task never reached
// a terminal state.
func (s *Store) Checkpoint(ctx context.Context, key model.TaskKey) (*model.CheckpointRecord, error) {
	var (
		rec     model.CheckpointRecord
		mode    string
		status  string
		updated string
	)
	err := s.db.QueryRowContext(ctx, `
	SELECT domain, mode, status, session_id, attempts, updated_at
	FROM checkpoints
	WHERE domain = ? AND mode = ?
	`, key.Domain, string(key.Mode)).Scan(&rec.Domain, &mode, &status, &rec.SessionID, &rec.Attempts, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get checkpoint: %w", ErrPersistence, err)
	}
	rec.Mode = model.ConsentMode(mode)
	rec.Status = model.Status(status)
	rec.UpdatedAt = parseTimestamp(updated)
	return &rec, nil
}

// SessionCount returns how many session rows exist for key across all runs.
func (s *Store) SessionCount(ctx context.Context, key model.TaskKey) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM crawl_sessions WHERE domain = ? AND mode = ?`,
		key.Domain, string(key.Mode)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: count sessions: %w", ErrPersistence, err)
	}
	return n, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// timestampFormats contains the timestamp formats that may be stored.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
