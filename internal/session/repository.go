package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// sessionColumns is the SELECT column list for session queries.
const sessionColumns = `id, engine_id, target, status, profile, total_chars, chars_typed,
			progress, current_wpm, last_error, created_at, started_at, ended_at`

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// SQLiteRepository implements Repository using SQLite.
// Session text is never stored.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Save inserts or replaces the record for s.
func (r *SQLiteRepository) Save(ctx context.Context, s Session) error {
	query := `
		INSERT INTO sessions (
			id, engine_id, target, status, profile, total_chars, chars_typed,
			progress, current_wpm, last_error, created_at, started_at, ended_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			engine_id = excluded.engine_id,
			status = excluded.status,
			chars_typed = excluded.chars_typed,
			progress = excluded.progress,
			current_wpm = excluded.current_wpm,
			last_error = excluded.last_error,
			started_at = excluded.started_at,
			ended_at = excluded.ended_at`

	_, err := r.db.ExecContext(ctx, query,
		s.ID,
		nullableString(s.EngineID),
		s.Target,
		string(s.Status),
		s.Profile.String(),
		s.TotalChars,
		s.CharsTyped,
		s.Progress,
		s.CurrentWPM,
		nullableString(s.LastError),
		s.CreatedAt.UTC().Format(timeLayout),
		nullableTime(s.StartedTypingAt),
		nullableTime(s.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// GetByID retrieves a stored session record.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`

	s, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("querying session: %w", err)
	}
	return s, nil
}

// History returns the most recent records, newest first. An empty target
// returns records for every target.
func (r *SQLiteRepository) History(ctx context.Context, target string, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions
		WHERE (? = '' OR target = ?)
		ORDER BY created_at DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, target, target, limit)
	if err != nil {
		return nil, fmt.Errorf("querying session history: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		s, scanErr := scanSession(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning session: %w", scanErr)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

// ─── Row Scanning Helpers ───────────────────────────────────────────────────

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(scanner rowScanner) (Session, error) {
	var s Session
	var engineID, lastError, startedAt, endedAt sql.NullString
	var status, profile, createdAt string

	err := scanner.Scan(
		&s.ID,
		&engineID,
		&s.Target,
		&status,
		&profile,
		&s.TotalChars,
		&s.CharsTyped,
		&s.Progress,
		&s.CurrentWPM,
		&lastError,
		&createdAt,
		&startedAt,
		&endedAt,
	)
	if err != nil {
		return Session{}, err
	}

	s.EngineID = engineID.String
	s.LastError = lastError.String
	s.Status = Status(status)

	// Stored profiles were validated on the way in.
	if p, perr := ParseProfile(profile); perr == nil {
		s.Profile = p
	} else {
		s.Profile = SpeedProfile{Name: profile}
	}

	if s.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return Session{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if s.StartedTypingAt, err = parseNullableTime(startedAt); err != nil {
		return Session{}, fmt.Errorf("parsing started_at: %w", err)
	}
	if s.EndedAt, err = parseNullableTime(endedAt); err != nil {
		return Session{}, fmt.Errorf("parsing ended_at: %w", err)
	}
	s.UpdatedAt = s.CreatedAt
	if s.EndedAt != nil {
		s.UpdatedAt = *s.EndedAt
	}
	return s, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseNullableTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil //nolint:nilnil // absent timestamp
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
