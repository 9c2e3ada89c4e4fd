package learning

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const (
	defaultListLimit = 50
	maxListLimit     = 500

	// maxFieldLen truncates very long answers before storage.
	maxFieldLen = 20_000
)

// ErrEmptyTopic is returned when the question or answer is blank.
var ErrEmptyTopic = errors.New("learning: question and answer are required")

// Topic is one recorded question/answer pair.
type Topic struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists topics in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a store on an open, migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// RecordTopic appends a question/answer pair.
func (s *Store) RecordTopic(ctx context.Context, question, answer string) error {
	question = strings.TrimSpace(question)
	answer = strings.TrimSpace(answer)
	if question == "" || answer == "" {
		return ErrEmptyTopic
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO learning_topics (id, question, answer, created_at) VALUES (?, ?, ?, ?)`,
		uuid.NewString(),
		truncate(question),
		truncate(answer),
		s.now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("recording topic: %w", err)
	}
	return nil
}

// List returns the most recent topics, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Topic, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, question, answer, created_at FROM learning_topics
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying topics: %w", err)
	}
	defer rows.Close()

	topics := []Topic{}
	for rows.Next() {
		var t Topic
		var createdAt string
		if err := rows.Scan(&t.ID, &t.Question, &t.Answer, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning topic: %w", err)
		}
		if t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating topics: %w", err)
	}
	return topics, nil
}

// Count returns the number of recorded topics.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM learning_topics`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting topics: %w", err)
	}
	return n, nil
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxFieldLen {
		return s
	}
	return string(r[:maxFieldLen])
}
