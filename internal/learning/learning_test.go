package learning

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/typepilot/internal/infrastructure/database"
	"github.com/nerrad567/typepilot/migrations"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	db, err := database.OpenMemory(ctx)
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	return NewStore(db.DB)
}

func TestStore_RecordAndList(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for i, q := range []string{"first?", "second?", "third?"} {
		at := base.Add(time.Duration(i) * time.Minute)
		s.now = func() time.Time { return at }
		if err := s.RecordTopic(ctx, "  "+q+"\n", "answer to "+q); err != nil {
			t.Fatalf("RecordTopic(%q) error = %v", q, err)
		}
	}

	topics, err := s.List(ctx, 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(topics) != 2 {
		t.Fatalf("List() returned %d topics, want 2", len(topics))
	}
	if topics[0].Question != "third?" || topics[1].Question != "second?" {
		t.Errorf("order = %q, %q; want newest first", topics[0].Question, topics[1].Question)
	}
	if topics[0].Answer != "answer to third?" || topics[0].ID == "" {
		t.Errorf("topic = %+v", topics[0])
	}
	if !topics[0].CreatedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("CreatedAt = %v", topics[0].CreatedAt)
	}

	n, err := s.Count(ctx)
	if err != nil || n != 3 {
		t.Errorf("Count() = %d, %v; want 3", n, err)
	}
}

func TestStore_RecordTopicValidation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name, question, answer string
	}{
		{"blank question", " ", "a"},
		{"blank answer", "q", "\t"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.RecordTopic(ctx, tt.question, tt.answer); !errors.Is(err, ErrEmptyTopic) {
				t.Errorf("RecordTopic() error = %v, want ErrEmptyTopic", err)
			}
		})
	}

	if n, _ := s.Count(ctx); n != 0 {
		t.Errorf("Count() = %d after rejected writes", n)
	}
}

func TestStore_TruncatesLongAnswers(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.RecordTopic(ctx, "essay?", strings.Repeat("é", maxFieldLen+10)); err != nil {
		t.Fatalf("RecordTopic() error = %v", err)
	}
	topics, err := s.List(ctx, 0)
	if err != nil || len(topics) != 1 {
		t.Fatalf("List() = %v, %v", topics, err)
	}
	if got := len([]rune(topics[0].Answer)); got != maxFieldLen {
		t.Errorf("stored %d runes, want %d", got, maxFieldLen)
	}
}

func TestStore_CancelledContext(t *testing.T) {
	s := setupTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.RecordTopic(ctx, "q", "a"); err == nil {
		t.Error("RecordTopic() with cancelled context succeeded")
	}
}
