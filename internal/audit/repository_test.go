package audit

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/typepilot/internal/infrastructure/database"
	"github.com/nerrad567/typepilot/migrations"
)

func setupTestRepo(t *testing.T) *SQLiteRepository {
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
	return NewSQLiteRepository(db.DB)
}

func seed(t *testing.T, r *SQLiteRepository, entries ...Entry) {
	t.Helper()
	base := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
	for i := range entries {
		entries[i].CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := r.Create(context.Background(), &entries[i]); err != nil {
			t.Fatalf("Create(%+v) error = %v", entries[i], err)
		}
	}
}

// ─── Create Tests ──────────────────────────────────────────────────

func TestCreate_FillsDefaults(t *testing.T) {
	r := setupTestRepo(t)
	at := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return at }

	e := &Entry{Command: "pause", Target: "desk", EntityType: EntitySession, EntityID: "s-1", Surface: "overlay", Role: "controller", Source: "ws"}
	if err := r.Create(context.Background(), e); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(e.ID) != len("aud-")+8 || e.ID[:4] != "aud-" {
		t.Errorf("ID = %q", e.ID)
	}
	if !e.CreatedAt.Equal(at) || e.Outcome != OutcomeOK {
		t.Errorf("entry = %+v", e)
	}

	res, err := r.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 1 || len(res.Entries) != 1 {
		t.Fatalf("List() = %+v", res)
	}
	got := res.Entries[0]
	if got.ID != e.ID || got.EntityID != "s-1" || got.Surface != "overlay" || got.Source != "ws" || !got.CreatedAt.Equal(at) {
		t.Errorf("stored entry = %+v", got)
	}
	if got.Details != nil {
		t.Errorf("Details = %v, want nil", got.Details)
	}
}

func TestCreate_Details(t *testing.T) {
	r := setupTestRepo(t)
	seed(t, r, Entry{
		Command: "start", Target: "desk", EntityType: EntityTarget,
		Surface: "cli", Role: "controller", Source: "api", Outcome: OutcomeError,
		Details: map[string]any{"error": "no text captured", "kind": "no_text"},
	})

	res, err := r.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	got := res.Entries[0]
	if got.Outcome != OutcomeError || got.EntityID != "" {
		t.Errorf("entry = %+v", got)
	}
	if got.Details["kind"] != "no_text" || got.Details["error"] != "no text captured" {
		t.Errorf("Details = %v", got.Details)
	}
}

// ─── List Tests ────────────────────────────────────────────────────

func TestList_Filters(t *testing.T) {
	r := setupTestRepo(t)
	seed(t, r,
		Entry{Command: "start", Target: "desk", EntityType: EntityTarget, Surface: "cli", Role: "controller", Source: "api"},
		Entry{Command: "pause", Target: "desk", EntityType: EntitySession, EntityID: "s-1", Surface: "overlay", Role: "controller", Source: "ws"},
		Entry{Command: "pause", Target: "laptop", EntityType: EntitySession, EntityID: "s-2", Surface: "overlay", Role: "controller", Source: "ws"},
		Entry{Command: "review-reject", Target: "desk", EntityType: EntityReview, EntityID: "r-1", Surface: "phone", Role: "admin", Source: "api"},
	)

	tests := []struct {
		name   string
		filter Filter
		want   []string // entity IDs or commands, newest first
	}{
		{"all", Filter{}, []string{"review-reject", "pause", "pause", "start"}},
		{"by command", Filter{Command: "pause"}, []string{"pause", "pause"}},
		{"by target", Filter{Target: "desk"}, []string{"review-reject", "pause", "start"}},
		{"by surface", Filter{Surface: "overlay", Target: "laptop"}, []string{"pause"}},
		{"none", Filter{Command: "stop-all"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.List(context.Background(), tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != len(tt.want) || len(res.Entries) != len(tt.want) {
				t.Fatalf("got %d entries (total %d), want %d", len(res.Entries), res.Total, len(tt.want))
			}
			for i, cmd := range tt.want {
				if res.Entries[i].Command != cmd {
					t.Errorf("entry %d command = %q, want %q", i, res.Entries[i].Command, cmd)
				}
			}
		})
	}
}

func TestList_Pagination(t *testing.T) {
	r := setupTestRepo(t)
	var entries []Entry
	for i := 0; i < 5; i++ {
		entries = append(entries, Entry{Command: "stop", Target: "desk", EntityType: EntitySession, EntityID: string(rune('a' + i)), Surface: "cli", Role: "controller", Source: "api"})
	}
	seed(t, r, entries...)

	res, err := r.List(context.Background(), Filter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 5 || res.Limit != 2 || res.Offset != 1 {
		t.Errorf("page = total %d limit %d offset %d", res.Total, res.Limit, res.Offset)
	}
	if len(res.Entries) != 2 || res.Entries[0].EntityID != "d" || res.Entries[1].EntityID != "c" {
		t.Errorf("entries = %+v", res.Entries)
	}
}

func TestList_ClampsLimit(t *testing.T) {
	r := setupTestRepo(t)

	tests := []struct {
		in, want int
	}{
		{0, defaultListLimit},
		{-3, defaultListLimit},
		{1000, maxListLimit},
		{10, 10},
	}
	for _, tt := range tests {
		res, err := r.List(context.Background(), Filter{Limit: tt.in, Offset: -1})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if res.Limit != tt.want || res.Offset != 0 {
			t.Errorf("Limit %d → %d (offset %d), want %d", tt.in, res.Limit, res.Offset, tt.want)
		}
		if res.Entries == nil {
			t.Error("Entries should be an empty slice, not nil")
		}
	}
}
