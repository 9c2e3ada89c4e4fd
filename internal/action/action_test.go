package action

import (
	"errors"
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    Action
		wantErr bool
	}{
		{"start", Start, false},
		{"STOP", Stop, false},
		{" pause ", Pause, false},
		{"generate", Generate, false},
		{"toggle-overlay", ToggleOverlay, false},
		{"toggle_overlay", ToggleOverlay, false},
		{"resume", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownAction) {
					t.Errorf("Parse(%q) error = %v, want ErrUnknownAction", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestAll_Valid(t *testing.T) {
	for _, a := range All() {
		if !a.Valid() {
			t.Errorf("%q reported invalid", a)
		}
	}
	if Action("resume").Valid() {
		t.Error("resume must not be a trigger action")
	}
}

func TestNeedsText(t *testing.T) {
	want := map[Action]bool{Start: true, Generate: true, Stop: false, Pause: false, ToggleOverlay: false}
	for a, w := range want {
		if a.NeedsText() != w {
			t.Errorf("%s.NeedsText() = %v, want %v", a, !w, w)
		}
	}
}

// ─── Bindings ───────────────────────────────────────────────────────

func TestNormalizeCombo(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"ctrl+shift+s", "ctrl+shift+s", false},
		{"Shift+Ctrl+S", "ctrl+shift+s", false},
		{"control+alt+x", "ctrl+alt+x", false},
		{"cmd+g", "super+g", false},
		{"ctrl+ctrl+p", "ctrl+p", false},
		{"f9", "f9", false},
		{"ctrl+shift", "", true},
		{"ctrl++s", "", true},
		{"a+b", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := NormalizeCombo(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCombo) {
					t.Errorf("NormalizeCombo(%q) error = %v, want ErrInvalidCombo", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeCombo(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeCombo(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseBindings(t *testing.T) {
	b, err := ParseBindings(map[string]string{
		"Shift+Ctrl+S": "start",
		"ctrl+alt+x":   "stop",
	})
	if err != nil {
		t.Fatalf("ParseBindings() error = %v", err)
	}

	if a, ok := b.Resolve("ctrl+shift+s"); !ok || a != Start {
		t.Errorf("Resolve(ctrl+shift+s) = %q, %v; want start", a, ok)
	}
	if _, ok := b.Resolve("ctrl+alt+q"); ok {
		t.Error("Resolve() matched an unbound combo")
	}

	t.Run("unknown action", func(t *testing.T) {
		if _, err := ParseBindings(map[string]string{"ctrl+k": "explode"}); !errors.Is(err, ErrUnknownAction) {
			t.Errorf("error = %v, want ErrUnknownAction", err)
		}
	})

	t.Run("conflicting combos", func(t *testing.T) {
		_, err := ParseBindings(map[string]string{"ctrl+shift+s": "start", "shift+ctrl+s": "stop"})
		if !errors.Is(err, ErrInvalidCombo) {
			t.Errorf("error = %v, want ErrInvalidCombo", err)
		}
	})
}

func TestDefaultBindings_CoverEveryAction(t *testing.T) {
	bound := map[Action]bool{}
	for combo, a := range DefaultBindings() {
		if norm, err := NormalizeCombo(combo); err != nil || norm != combo {
			t.Errorf("default combo %q is not normalized", combo)
		}
		bound[a] = true
	}
	for _, a := range All() {
		if !bound[a] {
			t.Errorf("no default binding for %s", a)
		}
	}
}

// ─── Debounce ───────────────────────────────────────────────────────

func TestDebouncer(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := NewDebouncer(300 * time.Millisecond)
	d.now = func() time.Time { return now }

	if !d.Allow("desktop", Start) {
		t.Fatal("first start rejected")
	}
	if d.Allow("desktop", Start) {
		t.Error("duplicate start inside window allowed")
	}
	if !d.Allow("laptop", Start) {
		t.Error("start on another target rejected")
	}
	if !d.Allow("desktop", Pause) {
		t.Error("different action rejected")
	}

	for i := 0; i < 3; i++ {
		if !d.Allow("desktop", Stop) {
			t.Fatal("stop must never be debounced")
		}
	}

	now = now.Add(300 * time.Millisecond)
	if !d.Allow("desktop", Start) {
		t.Error("start after window rejected")
	}
}

func TestDebouncer_ZeroWindow(t *testing.T) {
	d := NewDebouncer(0)
	for i := 0; i < 3; i++ {
		if !d.Allow("desktop", Generate) {
			t.Fatal("zero window must allow every delivery")
		}
	}
}
