package capture

import (
	"context"
	"errors"
	"testing"

	"github.com/nerrad567/typepilot/internal/action"
)

// mockProvider serves fixed values; nil fields report ErrUnavailable.
type mockProvider struct {
	selection *string
	clipboard *string
	err       error
	reads     int
}

func (p *mockProvider) Selection(context.Context) (string, error) {
	p.reads++
	if p.err != nil {
		return "", p.err
	}
	if p.selection == nil {
		return "", ErrUnavailable
	}
	return *p.selection, nil
}

func (p *mockProvider) Clipboard(context.Context) (string, error) {
	p.reads++
	if p.err != nil {
		return "", p.err
	}
	if p.clipboard == nil {
		return "", ErrUnavailable
	}
	return *p.clipboard, nil
}

func ptr(s string) *string { return &s }

func TestResolver_ResolveText(t *testing.T) {
	tests := []struct {
		name       string
		in         Input
		provider   *mockProvider
		wantText   string
		wantSource Source
		wantErr    error
	}{
		{
			name:       "focused input wins",
			in:         Input{FocusedText: "typed in the box"},
			provider:   &mockProvider{selection: ptr("selected"), clipboard: ptr("copied")},
			wantText:   "typed in the box",
			wantSource: SourceFocusedInput,
		},
		{
			name:       "selection before clipboard",
			in:         Input{FocusedText: "   "},
			provider:   &mockProvider{selection: ptr("selected"), clipboard: ptr("copied")},
			wantText:   "selected",
			wantSource: SourceSelection,
		},
		{
			name:       "blank selection falls to clipboard",
			provider:   &mockProvider{selection: ptr("\n\t"), clipboard: ptr("copied")},
			wantText:   "copied",
			wantSource: SourceClipboard,
		},
		{
			name:       "selection unavailable",
			provider:   &mockProvider{clipboard: ptr("copied")},
			wantText:   "copied",
			wantSource: SourceClipboard,
		},
		{
			name:       "supplied values preferred over system",
			in:         Input{Selection: ptr("from the ui")},
			provider:   &mockProvider{selection: ptr("from the os")},
			wantText:   "from the ui",
			wantSource: SourceSelection,
		},
		{
			name:       "supplied blank selection then system clipboard",
			in:         Input{Selection: ptr("")},
			provider:   &mockProvider{clipboard: ptr("copied")},
			wantText:   "copied",
			wantSource: SourceClipboard,
		},
		{
			name:     "everything blank",
			in:       Input{FocusedText: " "},
			provider: &mockProvider{selection: ptr(""), clipboard: ptr("  ")},
			wantErr:  ErrNoTextAvailable,
		},
		{
			name:     "provider errors are skipped",
			provider: &mockProvider{err: errors.New("xclip missing")},
			wantErr:  ErrNoTextAvailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(tt.provider, nil)
			got, err := r.ResolveText(context.Background(), action.Start, tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ResolveText() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveText() error = %v", err)
			}
			if got.Text != tt.wantText || got.Source != tt.wantSource {
				t.Errorf("ResolveText() = %+v, want %q from %q", got, tt.wantText, tt.wantSource)
			}
		})
	}
}

func TestResolver_ActionsWithoutText(t *testing.T) {
	p := &mockProvider{clipboard: ptr("copied")}
	r := NewResolver(p, nil)

	for _, a := range []action.Action{action.Stop, action.Pause, action.ToggleOverlay} {
		got, err := r.ResolveText(context.Background(), a, Input{})
		if err != nil || got != (Capture{}) {
			t.Errorf("ResolveText(%s) = %+v, %v; want empty", a, got, err)
		}
	}
	if p.reads != 0 {
		t.Errorf("provider read %d times for text-less actions", p.reads)
	}
}

func TestResolver_NilProvider(t *testing.T) {
	r := NewResolver(nil, nil)

	got, err := r.ResolveText(context.Background(), action.Generate, Input{Clipboard: ptr("question?")})
	if err != nil {
		t.Fatalf("ResolveText() error = %v", err)
	}
	if got.Source != SourceClipboard {
		t.Errorf("Source = %q, want clipboard", got.Source)
	}

	if _, err := r.ResolveText(context.Background(), action.Generate, Input{}); !errors.Is(err, ErrNoTextAvailable) {
		t.Errorf("ResolveText() error = %v, want ErrNoTextAvailable", err)
	}
}

func TestChain_SkipsUnavailable(t *testing.T) {
	chain := Chain{
		&mockProvider{},
		&mockProvider{clipboard: ptr("second")},
		&mockProvider{clipboard: ptr("third")},
	}
	got, err := chain.Clipboard(context.Background())
	if err != nil || got != "second" {
		t.Errorf("Clipboard() = %q, %v; want second", got, err)
	}

	if _, err := (Chain{}).Selection(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("empty chain error = %v, want ErrUnavailable", err)
	}
}
