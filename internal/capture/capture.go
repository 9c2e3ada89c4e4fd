package capture

import (
	"context"
	"errors"
	"strings"

	"github.com/nerrad567/typepilot/internal/action"
)

// Source identifies where captured text came from.
type Source string

const (
	SourceNone         Source = ""
	SourceFocusedInput Source = "focused-input"
	SourceSelection    Source = "selection"
	SourceClipboard    Source = "clipboard"
)

// Capture is the resolved text and its origin.
type Capture struct {
	Text   string `json:"text"`
	Source Source `json:"source"`
}

// Input is what the triggering surface knows at trigger time.
type Input struct {
	// FocusedText is the content of the surface's own focused input.
	FocusedText string `json:"focused_text,omitempty"`

	// Selection and Clipboard are values the surface read itself.
	// Nil means it did not read them.
	Selection *string `json:"selection,omitempty"`
	Clipboard *string `json:"clipboard,omitempty"`
}

// Provider reads the ambient selection and clipboard.
type Provider interface {
	// Selection returns the current selection, or ErrUnavailable.
	Selection(ctx context.Context) (string, error)
	// Clipboard returns the clipboard contents, or ErrUnavailable.
	Clipboard(ctx context.Context) (string, error)
}

// Logger is the logging interface used by the resolver.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Resolver picks the text for an action.
type Resolver struct {
	provider Provider
	logger   Logger
}

// NewResolver creates a resolver backed by provider (usually a
// SystemProvider). provider may be nil when only supplied values are used.
func NewResolver(provider Provider, logger Logger) *Resolver {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Resolver{provider: provider, logger: logger}
}

// ResolveText returns the first non-blank source for a. Actions that do not
// operate on text resolve to an empty Capture.
func (r *Resolver) ResolveText(ctx context.Context, a action.Action, in Input) (Capture, error) {
	if !a.NeedsText() {
		return Capture{}, nil
	}

	if !isBlank(in.FocusedText) {
		return Capture{Text: in.FocusedText, Source: SourceFocusedInput}, nil
	}

	chain := Chain{Supplied(in)}
	if r.provider != nil {
		chain = append(chain, r.provider)
	}

	steps := []struct {
		source Source
		read   func(context.Context) (string, error)
	}{
		{SourceSelection, chain.Selection},
		{SourceClipboard, chain.Clipboard},
	}
	for _, step := range steps {
		text, err := step.read(ctx)
		if err != nil {
			if !errors.Is(err, ErrUnavailable) {
				r.logger.Warn("capture source failed", "source", step.source, "error", err)
			}
			continue
		}
		if !isBlank(text) {
			return Capture{Text: text, Source: step.source}, nil
		}
	}

	r.logger.Debug("no text captured", "action", a)
	return Capture{}, ErrNoTextAvailable
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
