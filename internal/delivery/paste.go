package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/typepilot/internal/engine"
)

// ClipboardWriter replaces the clipboard contents. Satisfied by
// capture.SystemProvider.
type ClipboardWriter interface {
	WriteClipboard(ctx context.Context, text string) error
}

// Inserter places text at the cursor in one step. Satisfied by *engine.Client.
type Inserter interface {
	Insert(ctx context.Context, text string) error
}

// Paster delivers text instantly: it writes the clipboard and, when a
// focused editable exists, inserts the text at the cursor.
type Paster struct {
	clipboard ClipboardWriter
	inserter  Inserter
	logger    Logger
}

// NewPaster creates a paster. Either dependency may be nil.
func NewPaster(clipboard ClipboardWriter, inserter Inserter, logger Logger) *Paster {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Paster{clipboard: clipboard, inserter: inserter, logger: logger}
}

// Paste reports whether the text was inserted at the cursor. A missing
// focused input is not an error as long as the clipboard holds the text.
func (p *Paster) Paste(ctx context.Context, text string) (inserted bool, err error) {
	var clipErr error
	if p.clipboard != nil {
		if clipErr = p.clipboard.WriteClipboard(ctx, text); clipErr != nil {
			p.logger.Warn("clipboard write failed", "error", clipErr)
		}
	} else {
		clipErr = errors.New("no clipboard")
	}

	if p.inserter == nil {
		if clipErr != nil {
			return false, fmt.Errorf("%w: %w", ErrPasteFailed, clipErr)
		}
		return false, nil
	}

	insErr := p.inserter.Insert(ctx, text)
	switch {
	case insErr == nil:
		return true, nil
	case errors.Is(insErr, engine.ErrNoFocusedInput) && clipErr == nil:
		p.logger.Debug("no focused input, text left on clipboard")
		return false, nil
	case clipErr == nil:
		p.logger.Warn("direct insertion failed, text left on clipboard", "error", insErr)
		return false, nil
	default:
		return false, fmt.Errorf("%w: clipboard: %w; insert: %w", ErrPasteFailed, clipErr, insErr)
	}
}
