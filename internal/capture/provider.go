package capture

import (
	"context"
	"errors"
	"sync"

	"github.com/atotto/clipboard"
)

// SuppliedProvider serves values the triggering surface read itself.
type SuppliedProvider struct {
	selection *string
	clipboard *string
}

// Supplied returns a provider for the values carried by in.
func Supplied(in Input) SuppliedProvider {
	return SuppliedProvider{selection: in.Selection, clipboard: in.Clipboard}
}

// Selection returns the supplied selection.
func (p SuppliedProvider) Selection(context.Context) (string, error) {
	if p.selection == nil {
		return "", ErrUnavailable
	}
	return *p.selection, nil
}

// Clipboard returns the supplied clipboard.
func (p SuppliedProvider) Clipboard(context.Context) (string, error) {
	if p.clipboard == nil {
		return "", ErrUnavailable
	}
	return *p.clipboard, nil
}

// Chain asks each provider in turn, skipping those that report
// ErrUnavailable.
type Chain []Provider

// Selection returns the first available selection.
func (c Chain) Selection(ctx context.Context) (string, error) {
	return c.first(ctx, Provider.Selection)
}

// Clipboard returns the first available clipboard.
func (c Chain) Clipboard(ctx context.Context) (string, error) {
	return c.first(ctx, Provider.Clipboard)
}

func (c Chain) first(ctx context.Context, read func(Provider, context.Context) (string, error)) (string, error) {
	for _, p := range c {
		text, err := read(p, ctx)
		if errors.Is(err, ErrUnavailable) {
			continue
		}
		return text, err
	}
	return "", ErrUnavailable
}

// clipboardMu guards atotto/clipboard, whose Primary switch is package state.
var clipboardMu sync.Mutex

// SystemProvider reads the OS clipboard and, where the platform has one,
// the primary selection.
type SystemProvider struct{}

// Selection reads the primary selection (X11/Wayland only).
func (SystemProvider) Selection(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if clipboard.Unsupported {
		return "", ErrUnavailable
	}
	clipboardMu.Lock()
	defer clipboardMu.Unlock()
	return readPrimary()
}

// Clipboard reads the system clipboard.
func (SystemProvider) Clipboard(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if clipboard.Unsupported {
		return "", ErrUnavailable
	}
	clipboardMu.Lock()
	defer clipboardMu.Unlock()
	return clipboard.ReadAll()
}

// WriteClipboard replaces the system clipboard contents.
func (SystemProvider) WriteClipboard(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if clipboard.Unsupported {
		return ErrUnavailable
	}
	clipboardMu.Lock()
	defer clipboardMu.Unlock()
	return clipboard.WriteAll(text)
}
