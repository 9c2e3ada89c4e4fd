package orchestrator

import (
	"context"
	"errors"

	"github.com/nerrad567/typepilot/internal/action"
	"github.com/nerrad567/typepilot/internal/capture"
	"github.com/nerrad567/typepilot/internal/delivery"
	"github.com/nerrad567/typepilot/internal/generation"
	"github.com/nerrad567/typepilot/internal/session"
	"github.com/nerrad567/typepilot/internal/settings"
)

// Kind is the class of an orchestration error.
type Kind string

const (
	KindNone              Kind = ""
	KindValidation        Kind = "validation"
	KindUpstreamTransient Kind = "upstream-transient"
	KindUpstreamFatal     Kind = "upstream-fatal"
	KindNoText            Kind = "no-text"
	KindStale             Kind = "stale"
	KindRejected          Kind = "rejected"
	KindInternal          Kind = "internal"
)

// UserVisible reports whether errors of this kind are shown to the user.
func (k Kind) UserVisible() bool {
	switch k {
	case KindValidation, KindUpstreamTransient, KindUpstreamFatal, KindNoText, KindRejected:
		return true
	}
	return false
}

// Classify returns the Kind of err. Nil is KindNone.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone

	case errors.Is(err, capture.ErrNoTextAvailable):
		return KindNoText

	case errors.Is(err, session.ErrValidation),
		errors.Is(err, generation.ErrInvalidRequest),
		errors.Is(err, delivery.ErrEmptyText),
		errors.Is(err, settings.ErrInvalidSettings),
		errors.Is(err, action.ErrUnknownAction),
		errors.Is(err, action.ErrInvalidCombo):
		return KindValidation

	case errors.Is(err, generation.ErrRateLimited):
		return KindUpstreamTransient

	case errors.Is(err, generation.ErrServiceUnavailable),
		errors.Is(err, generation.ErrMalformedResponse),
		errors.Is(err, generation.ErrTimeout),
		errors.Is(err, session.ErrEngine),
		errors.Is(err, delivery.ErrPasteFailed):
		return KindUpstreamFatal

	case errors.Is(err, session.ErrSessionActive),
		errors.Is(err, ErrGenerationInProgress),
		errors.Is(err, delivery.ErrReviewBusy):
		return KindRejected

	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrStoppedSince),
		errors.Is(err, delivery.ErrReviewNotFound),
		errors.Is(err, context.Canceled):
		return KindStale
	}
	return KindInternal
}
