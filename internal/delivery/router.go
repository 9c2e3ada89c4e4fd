package delivery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/typepilot/internal/session"
)

// Outcome is how a routed result was delivered.
type Outcome string

const (
	OutcomeReviewPending  Outcome = "review-pending"
	OutcomePasted         Outcome = "pasted"
	OutcomeSessionStarted Outcome = "session-started"
)

// SessionStarter starts typing sessions. Satisfied by *session.Machine.
type SessionStarter interface {
	Start(ctx context.Context, target, text string, profile session.SpeedProfile) (session.Session, error)
	StartAtEpoch(ctx context.Context, target, text string, profile session.SpeedProfile, epoch uint64) (session.Session, error)
	StopEpoch(target string) uint64
}

// Publisher is notified when reviews enter and leave the gate.
type Publisher interface {
	ReviewPending(r Review)
	ReviewResolved(r Review, resolution Resolution)
}

// Logger is the logging interface used by delivery.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopPublisher struct{}

func (noopPublisher) ReviewPending(Review)              {}
func (noopPublisher) ReviewResolved(Review, Resolution) {}

// Route is one completed generation to deliver.
type Route struct {
	Target    string
	Text      string
	Humanized bool
	Profile   session.SpeedProfile

	ReviewMode bool
	PasteMode  bool

	// StopEpoch is the target's stop epoch when the generation was
	// triggered. A panic stop since then drops the delivery.
	StopEpoch uint64
}

// Delivery describes what Route or Confirm did.
type Delivery struct {
	Outcome   Outcome          `json:"outcome"`
	ReviewID  string           `json:"review_id,omitempty"`
	Session   *session.Session `json:"session,omitempty"`
	Inserted  bool             `json:"inserted,omitempty"`
	Humanized bool             `json:"humanized"`
}

// Router applies the review > paste > session precedence.
type Router struct {
	sessions  SessionStarter
	paster    *Paster
	reviews   *Reviews
	publisher Publisher
	logger    Logger
}

// NewRouter creates a router. publisher may be nil.
func NewRouter(sessions SessionStarter, paster *Paster, reviews *Reviews, publisher Publisher, logger Logger) *Router {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Router{
		sessions:  sessions,
		paster:    paster,
		reviews:   reviews,
		publisher: publisher,
		logger:    logger,
	}
}

// Reviews returns the review store.
func (r *Router) Reviews() *Reviews {
	return r.reviews
}

// Route delivers a completed generation.
func (r *Router) Route(ctx context.Context, rt Route) (Delivery, error) {
	if strings.TrimSpace(rt.Text) == "" {
		return Delivery{}, ErrEmptyText
	}

	if current := r.sessions.StopEpoch(rt.Target); current != rt.StopEpoch {
		return Delivery{}, fmt.Errorf("%w: epoch %d, now %d", session.ErrStoppedSince, rt.StopEpoch, current)
	}

	if rt.ReviewMode {
		rev := r.reviews.Add(rt.Target, rt.Text, rt.Humanized, rt.Profile)
		r.logger.Info("review pending", "review_id", rev.ID, "target", rt.Target)
		r.publisher.ReviewPending(rev)
		return Delivery{Outcome: OutcomeReviewPending, ReviewID: rev.ID, Humanized: rt.Humanized}, nil
	}

	if rt.PasteMode {
		d, err := r.paste(ctx, rt.Text)
		d.Humanized = rt.Humanized
		return d, err
	}

	// The session machine re-checks the epoch in the same turn as the start.
	s, err := r.sessions.StartAtEpoch(ctx, rt.Target, rt.Text, rt.Profile, rt.StopEpoch)
	if err != nil {
		return Delivery{}, err
	}
	return Delivery{Outcome: OutcomeSessionStarted, Session: &s, Humanized: rt.Humanized}, nil
}

// Confirm delivers a pending review. A non-empty editedText replaces the
// generated text. pasteMode is the paste setting in force now. On delivery
// failure the review stays pending.
func (r *Router) Confirm(ctx context.Context, id, editedText string, pasteMode bool) (Delivery, error) {
	rev, err := r.reviews.claim(id)
	if err != nil {
		return Delivery{}, err
	}

	text := rev.Text
	if strings.TrimSpace(editedText) != "" {
		text = editedText
	}

	d, err := r.deliver(ctx, rev.Target, text, rev.Profile, pasteMode)
	if err != nil {
		r.reviews.release(id)
		return Delivery{}, fmt.Errorf("delivering review %s: %w", id, err)
	}

	d.ReviewID = id
	d.Humanized = rev.Humanized && text == rev.Text
	if removed, ok := r.reviews.remove(id); ok {
		r.publisher.ReviewResolved(removed, ResolutionConfirmed)
	}
	return d, nil
}

// Reject discards a pending review.
func (r *Router) Reject(id string) error {
	if _, err := r.reviews.claim(id); err != nil {
		return err
	}
	rev, _ := r.reviews.remove(id)
	r.logger.Info("review rejected", "review_id", id)
	r.publisher.ReviewResolved(rev, ResolutionRejected)
	return nil
}

// RunExpiry publishes expired reviews until ctx is cancelled.
func (r *Router) RunExpiry(ctx context.Context, interval time.Duration) {
	r.reviews.RunExpiry(ctx, interval, func(rev Review) {
		r.logger.Info("review expired", "review_id", rev.ID)
		r.publisher.ReviewResolved(rev, ResolutionExpired)
	})
}

func (r *Router) paste(ctx context.Context, text string) (Delivery, error) {
	inserted, err := r.paster.Paste(ctx, text)
	if err != nil {
		return Delivery{}, err
	}
	return Delivery{Outcome: OutcomePasted, Inserted: inserted}, nil
}

func (r *Router) deliver(ctx context.Context, target, text string, profile session.SpeedProfile, paste bool) (Delivery, error) {
	if paste {
		return r.paste(ctx, text)
	}

	s, err := r.sessions.Start(ctx, target, text, profile)
	if err != nil {
		return Delivery{}, err
	}
	return Delivery{Outcome: OutcomeSessionStarted, Session: &s}, nil
}
