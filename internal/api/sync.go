package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/typepilot/internal/action"
	"github.com/nerrad567/typepilot/internal/audit"
	"github.com/nerrad567/typepilot/internal/auth"
	"github.com/nerrad567/typepilot/internal/delivery"
	"github.com/nerrad567/typepilot/internal/orchestrator"
	"github.com/nerrad567/typepilot/internal/session"
)

// ErrUnknownCommand is returned for an observer command the hub does not know.
var ErrUnknownCommand = fmt.Errorf("%w: unknown command", action.ErrUnknownAction)

// ErrMissingSessionID is returned for a session command without a session id.
var ErrMissingSessionID = fmt.Errorf("%w: session_id is required", session.ErrValidation)

// SessionSnapshot is the snapshot payload of the session channel.
type SessionSnapshot struct {
	Sessions []session.Session `json:"sessions"`
}

// ReviewSnapshot is the snapshot payload of the review channel.
type ReviewSnapshot struct {
	Reviews []delivery.Review `json:"reviews"`
}

// OverlayState is the payload of the overlay channel.
type OverlayState struct {
	Visible bool `json:"visible"`
}

// GenerationState is the snapshot payload of the generation channel.
type GenerationState struct {
	Generating bool `json:"generating"`
}

// ReviewResolution is the payload of a review.resolved event.
type ReviewResolution struct {
	Review     delivery.Review     `json:"review"`
	Resolution delivery.Resolution `json:"resolution"`
}

// ─── Publishers ─────────────────────────────────────────────────────────────
// The Hub is the session.Publisher, delivery.Publisher and
// orchestrator.Notifier of the running core. None of these block.

// SessionUpdated broadcasts a session change.
func (h *Hub) SessionUpdated(s session.Session) {
	h.Broadcast(ChannelSession, s.Target, EventSessionUpdated, s)
}

// ReviewPending broadcasts a new review awaiting confirmation.
func (h *Hub) ReviewPending(r delivery.Review) {
	h.Broadcast(ChannelReview, r.Target, EventReviewPending, r)
}

// ReviewResolved broadcasts the end of a review.
func (h *Hub) ReviewResolved(r delivery.Review, resolution delivery.Resolution) {
	h.Broadcast(ChannelReview, r.Target, EventReviewResolved, ReviewResolution{Review: r, Resolution: resolution})
}

// Notice broadcasts a user-visible notice.
func (h *Hub) Notice(n orchestrator.Notice) {
	h.Broadcast(ChannelNotice, n.Target, EventNotice, n)
}

// Generation broadcasts a background generation's progress.
func (h *Hub) Generation(ev orchestrator.GenerationEvent) {
	eventType := EventGenerationStarted
	if ev.Phase == orchestrator.PhaseFinished {
		eventType = EventGenerationFinished
	}
	h.Broadcast(ChannelGeneration, ev.Target, eventType, ev)
}

// OverlayToggled broadcasts the overlay visibility.
func (h *Hub) OverlayToggled(target string, visible bool) {
	h.Broadcast(ChannelOverlay, target, EventOverlayToggled, OverlayState{Visible: visible})
}

// ─── Hub Backend ────────────────────────────────────────────────────────────

// snapshot returns the full current state of channel for target. Channels
// without state (notice) report false.
func (s *Server) snapshot(channel, target string) (any, bool) {
	switch channel {
	case ChannelSession:
		sessions := s.sessions.Snapshot(target)
		if sessions == nil {
			sessions = []session.Session{}
		}
		return SessionSnapshot{Sessions: sessions}, true
	case ChannelReview:
		reviews := []delivery.Review{}
		if s.reviews != nil {
			reviews = append(reviews, s.reviews.List(target)...)
		}
		return ReviewSnapshot{Reviews: reviews}, true
	case ChannelOverlay:
		return OverlayState{Visible: s.dispatcher.OverlayVisible(target)}, true
	case ChannelGeneration:
		return GenerationState{Generating: s.dispatcher.Generating(target)}, true
	default:
		return nil, false
	}
}

// command runs an observer command against target and records it in the
// audit log. Commands naming a session that belongs to another target are
// stale.
func (s *Server) command(ctx context.Context, surface auth.Surface, target string, cmd WSCommandPayload) (any, error) {
	result, err := s.runCommand(ctx, target, cmd)
	if errors.Is(err, ErrUnknownCommand) {
		return nil, err
	}

	rec := auditRecord{
		command:    cmd.Action,
		target:     target,
		entityType: audit.EntityTarget,
		source:     sourceWS,
		surface:    surface,
		err:        err,
	}
	if cmd.SessionID != "" {
		rec.entityType, rec.entityID = audit.EntitySession, cmd.SessionID
	}
	if res, ok := result.(session.Result); ok {
		rec.stale = res.Stale
		if rec.entityID == "" && res.SessionID != "" {
			rec.entityType, rec.entityID = audit.EntitySession, res.SessionID
		}
	}
	s.recordAudit(ctx, rec)
	return result, err
}

func (s *Server) runCommand(ctx context.Context, target string, cmd WSCommandPayload) (any, error) {
	switch cmd.Action {
	case CommandStopAll:
		out, err := s.dispatcher.Dispatch(ctx, orchestrator.Trigger{
			Target: target,
			Action: action.Stop,
			Origin: "observer",
		})
		if out.Stop == nil {
			return nil, err
		}
		// An engine failure still stopped the sessions locally.
		return out.Stop, err
	case CommandTogglePause:
		return s.sessions.TogglePause(ctx, target)
	case CommandPause, CommandResume, CommandStop:
		return s.sessionCommand(ctx, target, cmd.Action, cmd.SessionID)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Action)
	}
}

// sessionCommand applies pause, resume or stop to one session.
func (s *Server) sessionCommand(ctx context.Context, target, verb, id string) (session.Result, error) {
	if id == "" {
		return session.Result{}, ErrMissingSessionID
	}
	if sess, ok := s.sessions.Get(id); ok && target != "" && sess.Target != target {
		return session.Result{SessionID: id, Stale: true, Reason: "session belongs to another target"}, nil
	}

	switch verb {
	case CommandPause:
		return s.sessions.Pause(ctx, id)
	case CommandResume:
		return s.sessions.Resume(ctx, id)
	default:
		return s.sessions.Stop(ctx, id)
	}
}
