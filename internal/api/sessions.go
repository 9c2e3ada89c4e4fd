package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/typepilot/internal/action"
	"github.com/nerrad567/typepilot/internal/audit"
	"github.com/nerrad567/typepilot/internal/orchestrator"
	"github.com/nerrad567/typepilot/internal/session"
)

var errInvalidLimit = errors.New("limit must be a non-negative integer")

// handleListSessions returns the live snapshot for a target: the active
// session and recently finished ones.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	target := s.targetOrDefault(r.URL.Query().Get("target"))
	sessions := s.sessions.Snapshot(target)
	if sessions == nil {
		sessions = []session.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"target":   target,
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// handleGetSession returns one session known to the machine.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, ok := s.sessions.Get(id)
	if !ok {
		writeNotFound(w, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleSessionHistory returns stored session records, newest first.
// An explicit empty target (?target=) lists every target.
func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "session history is not configured")
		return
	}

	limit, err := queryLimit(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	target := s.target
	if q := r.URL.Query(); q.Has("target") {
		target = q.Get("target")
	}

	sessions, err := s.history.History(r.Context(), target, limit)
	if err != nil {
		s.writeClassified(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// handleSessionCommand returns a handler that applies verb to the session
// in the URL. Unknown or finished sessions answer 200 with stale=true.
func (s *Server) handleSessionCommand(verb string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
		defer cancel()

		id := chi.URLParam(r, "id")
		res, err := s.sessionCommand(ctx, "", verb, id)
		target := ""
		if sess, ok := s.sessions.Get(id); ok {
			target = sess.Target
		}
		s.recordAudit(r.Context(), auditRecord{
			command:    verb,
			target:     target,
			entityType: audit.EntitySession,
			entityID:   id,
			source:     sourceAPI,
			surface:    requestSurface(r),
			stale:      res.Stale,
			err:        err,
		})
		if err != nil {
			s.writeClassified(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// stopAllError is the error body of a stop-all whose engine call failed.
// The sessions were stopped locally all the same; Stop says which.
type stopAllError struct {
	Error
	Stop *session.StopResult `json:"stop"`
}

// handleStopAll stops every session on a target. A generation in flight
// runs on and its result is dropped.
func (s *Server) handleStopAll(w http.ResponseWriter, r *http.Request) {
	target := s.targetOrDefault(r.URL.Query().Get("target"))
	out, err := s.dispatcher.Dispatch(r.Context(), orchestrator.Trigger{
		Target: target,
		Action: action.Stop,
		Origin: sourceAPI,
	})
	s.recordAudit(r.Context(), auditRecord{
		command:    auditStopAll,
		target:     target,
		entityType: audit.EntityTarget,
		source:     sourceAPI,
		surface:    requestSurface(r),
		err:        err,
	})
	if err != nil && out.Stop != nil && errors.Is(err, session.ErrEngine) {
		status, code := statusForKind(orchestrator.Classify(err))
		writeJSON(w, status, stopAllError{
			Error: Error{Status: status, Code: code, Message: err.Error()},
			Stop:  out.Stop,
		})
		return
	}
	if err != nil {
		s.writeClassified(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out.Stop)
}

// queryLimit parses the optional limit query parameter. Zero means the
// store's default.
func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errInvalidLimit
	}
	return n, nil
}
