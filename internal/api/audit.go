package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/typepilot/internal/audit"
	"github.com/nerrad567/typepilot/internal/auth"
	"github.com/nerrad567/typepilot/internal/orchestrator"
)

// auditWriteTimeout bounds one audit insert so a slow disk never holds a
// command reply.
const auditWriteTimeout = 2 * time.Second

// Audit command names for commands that are not actions.
const (
	auditStopAll       = "stop-all"
	auditReviewConfirm = "review-confirm"
	auditReviewReject  = "review-reject"
)

// Audit sources.
const (
	sourceAPI = "api"
	sourceWS  = "ws"
)

// AuditLog stores control commands. Satisfied by *audit.SQLiteRepository.
type AuditLog interface {
	Create(ctx context.Context, e *audit.Entry) error
	List(ctx context.Context, filter audit.Filter) (*audit.ListResult, error)
}

// auditRecord describes one command for the audit log.
type auditRecord struct {
	command    string
	target     string
	entityType string
	entityID   string
	source     string
	surface    auth.Surface
	stale      bool
	err        error
	details    map[string]any
}

// recordAudit appends rec to the audit log, if one is configured. Failures
// are logged and never reach the caller.
func (s *Server) recordAudit(ctx context.Context, rec auditRecord) {
	if s.audit == nil {
		return
	}

	e := &audit.Entry{
		Command:    rec.command,
		Target:     rec.target,
		EntityType: rec.entityType,
		EntityID:   rec.entityID,
		Surface:    rec.surface.Name,
		Role:       string(rec.surface.Role),
		Source:     rec.source,
		Outcome:    audit.OutcomeOK,
		Details:    rec.details,
	}
	switch {
	case rec.err != nil:
		e.Outcome = audit.OutcomeError
		if e.Details == nil {
			e.Details = map[string]any{}
		}
		e.Details["kind"] = string(orchestrator.Classify(rec.err))
		e.Details["error"] = rec.err.Error()
	case rec.stale:
		e.Outcome = audit.OutcomeStale
	}

	// The request context may already be cancelled by the time the reply is
	// written; the entry should still land.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()
	if err := s.audit.Create(writeCtx, e); err != nil {
		s.logger.Warn("recording audit entry failed",
			"command", rec.command,
			"target", rec.target,
			"error", err,
		)
	}
}

// requestSurface returns the authenticated surface of r. Routes that audit
// are always behind authMiddleware.
func requestSurface(r *http.Request) auth.Surface {
	surface, _ := surfaceFromContext(r.Context())
	return surface
}

// handleListAudit returns one page of the audit log, newest first.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "audit log is not configured")
		return
	}

	limit, err := queryLimit(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	q := r.URL.Query()
	offset := 0
	if raw := q.Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			writeBadRequest(w, "offset must be a non-negative integer")
			return
		}
	}

	res, err := s.audit.List(r.Context(), audit.Filter{
		Command: q.Get("command"),
		Target:  q.Get("target"),
		Surface: q.Get("surface"),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		s.writeClassified(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
