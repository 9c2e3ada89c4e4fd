package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/typepilot/internal/action"
	"github.com/nerrad567/typepilot/internal/audit"
	"github.com/nerrad567/typepilot/internal/capture"
	"github.com/nerrad567/typepilot/internal/orchestrator"
)

// actionRequest is the optional body of POST /actions/{action}.
type actionRequest struct {
	Target string        `json:"target"`
	Input  capture.Input `json:"input"`
}

// handleAction runs one action as if its hotkey had been pressed. The body
// may carry the text the calling surface captured itself.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	a, err := action.Parse(chi.URLParam(r, "action"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	target := s.targetOrDefault(req.Target)
	out, err := s.dispatcher.Dispatch(r.Context(), orchestrator.Trigger{
		Target: target,
		Action: a,
		Input:  req.Input,
		Origin: sourceAPI,
	})
	rec := auditRecord{
		command:    a.String(),
		target:     target,
		entityType: audit.EntityTarget,
		source:     sourceAPI,
		surface:    requestSurface(r),
		err:        err,
	}
	switch {
	case out.Session != nil:
		rec.entityType, rec.entityID = audit.EntitySession, out.Session.ID
	case out.GenerationID != "":
		rec.details = map[string]any{"generation_id": out.GenerationID}
	case out.Debounced:
		rec.details = map[string]any{"debounced": true}
	}
	s.recordAudit(r.Context(), rec)
	if err != nil {
		s.writeClassified(w, r, err)
		return
	}

	status := http.StatusOK
	if out.GenerationID != "" {
		status = http.StatusAccepted
	}
	writeJSON(w, status, out)
}

// handleStatus summarises the core for one target.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	target := s.targetOrDefault(r.URL.Query().Get("target"))

	resp := map[string]any{
		"target":            target,
		"generating":        s.dispatcher.Generating(target),
		"overlay_visible":   s.dispatcher.OverlayVisible(target),
		"observers":         s.hub.ClientCount(),
		"pending_reviews":   0,
		"sessions":          s.sessions.Snapshot(target),
		"engine_configured": s.engine != nil,
	}
	if s.reviews != nil {
		resp["pending_reviews"] = len(s.reviews.List(target))
	}
	if s.engine != nil {
		resp["engine_online"] = s.engine.Online()
	}
	writeJSON(w, http.StatusOK, resp)
}
