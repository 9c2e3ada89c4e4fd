package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/typepilot/internal/audit"
	"github.com/nerrad567/typepilot/internal/delivery"
)

// confirmRequest is the optional body of POST /reviews/{id}/confirm.
// A blank text confirms the generated text unchanged.
type confirmRequest struct {
	Text string `json:"text"`
}

// handleListReviews returns the reviews awaiting confirmation, oldest first.
func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	target := s.targetOrDefault(r.URL.Query().Get("target"))
	reviews := []delivery.Review{}
	if s.reviews != nil {
		reviews = append(reviews, s.reviews.List(target)...)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"target":  target,
		"reviews": reviews,
		"count":   len(reviews),
	})
}

// handleConfirmReview delivers a pending review, optionally with edited
// text. Paste mode is read from the settings in force now.
func (s *Server) handleConfirmReview(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	id := chi.URLParam(r, "id")
	target := s.reviewTarget(id)
	del, err := s.dispatcher.ConfirmReview(r.Context(), id, req.Text)
	rec := auditRecord{
		command:    auditReviewConfirm,
		target:     target,
		entityType: audit.EntityReview,
		entityID:   id,
		source:     sourceAPI,
		surface:    requestSurface(r),
		err:        err,
	}
	if req.Text != "" {
		rec.details = map[string]any{"edited": true}
	}
	s.recordAudit(r.Context(), rec)
	if err != nil {
		s.writeClassified(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, del)
}

// handleRejectReview discards a pending review.
func (s *Server) handleRejectReview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	target := s.reviewTarget(id)
	err := s.dispatcher.RejectReview(id)
	s.recordAudit(r.Context(), auditRecord{
		command:    auditReviewReject,
		target:     target,
		entityType: audit.EntityReview,
		entityID:   id,
		source:     sourceAPI,
		surface:    requestSurface(r),
		err:        err,
	})
	if err != nil {
		s.writeClassified(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         id,
		"resolution": delivery.ResolutionRejected,
	})
}

// reviewTarget returns the target of a pending review, or the default
// target when the review is unknown.
func (s *Server) reviewTarget(id string) string {
	if s.reviews != nil {
		if rev, ok := s.reviews.Get(id); ok {
			return rev.Target
		}
	}
	return s.target
}
