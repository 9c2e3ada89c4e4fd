package api

import "net/http"

// handleListTopics returns recorded learning topics, newest first.
func (s *Server) handleListTopics(w http.ResponseWriter, r *http.Request) {
	if s.learning == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "learning log is not configured")
		return
	}

	limit, err := queryLimit(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	topics, err := s.learning.List(r.Context(), limit)
	if err != nil {
		s.writeClassified(w, r, err)
		return
	}
	total, err := s.learning.Count(r.Context())
	if err != nil {
		s.writeClassified(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"topics": topics,
		"count":  len(topics),
		"total":  total,
	})
}
