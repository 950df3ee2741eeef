package api

import (
	"net/http"
	"strconv"
	"strings"
)

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var q QueueQuery
	for _, value := range query["type"] {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			q.Types = append(q.Types, trimmed)
		}
	}
	if value := query.Get("failed"); value != "" {
		failed, err := strconv.ParseBool(value)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, "failed must be a boolean")
			return
		}
		q.FailedOnly = failed
	}
	if value := query.Get("limit"); value != "" {
		limit, err := strconv.Atoi(value)
		if err != nil || limit < 0 {
			s.writeError(w, r, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		q.Limit = limit
	}
	items, err := s.queueSvc.List(r.Context(), q)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, r, http.StatusOK, QueueListResponse{Items: nonNil(items)})
}

func (s *Server) handleQueueHealth(w http.ResponseWriter, r *http.Request) {
	health, err := s.queueSvc.Health(r.Context())
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, r, http.StatusOK, health)
}

func (s *Server) handleQueueRetry(w http.ResponseWriter, r *http.Request) {
	var req RetryRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := s.queueSvc.Retry(r.Context(), req.IDs)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	if updated > 0 {
		s.signal.Broadcast()
		s.dispatcher.Wake()
	}
	s.writeJSON(w, r, http.StatusOK, CountResponse{Count: updated})
}

func (s *Server) handleQueueClearFailed(w http.ResponseWriter, r *http.Request) {
	removed, err := s.queueSvc.ClearFailed(r.Context())
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, r, http.StatusOK, CountResponse{Count: removed})
}
