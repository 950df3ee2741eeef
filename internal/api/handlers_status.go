package api

import (
	"net/http"
	"time"

	"folio/internal/catalog"
)

// handleStatus long-polls for catalog changes after ?since=.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	ctx := r.Context()

	var since time.Time
	if value := query.Get("since"); value != "" {
		parsed, err := time.Parse(time.RFC3339Nano, value)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, "since must be an RFC3339 timestamp")
			return
		}
		since = parsed
	}
	timeout := s.cfg.Workflow.StatusWaitDuration()
	if value := query.Get("timeout"); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil || parsed < 0 {
			s.writeError(w, r, http.StatusBadRequest, "timeout must be a non-negative duration")
			return
		}
		timeout = min(parsed, maxStatusWait)
	}

	resp := StatusResponse{Comics: []catalog.Comic{}, Cursor: since}
	if since.IsZero() {
		resp.Cursor = time.Now().UTC()
	} else {
		deadline := time.Now().Add(timeout)
		for {
			seen := s.signal.Generation()
			comics, err := s.catalog.UpdatedSince(ctx, since, statusLimit)
			if err != nil {
				s.writeError(w, r, http.StatusInternalServerError, err.Error())
				return
			}
			if len(comics) > 0 {
				resp.Comics = comics
				break
			}
			remaining := time.Until(deadline)
			if remaining <= 0 || ctx.Err() != nil {
				resp.TimedOut = true
				break
			}
			s.signal.Wait(ctx, seen, remaining)
		}
		for _, c := range resp.Comics {
			if c.UpdatedAt.After(resp.Cursor) {
				resp.Cursor = c.UpdatedAt
			}
		}
	}

	resp.Workflow = s.dispatcher.Status(ctx)
	if s.preflight != nil {
		resp.Preflight = s.preflight()
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}
