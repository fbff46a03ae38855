package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iroh-home/iroh-core/internal/timer"
)

// maxTimerDuration caps timers created over HTTP.
const maxTimerDuration = 24 * time.Hour

// CreateTimerRequest is the body of POST /timers. Exactly one of Minutes
// and Seconds must be positive, and the total may not exceed 24 hours.
type CreateTimerRequest struct {
	Name    string `json:"name"`
	Minutes int    `json:"minutes"`
	Seconds int    `json:"seconds"`
}

// TimerListResponse is the body of GET /timers.
type TimerListResponse struct {
	Timers []timer.Info `json:"timers"`
	Count  int          `json:"count"`
}

// handleListTimers returns running timers, or every retained timer when
// ?all=true.
func (s *Server) handleListTimers(w http.ResponseWriter, r *http.Request) {
	var infos []timer.Info
	if all, _ := strconv.ParseBool(r.URL.Query().Get("all")); all {
		infos = s.timers.Timers()
	} else {
		infos = s.timers.ActiveTimers()
	}
	writeJSON(w, http.StatusOK, TimerListResponse{Timers: infos, Count: len(infos)})
}

func (s *Server) handleCreateTimer(w http.ResponseWriter, r *http.Request) {
	var req CreateTimerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	// Bound the raw values before converting so huge inputs cannot overflow.
	var d time.Duration
	switch {
	case req.Minutes > 0 && req.Seconds > 0:
		writeBadRequest(w, "set either minutes or seconds, not both")
		return
	case req.Minutes > int(maxTimerDuration/time.Minute), req.Seconds > int(maxTimerDuration/time.Second):
		writeBadRequest(w, "timer may not exceed "+maxTimerDuration.String())
		return
	case req.Minutes > 0:
		d = time.Duration(req.Minutes) * time.Minute
	case req.Seconds > 0:
		d = time.Duration(req.Seconds) * time.Second
	default:
		writeBadRequest(w, "minutes or seconds is required")
		return
	}

	t, err := s.timers.CreateTimer(r.Context(), d, req.Name)
	if err != nil {
		writeTimerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t.Info())
}

func (s *Server) handleGetTimer(w http.ResponseWriter, r *http.Request) {
	t, err := s.timers.GetTimer(chi.URLParam(r, "id"))
	if err != nil {
		writeTimerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t.Info())
}

// handleCancelTimer requests cancellation. The response carries the timer
// as it was when the request was accepted; the cancelled event follows
// asynchronously.
func (s *Server) handleCancelTimer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.timers.CancelTimer(id); err != nil {
		writeTimerError(w, err)
		return
	}
	t, err := s.timers.GetTimer(id)
	if err != nil {
		writeTimerError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, t.Info())
}

// handleTimerHistory returns persisted lifecycle events for one timer.
//
// Query parameters:
//   - limit: max results (default 50)
func (s *Server) handleTimerHistory(w http.ResponseWriter, r *http.Request) {
	if s.timerHistory == nil {
		writeUnavailable(w, "timer history not configured")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := s.timerHistory.History(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.logger.Error("failed to read timer history", "error", err)
		writeInternalError(w, "failed to read timer history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries, "count": len(entries)})
}
