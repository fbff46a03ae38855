package api

import (
	"net/http"
	"strconv"

	"github.com/iroh-home/iroh-core/internal/audit"
)

// handleListAudit returns paginated command audit entries with optional filters.
//
// Query parameters:
//   - handler: filter by handler name
//   - outcome: filter by outcome (ok, rejected, failed, skipped)
//   - state: filter by the state the command was matched in
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeUnavailable(w, "audit trail not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Handler: q.Get("handler"),
		Outcome: q.Get("outcome"),
		State:   q.Get("state"),
	}

	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit entries", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
