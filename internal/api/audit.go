package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/entity-manager/internal/audit"
)

// handleListAuditLogs returns paginated audit log entries with optional filters.
//
// Query parameters:
//   - action: filter by mutation (enable_entity, bulk_disable, rename_entity, ...)
//   - entity_id: filter by specific entity ID
//   - outcome: filter by outcome (success, partial, failure)
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "audit logging not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:   q.Get("action"),
		EntityID: q.Get("entity_id"),
		Outcome:  q.Get("outcome"),
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
