package api

import (
	"encoding/json"
	"net/http"

	"github.com/hackgods/clinic-queue/internal/appointment"
	"github.com/hackgods/clinic-queue/pkg/logging"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

var statusByCode = map[string]int{
	"invalid_input":      http.StatusBadRequest,
	"slot_conflict":      http.StatusConflict,
	"duplicate_booking":  http.StatusConflict,
	"not_found":          http.StatusNotFound,
	"invalid_transition": http.StatusConflict,
	"not_rescheduleable": http.StatusConflict,
	"unauthorized":       http.StatusForbidden,
}

// writeServiceError maps domain errors to HTTP. Unknown errors are logged and
// reported without internals.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *logging.Logger, err error) {
	code := appointment.ErrorCode(err)
	status, ok := statusByCode[code]
	if !ok {
		logger.Error("request failed", "path", r.URL.Path, "request_id", GetRequestID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected error")
		return
	}
	writeError(w, status, code, err.Error())
}
