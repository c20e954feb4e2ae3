package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/herdsphere/herdsphere/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError maps domain errors onto HTTP statuses. Partial failures and an
// unavailable store read as 503 so clients know a retry can finish the job.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var partial *domain.PartialFailureError
	status := http.StatusInternalServerError
	msg := "internal error"

	switch {
	case errors.Is(err, domain.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrForbidden):
		status, msg = http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrNotAMember):
		status, msg = http.StatusForbidden, "not a member of this farm"
	case errors.Is(err, domain.ErrAlreadyMember):
		status, msg = http.StatusConflict, "already a member of this farm"
	case errors.Is(err, domain.ErrConflict):
		status, msg = http.StatusConflict, "conflict"
	case errors.As(err, &partial):
		status, msg = http.StatusServiceUnavailable, "operation partially applied, retry to complete"
	case errors.Is(err, domain.ErrCodeGenerationExhausted),
		errors.Is(err, domain.ErrStoreUnavailable):
		status, msg = http.StatusServiceUnavailable, "service unavailable, retry later"
	}

	if status == http.StatusInternalServerError || status == http.StatusServiceUnavailable {
		logger.Error("request failed", slog.String("error", err.Error()))
	}
	writeJSON(w, logger, status, errorResponse{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, logger *slog.Logger, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		logger.Debug("failed to decode request", slog.String("error", err.Error()))
		writeJSON(w, logger, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}
