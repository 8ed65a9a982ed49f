package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"reqtx/internal/bootstrap/logging"
	"reqtx/internal/errs"
	"reqtx/internal/txfilter"
	"reqtx/internal/usecase/kv"
)

// WriteError maps usecase errors to HTTP statuses. It is also the error
// writer of the transaction filter, so it sees handler errors after rollback
// and commit failures.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := classify(err)
	if status >= http.StatusInternalServerError {
		logging.Error(r.Context(), "request failed", slog.Int("status", status), slog.Any("err", errs.Loggable(err)))
	}
	txfilter.WriteJSONError(w, status, message)
}

func classify(err error) (int, string) {
	var commitErr *txfilter.CommitError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, kv.ErrInvalidKey),
		errors.Is(err, kv.ErrEmptyBatch):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, kv.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.As(err, &commitErr):
		return http.StatusInternalServerError, "transaction commit failed"
	default:
		return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
