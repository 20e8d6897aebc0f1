package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/sidepot/sidepot/internal/engine"
	"github.com/sidepot/sidepot/internal/models"
)

// writeJSON marshals v as JSON and writes it with the given status code.
// If marshaling fails it falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps domain errors onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	var (
		verr *models.ValidationError
		ferr *models.InsufficientFundsError
		merr *models.MarketClosedError
		cerr *models.ConcurrencyConflictError
	)
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, engine.ErrWinnerRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.As(err, &ferr):
		writeError(w, http.StatusPaymentRequired, ferr.Error())
	case errors.As(err, &merr):
		writeError(w, http.StatusConflict, merr.Error())
	case errors.As(err, &cerr):
		writeError(w, http.StatusConflict, cerr.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// pathUUID extracts and parses a named UUID path parameter.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := r.PathValue(name)
	if raw == "" {
		return uuid.Nil, models.ErrInvalidID
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, models.ErrInvalidID
	}
	return id, nil
}

// decodeBody decodes a JSON request body into dst, rejecting unknown fields.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
