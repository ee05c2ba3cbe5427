package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/hookbeat/hookbeat/internal/errs"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeTypedError maps the error taxonomy onto HTTP statuses for
// interactive callers.
func writeTypedError(w http.ResponseWriter, err error) {
	var (
		validation *errs.ValidationError
		rateLimit  *errs.RateLimitError
		notFound   *errs.NotFoundError
	)
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Error())
	case errors.As(err, &rateLimit):
		w.Header().Set("Retry-After", fmt.Sprintf("%.0f", rateLimit.RetryAfter.Seconds()))
		writeError(w, http.StatusTooManyRequests, rateLimit.Error())
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, notFound.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
