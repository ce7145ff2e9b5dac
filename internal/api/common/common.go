// Package common holds the response helpers shared by all API versions.
package common

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/mouneyrac/moodle-local-hub/internal/hub"
)

// WriteJSONResponse writes a JSON response with the given data
func WriteJSONResponse(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// WriteErrorResponse writes a standardized error response
func WriteErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	WriteError(w, statusCode, "error", message, nil)
}

// WriteError writes the error envelope: a message, a machine-readable code,
// and any extra fields the code calls for.
func WriteError(w http.ResponseWriter, statusCode int, code, message string, extra map[string]any) {
	payload := map[string]any{
		"error": message,
		"code":  code,
	}
	for k, v := range extra {
		payload[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "Failed to encode error response", http.StatusInternalServerError)
	}
}

// MapServiceError translates hub service errors to HTTP responses. Anything
// unrecognized is reported as an internal error without leaking detail.
func MapServiceError(w http.ResponseWriter, err error) {
	var verr *hub.ValidationError
	var qerr *hub.QuotaExceededError

	switch {
	case errors.Is(err, hub.ErrInvalidToken):
		WriteError(w, http.StatusUnauthorized, "invalidtoken", err.Error(), nil)
	case errors.As(err, &verr):
		WriteError(w, http.StatusBadRequest, "validationerror", verr.Error(), map[string]any{
			"fields": verr.Fields,
		})
	case errors.As(err, &qerr):
		if !qerr.Disabled {
			w.Header().Set("Retry-After", strconv.FormatInt(qerr.WaitSeconds, 10))
		}
		WriteError(w, http.StatusTooManyRequests, "quotaexceeded", qerr.Error(), map[string]any{
			"limit":       qerr.Limit,
			"waitseconds": qerr.WaitSeconds,
			"disabled":    qerr.Disabled,
		})
	case errors.Is(err, hub.ErrNotFound):
		WriteError(w, http.StatusNotFound, "notfound", err.Error(), nil)
	default:
		WriteError(w, http.StatusInternalServerError, "internal", "internal server error", nil)
	}
}
