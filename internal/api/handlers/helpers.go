// Package handlers implements internal/api's HTTP boundary: decode a
// request, call into the relevant service (internal/auth, internal/recordapi,
// internal/realtime), translate the result back to JSON. Grounded on the
// teacher's internal/api/handlers package — thin handler structs holding a
// service dependency, a shared writeJSON/writeError helper pair instead of
// a framework response type.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/litebase/internal/apierr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("api: encode response")
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeError translates an apierr.Error (or any other error, which is
// treated as internal) into the HTTP status and JSON body spec.md §7
// describes, matching the way the teacher's handlers/helpers.go maps
// models sentinel errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	apiErr, ok := apierr.As(err)
	if !ok {
		log.Error().Err(err).Msg("api: unhandled error")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	status := http.StatusInternalServerError
	switch apiErr.Code {
	case apierr.CodeBadRequest:
		status = http.StatusBadRequest
	case apierr.CodeUnauthorized:
		status = http.StatusUnauthorized
	case apierr.CodeForbidden:
		status = http.StatusForbidden
	case apierr.CodeNotFound:
		status = http.StatusNotFound
	case apierr.CodeConflict:
		status = http.StatusConflict
	case apierr.CodeInternal:
		status = http.StatusInternalServerError
		log.Error().Err(apiErr).Msg("api: internal error")
	}
	writeJSON(w, status, map[string]string{"error": apiErr.Message})
}
