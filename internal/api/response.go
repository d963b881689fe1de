// Package api holds the JSON plumbing shared by the feature handlers.
package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/Vasu1712/scenyx-connect/internal/apperr"
	"github.com/Vasu1712/scenyx-connect/internal/logger"
)

const maxBodyBytes = 64 << 10

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// WriteError renders err as {"error": ...} with the status chosen by
// statusFor. Internal and upstream causes are logged, never returned.
func WriteError(w http.ResponseWriter, log *logger.Logger, err error, statusFor func(apperr.Code) int) {
	code := apperr.CodeOf(err)
	status := statusFor(code)
	if code == apperr.CodeInternal || code == apperr.CodeUpstreamUnavailable {
		log.Error().Err(err).Str("code", string(code)).Msg("request failed")
	} else {
		log.Debug().Err(err).Str("code", string(code)).Msg("request rejected")
	}
	WriteJSON(w, status, errorBody{Error: apperr.PublicMessage(err), Code: string(code)})
}

// DecodeJSON reads a bounded JSON body into dst. Unknown fields are
// rejected so typos in optional fields do not pass silently.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return apperr.InvalidInput("request body is required")
		}
		return apperr.Wrap(apperr.CodeInvalidInput, "invalid request body", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return apperr.InvalidInput("request body must be a single JSON object")
	}
	return nil
}
