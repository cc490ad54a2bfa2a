package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/tenantgate/internal/apperr"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// headers are gone, nothing else to report to the caller
		return
	}
}

// WriteError maps err onto a status code and writes it. Errors outside the
// taxonomy are logged and reported with a generic message.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)

	body := ErrorBody{Error: apperr.Code(err)}
	switch {
	case apperr.IsInternal(err):
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Internal error")
		body.Message = "internal server error"
	case status >= http.StatusInternalServerError:
		zerolog.Ctx(r.Context()).Warn().Err(err).Int("status", status).Msg("Upstream failure")
	default:
		body.Message = err.Error()
	}

	WriteJSON(w, status, body)
}

// ReadJSON decodes the request body into v. Malformed or oversized bodies are
// apperr.ErrValidation.
func ReadJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is required", apperr.ErrValidation)
		}
		return fmt.Errorf("%w: invalid JSON body", apperr.ErrValidation)
	}
	return nil
}
