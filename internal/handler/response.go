package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/prn-tf/owl-middleware/internal/domain"
)

// maxJSONBody bounds request bodies decoded as JSON.
const maxJSONBody = 1 << 20

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
}

// dataResponse wraps successful payloads.
type dataResponse struct {
	Data  any  `json:"data"`
	Count *int `json:"count,omitempty"`
}

// messageResponse is the body of requests that only report an outcome.
type messageResponse struct {
	Message string `json:"message"`
}

// writeJSON writes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, dataResponse{Data: data})
}

func writeList(w http.ResponseWriter, data any, count int) {
	writeJSON(w, http.StatusOK, dataResponse{Data: data, Count: &count})
}

// statusFor maps an error's class to an HTTP status code.
func statusFor(err error) int {
	switch domain.Class(err) {
	case domain.ErrNotFound:
		return http.StatusNotFound
	case domain.ErrAlreadyExists, domain.ErrValidation:
		return http.StatusBadRequest
	case domain.ErrUnauthenticated:
		return http.StatusUnauthorized
	case domain.ErrForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as {"error": message}. Internal errors are logged
// and replaced with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error) {
	status := statusFor(err)
	message := publicMessage(err)

	switch {
	case domain.Class(err) == domain.ErrInternal:
		logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
	case status >= http.StatusInternalServerError:
		logger.Warn().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("remote service failure")
	}

	writeJSON(w, status, errorResponse{Error: message})
}

// publicMessage is the text shown to clients for err.
func publicMessage(err error) string {
	if domain.Class(err) == domain.ErrInternal {
		return "internal server error"
	}
	return domain.Message(err)
}

// decodeJSON decodes a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return decodeJSONLimit(w, r, v, maxJSONBody)
}

func decodeJSONLimit(w http.ResponseWriter, r *http.Request, v any, limit int64) error {
	body := http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.Validationf("request body is empty")
		}
		return domain.Validationf("invalid JSON body: %v", err)
	}
	return nil
}
