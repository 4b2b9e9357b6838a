// Package server exposes the merge engine's transport-agnostic request/
// response contract over HTTP: JSON endpoints for the session-scoped
// pagination façade plus an SSE stream for merge progress and
// completion events.
package server

import (
	"encoding/json"
	"net/http"
)

// ErrorKind enumerates the engine's error kinds, not Go error types, so
// the same vocabulary crosses the HTTP boundary unchanged.
type ErrorKind string

const (
	ErrConfigError   ErrorKind = "ConfigError"
	ErrIOError       ErrorKind = "IOError"
	ErrParseError    ErrorKind = "ParseError"
	ErrManifestError ErrorKind = "ManifestError"
	ErrCanceled      ErrorKind = "Canceled"
	ErrInternal      ErrorKind = "Internal"
)

// ErrorResponse is the `error` event/response shape: a stable code, a
// human message, optional detail, and the request it answers.
type ErrorResponse struct {
	Code      ErrorKind `json:"code"`
	Message   string    `json:"message"`
	Detail    string    `json:"detail,omitempty"`
	InReplyTo string    `json:"inReplyTo,omitempty"`
}

// writeJSON writes a JSON response with a given status code.
func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to write json response", "err", err)
	}
}

// writeError writes a standardized ErrorResponse and, when an event
// broker is attached, also broadcasts it so SSE subscribers see the
// same failure as the request's direct caller.
func (s *Server) writeError(w http.ResponseWriter, statusCode int, code ErrorKind, inReplyTo, message string) {
	resp := ErrorResponse{Code: code, Message: message, InReplyTo: inReplyTo}
	s.writeJSON(w, statusCode, resp)
	if s.eventBroker != nil {
		s.eventBroker.Broadcast(Event{Type: EventError, Data: resp})
	}
}

func statusForKind(kind ErrorKind) int {
	switch kind {
	case ErrConfigError:
		return http.StatusBadRequest
	case ErrIOError, ErrManifestError, ErrInternal:
		return http.StatusInternalServerError
	case ErrParseError:
		return http.StatusUnprocessableEntity
	case ErrCanceled:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
