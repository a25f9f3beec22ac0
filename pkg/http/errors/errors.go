package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gokatarajesh/quiz-live/internal/quiz"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// RespondError writes a standardized error response to the HTTP response writer
func RespondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   code,
		Message: message,
	})
}

// RespondValidationError writes a validation error response with field information
func RespondValidationError(w http.ResponseWriter, code, message, field string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   code,
		Message: message,
		Field:   field,
	})
}

// RespondNotFound writes a not found error response
func RespondNotFound(w http.ResponseWriter, code, message string) {
	RespondError(w, http.StatusNotFound, code, message)
}

// RespondBadRequest writes a bad request error response
func RespondBadRequest(w http.ResponseWriter, code, message string) {
	RespondError(w, http.StatusBadRequest, code, message)
}

// RespondServiceUnavailable writes a service unavailable error response
func RespondServiceUnavailable(w http.ResponseWriter, code, message string) {
	RespondError(w, http.StatusServiceUnavailable, code, message)
}

// RespondDomainError maps a domain error onto a status code and keeps its
// client-facing code and message.
func RespondDomainError(w http.ResponseWriter, err error) {
	status := http.StatusServiceUnavailable
	switch quiz.KindOf(err) {
	case quiz.KindValidation:
		status = http.StatusBadRequest
	case quiz.KindNotFound:
		status = http.StatusNotFound
	case quiz.KindConflict:
		status = http.StatusConflict
	}
	if quiz.CodeOf(err) == quiz.CodeNotHost {
		status = http.StatusForbidden
	}

	message := "service temporarily unavailable"
	var e *quiz.Error
	if errors.As(err, &e) && e.Kind != quiz.KindTransient {
		message = e.Message
	}
	RespondError(w, status, quiz.CodeOf(err), message)
}
