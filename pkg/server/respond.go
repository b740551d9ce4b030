package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// MaxBodyBytes bounds request bodies accepted by DecodeJSON.
const MaxBodyBytes = 1 << 20

// Error is an HTTP failure carrying the status to answer with.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string) *Error {
	return &Error{Code: http.StatusBadRequest, Message: message}
}

// NewValidationError creates a 422 Unprocessable Entity error
func NewValidationError(message string) *Error {
	return &Error{Code: http.StatusUnprocessableEntity, Message: message}
}

// ErrorResponse is the body of every error answer.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// HealthResponse is the body of the health endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service,omitempty"`
}

// DecodeJSON reads a JSON object from the request body into v. Malformed or
// empty bodies yield a 400 *Error.
func DecodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
	if err != nil {
		return NewBadRequestError(fmt.Sprintf("failed to read request body: %v", err))
	}
	if len(body) > MaxBodyBytes {
		return &Error{Code: http.StatusRequestEntityTooLarge, Message: "request body too large"}
	}
	if len(body) == 0 {
		return NewBadRequestError("request body is empty")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return NewBadRequestError(fmt.Sprintf("invalid JSON body: %v", err))
	}
	return nil
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		slog.Debug("Failed to write JSON response", "error", err)
	}
}

// WriteError answers with err. An *Error keeps its status; anything else is a
// 500.
func WriteError(w http.ResponseWriter, err error) {
	var httpErr *Error
	if !errors.As(err, &httpErr) {
		httpErr = &Error{Code: http.StatusInternalServerError, Message: err.Error()}
	}
	WriteJSON(w, httpErr.Code, ErrorResponse{Detail: httpErr.Message})
}
