// Package response provides shared JSON response helpers for HTTP handlers.
//
// Every result the API produces is one of four shapes: plain success, success
// with a payload, an opaque denial, or an opaque failure. Denials and failures
// deliberately carry no detail about which internal check failed.
package response

import (
	"encoding/json"
	"net/http"
)

// Envelope is the standard API response envelope.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Warning string      `json:"warning,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// JSON writes a JSON-encoded payload with the given HTTP status code.
func JSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// OK writes a 200 response with data.
func OK(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

// Partial writes a 200 response whose primary operation succeeded but whose
// secondary effects were not fully applied. The warning names what was skipped.
func Partial(w http.ResponseWriter, data interface{}, warning string) {
	JSON(w, http.StatusOK, Envelope{Success: true, Data: data, Warning: warning})
}

// Created writes a 201 response with data.
func Created(w http.ResponseWriter, data interface{}) {
	JSON(w, http.StatusCreated, Envelope{Success: true, Data: data})
}

// Error writes an error response with the given status and message.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, Envelope{Success: false, Error: message})
}

// BadRequest writes a 400 response.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, message)
}

// Unauthorized writes an opaque 401 response.
func Unauthorized(w http.ResponseWriter) {
	Error(w, http.StatusUnauthorized, "unauthorized")
}

// Forbidden writes an opaque 403 response. The message never varies so a
// caller cannot tell which authorization rule rejected the request.
func Forbidden(w http.ResponseWriter) {
	Error(w, http.StatusForbidden, "forbidden")
}

// NotFound writes a 404 response.
func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, message)
}

// InternalError writes an opaque 500 response.
func InternalError(w http.ResponseWriter) {
	Error(w, http.StatusInternalServerError, "request failed")
}
