// Package httputil centralizes the JSON response envelope so every endpoint
// answers with the same shape.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "onboard/pkg/domain-errors"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Envelope is the uniform response body. next_action names the registration
// step the caller should invoke next; retry_after is set on rate-limit
// failures only.
type Envelope struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	Data       any    `json:"data,omitempty"`
	NextAction string `json:"next_action,omitempty"`
	ErrorCode  string `json:"error_code,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// WriteJSON writes v with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteSuccess writes a success envelope.
func WriteSuccess(w http.ResponseWriter, message, nextAction string, data any) {
	WriteJSON(w, http.StatusOK, Envelope{
		Status:     StatusSuccess,
		Message:    message,
		Data:       data,
		NextAction: nextAction,
	})
}

// WriteError translates a domain error into a failed envelope. Unclassified
// errors collapse to SYSTEM_ERROR with a generic message so no internal
// detail leaks.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	WriteJSON(w, dErrors.ToHTTPStatus(code), Envelope{
		Status:    StatusFailed,
		Message:   dErrors.MessageOf(err),
		ErrorCode: string(code),
	})
}
