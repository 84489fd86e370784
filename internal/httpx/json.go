// Package httpx holds the small JSON response helpers shared by handlers and
// middleware.
package httpx

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the error body shape the dashboard checks against.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Envelope is the stable success wrapper the security query surface uses.
type Envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

// JSON writes a JSON body with the given status.
func JSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// Error writes an ErrorResponse with the given status.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// Success writes a {success:true, data:...} envelope.
func Success(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}
