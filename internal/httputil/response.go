package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/opendata-gateway/go/internal/constants"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// APIResponse is the envelope for successful JSON responses
type APIResponse struct {
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// WriteError writes an error response with the given status code
func WriteError(w http.ResponseWriter, status int, errCode, message string) {
	WriteJSON(w, status, ErrorResponse{
		Error:   errCode,
		Message: message,
	})
}

// WriteAPIError writes a predefined APIError
func WriteAPIError(w http.ResponseWriter, apiErr constants.APIError) {
	WriteError(w, apiErr.Status, apiErr.Code, apiErr.Message)
}

// WriteAPISuccess writes a success envelope with the given message and data
func WriteAPISuccess(w http.ResponseWriter, status int, message string, data any) {
	WriteJSON(w, status, APIResponse{
		Message: message,
		Data:    data,
	})
}
