package api

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"

	"github.com/pulsecrm/backend/internal/models"
)

// WriteJSONResponse writes the response as JSON. The body is encoded to a
// buffer first so an encoding failure never produces a partial write.
// Returns false if the response could not be written.
func WriteJSONResponse(w http.ResponseWriter, response any) bool {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(response); err != nil {
		log.Printf("API: Failed to encode response: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return false
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Printf("API: Failed to write response: %v", err)
		return false
	}

	return true
}

// WriteJSONError writes a JSON error payload with the given status code.
func WriteJSONError(w http.ResponseWriter, status int, message string) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(models.ErrorResponse{Success: false, Error: message}); err != nil {
		log.Printf("API: Failed to encode error response: %v", err)
		http.Error(w, message, status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
