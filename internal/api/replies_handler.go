package api

import (
	"log"
	"net/http"

	"github.com/pulsecrm/backend/internal/ingest"
)

// RepliesHandler triggers reply-ingestion runs.
type RepliesHandler struct {
	job *ingest.Job
}

// NewRepliesHandler creates a new RepliesHandler instance.
func NewRepliesHandler(job *ingest.Job) *RepliesHandler {
	return &RepliesHandler{job: job}
}

// CheckReplies runs one ingestion pass and returns its summary. The endpoint
// is idempotent; a reply found by two overlapping runs is recorded once.
func (h *RepliesHandler) CheckReplies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	summary, err := h.job.Run(r.Context())
	if err != nil {
		log.Printf("RepliesHandler: Ingestion run failed: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "Failed to check replies")
		return
	}

	WriteJSONResponse(w, summary)
}
