package api

import (
	"log"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pulsecrm/backend/internal/db"
	"github.com/pulsecrm/backend/internal/threads"
)

// ThreadsHandler serves assembled conversation threads for a CRM entity.
type ThreadsHandler struct {
	pool *pgxpool.Pool
}

// NewThreadsHandler creates a new ThreadsHandler instance.
func NewThreadsHandler(pool *pgxpool.Pool) *ThreadsHandler {
	return &ThreadsHandler{pool: pool}
}

// ThreadsResponse is the payload of the thread-list endpoint.
type ThreadsResponse struct {
	Success bool              `json:"success"`
	Threads []*threads.Thread `json:"threads"`
}

// GetThreads returns the entity's emails grouped into conversation threads,
// newest activity first.
func (h *ThreadsHandler) GetThreads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entityType := r.URL.Query().Get("entityType")
	entityID := r.URL.Query().Get("entityId")
	if entityType == "" || entityID == "" {
		WriteJSONError(w, http.StatusBadRequest, "entityType and entityId query parameters are required")
		return
	}

	emails, err := db.GetEmailsForEntity(ctx, h.pool, entityType, entityID)
	if err != nil {
		log.Printf("ThreadsHandler: Failed to get emails: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	emailIDs := make([]string, 0, len(emails))
	for _, email := range emails {
		emailIDs = append(emailIDs, email.ID)
	}

	replies, err := db.GetRepliesForEmails(ctx, h.pool, emailIDs)
	if err != nil {
		log.Printf("ThreadsHandler: Failed to get replies: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	assembled := threads.Assemble(emails, replies)

	WriteJSONResponse(w, ThreadsResponse{Success: true, Threads: assembled})
}
