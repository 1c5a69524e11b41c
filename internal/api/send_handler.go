package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/pulsecrm/backend/internal/db"
	"github.com/pulsecrm/backend/internal/mailer"
	"github.com/pulsecrm/backend/internal/models"
	"github.com/pulsecrm/backend/internal/provider"
)

// SendHandler handles outbound email send requests.
type SendHandler struct {
	service *mailer.Service
}

// NewSendHandler creates a new SendHandler instance.
func NewSendHandler(service *mailer.Service) *SendHandler {
	return &SendHandler{service: service}
}

// SendEmail dispatches one outbound email and returns the persisted record's
// id and thread id.
func (h *SendHandler) SendEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req models.SendEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.From == "" || req.To == "" || req.Subject == "" {
		WriteJSONError(w, http.StatusBadRequest, "from, to and subject are required")
		return
	}

	email, err := h.service.Send(r.Context(), &req)
	if err != nil {
		h.writeSendError(w, &req, err)
		return
	}

	WriteJSONResponse(w, models.SendEmailResponse{
		Success:  true,
		EmailID:  email.ID,
		ThreadID: email.ThreadID,
	})
}

func (h *SendHandler) writeSendError(w http.ResponseWriter, req *models.SendEmailRequest, err error) {
	switch {
	case errors.Is(err, mailer.ErrInvalidRecipient):
		WriteJSONError(w, http.StatusBadRequest, "Invalid recipient address")
	case errors.Is(err, db.ErrAccountNotFound):
		WriteJSONError(w, http.StatusNotFound, "Unknown sender account")
	case errors.Is(err, db.ErrEmailNotFound):
		WriteJSONError(w, http.StatusNotFound, "Parent email not found")
	case errors.Is(err, mailer.ErrNoTransport):
		WriteJSONError(w, http.StatusUnprocessableEntity, "Sender account has no transport configured")
	case errors.Is(err, provider.ErrAuthFailure):
		log.Printf("SendHandler: Provider authentication failed for %s: %v", req.From, err)
		WriteJSONError(w, http.StatusBadGateway, "Provider authentication failed")
	default:
		log.Printf("SendHandler: Failed to send email from %s to %s: %v", req.From, req.To, err)
		WriteJSONError(w, http.StatusInternalServerError, "Failed to send email")
	}
}
