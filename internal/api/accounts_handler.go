package api

import (
	"encoding/json"
	"log"
	"net/http"
	"net/mail"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pulsecrm/backend/internal/crypto"
	"github.com/pulsecrm/backend/internal/db"
	"github.com/pulsecrm/backend/internal/models"
)

// AccountsHandler manages sender mailbox configuration. Client secrets are
// write-only: they are encrypted at rest and never returned.
type AccountsHandler struct {
	pool      *pgxpool.Pool
	encryptor *crypto.Encryptor
}

// NewAccountsHandler creates a new AccountsHandler instance.
func NewAccountsHandler(pool *pgxpool.Pool, encryptor *crypto.Encryptor) *AccountsHandler {
	return &AccountsHandler{pool: pool, encryptor: encryptor}
}

// AccountsResponse is the payload of the account-list endpoint.
type AccountsResponse struct {
	Success  bool                          `json:"success"`
	Accounts []*models.MailAccountResponse `json:"accounts"`
}

// GetAccounts lists all configured sender accounts.
func (h *AccountsHandler) GetAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := db.ListMailAccounts(r.Context(), h.pool)
	if err != nil {
		log.Printf("AccountsHandler: Failed to list accounts: %v", err)
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	response := AccountsResponse{Success: true, Accounts: make([]*models.MailAccountResponse, 0, len(accounts))}
	for _, account := range accounts {
		response.Accounts = append(response.Accounts, toAccountResponse(account))
	}

	WriteJSONResponse(w, response)
}

// PostAccount creates or updates a sender account, keyed by address. Omitting
// the client secret on update preserves the stored one.
func (h *AccountsHandler) PostAccount(w http.ResponseWriter, r *http.Request) {
	var req models.MailAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if _, err := mail.ParseAddress(req.Address); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "Invalid account address")
		return
	}

	account := &models.MailAccount{
		Address:          req.Address,
		DisplayName:      req.DisplayName,
		ProviderTenantID: req.ProviderTenantID,
		ProviderClientID: req.ProviderClientID,
		SMTPHostname:     req.SMTPHostname,
	}

	if req.ClientSecret != "" {
		encrypted, err := h.encryptor.Encrypt(req.ClientSecret)
		if err != nil {
			log.Printf("AccountsHandler: Failed to encrypt client secret: %v", err)
			WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		account.EncryptedClientSecret = encrypted
	}

	if err := db.SaveMailAccount(r.Context(), h.pool, account); err != nil {
		log.Printf("AccountsHandler: Failed to save account %s: %v", req.Address, err)
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	// Re-read so the response reflects a preserved secret on update.
	saved, err := db.GetMailAccountByAddress(r.Context(), h.pool, account.Address)
	if err != nil {
		log.Printf("AccountsHandler: Failed to reload account %s: %v", account.Address, err)
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	WriteJSONResponse(w, toAccountResponse(saved))
}

func toAccountResponse(account *models.MailAccount) *models.MailAccountResponse {
	return &models.MailAccountResponse{
		ID:               account.ID,
		Address:          account.Address,
		DisplayName:      account.DisplayName,
		ProviderTenantID: account.ProviderTenantID,
		ProviderClientID: account.ProviderClientID,
		ClientSecretSet:  len(account.EncryptedClientSecret) > 0,
		SMTPHostname:     account.SMTPHostname,
	}
}
