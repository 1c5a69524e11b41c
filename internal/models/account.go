package models

import "time"

// MailAccount is a sender mailbox the service can dispatch from. The provider
// client secret is stored encrypted; accounts without provider credentials
// fall back to plain SMTP dispatch (development mode).
type MailAccount struct {
	ID                    string    `json:"id"`
	Address               string    `json:"address"`
	DisplayName           string    `json:"display_name"`
	ProviderTenantID      string    `json:"provider_tenant_id"`
	ProviderClientID      string    `json:"provider_client_id"`
	EncryptedClientSecret []byte    `json:"-"`
	SMTPHostname          string    `json:"smtp_hostname"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// HasProviderCredentials reports whether the account can use the provider API.
func (a *MailAccount) HasProviderCredentials() bool {
	return a.ProviderClientID != "" && len(a.EncryptedClientSecret) > 0
}

// MailAccountRequest is the payload for creating or updating a mail account.
// ClientSecret is write-only; reads report only whether one is set.
type MailAccountRequest struct {
	Address          string `json:"address"`
	DisplayName      string `json:"display_name"`
	ProviderTenantID string `json:"provider_tenant_id"`
	ProviderClientID string `json:"provider_client_id"`
	ClientSecret     string `json:"client_secret,omitempty"`
	SMTPHostname     string `json:"smtp_hostname"`
}

// MailAccountResponse is the read-side shape of a mail account.
type MailAccountResponse struct {
	ID               string `json:"id"`
	Address          string `json:"address"`
	DisplayName      string `json:"display_name"`
	ProviderTenantID string `json:"provider_tenant_id"`
	ProviderClientID string `json:"provider_client_id"`
	ClientSecretSet  bool   `json:"client_secret_set"`
	SMTPHostname     string `json:"smtp_hostname"`
}
