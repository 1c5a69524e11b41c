package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pulsecrm/backend/internal/models"
)

// ErrAccountNotFound is returned when a requested mail account cannot be found.
var ErrAccountNotFound = errors.New("mail account not found")

// SaveMailAccount saves or updates a mail account, keyed by address.
// An empty EncryptedClientSecret preserves the stored secret, so accounts can
// be updated without re-entering credentials.
func SaveMailAccount(ctx context.Context, pool *pgxpool.Pool, account *models.MailAccount) error {
	var id string
	err := pool.QueryRow(ctx, `
		INSERT INTO mail_accounts (
			address,
			display_name,
			provider_tenant_id,
			provider_client_id,
			encrypted_client_secret,
			smtp_hostname
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (address) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			provider_tenant_id = EXCLUDED.provider_tenant_id,
			provider_client_id = EXCLUDED.provider_client_id,
			encrypted_client_secret = COALESCE(NULLIF(EXCLUDED.encrypted_client_secret, ''::bytea), mail_accounts.encrypted_client_secret),
			smtp_hostname = EXCLUDED.smtp_hostname,
			updated_at = now()
		RETURNING id
	`,
		account.Address,
		account.DisplayName,
		account.ProviderTenantID,
		account.ProviderClientID,
		account.EncryptedClientSecret,
		account.SMTPHostname,
	).Scan(&id)

	if err != nil {
		return fmt.Errorf("failed to save mail account: %w", err)
	}

	account.ID = id
	return nil
}

// GetMailAccountByAddress returns the mail account for the given sender address.
func GetMailAccountByAddress(ctx context.Context, pool *pgxpool.Pool, address string) (*models.MailAccount, error) {
	var account models.MailAccount

	err := pool.QueryRow(ctx, `
		SELECT id, address, display_name, provider_tenant_id, provider_client_id,
		       COALESCE(encrypted_client_secret, ''::bytea), smtp_hostname, created_at, updated_at
		FROM mail_accounts
		WHERE address = $1
	`, address).Scan(
		&account.ID,
		&account.Address,
		&account.DisplayName,
		&account.ProviderTenantID,
		&account.ProviderClientID,
		&account.EncryptedClientSecret,
		&account.SMTPHostname,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get mail account: %w", err)
	}

	return &account, nil
}

// ListMailAccounts returns all configured mail accounts.
func ListMailAccounts(ctx context.Context, pool *pgxpool.Pool) ([]*models.MailAccount, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, address, display_name, provider_tenant_id, provider_client_id,
		       COALESCE(encrypted_client_secret, ''::bytea), smtp_hostname, created_at, updated_at
		FROM mail_accounts
		ORDER BY address
	`)

	if err != nil {
		return nil, fmt.Errorf("failed to list mail accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.MailAccount
	for rows.Next() {
		var account models.MailAccount
		if err := rows.Scan(
			&account.ID,
			&account.Address,
			&account.DisplayName,
			&account.ProviderTenantID,
			&account.ProviderClientID,
			&account.EncryptedClientSecret,
			&account.SMTPHostname,
			&account.CreatedAt,
			&account.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan mail account: %w", err)
		}
		accounts = append(accounts, &account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mail accounts: %w", err)
	}

	return accounts, nil
}
