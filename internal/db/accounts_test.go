package db

import (
	"context"
	"errors"
	"testing"

	"github.com/pulsecrm/backend/internal/models"
	"github.com/pulsecrm/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailAccounts(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	t.Run("save and get", func(t *testing.T) {
		account := &models.MailAccount{
			Address:               "rep@pulsecrm.example",
			DisplayName:           "Pulse Rep",
			ProviderTenantID:      "tenant-1",
			ProviderClientID:      "client-1",
			EncryptedClientSecret: []byte("ciphertext"),
		}
		require.NoError(t, SaveMailAccount(ctx, pool, account))
		assert.NotEmpty(t, account.ID)

		stored, err := GetMailAccountByAddress(ctx, pool, "rep@pulsecrm.example")
		require.NoError(t, err)
		assert.Equal(t, account.ID, stored.ID)
		assert.Equal(t, "Pulse Rep", stored.DisplayName)
		assert.Equal(t, []byte("ciphertext"), stored.EncryptedClientSecret)
		assert.True(t, stored.HasProviderCredentials())
	})

	t.Run("update without secret preserves stored secret", func(t *testing.T) {
		account := &models.MailAccount{
			Address:               "keep@pulsecrm.example",
			DisplayName:           "Before",
			ProviderTenantID:      "tenant-1",
			ProviderClientID:      "client-1",
			EncryptedClientSecret: []byte("original-secret"),
		}
		require.NoError(t, SaveMailAccount(ctx, pool, account))

		update := &models.MailAccount{
			Address:          "keep@pulsecrm.example",
			DisplayName:      "After",
			ProviderTenantID: "tenant-1",
			ProviderClientID: "client-1",
		}
		require.NoError(t, SaveMailAccount(ctx, pool, update))
		assert.Equal(t, account.ID, update.ID)

		stored, err := GetMailAccountByAddress(ctx, pool, "keep@pulsecrm.example")
		require.NoError(t, err)
		assert.Equal(t, "After", stored.DisplayName)
		assert.Equal(t, []byte("original-secret"), stored.EncryptedClientSecret)
	})

	t.Run("update with new secret replaces it", func(t *testing.T) {
		account := &models.MailAccount{
			Address:               "rotate@pulsecrm.example",
			ProviderTenantID:      "tenant-1",
			ProviderClientID:      "client-1",
			EncryptedClientSecret: []byte("old"),
		}
		require.NoError(t, SaveMailAccount(ctx, pool, account))

		account.EncryptedClientSecret = []byte("new")
		require.NoError(t, SaveMailAccount(ctx, pool, account))

		stored, err := GetMailAccountByAddress(ctx, pool, "rotate@pulsecrm.example")
		require.NoError(t, err)
		assert.Equal(t, []byte("new"), stored.EncryptedClientSecret)
	})

	t.Run("missing account", func(t *testing.T) {
		_, err := GetMailAccountByAddress(ctx, pool, "ghost@pulsecrm.example")
		assert.True(t, errors.Is(err, ErrAccountNotFound))
	})

	t.Run("list accounts", func(t *testing.T) {
		accounts, err := ListMailAccounts(ctx, pool)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(accounts), 3)
	})
}

func TestNotifications(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()

	account := &models.MailAccount{Address: "rep@pulsecrm.example"}
	require.NoError(t, SaveMailAccount(ctx, pool, account))

	email := newEmail("rep@pulsecrm.example", "lead@customer.example")
	mustSave(t, pool, email)

	notification := &models.Notification{
		AccountID: &account.ID,
		EmailID:   &email.ID,
		Kind:      models.NotificationReplyReceived,
		Message:   "Dana Lead replied: Re: Proposal",
	}
	require.NoError(t, InsertNotification(ctx, pool, notification))

	stored, err := ListNotifications(ctx, pool, account.ID, 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, models.NotificationReplyReceived, stored[0].Kind)
	assert.Equal(t, "Dana Lead replied: Re: Proposal", stored[0].Message)
	assert.False(t, stored[0].IsRead)
}
