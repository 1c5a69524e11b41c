package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pulsecrm/backend/internal/models"
	"github.com/pulsecrm/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postAccount(t *testing.T, handler *AccountsHandler, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/accounts", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler.PostAccount(w, req)
	return w
}

func TestAccountsHandler(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	handler := NewAccountsHandler(pool, testutil.GetTestEncryptor(t))

	t.Run("rejects malformed body", func(t *testing.T) {
		w := postAccount(t, handler, "{nope")
		assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
	})

	t.Run("rejects invalid address", func(t *testing.T) {
		w := postAccount(t, handler, `{"address":"not-an-address"}`)
		assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
	})

	t.Run("create with provider credentials", func(t *testing.T) {
		w := postAccount(t, handler, `{
			"address": "rep@pulsecrm.example",
			"display_name": "Rep One",
			"provider_tenant_id": "tenant-1",
			"provider_client_id": "client-1",
			"client_secret": "s3cret"
		}`)
		require.Equal(t, http.StatusOK, w.Result().StatusCode)

		var resp models.MailAccountResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.NotEmpty(t, resp.ID)
		assert.Equal(t, "rep@pulsecrm.example", resp.Address)
		assert.Equal(t, "Rep One", resp.DisplayName)
		assert.True(t, resp.ClientSecretSet)
	})

	t.Run("update without secret preserves it", func(t *testing.T) {
		w := postAccount(t, handler, `{
			"address": "rep@pulsecrm.example",
			"display_name": "Rep Renamed",
			"provider_tenant_id": "tenant-1",
			"provider_client_id": "client-1"
		}`)
		require.Equal(t, http.StatusOK, w.Result().StatusCode)

		var resp models.MailAccountResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, "Rep Renamed", resp.DisplayName)
		assert.True(t, resp.ClientSecretSet, "omitting the secret must not clear it")
	})

	t.Run("create smtp-only account", func(t *testing.T) {
		w := postAccount(t, handler, `{
			"address": "legacy@pulsecrm.example",
			"display_name": "Legacy Sender",
			"smtp_hostname": "smtp.pulsecrm.example"
		}`)
		require.Equal(t, http.StatusOK, w.Result().StatusCode)

		var resp models.MailAccountResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.False(t, resp.ClientSecretSet)
		assert.Equal(t, "smtp.pulsecrm.example", resp.SMTPHostname)
	})

	t.Run("list returns all accounts", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts", nil)
		w := httptest.NewRecorder()

		handler.GetAccounts(w, req)

		require.Equal(t, http.StatusOK, w.Result().StatusCode)

		var resp AccountsResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.True(t, resp.Success)
		require.Len(t, resp.Accounts, 2)

		addresses := make(map[string]bool)
		for _, account := range resp.Accounts {
			addresses[account.Address] = true
		}
		assert.True(t, addresses["rep@pulsecrm.example"])
		assert.True(t, addresses["legacy@pulsecrm.example"])
	})
}
