package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pulsecrm/backend/internal/db"
	"github.com/pulsecrm/backend/internal/models"
	"github.com/pulsecrm/backend/internal/notify"
	"github.com/pulsecrm/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insertTrackedEmail(t *testing.T, pool *pgxpool.Pool) *models.Email {
	t.Helper()

	id := uuid.NewString()
	email := &models.Email{
		ID:          id,
		FromAddress: "rep@pulsecrm.example",
		ToAddress:   "lead@customer.example",
		Subject:     "Proposal",
		Status:      models.StatusSent,
		ThreadID:    id,
		SentAt:      time.Now(),
	}
	require.NoError(t, db.SaveEmail(context.Background(), pool, email))
	return email
}

func TestTrackHandler(t *testing.T) {
	pool := testutil.NewTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	handler := NewTrackHandler(pool, notify.NewNotifier(pool, notify.NewHub(10)))

	t.Run("click redirects and records", func(t *testing.T) {
		email := insertTrackedEmail(t, pool)

		target := "https://docs.example.com/pricing?q=1"
		req := httptest.NewRequest(http.MethodGet, "/track/click?id="+email.ID+"&url="+url.QueryEscape(target), nil)
		w := httptest.NewRecorder()

		handler.Click(w, req)

		res := w.Result()
		assert.Equal(t, http.StatusFound, res.StatusCode)
		assert.Equal(t, target, res.Header.Get("Location"))

		stored, err := db.GetEmailByID(ctx, pool, email.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, stored.ClickCount)
		assert.Equal(t, clickScoreBump, stored.EngagementScore)
	})

	t.Run("click for unknown email still redirects", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/track/click?id="+uuid.NewString()+"&url="+url.QueryEscape("https://example.com/"), nil)
		w := httptest.NewRecorder()

		handler.Click(w, req)

		assert.Equal(t, http.StatusFound, w.Result().StatusCode)
	})

	t.Run("click rejects non-http targets", func(t *testing.T) {
		for _, target := range []string{"javascript:alert(1)", "ftp://example.com/x", "not a url", ""} {
			req := httptest.NewRequest(http.MethodGet, "/track/click?id=x&url="+url.QueryEscape(target), nil)
			w := httptest.NewRecorder()

			handler.Click(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Result().StatusCode, "target %q", target)
		}
	})

	t.Run("open serves pixel and records", func(t *testing.T) {
		email := insertTrackedEmail(t, pool)

		req := httptest.NewRequest(http.MethodGet, "/track/open/"+email.ID, nil)
		w := httptest.NewRecorder()

		handler.Open(w, req)

		res := w.Result()
		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, "image/gif", res.Header.Get("Content-Type"))
		assert.Equal(t, trackingPixel, w.Body.Bytes())

		stored, err := db.GetEmailByID(ctx, pool, email.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, stored.OpenCount)
		assert.Equal(t, models.StatusOpened, stored.Status)
	})

	t.Run("open for unknown email still serves pixel", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/track/open/"+uuid.NewString(), nil)
		w := httptest.NewRecorder()

		handler.Open(w, req)

		res := w.Result()
		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, trackingPixel, w.Body.Bytes())
	})

	t.Run("open does not downgrade replied status", func(t *testing.T) {
		email := insertTrackedEmail(t, pool)
		require.NoError(t, db.RecordReply(ctx, pool, &models.Reply{
			EmailID:           email.ID,
			FromAddress:       "lead@customer.example",
			ProviderMessageID: "prov-t1",
			ReceivedAt:        time.Now(),
		}))

		req := httptest.NewRequest(http.MethodGet, "/track/open/"+email.ID, nil)
		w := httptest.NewRecorder()

		handler.Open(w, req)

		stored, err := db.GetEmailByID(ctx, pool, email.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusReplied, stored.Status)
		assert.Equal(t, 1, stored.OpenCount)
	})
}
