package api

import (
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pulsecrm/backend/internal/db"
	"github.com/pulsecrm/backend/internal/models"
	"github.com/pulsecrm/backend/internal/notify"
)

// clickScoreBump is added to an email's engagement score on its first click.
const clickScoreBump = 5

// TrackHandler serves the engagement-tracking endpoints embedded in sent
// email bodies. These are hit by recipient mail clients, so they are
// unauthenticated and must never leak errors to the recipient: a click
// always redirects, an open always returns the pixel.
type TrackHandler struct {
	pool     *pgxpool.Pool
	notifier *notify.Notifier
}

// NewTrackHandler creates a new TrackHandler instance.
func NewTrackHandler(pool *pgxpool.Pool, notifier *notify.Notifier) *TrackHandler {
	return &TrackHandler{pool: pool, notifier: notifier}
}

// trackingPixel is a 1x1 transparent GIF.
var trackingPixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// Click records a link click and redirects to the original target. Tracking
// failures are logged but never block the redirect.
func (h *TrackHandler) Click(w http.ResponseWriter, r *http.Request) {
	emailID := r.URL.Query().Get("id")
	target := r.URL.Query().Get("url")

	parsed, err := url.Parse(target)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		http.Error(w, "Invalid redirect target", http.StatusBadRequest)
		return
	}

	if emailID != "" {
		h.recordClick(r, emailID, target)
	}

	http.Redirect(w, r, target, http.StatusFound)
}

func (h *TrackHandler) recordClick(r *http.Request, emailID, target string) {
	ctx := r.Context()

	firstClick, err := db.RecordClick(ctx, h.pool, emailID, clickScoreBump)
	if err != nil {
		log.Printf("TrackHandler: Failed to record click for email %s: %v", emailID, err)
		return
	}

	if !firstClick {
		return
	}

	email, err := db.GetEmailByID(ctx, h.pool, emailID)
	if err != nil {
		log.Printf("TrackHandler: Failed to load email %s for notification: %v", emailID, err)
		return
	}

	h.notifier.Notify(ctx, &models.Notification{
		AccountID: email.AccountID,
		EmailID:   &email.ID,
		Kind:      models.NotificationLinkClicked,
		Message:   fmt.Sprintf("%s clicked a link: %s", email.ToAddress, target),
	})
}

// Open records an email open and serves the tracking pixel. The pixel is
// served no matter what; a broken image in the recipient's client is worse
// than a lost open event.
func (h *TrackHandler) Open(w http.ResponseWriter, r *http.Request) {
	emailID := strings.TrimPrefix(r.URL.Path, "/track/open/")

	if emailID != "" && !strings.Contains(emailID, "/") {
		h.recordOpen(r, emailID)
	}

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	_, _ = w.Write(trackingPixel)
}

func (h *TrackHandler) recordOpen(r *http.Request, emailID string) {
	ctx := r.Context()

	firstOpen, err := db.RecordOpen(ctx, h.pool, emailID)
	if err != nil {
		log.Printf("TrackHandler: Failed to record open for email %s: %v", emailID, err)
		return
	}

	if !firstOpen {
		return
	}

	email, err := db.GetEmailByID(ctx, h.pool, emailID)
	if err != nil {
		log.Printf("TrackHandler: Failed to load email %s for notification: %v", emailID, err)
		return
	}

	h.notifier.Notify(ctx, &models.Notification{
		AccountID: email.AccountID,
		EmailID:   &email.ID,
		Kind:      models.NotificationEmailOpened,
		Message:   fmt.Sprintf("%s opened your email: %s", email.ToAddress, email.Subject),
	})
}
