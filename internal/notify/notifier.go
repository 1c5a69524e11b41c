package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pulsecrm/backend/internal/db"
	"github.com/pulsecrm/backend/internal/models"
)

// Notifier persists notifications and pushes them to any live WebSocket
// connections for the account. Both halves are best-effort: engagement
// tracking and reply ingestion never fail because a notification could
// not be delivered.
type Notifier struct {
	pool *pgxpool.Pool
	hub  *Hub
}

func NewNotifier(pool *pgxpool.Pool, hub *Hub) *Notifier {
	return &Notifier{pool: pool, hub: hub}
}

// Notify records the notification and broadcasts it. Errors are logged,
// not returned.
func (n *Notifier) Notify(ctx context.Context, notification *models.Notification) {
	if err := db.InsertNotification(ctx, n.pool, notification); err != nil {
		log.Printf("Notify: failed to persist notification: %v", err)
	}

	if notification.AccountID == nil {
		return
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(notification); err != nil {
		log.Printf("Notify: failed to encode notification: %v", err)
		return
	}
	n.hub.Send(*notification.AccountID, buf.Bytes())
}
