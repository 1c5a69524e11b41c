package api

import (
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pulsecrm/backend/internal/auth"
	"github.com/pulsecrm/backend/internal/db"
	"github.com/pulsecrm/backend/internal/notify"
)

// WebSocketHandler handles the /api/v1/ws endpoint for real-time engagement
// notifications.
type WebSocketHandler struct {
	pool         *pgxpool.Pool
	hub          *notify.Hub
	serviceToken string
}

// NewWebSocketHandler creates a new WebSocketHandler instance.
func NewWebSocketHandler(pool *pgxpool.Pool, hub *notify.Hub, serviceToken string) *WebSocketHandler {
	return &WebSocketHandler{pool: pool, hub: hub, serviceToken: serviceToken}
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// For now, allow all origins. This server is expected to be used
		// behind a reverse proxy in a trusted environment.
		return true
	},
}

// Handle upgrades the HTTP connection to a WebSocket and registers it with the
// Hub under the requested account. Authentication is via query parameter
// (?token=...) since WebSocket connections cannot set custom headers in
// browsers; the Authorization header is accepted as a fallback for tools that
// can set headers.
func (h *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		authHeader := r.Header.Get("Authorization")
		fields := strings.Fields(authHeader)
		if len(fields) == 2 && strings.EqualFold(fields[0], "Bearer") {
			token = fields[1]
		}
	}

	if !auth.MatchesServiceToken(token, h.serviceToken) {
		log.Println("WebSocketHandler: Token rejected")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	address := r.URL.Query().Get("account")
	if address == "" {
		http.Error(w, "account query parameter is required", http.StatusBadRequest)
		return
	}

	account, err := db.GetMailAccountByAddress(r.Context(), h.pool, address)
	if err != nil {
		log.Printf("WebSocketHandler: Unknown account %s: %v", address, err)
		http.Error(w, "Unknown account", http.StatusNotFound)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocketHandler: failed to upgrade connection for account %s: %v", account.ID, err)
		return
	}

	client := h.hub.Register(account.ID, conn)
	if client == nil {
		log.Printf("WebSocketHandler: Connection rejected for account %s (max connections exceeded)", account.ID)
		return
	}

	go h.readLoop(account.ID, client)
}

// readLoop reads messages from the WebSocket until the connection is closed,
// then unregisters the client.
func (h *WebSocketHandler) readLoop(accountID string, client *notify.Client) {
	conn := client.Conn()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.hub.Unregister(accountID, client)
}
