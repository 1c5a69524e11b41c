package notify

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client wraps a WebSocket connection.
type Client struct {
	conn *websocket.Conn
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// Hub manages active WebSocket connections per mail account.
// It supports multiple connections per account (e.g., multiple tabs).
type Hub struct {
	mu            sync.RWMutex
	clients       map[string]map[*Client]struct{} // accountID -> set of clients
	maxPerAccount int
}

// NewHub creates a new Hub with a per-account connection limit.
func NewHub(maxPerAccount int) *Hub {
	if maxPerAccount <= 0 {
		maxPerAccount = 10
	}
	return &Hub{
		clients:       make(map[string]map[*Client]struct{}),
		maxPerAccount: maxPerAccount,
	}
}

// Register adds a WebSocket connection for the given account.
// If the per-account limit is exceeded, the new connection is closed and nil is returned.
func (h *Hub) Register(accountID string, conn *websocket.Conn) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	accountClients, ok := h.clients[accountID]
	if !ok {
		accountClients = make(map[*Client]struct{})
		h.clients[accountID] = accountClients
	}

	if len(accountClients) >= h.maxPerAccount {
		log.Printf("Notify: account %s exceeded max connections (%d), closing new connection", accountID, h.maxPerAccount)
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many connections for this account"),
			// Use zero deadline - best effort.
			// See https://pkg.go.dev/github.com/gorilla/websocket#Conn.WriteControl
			// for details.
			time.Time{},
		)
		_ = conn.Close()
		return nil
	}

	client := &Client{conn: conn}
	accountClients[client] = struct{}{}
	return client
}

// Unregister removes a client for the given account and closes the connection.
func (h *Hub) Unregister(accountID string, client *Client) {
	if client == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	accountClients, ok := h.clients[accountID]
	if !ok {
		_ = client.conn.Close()
		return
	}

	delete(accountClients, client)

	if len(accountClients) == 0 {
		delete(h.clients, accountID)
	}

	_ = client.conn.Close()
}

// Send broadcasts a message to all active clients for the account.
func (h *Hub) Send(accountID string, msg []byte) {
	h.mu.RLock()
	accountClients := h.clients[accountID]
	h.mu.RUnlock()

	if len(accountClients) == 0 {
		return
	}

	for client := range accountClients {
		if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			log.Printf("Notify: failed to write message for account %s: %v", accountID, err)
			// Best-effort cleanup: unregister this client.
			go h.Unregister(accountID, client)
		}
	}
}

// ActiveConnections returns the number of active WebSocket connections for an account.
func (h *Hub) ActiveConnections(accountID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients[accountID])
}
