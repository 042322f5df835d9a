package websocket

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const writeWait = 5 * time.Second

// Client wraps one push connection. Writes are serialized.
type Client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

func (c *Client) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

func (c *Client) closeWith(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
}

// Hub keeps the push connections of each account on the backend side.
// An account may hold several connections, up to maxPerAccount.
type Hub struct {
	mu            sync.RWMutex
	clients       map[string]map[*Client]struct{} // account -> set of clients
	maxPerAccount int
	logger        *logrus.Logger
	upgrader      websocket.Upgrader
}

// NewHub creates a Hub with a per-account connection limit.
func NewHub(maxPerAccount int, logger *logrus.Logger) *Hub {
	if maxPerAccount <= 0 {
		maxPerAccount = 10
	}
	return &Hub{
		clients:       make(map[string]map[*Client]struct{}),
		maxPerAccount: maxPerAccount,
		logger:        logger,
		upgrader: websocket.Upgrader{
			// Desktop clients send no browser origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Register adds conn for account. Over the limit the connection is closed and nil is returned.
func (h *Hub) Register(account string, conn *websocket.Conn) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	accountClients, ok := h.clients[account]
	if !ok {
		accountClients = make(map[*Client]struct{})
		h.clients[account] = accountClients
	}

	if len(accountClients) >= h.maxPerAccount {
		h.logger.WithField("account", account).WithField("max", h.maxPerAccount).
			Warn("Hub: too many connections for account, closing new connection")
		client := &Client{conn: conn}
		client.closeWith(websocket.ClosePolicyViolation, "too many connections for this account")
		_ = conn.Close()
		return nil
	}

	client := &Client{conn: conn}
	accountClients[client] = struct{}{}
	return client
}

// Unregister removes client and closes its connection.
func (h *Hub) Unregister(account string, client *Client) {
	if client == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if accountClients, ok := h.clients[account]; ok {
		delete(accountClients, client)
		if len(accountClients) == 0 {
			delete(h.clients, account)
		}
	}
	_ = client.conn.Close()
}

func (h *Hub) snapshot(account string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := make([]*Client, 0, len(h.clients[account]))
	for client := range h.clients[account] {
		clients = append(clients, client)
	}
	return clients
}

// Send writes msg to every connection of account.
func (h *Hub) Send(account string, msg []byte) {
	for _, client := range h.snapshot(account) {
		if err := client.write(websocket.TextMessage, msg); err != nil {
			h.logger.WithError(err).WithField("account", account).Warn("Hub: failed to write message")
			go h.Unregister(account, client)
		}
	}
}

// Push encodes payload as JSON and sends it to account's connections.
func (h *Hub) Push(account string, payload any) error {
	msg, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode push payload: %w", err)
	}
	h.Send(account, msg)
	return nil
}

// CloseAccount sends a close frame with reason to every connection of account and drops them.
func (h *Hub) CloseAccount(account string, code int, reason string) {
	for _, client := range h.snapshot(account) {
		client.closeWith(code, reason)
		h.Unregister(account, client)
	}
}

// ActiveConnections returns the number of open connections for account.
func (h *Hub) ActiveConnections(account string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients[account])
}

// ServeAccount upgrades the request and holds the connection for account until the peer leaves.
func (h *Hub) ServeAccount(w http.ResponseWriter, r *http.Request, account string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Hub: failed to upgrade connection")
		return
	}

	client := h.Register(account, conn)
	if client == nil {
		return
	}
	h.logger.WithField("account", account).Debug("Hub: client connected")

	defer h.Unregister(account, client)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.logger.WithField("account", account).Debug("Hub: client disconnected")
			return
		}
	}
}
