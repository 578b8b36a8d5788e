package services

import (
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/aj9599/raas-platform/metrics"
	"github.com/aj9599/raas-platform/models"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsSendBuffer = 16
)

type wsClient struct {
	accountID int
	conn      *websocket.Conn
	send      chan []byte
}

// NotificationHub fans notifications out to the open websocket connections
// of each account.
type NotificationHub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[int]map[*wsClient]struct{}
	closed  bool
}

func NewNotificationHub(logger *zap.Logger, allowedOrigins []string) *NotificationHub {
	h := &NotificationHub{
		logger:  logger,
		clients: make(map[int]map[*wsClient]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || slices.Contains(allowedOrigins, "*") {
				return true
			}
			return slices.Contains(allowedOrigins, origin)
		},
	}
	return h
}

// ServeWS upgrades the request and streams the account's notifications
// until the client goes away.
func (h *NotificationHub) ServeWS(w http.ResponseWriter, r *http.Request, accountID int) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("[NOTIFY] Websocket upgrade failed", zap.Error(err))
		return
	}

	client := &wsClient{accountID: accountID, conn: conn, send: make(chan []byte, wsSendBuffer)}
	if !h.register(client) {
		conn.Close()
		return
	}
	metrics.StreamConnected()
	h.logger.Debug("[NOTIFY] Stream connected", zap.Int("account_id", accountID))

	go h.writePump(client)
	h.readPump(client)
}

func (h *NotificationHub) register(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	if h.clients[c.accountID] == nil {
		h.clients[c.accountID] = make(map[*wsClient]struct{})
	}
	h.clients[c.accountID][c] = struct{}{}
	return true
}

func (h *NotificationHub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.accountID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.accountID)
	}
	close(c.send)
	metrics.StreamDisconnected()
}

// readPump only handles control frames; clients do not send data.
func (h *NotificationHub) readPump(c *wsClient) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *NotificationHub) writePump(c *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Publish sends the notification to every open connection of the account.
// Slow clients drop messages rather than block the publisher.
func (h *NotificationHub) Publish(n models.Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[n.AccountID] {
		select {
		case c.send <- payload:
		default:
			h.logger.Warn("[NOTIFY] Dropping message for slow client", zap.Int("account_id", n.AccountID))
		}
	}
}

func (h *NotificationHub) Connections(accountID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[accountID])
}

// Close disconnects every client.
func (h *NotificationHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for accountID, set := range h.clients {
		for c := range set {
			close(c.send)
			metrics.StreamDisconnected()
		}
		delete(h.clients, accountID)
	}
}
