// Package websocket pushes moderation events to connected admin dashboards.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"wayfarer/logger"
	"wayfarer/middleware"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Event types broadcast to admins.
const (
	EventConnected        = "connected"
	EventCommentCreated   = "comment_created"
	EventCommentFlagged   = "comment_flagged"
	EventCommentHidden    = "comment_hidden"
	EventPostSubmitted    = "post_submitted"
	EventContactReceived  = "contact_received"
	EventPartnerApplied   = "partner_applied"
	EventNewsletterFinish = "newsletter_finished"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 256
)

type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
	Time    int64       `json:"time"`
}

type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	origins    map[string]bool
}

type Client struct {
	conn   *websocket.Conn
	userID string
	send   chan []byte
	hub    *Hub
}

// NewHub returns a hub accepting upgrades from the given origins. An empty
// list accepts any origin.
func NewHub(allowedOrigins ...string) *Hub {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		origins:    origins,
	}
}

// Run dispatches until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			logger.Log.WithField("user", client.userID).WithField("clients", total).Info("WebSocket client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			logger.Log.WithField("user", client.userID).WithField("clients", total).Info("WebSocket client unregistered")

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues an event for every connected admin. It never blocks the
// caller; when the queue is full the event is dropped.
func (h *Hub) Broadcast(eventType string, payload interface{}) {
	if h == nil {
		return
	}
	msg, err := json.Marshal(Event{Type: eventType, Payload: payload, Time: time.Now().Unix()})
	if err != nil {
		logger.Log.WithError(err).WithField("event", eventType).Error("Failed to marshal WebSocket event")
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		logger.Log.WithField("event", eventType).Warn("WebSocket broadcast queue full, dropping event")
	}
}

func (h *Hub) Connected() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return len(h.origins) == 0 || origin == "" || h.origins[origin]
}

// Handler upgrades admin connections. The token comes from ?token= because
// browsers cannot set headers on a websocket handshake.
func (h *Hub) Handler() gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin:     h.checkOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	return func(c *gin.Context) {
		claims, err := middleware.ParseToken(c.Query("token"))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Invalid token"})
			return
		}
		if claims.Role != "admin" {
			c.JSON(http.StatusForbidden, gin.H{"success": false, "error": "Admin access required"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Log.WithError(err).Warn("WebSocket upgrade failed")
			return
		}

		client := &Client{
			conn:   conn,
			userID: claims.UserID,
			send:   make(chan []byte, sendBuffer),
			hub:    h,
		}
		select {
		case h.register <- client:
		case <-h.done:
			conn.Close()
			return
		}

		welcome, _ := json.Marshal(Event{
			Type:    EventConnected,
			Payload: gin.H{"userId": claims.UserID},
			Time:    time.Now().Unix(),
		})
		client.send <- welcome

		go client.writePump()
		go client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// The feed is one-way; client frames are read only to keep the
	// connection's deadlines and close handshake working.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.WithError(err).WithField("user", c.userID).Warn("WebSocket read error")
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
