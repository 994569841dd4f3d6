package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/banshee-data/aoa.report/internal/aoa"
	"github.com/banshee-data/aoa.report/internal/monitoring"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	clientBuffer   = 64
)

// LiveReading is one message on /api/live.
type LiveReading struct {
	AnchorID  string  `json:"anchor_id"`
	Azimuth   float64 `json:"azimuth"`
	Elevation float64 `json:"elevation"`
	Timestamp float64 `json:"timestamp"`
}

// NewLiveReading converts a stored reading into its wire form.
func NewLiveReading(anchorID string, r aoa.AnchorReading) LiveReading {
	return LiveReading{
		AnchorID:  anchorID,
		Azimuth:   r.AzimuthDeg,
		Elevation: r.ElevationDeg,
		Timestamp: float64(r.Timestamp.UnixNano()) / 1e9,
	}
}

type liveClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans accepted readings out to websocket clients. A client whose
// buffer is full is dropped rather than slowing ingestion.
type Hub struct {
	snapshot func() aoa.Snapshot

	mu      sync.RWMutex
	clients map[*liveClient]struct{}

	broadcast  chan []byte
	register   chan *liveClient
	unregister chan *liveClient
	done       chan struct{}

	upgrader websocket.Upgrader
}

// NewHub creates a hub. snapshot, when set, is sent to each client as it
// connects so it does not wait for the next report.
func NewHub(snapshot func() aoa.Snapshot) *Hub {
	return &Hub{
		snapshot:   snapshot,
		clients:    make(map[*liveClient]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *liveClient),
		unregister: make(chan *liveClient),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Run owns the client set until ctx is cancelled, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.mu.Lock()
		for c := range h.clients {
			delete(h.clients, c)
			close(c.send)
		}
		h.mu.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()
			monitoring.Logf("live client %s connected (%d total)", c.id, count)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			monitoring.Logf("live client %s disconnected (%d remaining)", c.id, count)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					delete(h.clients, c)
					close(c.send)
					monitoring.Logf("dropped slow live client %s", c.id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish queues a reading for every client. It never blocks.
func (h *Hub) Publish(anchorID string, r aoa.AnchorReading) {
	data, err := json.Marshal(NewLiveReading(anchorID, r))
	if err != nil {
		monitoring.Logf("live: encode failed: %v", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		monitoring.Debugf("live: broadcast queue full, dropping reading from %s", anchorID)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and streams readings until the peer goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		monitoring.Debugf("live: upgrade failed: %v", err)
		return
	}
	c := &liveClient{id: uuid.NewString(), conn: conn, send: make(chan []byte, clientBuffer)}

	if h.snapshot != nil {
		for id, reading := range h.snapshot() {
			if len(c.send) == cap(c.send) {
				break
			}
			if data, err := json.Marshal(NewLiveReading(id, reading)); err == nil {
				c.send <- data
			}
		}
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	c.readPump(h)
}

// readPump discards client messages; reading is how close and pong frames
// are noticed.
func (c *liveClient) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only writer on the connection.
func (c *liveClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
