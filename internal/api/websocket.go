package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"edgekvm/internal/switcher"

	"github.com/gorilla/websocket"
)

const (
	eventWriteWait  = 10 * time.Second
	eventPongWait   = 60 * time.Second
	eventPingPeriod = 50 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Monitors are local tools, not browsers.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// EventHub pushes status updates to websocket monitors
type EventHub struct {
	mu      sync.Mutex
	clients map[*eventClient]struct{}
	closed  bool
}

// eventClient is one connected monitor
type eventClient struct {
	hub  *EventHub
	conn *websocket.Conn
	send chan []byte
	ip   string
}

func newEventHub() *EventHub {
	return &EventHub{clients: make(map[*eventClient]struct{})}
}

// Publish sends st to every monitor. Slow monitors are dropped.
func (h *EventHub) Publish(st switcher.Status) {
	data, err := json.Marshal(st)
	if err != nil {
		log.Printf("WS: Failed to marshal status: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			log.Printf("WS: Dropping slow monitor %s", c.ip)
			h.removeLocked(c)
		}
	}
}

// Clients returns the number of connected monitors
func (h *EventHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every monitor
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *EventHub) add(c *eventClient, initial []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	c.send <- initial
	log.Printf("WS: Monitor connected from %s. Total: %d", c.ip, len(h.clients))
	return true
}

func (h *EventHub) remove(c *eventClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *EventHub) removeLocked(c *eventClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	log.Printf("WS: Monitor %s disconnected. Total: %d", c.ip, len(h.clients))
}

// handleEvents handles GET /api/events. The current status is sent first.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WS: Failed to upgrade connection: %v", err)
		return
	}

	initial, err := json.Marshal(s.switcher.Status())
	if err != nil {
		conn.Close()
		return
	}

	client := &eventClient{
		hub:  s.events,
		conn: conn,
		send: make(chan []byte, 16),
		ip:   r.RemoteAddr,
	}
	if !s.events.add(client, initial) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump only watches for the monitor going away
func (c *eventClient) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(eventPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(eventPongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WS: Read error: %v", err)
			}
			return
		}
	}
}

// writePump pumps status updates to the websocket connection
func (c *eventClient) writePump() {
	ticker := time.NewTicker(eventPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
