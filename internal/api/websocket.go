package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/shinamon610/ShareMouse/internal/protocol"
	"github.com/shinamon610/ShareMouse/internal/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API listens on loopback by default; the token guards other setups.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub fans session events out to WebSocket clients. It implements
// session.Observer; its callbacks never block the session.
type Hub struct {
	clients    map[*wsClient]bool
	clientsMu  sync.RWMutex
	broadcast  chan protocol.Event
	register   chan *wsClient
	unregister chan *wsClient
	shutdown   chan struct{}
	closeOnce  sync.Once

	lastMu sync.Mutex
	last   *session.Status
}

// wsClient represents a connected watcher
type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	ip   string
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan protocol.Event, 64),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		shutdown:   make(chan struct{}),
	}
}

// Run dispatches until Close is called.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clientsMu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.clientsMu.Unlock()
			log.Debug().Str("module", "api").Str("from", client.ip).Int("clients", n).Msg("ws client registered")

			if st, ok := h.lastStatus(); ok {
				h.deliver(client, protocol.Event{Type: protocol.TypeStatus, Payload: st})
			}

		case client := <-h.unregister:
			h.drop(client)

		case ev := <-h.broadcast:
			h.fanOut(ev)

		case <-h.shutdown:
			h.fanOut(protocol.Event{Type: protocol.TypeStopped})
			h.clientsMu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.clientsMu.Unlock()
			return
		}
	}
}

// Close sends a stopped event to every client and ends Run.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.shutdown) })
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// OnStatus implements session.Observer.
func (h *Hub) OnStatus(st session.Status) {
	h.lastMu.Lock()
	h.last = &st
	h.lastMu.Unlock()
	h.publish(protocol.Event{Type: protocol.TypeStatus, Payload: st})
}

// OnTransition implements session.Observer.
func (h *Hub) OnTransition(t session.Transition) {
	h.publish(protocol.Event{Type: protocol.TypeTransition, Payload: protocol.TransitionPayload{
		From:   t.From.String(),
		To:     t.To.String(),
		Reason: t.Reason,
	}})
}

func (h *Hub) publish(ev protocol.Event) {
	select {
	case h.broadcast <- ev:
	default:
		log.Debug().Str("module", "api").Str("type", string(ev.Type)).Msg("ws broadcast queue full, event dropped")
	}
}

func (h *Hub) lastStatus() (session.Status, bool) {
	h.lastMu.Lock()
	defer h.lastMu.Unlock()
	if h.last == nil {
		return session.Status{}, false
	}
	return *h.last, true
}

func (h *Hub) fanOut(ev protocol.Event) {
	h.clientsMu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clientsMu.RUnlock()

	for _, client := range clients {
		h.deliver(client, ev)
	}
}

// deliver queues ev for one client; a client that cannot keep up is dropped.
func (h *Hub) deliver(client *wsClient, ev protocol.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "api").Msg("marshal ws event")
		return
	}
	select {
	case client.send <- data:
	default:
		h.drop(client)
	}
}

func (h *Hub) drop(client *wsClient) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		log.Debug().Str("module", "api").Str("from", client.ip).Int("clients", len(h.clients)).Msg("ws client unregistered")
	}
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("module", "api").Msg("ws upgrade failed")
		return
	}

	client := &wsClient{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
		ip:   r.RemoteAddr,
	}

	select {
	case h.register <- client:
	case <-h.shutdown:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump only watches for the connection closing; clients do not send
// commands over the stream.
func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.shutdown:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("module", "api").Msg("ws read error")
			}
			return
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
