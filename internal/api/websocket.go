package api

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"swarm-grid/internal/game"
)

const (
	// MaxWSConnectionsTotal is the maximum number of WebSocket connections allowed
	MaxWSConnectionsTotal = 500

	// MaxWSConnectionsPerIP is the maximum WebSocket connections per IP
	MaxWSConnectionsPerIP = 10

	// DefaultBroadcastInterval is how often snapshots are pushed to clients
	DefaultBroadcastInterval = 100 * time.Millisecond

	wsWriteWait    = 2 * time.Second
	wsMaxReadBytes = 512
)

// Frame is the msgpack envelope of every binary WebSocket message.
type Frame struct {
	Event string      `msgpack:"event"`
	Data  interface{} `msgpack:"data"`
}

// wsClient tracks a WebSocket connection with its source IP
type wsClient struct {
	conn *websocket.Conn
	ip   string
}

// WebSocketHub manages all WebSocket connections with DoS protection.
// Only the Run goroutine writes to connections.
type WebSocketHub struct {
	clients    map[*websocket.Conn]*wsClient
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *websocket.Conn
	mu         sync.RWMutex

	upgrader  websocket.Upgrader
	wsLimiter *WebSocketRateLimiter

	done     chan struct{}
	stopOnce sync.Once
}

// NewWebSocketHub creates a new hub. Browser origins other than localhost
// must be listed in origins.
func NewWebSocketHub(origins []string) *WebSocketHub {
	h := &WebSocketHub{
		clients:    make(map[*websocket.Conn]*wsClient),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *wsClient),
		unregister: make(chan *websocket.Conn),
		wsLimiter:  NewWebSocketRateLimiter(MaxWSConnectionsPerIP),
		done:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if IsAllowedOrigin(origin, origins) {
				return true
			}
			// Log rejected origin for security monitoring
			log.Printf("⚠️ WebSocket connection rejected from origin: %q", origin)
			RecordConnectionRejected("origin")
			return false
		},
	}
	return h
}

// Run services registrations and broadcasts until Stop is called.
func (h *WebSocketHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.conn] = client
			count := len(h.clients)
			h.mu.Unlock()

			log.Printf("📱 Client connected from %s (%d total)", client.ip, count)
			UpdateWSConnections(count)

		case conn := <-h.unregister:
			if h.drop(conn) {
				count := h.ClientCount()
				log.Printf("📱 Client disconnected (%d remaining)", count)
				UpdateWSConnections(count)
			}

		case message := <-h.broadcast:
			h.writeAll(message)
			IncrementWSMessages()

		case <-h.done:
			h.mu.Lock()
			for conn, client := range h.clients {
				h.wsLimiter.Release(client.ip)
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			UpdateWSConnections(0)
			return
		}
	}
}

// Stop closes every connection and ends Run and the broadcast loop.
func (h *WebSocketHub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

func (h *WebSocketHub) writeAll(message []byte) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteMessage(websocket.BinaryMessage, message); err != nil {
			h.drop(conn)
		}
	}
}

// drop removes conn and releases its IP slot. It reports whether conn was
// still registered.
func (h *WebSocketHub) drop(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[conn]
	if !ok {
		return false
	}
	h.wsLimiter.Release(client.ip)
	delete(h.clients, conn)
	conn.Close()
	return true
}

// Broadcast encodes data as a msgpack Frame and queues it for every client.
// It reports false when the frame was dropped.
func (h *WebSocketHub) Broadcast(event string, data interface{}) bool {
	b, err := msgpack.Marshal(&Frame{Event: event, Data: data})
	if err != nil {
		log.Printf("⚠️ Broadcast %s: %v", event, err)
		return false
	}

	select {
	case h.broadcast <- b:
		return true
	default:
		// Channel full, skip (backpressure)
		return false
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// StartBroadcastLoop pushes every new snapshot to connected clients.
func (h *WebSocketHub) StartBroadcastLoop(engine EngineInterface, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultBroadcastInterval
	}
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		var lastSeq uint64
		sent := false
		for {
			select {
			case <-h.done:
				return
			case <-ticker.C:
			}
			if h.ClientCount() == 0 {
				continue
			}

			engine.ViewSnapshot(func(snap *game.WorldSnapshot) {
				if sent && snap.Sequence == lastSeq {
					return
				}
				if h.Broadcast("world:snapshot", snap) {
					lastSeq, sent = snap.Sequence, true
				}
			})
		}
	}()
}

// HandleWebSocket handles incoming WebSocket connections with DoS protection
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)

	if total := h.ClientCount(); total >= MaxWSConnectionsTotal {
		log.Printf("⚠️ WebSocket connection rejected: total limit reached (%d)", total)
		RecordConnectionRejected("ws_total_limit")
		writeError(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}

	if !h.wsLimiter.Allow(ip) {
		log.Printf("⚠️ WebSocket connection rejected from %s: per-IP limit reached", ip)
		RecordConnectionRejected("ws_ip_limit")
		writeError(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		h.wsLimiter.Release(ip) // Release the slot we reserved
		return
	}

	select {
	case h.register <- &wsClient{conn: conn, ip: ip}:
	case <-h.done:
		h.wsLimiter.Release(ip)
		conn.Close()
		return
	}

	// Clients only listen; reading keeps control frames flowing and
	// detects disconnects.
	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
			}
		}()

		conn.SetReadLimit(wsMaxReadBytes)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
