package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/loansight/assistant/internal/conversation"
	"github.com/loansight/assistant/internal/document"
	"github.com/loansight/assistant/internal/observability"
	"github.com/loansight/assistant/internal/voice"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientSendSize = 64
)

// Message types pushed to view clients
const (
	TypeSnapshot  = "snapshot"
	TypeCommitted = "message.committed"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local single-user service
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// WSMessage is one frame on the view stream
type WSMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Snapshot is sent to each client right after it connects
type Snapshot struct {
	Documents []document.Document            `json:"documents"`
	ActiveID  string                         `json:"active_id,omitempty"`
	Messages  []conversation.RenderedMessage `json:"messages"`
	Voice     voice.State                    `json:"voice"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte

	// updates published while the snapshot is being taken; guarded by Hub.mu
	live    bool
	pending []queued
}

type queued struct {
	data      []byte
	messageID string // set for committed messages
}

// Hub fans view updates out to websocket clients. Publishing never blocks:
// a client whose queue is full misses the message.
type Hub struct {
	logger         zerolog.Logger
	levelThrottler *rate.Limiter // input level updates arrive once per captured frame
	snapshot       func() Snapshot

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub creates a hub. levelInterval limits how often level updates are
// forwarded; zero disables throttling.
func NewHub(snapshot func() Snapshot, levelInterval time.Duration) *Hub {
	h := &Hub{
		logger:   observability.WithComponent("hub"),
		snapshot: snapshot,
		clients:  make(map[*client]struct{}),
	}
	if levelInterval > 0 {
		h.levelThrottler = rate.NewLimiter(rate.Every(levelInterval), 1)
	}
	return h
}

// OnVoiceUpdate forwards an orchestrator update
func (h *Hub) OnVoiceUpdate(u voice.Update) {
	if u.Kind == voice.UpdateLevel && h.levelThrottler != nil && !h.levelThrottler.Allow() {
		return
	}
	h.Publish(string(u.Kind), u)
}

// OnDocumentEvent forwards a document store change
func (h *Hub) OnDocumentEvent(ev document.Event) {
	h.Publish(string(ev.Kind), ev.Document)
}

// OnMessage forwards a committed transcript message
func (h *Hub) OnMessage(m conversation.Message) {
	h.publish(TypeCommitted, m.ID, conversation.Render([]conversation.Message{m})[0])
}

// Publish queues a message for every connected client
func (h *Hub) Publish(msgType string, payload any) {
	h.publish(msgType, "", payload)
}

func (h *Hub) publish(msgType, messageID string, payload any) {
	data, err := json.Marshal(WSMessage{Type: msgType, Payload: payload})
	if err != nil {
		h.logger.Error().Err(err).Str("type", msgType).Msg("Failed to marshal stream message")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.live {
			c.pending = append(c.pending, queued{data: data, messageID: messageID})
			continue
		}
		h.deliver(c, data)
	}
}

// deliver never blocks; callers hold h.mu
func (h *Hub) deliver(c *client, data []byte) {
	select {
	case c.send <- data:
	default:
		h.logger.Warn().Msg("Client queue full, dropping message")
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// join registers c and queues the snapshot as its first frame, followed by
// anything published while the snapshot was taken. The snapshot is read
// outside h.mu because the store and history notify under their own locks.
func (h *Hub) join(c *client) int {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	snap := h.snapshot()
	data, err := json.Marshal(WSMessage{Type: TypeSnapshot, Payload: snap})

	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal snapshot")
	} else {
		h.deliver(c, data)
	}

	seen := make(map[string]bool, len(snap.Messages))
	for _, m := range snap.Messages {
		seen[m.ID] = true
	}
	for _, q := range c.pending {
		if q.messageID != "" && seen[q.messageID] {
			continue
		}
		h.deliver(c, q.data)
	}
	c.pending = nil
	c.live = true
	return len(h.clients)
}

// HandleWebSocket upgrades the request and streams updates until the client goes away
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientSendSize)}
	count := h.join(c)
	observability.StreamClientConnected(true)
	h.logger.Debug().Int("clients", count).Msg("Stream client connected")

	done := make(chan struct{})
	go h.writePump(c, done)
	h.readPump(c)

	h.mu.Lock()
	delete(h.clients, c)
	count = len(h.clients)
	h.mu.Unlock()
	close(done)
	observability.StreamClientConnected(false)
	h.logger.Debug().Int("clients", count).Msg("Stream client disconnected")
}

// readPump discards client frames and keeps the connection alive
func (h *Hub) readPump(c *client) {
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug().Err(err).Msg("Stream write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}
