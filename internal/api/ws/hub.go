package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/shinyhost/internal/domain/shiny"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 256
	readLimit  = 4096
)

// Frame is the JSON message sent to subscribers.
type Frame struct {
	Type      string      `json:"type"`
	Topic     string      `json:"topic,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	RunID     string      `json:"run_id,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// inbound is a message read from a subscriber.
type inbound struct {
	Type string `json:"type"`
}

// Recorder receives hub measurements.
type Recorder interface {
	RecordEvent(topic string)
	IncWSConnections()
	DecWSConnections()
	IncWSDropped()
}

type nopRecorder struct{}

func (nopRecorder) RecordEvent(string) {}
func (nopRecorder) IncWSConnections()  {}
func (nopRecorder) DecWSConnections()  {}
func (nopRecorder) IncWSDropped()      {}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// Hub fans supervisor events out to every connected WebSocket subscriber.
// Notify never blocks: a subscriber whose buffer is full misses the frame.
type Hub struct {
	prefix   string
	logger   *zap.Logger
	metrics  Recorder
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
}

// NewHub creates a hub. Topics are sent as prefix+topic, e.g. "shiny-started".
func NewHub(prefix string, logger *zap.Logger, metrics Recorder) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Hub{
		prefix:  prefix,
		logger:  logger,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			// The UI shell loads from a custom scheme; CORS guards the API instead.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
}

// Notify implements shiny.Notifier.
func (h *Hub) Notify(ev shiny.Event) {
	topic := h.prefix + ev.Topic
	h.metrics.RecordEvent(ev.Topic)

	data, err := sonic.Marshal(Frame{
		Type:      "event",
		Topic:     topic,
		Payload:   ev.Payload,
		RunID:     ev.RunID,
		Timestamp: ev.Time.UnixMilli(),
	})
	if err != nil {
		h.logger.Warn("Failed to encode event", zap.String("topic", topic), zap.Error(err))
		return
	}

	h.broadcast(data)
}

func (h *Hub) broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.metrics.IncWSDropped()
			h.logger.Debug("Dropping frame for slow subscriber", zap.String("client", c.id))
		}
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleConnection upgrades the request and streams events until the
// subscriber disconnects.
func (h *Hub) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	cl := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	if !h.register(cl) {
		conn.Close()
		return
	}
	defer h.unregister(cl)

	go h.writePump(cl)

	h.enqueue(cl, Frame{
		Type:      "system",
		Message:   "Connected to Shiny host",
		Timestamp: time.Now().UnixMilli(),
	})

	h.readPump(cl)
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.clients[c.id] = c
	h.metrics.IncWSConnections()
	h.logger.Debug("Subscriber connected", zap.String("client", c.id))
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		h.metrics.DecWSConnections()
	}
	h.mu.Unlock()

	c.close()
	h.logger.Debug("Subscriber disconnected", zap.String("client", c.id))
}

// enqueue sends a frame to one subscriber without blocking.
func (h *Hub) enqueue(c *client, f Frame) {
	data, err := sonic.Marshal(f)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
		h.metrics.IncWSDropped()
	}
}

// readPump handles pings from the subscriber and detects disconnects.
func (h *Hub) readPump(c *client) {
	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("WebSocket read error", zap.String("client", c.id), zap.Error(err))
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg inbound
		if err := sonic.Unmarshal(data, &msg); err != nil {
			h.enqueue(c, Frame{Type: "error", Message: "invalid message", Timestamp: time.Now().UnixMilli()})
			continue
		}

		switch msg.Type {
		case "ping":
			h.enqueue(c, Frame{Type: "pong", Timestamp: time.Now().UnixMilli()})
		default:
			h.enqueue(c, Frame{Type: "error", Message: "unknown message type", Timestamp: time.Now().UnixMilli()})
		}
	}
}

// writePump is the only writer of c.conn.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[string]*client)
	h.mu.Unlock()

	for _, c := range clients {
		h.metrics.DecWSConnections()
		c.close()
	}
}
