package events

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"emergency-dispatch-service/internal/models"
	"emergency-dispatch-service/internal/observability/logging"
	"emergency-dispatch-service/internal/observability/metrics"
)

// Websocket event names. Browsers send start_call and end_call; the
// service pushes transcript_update.
const (
	EventTranscriptUpdate = "transcript_update"
	EventStartCall        = "start_call"
	EventEndCall          = "end_call"
	EventError            = "error"
)

// Envelope is the websocket frame in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// CommandHandler handles a start_call or end_call command from a client.
// connID identifies the websocket connection.
type CommandHandler func(ctx context.Context, connID, event string) error

const (
	writeWait  = 5 * time.Second
	sendBuffer = 64
)

// Client is one connected dashboard.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// Hub fans transcript updates out to every connected dashboard.
type Hub struct {
	upgrader websocket.Upgrader
	log      zerolog.Logger
	metrics  *metrics.Metrics

	mu      sync.RWMutex
	clients map[string]*Client
	onCmd   CommandHandler
	closed  bool

	// conns tracks the read and write loop of every registered client.
	conns sync.WaitGroup
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			// Dashboards are served from other origins in local dev.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log:     logging.WithComponent("events.hub"),
		metrics: metrics.DefaultMetrics,
		clients: make(map[string]*Client),
	}
}

// OnCommand registers the handler for client commands.
func (h *Hub) OnCommand(fn CommandHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onCmd = fn
}

// ClientCount returns the number of connected dashboards.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	c := &Client{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.register(c) {
		conn.Close()
		return
	}
	h.log.Info().Str("connId", c.id).Int("clients", h.ClientCount()).Msg("Dashboard connected")

	defer h.conns.Done()
	go h.writeLoop(c)
	h.readLoop(r.Context(), c)
}

func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.id] = c
	h.conns.Add(2)
	h.metrics.RecordDashboards(len(h.clients))
	return true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	if ok {
		delete(h.clients, c.id)
		close(c.send)
		h.metrics.RecordDashboards(len(h.clients))
	}
	h.mu.Unlock()
	if ok {
		h.log.Info().Str("connId", c.id).Msg("Dashboard disconnected")
	}
}

func (h *Hub) readLoop(ctx context.Context, c *Client) {
	defer func() {
		h.unregister(c)
		h.dispatch(context.WithoutCancel(ctx), c, EventEndCall)
		c.conn.Close()
	}()

	for {
		var env Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			return
		}
		switch env.Event {
		case EventStartCall, EventEndCall:
			if err := h.dispatch(ctx, c, env.Event); err != nil {
				h.sendError(c, err)
			}
		default:
			h.log.Debug().Str("connId", c.id).Str("event", env.Event).Msg("Ignoring unknown client event")
		}
	}
}

func (h *Hub) dispatch(ctx context.Context, c *Client, event string) error {
	h.mu.RLock()
	fn := h.onCmd
	h.mu.RUnlock()
	if fn == nil {
		return nil
	}
	return fn(ctx, c.id, event)
}

func (h *Hub) sendError(c *Client, err error) {
	data, _ := json.Marshal(map[string]string{"message": err.Error()})
	payload, _ := json.Marshal(Envelope{Event: EventError, Data: data})
	h.enqueue(c, payload)
}

func (h *Hub) writeLoop(c *Client) {
	defer h.conns.Done()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.log.Warn().Err(err).Str("connId", c.id).Msg("Write failed, dropping dashboard")
			c.conn.Close()
			// Drain until readLoop unregisters and closes send.
			for range c.send {
			}
			return
		}
	}
}

// enqueue never blocks; a slow dashboard loses messages rather than
// stalling the session.
func (h *Hub) enqueue(c *Client, payload []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c.id]; !ok {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Notify broadcasts a transcript update to every connected dashboard.
func (h *Hub) Notify(ctx context.Context, u models.TranscriptUpdate) error {
	start := time.Now()
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(Envelope{Event: EventTranscriptUpdate, Data: data})
	if err != nil {
		return err
	}

	h.mu.RLock()
	for _, c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.log.Warn().Str("connId", c.id).Msg("Dashboard send buffer full, dropping update")
		}
	}
	h.mu.RUnlock()

	h.metrics.RecordPublish("websocket", u.Role, nil, time.Since(start).Seconds())
	return nil
}

// Close disconnects every dashboard and returns once their connection
// handlers, including the end_call each one dispatches, have finished.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		c.conn.Close()
	}
	h.conns.Wait()
	return nil
}
