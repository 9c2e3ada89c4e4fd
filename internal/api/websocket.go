package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/typepilot/internal/auth"
	"github.com/nerrad567/typepilot/internal/infrastructure/config"
	"github.com/nerrad567/typepilot/internal/infrastructure/logging"
	"github.com/nerrad567/typepilot/internal/orchestrator"
	"github.com/nerrad567/typepilot/internal/session"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypeCommand     = "command"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeSnapshot    = "snapshot"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256
)

// Channels an observer can subscribe to.
const (
	ChannelSession    = "session"
	ChannelReview     = "review"
	ChannelNotice     = "notice"
	ChannelOverlay    = "overlay"
	ChannelGeneration = "generation"
)

// Event types carried on the channels.
const (
	EventSessionUpdated     = "session.updated"
	EventReviewPending      = "review.pending"
	EventReviewResolved     = "review.resolved"
	EventNotice             = "notice"
	EventOverlayToggled     = "overlay.toggled"
	EventGenerationStarted  = "generation.started"
	EventGenerationFinished = "generation.finished"
)

// Observer command actions.
const (
	CommandPause       = "pause"
	CommandResume      = "resume"
	CommandTogglePause = "toggle-pause"
	CommandStop        = "stop"
	CommandStopAll     = "stop-all"
)

// WSMessage represents a message sent to/from a WebSocket client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Channel   string `json:"channel,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Target    string `json:"target,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload for subscribe/unsubscribe messages.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// WSCommandPayload is the payload of a command message. Stop-all and
// toggle-pause act on the connection's target; the others need SessionID.
type WSCommandPayload struct {
	Action    string `json:"action"`
	SessionID string `json:"session_id,omitempty"`
}

// WSErrorPayload is the payload of an error message.
type WSErrorPayload struct {
	Message string            `json:"message"`
	Kind    orchestrator.Kind `json:"kind,omitempty"`
	// Result is what the command did before failing, if anything.
	Result any `json:"result,omitempty"`
}

// hubBackend supplies snapshots and executes commands. Implemented by Server.
type hubBackend interface {
	snapshot(channel, target string) (any, bool)
	command(ctx context.Context, surface auth.Surface, target string, cmd WSCommandPayload) (any, error)
}

// Hub manages WebSocket connections and broadcasts events.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex

	backendMu sync.RWMutex
	backend   hubBackend
}

// WSClient represents a connected WebSocket client.
type WSClient struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[string]struct{}
	mu            sync.RWMutex

	// Identity propagated from the WebSocket ticket.
	surface auth.Surface
	// target scopes every snapshot, event and command on this connection.
	target string
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a new WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

func (h *Hub) setBackend(b hubBackend) {
	h.backendMu.Lock()
	h.backend = b
	h.backendMu.Unlock()
}

func (h *Hub) getBackend() hubBackend {
	h.backendMu.RLock()
	defer h.backendMu.RUnlock()
	return h.backend
}

// Run starts the hub's main loop. It blocks until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected",
		"surface", client.surface.Name,
		"target", client.target,
		"clients", h.ClientCount(),
	)
}

// Unregister removes a client from the hub.
// Only the goroutine that successfully removes the client from the map
// closes the send channel, preventing double-close panics during shutdown.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		close(client.send)
		h.logger.Debug("websocket client disconnected", "surface", client.surface.Name, "clients", h.ClientCount())
	}
}

// Broadcast sends an event to every client subscribed to channel on target.
// It never blocks: a client whose buffer is full is disconnected.
// Lock ordering: hub lock is acquired first, then released before per-client
// subscription checks. This avoids holding both hub and client locks simultaneously.
func (h *Hub) Broadcast(channel, target, eventType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		Channel:   channel,
		EventType: eventType,
		Target:    target,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "error", err)
		return
	}

	// Snapshot client list under hub lock, then release before sending
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	sentCount := 0
	for _, client := range clients {
		if client.target == target && client.isSubscribed(channel) {
			client.trySend(data)
			sentCount++
		}
	}
	if sentCount > 0 {
		h.logger.Debug("broadcast sent", "event_type", eventType, "target", target, "recipients", sentCount)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects all clients and closes their send channels
// so writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

// handleWebSocket upgrades the HTTP connection to a WebSocket connection.
// Authentication is via ticket query parameter (obtained from POST /auth/ws-ticket).
// The optional target parameter selects the target this connection mirrors.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}
	surface, ok := s.tickets.redeem(ticket)
	if !ok {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
		surface:       surface,
		target:        s.targetOrDefault(r.URL.Query().Get("target")),
	}

	s.hub.Register(client)

	// Start read/write pumps
	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

// readPump reads messages from the WebSocket connection.
func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Any client message resets the read deadline.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// inboundMessage is WSMessage with the payload left undecoded.
type inboundMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// handleMessage processes an incoming WebSocket message.
func (c *WSClient) handleMessage(data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", WSErrorPayload{Message: "invalid JSON message"})
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		c.handleSubscribe(msg)
	case WSTypeUnsubscribe:
		c.handleUnsubscribe(msg)
	case WSTypeCommand:
		c.handleCommand(msg)
	case WSTypePing:
		c.sendMessage(WSMessage{Type: WSTypePong, ID: msg.ID})
	default:
		c.sendError(msg.ID, WSErrorPayload{Message: "unknown message type: " + msg.Type})
	}
}

// handleSubscribe adds channels to the client's subscription list, then
// sends a full snapshot of each channel that has state. Subscribing first
// means no event can fall between the snapshot and the live stream.
func (c *WSClient) handleSubscribe(msg inboundMessage) {
	var sub WSSubscribePayload
	if err := json.Unmarshal(msg.Payload, &sub); err != nil {
		c.sendError(msg.ID, WSErrorPayload{Message: "invalid subscribe payload"})
		return
	}

	c.mu.Lock()
	for _, ch := range sub.Channels {
		c.subscriptions[ch] = struct{}{}
	}
	c.mu.Unlock()

	c.hub.logger.Info("websocket client subscribed", "surface", c.surface.Name, "channels", sub.Channels)

	c.sendMessage(WSMessage{
		Type:    WSTypeResponse,
		ID:      msg.ID,
		Payload: map[string]any{"subscribed": sub.Channels},
	})

	backend := c.hub.getBackend()
	if backend == nil {
		return
	}
	for _, ch := range sub.Channels {
		state, ok := backend.snapshot(ch, c.target)
		if !ok {
			continue
		}
		c.sendMessage(WSMessage{
			Type:    WSTypeSnapshot,
			ID:      msg.ID,
			Channel: ch,
			Target:  c.target,
			Payload: state,
		})
	}
}

// handleUnsubscribe removes channels from the client's subscription list.
func (c *WSClient) handleUnsubscribe(msg inboundMessage) {
	var sub WSSubscribePayload
	if err := json.Unmarshal(msg.Payload, &sub); err != nil {
		c.sendError(msg.ID, WSErrorPayload{Message: "invalid unsubscribe payload"})
		return
	}

	c.mu.Lock()
	for _, ch := range sub.Channels {
		delete(c.subscriptions, ch)
	}
	c.mu.Unlock()

	c.sendMessage(WSMessage{
		Type:    WSTypeResponse,
		ID:      msg.ID,
		Payload: map[string]any{"unsubscribed": sub.Channels},
	})
}

// handleCommand forwards a control command into the session machine and
// replies with its result.
func (c *WSClient) handleCommand(msg inboundMessage) {
	if !auth.HasPermission(c.surface.Role, auth.PermSessionControl) {
		c.sendError(msg.ID, WSErrorPayload{Message: "insufficient permissions"})
		return
	}

	var cmd WSCommandPayload
	if err := json.Unmarshal(msg.Payload, &cmd); err != nil {
		c.sendError(msg.ID, WSErrorPayload{Message: "invalid command payload"})
		return
	}

	backend := c.hub.getBackend()
	if backend == nil {
		c.sendError(msg.ID, WSErrorPayload{Message: "commands are not available"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	result, err := backend.command(ctx, c.surface, c.target, cmd)
	if err != nil {
		payload := WSErrorPayload{Message: err.Error(), Kind: orchestrator.Classify(err)}
		if errors.Is(err, session.ErrEngine) {
			payload.Result = result
		}
		c.sendError(msg.ID, payload)
		return
	}
	c.sendMessage(WSMessage{Type: WSTypeResponse, ID: msg.ID, Payload: result})
}

// trySend attempts to send data to the client's send channel. A client
// whose buffer is full is disconnected so that it resynchronises from a
// snapshot instead of silently missing events.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
		c.hub.logger.Warn("websocket client too slow, disconnecting", "surface", c.surface.Name)
		c.hub.Unregister(c)
	}
}

// isSubscribed checks if the client is subscribed to a channel.
func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[channel]
	return ok
}

// sendMessage stamps and queues msg for the client.
// Routes through trySend to safely handle closed channels during shutdown.
func (c *WSClient) sendMessage(msg WSMessage) {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.Marshal(msg)
	if err != nil {
		c.hub.logger.Error("failed to marshal websocket message", "type", msg.Type, "error", err)
		return
	}
	c.trySend(data)
}

// sendError sends an error message to the client.
func (c *WSClient) sendError(id string, payload WSErrorPayload) {
	c.sendMessage(WSMessage{Type: WSTypeError, ID: id, Payload: payload})
}
