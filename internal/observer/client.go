package observer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/typepilot/internal/api"
)

const (
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 30 * time.Second
	defaultReadTimeout    = 90 * time.Second
	writeWait             = 5 * time.Second
	ticketPath            = "/api/v1/auth/ws-ticket"
	wsPath                = "/api/v1/ws"
)

// DefaultChannels is every channel an overlay surface needs.
var DefaultChannels = []string{
	api.ChannelSession,
	api.ChannelReview,
	api.ChannelNotice,
	api.ChannelOverlay,
	api.ChannelGeneration,
}

// Config configures a Client.
type Config struct {
	// BaseURL is the core's HTTP address, e.g. http://127.0.0.1:8090.
	BaseURL string
	// Token is the surface's bearer token.
	Token string
	// Target selects the mirrored target. Empty means the core's default.
	Target   string
	Channels []string

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// ReadTimeout drops a connection that has been silent this long. The
	// core pings well inside it.
	ReadTimeout time.Duration

	HTTPClient *http.Client
	Logger     Logger
}

// Logger is the logging interface used by the client.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// frame is a websocket message as the client decodes it.
type frame struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Channel   string          `json:"channel,omitempty"`
	EventType string          `json:"event_type,omitempty"`
	Target    string          `json:"target,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Client mirrors one target of a core over the Sync Channel.
type Client struct {
	cfg        Config
	logger     Logger
	httpClient *http.Client
	dialer     *websocket.Dialer
	proj       *Projection
	updates    chan State

	connMu sync.Mutex
	conn   *websocket.Conn

	pendingMu sync.Mutex
	pending   map[string]chan frame
	seq       atomic.Uint64
}

// New creates a Client. Run must be called to connect.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL is required", ErrInvalidConfig)
	}
	if _, err := wsURL(cfg.BaseURL, "x", ""); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("%w: token is required", ErrInvalidConfig)
	}
	if len(cfg.Channels) == 0 {
		cfg.Channels = DefaultChannels
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}

	c := &Client{
		cfg:        cfg,
		logger:     cfg.Logger,
		httpClient: cfg.HTTPClient,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		proj:       NewProjection(cfg.Target),
		updates:    make(chan State, 1),
		pending:    make(map[string]chan frame),
	}
	if c.logger == nil {
		c.logger = noopLogger{}
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return c, nil
}

// State returns the current projection.
func (c *Client) State() State {
	return c.proj.State()
}

// Updates delivers the projection after every change. Only the latest
// state is buffered; a slow reader skips intermediate states.
func (c *Client) Updates() <-chan State {
	return c.updates
}

// Run connects and keeps the projection current until ctx is cancelled.
// Transport failures are retried with exponential backoff; an unauthorized
// token ends Run with ErrUnauthorized.
func (c *Client) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	b.MaxInterval = c.cfg.MaxBackoff

	for {
		subscribed, err := c.connectOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrUnauthorized) {
			return err
		}
		if subscribed {
			b.Reset()
		}

		wait := b.NextBackOff()
		c.logger.Warn("observer connection lost, reconnecting",
			"error", err,
			"retry_in", wait.String(),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// connectOnce runs one connection until it fails. It reports whether the
// subscription was acknowledged.
func (c *Client) connectOnce(ctx context.Context) (bool, error) {
	ticket, err := c.fetchTicket(ctx)
	if err != nil {
		return false, err
	}

	u, err := wsURL(c.cfg.BaseURL, ticket, c.cfg.Target)
	if err != nil {
		return false, err
	}
	conn, resp, err := c.dialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return false, fmt.Errorf("%w: websocket upgrade refused", ErrUnauthorized)
		}
		return false, fmt.Errorf("dialing %s: %w", wsPath, err)
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	c.setConn(conn)
	c.proj.Connected()
	c.logger.Info("observer connected", "target", c.cfg.Target)

	defer func() {
		close(done)
		c.setConn(nil)
		conn.Close()
		c.failPending()
		c.proj.Disconnected()
		c.publish()
	}()

	subID := c.nextID("sub")
	if err := c.write(api.WSMessage{
		Type:    api.WSTypeSubscribe,
		ID:      subID,
		Payload: api.WSSubscribePayload{Channels: c.cfg.Channels},
	}); err != nil {
		return false, err
	}

	return c.readLoop(conn, subID)
}

func (c *Client) readLoop(conn *websocket.Conn, subID string) (bool, error) {
	subscribed := false
	deadline := func() {
		//nolint:errcheck // read deadline
		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	}
	deadline()
	conn.SetPingHandler(func(data string) error {
		deadline()
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return subscribed, fmt.Errorf("reading websocket: %w", err)
		}
		deadline()

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn("observer received invalid message", "error", err)
			continue
		}

		switch f.Type {
		case api.WSTypeSnapshot:
			c.proj.setTarget(f.Target)
			if err := c.proj.ApplySnapshot(f.Channel, f.Payload); err != nil {
				c.logger.Warn("observer snapshot rejected", "channel", f.Channel, "error", err)
				continue
			}
			c.publish()

		case api.WSTypeEvent:
			changed, err := c.proj.ApplyEvent(f.EventType, f.Payload)
			if err != nil {
				c.logger.Warn("observer event rejected", "event_type", f.EventType, "error", err)
				continue
			}
			if changed {
				c.publish()
			}

		case api.WSTypeResponse, api.WSTypeError:
			if f.ID == subID {
				if f.Type == api.WSTypeError {
					return subscribed, fmt.Errorf("subscribe refused: %s", string(f.Payload))
				}
				subscribed = true
				c.publish()
				continue
			}
			c.resolve(f)
		}
	}
}

// Command sends a control command and waits for the core's reply. The reply
// payload is returned undecoded: a session.Result for session commands,
// a session.StopResult for stop-all. Error replies become *CommandError.
func (c *Client) Command(ctx context.Context, action, sessionID string) (json.RawMessage, error) {
	id := c.nextID("cmd")
	reply := make(chan frame, 1)

	c.pendingMu.Lock()
	c.pending[id] = reply
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.write(api.WSMessage{
		Type:    api.WSTypeCommand,
		ID:      id,
		Payload: api.WSCommandPayload{Action: action, SessionID: sessionID},
	}); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case f, ok := <-reply:
		if !ok {
			return nil, ErrNotConnected
		}
		if f.Type == api.WSTypeError {
			var e api.WSErrorPayload
			if err := json.Unmarshal(f.Payload, &e); err != nil {
				return nil, fmt.Errorf("decoding error reply: %w", err)
			}
			return nil, &CommandError{Message: e.Message, Kind: e.Kind}
		}
		return f.Payload, nil
	}
}

func (c *Client) resolve(f frame) {
	c.pendingMu.Lock()
	reply, ok := c.pending[f.ID]
	if ok {
		delete(c.pending, f.ID)
	}
	c.pendingMu.Unlock()

	if ok {
		reply <- f
	}
}

// failPending ends every outstanding command of a dropped connection.
func (c *Client) failPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, reply := range c.pending {
		close(reply)
		delete(c.pending, id)
	}
}

func (c *Client) write(msg api.WSMessage) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	//nolint:errcheck // write deadline
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("writing websocket: %w", err)
	}
	return nil
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
}

func (c *Client) nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, c.seq.Add(1))
}

// publish offers the latest state, replacing an unread older one.
func (c *Client) publish() {
	st := c.proj.State()
	for {
		select {
		case c.updates <- st:
			return
		default:
		}
		select {
		case <-c.updates:
		default:
		}
	}
}

// fetchTicket exchanges the bearer token for a single-use upgrade ticket.
func (c *Client) fetchTicket(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+ticketPath, nil)
	if err != nil {
		return "", fmt.Errorf("building ticket request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting ticket: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", fmt.Errorf("%w: ticket request returned %d", ErrUnauthorized, resp.StatusCode)
	default:
		return "", fmt.Errorf("ticket request returned %d", resp.StatusCode)
	}

	var body struct {
		Ticket string `json:"ticket"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding ticket: %w", err)
	}
	if body.Ticket == "" {
		return "", errors.New("ticket response without ticket")
	}
	return body.Ticket, nil
}

// wsURL derives the websocket endpoint from the core's HTTP address.
func wsURL(base, ticket, target string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + wsPath

	q := url.Values{}
	q.Set("ticket", ticket)
	if target != "" {
		q.Set("target", target)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
