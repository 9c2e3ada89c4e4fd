package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/typepilot/internal/infrastructure/mqtt"
	"github.com/nerrad567/typepilot/internal/session"
)

const defaultRequestTimeout = 5 * time.Second

// Bus is the subset of the MQTT client used here. Satisfied by *mqtt.Client.
type Bus interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
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

// Options tunes the client.
type Options struct {
	QoS byte
	// RequestTimeout bounds each command when ctx has no earlier deadline.
	RequestTimeout time.Duration
}

// Client implements session.Engine over the MQTT bus.
type Client struct {
	bus    Bus
	opts   Options
	logger Logger
	topics mqtt.Topics

	mu         sync.Mutex
	waiting    map[string]chan Response
	onProgress func(session.ProgressEvent)
	started    bool

	online atomic.Bool
}

// New creates an engine client. Call Start before sending commands.
func New(bus Bus, opts Options, logger Logger) *Client {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Client{
		bus:     bus,
		opts:    opts,
		logger:  logger,
		waiting: make(map[string]chan Response),
	}
}

// Start subscribes to engine responses, progress and status. Every progress
// message is passed to onProgress on the bus callback goroutine.
func (c *Client) Start(onProgress func(session.ProgressEvent)) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.onProgress = onProgress
	c.started = true
	c.mu.Unlock()

	// Subscribe without holding mu: retained messages may be delivered
	// before the broker acknowledges.
	topics := c.subscribedTopics()
	handlers := []mqtt.MessageHandler{c.handleResponse, c.handleProgress, c.handleStatus}
	for i, topic := range topics {
		if err := c.bus.Subscribe(topic, c.opts.QoS, handlers[i]); err != nil {
			for _, done := range topics[:i] {
				_ = c.bus.Unsubscribe(done) //nolint:errcheck // rollback
			}
			c.mu.Lock()
			c.started = false
			c.mu.Unlock()
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
	}

	c.logger.Info("engine client started")
	return nil
}

// Stop unsubscribes and fails any request still waiting for a reply.
func (c *Client) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	for id, ch := range c.waiting {
		close(ch)
		delete(c.waiting, id)
	}
	c.mu.Unlock()

	for _, topic := range c.subscribedTopics() {
		if err := c.bus.Unsubscribe(topic); err != nil {
			c.logger.Warn("unsubscribe failed", "topic", topic, "error", err)
		}
	}
}

func (c *Client) subscribedTopics() []string {
	return []string{
		c.topics.AllEngineResponses(),
		c.topics.AllEngineProgress(),
		c.topics.EngineStatus(),
	}
}

// Online reports the engine's last retained status.
func (c *Client) Online() bool {
	return c.online.Load()
}

// StartSession asks the engine to begin typing text.
func (c *Client) StartSession(ctx context.Context, text string, profile session.SpeedProfile) (string, error) {
	resp, err := c.request(ctx, VerbStart, Command{
		Text:    text,
		Profile: profile.Name,
		WPM:     profile.WPM,
	})
	if err != nil {
		return "", err
	}
	if resp.SessionID == "" {
		return "", fmt.Errorf("%w: start reply carried no session id", ErrRejected)
	}
	return resp.SessionID, nil
}

// Pause pauses one engine session.
func (c *Client) Pause(ctx context.Context, engineSessionID string) error {
	_, err := c.request(ctx, VerbPause, Command{SessionID: engineSessionID})
	return err
}

// Resume resumes one engine session.
func (c *Client) Resume(ctx context.Context, engineSessionID string) error {
	_, err := c.request(ctx, VerbResume, Command{SessionID: engineSessionID})
	return err
}

// StopAll halts every engine session.
func (c *Client) StopAll(ctx context.Context) error {
	_, err := c.request(ctx, VerbStopAll, Command{})
	return err
}

// Insert places text at the cursor in one step (paste delivery).
// Returns ErrNoFocusedInput when nothing editable has focus.
func (c *Client) Insert(ctx context.Context, text string) error {
	_, err := c.request(ctx, VerbInsert, Command{Text: text})
	return err
}

func (c *Client) request(ctx context.Context, verb string, cmd Command) (Response, error) {
	cmd.RequestID = uuid.NewString()
	cmd.Timestamp = time.Now().UTC()

	payload, err := json.Marshal(cmd)
	if err != nil {
		return Response{}, fmt.Errorf("encoding %s command: %w", verb, err)
	}

	reply := make(chan Response, 1)
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return Response{}, ErrNotStarted
	}
	c.waiting[cmd.RequestID] = reply
	c.mu.Unlock()
	defer c.forget(cmd.RequestID)

	ctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	if err := c.bus.Publish(c.topics.EngineCommand(verb), payload, c.opts.QoS, false); err != nil {
		return Response{}, fmt.Errorf("sending %s command: %w", verb, err)
	}

	select {
	case resp, ok := <-reply:
		if !ok {
			return Response{}, ErrNotStarted
		}
		if !resp.OK {
			if resp.Code == codeNoFocus {
				return resp, ErrNoFocusedInput
			}
			return resp, fmt.Errorf("%w: %s: %s", ErrRejected, verb, resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		c.logger.Warn("engine request timed out", "verb", verb, "request_id", cmd.RequestID)
		return Response{}, fmt.Errorf("%w: %s", ErrTimeout, verb)
	}
}

func (c *Client) forget(requestID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.waiting, requestID)
}

// ─── Bus Handlers ───────────────────────────────────────────────────────────

func (c *Client) handleResponse(topic string, payload []byte) error {
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return fmt.Errorf("decoding engine response: %w", err)
	}
	if resp.RequestID == "" {
		resp.RequestID = mqtt.LastSegment(topic)
	}

	c.mu.Lock()
	reply, ok := c.waiting[resp.RequestID]
	delete(c.waiting, resp.RequestID)
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("response for unknown request", "request_id", resp.RequestID)
		return nil
	}
	reply <- resp
	return nil
}

func (c *Client) handleProgress(topic string, payload []byte) error {
	var p Progress
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decoding engine progress: %w", err)
	}
	if p.SessionID == "" {
		p.SessionID = mqtt.LastSegment(topic)
	}

	c.mu.Lock()
	fn := c.onProgress
	c.mu.Unlock()
	if fn != nil {
		fn(p.toEvent())
	}
	return nil
}

func (c *Client) handleStatus(_ string, payload []byte) error {
	var msg statusMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decoding engine status: %w", err)
	}
	online := msg.Status == "online"
	if c.online.Swap(online) != online {
		c.logger.Info("engine status changed", "status", msg.Status)
	}
	return nil
}
